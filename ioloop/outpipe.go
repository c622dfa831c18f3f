package ioloop

import (
	"io"
	"sync"
)

// OutPipe is the write-ordered outbound byte pipe a connection drains its
// traffic through: Queue appends without ever blocking the caller, and a
// dedicated drain goroutine writes the buffered bytes to the underlying
// socket in FIFO order, tracking partial writes across calls. Backpressure
// shows up as growth of Buffered rather than as a stalled caller, so an
// application protocol that oversubscribes a slow peer is responsible for
// watching Buffered itself.
//
// Closing the pipe -- directly, or as part of connection teardown --
// discards whatever bytes are still queued; a disconnected peer never
// receives a partial tail of the stream out of order.
type OutPipe struct {
	w io.Writer

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
	err    error

	onError func(error)
}

// NewOutPipe starts a pipe draining into w. onError, if non-nil, is called
// once from the drain goroutine if a write fails; the pipe closes itself
// and discards the rest of its buffer before the call.
func NewOutPipe(w io.Writer, onError func(error)) *OutPipe {
	p := &OutPipe{w: w, onError: onError}
	p.cond = sync.NewCond(&p.mu)
	go p.drain()
	return p
}

// Queue appends data to the pipe. It never blocks and never fails; bytes
// queued after the pipe has closed (or after a write error) are silently
// discarded, matching the teardown contract.
func (p *OutPipe) Queue(data []byte) {
	if len(data) == 0 {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.buf = append(p.buf, data...)
	p.cond.Signal()
	p.mu.Unlock()
}

// Buffered reports how many bytes are queued but not yet handed to the
// underlying writer.
func (p *OutPipe) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Err returns the write error that closed the pipe, if any.
func (p *OutPipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close stops the drain goroutine and discards any bytes still queued. It
// does not close the underlying writer; that belongs to whoever owns the
// socket. Close is idempotent.
func (p *OutPipe) Close() {
	p.mu.Lock()
	p.closed = true
	p.buf = nil
	p.cond.Signal()
	p.mu.Unlock()
}

func (p *OutPipe) drain() {
	for {
		p.mu.Lock()
		for len(p.buf) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}

		// Take the whole buffer; new Queue calls append to a fresh slice
		// while this batch is being written, preserving FIFO order.
		chunk := p.buf
		p.buf = nil
		p.mu.Unlock()

		written := 0
		for written < len(chunk) {
			n, err := p.w.Write(chunk[written:])
			written += n
			if err != nil {
				p.mu.Lock()
				p.closed = true
				p.buf = nil
				p.err = err
				p.mu.Unlock()

				if p.onError != nil {
					p.onError(err)
				}
				return
			}
		}
	}
}
