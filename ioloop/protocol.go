package ioloop

// Protocol is the exact-size stream framing capability every connection in
// ioloop is driven by: given however many bytes have arrived so far, it
// decides whether a complete message is buffered yet, and if so how long
// it is. This mirrors the qb framework's Protocol concept
// (message_size()/on_message()) without relying on template specialization:
// a Go interface plays the same role.
type Protocol interface {
	// MessageSize inspects buffered, the bytes accumulated so far that
	// have not yet been consumed by OnMessage. It returns the number of
	// bytes forming the next complete message, or 0 if buffered does not
	// yet contain one (more reads are needed).
	MessageSize(buffered []byte) int

	// OnMessage is called with exactly the first MessageSize(buffered)
	// bytes once a complete message is available. It must not retain data
	// past the call: the Framer reuses the backing buffer.
	OnMessage(data []byte)

	// Reset clears whatever internal parsing state the Protocol keeps
	// across messages (partial header fields, a running length count, and
	// so on), so the next byte fed to it is treated exactly as if it were
	// the first byte of a brand new stream. Framer calls it when a
	// connection is torn down, so a Protocol reused across connections
	// never carries state left over from the previous one. A Protocol
	// with no state beyond what Framer itself buffers -- lineproto, for
	// instance -- implements this as a no-op.
	Reset()
}

// Framer accumulates bytes fed to it by Feed and repeatedly asks its
// current Protocol for a complete message, dispatching OnMessage once per
// message and carrying any leftover partial message forward to the next
// Feed call.
//
// SwitchProtocol lets a connection change framing mid-stream (the HTTP
// upgrade to WebSocket boundary is the motivating case): any bytes already
// buffered but not yet consumed are re-offered to the new Protocol
// immediately, so a message that arrived appended to the upgrade response
// is not lost.
type Framer struct {
	proto Protocol
	buf   []byte
}

// NewFramer constructs a Framer that dispatches complete messages to proto.
func NewFramer(proto Protocol) *Framer {
	return &Framer{proto: proto}
}

// Feed appends data to the framer's buffer and dispatches every complete
// message it can now extract, in order.
func (f *Framer) Feed(data []byte) {
	f.buf = append(f.buf, data...)
	f.drain()
}

// SwitchProtocol replaces the active Protocol and immediately re-scans
// whatever bytes are still buffered against it, before any further Feed
// call appends more.
func (f *Framer) SwitchProtocol(proto Protocol) {
	f.proto = proto
	f.drain()
}

// Pending returns the bytes buffered but not yet consumed into a complete
// message -- useful for a caller handing a connection off to unrelated code
// (e.g. after an upgrade) that needs to see what's left.
func (f *Framer) Pending() []byte {
	return f.buf
}

// Reset discards any buffered, not-yet-complete bytes and clears the active
// Protocol's own internal state via Protocol.Reset. Call it once a
// connection is torn down (cleanly or by error) so neither the Framer's
// buffer nor the Protocol's parsing state leaks into whatever reuses this
// Framer or this Protocol value next.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.proto.Reset()
}

func (f *Framer) drain() {
	for {
		if len(f.buf) == 0 {
			return
		}

		size := f.proto.MessageSize(f.buf)
		if size <= 0 || size > len(f.buf) {
			return
		}

		msg := f.buf[:size]
		f.proto.OnMessage(msg)

		remaining := len(f.buf) - size
		copy(f.buf, f.buf[size:])
		f.buf = f.buf[:remaining]
	}
}
