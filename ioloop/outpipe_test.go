package ioloop_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qb-go/qbcore/ioloop"
)

// trickleWriter accepts at most max bytes per Write call, forcing the pipe
// to track partial writes across calls.
type trickleWriter struct {
	mu  sync.Mutex
	got []byte
	max int
}

func (w *trickleWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n > w.max {
		n = w.max
	}
	w.mu.Lock()
	w.got = append(w.got, p[:n]...)
	w.mu.Unlock()
	return n, nil
}

func (w *trickleWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.got)
}

func TestOutPipeDrainsFIFOAcrossPartialWrites(t *testing.T) {
	w := &trickleWriter{max: 3}
	p := ioloop.NewOutPipe(w, nil)
	defer p.Close()

	p.Queue([]byte("hello "))
	p.Queue([]byte("ordered "))
	p.Queue([]byte("world"))

	require.Eventually(t, func() bool {
		return w.String() == "hello ordered world"
	}, 2*time.Second, 5*time.Millisecond)

	require.Zero(t, p.Buffered())
	require.NoError(t, p.Err())
}

// gateWriter blocks each Write until released, so a test can pin bytes
// inside the pipe while it closes.
type gateWriter struct {
	entered chan struct{}
	release chan struct{}

	mu  sync.Mutex
	got []byte
}

func (w *gateWriter) Write(p []byte) (int, error) {
	w.entered <- struct{}{}
	<-w.release

	w.mu.Lock()
	w.got = append(w.got, p...)
	w.mu.Unlock()
	return len(p), nil
}

func (w *gateWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.got)
}

func TestOutPipeCloseDiscardsPendingBytes(t *testing.T) {
	w := &gateWriter{
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	p := ioloop.NewOutPipe(w, nil)

	p.Queue([]byte("sent"))

	// Wait for the drain goroutine to be mid-write, then queue more and
	// close: the in-flight chunk completes, the queued one must not.
	select {
	case <-w.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("drain goroutine never reached the writer")
	}

	p.Queue([]byte("discarded"))
	p.Close()
	close(w.release)

	require.Eventually(t, func() bool {
		return w.String() == "sent"
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, "sent", w.String())
	require.Zero(t, p.Buffered())

	// Queue after close is a silent no-op.
	p.Queue([]byte("late"))
	require.Zero(t, p.Buffered())
}

type failWriter struct{ err error }

func (w failWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestOutPipeWriteErrorClosesAndReports(t *testing.T) {
	wantErr := errors.New("peer gone")
	errCh := make(chan error, 1)

	p := ioloop.NewOutPipe(failWriter{err: wantErr}, func(err error) {
		errCh <- err
	})

	p.Queue([]byte("doomed"))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, wantErr)
	case <-time.After(2 * time.Second):
		t.Fatal("write error never reported")
	}

	require.ErrorIs(t, p.Err(), wantErr)

	// The pipe is closed now; nothing further accumulates.
	p.Queue([]byte("after"))
	require.Zero(t, p.Buffered())
}
