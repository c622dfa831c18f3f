package ioloop

import (
	"net"
	"sync"

	"github.com/google/uuid"
)

// Conn is a single accepted or dialed TCP connection, framed by a Protocol
// and bridged onto a Reactor. Reads happen on a dedicated background
// goroutine (Go's netpoller already multiplexes the actual socket
// readiness; ioloop's job is only to hand completed messages back onto the
// owning VirtualCore's single goroutine) and are posted to the Reactor as
// they complete, so Protocol.OnMessage always runs on the reactor's core.
type Conn struct {
	// ID uniquely identifies this connection across its lifetime, for log
	// correlation -- the same connection shows up under one ID whether the
	// log line came from the accept-time handler, a mid-stream protocol
	// switch, or the eventual close.
	ID uuid.UUID

	nc      net.Conn
	reactor *Reactor
	framer  *Framer
	out     *OutPipe

	closeOnce sync.Once
	onClose   func(err error)
}

// NewConn wraps an already-established net.Conn, dispatching complete
// messages (per proto) onto reactor. It immediately starts the background
// read loop; call Close to stop it and release the socket.
func NewConn(nc net.Conn, reactor *Reactor, proto Protocol, onClose func(err error)) *Conn {
	c := &Conn{
		ID:      uuid.New(),
		nc:      nc,
		reactor: reactor,
		framer:  NewFramer(proto),
		onClose: onClose,
	}
	c.out = NewOutPipe(nc, nil)
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.reactor.Post(func() {
				c.framer.Feed(chunk)
			})
		}
		if err != nil {
			// Disconnection discards whatever the peer was never going to
			// receive anyway.
			c.out.Close()
			c.reactor.Post(func() {
				c.framer.Reset()
				if c.onClose != nil {
					c.onClose(err)
				}
			})
			return
		}
	}
}

// SwitchProtocol re-frames the connection's remaining stream with a new
// Protocol, for protocol-switch boundaries like an HTTP-to-WebSocket
// upgrade. It must be called from the reactor's own goroutine (i.e. from
// within a Protocol.OnMessage callback or a Reactor.Defer/Post closure).
func (c *Conn) SwitchProtocol(proto Protocol) {
	c.framer.SwitchProtocol(proto)
}

// Write sends data on the underlying socket synchronously. Safe to call
// from any goroutine; net.Conn.Write is itself safe for concurrent use with
// Read. Prefer Queue from protocol handlers: Write can block the caller on
// a slow peer, which on a reactor's goroutine stalls the whole core.
func (c *Conn) Write(data []byte) (int, error) {
	return c.nc.Write(data)
}

// Queue appends data to the connection's outbound pipe. It never blocks:
// bytes are drained to the socket in FIFO order by the pipe's own
// goroutine, with partial writes carried across calls, and whatever is
// still queued when the connection closes is discarded.
func (c *Conn) Queue(data []byte) {
	c.out.Queue(data)
}

// Buffered reports how many outbound bytes are queued but not yet written
// to the socket -- the signal an application protocol watches to manage its
// own oversubscription, since Queue itself never pushes back.
func (c *Conn) Buffered() int {
	return c.out.Buffered()
}

// RemoteAddr returns the peer address of the underlying socket.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Close discards any bytes still queued in the outbound pipe and closes the
// underlying socket, exactly once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.out.Close()
		err = c.nc.Close()
	})
	return err
}

// Server accepts TCP connections and hands each to onAccept, which is
// responsible for wrapping it with NewConn (and choosing its initial
// Protocol).
type Server struct {
	ln net.Listener
}

// Listen starts accepting TCP connections on addr. onAccept is invoked on a
// dedicated accept-loop goroutine for every accepted connection; it should
// return quickly (typically just calling NewConn) since it blocks further
// accepts while it runs.
func Listen(addr string, onAccept func(nc net.Conn)) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{ln: ln}
	go s.acceptLoop(onAccept)
	return s, nil
}

func (s *Server) acceptLoop(onAccept func(nc net.Conn)) {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		onAccept(nc)
	}
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Dial opens a TCP connection to addr and wraps it with proto, dispatching
// onto reactor exactly like an accepted connection.
func Dial(addr string, reactor *Reactor, proto Protocol, onClose func(err error)) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(nc, reactor, proto, onClose), nil
}
