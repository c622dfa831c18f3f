package ioloop

import "net"

// UDPSocket reads datagrams on a background goroutine and posts each one,
// whole, onto reactor for handler to process on the owning VirtualCore's
// goroutine.
type UDPSocket struct {
	pc net.PacketConn
}

// ListenUDP binds addr and starts reading datagrams, posting each to
// reactor as handler(data, from).
func ListenUDP(addr string, reactor *Reactor, handler func(data []byte, from net.Addr)) (*UDPSocket, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}

	s := &UDPSocket{pc: pc}
	go s.readLoop(reactor, handler)
	return s, nil
}

func (s *UDPSocket) readLoop(reactor *Reactor, handler func(data []byte, from net.Addr)) {
	buf := make([]byte, 64*1024)
	for {
		n, from, err := s.pc.ReadFrom(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			reactor.Post(func() {
				handler(chunk, from)
			})
		}
		if err != nil {
			return
		}
	}
}

// WriteTo sends data to addr. Safe to call from any goroutine.
func (s *UDPSocket) WriteTo(data []byte, addr net.Addr) (int, error) {
	return s.pc.WriteTo(data, addr)
}

// Close stops the socket's read loop.
func (s *UDPSocket) Close() error {
	return s.pc.Close()
}
