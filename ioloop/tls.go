package ioloop

import (
	"crypto/tls"
	"net"
)

// ListenTLS is Listen's SSL/TLS counterpart: it wraps the listener with
// cfg and otherwise behaves identically, including running onAccept for
// every accepted connection on its single accept-loop goroutine.
func ListenTLS(addr string, cfg *tls.Config, onAccept func(nc net.Conn)) (*Server, error) {
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{ln: ln}
	go s.acceptLoop(onAccept)
	return s, nil
}

// DialTLS opens a TLS connection to addr and wraps it exactly like Dial.
func DialTLS(addr string, cfg *tls.Config, reactor *Reactor, proto Protocol, onClose func(err error)) (*Conn, error) {
	nc, err := tls.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	return NewConn(nc, reactor, proto, onClose), nil
}
