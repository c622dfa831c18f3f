// Package wsupgrade demonstrates ioloop's protocol-switch boundary: an
// ordinary HTTP request handler upgrades the connection to a WebSocket,
// at which point gorilla/websocket owns the connection's framing (it
// manages its own read/write locking over the hijacked net.Conn, so it
// does not run through ioloop.Framer the way a plain TCP protocol would).
// The handoff itself -- HTTP protocol instance in, WebSocket protocol
// instance out, same underlying socket -- is the thing being shown.
package wsupgrade

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/qb-go/qbcore/ioloop"
)

// Handler upgrades qualifying HTTP requests to WebSocket connections and
// hands each resulting connection to OnConnect. Non-upgrade requests get
// whatever Fallback handles them, or a 400 if Fallback is nil.
type Handler struct {
	Reactor   *ioloop.Reactor
	OnConnect func(id uuid.UUID, conn *websocket.Conn, r *http.Request)
	Fallback  http.Handler

	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler that upgrades WebSocket requests and hands
// each connection to onConnect. The Handler does not read from the
// connection itself; reactor is kept in the Reactor field, and ServeHTTP does
// not use it. Pump is what posts inbound messages onto a reactor.
func NewHandler(reactor *ioloop.Reactor, onConnect func(id uuid.UUID, conn *websocket.Conn, r *http.Request)) *Handler {
	return &Handler{
		Reactor:   reactor,
		OnConnect: onConnect,
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		if h.Fallback != nil {
			h.Fallback.ServeHTTP(w, r)
			return
		}
		http.Error(w, "expected websocket upgrade", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if h.OnConnect != nil {
		// Minted here, at the HTTP-to-WebSocket handoff, so the same ID
		// correlates the upgrade log line with every subsequent message
		// and the eventual close, across what is -- from the protocol
		// layer's point of view -- two different Protocol instances on
		// one socket.
		h.OnConnect(uuid.New(), conn, r)
	}
}

// Pump reads messages from conn on a dedicated goroutine and posts each one
// onto reactor as onMessage(messageType, data), so handling still happens
// on the reactor's single goroutine. Pump itself returns at once; the
// reading goroutine exits once the connection closes or errors, after
// posting a final onClose.
func Pump(reactor *ioloop.Reactor, conn *websocket.Conn, onMessage func(messageType int, data []byte), onClose func(err error)) {
	go func() {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				reactor.Post(func() {
					if onClose != nil {
						onClose(err)
					}
				})
				return
			}

			reactor.Post(func() {
				onMessage(mt, data)
			})
		}
	}()
}
