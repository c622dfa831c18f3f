package main

import (
	"net"
	"time"

	btclogv2 "github.com/btcsuite/btclog/v2"

	"github.com/qb-go/qbcore/core"
	"github.com/qb-go/qbcore/core/support"
	"github.com/qb-go/qbcore/ioloop"
	"github.com/qb-go/qbcore/ioloop/lineproto"
)

// connIdleTimeout is how long a demo connection may sit silent before the
// server closes it.
const connIdleTimeout = 5 * time.Minute

// holdProto buffers every byte without consuming any, parking a connection's
// input until the real protocol is switched in from the reactor's own
// goroutine. Bytes that arrive in the window before the switch are re-parsed
// by the incoming protocol, so nothing is lost.
type holdProto struct{}

func (holdProto) MessageSize([]byte) int { return 0 }
func (holdProto) OnMessage([]byte)       {}
func (holdProto) Reset()                 {}

// lineMsg carries one line received over the demo TCP listener to the
// logger actor.
type lineMsg struct {
	core.BaseMessage
	From string
	Text string
}

func (lineMsg) MessageType() string { return "qbd.Line" }

// loggerActor just logs every line it receives -- the demo's stand-in for
// whatever business logic a real deployment would plug in.
type loggerActor struct {
	log        btclogv2.Logger
	lastByPeer map[string]*support.Latest[string]
}

func (a *loggerActor) OnInit(ctx *core.Context) bool {
	a.lastByPeer = make(map[string]*support.Latest[string])

	core.RegisterEvent(ctx, func(ctx *core.Context, msg lineMsg) {
		latest, ok := a.lastByPeer[msg.From]
		if !ok {
			latest = &support.Latest[string]{}
			a.lastByPeer[msg.From] = latest
		}

		if latest.Get().IsSome() {
			a.log.Infof("line from %s: %q (previous: %q)", msg.From, msg.Text, latest.Get().UnwrapOr(""))
		} else {
			a.log.Infof("line from %s: %q (first line from this peer)", msg.From, msg.Text)
		}

		latest.Set(msg.Text)
	})
	return true
}

// newDemoEngine builds a two-role Engine: core 0 runs the logger actor and
// owns the ioloop Reactor driving a line-protocol TCP listener; any
// additional cores (numCores > 1) are created with no actors at all, which
// demonstrates the scheduler's self-exit condition: each such core's
// goroutine returns almost immediately after Start instead of spinning on an
// empty roster forever.
func newDemoEngine(numCores int, listenAddr string, log btclogv2.Logger) (*core.Engine, error) {
	if numCores < 1 {
		numCores = 1
	}

	engine := core.NewEngine(core.EngineConfig{})

	logger := engine.AddActor(0, func() core.Actor {
		return &loggerActor{log: log}
	})

	for c := 1; c < numCores; c++ {
		engine.Core(core.CoreID(c))
	}

	ioCore := engine.Core(0)
	reactor := ioloop.NewReactor(ioCore.Wake)
	ioCore.SetIOStep(reactor.Step)
	ioCore.SetIOIdle(reactor.Idle)

	srv, err := ioloop.Listen(listenAddr, func(nc net.Conn) {
		remote := nc.RemoteAddr().String()

		conn := ioloop.NewConn(nc, reactor, holdProto{}, func(err error) {
			log.Infof("connection from %s closed: %v", remote, err)
		})

		idle := ioloop.NewTimeout(reactor, connIdleTimeout, func() {
			log.Infof("closing idle connection from %s", remote)
			conn.Close()
		})

		// The line protocol's handler needs conn and idle, which don't
		// exist until after NewConn returns; switching it in via Defer
		// runs the swap on the reactor's goroutine, and holdProto has
		// buffered anything that arrived in the meantime for the new
		// protocol to re-parse.
		reactor.Defer(func() {
			conn.SwitchProtocol(&lineproto.Protocol{OnLine: func(line []byte) {
				idle.Update()

				ack := append(append([]byte(nil), line...), '\n')
				conn.Queue(ack)

				pushLineFrom(engine, logger, remote, string(line))
			}})
		})
	})
	if err != nil {
		return nil, err
	}

	log.Infof("demo line listener on %s", srv.Addr())

	return engine, nil
}

// pushLineFrom enqueues a lineMsg as if sent by the anonymous "gateway"
// ActorId on core 0 -- the ioloop reactor itself has no ActorId of its own,
// since it is scheduler infrastructure, not an actor.
func pushLineFrom(engine *core.Engine, dst core.ActorId, from, text string) {
	gateway := core.ActorId{Core: dst.Core, Service: 0}
	core.Inject(engine, gateway, dst, lineMsg{From: from, Text: text})
}
