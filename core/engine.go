package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ActorFactory builds one actor instance. Engine calls it exactly once per
// AddActor call, at Start time is not required -- construction happens
// eagerly, OnInit happens at Start.
type ActorFactory func() Actor

// EngineConfig tunes the Engine's mailbox fabric. The zero value is usable:
// every field falls back to a sane default.
type EngineConfig struct {
	// RingCapacity is the size of every inter-core SPSC ring, rounded up
	// to a power of two. Defaults to 1024.
	RingCapacity int

	// DrainBudget bounds how many frames are popped from a single inbound
	// ring before a VirtualCore rotates to the next peer within one tick.
	// Defaults to 256.
	DrainBudget int
}

type ringKey struct {
	producer CoreID
	consumer CoreID
}

// Engine owns the fixed set of VirtualCores and the static routing tables
// (the SPSC rings between every ordered core pair, the broadcast roster,
// and the liveness table) that let actors address each other without any
// cross-core locking once Start has run.
type Engine struct {
	cfg EngineConfig

	cores []*VirtualCore

	rings map[ringKey]*ring

	// coreRoster[core] lists every ServiceID registered on that core, used
	// to expand a BroadcastToCore destination.
	coreRoster map[CoreID][]ServiceID

	// serviceRoster[service] lists every CoreID that registered an actor
	// under that ServiceID, used to expand a BroadcastToService
	// destination.
	serviceRoster map[ServiceID][]CoreID

	// liveness is built once in Start and never re-keyed afterward (only
	// the *atomic.Bool values it points to are mutated), so concurrent
	// lock-free reads from any core's goroutine are safe.
	liveness map[ActorId]*atomic.Bool

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	errMu sync.Mutex
	errs  []error
}

// NewEngine constructs an Engine. Actors are added with AddActor before
// calling Start; Start fixes the set of cores, rings, and routing tables
// for the lifetime of the Engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = defaultRingCapacity
	}
	if cfg.DrainBudget <= 0 {
		cfg.DrainBudget = defaultDrainBudget
	}

	return &Engine{
		cfg:           cfg,
		coreRoster:    make(map[CoreID][]ServiceID),
		serviceRoster: make(map[ServiceID][]CoreID),
	}
}

// Core returns the VirtualCore registered under id, creating it (empty, as
// a placeholder) if nothing has been added to it yet. Used by components
// like ioloop.Reactor that need to install a per-core I/O step before
// Start.
func (e *Engine) Core(id CoreID) *VirtualCore {
	return e.coreAt(id)
}

// coreAt returns the VirtualCore for id, creating placeholder cores for any
// unused lower ids so the core slice stays densely indexable by CoreID.
func (e *Engine) coreAt(id CoreID) *VirtualCore {
	for CoreID(len(e.cores)) <= id {
		e.cores = append(e.cores, newVirtualCore(CoreID(len(e.cores)), e))
	}
	return e.cores[id]
}

// AddActor constructs one actor via factory and assigns it the next free
// ServiceID on the given core. It must be called before Start; calling it
// afterward panics, since the routing tables it feeds are fixed at Start.
func (e *Engine) AddActor(core CoreID, factory ActorFactory) ActorId {
	if e.started.Load() {
		panic(ErrEngineAlreadyStarted)
	}
	return e.coreAt(core).spawn(factory)
}

// Start fixes the Engine's routing tables -- the rings between every
// ordered core pair, the broadcast roster, and the liveness table -- then
// launches one goroutine per VirtualCore. It returns immediately; use Join
// to block until every core's loop exits.
func (e *Engine) Start() {
	if !e.started.CompareAndSwap(false, true) {
		panic(ErrEngineAlreadyStarted)
	}

	n := len(e.cores)

	e.rings = make(map[ringKey]*ring, n*(n-1))
	for p := 0; p < n; p++ {
		for c := 0; c < n; c++ {
			if p == c {
				continue
			}
			e.rings[ringKey{CoreID(p), CoreID(c)}] = newRing(e.cfg.RingCapacity)
		}
	}

	e.liveness = make(map[ActorId]*atomic.Bool)
	for _, vc := range e.cores {
		vc.drainBudget = e.cfg.DrainBudget

		services := make([]ServiceID, 0, len(vc.cells))
		for svc := range vc.cells {
			services = append(services, svc)
			e.serviceRoster[svc] = append(e.serviceRoster[svc], vc.id)

			id := ActorId{Core: vc.id, Service: svc}
			live := new(atomic.Bool)
			live.Store(true)
			e.liveness[id] = live
		}
		sort.Slice(services, func(i, j int) bool { return services[i] < services[j] })
		e.coreRoster[vc.id] = services
	}
	for svc, cores := range e.serviceRoster {
		sort.Slice(cores, func(i, j int) bool { return cores[i] < cores[j] })
		e.serviceRoster[svc] = cores
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	for _, vc := range e.cores {
		e.wg.Add(1)
		go func(vc *VirtualCore) {
			defer e.wg.Done()
			defer e.recoverInto(vc.id)
			vc.run(ctx)
		}(vc)
	}
}

// recoverInto is the goroutine-level backstop deferred around each
// VirtualCore's run loop in Start: it only fires for a panic that unwound
// past dispatch's own per-handler recover (core/vcore.go), i.e. a bug in the
// scheduler itself rather than in an actor's handler.
func (e *Engine) recoverInto(core CoreID) {
	if r := recover(); r != nil {
		e.recordErr(&RuntimeError{
			Kind: ErrKindPanic,
			Core: core,
			Err:  fmt.Errorf("core loop: %v", r),
		})
	}
}

func (e *Engine) recordErr(err error) {
	e.errMu.Lock()
	e.errs = append(e.errs, err)
	e.errMu.Unlock()
}

// HasError reports whether any VirtualCore goroutine has recorded an error
// (a recovered panic, or an actor whose OnInit returned false) since Start.
func (e *Engine) HasError() bool {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return len(e.errs) > 0
}

// Errors returns a snapshot of every error recorded since Start.
func (e *Engine) Errors() []error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

// Join blocks until every VirtualCore's run loop has returned: after Stop
// cancels the shared context, or once a core meets its own self-exit
// condition (no live actors, no callback registrations, an idle reactor).
func (e *Engine) Join() {
	e.wg.Wait()
}

// Stop cancels every VirtualCore's run loop and waits for them to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.Join()
}

// peersOf lists every other core id, in ascending order, for the fair
// rotation tick uses when draining inbound rings.
func (e *Engine) peersOf(self CoreID) []CoreID {
	peers := make([]CoreID, 0, len(e.cores)-1)
	for i := range e.cores {
		if CoreID(i) == self {
			continue
		}
		peers = append(peers, CoreID(i))
	}
	return peers
}

func (e *Engine) ringTo(producer, consumer CoreID) *ring {
	return e.rings[ringKey{producer, consumer}]
}

func (e *Engine) wakeCore(core CoreID) {
	if int(core) < len(e.cores) {
		e.cores[core].wakeUp()
	}
}

// liveAt reports the best-effort liveness of dst as observed from the
// producer side at enqueue time. It is advisory: the consuming
// VirtualCore re-checks its own actorCell table at dispatch time regardless,
// which is the authoritative check. An id with no liveness entry (never
// registered) reports dead.
func (e *Engine) liveAt(dst ActorId) bool {
	b, ok := e.liveness[dst]
	if !ok {
		return false
	}
	return b.Load()
}

func (e *Engine) markDead(id ActorId) {
	if b, ok := e.liveness[id]; ok {
		b.Store(false)
	}
}

// expand resolves a (possibly broadcast) destination into the concrete set
// of ActorIds it addresses, against the static roster built at Start.
func (e *Engine) expand(dst ActorId) []ActorId {
	switch {
	case dst.Core == BroadcastCore && dst.Service == BroadcastService:
		targets := make([]ActorId, 0)
		for core, services := range e.coreRoster {
			for _, svc := range services {
				targets = append(targets, ActorId{Core: core, Service: svc})
			}
		}
		return targets

	case dst.Core == BroadcastCore:
		cores := e.serviceRoster[dst.Service]
		targets := make([]ActorId, 0, len(cores))
		for _, core := range cores {
			targets = append(targets, ActorId{Core: core, Service: dst.Service})
		}
		return targets

	case dst.Service == BroadcastService:
		services := e.coreRoster[dst.Core]
		targets := make([]ActorId, 0, len(services))
		for _, svc := range services {
			targets = append(targets, ActorId{Core: dst.Core, Service: svc})
		}
		return targets

	default:
		return []ActorId{dst}
	}
}

// fanout materializes a broadcast send into concrete point-to-point frames
// and delivers each one individually, from producer's perspective (so
// same-core targets land on producer's local queue, not a ring).
func (e *Engine) fanout(producer *VirtualCore, src, dst ActorId, typeID EventTypeID, msg Message) {
	for _, target := range e.expand(dst) {
		producer.deliver(src, target, typeID, msg)
	}
}

// Inject delivers msg from outside the scheduler entirely -- typically an
// ioloop reader goroutine bridging a network event into an actor -- rather
// than from another actor's Context. Unlike Push, which assumes its caller
// already is a VirtualCore's own goroutine, Inject is safe to call
// concurrently from any number of goroutines: it lands on the destination
// core's external channel rather than the lock-free SPSC rings reserved for
// core-to-core traffic.
func Inject[M Message](e *Engine, src, dst ActorId, msg M) {
	typeID := RegisterEventType[M]()
	for _, target := range e.expand(dst) {
		e.injectTo(target, src, typeID, msg)
	}
}

func (e *Engine) injectTo(target, src ActorId, typeID EventTypeID, msg Message) {
	// A core that was never registered is a publish failure: silent drop.
	// coreAt would mutate the core slice, which is fixed once Start runs.
	if int(target.Core) >= len(e.cores) {
		return
	}
	vc := e.cores[target.Core]
	f := frame{
		eventHeader: eventHeader{
			typeID:      typeID,
			source:      src,
			destination: target,
			alive:       e.liveAt(target),
			isLive:      true,
		},
		payload: msg,
	}
	vc.externalCh <- f
	vc.wakeUp()
}
