package ioloop_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qb-go/qbcore/ioloop"
)

func TestReactorStepRunsDueTimers(t *testing.T) {
	r := ioloop.NewReactor(nil)

	fired := false
	r.AfterFunc(0, func() { fired = true })

	time.Sleep(time.Millisecond)
	progressed := r.Step()

	require.True(t, progressed)
	require.True(t, fired)
}

func TestReactorTimerNotYetDueDoesNotFire(t *testing.T) {
	r := ioloop.NewReactor(nil)

	fired := false
	r.AfterFunc(time.Hour, func() { fired = true })

	progressed := r.Step()

	require.False(t, progressed)
	require.False(t, fired)
}

func TestReactorCanceledTimerNeverFires(t *testing.T) {
	r := ioloop.NewReactor(nil)

	fired := false
	h := r.AfterFunc(0, func() { fired = true })
	h.Cancel()

	time.Sleep(time.Millisecond)
	r.Step()

	require.False(t, fired)
}

func TestReactorDeferRunsOnNextStep(t *testing.T) {
	r := ioloop.NewReactor(nil)

	ran := false
	r.Defer(func() { ran = true })

	require.False(t, ran)
	r.Step()
	require.True(t, ran)
}

func TestReactorIdleReflectsTimersDeferredAndEvents(t *testing.T) {
	r := ioloop.NewReactor(nil)
	require.True(t, r.Idle())

	// A not-yet-due timer keeps the reactor non-idle even across a Step,
	// since Step only pops timers once they're due.
	r.AfterFunc(time.Hour, func() {})
	require.False(t, r.Idle())
	r.Step()
	require.False(t, r.Idle())

	r2 := ioloop.NewReactor(nil)
	r2.AfterFunc(0, func() {})
	require.False(t, r2.Idle())
	time.Sleep(time.Millisecond)
	r2.Step()
	require.True(t, r2.Idle())

	r2.Defer(func() {})
	require.False(t, r2.Idle())
	r2.Step()
	require.True(t, r2.Idle())

	r2.Post(func() {})
	require.False(t, r2.Idle())
	r2.Step()
	require.True(t, r2.Idle())
}

func TestReactorPostWakesAndDispatches(t *testing.T) {
	woken := make(chan struct{}, 1)
	r := ioloop.NewReactor(func() {
		select {
		case woken <- struct{}{}:
		default:
		}
	})

	done := make(chan struct{})
	r.Post(func() { close(done) })

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("wake callback was not invoked")
	}

	require.True(t, r.Step())

	select {
	case <-done:
	default:
		t.Fatal("posted function did not run during Step")
	}
}
