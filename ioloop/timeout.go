package ioloop

import "time"

// Timeout delivers a timer pseudo-event to fn after a configured interval,
// on the reactor's own Step goroutine like every other callback. It is
// one-shot by default: once fired it stays quiet until Update re-arms it
// with the originally configured interval, or Reconfigure re-arms it with a
// new one -- the idle-connection watchdog shape, where every unit of
// activity on the watched resource calls Update to push the deadline out.
//
// Like everything else that touches a Reactor's callbacks, a Timeout is
// meant to be driven from the owning VirtualCore's goroutine.
type Timeout struct {
	r        *Reactor
	interval time.Duration
	fn       func()
	handle   TimerHandle
}

// NewTimeout arms a timeout firing fn after d. Use Update from fn itself to
// make it periodic.
func NewTimeout(r *Reactor, d time.Duration, fn func()) *Timeout {
	t := &Timeout{r: r, interval: d, fn: fn}
	t.handle = r.AfterFunc(d, fn)
	return t
}

// Update re-arms the timeout with its originally configured interval,
// canceling any firing still pending. Calling it after the timeout has
// fired simply schedules the next firing.
func (t *Timeout) Update() {
	t.handle.Cancel()
	t.handle = t.r.AfterFunc(t.interval, t.fn)
}

// Reconfigure replaces the configured interval with d and re-arms.
func (t *Timeout) Reconfigure(d time.Duration) {
	t.interval = d
	t.Update()
}

// Interval returns the currently configured interval.
func (t *Timeout) Interval() time.Duration {
	return t.interval
}

// Cancel stops the timeout without re-arming. A canceled Timeout can be
// re-armed later with Update.
func (t *Timeout) Cancel() {
	t.handle.Cancel()
}
