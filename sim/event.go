package sim

// Event defines the interface for all simulation events.
// Each event must have a Timestamp (in ticks) and an Execute method
// that advances simulation state when invoked.
type Event interface {
	Timestamp() int64
	Execute(*Scheduler)
}

// funcEvent adapts a plain callback to the Event interface.
type funcEvent struct {
	time int64
	fn   func(now int64)
}

// Timestamp returns the scheduled time of the funcEvent.
func (e *funcEvent) Timestamp() int64 {
	return e.time
}

// Execute invokes the wrapped callback with the current virtual time.
func (e *funcEvent) Execute(s *Scheduler) {
	e.fn(s.Now())
}

// Handle refers to a scheduled event and allows its originator to withdraw it.
type Handle struct {
	event     Event
	seq       int64
	cancelled bool
	fired     bool
}

// Cancel withdraws the event. Firing a cancelled event is a no-op, and
// cancelling an event that already fired has no effect.
func (h *Handle) Cancel() {
	if h == nil || h.fired {
		return
	}
	h.cancelled = true
}

// Cancelled reports whether Cancel was called before the event fired.
func (h *Handle) Cancelled() bool {
	return h != nil && h.cancelled
}

// Fired reports whether the event has been executed.
func (h *Handle) Fired() bool {
	return h != nil && h.fired
}

// Timestamp returns the time the event is scheduled for.
func (h *Handle) Timestamp() int64 {
	return h.event.Timestamp()
}
