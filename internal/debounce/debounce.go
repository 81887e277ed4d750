// Package debounce turns noisy boolean sensor signals into stable values that
// only change after the raw signal held for a configured delay.
package debounce

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-controller/internal/eventloop"
)

// Timer is a cancel-then-reschedule one-shot for a single transition kind.
// At most one callback is pending at any time.
type Timer struct {
	kind       string
	delay      time.Duration
	sched      eventloop.Scheduler
	handle     eventloop.Handle
	generation uint64
}

func NewTimer(kind string, delay time.Duration, sched eventloop.Scheduler) *Timer {
	return &Timer{kind: kind, delay: delay, sched: sched}
}

// Arm cancels any pending callback and schedules fn after the timer delay.
// A zero delay runs fn synchronously without scheduling.
func (t *Timer) Arm(fn func()) {
	t.Cancel()

	if t.delay <= 0 {
		fn()
		return
	}

	gen := t.generation
	t.handle = t.sched.ScheduleOnce(t.delay, func() {
		// a callback that outlived its cancel must not commit
		if gen != t.generation || t.handle == nil {
			log.Debug().Str("timer", t.kind).Msg("Dropping superseded debounce callback")
			return
		}
		t.handle = nil
		fn()
	})
}

func (t *Timer) Cancel() {
	t.generation++
	if t.handle != nil {
		t.handle.Cancel()
		t.handle = nil
	}
}

func (t *Timer) Pending() bool {
	return t.handle != nil
}

// Signal debounces a boolean through a rising and a falling Timer.
type Signal struct {
	raw      bool
	stable   bool
	rise     *Timer
	fall     *Timer
	onChange func(stable bool)
}

// NewSignal starts with raw and stable both set to initial. onChange is called
// with the new stable value each time a transition settles.
func NewSignal(initial bool, rise, fall *Timer, onChange func(stable bool)) *Signal {
	return &Signal{
		raw:      initial,
		stable:   initial,
		rise:     rise,
		fall:     fall,
		onChange: onChange,
	}
}

// Set feeds a new raw reading. Repeating the current raw value is ignored so
// a pending transition keeps its original deadline.
func (s *Signal) Set(v bool) {
	if v == s.raw {
		return
	}
	s.raw = v
	s.rise.Cancel()
	s.fall.Cancel()

	if v == s.stable {
		return
	}

	t := s.fall
	if v {
		t = s.rise
	}
	t.Arm(func() {
		s.stable = v
		if s.onChange != nil {
			s.onChange(v)
		}
	})
}

func (s *Signal) Raw() bool {
	return s.raw
}

func (s *Signal) Stable() bool {
	return s.stable
}

func (s *Signal) Pending() bool {
	return s.rise.Pending() || s.fall.Pending()
}

// Stop releases any pending timer without committing.
func (s *Signal) Stop() {
	s.rise.Cancel()
	s.fall.Cancel()
}
