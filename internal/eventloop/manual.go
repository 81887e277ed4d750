package eventloop

import (
	"sort"
	"time"
)

// Manual is a Scheduler driven by an explicit clock, for tests.
type Manual struct {
	now     time.Time
	seq     int
	pending []*manualTimer
}

type manualTimer struct {
	due      time.Time
	seq      int
	fn       func()
	canceled bool
	m        *Manual
}

func (t *manualTimer) Cancel() {
	if t.canceled {
		return
	}
	t.canceled = true
	t.m.remove(t)
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) ScheduleOnce(delay time.Duration, fn func()) Handle {
	m.seq++
	t := &manualTimer{due: m.now.Add(delay), seq: m.seq, fn: fn, m: m}
	m.pending = append(m.pending, t)
	return t
}

func (m *Manual) Now() time.Time {
	return m.now
}

// Pending is the number of scheduled callbacks that have not fired or been canceled.
func (m *Manual) Pending() int {
	return len(m.pending)
}

// Advance moves the clock forward by d, firing every callback that falls due
// in due-time order. Callbacks scheduled while advancing fire too if they fall
// inside the window.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		next := m.next(target)
		if next == nil {
			break
		}
		m.remove(next)
		next.canceled = true
		m.now = next.due
		next.fn()
	}
	m.now = target
}

func (m *Manual) next(until time.Time) *manualTimer {
	if len(m.pending) == 0 {
		return nil
	}
	sort.SliceStable(m.pending, func(i, j int) bool {
		if m.pending[i].due.Equal(m.pending[j].due) {
			return m.pending[i].seq < m.pending[j].seq
		}
		return m.pending[i].due.Before(m.pending[j].due)
	})
	if m.pending[0].due.After(until) {
		return nil
	}
	return m.pending[0]
}

func (m *Manual) remove(t *manualTimer) {
	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}
