// Package eventloop serializes controller work onto a single goroutine.
// Event handlers and timer callbacks are posted as closures and executed in
// arrival order, so controller state never needs locking.
package eventloop

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Handle is a pending one-shot callback. Cancel is a no-op once the
// callback has fired or was already canceled.
type Handle interface {
	Cancel()
}

type Scheduler interface {
	ScheduleOnce(delay time.Duration, fn func()) Handle
	Now() time.Time
}

type Loop struct {
	events chan func()
	done   chan struct{}
}

func New(buffer int) *Loop {
	return &Loop{
		events: make(chan func(), buffer),
		done:   make(chan struct{}),
	}
}

// Post queues fn for execution on the loop. It drops fn once the loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case l.events <- fn:
	case <-l.done:
	}
}

// Run executes posted closures until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case fn := <-l.events:
			l.exec(fn)
		case <-ctx.Done():
			return
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered panic in event loop callback")
		}
	}()
	fn()
}

func (l *Loop) ScheduleOnce(delay time.Duration, fn func()) Handle {
	return &timerHandle{t: time.AfterFunc(delay, func() { l.Post(fn) })}
}

func (l *Loop) Now() time.Time {
	return time.Now()
}

type timerHandle struct {
	t *time.Timer
}

// Cancel stops the timer. A callback that already reached the loop queue
// still runs; debounce timers detect that through their generation counter.
func (h *timerHandle) Cancel() {
	h.t.Stop()
}
