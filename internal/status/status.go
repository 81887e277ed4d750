// Package status keeps the latest snapshot of every unit for the HTTP API.
// Snapshots are written from the event loop and read by HTTP handlers.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

// Health is a point-in-time view of the daemon.
type Health struct {
	StartTime     time.Time `json:"start_time"`
	Uptime        string    `json:"uptime"`
	Units         int       `json:"units"`
	Rejected      []string  `json:"rejected,omitempty"`
	FailingUnits  []string  `json:"failing_units,omitempty"`
	MQTTConnected bool      `json:"mqtt_connected"`
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu        sync.RWMutex
	start     time.Time
	units     map[string]model.UnitSnapshot
	failing   map[string]bool
	rejected  []string
	connected func() bool
}

func NewTracker(start time.Time) *Tracker {
	return &Tracker{
		start:   start,
		units:   make(map[string]model.UnitSnapshot),
		failing: make(map[string]bool),
	}
}

// Observe stores the snapshot of a recompute pass.
func (t *Tracker) Observe(ev model.UnitEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.units[ev.Snapshot.Unit] = ev.Snapshot
	if ev.Dispatched != nil {
		t.failing[ev.Snapshot.Unit] = ev.Err != nil
	}
}

func (t *Tracker) SetRejected(errs []error) {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	t.mu.Lock()
	t.rejected = msgs
	t.mu.Unlock()
}

// SetConnectionCheck installs the probe used to report broker connectivity.
func (t *Tracker) SetConnectionCheck(fn func() bool) {
	t.mu.Lock()
	t.connected = fn
	t.mu.Unlock()
}

// Units returns all snapshots ordered by unit name.
func (t *Tracker) Units() []model.UnitSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.UnitSnapshot, 0, len(t.units))
	for _, s := range t.units {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
	return out
}

func (t *Tracker) Unit(name string) (model.UnitSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.units[name]
	return s, ok
}

func (t *Tracker) Health(now time.Time) Health {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h := Health{
		StartTime: t.start,
		Uptime:    now.Sub(t.start).Truncate(time.Second).String(),
		Units:     len(t.units),
		Rejected:  t.rejected,
	}
	for name, failing := range t.failing {
		if failing {
			h.FailingUnits = append(h.FailingUnits, name)
		}
	}
	sort.Strings(h.FailingUnits)
	if t.connected != nil {
		h.MQTTConnected = t.connected()
	}
	return h
}
