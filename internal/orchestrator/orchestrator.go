// Package orchestrator builds one unit controller per configured climate unit
// and routes entity state changes to every controller interested in them.
package orchestrator

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-controller/internal/config"
	"github.com/thatsimonsguy/climate-controller/internal/controllers/unitcontroller"
	"github.com/thatsimonsguy/climate-controller/internal/entity"
	"github.com/thatsimonsguy/climate-controller/internal/eventloop"
)

type Deps struct {
	Cache     *entity.Cache
	Commander unitcontroller.Commander
	Scheduler eventloop.Scheduler
	Observers []unitcontroller.Observer
}

// Orchestrator owns the controllers. Controllers live in a slice indexed by
// position and routes refer to them by index.
type Orchestrator struct {
	global   config.Global
	cache    *entity.Cache
	units    []*unitcontroller.Controller
	routes   map[string][]int
	rejected []error
}

// New validates the configured units and builds a controller for every valid
// one. Rejected units are reported by Rejected and never run.
func New(cfg *config.Climate, deps Deps) *Orchestrator {
	valid, rejected := cfg.ValidUnits()
	o := &Orchestrator{
		global:   cfg.Global,
		cache:    deps.Cache,
		routes:   make(map[string][]int),
		rejected: rejected,
	}

	for _, err := range rejected {
		log.Error().Err(err).Msg("Climate unit rejected")
	}

	for _, u := range valid {
		c := unitcontroller.New(u, cfg.Global, unitcontroller.Deps{
			Reader:    deps.Cache,
			Commander: deps.Commander,
			Scheduler: deps.Scheduler,
			Observers: deps.Observers,
		})
		idx := len(o.units)
		o.units = append(o.units, c)
		for _, id := range c.Entities() {
			o.routes[id] = append(o.routes[id], idx)
		}
	}

	log.Info().
		Int("units", len(o.units)).
		Int("rejected", len(rejected)).
		Int("entities", len(o.routes)).
		Msg("Orchestrator configured")
	return o
}

// Start starts every controller. Must run on the event loop.
func (o *Orchestrator) Start() {
	for _, c := range o.units {
		o.guard(c, "start", c.Start)
	}
}

// Stop releases pending timers of every controller.
func (o *Orchestrator) Stop() {
	for _, c := range o.units {
		o.guard(c, "stop", c.Stop)
	}
}

// HandleStateChange records a raw entity value and notifies the interested
// controllers. Must run on the event loop.
func (o *Orchestrator) HandleStateChange(entityID, raw string) {
	old, cur := o.cache.Update(entityID, raw)
	idxs, ok := o.routes[entityID]
	if !ok {
		return
	}

	log.Debug().
		Str("entity", entityID).
		Str("old", old.Value).
		Str("new", cur.Value).
		Int("units", len(idxs)).
		Msg("Routing entity change")

	for _, i := range idxs {
		c := o.units[i]
		o.guard(c, "state change", func() {
			c.HandleStateChange(entityID, old, cur)
		})
	}
}

// RecomputeAll forces every controller to re-evaluate, used after a reconnect
// when events may have been missed.
func (o *Orchestrator) RecomputeAll() {
	for _, c := range o.units {
		o.guard(c, "recompute", c.Recompute)
	}
}

// guard isolates a failing controller from the others.
func (o *Orchestrator) guard(c *unitcontroller.Controller, op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("unit", c.Name()).
				Str("op", op).
				Str("panic", fmt.Sprint(r)).
				Msg("Unit controller panicked")
		}
	}()
	fn()
}

// Entities returns every entity id any controller listens to.
func (o *Orchestrator) Entities() []string {
	ids := make([]string, 0, len(o.routes))
	for id := range o.routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (o *Orchestrator) Units() []string {
	names := make([]string, len(o.units))
	for i, c := range o.units {
		names[i] = c.Name()
	}
	return names
}

func (o *Orchestrator) Rejected() []error {
	return o.rejected
}
