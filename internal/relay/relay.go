// Package relay drives locally wired relays for switch units, so a heater
// on a GPIO line can be controlled without a round trip through the host.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-controller/internal/config"
	"github.com/thatsimonsguy/climate-controller/internal/controllers/unitcontroller"
	"github.com/thatsimonsguy/climate-controller/internal/model"
)

// Line is a single requested output line.
type Line interface {
	SetValue(value int) error
	Close() error
}

// LineOpener requests an output line driven to initial.
type LineOpener func(chip string, offset int, initial int) (Line, error)

type output struct {
	cfg  config.Relay
	line Line
	on   bool
}

type Bank struct {
	outputs  map[string]*output
	safeMode bool
}

// NewBank requests every configured line in its inactive state. In safe mode
// no line is requested and writes are only logged.
func NewBank(relays []config.Relay, open LineOpener, safeMode bool) (*Bank, error) {
	b := &Bank{outputs: make(map[string]*output), safeMode: safeMode}
	for _, r := range relays {
		o := &output{cfg: r}
		if !safeMode {
			line, err := open(r.Chip, r.Line, level(r, false))
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("request %s line %d for %s: %w", r.Chip, r.Line, r.Entity, err)
			}
			o.line = line
		}
		b.outputs[r.Entity] = o
	}
	log.Info().Int("relays", len(relays)).Bool("safe_mode", safeMode).Msg("Relay bank ready")
	return b, nil
}

func level(r config.Relay, on bool) int {
	if on == r.ActiveHigh {
		return 1
	}
	return 0
}

func (b *Bank) Has(entityID string) bool {
	_, ok := b.outputs[entityID]
	return ok
}

// Set drives the relay of a switch entity.
func (b *Bank) Set(entityID string, on bool) error {
	o, ok := b.outputs[entityID]
	if !ok {
		return fmt.Errorf("no relay for %s", entityID)
	}
	if b.safeMode {
		log.Info().Str("entity", entityID).Bool("on", on).Msg("Safe mode, relay not switched")
		o.on = on
		return nil
	}
	if err := o.line.SetValue(level(o.cfg, on)); err != nil {
		return fmt.Errorf("set %s line %d: %w", o.cfg.Chip, o.cfg.Line, err)
	}
	ev := log.Debug()
	if o.on != on {
		ev = log.Info()
	}
	o.on = on
	ev.Str("entity", entityID).Bool("on", on).Int("line", o.cfg.Line).Msg("Relay switched")
	return nil
}

// AllOff deactivates every relay and returns the joined failures.
func (b *Bank) AllOff() error {
	var errs []error
	for _, id := range b.entities() {
		if err := b.Set(id, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bank) Close() error {
	var errs []error
	for _, id := range b.entities() {
		o := b.outputs[id]
		if o.line == nil {
			continue
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		o.line = nil
	}
	return errors.Join(errs...)
}

func (b *Bank) entities() []string {
	ids := make([]string, 0, len(b.outputs))
	for id := range b.outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Commander switches relay-backed entities locally and forwards everything
// else to Next.
type Commander struct {
	Bank *Bank
	Next unitcontroller.Commander
}

func (c *Commander) SetSwitchState(ctx context.Context, entityID string, on bool) error {
	if c.Bank != nil && c.Bank.Has(entityID) {
		return c.Bank.Set(entityID, on)
	}
	return c.Next.SetSwitchState(ctx, entityID, on)
}

func (c *Commander) SetClimateState(ctx context.Context, entityID string, st model.ClimateState) error {
	return c.Next.SetClimateState(ctx, entityID, st)
}

func (c *Commander) SetInputValue(ctx context.Context, entityID string, value float64) error {
	return c.Next.SetInputValue(ctx, entityID, value)
}
