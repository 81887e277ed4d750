// Package resolver picks effective setpoints, heating limits and modes by
// walking an ordered chain of tiers and stopping at the first one that yields
// a value. Every chain ends in a constant, so resolution always succeeds.
package resolver

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-controller/internal/config"
	"github.com/thatsimonsguy/climate-controller/internal/model"
)

const (
	DefaultOccupiedSetpoint float64 = 19
	DefaultAwaySetpoint     float64 = 17
	DefaultOffSetpoint      float64 = 7
	DefaultHeatingLimit     float64 = 19

	DefaultHVACMode   = "heat"
	DefaultPresetMode = "manual"
)

type StateReader interface {
	State(entityID string) model.EntityState
}

// TemperatureTier yields a value or reports that it has none.
type TemperatureTier struct {
	Name    string
	Resolve func(r StateReader) (float64, bool)
}

type TemperatureChain []TemperatureTier

// Resolve returns the first tier value and the name of the tier that produced it.
func (c TemperatureChain) Resolve(r StateReader) (float64, string) {
	for _, tier := range c {
		if v, ok := tier.Resolve(r); ok {
			return v, tier.Name
		}
	}
	// chains built here always end in a constant
	return 0, ""
}

func EntityTier(name, entityID string) TemperatureTier {
	return TemperatureTier{
		Name: name,
		Resolve: func(r StateReader) (float64, bool) {
			if entityID == "" {
				return 0, false
			}
			st := r.State(entityID)
			v, ok := st.Float()
			if !ok {
				log.Debug().
					Str("entity", entityID).
					Str("state", st.Value).
					Str("tier", name).
					Msg("Override entity unreadable, falling through")
			}
			return v, ok
		},
	}
}

func FixedTier(name string, v *float64) TemperatureTier {
	return TemperatureTier{
		Name: name,
		Resolve: func(StateReader) (float64, bool) {
			if v == nil {
				return 0, false
			}
			return *v, true
		},
	}
}

func ConstantTier(v float64) TemperatureTier {
	return TemperatureTier{
		Name:    "default",
		Resolve: func(StateReader) (float64, bool) { return v, true },
	}
}

// TemperatureChainFor builds the five tier chain for a setpoint kind:
// local entity, local fixed, global entity, global fixed, default.
func TemperatureChainFor(kind model.SetpointKind, unit config.Unit, global config.Global) TemperatureChain {
	var (
		localEntity, globalEntity string
		localFixed, globalFixed   *float64
		def                       float64
	)

	switch kind {
	case model.SetpointOccupied:
		localEntity, localFixed = unit.OccupiedHeatingSetpointEntity, unit.OccupiedHeatingSetpoint
		globalEntity, globalFixed = global.OccupiedHeatingSetpointEntity, global.OccupiedHeatingSetpoint
		def = DefaultOccupiedSetpoint
	case model.SetpointAway:
		localEntity, localFixed = unit.AwayHeatingSetpointEntity, unit.AwayHeatingSetpoint
		globalEntity, globalFixed = global.AwayHeatingSetpointEntity, global.AwayHeatingSetpoint
		def = DefaultAwaySetpoint
	default:
		localEntity, localFixed = unit.OffHeatingSetpointEntity, unit.OffHeatingSetpoint
		globalEntity, globalFixed = global.OffHeatingSetpointEntity, global.OffHeatingSetpoint
		def = DefaultOffSetpoint
	}

	return TemperatureChain{
		EntityTier("local_entity", localEntity),
		FixedTier("local_fixed", localFixed),
		EntityTier("global_entity", globalEntity),
		FixedTier("global_fixed", globalFixed),
		ConstantTier(def),
	}
}

// HeatingLimitChain resolves the heating limit: unit entity, unit fixed,
// global outdoor limit entity, global outdoor limit, default.
func HeatingLimitChain(unit config.Unit, global config.Global) TemperatureChain {
	return TemperatureChain{
		EntityTier("local_entity", unit.HeatingLimitEntity),
		FixedTier("local_fixed", unit.HeatingLimit),
		EntityTier("global_entity", global.OutdoorTemperatureLimitEntity),
		FixedTier("global_fixed", global.OutdoorTemperatureLimit),
		ConstantTier(DefaultHeatingLimit),
	}
}

func ResolveTemperature(kind model.SetpointKind, unit config.Unit, global config.Global, r StateReader) float64 {
	v, tier := TemperatureChainFor(kind, unit, global).Resolve(r)
	log.Debug().
		Str("unit", unit.ID()).
		Str("setpoint", string(kind)).
		Str("tier", tier).
		Float64("value", v).
		Msg("Resolved setpoint")
	return v
}

func ResolveHeatingLimit(unit config.Unit, global config.Global, r StateReader) float64 {
	v, _ := HeatingLimitChain(unit, global).Resolve(r)
	return v
}

// ModeChain is the three tier chain for modes: local, global, default.
type ModeChain []string

func (c ModeChain) Resolve() string {
	for _, m := range c {
		if m != "" {
			return m
		}
	}
	return ""
}

func ModeChainFor(kind model.ModeKind, unit config.Unit, global config.Global) ModeChain {
	if kind == model.ModePreset {
		return ModeChain{unit.PresetMode, global.DefaultPresetMode, DefaultPresetMode}
	}
	return ModeChain{unit.HVACMode, global.DefaultHVACMode, DefaultHVACMode}
}

func ResolveMode(kind model.ModeKind, unit config.Unit, global config.Global) string {
	return ModeChainFor(kind, unit, global).Resolve()
}
