package model

import (
	"strconv"
	"strings"
	"time"
)

type DeviceKind string

const (
	DeviceClimate DeviceKind = "climate"
	DeviceSwitch  DeviceKind = "switch"
)

type SetpointKind string

const (
	SetpointOccupied SetpointKind = "occupied"
	SetpointAway     SetpointKind = "away"
	SetpointOff      SetpointKind = "off"
)

type ModeKind string

const (
	ModeHVAC   ModeKind = "hvac_mode"
	ModePreset ModeKind = "preset_mode"
)

// Raw entity values the host reports when it has no usable reading.
const (
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

// EntityState is the last value the host reported for an entity.
type EntityState struct {
	Value     string
	Available bool
}

// NewEntityState classifies a raw host value.
func NewEntityState(raw string) EntityState {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "", StateUnknown, StateUnavailable, "none":
		return EntityState{Value: v}
	}
	return EntityState{Value: v, Available: true}
}

// Float returns the numeric value of the state, false when unavailable or non-numeric.
func (s EntityState) Float() (float64, bool) {
	if !s.Available {
		return 0, false
	}
	f, err := strconv.ParseFloat(s.Value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IsOneOf reports whether the state is available and matches one of the values, ignoring case.
func (s EntityState) IsOneOf(values ...string) bool {
	if !s.Available {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(s.Value, v) {
			return true
		}
	}
	return false
}

type Device struct {
	ID   string     `json:"id"`
	Kind DeviceKind `json:"kind"`
}

// Command is the full target state for a device. Switch commands only use On,
// climate commands only use the setpoint and modes. Commands are comparable so
// the last emitted one can be checked for equality.
type Command struct {
	Kind       DeviceKind `json:"kind"`
	On         bool       `json:"on,omitempty"`
	Setpoint   float64    `json:"setpoint,omitempty"`
	HVACMode   string     `json:"hvac_mode,omitempty"`
	PresetMode string     `json:"preset_mode,omitempty"`
}

type ClimateState struct {
	Setpoint   *float64
	HVACMode   string
	PresetMode string
}

type UnitSnapshot struct {
	Unit                string    `json:"unit"`
	Device              Device    `json:"device"`
	OccupancyConfigured bool      `json:"occupancy_configured"`
	RawOccupied         bool      `json:"raw_occupied"`
	Occupied            bool      `json:"occupied"`
	OpeningConfigured   bool      `json:"opening_configured"`
	RawOpen             bool      `json:"raw_open"`
	Open                bool      `json:"open"`
	Temperature         *float64  `json:"temperature,omitempty"`
	HeatingLimit        float64   `json:"heating_limit"`
	HeatingAllowed      bool      `json:"heating_allowed"`
	Target              Command   `json:"target"`
	LastEmitted         *Command  `json:"last_emitted,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// UnitEvent is produced by every recompute pass. Dispatched is set when a
// command was sent to the device during the pass, Err when that send failed.
type UnitEvent struct {
	Snapshot   UnitSnapshot
	Dispatched *Command
	Err        error
}

type EntityRecord struct {
	EntityID  string
	State     EntityState
	UpdatedAt time.Time
}

type CommandRecord struct {
	Unit      string
	Device    string
	Command   Command
	EmittedAt time.Time
}
