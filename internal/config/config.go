package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

const (
	DefaultToOccupiedDelay   = 10
	DefaultToUnoccupiedDelay = 10
	DefaultOpeningDelayOpen  = 300
	DefaultOpeningDelayClose = 15
)

type Global struct {
	OutdoorTemperatureEntity      string   `yaml:"outdoor_temperature_entity"`
	OutdoorTemperatureLimit       *float64 `yaml:"outdoor_temperature_limit"`
	OutdoorTemperatureLimitEntity string   `yaml:"outdoor_temperature_limit_entity"`

	OccupiedHeatingSetpoint       *float64 `yaml:"occupied_heating_setpoint"`
	OccupiedHeatingSetpointEntity string   `yaml:"occupied_heating_setpoint_entity"`
	AwayHeatingSetpoint           *float64 `yaml:"away_heating_setpoint"`
	AwayHeatingSetpointEntity     string   `yaml:"away_heating_setpoint_entity"`
	OffHeatingSetpoint            *float64 `yaml:"off_heating_setpoint"`
	OffHeatingSetpointEntity      string   `yaml:"off_heating_setpoint_entity"`

	DefaultHVACMode   string `yaml:"default_hvac_mode"`
	DefaultPresetMode string `yaml:"default_preset_mode"`

	Debug bool `yaml:"debug"`
}

type Unit struct {
	Name          string `yaml:"name"`
	ClimateEntity string `yaml:"climate_entity"`
	SwitchEntity  string `yaml:"switch_entity"`

	OccupancyEntity           string `yaml:"occupancy_entity"`
	OpeningEntity             string `yaml:"opening_entity"`
	ExternalTemperatureEntity string `yaml:"external_temperature_entity"`
	ExternalTemperatureInput  string `yaml:"external_temperature_input"`

	HeatingLimit       *float64 `yaml:"heating_limit"`
	HeatingLimitEntity string   `yaml:"heating_limit_entity"`

	OccupiedHeatingSetpoint       *float64 `yaml:"occupied_heating_setpoint"`
	OccupiedHeatingSetpointEntity string   `yaml:"occupied_heating_setpoint_entity"`
	AwayHeatingSetpoint           *float64 `yaml:"away_heating_setpoint"`
	AwayHeatingSetpointEntity     string   `yaml:"away_heating_setpoint_entity"`
	OffHeatingSetpoint            *float64 `yaml:"off_heating_setpoint"`
	OffHeatingSetpointEntity      string   `yaml:"off_heating_setpoint_entity"`

	// delays in seconds, nil means the default
	ToOccupiedDelay   *int `yaml:"to_occupied_delay"`
	ToUnoccupiedDelay *int `yaml:"to_unoccupied_delay"`
	OpeningDelayOpen  *int `yaml:"opening_delay_open"`
	OpeningDelayClose *int `yaml:"opening_delay_close"`

	HVACMode   string `yaml:"hvac_mode"`
	PresetMode string `yaml:"preset_mode"`
}

type Relay struct {
	Entity     string `yaml:"entity"`
	Chip       string `yaml:"chip"`
	Line       int    `yaml:"line"`
	ActiveHigh bool   `yaml:"active_high"`
}

type Climate struct {
	Global   `yaml:",inline"`
	Climates []Unit  `yaml:"climates"`
	Relays   []Relay `yaml:"relays"`
}

// Device returns the controlled device with its kind.
func (u Unit) Device() model.Device {
	if u.ClimateEntity != "" {
		return model.Device{ID: u.ClimateEntity, Kind: model.DeviceClimate}
	}
	return model.Device{ID: u.SwitchEntity, Kind: model.DeviceSwitch}
}

// ID is the stable identifier of the unit, its name or else its device id.
func (u Unit) ID() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Device().ID
}

func (u Unit) Delays() (toOccupied, toUnoccupied, openingOpen, openingClose time.Duration) {
	return seconds(u.ToOccupiedDelay, DefaultToOccupiedDelay),
		seconds(u.ToUnoccupiedDelay, DefaultToUnoccupiedDelay),
		seconds(u.OpeningDelayOpen, DefaultOpeningDelayOpen),
		seconds(u.OpeningDelayClose, DefaultOpeningDelayClose)
}

func seconds(v *int, def int) time.Duration {
	if v == nil {
		return time.Duration(def) * time.Second
	}
	return time.Duration(*v) * time.Second
}

// LoadClimate reads and strictly decodes the climate config file.
func LoadClimate(path string) (*Climate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read climate config: %w", err)
	}
	return ParseClimate(data)
}

func ParseClimate(data []byte) (*Climate, error) {
	var cfg Climate
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse climate config: %w", err)
	}
	if err := cfg.validateGlobal(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LogLevel is the level requested by the climate config, if any.
func (c *Climate) LogLevel(fallback zerolog.Level) zerolog.Level {
	if c.Debug {
		return zerolog.DebugLevel
	}
	return fallback
}

func (c *Climate) validateGlobal() error {
	var problems []string

	usedLines := map[string]string{}
	usedEntities := map[string]bool{}
	for i, r := range c.Relays {
		if r.Entity == "" {
			problems = append(problems, fmt.Sprintf("relays[%d]: entity is required", i))
			continue
		}
		if usedEntities[r.Entity] {
			problems = append(problems, fmt.Sprintf("relays[%d]: entity %s mapped twice", i, r.Entity))
		}
		usedEntities[r.Entity] = true

		if r.Chip == "" {
			problems = append(problems, fmt.Sprintf("relays[%d]: chip is required", i))
			continue
		}
		key := fmt.Sprintf("%s:%d", r.Chip, r.Line)
		if other, exists := usedLines[key]; exists {
			problems = append(problems, fmt.Sprintf("relays %s and %s both use line %s", r.Entity, other, key))
		} else {
			usedLines[key] = r.Entity
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid climate config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidUnits splits the configured units into those that can run and the
// reasons the others were rejected. A rejected unit never stops the others.
func (c *Climate) ValidUnits() ([]Unit, []error) {
	var (
		valid    []Unit
		rejected []error
		seenIDs  = map[string]bool{}
		seenDevs = map[string]bool{}
	)

	for i, u := range c.Climates {
		var problems []error

		switch {
		case u.ClimateEntity == "" && u.SwitchEntity == "":
			problems = append(problems, errors.New("one of climate_entity or switch_entity is required"))
		case u.ClimateEntity != "" && u.SwitchEntity != "":
			problems = append(problems, errors.New("climate_entity and switch_entity are mutually exclusive"))
		}

		if u.Device().Kind == model.DeviceClimate {
			if u.ExternalTemperatureEntity != "" && u.ExternalTemperatureInput == "" {
				problems = append(problems, errors.New("external_temperature_entity requires external_temperature_input"))
			}
			if u.ExternalTemperatureInput != "" && u.ExternalTemperatureEntity == "" {
				problems = append(problems, errors.New("external_temperature_input requires external_temperature_entity"))
			}
		} else if u.ExternalTemperatureInput != "" {
			problems = append(problems, errors.New("external_temperature_input is only valid for climate_entity units"))
		}

		for _, d := range []struct {
			name  string
			value *int
		}{
			{"to_occupied_delay", u.ToOccupiedDelay},
			{"to_unoccupied_delay", u.ToUnoccupiedDelay},
			{"opening_delay_open", u.OpeningDelayOpen},
			{"opening_delay_close", u.OpeningDelayClose},
		} {
			if d.value != nil && *d.value < 0 {
				problems = append(problems, fmt.Errorf("%s must not be negative", d.name))
			}
		}

		id := u.ID()
		if id != "" && seenIDs[id] {
			problems = append(problems, fmt.Errorf("unit name %s is already used", id))
		}
		dev := u.Device().ID
		if dev != "" && seenDevs[dev] {
			problems = append(problems, fmt.Errorf("device %s is already controlled by another unit", dev))
		}

		if len(problems) > 0 {
			label := id
			if label == "" {
				label = fmt.Sprintf("climates[%d]", i)
			}
			rejected = append(rejected, fmt.Errorf("unit %s rejected: %w", label, errors.Join(problems...)))
			continue
		}

		seenIDs[id] = true
		seenDevs[dev] = true
		valid = append(valid, u)
	}

	return valid, rejected
}
