package heatinglimit

import (
	"github.com/thatsimonsguy/climate-controller/internal/model"
)

// AllowsHeating reports whether heating is thermally justified: the measured
// temperature must be below the limit. An unknown temperature allows heating,
// a faulty sensor must never leave a room unheated.
func AllowsHeating(temperature float64, known bool, limit float64) bool {
	if !known {
		return true
	}
	return temperature < limit
}

// Decision is the outcome of checking a sensor against a limit.
type Decision struct {
	Sensor      string
	Temperature float64
	Known       bool
	Limit       float64
	Allowed     bool
}

// Evaluate reads the sensor state and applies AllowsHeating. An empty sensor
// id means no sensor is configured and is treated as an unknown temperature.
func Evaluate(sensor string, state model.EntityState, limit float64) Decision {
	d := Decision{Sensor: sensor, Limit: limit}
	if sensor != "" {
		d.Temperature, d.Known = state.Float()
	}
	d.Allowed = AllowsHeating(d.Temperature, d.Known, limit)
	return d
}

// TemperaturePtr returns the temperature for snapshots, nil when unknown.
func (d Decision) TemperaturePtr() *float64 {
	if !d.Known {
		return nil
	}
	t := d.Temperature
	return &t
}
