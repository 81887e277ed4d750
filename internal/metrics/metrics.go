// Package metrics turns unit events into Prometheus series and mirrors the
// gauges to DogStatsD when a client is configured.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thatsimonsguy/climate-controller/internal/datadog"
	"github.com/thatsimonsguy/climate-controller/internal/model"
)

type Metrics struct {
	recomputes     *prometheus.CounterVec
	commands       *prometheus.CounterVec
	occupied       *prometheus.GaugeVec
	open           *prometheus.GaugeVec
	heatingAllowed *prometheus.GaugeVec
	heatingLimit   *prometheus.GaugeVec
	temperature    *prometheus.GaugeVec
	setpoint       *prometheus.GaugeVec
	switchOn       *prometheus.GaugeVec

	dd *datadog.Client
}

func New(reg prometheus.Registerer, dd *datadog.Client) *Metrics {
	unit := []string{"unit"}
	m := &Metrics{
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate",
			Name:      "recomputes_total",
			Help:      "Recompute passes per unit",
		}, unit),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate",
			Name:      "commands_total",
			Help:      "Device commands dispatched per unit and result",
		}, []string{"unit", "result"}),
		occupied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "climate",
			Name:      "occupied_binary",
			Help:      "Debounced occupancy",
		}, unit),
		open: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "climate",
			Name:      "opening_open_binary",
			Help:      "Debounced opening state",
		}, unit),
		heatingAllowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "climate",
			Name:      "heating_allowed_binary",
			Help:      "Heating limit gate result",
		}, unit),
		heatingLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "climate",
			Name:      "heating_limit_celsius",
			Help:      "Resolved heating limit",
		}, unit),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "climate",
			Name:      "gate_temperature_celsius",
			Help:      "Temperature checked against the heating limit",
		}, unit),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "climate",
			Name:      "target_setpoint_celsius",
			Help:      "Target setpoint of climate units",
		}, unit),
		switchOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "climate",
			Name:      "target_switch_on_binary",
			Help:      "Target state of switch units",
		}, unit),
		dd: dd,
	}

	reg.MustRegister(
		m.recomputes,
		m.commands,
		m.occupied,
		m.open,
		m.heatingAllowed,
		m.heatingLimit,
		m.temperature,
		m.setpoint,
		m.switchOn,
	)
	return m
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Observe records one recompute pass.
func (m *Metrics) Observe(ev model.UnitEvent) {
	s := ev.Snapshot
	unitTag := fmt.Sprintf("unit:%s", s.Unit)

	m.recomputes.WithLabelValues(s.Unit).Inc()
	m.gauge(m.occupied, "unit.occupied", s.Unit, boolFloat(s.Occupied), unitTag)
	m.gauge(m.open, "unit.open", s.Unit, boolFloat(s.Open), unitTag)
	m.gauge(m.heatingAllowed, "unit.heating_allowed", s.Unit, boolFloat(s.HeatingAllowed), unitTag)
	m.gauge(m.heatingLimit, "unit.heating_limit", s.Unit, s.HeatingLimit, unitTag)
	if s.Temperature != nil {
		m.gauge(m.temperature, "unit.temperature", s.Unit, *s.Temperature, unitTag, "component:sensor")
	}

	switch s.Target.Kind {
	case model.DeviceClimate:
		m.gauge(m.setpoint, "unit.setpoint", s.Unit, s.Target.Setpoint, unitTag)
	case model.DeviceSwitch:
		m.gauge(m.switchOn, "unit.switch_on", s.Unit, boolFloat(s.Target.On), unitTag)
	}

	if ev.Dispatched == nil {
		return
	}
	result := "ok"
	if ev.Err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(s.Unit, result).Inc()
	m.dd.Incr("unit.commands", unitTag, "result:"+result)
}

func (m *Metrics) gauge(g *prometheus.GaugeVec, ddName, unit string, v float64, tags ...string) {
	g.WithLabelValues(unit).Set(v)
	m.dd.Gauge(ddName, v, tags...)
}
