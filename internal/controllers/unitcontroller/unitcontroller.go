package unitcontroller

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-controller/internal/config"
	"github.com/thatsimonsguy/climate-controller/internal/debounce"
	"github.com/thatsimonsguy/climate-controller/internal/eventloop"
	"github.com/thatsimonsguy/climate-controller/internal/heatinglimit"
	"github.com/thatsimonsguy/climate-controller/internal/model"
	"github.com/thatsimonsguy/climate-controller/internal/resolver"
)

const DefaultCommandTimeout = 10 * time.Second

var (
	occupiedValues = []string{"on", "home", "true"}
	openValues     = []string{"on", "open", "true"}
)

// Commander sends target states to devices on the host.
type Commander interface {
	SetSwitchState(ctx context.Context, entityID string, on bool) error
	SetClimateState(ctx context.Context, entityID string, state model.ClimateState) error
	SetInputValue(ctx context.Context, entityID string, value float64) error
}

// Observer is notified after every recompute pass.
type Observer interface {
	Observe(ev model.UnitEvent)
}

type Deps struct {
	Reader         resolver.StateReader
	Commander      Commander
	Scheduler      eventloop.Scheduler
	Observers      []Observer
	CommandTimeout time.Duration
}

type role int

const (
	roleOccupancy role = iota
	roleOpening
	roleExternalTemperature
	roleOutdoorTemperature
	roleOverride
)

// Controller drives a single climate unit. All methods must be called from
// the event loop goroutine.
type Controller struct {
	name   string
	unit   config.Unit
	global config.Global
	device model.Device
	deps   Deps

	roles map[string][]role

	occupancy *debounce.Signal
	opening   *debounce.Signal

	lastEmitted *model.Command
	started     bool
}

func New(unit config.Unit, global config.Global, deps Deps) *Controller {
	if deps.CommandTimeout <= 0 {
		deps.CommandTimeout = DefaultCommandTimeout
	}
	c := &Controller{
		name:   unit.ID(),
		unit:   unit,
		global: global,
		device: unit.Device(),
		deps:   deps,
		roles:  make(map[string][]role),
	}

	c.addRole(unit.OccupancyEntity, roleOccupancy)
	c.addRole(unit.OpeningEntity, roleOpening)
	c.addRole(unit.ExternalTemperatureEntity, roleExternalTemperature)
	c.addRole(global.OutdoorTemperatureEntity, roleOutdoorTemperature)
	for _, id := range []string{
		unit.HeatingLimitEntity,
		unit.OccupiedHeatingSetpointEntity,
		unit.AwayHeatingSetpointEntity,
		unit.OffHeatingSetpointEntity,
		global.OutdoorTemperatureLimitEntity,
		global.OccupiedHeatingSetpointEntity,
		global.AwayHeatingSetpointEntity,
		global.OffHeatingSetpointEntity,
	} {
		c.addRole(id, roleOverride)
	}
	return c
}

func (c *Controller) addRole(entityID string, r role) {
	if entityID == "" {
		return
	}
	c.roles[entityID] = append(c.roles[entityID], r)
}

func (c *Controller) Name() string {
	return c.name
}

func (c *Controller) Device() model.Device {
	return c.device
}

// Entities lists every entity whose changes this controller reacts to.
func (c *Controller) Entities() []string {
	ids := make([]string, 0, len(c.roles))
	for id := range c.roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start seeds the debounced signals from the current entity states, forwards
// the external temperature and runs the first recompute.
func (c *Controller) Start() {
	toOccupied, toUnoccupied, openingOpen, openingClose := c.unit.Delays()

	if c.unit.OccupancyEntity != "" {
		initial := c.deps.Reader.State(c.unit.OccupancyEntity).IsOneOf(occupiedValues...)
		c.occupancy = debounce.NewSignal(initial,
			debounce.NewTimer(c.name+"/to_occupied", toOccupied, c.deps.Scheduler),
			debounce.NewTimer(c.name+"/to_unoccupied", toUnoccupied, c.deps.Scheduler),
			func(stable bool) {
				log.Info().Str("unit", c.name).Bool("occupied", stable).Msg("Occupancy settled")
				c.Recompute()
			})
	}
	if c.unit.OpeningEntity != "" {
		initial := c.deps.Reader.State(c.unit.OpeningEntity).IsOneOf(openValues...)
		c.opening = debounce.NewSignal(initial,
			debounce.NewTimer(c.name+"/opening_open", openingOpen, c.deps.Scheduler),
			debounce.NewTimer(c.name+"/opening_close", openingClose, c.deps.Scheduler),
			func(stable bool) {
				log.Info().Str("unit", c.name).Bool("open", stable).Msg("Opening settled")
				c.Recompute()
			})
	}
	c.started = true

	log.Info().
		Str("unit", c.name).
		Str("device", c.device.ID).
		Str("kind", string(c.device.Kind)).
		Dur("to_occupied", toOccupied).
		Dur("to_unoccupied", toUnoccupied).
		Dur("opening_open", openingOpen).
		Dur("opening_close", openingClose).
		Msg("Starting unit controller")

	if c.unit.ExternalTemperatureEntity != "" {
		c.forwardExternalTemperature(c.deps.Reader.State(c.unit.ExternalTemperatureEntity))
	}
	c.Recompute()
}

// Stop cancels pending debounce timers. No further commands are sent.
func (c *Controller) Stop() {
	if c.occupancy != nil {
		c.occupancy.Stop()
	}
	if c.opening != nil {
		c.opening.Stop()
	}
	c.started = false
}

// HandleStateChange reacts to a change of one of the controller's entities.
// The entity cache must already hold the new state.
func (c *Controller) HandleStateChange(entityID string, old, new model.EntityState) {
	if !c.started {
		return
	}
	recompute := false
	for _, r := range c.roles[entityID] {
		switch r {
		case roleOccupancy:
			c.occupancy.Set(new.IsOneOf(occupiedValues...))
		case roleOpening:
			c.opening.Set(new.IsOneOf(openValues...))
		case roleExternalTemperature:
			c.forwardExternalTemperature(new)
			recompute = true
		case roleOutdoorTemperature, roleOverride:
			recompute = true
		}
	}
	if recompute {
		c.Recompute()
	}
}

func (c *Controller) forwardExternalTemperature(st model.EntityState) {
	if c.device.Kind != model.DeviceClimate || c.unit.ExternalTemperatureInput == "" {
		return
	}
	v, ok := st.Float()
	if !ok {
		log.Debug().
			Str("unit", c.name).
			Str("sensor", c.unit.ExternalTemperatureEntity).
			Msg("External temperature unavailable, not forwarding")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.deps.CommandTimeout)
	defer cancel()
	if err := c.deps.Commander.SetInputValue(ctx, c.unit.ExternalTemperatureInput, v); err != nil {
		log.Error().Err(err).
			Str("unit", c.name).
			Str("input", c.unit.ExternalTemperatureInput).
			Msg("Failed to forward external temperature")
	}
}

// Recompute derives the target command from current inputs and dispatches it
// when it differs from the last command the device accepted. It does nothing
// before Start or after Stop.
func (c *Controller) Recompute() {
	if !c.started {
		return
	}
	snap := c.snapshot()
	ev := model.UnitEvent{Snapshot: snap}

	if c.lastEmitted == nil || *c.lastEmitted != snap.Target {
		target := snap.Target
		ev.Dispatched = &target
		if err := c.dispatch(target); err != nil {
			ev.Err = err
			log.Error().Err(err).Str("unit", c.name).Str("device", c.device.ID).Msg("Failed to dispatch command")
		} else {
			c.lastEmitted = &target
			logDispatched(c.name, c.device.ID, target)
		}
	}

	if c.lastEmitted != nil {
		last := *c.lastEmitted
		ev.Snapshot.LastEmitted = &last
	}
	for _, o := range c.deps.Observers {
		o.Observe(ev)
	}
}

func logDispatched(unit, device string, cmd model.Command) {
	ev := log.Info().Str("unit", unit).Str("device", device)
	switch cmd.Kind {
	case model.DeviceSwitch:
		ev = ev.Bool("on", cmd.On)
	case model.DeviceClimate:
		ev = ev.Float64("setpoint", cmd.Setpoint).
			Str("hvac_mode", cmd.HVACMode).
			Str("preset_mode", cmd.PresetMode)
	}
	ev.Msg("Command dispatched")
}

func (c *Controller) snapshot() model.UnitSnapshot {
	snap := model.UnitSnapshot{
		Unit:   c.name,
		Device: c.device,
	}
	if c.occupancy != nil {
		snap.OccupancyConfigured = true
		snap.RawOccupied = c.occupancy.Raw()
		snap.Occupied = c.occupancy.Stable()
	}
	if c.opening != nil {
		snap.OpeningConfigured = true
		snap.RawOpen = c.opening.Raw()
		snap.Open = c.opening.Stable()
	}

	limit := resolver.ResolveHeatingLimit(c.unit, c.global, c.deps.Reader)
	sensor := c.gateSensor()
	var st model.EntityState
	if sensor != "" {
		st = c.deps.Reader.State(sensor)
	}
	gate := heatinglimit.Evaluate(sensor, st, limit)
	snap.Temperature = gate.TemperaturePtr()
	snap.HeatingLimit = limit
	snap.HeatingAllowed = gate.Allowed

	in := targetInputs{
		kind:                c.device.Kind,
		occupancyConfigured: snap.OccupancyConfigured,
		occupied:            snap.Occupied,
		open:                snap.Open,
		heatingAllowed:      gate.Allowed,
	}
	if c.device.Kind == model.DeviceClimate {
		in.occupiedSetpoint = resolver.ResolveTemperature(model.SetpointOccupied, c.unit, c.global, c.deps.Reader)
		in.awaySetpoint = resolver.ResolveTemperature(model.SetpointAway, c.unit, c.global, c.deps.Reader)
		in.offSetpoint = resolver.ResolveTemperature(model.SetpointOff, c.unit, c.global, c.deps.Reader)
		in.hvacMode = resolver.ResolveMode(model.ModeHVAC, c.unit, c.global)
		in.presetMode = resolver.ResolveMode(model.ModePreset, c.unit, c.global)
	}
	snap.Target = evaluateTarget(in)
	if c.deps.Scheduler != nil {
		snap.UpdatedAt = c.deps.Scheduler.Now()
	}
	return snap
}

// gateSensor picks the temperature checked against the heating limit. Switch
// units prefer their own sensor, climate units regulate room temperature
// themselves and are gated on the outdoor temperature only.
func (c *Controller) gateSensor() string {
	if c.device.Kind == model.DeviceSwitch && c.unit.ExternalTemperatureEntity != "" {
		return c.unit.ExternalTemperatureEntity
	}
	return c.global.OutdoorTemperatureEntity
}

func (c *Controller) dispatch(cmd model.Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.deps.CommandTimeout)
	defer cancel()

	switch cmd.Kind {
	case model.DeviceSwitch:
		return c.deps.Commander.SetSwitchState(ctx, c.device.ID, cmd.On)
	case model.DeviceClimate:
		setpoint := cmd.Setpoint
		return c.deps.Commander.SetClimateState(ctx, c.device.ID, model.ClimateState{
			Setpoint:   &setpoint,
			HVACMode:   cmd.HVACMode,
			PresetMode: cmd.PresetMode,
		})
	}
	return fmt.Errorf("unknown device kind %q", cmd.Kind)
}

type targetInputs struct {
	kind                model.DeviceKind
	occupancyConfigured bool
	occupied            bool
	open                bool
	heatingAllowed      bool

	occupiedSetpoint float64
	awaySetpoint     float64
	offSetpoint      float64
	hvacMode         string
	presetMode       string
}

// evaluateTarget applies the decision rules. An open window always wins, then
// the heating limit, then occupancy. Without an occupancy sensor a switch
// unit is gated by temperature alone and a climate unit holds the away
// setpoint.
func evaluateTarget(in targetInputs) model.Command {
	if in.kind == model.DeviceSwitch {
		return model.Command{
			Kind: model.DeviceSwitch,
			On:   (in.occupied || !in.occupancyConfigured) && !in.open && in.heatingAllowed,
		}
	}

	cmd := model.Command{
		Kind:       model.DeviceClimate,
		HVACMode:   in.hvacMode,
		PresetMode: in.presetMode,
	}
	switch {
	case in.open, !in.heatingAllowed:
		cmd.Setpoint = in.offSetpoint
	case in.occupied && in.occupancyConfigured:
		cmd.Setpoint = in.occupiedSetpoint
	default:
		cmd.Setpoint = in.awaySetpoint
	}
	return cmd
}
