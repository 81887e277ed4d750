package unitcontroller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/climate-controller/internal/config"
	"github.com/thatsimonsguy/climate-controller/internal/entity"
	"github.com/thatsimonsguy/climate-controller/internal/eventloop"
	"github.com/thatsimonsguy/climate-controller/internal/model"
)

type call struct {
	entity string
	on     bool
	state  model.ClimateState
	value  float64
}

type fakeCommander struct {
	switches []call
	climates []call
	inputs   []call
	err      error
}

func (f *fakeCommander) SetSwitchState(_ context.Context, id string, on bool) error {
	f.switches = append(f.switches, call{entity: id, on: on})
	return f.err
}

func (f *fakeCommander) SetClimateState(_ context.Context, id string, st model.ClimateState) error {
	f.climates = append(f.climates, call{entity: id, state: st})
	return f.err
}

func (f *fakeCommander) SetInputValue(_ context.Context, id string, v float64) error {
	f.inputs = append(f.inputs, call{entity: id, value: v})
	return f.err
}

type recordingObserver struct {
	events []model.UnitEvent
}

func (r *recordingObserver) Observe(ev model.UnitEvent) {
	r.events = append(r.events, ev)
}

func ptr(v float64) *float64 { return &v }
func secs(v int) *int        { return &v }

type harness struct {
	cache *entity.Cache
	sched *eventloop.Manual
	cmd   *fakeCommander
	obs   *recordingObserver
	ctrl  *Controller
}

func newHarness(unit config.Unit, global config.Global, states map[string]string) *harness {
	h := &harness{
		cache: entity.NewCache(nil),
		sched: eventloop.NewManual(time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)),
		cmd:   &fakeCommander{},
		obs:   &recordingObserver{},
	}
	for id, v := range states {
		h.cache.Update(id, v)
	}
	h.ctrl = New(unit, global, Deps{
		Reader:    h.cache,
		Commander: h.cmd,
		Scheduler: h.sched,
		Observers: []Observer{h.obs},
	})
	return h
}

func (h *harness) set(entityID, raw string) {
	old, cur := h.cache.Update(entityID, raw)
	h.ctrl.HandleStateChange(entityID, old, cur)
}

func TestEvaluateTarget(t *testing.T) {
	climate := targetInputs{
		kind:             model.DeviceClimate,
		occupiedSetpoint: 21,
		awaySetpoint:     17,
		offSetpoint:      7,
		hvacMode:         "heat",
		presetMode:       "manual",
	}
	with := func(in targetInputs, occupied, open, allowed bool) targetInputs {
		in.occupancyConfigured = true
		in.occupied, in.open, in.heatingAllowed = occupied, open, allowed
		return in
	}
	noSensor := func(in targetInputs, open, allowed bool) targetInputs {
		in.open, in.heatingAllowed = open, allowed
		return in
	}

	tests := []struct {
		name string
		in   targetInputs
		want model.Command
	}{
		{
			name: "Switch on when occupied closed and cold",
			in:   with(targetInputs{kind: model.DeviceSwitch}, true, false, true),
			want: model.Command{Kind: model.DeviceSwitch, On: true},
		},
		{
			name: "Switch off when open even if occupied and cold",
			in:   with(targetInputs{kind: model.DeviceSwitch}, true, true, true),
			want: model.Command{Kind: model.DeviceSwitch},
		},
		{
			name: "Switch off when unoccupied",
			in:   with(targetInputs{kind: model.DeviceSwitch}, false, false, true),
			want: model.Command{Kind: model.DeviceSwitch},
		},
		{
			name: "Switch off above heating limit",
			in:   with(targetInputs{kind: model.DeviceSwitch}, true, false, false),
			want: model.Command{Kind: model.DeviceSwitch},
		},
		{
			name: "Switch without occupancy sensor heats on temperature alone",
			in:   noSensor(targetInputs{kind: model.DeviceSwitch}, false, true),
			want: model.Command{Kind: model.DeviceSwitch, On: true},
		},
		{
			name: "Switch without occupancy sensor off above heating limit",
			in:   noSensor(targetInputs{kind: model.DeviceSwitch}, false, false),
			want: model.Command{Kind: model.DeviceSwitch},
		},
		{
			name: "Climate without occupancy sensor uses away setpoint",
			in:   noSensor(climate, false, true),
			want: model.Command{Kind: model.DeviceClimate, Setpoint: 17, HVACMode: "heat", PresetMode: "manual"},
		},
		{
			name: "Climate occupied setpoint",
			in:   with(climate, true, false, true),
			want: model.Command{Kind: model.DeviceClimate, Setpoint: 21, HVACMode: "heat", PresetMode: "manual"},
		},
		{
			name: "Climate away setpoint",
			in:   with(climate, false, false, true),
			want: model.Command{Kind: model.DeviceClimate, Setpoint: 17, HVACMode: "heat", PresetMode: "manual"},
		},
		{
			name: "Climate open window uses off setpoint",
			in:   with(climate, true, true, true),
			want: model.Command{Kind: model.DeviceClimate, Setpoint: 7, HVACMode: "heat", PresetMode: "manual"},
		},
		{
			name: "Climate above heating limit uses off setpoint",
			in:   with(climate, true, false, false),
			want: model.Command{Kind: model.DeviceClimate, Setpoint: 7, HVACMode: "heat", PresetMode: "manual"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluateTarget(tt.in))
		})
	}
}

func TestController_Idempotence(t *testing.T) {
	h := newHarness(config.Unit{SwitchEntity: "switch.heater"}, config.Global{}, nil)
	h.ctrl.Start()
	h.ctrl.Recompute()
	h.ctrl.Recompute()

	require.Len(t, h.cmd.switches, 1)
	assert.True(t, h.cmd.switches[0].on)
	require.Len(t, h.obs.events, 3)
	assert.NotNil(t, h.obs.events[0].Dispatched)
	assert.Nil(t, h.obs.events[1].Dispatched)
	assert.Nil(t, h.obs.events[2].Dispatched)
}

func TestController_OpeningPrecedence(t *testing.T) {
	unit := config.Unit{
		SwitchEntity:              "switch.heater",
		OccupancyEntity:           "binary_sensor.presence",
		OpeningEntity:             "binary_sensor.window",
		ExternalTemperatureEntity: "sensor.room",
		HeatingLimit:              ptr(19),
	}
	h := newHarness(unit, config.Global{}, map[string]string{
		"binary_sensor.presence": "on",
		"binary_sensor.window":   "on",
		"sensor.room":            "5",
	})
	h.ctrl.Start()

	require.Len(t, h.cmd.switches, 1)
	assert.False(t, h.cmd.switches[0].on)
	snap := h.obs.events[0].Snapshot
	assert.True(t, snap.Occupied)
	assert.True(t, snap.Open)
	assert.True(t, snap.HeatingAllowed)
}

func TestController_OpeningDebounce(t *testing.T) {
	unit := config.Unit{
		SwitchEntity:      "switch.heater",
		OpeningEntity:     "binary_sensor.window",
		OpeningDelayOpen:  secs(300),
		OpeningDelayClose: secs(15),
	}
	h := newHarness(unit, config.Global{}, map[string]string{"binary_sensor.window": "off"})
	h.ctrl.Start()
	require.Len(t, h.cmd.switches, 1)
	assert.True(t, h.cmd.switches[0].on)

	h.set("binary_sensor.window", "on")
	h.sched.Advance(299 * time.Second)
	assert.Len(t, h.cmd.switches, 1)
	h.sched.Advance(time.Second)
	require.Len(t, h.cmd.switches, 2)
	assert.False(t, h.cmd.switches[1].on)

	h.set("binary_sensor.window", "off")
	h.sched.Advance(15 * time.Second)
	require.Len(t, h.cmd.switches, 3)
	assert.True(t, h.cmd.switches[2].on)
}

func TestController_UnknownTemperatureFailsOpen(t *testing.T) {
	unit := config.Unit{
		SwitchEntity:              "switch.heater",
		ExternalTemperatureEntity: "sensor.room",
	}
	h := newHarness(unit, config.Global{}, map[string]string{"sensor.room": "unavailable"})
	h.ctrl.Start()

	require.Len(t, h.cmd.switches, 1)
	assert.True(t, h.cmd.switches[0].on)
	assert.Nil(t, h.obs.events[0].Snapshot.Temperature)

	h.set("sensor.room", "25")
	require.Len(t, h.cmd.switches, 2)
	assert.False(t, h.cmd.switches[1].on)
}

func TestController_SwitchTurnsOnAfterOccupancyDelay(t *testing.T) {
	unit := config.Unit{
		SwitchEntity:      "switch.heater",
		OccupancyEntity:   "binary_sensor.presence",
		ToOccupiedDelay:   secs(10),
		ToUnoccupiedDelay: secs(10),
	}
	global := config.Global{OutdoorTemperatureEntity: "sensor.outdoor"}
	h := newHarness(unit, global, map[string]string{
		"binary_sensor.presence": "off",
		"sensor.outdoor":         "3",
	})
	h.ctrl.Start()
	require.Len(t, h.cmd.switches, 1)
	assert.False(t, h.cmd.switches[0].on)

	h.set("binary_sensor.presence", "on")
	h.sched.Advance(9 * time.Second)
	assert.Len(t, h.cmd.switches, 1)

	h.sched.Advance(time.Second)
	require.Len(t, h.cmd.switches, 2)
	assert.True(t, h.cmd.switches[1].on)

	h.sched.Advance(time.Minute)
	assert.Len(t, h.cmd.switches, 2)
}

func TestController_OccupancyFlapNeverCommits(t *testing.T) {
	unit := config.Unit{
		SwitchEntity:    "switch.heater",
		OccupancyEntity: "binary_sensor.presence",
	}
	h := newHarness(unit, config.Global{}, map[string]string{"binary_sensor.presence": "not_home"})
	h.ctrl.Start()

	h.set("binary_sensor.presence", "home")
	h.sched.Advance(2 * time.Second)
	h.set("binary_sensor.presence", "not_home")
	h.sched.Advance(time.Minute)

	assert.Len(t, h.cmd.switches, 1)
	assert.Equal(t, 0, h.sched.Pending())
}

func TestController_ClimateUnit(t *testing.T) {
	unit := config.Unit{
		Name:                          "living_room",
		ClimateEntity:                 "climate.living_room",
		OccupancyEntity:               "binary_sensor.presence",
		ExternalTemperatureEntity:     "sensor.living_room",
		ExternalTemperatureInput:      "number.living_room_external",
		OccupiedHeatingSetpointEntity: "input_number.living_room_comfort",
		ToUnoccupiedDelay:             secs(0),
		PresetMode:                    "comfort",
	}
	global := config.Global{
		OutdoorTemperatureEntity: "sensor.outdoor",
		OutdoorTemperatureLimit:  ptr(16),
		AwayHeatingSetpoint:      ptr(16.5),
	}
	h := newHarness(unit, global, map[string]string{
		"binary_sensor.presence":           "on",
		"sensor.living_room":               "20.4",
		"sensor.outdoor":                   "2",
		"input_number.living_room_comfort": "21.5",
	})
	h.ctrl.Start()

	require.Len(t, h.cmd.inputs, 1)
	assert.Equal(t, call{entity: "number.living_room_external", value: 20.4}, h.cmd.inputs[0])
	require.Len(t, h.cmd.climates, 1)
	assert.Equal(t, "climate.living_room", h.cmd.climates[0].entity)
	assert.Equal(t, 21.5, *h.cmd.climates[0].state.Setpoint)
	assert.Equal(t, "heat", h.cmd.climates[0].state.HVACMode)
	assert.Equal(t, "comfort", h.cmd.climates[0].state.PresetMode)

	// room sensor only feeds the device, outdoor gates the unit
	h.set("sensor.living_room", "20.9")
	require.Len(t, h.cmd.inputs, 2)
	assert.Len(t, h.cmd.climates, 1)

	h.set("input_number.living_room_comfort", "22")
	require.Len(t, h.cmd.climates, 2)
	assert.Equal(t, 22.0, *h.cmd.climates[1].state.Setpoint)

	// zero delay settles synchronously
	h.set("binary_sensor.presence", "off")
	require.Len(t, h.cmd.climates, 3)
	assert.Equal(t, 16.5, *h.cmd.climates[2].state.Setpoint)

	h.set("sensor.outdoor", "17")
	require.Len(t, h.cmd.climates, 4)
	assert.Equal(t, 7.0, *h.cmd.climates[3].state.Setpoint)
}

func TestController_ClimateUnitWithoutOccupancySensor(t *testing.T) {
	h := newHarness(config.Unit{ClimateEntity: "climate.hall"}, config.Global{}, nil)
	h.ctrl.Start()

	require.Len(t, h.cmd.climates, 1)
	assert.Equal(t, 17.0, *h.cmd.climates[0].state.Setpoint)
	snap := h.obs.events[0].Snapshot
	assert.False(t, snap.OccupancyConfigured)
	assert.False(t, snap.Occupied)
}

func TestController_ForwardsEveryExternalTemperatureEvent(t *testing.T) {
	unit := config.Unit{
		ClimateEntity:             "climate.office",
		ExternalTemperatureEntity: "sensor.office",
		ExternalTemperatureInput:  "number.office_external",
	}
	h := newHarness(unit, config.Global{}, map[string]string{"sensor.office": "19.5"})
	h.ctrl.Start()
	require.Len(t, h.cmd.inputs, 1)

	st := h.cache.State("sensor.office")
	h.ctrl.HandleStateChange("sensor.office", st, st)
	h.ctrl.HandleStateChange("sensor.office", st, st)

	require.Len(t, h.cmd.inputs, 3)
	assert.Equal(t, call{entity: "number.office_external", value: 19.5}, h.cmd.inputs[2])
	assert.Len(t, h.cmd.climates, 1)
}

func TestController_FailedDispatchIsRetried(t *testing.T) {
	h := newHarness(config.Unit{SwitchEntity: "switch.heater"}, config.Global{}, nil)
	h.cmd.err = errors.New("host unreachable")
	h.ctrl.Start()
	require.Len(t, h.obs.events, 1)
	assert.Error(t, h.obs.events[0].Err)
	assert.Nil(t, h.obs.events[0].Snapshot.LastEmitted)

	h.cmd.err = nil
	h.ctrl.Recompute()
	assert.Len(t, h.cmd.switches, 2)
	require.NotNil(t, h.obs.events[1].Snapshot.LastEmitted)
	assert.True(t, h.obs.events[1].Snapshot.LastEmitted.On)
}

func TestController_StopCancelsTimers(t *testing.T) {
	unit := config.Unit{SwitchEntity: "switch.heater", OccupancyEntity: "binary_sensor.presence"}
	h := newHarness(unit, config.Global{}, map[string]string{"binary_sensor.presence": "off"})
	h.ctrl.Start()
	h.set("binary_sensor.presence", "on")
	assert.Equal(t, 1, h.sched.Pending())

	h.ctrl.Stop()
	h.sched.Advance(time.Minute)
	assert.Len(t, h.cmd.switches, 1)

	// events after stop are ignored
	h.set("binary_sensor.presence", "off")
	assert.Len(t, h.cmd.switches, 1)
}

func TestController_Entities(t *testing.T) {
	unit := config.Unit{
		SwitchEntity:       "switch.heater",
		OccupancyEntity:    "binary_sensor.presence",
		HeatingLimitEntity: "input_number.limit",
	}
	global := config.Global{OutdoorTemperatureEntity: "sensor.outdoor"}
	c := New(unit, global, Deps{})
	assert.Equal(t, []string{"binary_sensor.presence", "input_number.limit", "sensor.outdoor"}, c.Entities())
	assert.Equal(t, "switch.heater", c.Name())
}

func TestLogDispatched_FieldsFollowDeviceKind(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	decode := func() map[string]interface{} {
		var fields map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
		buf.Reset()
		return fields
	}

	logDispatched("bathroom", "switch.bathroom", model.Command{Kind: model.DeviceSwitch, On: true})
	fields := decode()
	assert.Equal(t, true, fields["on"])
	assert.NotContains(t, fields, "setpoint")
	assert.NotContains(t, fields, "hvac_mode")

	logDispatched("hall", "climate.hall", model.Command{Kind: model.DeviceClimate, Setpoint: 17, HVACMode: "heat", PresetMode: "manual"})
	fields = decode()
	assert.Equal(t, 17.0, fields["setpoint"])
	assert.Equal(t, "heat", fields["hvac_mode"])
	assert.Equal(t, "manual", fields["preset_mode"])
	assert.NotContains(t, fields, "on")
}
