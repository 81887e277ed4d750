package status

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

func TestTracker(t *testing.T) {
	start := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	tr := NewTracker(start)
	tr.SetConnectionCheck(func() bool { return true })
	tr.SetRejected([]error{errors.New("unit attic rejected: no device")})

	cmd := model.Command{Kind: model.DeviceSwitch, On: true}
	tr.Observe(model.UnitEvent{Snapshot: model.UnitSnapshot{Unit: "office"}, Dispatched: &cmd})
	tr.Observe(model.UnitEvent{Snapshot: model.UnitSnapshot{Unit: "bathroom"}, Dispatched: &cmd, Err: errors.New("timeout")})

	units := tr.Units()
	assert.Equal(t, "bathroom", units[0].Unit)
	assert.Equal(t, "office", units[1].Unit)

	_, ok := tr.Unit("office")
	assert.True(t, ok)
	_, ok = tr.Unit("attic")
	assert.False(t, ok)

	h := tr.Health(start.Add(90 * time.Second))
	assert.Equal(t, "1m30s", h.Uptime)
	assert.Equal(t, 2, h.Units)
	assert.Equal(t, []string{"bathroom"}, h.FailingUnits)
	assert.Len(t, h.Rejected, 1)
	assert.True(t, h.MQTTConnected)

	// a pass without a dispatch keeps the failure flag
	tr.Observe(model.UnitEvent{Snapshot: model.UnitSnapshot{Unit: "bathroom"}})
	assert.Equal(t, []string{"bathroom"}, tr.Health(start).FailingUnits)

	tr.Observe(model.UnitEvent{Snapshot: model.UnitSnapshot{Unit: "bathroom"}, Dispatched: &cmd})
	assert.Empty(t, tr.Health(start).FailingUnits)
}
