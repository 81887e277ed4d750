package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

type recordingPersister struct {
	saved []string
	err   error
}

func (r *recordingPersister) SaveEntityState(entityID string, state model.EntityState, _ time.Time) error {
	r.saved = append(r.saved, entityID+"="+state.Value)
	return r.err
}

func TestCache_UnknownEntityIsUnavailable(t *testing.T) {
	c := NewCache(nil)
	st := c.State("sensor.nothing")
	assert.False(t, st.Available)
	_, ok := st.Float()
	assert.False(t, ok)
}

func TestCache_Update(t *testing.T) {
	p := &recordingPersister{}
	c := NewCache(p)

	old, cur := c.Update("sensor.room", "21.5")
	assert.False(t, old.Available)
	assert.True(t, cur.Available)
	v, ok := c.State("sensor.room").Float()
	assert.True(t, ok)
	assert.Equal(t, 21.5, v)

	old, cur = c.Update("sensor.room", "unavailable")
	assert.Equal(t, "21.5", old.Value)
	assert.False(t, cur.Available)

	// unchanged values are not written again
	c.Update("sensor.room", "unavailable")
	assert.Equal(t, []string{"sensor.room=21.5", "sensor.room=unavailable"}, p.saved)
}

func TestCache_PersistFailureKeepsState(t *testing.T) {
	c := NewCache(&recordingPersister{err: errors.New("disk full")})
	c.Update("binary_sensor.window", "on")
	assert.True(t, c.State("binary_sensor.window").IsOneOf("on"))
}

func TestCache_Load(t *testing.T) {
	p := &recordingPersister{}
	c := NewCache(p)
	c.Load([]model.EntityRecord{
		{EntityID: "sensor.outdoor", State: model.NewEntityState("4.2")},
		{EntityID: "binary_sensor.occupancy", State: model.NewEntityState("off")},
	})

	assert.Equal(t, 2, c.Len())
	assert.Empty(t, p.saved)
	assert.Equal(t, "4.2", c.State("sensor.outdoor").Value)
}

func TestNewEntityState(t *testing.T) {
	tests := []struct {
		raw       string
		available bool
	}{
		{"on", true},
		{" 19.5 ", true},
		{"unknown", false},
		{"Unavailable", false},
		{"", false},
		{"None", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.available, model.NewEntityState(tt.raw).Available, "raw=%q", tt.raw)
	}
	assert.True(t, model.NewEntityState("Home").IsOneOf("on", "home"))
}
