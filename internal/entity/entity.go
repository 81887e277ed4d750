// Package entity caches the last reported state of every host entity so that
// controllers can read values synchronously. The cache is owned by the event
// loop goroutine and is not safe for concurrent use.
package entity

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

// Persister stores the latest state of an entity so it survives restarts.
type Persister interface {
	SaveEntityState(entityID string, state model.EntityState, at time.Time) error
}

type Cache struct {
	states  map[string]model.EntityState
	persist Persister
	now     func() time.Time
}

func NewCache(persist Persister) *Cache {
	return &Cache{
		states:  make(map[string]model.EntityState),
		persist: persist,
		now:     time.Now,
	}
}

// State returns the cached state. Entities never reported read as unavailable.
func (c *Cache) State(entityID string) model.EntityState {
	return c.states[entityID]
}

// Update records a raw value and returns the previous and new state.
func (c *Cache) Update(entityID, raw string) (model.EntityState, model.EntityState) {
	old := c.states[entityID]
	st := model.NewEntityState(raw)
	c.states[entityID] = st

	if c.persist != nil && st != old {
		if err := c.persist.SaveEntityState(entityID, st, c.now()); err != nil {
			log.Warn().Err(err).Str("entity", entityID).Msg("Failed to persist entity state")
		}
	}
	return old, st
}

// Load warms the cache from stored records without persisting them again.
func (c *Cache) Load(records []model.EntityRecord) {
	for _, r := range records {
		c.states[r.EntityID] = r.State
	}
	log.Debug().Int("entities", len(records)).Msg("Entity cache warmed from store")
}

func (c *Cache) Len() int {
	return len(c.states)
}
