package db

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

// Store persists entity states for the cache and the last command each unit
// accepted.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) SaveEntityState(entityID string, st model.EntityState, at time.Time) error {
	return UpsertEntityState(s.db, entityID, st, at)
}

func (s *Store) LoadEntityStates() ([]model.EntityRecord, error) {
	return GetEntityStates(s.db)
}

// Observe records commands the device accepted.
func (s *Store) Observe(ev model.UnitEvent) {
	if ev.Dispatched == nil || ev.Err != nil {
		return
	}
	at := ev.Snapshot.UpdatedAt
	if at.IsZero() {
		at = s.now()
	}
	err := UpsertUnitCommand(s.db, model.CommandRecord{
		Unit:      ev.Snapshot.Unit,
		Device:    ev.Snapshot.Device.ID,
		Command:   *ev.Dispatched,
		EmittedAt: at,
	})
	if err != nil {
		log.Warn().Err(err).Str("unit", ev.Snapshot.Unit).Msg("Failed to store unit command")
	}
}
