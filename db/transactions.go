package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func UpsertEntityState(db *sql.DB, entityID string, st model.EntityState, at time.Time) error {
	_, err := db.Exec(`INSERT INTO entity_states (entity_id, value, available, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET value = excluded.value, available = excluded.available, updated_at = excluded.updated_at`,
		entityID, st.Value, st.Available, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert entity state %s: %w", entityID, err)
	}
	return nil
}

func UpsertUnitCommand(db *sql.DB, rec model.CommandRecord) error {
	_, err := db.Exec(`INSERT INTO unit_commands (unit, device, kind, command, emitted_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(unit) DO UPDATE SET device = excluded.device, kind = excluded.kind, command = excluded.command, emitted_at = excluded.emitted_at`,
		rec.Unit, rec.Device, string(rec.Command.Kind), marshalJSON(rec.Command), rec.EmittedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert unit command %s: %w", rec.Unit, err)
	}
	return nil
}

// PruneEntityStates removes every stored entity not in keep, so entities
// dropped from the config do not linger in the warm start.
func PruneEntityStates(db *sql.DB, keep []string) (int64, error) {
	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}

	tx, err := StartTransaction(db)
	if err != nil {
		return 0, err
	}
	defer RollbackTransaction(tx)

	rows, err := tx.Query(`SELECT entity_id FROM entity_states`)
	if err != nil {
		return 0, fmt.Errorf("query entity ids: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan entity id: %w", err)
		}
		if !keepSet[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()

	for _, id := range stale {
		if _, err := tx.Exec(`DELETE FROM entity_states WHERE entity_id = ?`, id); err != nil {
			return 0, fmt.Errorf("delete entity state %s: %w", id, err)
		}
	}
	if err := CommitTransaction(tx); err != nil {
		return 0, err
	}
	return int64(len(stale)), nil
}
