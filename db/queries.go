package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

// GetEntityStates retrieves every stored entity state.
func GetEntityStates(db *sql.DB) ([]model.EntityRecord, error) {
	rows, err := db.Query(`SELECT entity_id, value, available, updated_at FROM entity_states ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity states: %w", err)
	}
	defer rows.Close()

	var records []model.EntityRecord
	for rows.Next() {
		var r model.EntityRecord
		var updatedAt string
		if err := rows.Scan(&r.EntityID, &r.State.Value, &r.State.Available, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity state: %w", err)
		}
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetUnitCommands retrieves the last accepted command of every unit.
func GetUnitCommands(db *sql.DB) ([]model.CommandRecord, error) {
	rows, err := db.Query(`SELECT unit, device, command, emitted_at FROM unit_commands ORDER BY unit`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unit commands: %w", err)
	}
	defer rows.Close()

	var records []model.CommandRecord
	for rows.Next() {
		r, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetUnitCommand retrieves the last accepted command of a unit.
func GetUnitCommand(db *sql.DB, unit string) (*model.CommandRecord, error) {
	row := db.QueryRow(`SELECT unit, device, command, emitted_at FROM unit_commands WHERE unit = ?`, unit)
	r, err := scanCommand(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get command for %s: %w", unit, err)
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCommand(s scanner) (model.CommandRecord, error) {
	var r model.CommandRecord
	var command, emittedAt string
	if err := s.Scan(&r.Unit, &r.Device, &command, &emittedAt); err != nil {
		return r, fmt.Errorf("failed to scan unit command: %w", err)
	}
	if err := json.Unmarshal([]byte(command), &r.Command); err != nil {
		return r, fmt.Errorf("failed to decode command of %s: %w", r.Unit, err)
	}
	r.EmittedAt, _ = time.Parse(time.RFC3339, emittedAt)
	return r, nil
}
