package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PutSequenceDefinition inserts or replaces the definition for a trigger.
func (s *Store) PutSequenceDefinition(ctx context.Context, def *SequenceDefinition) error {
	if def.Trigger == "" {
		return fmt.Errorf("sequence definition requires a trigger name")
	}
	stepsJSON, err := marshalJSON(def.Steps)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sequence_definitions (trigger_name, steps_json, updated_at)
         VALUES (?, ?, ?)
         ON CONFLICT(trigger_name) DO UPDATE SET steps_json = excluded.steps_json,
            updated_at = excluded.updated_at`,
		def.Trigger, stepsJSON, formatTime(now))
	if err != nil {
		return fmt.Errorf("put sequence definition: %w", err)
	}
	def.UpdatedAt = now
	return nil
}

// SequenceDefinitionByTrigger fetches the definition for a trigger.
func (s *Store) SequenceDefinitionByTrigger(ctx context.Context, trigger string) (*SequenceDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT trigger_name, steps_json, updated_at FROM sequence_definitions
         WHERE trigger_name = ?`, trigger)
	return scanSequenceDefinition(row)
}

// SequenceDefinitions returns every registered definition keyed by trigger.
func (s *Store) SequenceDefinitions(ctx context.Context) (map[string]*SequenceDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trigger_name, steps_json, updated_at FROM sequence_definitions`)
	if err != nil {
		return nil, fmt.Errorf("query sequence definitions: %w", err)
	}
	defer rows.Close()

	defs := make(map[string]*SequenceDefinition)
	for rows.Next() {
		def, scanErr := scanSequenceDefinition(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		defs[def.Trigger] = def
	}
	return defs, rows.Err()
}

func scanSequenceDefinition(row rowScanner) (*SequenceDefinition, error) {
	def := &SequenceDefinition{}
	var (
		stepsJSON string
		updatedAt string
	)
	err := row.Scan(&def.Trigger, &stepsJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sequence definition: %w", err)
	}
	if err := unmarshalJSON(stepsJSON, &def.Steps); err != nil {
		return nil, err
	}
	if def.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return def, nil
}
