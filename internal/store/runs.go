package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Run is one persisted metric invocation.
type Run struct {
	RunID      string          `json:"run_id"`
	Metric     string          `json:"metric"`
	Recording  string          `json:"recording"`
	NumUnits   int             `json:"num_units"`
	NumFailed  int             `json:"num_failed"`
	ParamsJSON json.RawMessage `json:"params_json,omitempty"`
	CreatedAt  int64           `json:"created_at"`
}

// UnitValue is one unit's metric value within a run. Value is NaN when the
// unit failed, and Error then holds the reason.
type UnitValue struct {
	UnitID int     `json:"unit_id"`
	Value  float64 `json:"value"`
	Error  string  `json:"error,omitempty"`
}

// InsertRun persists run and its unit values in one transaction. If RunID is
// empty a UUID is generated; if CreatedAt is zero the current time is used.
// NumUnits and NumFailed are derived from values.
func (s *Store) InsertRun(run *Run, values []UnitValue) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}
	run.NumUnits = len(values)
	run.NumFailed = 0
	for _, v := range values {
		if math.IsNaN(v.Value) {
			run.NumFailed++
		}
	}

	var params interface{}
	if len(run.ParamsJSON) > 0 {
		params = string(run.ParamsJSON)
	}

	return s.retry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`
			INSERT INTO metric_runs (run_id, metric, recording, num_units, num_failed, params_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Metric, run.Recording, run.NumUnits, run.NumFailed, params, run.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO unit_metrics (run_id, unit_id, position, value, error)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, v := range values {
			val := sql.NullFloat64{Float64: v.Value, Valid: !math.IsNaN(v.Value)}
			if _, err := stmt.Exec(run.RunID, v.UnitID, i, val, v.Error); err != nil {
				return fmt.Errorf("insert unit %d: %w", v.UnitID, err)
			}
		}
		return tx.Commit()
	})
}

// GetRun returns a run by ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, metric, recording, num_units, num_failed, params_json, created_at
		FROM metric_runs
		WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return r, err
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT run_id, metric, recording, num_units, num_failed, params_json, created_at
		FROM metric_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UnitValues returns a run's unit values in the order they were scored.
func (s *Store) UnitValues(runID string) ([]UnitValue, error) {
	rows, err := s.db.Query(`
		SELECT unit_id, value, error
		FROM unit_metrics
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query unit values: %w", err)
	}
	defer rows.Close()

	var out []UnitValue
	for rows.Next() {
		var v UnitValue
		var val sql.NullFloat64
		if err := rows.Scan(&v.UnitID, &val, &v.Error); err != nil {
			return nil, fmt.Errorf("scan unit value: %w", err)
		}
		v.Value = math.NaN()
		if val.Valid {
			v.Value = val.Float64
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its unit values.
func (s *Store) DeleteRun(runID string) error {
	return s.retry(func() error {
		res, err := s.db.Exec(`DELETE FROM metric_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: run %s", ErrNotFound, runID)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var params sql.NullString
	if err := row.Scan(&r.RunID, &r.Metric, &r.Recording, &r.NumUnits, &r.NumFailed, &params, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if params.Valid {
		r.ParamsJSON = json.RawMessage(params.String)
	}
	return &r, nil
}
