package preprocess

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/rs/zerolog"
)

// RunRepository stores the latest batch result of every date.
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "preprocess_runs").Logger(),
	}
}

// Save replaces the stored result of result.Date.
func (r *RunRepository) Save(ctx context.Context, result *BatchResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal batch result: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO preprocess_runs (snapshot_date, state, result_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (snapshot_date) DO UPDATE SET
			state = excluded.state,
			result_json = excluded.result_json,
			updated_at = excluded.updated_at
	`, domain.TruncateDay(result.Date).Unix(), string(result.State), string(payload), time.Now().Unix())
	if err != nil {
		return &domain.StorageError{Op: "save preprocess run", Err: err}
	}
	return nil
}

// Get returns the stored result of date, or nil when the date never ran.
func (r *RunRepository) Get(ctx context.Context, date time.Time) (*BatchResult, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		"SELECT result_json FROM preprocess_runs WHERE snapshot_date = ?",
		domain.TruncateDay(date).Unix(),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preprocess run: %w", err)
	}

	var result BatchResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch result: %w", err)
	}
	return &result, nil
}

// List returns the stored results, newest date first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*BatchResult, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT result_json FROM preprocess_runs ORDER BY snapshot_date DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query preprocess runs: %w", err)
	}
	defer rows.Close()

	var out []*BatchResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan preprocess run: %w", err)
		}
		var result BatchResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			r.log.Warn().Err(err).Msg("Skipping unreadable preprocess run")
			continue
		}
		out = append(out, &result)
	}
	return out, rows.Err()
}
