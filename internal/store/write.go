package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/cvdsim/internal/metrics"
)

// Run is one stored simulation run.
type Run struct {
	ID        string `json:"id"`
	ModelHash string `json:"model_hash"`
	Seed      uint64 `json:"seed"`
	Steps     int    `json:"steps"`
	Config    string `json:"config"` // JSON run configuration
	Seq       int64  `json:"created_seq"`
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WriteRun inserts a run record and returns it with its ID and created_seq
// filled in. An empty ID is replaced by the store's generator.
func (s *Store) WriteRun(ctx context.Context, run Run) (Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	run, err = s.insertRun(ctx, tx, run)
	if err != nil {
		return Run{}, err
	}
	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("write run: commit: %w", err)
	}
	return run, nil
}

// WriteReport inserts a run's report in a single transaction. Either every
// entry is stored or none is.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteReport(ctx context.Context, runID string, entries []metrics.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write report: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertReport(ctx, tx, runID, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write report: commit: %w", err)
	}
	return nil
}

// WriteRunAtomic stores a run and its report in one transaction, so a crash
// never leaves a run without its report.
func (s *Store) WriteRunAtomic(ctx context.Context, run Run, entries []metrics.Entry) (Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("atomic run: begin tx: %w", err)
	}
	defer tx.Rollback()

	run, err = s.insertRun(ctx, tx, run)
	if err != nil {
		return Run{}, err
	}
	if err := insertReport(ctx, tx, run.ID, entries); err != nil {
		return Run{}, err
	}
	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("atomic run: commit: %w", err)
	}
	return run, nil
}

func (s *Store) insertRun(ctx context.Context, tx execer, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = s.idGen.Generate()
	}
	if run.Config == "" {
		run.Config = "{}"
	}

	// Logical creation order, never wall time
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(created_seq), 0) + 1 FROM runs
	`).Scan(&run.Seq); err != nil {
		return Run{}, fmt.Errorf("write run: next seq: %w", err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, model_hash, seed, steps, config, created_seq)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.ModelHash,
		int64(run.Seed),
		run.Steps,
		run.Config,
		run.Seq,
	)
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}
	return run, nil
}

func insertReport(ctx context.Context, tx execer, runID string, entries []metrics.Entry) error {
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO report_values
			(run_id, key, disease, measure, value)
			VALUES (?, ?, ?, ?, ?)
		`,
			runID,
			e.Key,
			e.Disease,
			e.Measure,
			e.Value,
		)
		if err != nil {
			return fmt.Errorf("write report: %s: %w", e.Key, err)
		}
	}
	return nil
}
