package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/cvdsim/internal/metrics"
)

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows (wrapped) if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model_hash, seed, steps, config, created_seq
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns every run in creation order.
// Returns an empty slice (not nil) when the store has no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_hash, seed, steps, config, created_seq
		FROM runs
		ORDER BY created_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently created run.
// Returns sql.ErrNoRows (wrapped) if the store is empty.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model_hash, seed, steps, config, created_seq
		FROM runs
		ORDER BY created_seq DESC
		LIMIT 1
	`)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ReportFilter narrows a report read. Zero fields match everything.
type ReportFilter struct {
	Disease string `json:"disease,omitempty"`
	Measure string `json:"measure,omitempty"`
	// Match keeps keys containing this substring.
	Match string `json:"match,omitempty"`
	// Stratum keeps keys ending in "_<Stratum>".
	Stratum string `json:"stratum,omitempty"`
}

// Compile converts the filter to a parameterized query for one run.
// All values are parameterized, never interpolated, and the result is
// always ordered by key COLLATE BINARY.
func (f ReportFilter) Compile(runID string) (string, []any) {
	where := []string{"run_id = ?"}
	params := []any{runID}

	if f.Disease != "" {
		where = append(where, "disease = ?")
		params = append(params, f.Disease)
	}
	if f.Measure != "" {
		where = append(where, "measure = ?")
		params = append(params, f.Measure)
	}
	if f.Match != "" {
		// instr avoids LIKE wildcard escaping
		where = append(where, "instr(key, ?) > 0")
		params = append(params, f.Match)
	}
	if f.Stratum != "" {
		suffix := "_" + f.Stratum
		where = append(where, "length(key) >= length(?) AND substr(key, length(key) - length(?) + 1) = ?")
		params = append(params, suffix, suffix, suffix)
	}

	query := "SELECT key, disease, measure, value FROM report_values WHERE " +
		strings.Join(where, " AND ") +
		" ORDER BY key COLLATE BINARY ASC"
	return query, params
}

// ReadReport returns the report rows of a run that pass the filter.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadReport(ctx context.Context, runID string, filter ReportFilter) ([]metrics.Entry, error) {
	query, params := filter.Compile(runID)
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	defer rows.Close()

	entries := []metrics.Entry{}
	for rows.Next() {
		var e metrics.Entry
		if err := rows.Scan(&e.Key, &e.Disease, &e.Measure, &e.Value); err != nil {
			return nil, fmt.Errorf("scan report value: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report: %w", err)
	}
	return entries, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var seed int64
	if err := row.Scan(&run.ID, &run.ModelHash, &seed, &run.Steps, &run.Config, &run.Seq); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Seed = uint64(seed)
	return run, nil
}
