package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/namelens/ratethrottle/internal/core"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, strategy, target, log_dir, thread_count, process_count,
	time_scale, run_time_ms, started_at, finished_at, error`

// SaveRun inserts or replaces a run together with its worker results.
func (s *Store) SaveRun(ctx context.Context, run core.Run) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	run.ID = strings.TrimSpace(run.ID)
	if run.ID == "" {
		return errors.New("run id is required")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	var finishedAt sql.NullInt64
	if run.FinishedAt != nil {
		finishedAt = sql.NullInt64{Int64: run.FinishedAt.UnixMilli(), Valid: true}
	}
	var runErr sql.NullString
	if run.Error != "" {
		runErr = sql.NullString{String: run.Error, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			strategy = excluded.strategy,
			target = excluded.target,
			log_dir = excluded.log_dir,
			thread_count = excluded.thread_count,
			process_count = excluded.process_count,
			time_scale = excluded.time_scale,
			run_time_ms = excluded.run_time_ms,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			error = excluded.error
	`, run.ID, run.Strategy, run.Target, run.LogDir, run.ThreadCount, run.ProcessCount,
		run.TimeScale, run.RunTime.Milliseconds(), run.StartedAt.UnixMilli(), finishedAt, runErr)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_results WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("clear run results: %w", err)
	}
	for i, result := range run.Results {
		worker := result.Worker
		if worker == "" {
			worker = fmt.Sprintf("worker-%d", i)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_results (run_id, worker, max_sleep_val, retry_ratio, request_count)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, worker, result.MaxSleepVal, result.RetryRatio, result.RequestCount)
		if err != nil {
			return fmt.Errorf("save run result %s: %w", worker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first, without worker results.
// A non-positive limit returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]core.Run, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	runs := []core.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun loads a run and its worker results.
func (s *Store) GetRun(ctx context.Context, id string) (*core.Run, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, strings.TrimSpace(id))
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT worker, max_sleep_val, retry_ratio, request_count
		FROM run_results
		WHERE run_id = ?
		ORDER BY worker
	`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load run results: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	for rows.Next() {
		var result core.WorkerResult
		if err := rows.Scan(&result.Worker, &result.MaxSleepVal, &result.RetryRatio, &result.RequestCount); err != nil {
			return nil, fmt.Errorf("scan run result: %w", err)
		}
		run.Results = append(run.Results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load run results: %w", err)
	}
	return &run, nil
}

// DeleteRun removes a run and its results. It reports whether a run existed.
func (s *Store) DeleteRun(ctx context.Context, id string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	id = strings.TrimSpace(id)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete run: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_results WHERE run_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete run results: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete run: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (core.Run, error) {
	var (
		run        core.Run
		runTimeMs  int64
		startedAt  int64
		finishedAt sql.NullInt64
		runErr     sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Strategy, &run.Target, &run.LogDir, &run.ThreadCount,
		&run.ProcessCount, &run.TimeScale, &runTimeMs, &startedAt, &finishedAt, &runErr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}

	run.RunTime = time.Duration(runTimeMs) * time.Millisecond
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		value := time.UnixMilli(finishedAt.Int64).UTC()
		run.FinishedAt = &value
	}
	run.Error = runErr.String
	return run, nil
}
