package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Begin inserts a running row for run and returns it with ID and StartedAt set.
func (s *Store) Begin(ctx context.Context, run Run) (*Run, error) {
	if strings.TrimSpace(run.RunID) == "" {
		return nil, errors.New("run id is required")
	}
	if strings.TrimSpace(run.Tool) == "" {
		return nil, errors.New("tool is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	outputs, err := encodeStrings(run.Outputs)
	if err != nil {
		return nil, fmt.Errorf("encode outputs: %w", err)
	}
	args, err := encodeStrings(run.Args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}

	res, err := s.exec(ctx,
		`INSERT INTO runs (run_id, tool, input_path, outputs_json, args_json, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.Tool,
		run.Input,
		outputs,
		args,
		StatusRunning,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// Finish records the outcome of a running row.
func (s *Store) Finish(ctx context.Context, id int64, outcome Outcome) error {
	if outcome.Status == "" || outcome.Status == StatusRunning {
		return fmt.Errorf("finish run %d: terminal status required", id)
	}
	args, err := encodeStrings(outcome.Args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	var exitCode any
	if outcome.ExitCode >= 0 {
		exitCode = outcome.ExitCode
	}

	res, err := s.exec(ctx,
		`UPDATE runs
         SET status = ?, args_json = COALESCE(?, args_json), dialect = ?, tool_version = ?,
             exit_code = ?, error_kind = ?, error_message = ?, stderr = ?,
             finished_at = ?, duration_ms = ?
         WHERE id = ? AND status = ?`,
		outcome.Status,
		args,
		nullableString(outcome.Dialect),
		nullableString(outcome.ToolVersion),
		exitCode,
		nullableString(outcome.ErrorKind),
		nullableString(outcome.ErrorMessage),
		nullableString(truncateStderr(outcome.Stderr)),
		time.Now().UTC().Format(time.RFC3339Nano),
		outcome.Duration.Milliseconds(),
		id,
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("finish run %d: no running row", id)
	}
	return nil
}

// Get fetches a run by row ID. It returns nil when no row exists.
func (s *Store) Get(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// GetByRunID fetches a run by its UUID, accepting any unique prefix.
func (s *Store) GetByRunID(ctx context.Context, prefix string) (*Run, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errors.New("run id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", prefix)
	}
}

// List returns the most recent runs first. A limit of zero or less returns all rows.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// MarkAbandoned finishes every running row as abandoned. Callers must hold
// the invocation lock so no live run is affected.
func (s *Store) MarkAbandoned(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error_message = ? WHERE status = ?`,
		StatusAbandoned,
		time.Now().UTC().Format(time.RFC3339Nano),
		"process exited before the run finished",
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned runs: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes finished runs that started before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`DELETE FROM runs WHERE status != ? AND started_at < ?`,
		StatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
