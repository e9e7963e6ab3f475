package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] moves a database from user_version i to i+1.
var migrations = []string{
	schemaSQL,
}

// ErrSchemaMismatch reports a database written by a newer synthbridge.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func currentVersion() int { return len(migrations) }

func (s *Store) migrate(ctx context.Context) error {
	var have int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&have); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	want := currentVersion()
	switch {
	case have == want:
		return nil
	case have > want:
		return fmt.Errorf("%w: %s is at version %d, this build understands %d (delete it to start over)",
			ErrSchemaMismatch, s.path, have, want)
	}
	for v := have; v < want; v++ {
		if err := s.applyMigration(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, from int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", from+1, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migrations[from]); err != nil {
		return fmt.Errorf("migration %d: %w", from+1, err)
	}
	if err := setUserVersion(ctx, tx, from+1); err != nil {
		return err
	}
	return tx.Commit()
}

// PRAGMA arguments cannot be bound, so the version is formatted in.
func setUserVersion(ctx context.Context, tx *sql.Tx, v int) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("set user_version %d: %w", v, err)
	}
	return nil
}
