package history

import (
	"context"
	"fmt"
)

// ForceSchemaVersion overwrites PRAGMA user_version.
func (s *Store) ForceSchemaVersion(ctx context.Context, version int) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	return err
}
