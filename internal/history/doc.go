// Package history records every tool invocation in a small SQLite database
// under the state directory.
//
// A run row is inserted as running before the tool starts and finished with
// its outcome afterwards. Rows left running by a process that died are
// marked abandoned the next time a runner holds the invocation lock.
//
// The schema version lives in PRAGMA user_version. Older databases are
// migrated forward on open; newer ones are refused with ErrSchemaMismatch.
package history
