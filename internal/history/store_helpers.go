package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const runColumns = "id, run_id, tool, input_path, outputs_json, args_json, status, dialect, tool_version, exit_code, error_kind, error_message, stderr, started_at, finished_at, duration_ms"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id           int64
		runID        string
		tool         string
		input        string
		outputsJSON  sql.NullString
		argsJSON     sql.NullString
		statusStr    string
		dialect      sql.NullString
		toolVersion  sql.NullString
		exitCode     sql.NullInt64
		errorKind    sql.NullString
		errorMessage sql.NullString
		stderr       sql.NullString
		startedRaw   string
		finishedRaw  sql.NullString
		durationMS   sql.NullInt64
	)
	if err := scanner.Scan(
		&id,
		&runID,
		&tool,
		&input,
		&outputsJSON,
		&argsJSON,
		&statusStr,
		&dialect,
		&toolVersion,
		&exitCode,
		&errorKind,
		&errorMessage,
		&stderr,
		&startedRaw,
		&finishedRaw,
		&durationMS,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:           id,
		RunID:        runID,
		Tool:         tool,
		Input:        input,
		Status:       Status(statusStr),
		Dialect:      dialect.String,
		ToolVersion:  toolVersion.String,
		ErrorKind:    errorKind.String,
		ErrorMessage: errorMessage.String,
		Stderr:       stderr.String,
		Duration:     time.Duration(durationMS.Int64) * time.Millisecond,
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	if err := decodeStrings(outputsJSON, &run.Outputs); err != nil {
		return nil, err
	}
	if err := decodeStrings(argsJSON, &run.Args); err != nil {
		return nil, err
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return run, nil
}

func encodeStrings(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeStrings(raw sql.NullString, dest *[]string) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), dest)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func truncateStderr(value string) string {
	if len(value) <= maxStderrBytes {
		return value
	}
	return value[len(value)-maxStderrBytes:]
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
