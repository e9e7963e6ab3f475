package logs

import (
	"encoding/json"
	"strings"
)

// RunFilter matches JSON log lines whose run_id starts with prefix. Lines
// that are not JSON objects never match.
func RunFilter(prefix string) func(string) bool {
	prefix = strings.TrimSpace(prefix)
	return func(line string) bool {
		if prefix == "" {
			return true
		}
		var entry struct {
			RunID string `json:"run_id"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return false
		}
		return entry.RunID != "" && strings.HasPrefix(entry.RunID, prefix)
	}
}
