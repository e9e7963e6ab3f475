package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DirPrefix marks directories created by Acquire so CleanStale never touches
// anything else under the work root.
const DirPrefix = "synthbridge-"

// Workspace is a private scratch directory owned by a single invocation.
type Workspace struct {
	Dir string

	once sync.Once
	err  error
}

// Acquire creates a new workspace under root. An empty root means the
// system temporary directory. The tag is folded into the directory name to
// make leftovers easier to attribute.
func Acquire(root, tag string) (*Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	pattern := DirPrefix + "*"
	if tag = sanitizeTag(tag); tag != "" {
		pattern = DirPrefix + tag + "-*"
	}
	dir, err := os.MkdirTemp(root, pattern)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Release removes the workspace and everything in it. Only the first call
// does any work; later calls return the same result.
func (w *Workspace) Release() error {
	if w == nil {
		return nil
	}
	w.once.Do(func() {
		if err := os.RemoveAll(w.Dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.err = fmt.Errorf("remove workspace %s: %w", w.Dir, err)
		}
	})
	return w.err
}

func sanitizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	var b strings.Builder
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
