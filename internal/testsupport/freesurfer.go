package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// FakeToolScript mimics the Synth tools closely enough for round trips: it
// copies the staged input to every requested output path. Behaviour is
// steered through the environment:
//
//	FAKE_FS_ARGV_LOG  append "$0 args..." to this file
//	FAKE_FS_ENV_LOG   write the child environment to this file
//	FAKE_FS_FAIL      print this to stderr and exit FAKE_FS_EXIT (default 1)
//	FAKE_FS_SKIP      skip writing outputs but still exit 0
//	FAKE_FS_MKDIR     create this directory while running
const FakeToolScript = `#!/bin/sh
if [ -n "$FAKE_FS_ARGV_LOG" ]; then printf '%s\n' "$0 $*" >> "$FAKE_FS_ARGV_LOG"; fi
if [ -n "$FAKE_FS_MKDIR" ]; then mkdir -p "$FAKE_FS_MKDIR"; fi
if [ -n "$FAKE_FS_ENV_LOG" ]; then env > "$FAKE_FS_ENV_LOG"; fi
echo "SynthTool fake starting"
if [ -n "$FAKE_FS_FAIL" ]; then
  echo "$FAKE_FS_FAIL" >&2
  exit "${FAKE_FS_EXIT:-1}"
fi
in=""
while [ $# -gt 0 ]; do
  case "$1" in
    --i|-i|--image) in="$2"; shift 2 ;;
    --o|-o|--out|--resample|-m|--mask)
      if [ -z "$FAKE_FS_SKIP" ]; then cp "$in" "$2" || exit 3; fi
      shift 2 ;;
    --threads|--border) shift 2 ;;
    *) shift ;;
  esac
done
echo "SynthTool fake done"
`

// FakeHomeOption customizes a fake installation.
type FakeHomeOption func(*fakeHome)

type fakeHome struct {
	stamp   string
	scripts map[string]string
}

// WithBuildStamp writes build-stamp.txt. An empty stamp omits the file.
func WithBuildStamp(stamp string) FakeHomeOption {
	return func(h *fakeHome) { h.stamp = stamp }
}

// WithToolScript replaces the script installed for tool.
func WithToolScript(tool, script string) FakeHomeOption {
	return func(h *fakeHome) { h.scripts[tool] = script }
}

// WithoutTool leaves tool out of bin/.
func WithoutTool(tool string) FakeHomeOption {
	return func(h *fakeHome) { delete(h.scripts, tool) }
}

// FakeFreeSurferHome builds a FreeSurfer-shaped directory whose Synth tools
// are shell scripts, and returns its path.
func FakeFreeSurferHome(t testing.TB, opts ...FakeHomeOption) string {
	t.Helper()

	h := &fakeHome{
		stamp: "freesurfer-linux-ubuntu22_x86_64-7.4.1-20230614-7eb8460",
		scripts: map[string]string{
			"mri_synthseg":   FakeToolScript,
			"mri_synthstrip": FakeToolScript,
		},
	}
	for _, opt := range opts {
		opt(h)
	}

	home := t.TempDir()
	binDir := filepath.Join(home, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	for tool, script := range h.scripts {
		if err := os.WriteFile(filepath.Join(binDir, tool), []byte(script), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", tool, err)
		}
	}
	if h.stamp != "" {
		if err := os.WriteFile(filepath.Join(home, "build-stamp.txt"), []byte(h.stamp+"\n"), 0o644); err != nil {
			t.Fatalf("write build stamp: %v", err)
		}
	}
	return home
}
