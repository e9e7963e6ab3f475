package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"synthbridge/internal/freesurfer"
	"synthbridge/internal/testsupport"
)

func lookupFrom(values map[string]string) freesurfer.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckWorkRootNotYetCreated(t *testing.T) {
	result := CheckWorkRoot(filepath.Join(t.TempDir(), "a", "b"))
	if !result.Passed || !strings.Contains(result.Detail, "created on first run") {
		t.Fatalf("expected pass for creatable dir, got %+v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAllWithInstallation(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLogDir())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	home := testsupport.FakeFreeSurferHome(t)

	results := RunAllWith(context.Background(), cfg, lookupFrom(map[string]string{"FREESURFER_HOME": home}))
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	want := "State directory,Work directory,Log directory,Run history,FreeSurfer home,SynthSeg,SynthStrip,SynthStrip flags"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("unexpected checks\n got %s\nwant %s", got, want)
	}
	last := results[len(results)-1]
	if !strings.Contains(last.Detail, "synthstrip-long") {
		t.Fatalf("expected long dialect for 7.4.1, got %q", last.Detail)
	}
}

func TestRunAllWithoutInstallation(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFlagStyle("short"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAllWith(context.Background(), cfg, lookupFrom(nil))
	failed := Failed(results)
	if len(failed) != 3 {
		t.Fatalf("expected home and both tools to fail, got %+v", failed)
	}
	last := results[len(results)-1]
	if !last.Passed || !strings.Contains(last.Detail, "synthstrip-short") {
		t.Fatalf("unexpected dialect result %+v", last)
	}
}
