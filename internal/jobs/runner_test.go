package jobs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"synthbridge/internal/config"
	"synthbridge/internal/freesurfer"
	"synthbridge/internal/history"
	"synthbridge/internal/jobs"
	"synthbridge/internal/services"
	"synthbridge/internal/testsupport"
	"synthbridge/internal/volume"
	"synthbridge/internal/workspace"
)

type fixture struct {
	cfg    *config.Config
	store  *history.Store
	runner *jobs.Runner
	dir    string
}

func newFixture(t *testing.T, extraEnv ...string) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	home := testsupport.FakeFreeSurferHome(t)
	store := testsupport.MustOpenHistory(t, cfg)
	env := append([]string{"PATH=" + os.Getenv("PATH"), "FREESURFER_HOME=" + home}, extraEnv...)
	runner, err := jobs.NewRunner(cfg, store,
		jobs.WithAdapterOptions(freesurfer.WithEnvironment(env)),
		jobs.WithLockWait(100*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return &fixture{cfg: cfg, store: store, runner: runner, dir: t.TempDir()}
}

func (f *fixture) lastRun(t *testing.T) *history.Run {
	t.Helper()
	runs, err := f.store.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected a history row, got %d", len(runs))
	}
	return runs[0]
}

func assertNoWorkspaces(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read work dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), workspace.DirPrefix) {
			t.Fatalf("workspace left behind: %s", entry.Name())
		}
	}
}

func TestRunSegmentationWritesOutputsAndHistory(t *testing.T) {
	f := newFixture(t)
	input := testsupport.WriteVolume(t, f.dir, "t1.nii.gz", volume.Int16)
	job := jobs.Job{
		Kind:     jobs.KindSeg,
		Input:    input,
		Output:   filepath.Join(f.dir, "out", "seg.nii.gz"),
		Resample: filepath.Join(f.dir, "out", "resampled.mgz"),
		Seg:      freesurfer.SegOptions{Parc: true},
	}

	result, err := f.runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Written) != 2 {
		t.Fatalf("expected two written outputs, got %v", result.Written)
	}

	seg, err := volume.Load(job.Output)
	if err != nil {
		t.Fatalf("load seg: %v", err)
	}
	want := testsupport.SyntheticVolume("seg", volume.Int16)
	if seg.DataType != volume.Int16 || !volume.SameGeometry(seg, want) {
		t.Fatalf("unexpected segmentation %s %v", seg.DataType, seg.Dims)
	}
	for i := range want.Data {
		if seg.Data[i] != want.Data[i] {
			t.Fatalf("voxel %d: got %v want %v", i, seg.Data[i], want.Data[i])
		}
	}
	if _, err := os.Stat(job.Resample); err != nil {
		t.Fatalf("resample output missing: %v", err)
	}

	row := f.lastRun(t)
	if row.Status != history.StatusSucceeded || row.RunID != result.RunID || row.ID != result.HistoryID {
		t.Fatalf("unexpected history row %+v", row)
	}
	if row.ExitCode == nil || *row.ExitCode != 0 {
		t.Fatalf("unexpected exit code %v", row.ExitCode)
	}
	args := strings.Join(row.Args, " ")
	if !strings.Contains(args, "--parc") || !strings.Contains(args, "--resample") {
		t.Fatalf("unexpected recorded args %q", args)
	}
	if row.Dialect != "synthseg" || row.ToolVersion != "7.4.1" {
		t.Fatalf("unexpected dialect/version %q %q", row.Dialect, row.ToolVersion)
	}
	assertNoWorkspaces(t, f.cfg.Paths.WorkDir)
}

func TestRunStripMaskOnly(t *testing.T) {
	f := newFixture(t)
	input := testsupport.WriteVolume(t, f.dir, "t1.mgz", volume.Float32)
	job := jobs.Job{
		Kind:  jobs.KindStrip,
		Input: input,
		Mask:  filepath.Join(f.dir, "mask.mgh"),
		Strip: freesurfer.DefaultStripOptions(),
	}

	result, err := f.runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Report.Dialect != "synthstrip-long" {
		t.Fatalf("expected long flags for 7.4.1, got %s", result.Report.Dialect)
	}
	mask, err := volume.Load(job.Mask)
	if err != nil {
		t.Fatalf("load mask: %v", err)
	}
	if mask.DataType != volume.Float32 {
		t.Fatalf("unexpected mask type %s", mask.DataType)
	}
}

func TestRunToolFailureLeavesNoOutput(t *testing.T) {
	f := newFixture(t, "FAKE_FS_FAIL=model load failed")
	input := testsupport.WriteVolume(t, f.dir, "t1.nii", volume.Uint8)
	output := filepath.Join(f.dir, "seg.nii.gz")

	_, err := f.runner.Run(context.Background(), jobs.Job{Kind: jobs.KindSeg, Input: input, Output: output})
	failure, ok := services.AsToolFailure(err)
	if !ok {
		t.Fatalf("expected tool failure, got %v", err)
	}
	if failure.ExitCode != 1 || failure.Stderr != "model load failed" {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Fatalf("output should not exist, stat err %v", statErr)
	}

	row := f.lastRun(t)
	if row.Status != history.StatusFailed || row.ErrorKind != "external_tool_failure" {
		t.Fatalf("unexpected history row %+v", row)
	}
	if !strings.Contains(row.Stderr, "model load failed") {
		t.Fatalf("stderr not recorded: %q", row.Stderr)
	}
	assertNoWorkspaces(t, f.cfg.Paths.WorkDir)
}

func TestRunUnusableOutputDirFailsBeforeTool(t *testing.T) {
	argvLog := filepath.Join(t.TempDir(), "argv.log")
	f := newFixture(t, "FAKE_FS_ARGV_LOG="+argvLog)
	input := testsupport.WriteVolume(t, f.dir, "t1.nii", volume.Uint8)
	blocker := filepath.Join(f.dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	seg := filepath.Join(f.dir, "seg.nii.gz")

	_, err := f.runner.Run(context.Background(), jobs.Job{
		Kind:     jobs.KindSeg,
		Input:    input,
		Output:   seg,
		Resample: filepath.Join(blocker, "resampled.mgz"),
	})
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if _, statErr := os.Stat(seg); !os.IsNotExist(statErr) {
		t.Fatalf("segmentation should not exist, stat err %v", statErr)
	}
	if _, statErr := os.Stat(argvLog); !os.IsNotExist(statErr) {
		t.Fatal("tool should not have been launched")
	}
	if row := f.lastRun(t); row.Status != history.StatusFailed || row.ErrorKind != "io_failure" {
		t.Fatalf("unexpected history row %+v", row)
	}
}

func TestRunSaveFailureRemovesEarlierOutputs(t *testing.T) {
	dir := t.TempDir()
	resample := filepath.Join(dir, "resampled.mgz")
	// The destination turns into a directory while the tool runs, so the
	// second save fails after the first has landed.
	f := newFixture(t, "FAKE_FS_MKDIR="+resample)
	input := testsupport.WriteVolume(t, f.dir, "t1.nii", volume.Uint8)
	seg := filepath.Join(dir, "seg.nii.gz")

	result, err := f.runner.Run(context.Background(), jobs.Job{Kind: jobs.KindSeg, Input: input, Output: seg, Resample: resample})
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if _, statErr := os.Stat(seg); !os.IsNotExist(statErr) {
		t.Fatalf("earlier output should be removed, stat err %v", statErr)
	}
	if result == nil || len(result.Written) != 0 {
		t.Fatalf("expected no written outputs, got %+v", result)
	}
	if row := f.lastRun(t); row.Status != history.StatusFailed {
		t.Fatalf("unexpected history row %+v", row)
	}
	assertNoWorkspaces(t, f.cfg.Paths.WorkDir)
}

func TestRunValidationFailsBeforeHistory(t *testing.T) {
	f := newFixture(t)
	input := testsupport.WriteVolume(t, f.dir, "t1.nii.gz", volume.Int16)

	cases := []struct {
		name string
		job  jobs.Job
	}{
		{"no outputs", jobs.Job{Kind: jobs.KindSeg, Input: input}},
		{"no input", jobs.Job{Kind: jobs.KindSeg, Output: filepath.Join(f.dir, "seg.mgz")}},
		{"unsupported extension", jobs.Job{Kind: jobs.KindSeg, Input: input, Output: filepath.Join(f.dir, "seg.nrrd")}},
		{"output overwrites input", jobs.Job{Kind: jobs.KindStrip, Input: input, Output: input}},
		{"mask on synthseg", jobs.Job{Kind: jobs.KindSeg, Input: input, Output: filepath.Join(f.dir, "a.mgz"), Mask: filepath.Join(f.dir, "b.mgz")}},
		{"resample on synthstrip", jobs.Job{Kind: jobs.KindStrip, Input: input, Output: filepath.Join(f.dir, "a.mgz"), Resample: filepath.Join(f.dir, "b.mgz")}},
		{"unknown kind", jobs.Job{Kind: "synthsr", Input: input, Output: filepath.Join(f.dir, "a.mgz")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.runner.Run(context.Background(), tc.job)
			if !errors.Is(err, services.ErrInvalidArguments) {
				t.Fatalf("expected ErrInvalidArguments, got %v", err)
			}
		})
	}

	runs, err := f.store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("validation failures should not be recorded, got %d rows", len(runs))
	}
}

func TestRunMissingInputRecordsIOFailure(t *testing.T) {
	f := newFixture(t)
	job := jobs.Job{Kind: jobs.KindSeg, Input: filepath.Join(f.dir, "absent.nii.gz"), Output: filepath.Join(f.dir, "seg.mgz")}

	_, err := f.runner.Run(context.Background(), job)
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	row := f.lastRun(t)
	if row.Status != history.StatusFailed || row.ErrorKind != "io_failure" || row.ExitCode != nil {
		t.Fatalf("unexpected history row %+v", row)
	}
}

func TestRunNotSupportedOption(t *testing.T) {
	f := newFixture(t)
	input := testsupport.WriteVolume(t, f.dir, "t1.nii.gz", volume.Int16)
	job := jobs.Job{Kind: jobs.KindSeg, Input: input, Output: filepath.Join(f.dir, "seg.mgz"), Seg: freesurfer.SegOptions{QC: true}}

	_, err := f.runner.Run(context.Background(), job)
	if !errors.Is(err, services.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if row := f.lastRun(t); row.ErrorKind != "not_supported" {
		t.Fatalf("unexpected error kind %q", row.ErrorKind)
	}
	assertNoWorkspaces(t, f.cfg.Paths.WorkDir)
}

func TestRunWaitsForLock(t *testing.T) {
	f := newFixture(t)
	input := testsupport.WriteVolume(t, f.dir, "t1.nii.gz", volume.Int16)

	other := flock.New(f.cfg.LockPath())
	if err := other.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer func() { _ = other.Unlock() }()

	_, err := f.runner.Run(context.Background(), jobs.Job{Kind: jobs.KindSeg, Input: input, Output: filepath.Join(f.dir, "seg.mgz")})
	if !errors.Is(err, jobs.ErrLockBusy) {
		t.Fatalf("expected ErrLockBusy, got %v", err)
	}
}

func TestRunMarksAbandonedRows(t *testing.T) {
	f := newFixture(t)
	input := testsupport.WriteVolume(t, f.dir, "t1.nii.gz", volume.Int16)

	stuck, err := f.store.Begin(context.Background(), history.Run{RunID: "crashed", Tool: freesurfer.ToolSynthSeg, Input: input})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := f.runner.Run(context.Background(), jobs.Job{Kind: jobs.KindSeg, Input: input, Output: filepath.Join(f.dir, "seg.mgz")}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := f.store.Get(context.Background(), stuck.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != history.StatusAbandoned {
		t.Fatalf("expected abandoned, got %s", got.Status)
	}
}

func TestRunSweepsStaleWorkspaces(t *testing.T) {
	f := newFixture(t)
	input := testsupport.WriteVolume(t, f.dir, "t1.nii.gz", volume.Int16)

	stale := filepath.Join(f.cfg.Paths.WorkDir, workspace.DirPrefix+"mri_synthseg-leftover")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	old := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	unrelated := filepath.Join(f.cfg.Paths.WorkDir, "keep-me")
	if err := os.MkdirAll(unrelated, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Chtimes(unrelated, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, err := f.runner.Run(context.Background(), jobs.Job{Kind: jobs.KindStrip, Input: input, Output: filepath.Join(f.dir, "brain.mgz")}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale workspace should be removed, stat err %v", err)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatalf("unrelated directory removed: %v", err)
	}
}

func TestRunWithoutStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	home := testsupport.FakeFreeSurferHome(t)
	runner, err := jobs.NewRunner(cfg, nil, jobs.WithAdapterOptions(
		freesurfer.WithEnvironment([]string{"PATH=" + os.Getenv("PATH"), "FREESURFER_HOME=" + home}),
	))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	dir := t.TempDir()
	input := testsupport.WriteVolume(t, dir, "t1.nii.gz", volume.Int16)
	result, err := runner.Run(context.Background(), jobs.Job{Kind: jobs.KindSeg, Input: input, Output: filepath.Join(dir, "seg.nii.gz")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.HistoryID != 0 {
		t.Fatalf("expected no history id, got %d", result.HistoryID)
	}
}

func TestNewRunnerRejectsBadFlagStyle(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFlagStyle("medium"))
	if _, err := jobs.NewRunner(cfg, nil); err == nil {
		t.Fatal("expected flag style error")
	}
}

func TestRunBatchStopsOnFirstFailure(t *testing.T) {
	f := newFixture(t)
	good := testsupport.WriteVolume(t, f.dir, "t1.nii.gz", volume.Int16)
	batch := []jobs.Job{
		{Name: "missing", Kind: jobs.KindSeg, Input: filepath.Join(f.dir, "absent.nii.gz"), Output: filepath.Join(f.dir, "a.mgz")},
		{Name: "good", Kind: jobs.KindSeg, Input: good, Output: filepath.Join(f.dir, "b.mgz")},
	}

	summary, err := f.runner.RunBatch(context.Background(), batch, false)
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected wrapped ErrIO, got %v", err)
	}
	if summary.Failed != 1 || summary.Skipped != 1 || summary.Succeeded != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !summary.Entries[1].Skipped {
		t.Fatal("second job should be skipped")
	}

	summary, err = f.runner.RunBatch(context.Background(), batch, true)
	if err == nil {
		t.Fatal("expected batch error with keep-going")
	}
	if summary.Failed != 1 || summary.Succeeded != 1 || summary.Skipped != 0 {
		t.Fatalf("unexpected keep-going summary %+v", summary)
	}
	if _, statErr := os.Stat(filepath.Join(f.dir, "b.mgz")); statErr != nil {
		t.Fatalf("second job output missing: %v", statErr)
	}
}

func TestRunBatchCancelledSkipsRemaining(t *testing.T) {
	f := newFixture(t)
	good := testsupport.WriteVolume(t, f.dir, "t1.nii.gz", volume.Int16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.runner.RunBatch(ctx, []jobs.Job{{Kind: jobs.KindSeg, Input: good, Output: filepath.Join(f.dir, "a.mgz")}}, true)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if summary.Skipped != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
