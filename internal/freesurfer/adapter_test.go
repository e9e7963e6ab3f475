package freesurfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"synthbridge/internal/services"
	"synthbridge/internal/testsupport"
	"synthbridge/internal/volume"
)

// fakeExecutor records commands and, unless told to fail, writes a copy of
// the staged input to each staged output path.
type fakeExecutor struct {
	calls     []Command
	exitCode  int
	stderr    string
	skip      bool
	outType   volume.DataType
	label     float64
	err       error
	outputErr error
}

func (f *fakeExecutor) Run(_ context.Context, cmd Command, onLine func(stream, line string)) (Result, error) {
	f.calls = append(f.calls, cmd)
	if f.err != nil {
		return Result{}, f.err
	}
	if onLine != nil {
		onLine(StreamStdout, "fake tool running")
	}
	if f.exitCode != 0 {
		if onLine != nil {
			onLine(StreamStderr, f.stderr)
		}
		return Result{ExitCode: f.exitCode, Stderr: f.stderr}, nil
	}
	if f.skip {
		return Result{OutputErr: f.outputErr}, nil
	}
	input, err := volume.Load(filepath.Join(cmd.Dir, StagedInput))
	if err != nil {
		return Result{}, err
	}
	if f.outType != volume.Unknown {
		input = input.Convert(f.outType)
	}
	if f.label != 0 {
		input.Data[0] = input.DataType.Coerce(f.label)
	}
	for i, arg := range cmd.Args {
		if i == 1 || !strings.HasPrefix(arg, cmd.Dir) {
			continue
		}
		if err := volume.Save(arg, input); err != nil {
			return Result{}, err
		}
	}
	return Result{OutputErr: f.outputErr}, nil
}

func newTestAdapter(t *testing.T, exec Executor, opts ...Option) (*Adapter, string) {
	t.Helper()
	home := testsupport.FakeFreeSurferHome(t)
	workRoot := t.TempDir()
	base := []Option{
		WithExecutor(exec),
		WithWorkRoot(workRoot),
		WithEnvironment([]string{"PATH=" + os.Getenv("PATH"), "FREESURFER_HOME=" + home, "PYTHONHOME=/opt/host", "PYTHONPATH=/opt/host/lib"}),
	}
	return New(append(base, opts...)...), workRoot
}

func assertWorkRootEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no workspaces left behind, found %d", len(entries))
	}
}

func TestSegmentWithParcBuildsExpectedArguments(t *testing.T) {
	exec := &fakeExecutor{}
	adapter, workRoot := newTestAdapter(t, exec)
	input := testsupport.SyntheticVolume("t1", volume.Int16)
	seg := volume.Empty("seg")

	report, err := adapter.Segment(context.Background(), input, SegOutputs{Segmentation: seg}, SegOptions{Parc: true})
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected one spawn, got %d", len(exec.calls))
	}
	dir := exec.calls[0].Dir
	want := []string{"--i", filepath.Join(dir, StagedInput), "--o", filepath.Join(dir, StagedOutput), "--parc"}
	if !reflect.DeepEqual(exec.calls[0].Args, want) {
		t.Fatalf("unexpected args\n got %q\nwant %q", exec.calls[0].Args, want)
	}
	if !strings.HasSuffix(exec.calls[0].Binary, filepath.Join("bin", ToolSynthSeg)) {
		t.Fatalf("unexpected binary %q", exec.calls[0].Binary)
	}
	if seg.IsEmpty() || seg.Name != "seg" || seg.DataType != volume.Int16 {
		t.Fatalf("segmentation not loaded: %+v", seg.Dims)
	}
	wantStates := []State{StateIdle, StateStagingIn, StateInvoking, StateSucceeded, StateCleaned}
	if !reflect.DeepEqual(report.States, wantStates) {
		t.Fatalf("unexpected states %v", report.States)
	}
	if report.ExitCode != 0 || report.RunID == "" || report.Dialect != "synthseg" {
		t.Fatalf("unexpected report %+v", report)
	}
	assertWorkRootEmpty(t, workRoot)
}

func TestNoOutputRequestedFailsWithoutSpawning(t *testing.T) {
	exec := &fakeExecutor{}
	adapter, workRoot := newTestAdapter(t, exec)
	input := testsupport.SyntheticVolume("t1", volume.Float32)

	optionSets := []SegOptions{{}, {Parc: true}, {CPU: true, Threads: 4}, {Robust: true, Fast: true, V1: true, CT: true}}
	for _, opts := range optionSets {
		report, err := adapter.Segment(context.Background(), input, SegOutputs{}, opts)
		if !errors.Is(err, services.ErrInvalidArguments) {
			t.Fatalf("expected ErrInvalidArguments for %+v, got %v", opts, err)
		}
		if report.Final() != StateCleaned || report.Outcome() != StateFailed {
			t.Fatalf("unexpected states %v", report.States)
		}
	}
	if _, err := adapter.Strip(context.Background(), input, StripOutputs{}, DefaultStripOptions()); !errors.Is(err, services.ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments for strip, got %v", err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("expected no spawn, got %d", len(exec.calls))
	}
	assertWorkRootEmpty(t, workRoot)
}

func TestMissingInputIsInvalid(t *testing.T) {
	exec := &fakeExecutor{}
	adapter, _ := newTestAdapter(t, exec)
	for _, input := range []*volume.Volume{nil, volume.Empty("empty")} {
		_, err := adapter.Segment(context.Background(), input, SegOutputs{Segmentation: volume.Empty("seg")}, SegOptions{})
		if !errors.Is(err, services.ErrInvalidArguments) {
			t.Fatalf("expected ErrInvalidArguments, got %v", err)
		}
	}
	if len(exec.calls) != 0 {
		t.Fatal("expected no spawn")
	}
}

func TestUnsupportedOptionsFailFast(t *testing.T) {
	cases := map[string]SegOptions{
		"volumes":    {Volumes: true},
		"qc":         {QC: true},
		"posteriors": {Posteriors: true},
		"crop":       {Crop: []int{160, 160, 160}},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			exec := &fakeExecutor{}
			adapter, workRoot := newTestAdapter(t, exec)
			input := testsupport.SyntheticVolume("t1", volume.Float32)
			seg := volume.Empty("seg")

			_, err := adapter.Segment(context.Background(), input, SegOutputs{Segmentation: seg}, opts)
			if !errors.Is(err, services.ErrNotSupported) {
				t.Fatalf("expected ErrNotSupported, got %v", err)
			}
			if len(exec.calls) != 0 {
				t.Fatal("expected no spawn")
			}
			if !seg.IsEmpty() {
				t.Fatal("output handle must stay untouched")
			}
			assertWorkRootEmpty(t, workRoot)
		})
	}
}

func TestToolFailureCarriesExitCodeAndStderr(t *testing.T) {
	exec := &fakeExecutor{exitCode: 1, stderr: "model load failed"}
	adapter, workRoot := newTestAdapter(t, exec)
	input := testsupport.SyntheticVolume("t1", volume.Float32)
	seg := volume.Empty("seg")
	resampled := volume.Empty("resampled")

	report, err := adapter.Segment(context.Background(), input, SegOutputs{Segmentation: seg, Resampled: resampled}, SegOptions{})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	failure, ok := services.AsToolFailure(err)
	if !ok {
		t.Fatalf("expected *ToolFailure, got %T", err)
	}
	if failure.ExitCode != 1 || failure.Stderr != "model load failed" || failure.Tool != ToolSynthSeg {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if !seg.IsEmpty() || !resampled.IsEmpty() {
		t.Fatal("output handles must not be mutated on failure")
	}
	if report.ExitCode != 1 || report.Outcome() != StateFailed || report.Final() != StateCleaned {
		t.Fatalf("unexpected report %+v", report)
	}
	assertWorkRootEmpty(t, workRoot)
}

func TestMissingOutputFileIsIOFailureAndLeavesHandles(t *testing.T) {
	exec := &fakeExecutor{skip: true}
	adapter, workRoot := newTestAdapter(t, exec)
	input := testsupport.SyntheticVolume("t1", volume.Float32)
	stripped := volume.Empty("stripped")
	mask := volume.Empty("mask")

	_, err := adapter.Strip(context.Background(), input, StripOutputs{Stripped: stripped, Mask: mask}, DefaultStripOptions())
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if !stripped.IsEmpty() || !mask.IsEmpty() {
		t.Fatal("handles must stay untouched when stage-out fails")
	}
	assertWorkRootEmpty(t, workRoot)
}

func TestOutputsConvertedToInputType(t *testing.T) {
	exec := &fakeExecutor{outType: volume.Float32}
	adapter, _ := newTestAdapter(t, exec)
	input := testsupport.SyntheticVolume("t1", volume.Uint8)
	seg := volume.Empty("seg")

	if _, err := adapter.Segment(context.Background(), input, SegOutputs{Segmentation: seg}, SegOptions{}); err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if seg.DataType != volume.Uint8 {
		t.Fatalf("expected output converted to uint8, got %s", seg.DataType)
	}
	if !volume.SameGeometry(seg, input) {
		t.Fatal("expected geometry preserved")
	}
	for i := range input.Data {
		if seg.Data[i] != input.Data[i] {
			t.Fatalf("voxel %d = %v, want %v", i, seg.Data[i], input.Data[i])
		}
	}
}

func TestOutputsKeepToolTypeWhenValuesExceedInput(t *testing.T) {
	exec := &fakeExecutor{outType: volume.Int32, label: 2035}
	adapter, _ := newTestAdapter(t, exec)
	input := testsupport.SyntheticVolume("orig", volume.Uint8)
	seg := volume.Empty("aparc")

	if _, err := adapter.Segment(context.Background(), input, SegOutputs{Segmentation: seg}, SegOptions{Parc: true}); err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if seg.DataType != volume.Int32 {
		t.Fatalf("expected int32 labels kept, got %s", seg.DataType)
	}
	if seg.Data[0] != 2035 {
		t.Fatalf("label 2035 became %v", seg.Data[0])
	}
	if seg.Data[1] != input.Data[1] {
		t.Fatalf("voxel 1 = %v, want %v", seg.Data[1], input.Data[1])
	}
}

func TestOutputForwardingErrorDoesNotFailSuccessfulRun(t *testing.T) {
	exec := &fakeExecutor{outputErr: errors.New("scan output: bufio.Scanner: token too long")}
	adapter, _ := newTestAdapter(t, exec)
	input := testsupport.SyntheticVolume("t1", volume.Int16)
	seg := volume.Empty("seg")

	report, err := adapter.Segment(context.Background(), input, SegOutputs{Segmentation: seg}, SegOptions{})
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if report.Outcome() != StateSucceeded {
		t.Fatalf("unexpected outcome %s", report.Outcome())
	}
	if seg.IsEmpty() {
		t.Fatal("expected segmentation loaded")
	}
}

func TestMissingEnvironment(t *testing.T) {
	exec := &fakeExecutor{}
	workRoot := t.TempDir()
	input := testsupport.SyntheticVolume("t1", volume.Float32)

	adapter := New(WithExecutor(exec), WithWorkRoot(workRoot), WithEnvironment([]string{"PATH=/usr/bin"}))
	_, err := adapter.Segment(context.Background(), input, SegOutputs{Segmentation: volume.Empty("seg")}, SegOptions{})
	if !errors.Is(err, services.ErrMissingEnvironment) {
		t.Fatalf("expected ErrMissingEnvironment, got %v", err)
	}

	home := testsupport.FakeFreeSurferHome(t, testsupport.WithoutTool(ToolSynthStrip))
	adapter = New(WithExecutor(exec), WithWorkRoot(workRoot), WithEnvironment([]string{"FREESURFER_HOME=" + home}))
	_, err = adapter.Strip(context.Background(), input, StripOutputs{Mask: volume.Empty("mask")}, DefaultStripOptions())
	if !errors.Is(err, services.ErrMissingEnvironment) {
		t.Fatalf("expected ErrMissingEnvironment for missing binary, got %v", err)
	}
	if len(exec.calls) != 0 {
		t.Fatal("expected no spawn")
	}
	assertWorkRootEmpty(t, workRoot)
}

func TestCustomHomeVariable(t *testing.T) {
	exec := &fakeExecutor{}
	home := testsupport.FakeFreeSurferHome(t)
	adapter := New(
		WithExecutor(exec),
		WithWorkRoot(t.TempDir()),
		WithHomeVariable("FS_SYNTH_HOME"),
		WithEnvironment([]string{"FS_SYNTH_HOME=" + home}),
	)
	input := testsupport.SyntheticVolume("t1", volume.Float32)
	if _, err := adapter.Segment(context.Background(), input, SegOutputs{Segmentation: volume.Empty("seg")}, SegOptions{}); err != nil {
		t.Fatalf("Segment: %v", err)
	}
}

func TestChildEnvironmentIsSanitized(t *testing.T) {
	exec := &fakeExecutor{}
	adapter, _ := newTestAdapter(t, exec)
	input := testsupport.SyntheticVolume("t1", volume.Float32)
	if _, err := adapter.Segment(context.Background(), input, SegOutputs{Segmentation: volume.Empty("seg")}, SegOptions{}); err != nil {
		t.Fatalf("Segment: %v", err)
	}
	env := exec.calls[0].Env
	var sawHome bool
	for _, entry := range env {
		if strings.HasPrefix(entry, "PYTHONPATH=") {
			t.Fatalf("PYTHONPATH must be removed, got %q", entry)
		}
		if strings.HasPrefix(entry, "PYTHONHOME=") {
			if entry != "PYTHONHOME=" {
				t.Fatalf("PYTHONHOME must be blank, got %q", entry)
			}
			sawHome = true
		}
	}
	if !sawHome {
		t.Fatal("expected blank PYTHONHOME entry")
	}
}

func TestArgumentsAreDeterministic(t *testing.T) {
	input := testsupport.SyntheticVolume("t1", volume.Float32)
	opts := SegOptions{Parc: true, Robust: true, Fast: true, CPU: true, Threads: 8, V1: true, CT: true}
	out := SegOutputs{Segmentation: volume.Empty("seg"), Resampled: volume.Empty("res")}
	path := func(name string) string { return "/ws/" + name }

	first, err := BuildArgs(synthSegDialect, SegInvocation(input, out, opts), path)
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	want := []string{
		"--i", "/ws/input.mgz", "--o", "/ws/output.mgz", "--parc", "--robust", "--fast",
		"--resample", "/ws/resample.mgz", "--cpu", "--threads", "8", "--v1", "--ct",
	}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("unexpected args\n got %q\nwant %q", first, want)
	}
	for i := 0; i < 10; i++ {
		again, err := BuildArgs(synthSegDialect, SegInvocation(input, out, opts), path)
		if err != nil || !reflect.DeepEqual(again, first) {
			t.Fatalf("argument list changed on repeat %d: %q", i, again)
		}
	}
}

func TestThreadsRequireCPU(t *testing.T) {
	input := testsupport.SyntheticVolume("t1", volume.Float32)
	out := SegOutputs{Segmentation: volume.Empty("seg")}
	path := func(name string) string { return name }

	args, err := BuildArgs(synthSegDialect, SegInvocation(input, out, SegOptions{Threads: 4}), path)
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	if strings.Contains(strings.Join(args, " "), "--threads") {
		t.Fatalf("threads must not be passed without --cpu: %q", args)
	}
	args, _ = BuildArgs(synthSegDialect, SegInvocation(input, out, SegOptions{CPU: true}), path)
	if got := strings.Join(args, " "); !strings.HasSuffix(got, "--cpu") {
		t.Fatalf("expected bare --cpu when threads is zero: %q", got)
	}
}

func TestStripDialects(t *testing.T) {
	input := testsupport.SyntheticVolume("t1", volume.Float32)
	out := StripOutputs{Stripped: volume.Empty("s"), Mask: volume.Empty("m")}
	opts := StripOptions{UseGPU: true, Border: 2.5, ExcludeCSF: true}
	path := func(name string) string { return name }

	short, err := BuildArgs(synthStripShortDialect, StripInvocation(input, out, opts), path)
	if err != nil {
		t.Fatalf("BuildArgs short: %v", err)
	}
	wantShort := []string{"-i", "input.mgz", "-o", "stripped.mgz", "-m", "mask.mgz", "-g", "--border", "2.5", "--no-csf"}
	if !reflect.DeepEqual(short, wantShort) {
		t.Fatalf("short dialect\n got %q\nwant %q", short, wantShort)
	}

	long, err := BuildArgs(synthStripLongDialect, StripInvocation(input, out, DefaultStripOptions()), path)
	if err != nil {
		t.Fatalf("BuildArgs long: %v", err)
	}
	wantLong := []string{"--image", "input.mgz", "--out", "stripped.mgz", "--mask", "mask.mgz"}
	if !reflect.DeepEqual(long, wantLong) {
		t.Fatalf("long dialect\n got %q\nwant %q", long, wantLong)
	}
}

func TestDialectSelection(t *testing.T) {
	cases := []struct {
		style   FlagStyle
		version Version
		known   bool
		want    string
	}{
		{FlagStyleAuto, Version{7, 4, 1}, true, "synthstrip-long"},
		{FlagStyleAuto, Version{8, 0, 0}, true, "synthstrip-long"},
		{FlagStyleAuto, Version{7, 3, 2}, true, "synthstrip-short"},
		{FlagStyleAuto, Version{}, false, "synthstrip-short"},
		{FlagStyleShort, Version{7, 4, 1}, true, "synthstrip-short"},
		{FlagStyleLong, Version{}, false, "synthstrip-long"},
	}
	for _, tc := range cases {
		d, err := DialectFor(ToolSynthStrip, tc.style, tc.version, tc.known)
		if err != nil {
			t.Fatalf("DialectFor: %v", err)
		}
		if d.Name != tc.want {
			t.Fatalf("style=%s version=%s known=%v: got %s want %s", tc.style, tc.version, tc.known, d.Name, tc.want)
		}
	}
	if _, err := DialectFor("mri_synthsr", FlagStyleAuto, Version{}, false); !errors.Is(err, services.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported for unknown tool, got %v", err)
	}
}

func TestStripUsesDetectedVersion(t *testing.T) {
	for _, tc := range []struct {
		stamp string
		flag  string
	}{
		{"freesurfer-linux-centos7_x86_64-7.3.2-20220804-6354275", "-i"},
		{"freesurfer-linux-ubuntu22_x86_64-7.4.1-20230614-7eb8460", "--image"},
		{"", "-i"},
	} {
		exec := &fakeExecutor{}
		home := testsupport.FakeFreeSurferHome(t, testsupport.WithBuildStamp(tc.stamp))
		adapter := New(WithExecutor(exec), WithWorkRoot(t.TempDir()), WithEnvironment([]string{"FREESURFER_HOME=" + home}))
		input := testsupport.SyntheticVolume("t1", volume.Float32)
		if _, err := adapter.Strip(context.Background(), input, StripOutputs{Mask: volume.Empty("m")}, DefaultStripOptions()); err != nil {
			t.Fatalf("Strip: %v", err)
		}
		if got := exec.calls[0].Args[0]; got != tc.flag {
			t.Fatalf("stamp %q: expected %s, got %s", tc.stamp, tc.flag, got)
		}
	}
}

func TestExecutorErrorIsIOFailure(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("exec format error")}
	adapter, workRoot := newTestAdapter(t, exec)
	input := testsupport.SyntheticVolume("t1", volume.Float32)
	_, err := adapter.Segment(context.Background(), input, SegOutputs{Segmentation: volume.Empty("seg")}, SegOptions{})
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	assertWorkRootEmpty(t, workRoot)
}

func TestRunReusesContextRunID(t *testing.T) {
	exec := &fakeExecutor{}
	adapter, _ := newTestAdapter(t, exec)
	ctx := services.WithRunID(context.Background(), "batch-run-7")

	report, err := adapter.Strip(ctx, testsupport.SyntheticVolume("t1", volume.Uint8), StripOutputs{Mask: volume.Empty("mask")}, DefaultStripOptions())
	if err != nil {
		t.Fatalf("Strip: %v", err)
	}
	if report.RunID != "batch-run-7" {
		t.Fatalf("expected context run id, got %q", report.RunID)
	}
}
