package jobs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"synthbridge/internal/freesurfer"
	"synthbridge/internal/jobs"
	"synthbridge/internal/notifications"
	"synthbridge/internal/testsupport"
	"synthbridge/internal/volume"
)

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.payloads = append(n.payloads, payload)
	return nil
}

func newNotifyingRunner(t *testing.T, notifier notifications.Service, extraEnv ...string) *jobs.Runner {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	home := testsupport.FakeFreeSurferHome(t)
	env := append([]string{"PATH=" + os.Getenv("PATH"), "FREESURFER_HOME=" + home}, extraEnv...)
	runner, err := jobs.NewRunner(cfg, nil,
		jobs.WithAdapterOptions(freesurfer.WithEnvironment(env)),
		jobs.WithLockWait(100*time.Millisecond),
		jobs.WithNotifier(notifier),
	)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return runner
}

func TestRunPublishesCompletion(t *testing.T) {
	notifier := &recordingNotifier{}
	runner := newNotifyingRunner(t, notifier)
	dir := t.TempDir()
	input := testsupport.WriteVolume(t, dir, "t1.mgz", volume.Float32)

	job := jobs.Job{Name: "sub-01", Kind: jobs.KindStrip, Input: input, Output: filepath.Join(dir, "brain.mgz")}
	if _, err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventRunCompleted {
		t.Fatalf("unexpected events %v", notifier.events)
	}
	payload := notifier.payloads[0]
	if payload["job"] != "sub-01" || payload["tool"] != freesurfer.ToolSynthStrip {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestRunPublishesFailureKind(t *testing.T) {
	notifier := &recordingNotifier{}
	runner := newNotifyingRunner(t, notifier, "FAKE_FS_FAIL=model load failed")
	dir := t.TempDir()
	input := testsupport.WriteVolume(t, dir, "t1.mgz", volume.Float32)

	job := jobs.Job{Kind: jobs.KindSeg, Input: input, Output: filepath.Join(dir, "seg.mgz")}
	if _, err := runner.Run(context.Background(), job); err == nil {
		t.Fatal("expected failure")
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventRunFailed {
		t.Fatalf("unexpected events %v", notifier.events)
	}
	if kind := notifier.payloads[0]["kind"]; kind != "external_tool_failure" {
		t.Fatalf("unexpected kind %v", kind)
	}
}

func TestRunBatchPublishesSingleSummary(t *testing.T) {
	notifier := &recordingNotifier{}
	runner := newNotifyingRunner(t, notifier)
	dir := t.TempDir()
	input := testsupport.WriteVolume(t, dir, "t1.mgz", volume.Float32)

	list := []jobs.Job{
		{Kind: jobs.KindStrip, Input: input, Mask: filepath.Join(dir, "mask.mgz")},
		{Kind: jobs.KindSeg, Input: filepath.Join(dir, "absent.mgz"), Output: filepath.Join(dir, "seg.mgz")},
	}
	if _, err := runner.RunBatch(context.Background(), list, true); err == nil {
		t.Fatal("expected batch failure")
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventBatchCompleted {
		t.Fatalf("expected one batch event, got %v", notifier.events)
	}
	payload := notifier.payloads[0]
	if payload["succeeded"] != 1 || payload["failed"] != 1 || payload["skipped"] != 0 {
		t.Fatalf("unexpected batch payload %v", payload)
	}
}
