package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"synthbridge/internal/config"
	"synthbridge/internal/freesurfer"
	"synthbridge/internal/history"
	"synthbridge/internal/logging"
	"synthbridge/internal/notifications"
	"synthbridge/internal/services"
	"synthbridge/internal/volume"
	"synthbridge/internal/workspace"
)

const lockRetryDelay = 250 * time.Millisecond

// ErrLockBusy reports that another process holds the invocation lock.
var ErrLockBusy = errors.New("another synthbridge run is in progress")

// Result describes one finished job.
type Result struct {
	Job       Job
	RunID     string
	HistoryID int64
	Report    *freesurfer.Report
	Written   []string
	Duration  time.Duration
}

// Runner executes jobs one at a time per state directory.
type Runner struct {
	cfg         *config.Config
	store       *history.Store
	adapter     *freesurfer.Adapter
	adapterOpts []freesurfer.Option
	lock        *flock.Flock
	lockWait    time.Duration
	notifier    notifications.Service
	logger      *slog.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAdapterOptions appends adapter options after the configured ones.
func WithAdapterOptions(opts ...freesurfer.Option) Option {
	return func(r *Runner) {
		r.adapterOpts = append(r.adapterOpts, opts...)
	}
}

// WithLockWait bounds how long Run waits for another process to release
// the invocation lock. Zero waits until ctx is done.
func WithLockWait(d time.Duration) Option {
	return func(r *Runner) { r.lockWait = d }
}

// WithNotifier replaces the notifier built from configuration.
func WithNotifier(svc notifications.Service) Option {
	return func(r *Runner) {
		if svc != nil {
			r.notifier = svc
		}
	}
}

// NewRunner builds a runner from configuration. store may be nil, in which
// case nothing is recorded.
func NewRunner(cfg *config.Config, store *history.Store, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("runner requires configuration")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	r := &Runner{
		cfg:      cfg,
		store:    store,
		lock:     flock.New(cfg.LockPath()),
		notifier: notifications.NewService(cfg),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	base, err := AdapterOptions(cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.adapter = freesurfer.New(append(base, r.adapterOpts...)...)
	r.logger = logging.NewComponentLogger(r.logger, "runner")
	return r, nil
}

// Run executes job end to end: validate, lock, load the input, invoke the
// tool, write outputs, and record history. The returned Result is non-nil
// whenever validation passed, even on failure. Completion and failure are
// published to the configured notifier.
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	result, err := r.run(ctx, job)
	if result == nil {
		return result, err
	}
	if err != nil {
		r.publish(ctx, notifications.EventRunFailed, notifications.Payload{
			"tool":  job.Kind.Tool(),
			"job":   job.Label(),
			"kind":  services.Kind(err),
			"error": err,
		})
		return result, err
	}
	r.publish(ctx, notifications.EventRunCompleted, notifications.Payload{
		"tool":     job.Kind.Tool(),
		"job":      job.Label(),
		"duration": result.Duration,
	})
	return result, nil
}

func (r *Runner) run(ctx context.Context, job Job) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	unlock, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	r.sweep(ctx)

	result := &Result{Job: job, RunID: uuid.NewString()}
	ctx = services.WithRunID(ctx, result.RunID)
	ctx = services.WithTool(ctx, job.Kind.Tool())
	logger := logging.WithContext(ctx, r.logger)

	start := time.Now()
	row, err := r.begin(ctx, job, result.RunID)
	if err != nil {
		return result, err
	}
	if row != nil {
		result.HistoryID = row.ID
	}

	logger.Info("job started",
		logging.String("job", job.Label()),
		logging.String("input", job.Input),
		logging.Strings("outputs", job.Outputs()),
		logging.String(logging.FieldEventType, "job_started"),
	)
	runErr := r.execute(ctx, logger, job, result)
	result.Duration = time.Since(start)
	r.finish(ctx, logger, row, result, runErr)

	if runErr != nil {
		return result, runErr
	}
	logger.Info("job completed",
		logging.String("job", job.Label()),
		logging.Strings("written", result.Written),
		logging.Duration("duration", result.Duration),
		logging.String(logging.FieldEventType, "job_completed"),
	)
	return result, nil
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, job Job, result *Result) error {
	input, err := volume.Load(job.Input)
	if err != nil {
		if errors.Is(err, volume.ErrUnsupportedFormat) {
			return services.Wrap(services.ErrInvalidArguments, "load", job.Label(), "unsupported input format", err)
		}
		return services.Wrap(services.ErrIO, "load", job.Label(), "could not read input", err)
	}
	logger.Debug("input loaded",
		logging.String("path", job.Input),
		logging.String("data_type", input.DataType.String()),
		logging.Any("dims", input.Dims),
	)

	if err := prepareOutputDirs(job); err != nil {
		return services.Wrap(services.ErrIO, "prepare", job.Label(), "could not create output directory", err)
	}

	targets := map[string]*volume.Volume{}
	handle := func(path string) *volume.Volume {
		if path == "" {
			return nil
		}
		v := volume.Empty(filepath.Base(path))
		targets[path] = v
		return v
	}

	switch job.Kind {
	case KindStrip:
		out := freesurfer.StripOutputs{Stripped: handle(job.Output), Mask: handle(job.Mask)}
		result.Report, err = r.adapter.Strip(ctx, input, out, job.Strip)
	default:
		out := freesurfer.SegOutputs{Segmentation: handle(job.Output), Resampled: handle(job.Resample)}
		result.Report, err = r.adapter.Segment(ctx, input, out, job.Seg)
	}
	if err != nil {
		return err
	}

	for _, path := range job.Outputs() {
		if err := volume.Save(path, targets[path]); err != nil {
			removeWritten(logger, result)
			return services.Wrap(services.ErrIO, "save", job.Label(), "could not write output", err)
		}
		result.Written = append(result.Written, path)
	}
	return nil
}

// prepareOutputDirs creates every output's parent directory so an unusable
// destination fails the job before the tool runs.
func prepareOutputDirs(job Job) error {
	for _, path := range job.Outputs() {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// removeWritten deletes outputs saved before a later save failed, so a
// failed job leaves no partial result set.
func removeWritten(logger *slog.Logger, result *Result) {
	for _, path := range result.Written {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(logger, "could not remove partial output", "output_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
			)
		}
	}
	result.Written = nil
}

func (r *Runner) acquire(ctx context.Context) (func(), error) {
	path := r.lock.Path()
	ok, err := r.lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "lock", "acquire", path, err)
	}
	if !ok {
		r.logger.Info("waiting for another synthbridge run",
			logging.String("lock", path),
			logging.String(logging.FieldEventType, "lock_wait"),
		)
		waitCtx := ctx
		if r.lockWait > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, r.lockWait)
			defer cancel()
		}
		ok, err = r.lock.TryLockContext(waitCtx, lockRetryDelay)
		if !ok {
			if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("%w (lock %s)", ErrLockBusy, path)
			}
			return nil, services.Wrap(services.ErrIO, "lock", "acquire", path, err)
		}
	}
	return func() {
		if err := r.lock.Unlock(); err != nil {
			logging.WarnWithContext(r.logger, "failed to release invocation lock", "lock_release_failed",
				logging.String("lock", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the lock file if no synthbridge process is running"),
			)
		}
	}, nil
}

// sweep runs lock-protected housekeeping: stale workspaces and abandoned
// history rows left by processes that died mid-run.
func (r *Runner) sweep(ctx context.Context) {
	if hours := r.cfg.FreeSurfer.StaleWorkspaceHours; hours > 0 {
		workspace.CleanStale(r.cfg.Paths.WorkDir, time.Duration(hours)*time.Hour, r.logger)
	}
	if r.store == nil {
		return
	}
	count, err := r.store.MarkAbandoned(ctx)
	if err != nil {
		logging.WarnWithContext(r.logger, "failed to mark abandoned runs", "history_sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "interrupted runs stay listed as running"),
		)
		return
	}
	if count > 0 {
		r.logger.Info("marked interrupted runs as abandoned", logging.Int64("count", count))
	}
}

func (r *Runner) begin(ctx context.Context, job Job, runID string) (*history.Run, error) {
	if r.store == nil {
		return nil, nil
	}
	row, err := r.store.Begin(ctx, history.Run{
		RunID:   runID,
		Tool:    job.Kind.Tool(),
		Input:   job.Input,
		Outputs: job.Outputs(),
	})
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "history", "record run", "could not record run start", err)
	}
	return row, nil
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, row *history.Run, result *Result, runErr error) {
	if row == nil {
		return
	}
	outcome := history.Outcome{
		Status:   history.StatusSucceeded,
		ExitCode: -1,
		Duration: result.Duration,
	}
	if report := result.Report; report != nil {
		outcome.Args = report.Args
		outcome.Dialect = report.Dialect
		outcome.ToolVersion = report.Version
		outcome.ExitCode = report.ExitCode
	}
	if runErr != nil {
		outcome.Status = history.StatusFailed
		outcome.ErrorKind = services.Kind(runErr)
		outcome.ErrorMessage = runErr.Error()
		if failure, ok := services.AsToolFailure(runErr); ok {
			outcome.Stderr = failure.Stderr
		}
	}
	// The run outcome is already decided; a history write failure only warns.
	if err := r.store.Finish(context.WithoutCancel(ctx), row.ID, outcome); err != nil {
		logging.WarnWithContext(logger, "failed to record run outcome", "history_write_failed",
			logging.Int64("history_id", row.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "history shows the run as running"),
		)
	}
}

func (r *Runner) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := r.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(r.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run outcome was not announced"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
