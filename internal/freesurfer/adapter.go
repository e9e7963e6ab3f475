package freesurfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"synthbridge/internal/logging"
	"synthbridge/internal/services"
	"synthbridge/internal/volume"
	"synthbridge/internal/workspace"
)

// State is a step in the lifecycle of one invocation.
type State string

const (
	StateIdle      State = "idle"
	StateStagingIn State = "staging_in"
	StateInvoking  State = "invoking"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCleaned   State = "cleaned"
)

// Report describes a finished invocation. Run always returns one, also on
// failure, so callers can record what happened.
type Report struct {
	RunID     string
	Tool      string
	Binary    string
	Dialect   string
	Version   string
	Args      []string
	Workspace string
	States    []State
	// ExitCode is -1 when no process was started.
	ExitCode int
	Duration time.Duration
}

// Final returns the last state reached.
func (r *Report) Final() State {
	if r == nil || len(r.States) == 0 {
		return StateIdle
	}
	return r.States[len(r.States)-1]
}

// Outcome returns StateSucceeded or StateFailed.
func (r *Report) Outcome() State {
	if r == nil {
		return StateFailed
	}
	for i := len(r.States) - 1; i >= 0; i-- {
		if r.States[i] == StateSucceeded || r.States[i] == StateFailed {
			return r.States[i]
		}
	}
	return StateFailed
}

func (r *Report) enter(s State) {
	r.States = append(r.States, s)
}

// Option configures the adapter.
type Option func(*Adapter)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(a *Adapter) {
		if exec != nil {
			a.exec = exec
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logging.NewComponentLogger(logger, "adapter")
		}
	}
}

// WithWorkRoot sets where workspaces are created. Empty means the system
// temporary directory.
func WithWorkRoot(dir string) Option {
	return func(a *Adapter) { a.workRoot = dir }
}

// WithHomeVariable names the variable that locates the installation.
func WithHomeVariable(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.homeVar = name
		}
	}
}

// WithEnvironment replaces the process environment used for both home
// lookup and the child environment.
func WithEnvironment(environ []string) Option {
	return func(a *Adapter) {
		snapshot := append([]string(nil), environ...)
		a.environ = func() []string { return snapshot }
		a.lookup = func(key string) (string, bool) {
			for i := len(snapshot) - 1; i >= 0; i-- {
				name, value, ok := strings.Cut(snapshot[i], "=")
				if ok && name == key {
					return value, true
				}
			}
			return "", false
		}
	}
}

// WithChildEnv sets which variables are blanked and which are removed for
// the child process.
func WithChildEnv(blank, unset []string) Option {
	return func(a *Adapter) {
		a.blankEnv = append([]string(nil), blank...)
		a.unsetEnv = append([]string(nil), unset...)
	}
}

// WithStripFlagStyle selects the mri_synthstrip dialect.
func WithStripFlagStyle(style FlagStyle) Option {
	return func(a *Adapter) {
		if style != "" {
			a.stripStyle = style
		}
	}
}

// Adapter runs FreeSurfer tools. It holds no per-invocation state; calls
// are not serialized.
type Adapter struct {
	exec       Executor
	logger     *slog.Logger
	workRoot   string
	homeVar    string
	lookup     LookupFunc
	environ    func() []string
	blankEnv   []string
	unsetEnv   []string
	stripStyle FlagStyle
	now        func() time.Time
}

// New constructs an adapter with process defaults: FREESURFER_HOME,
// PYTHONHOME blanked, PYTHONPATH removed, automatic flag style.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		exec:       commandExecutor{},
		logger:     logging.NewComponentLogger(nil, "adapter"),
		homeVar:    DefaultHomeVariable,
		lookup:     os.LookupEnv,
		environ:    os.Environ,
		blankEnv:   []string{"PYTHONHOME"},
		unsetEnv:   []string{"PYTHONPATH"},
		stripStyle: FlagStyleAuto,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes inv. A run ID already on ctx is reused; otherwise a new one
// is generated. See the package documentation for the ordering guarantees.
func (a *Adapter) Run(ctx context.Context, inv Invocation) (*Report, error) {
	start := a.now()
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
	}
	report := &Report{
		RunID:    runID,
		Tool:     inv.Tool,
		States:   []State{StateIdle},
		ExitCode: -1,
	}
	ctx = services.WithRunID(ctx, report.RunID)
	ctx = services.WithTool(ctx, inv.Tool)
	logger := logging.WithContext(ctx, a.logger)

	err := a.run(ctx, logger, inv, report)
	report.Duration = a.now().Sub(start)

	if err != nil {
		logging.ErrorWithContext(logger, "processing failed", "tool_run_failed",
			logging.Duration("duration", report.Duration),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, errorHint(err)),
		)
		return report, err
	}
	logger.Info("processing completed",
		logging.Duration("duration", report.Duration),
		logging.String(logging.FieldEventType, "tool_run_completed"),
	)
	return report, nil
}

func (a *Adapter) run(ctx context.Context, logger *slog.Logger, inv Invocation, report *Report) error {
	fail := func(err error) error {
		report.enter(StateFailed)
		report.enter(StateCleaned)
		return err
	}

	if err := inv.validate(); err != nil {
		return fail(err)
	}
	home, err := ResolveHome(a.lookup, a.homeVar)
	if err != nil {
		return fail(err)
	}
	binary, err := LocateTool(home, inv.Tool)
	if err != nil {
		return fail(err)
	}
	report.Binary = binary
	version, known := DetectVersion(home)
	if known {
		report.Version = version.String()
	}
	dialect, err := DialectFor(inv.Tool, a.stripStyle, version, known)
	if err != nil {
		return fail(err)
	}
	report.Dialect = dialect.Name

	report.enter(StateStagingIn)
	ws, err := workspace.Acquire(a.workRoot, inv.Tool)
	if err != nil {
		return fail(services.Wrap(services.ErrIO, string(StateStagingIn), "acquire workspace", "could not create workspace", err))
	}
	report.Workspace = ws.Dir

	runErr := a.invoke(ctx, logger, inv, dialect, ws, report)
	if runErr != nil {
		report.enter(StateFailed)
	} else {
		report.enter(StateSucceeded)
	}
	if err := ws.Release(); err != nil {
		logging.WarnWithContext(logger, "workspace cleanup failed", "workspace_cleanup_failed",
			logging.String("path", ws.Dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the directory manually"),
			logging.String(logging.FieldImpact, "staged files remain on disk"),
		)
	}
	report.enter(StateCleaned)
	return runErr
}

func (a *Adapter) invoke(ctx context.Context, logger *slog.Logger, inv Invocation, dialect Dialect, ws *workspace.Workspace, report *Report) error {
	if err := volume.Save(ws.Path(StagedInput), inv.Input); err != nil {
		return services.Wrap(services.ErrIO, string(StateStagingIn), "stage input", "could not write staged input", err)
	}

	args, err := BuildArgs(dialect, inv, ws.Path)
	if err != nil {
		return err
	}
	report.Args = args

	report.enter(StateInvoking)
	logger.Info("running external tool",
		logging.String("binary", report.Binary),
		logging.Strings("args", args),
		logging.String("dialect", dialect.Name),
		logging.String(logging.FieldEventType, "tool_command"),
	)
	result, err := a.exec.Run(ctx, Command{
		Binary: report.Binary,
		Args:   args,
		Env:    ChildEnv(a.environ(), a.blankEnv, a.unsetEnv),
		Dir:    ws.Dir,
	}, func(stream, line string) {
		logger.Debug("tool output", logging.String(logging.FieldStream, stream), logging.String("line", line))
	})
	if err != nil {
		return services.Wrap(services.ErrIO, string(StateInvoking), "run tool", "could not run "+inv.Tool, err)
	}
	report.ExitCode = result.ExitCode
	if result.OutputErr != nil {
		logging.WarnWithContext(logger, "tool output was not fully forwarded", "tool_output_truncated",
			logging.Error(result.OutputErr),
			logging.Int("exit_code", result.ExitCode),
		)
	}
	if result.ExitCode != 0 {
		return &services.ToolFailure{Tool: inv.Tool, ExitCode: result.ExitCode, Stderr: result.Stderr}
	}

	return stageOut(logger, inv, ws)
}

// stageOut loads every requested output before writing any handle, so a
// failed read leaves all handles untouched. An output takes the input's
// voxel type only when none of its values would change; label maps with
// values past the input's range keep the type the tool wrote.
func stageOut(logger *slog.Logger, inv Invocation, ws *workspace.Workspace) error {
	outputs := inv.outputs()
	loaded := make([]*volume.Volume, len(outputs))
	for i, out := range outputs {
		v, err := volume.Load(ws.Path(out.Value))
		if err != nil {
			return services.Wrap(services.ErrIO, "staging_out", "load output",
				fmt.Sprintf("could not read %s output", out.Flag), err)
		}
		if v.DataType != inv.Input.DataType {
			if v.FitsIn(inv.Input.DataType) {
				v = v.Convert(inv.Input.DataType)
			} else {
				logger.Info("output keeps tool data type",
					logging.String("output", out.Value),
					logging.String("data_type", v.DataType.String()),
					logging.String("input_data_type", inv.Input.DataType.String()),
				)
			}
		}
		loaded[i] = v
	}
	for i, out := range outputs {
		out.Target.CopyContent(loaded[i])
	}
	return nil
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrMissingEnvironment):
		return "point the FreeSurfer home variable at an installation that ships the Synth tools"
	case errors.Is(err, services.ErrNotSupported):
		return "remove the unsupported option"
	case errors.Is(err, services.ErrExternalTool):
		return "inspect the tool output above"
	case errors.Is(err, services.ErrInvalidArguments):
		return "check the input and requested outputs"
	default:
		return "check file permissions and free space"
	}
}
