package freesurfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Output stream names passed to line callbacks.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

const (
	stderrTailLines = 64
	maxLineBytes    = 1 << 20
)

// Command describes one child process.
type Command struct {
	Binary string
	Args   []string
	Env    []string
	Dir    string
}

// Result is the outcome of a process that ran to completion.
type Result struct {
	ExitCode int
	// Stderr holds the last lines the process wrote to stderr.
	Stderr string
	// OutputErr is set when forwarding stdout or stderr stopped early, for
	// example on a line longer than the scanner allows. The exit code is
	// still authoritative.
	OutputErr error
}

// Executor abstracts command execution for testability. A nonzero exit is
// reported through Result, not as an error; errors mean the process could
// not be started or waited on.
type Executor interface {
	Run(ctx context.Context, cmd Command, onLine func(stream, line string)) (Result, error)
}

type commandExecutor struct{}

// Run blocks until the child exits. Cancellation of ctx is ignored once
// the process has been started.
func (commandExecutor) Run(ctx context.Context, command Command, onLine func(stream, line string)) (Result, error) {
	cmd := exec.CommandContext(context.WithoutCancel(ctx), command.Binary, command.Args...) //nolint:gosec
	cmd.Env = command.Env
	cmd.Dir = command.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once
	tail := newLineTail(stderrTailLines)

	scan := func(r io.Reader, stream string) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := scanner.Text()
			if stream == StreamStderr {
				tail.add(line)
			}
			if onLine != nil {
				onLine(stream, line)
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
			// Drain so the child never blocks on a full pipe.
			_, _ = io.Copy(io.Discard, r)
		}
	}

	wg.Add(2)
	go scan(stdout, StreamStdout)
	go scan(stderr, StreamStderr)
	wg.Wait()

	waitErr := cmd.Wait()
	result := Result{Stderr: tail.String()}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return result, fmt.Errorf("wait command: %w", waitErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	if scanErr != nil {
		result.OutputErr = fmt.Errorf("scan output: %w", scanErr)
	}
	return result, nil
}

// lineTail keeps the most recent lines written to it.
type lineTail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(strings.Join(t.lines, "\n"))
}
