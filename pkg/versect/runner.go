package versect

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// The Outcome of a single test run.
type Outcome int

const (
	OutcomePassed Outcome = iota
	OutcomeFailed
	OutcomeInconclusive
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return "passed"
	case OutcomeFailed:
		return "failed"
	case OutcomeInconclusive:
		return "inconclusive"
	}
	return "unknown"
}

// InconclusiveKind further classifies an inconclusive outcome.
type InconclusiveKind int

const (
	InconclusiveNone InconclusiveKind = iota
	LaunchFailure                     // The executable could not be started at all
	AbnormalExit                      // The process exited with neither code 0 nor code 1
)

func (k InconclusiveKind) String() string {
	switch k {
	case LaunchFailure:
		return "launch-failure"
	case AbnormalExit:
		return "abnormal-exit"
	}
	return "none"
}

// A TestOutcome is the classified result of running the payload against one
// release. It is produced once per tested version per session and never
// retried.
type TestOutcome struct {
	Outcome  Outcome
	Kind     InconclusiveKind // Only set when the outcome is inconclusive
	ExitCode int              // -1 if the process never started
	Err      error            // The underlying launch error, if any
}

// Inconclusive reports whether the run gave no directional signal.
func (t TestOutcome) Inconclusive() bool { return t.Outcome == OutcomeInconclusive }

func (t TestOutcome) String() string {
	if t.Inconclusive() {
		return t.Outcome.String() + "/" + t.Kind.String()
	}
	return t.Outcome.String()
}

// RunOptions configure a single test execution.
type RunOptions struct {
	Args []string // Extra arguments appended after the payload entry path

	Dir string   // The working directory for the test process
	Env []string // The environment for the test process, or nil to inherit

	Headless bool // Whether to wrap the run in a virtual display on platforms without native GUI support

	Output io.Writer // Optional sink receiving combined stdout and stderr as they arrive

	Timeout time.Duration // Maximum run duration, or 0 for no limit
}

// A TestRunner executes one test payload against one resolved executable and
// classifies the result.
type TestRunner interface {
	Run(ctx context.Context, exe, entry string, opts RunOptions) TestOutcome
}

// displayWrapper is the virtual-display wrapper used for headless runs, with
// its auto-assigned display-number flag.
const (
	displayWrapper     = "xvfb-run"
	displayWrapperFlag = "-a"
)

// needsDisplayWrapper reports whether the current platform lacks native GUI
// support and therefore needs the virtual-display wrapper for headless runs.
func needsDisplayWrapper() bool {
	return runtime.GOOS != "windows" && runtime.GOOS != "darwin"
}

// Runner spawns test processes and classifies their exit results.
type Runner struct {
	Log *logrus.Logger // The log to which information gets printed to
}

// Run spawns the executable with the payload entry path and extra arguments
// appended and blocks until it exits. Combined stdout and stderr are streamed
// to the optional sink. Exit code 0 classifies as passed, exit code 1 as
// failed, any other exit code as inconclusive/abnormal-exit and a process
// that could not be started at all as inconclusive/launch-failure.
// Cancelling the context kills the running process.
func (r *Runner) Run(ctx context.Context, exe, entry string, opts RunOptions) TestOutcome {
	log := r.logger()

	name := exe
	argv := append([]string{entry}, opts.Args...)
	if opts.Headless && needsDisplayWrapper() {
		argv = append([]string{displayWrapperFlag, exe}, argv...)
		name = displayWrapper
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	if opts.Output != nil {
		cmd.Stdout = opts.Output
		cmd.Stderr = opts.Output
	}

	log.Debugf("Running %s %s", name, strings.Join(argv, " "))

	outcome := classifyRun(cmd.Run())
	log.Debugf("Run of %s finished with outcome %s (exit code %d)", exe, outcome, outcome.ExitCode)
	return outcome
}

// RunCaptured is the synchronous variant of Run. It performs the same logic
// but returns the captured combined output text directly.
func (r *Runner) RunCaptured(ctx context.Context, exe, entry string, opts RunOptions) (TestOutcome, string) {
	var buf bytes.Buffer
	if opts.Output != nil {
		opts.Output = io.MultiWriter(opts.Output, &buf)
	} else {
		opts.Output = &buf
	}
	outcome := r.Run(ctx, exe, entry, opts)
	return outcome, buf.String()
}

func (r *Runner) logger() *logrus.Logger {
	if r.Log != nil {
		return r.Log
	}
	// Mute logger
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// classifyRun maps the error of a finished exec.Cmd to a TestOutcome.
func classifyRun(err error) TestOutcome {
	if err == nil {
		return TestOutcome{Outcome: OutcomePassed}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code == 1 {
			return TestOutcome{Outcome: OutcomeFailed, ExitCode: 1}
		}
		return TestOutcome{Outcome: OutcomeInconclusive, Kind: AbnormalExit, ExitCode: code, Err: err}
	}

	return TestOutcome{Outcome: OutcomeInconclusive, Kind: LaunchFailure, ExitCode: -1, Err: err}
}
