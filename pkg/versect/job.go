package versect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/creasty/defaults"
	"github.com/dchest/uniuri"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// An ExecutableResolver resolves a version or local path into a runnable
// executable, installing it on demand. It must be idempotent for repeated
// calls with the same version and safe for concurrent use.
type ExecutableResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// A PayloadResolver materializes a test payload from a source descriptor.
type PayloadResolver interface {
	Resolve(ctx context.Context, source string) (*Payload, error)
}

// ErrDegenerateRange is returned when the requested span contains fewer than
// two distinct versions. No test is run in that case.
var ErrDegenerateRange = errors.New("bisection range contains fewer than two distinct versions")

// ErrNoConvergence is returned when the window closed without the exact
// passed/failed pairing at its bounds.
var ErrNoConvergence = errors.New("bisection did not converge to a passed/failed boundary")

// An InconclusiveError terminates a session when a test run yields no
// directional signal. Continuing the search would bisect on noise, so the
// session stops and preserves the outcomes recorded so far.
type InconclusiveError struct {
	Version  *Version               // The version whose run was inconclusive
	Outcome  TestOutcome            // The inconclusive outcome, carrying its sub-kind
	Outcomes map[string]TestOutcome // All outcomes recorded before the abort, keyed by canonical version
}

func (e *InconclusiveError) Error() string {
	return fmt.Sprintf("inconclusive outcome %s for version %s (exit code %d)", e.Outcome.Kind, e.Version, e.Outcome.ExitCode)
}

// A Boundary is the result of a successful bisection: the adjacent version
// pair at which the observed test outcome flips.
type Boundary struct {
	LastGood *Version // The newest version whose run passed
	FirstBad *Version // The oldest version whose run failed

	Outcomes map[string]TestOutcome // The classified outcome of every tested version, keyed by canonical version
	Runs     int                    // How many test executions the session needed
}

// Progress describes one finished bisection step. Notifications are
// best-effort and have no effect on control flow.
type Progress struct {
	Left, Right int // The window bounds at the time of the step
	Total       int // The length of the bisected slice

	Version *Version    // The version under test
	Outcome TestOutcome // The classified outcome of the step
}

// A ProgressFunc receives best-effort progress notifications.
type ProgressFunc func(Progress)

type jobYaml struct {
	GoodVersion string `yaml:"goodVersion"`
	BadVersion  string `yaml:"badVersion"`

	Payload string   `yaml:"payload"`
	Args    []string `yaml:"args"`

	Headless *bool `yaml:"headless" default:"true"`

	RunTimeout time.Duration `yaml:"runTimeout" default:"300"`
}

// GetJobFromConfig reads in a job config in yaml format from a reader and
// initializes the corresponding job struct
func GetJobFromConfig(r io.Reader) (*Job, error) {
	var config jobYaml

	// Read in yaml
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}
	if err := defaults.Set(&config); err != nil {
		return nil, err
	}

	return &Job{
		GoodVersion: config.GoodVersion,
		BadVersion:  config.BadVersion,

		PayloadSource: config.Payload,
		Args:          config.Args,

		Headless: *config.Headless,

		RunTimeout: config.RunTimeout * time.Second,
	}, nil
}

// A Job represents one bisection session: the endpoint versions, the payload
// to run against every probed release and the collaborators doing the work.
type Job struct {
	GoodVersion string // The endpoint known to pass. The order of the two endpoints does not matter
	BadVersion  string // The endpoint known to fail

	PayloadSource string   // The source descriptor of the test payload, resolved once per session
	Args          []string // Extra arguments appended to every test run

	Headless bool // Whether test runs should be wrapped in a virtual display where needed

	RunTimeout time.Duration // Maximum duration of a single test run, or 0 for no limit

	Releases    ReleaseSet         // The catalog answering the range query
	Executables ExecutableResolver // Resolves each probed version into a runnable executable
	Payloads    PayloadResolver    // Materializes the test payload

	Runner   TestRunner   // The runner executing each probe. Defaults to a plain Runner
	Observer ProgressFunc // Optional best-effort progress notifications
	Output   io.Writer    // Optional sink for live test output

	Log *logrus.Logger // The log to which information gets printed to
}

// Run the job. It resolves the inclusive ordered slice between the two
// endpoints, resolves the payload once, and then repeatedly tests the
// midpoint of the shrinking window until the boundary is found.
// It returns the boundary on success. Any other end state, including an
// inconclusive test outcome or a degenerate input range, is an error.
// Cancelling the context aborts the session and kills an in-flight test.
func (j *Job) Run(ctx context.Context) (*Boundary, error) {
	if j.Log == nil {
		// Mute logger
		j.Log = logrus.New()
		j.Log.SetOutput(io.Discard)
	}
	if j.Runner == nil {
		j.Runner = &Runner{Log: j.Log}
	}

	releases, err := j.Releases.VersionsInRange(j.GoodVersion, j.BadVersion)
	if err != nil {
		return nil, err
	}
	if len(releases) < 2 {
		return nil, fmt.Errorf("%w: %d version(s) between %s and %s", ErrDegenerateRange, len(releases), j.GoodVersion, j.BadVersion)
	}

	log := j.Log.WithField("session-id", uniuri.NewLen(8))
	log.Infof("Bisecting %d releases between %s and %s", len(releases), releases[0], releases[len(releases)-1])

	// The payload is resolved once for the whole session, not per version
	payload, err := j.Payloads.Resolve(ctx, j.PayloadSource)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("resolving payload %q failed", j.PayloadSource), err)
	}
	defer func() {
		if err := payload.Cleanup(); err != nil {
			log.Warnf("Failed to clean up payload at %s - %v", payload.Dir, err)
		}
	}()

	s := &session{
		job:      j,
		releases: releases,
		payload:  payload,
		left:     0,
		right:    len(releases) - 1,
		outcomes: make(map[int]TestOutcome),
		log:      log,
	}
	return s.run(ctx)
}
