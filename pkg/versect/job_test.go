package versect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver hands back the version reference itself as the executable path.
type fakeResolver struct {
	calls []string
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, ref string) (string, error) {
	f.calls = append(f.calls, ref)
	return ref, f.err
}

type fakeLoader struct {
	calls int
	err   error
}

func (f *fakeLoader) Resolve(ctx context.Context, source string) (*Payload, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Payload{Dir: ".", EntryPath: "entry"}, nil
}

// scriptedRunner answers each version's run with a fixed outcome.
type scriptedRunner struct {
	outcomes map[string]TestOutcome
	runs     []string
}

func (r *scriptedRunner) Run(ctx context.Context, exe, entry string, opts RunOptions) TestOutcome {
	r.runs = append(r.runs, exe)
	return r.outcomes[exe]
}

func passed() TestOutcome { return TestOutcome{Outcome: OutcomePassed} }
func failed() TestOutcome { return TestOutcome{Outcome: OutcomeFailed, ExitCode: 1} }

// testJob builds a job over len(outcomes) consecutive majors, where
// version i is outcomes[i-1].
func testJob(t *testing.T, outcomes ...TestOutcome) (*Job, *scriptedRunner, *fakeResolver, *fakeLoader) {
	t.Helper()

	raw := make([]string, len(outcomes))
	scripted := make(map[string]TestOutcome, len(outcomes))
	for i, outcome := range outcomes {
		v := MustParseVersion(fmt.Sprintf("%d.0.0", i+1))
		raw[i] = v.String()
		scripted[v.String()] = outcome
	}

	runner := &scriptedRunner{outcomes: scripted}
	resolver := &fakeResolver{}
	loader := &fakeLoader{}

	job := &Job{
		GoodVersion:   raw[0],
		BadVersion:    raw[len(raw)-1],
		PayloadSource: "payload",

		Releases:    testCatalog(t, raw...),
		Executables: resolver,
		Payloads:    loader,
		Runner:      runner,
	}
	return job, runner, resolver, loader
}

func TestBisectConvergence(t *testing.T) {
	job, runner, _, loader := testJob(t, passed(), passed(), passed(), failed(), failed())

	boundary, err := job.Run(context.Background())
	require.Nil(t, err, "Bisection returned an error")

	assert.Equal(t, "3.0.0", boundary.LastGood.String(), "Wrong last good version")
	assert.Equal(t, "4.0.0", boundary.FirstBad.String(), "Wrong first bad version")
	assert.LessOrEqual(t, boundary.Runs, int(math.Ceil(math.Log2(5))), "Bisection needed too many runs")
	assert.Len(t, runner.runs, boundary.Runs, "Run count mismatch")

	// The payload is resolved once per session, not per version
	assert.Equal(t, 1, loader.calls, "Payload resolved more than once")

	assert.Equal(t, OutcomePassed, boundary.Outcomes["3.0.0"].Outcome, "Wrong recorded outcome")
	assert.Equal(t, OutcomeFailed, boundary.Outcomes["4.0.0"].Outcome, "Wrong recorded outcome")
}

func TestBisectEndpointsAreOrderIndependent(t *testing.T) {
	job, _, _, _ := testJob(t, passed(), passed(), passed(), failed(), failed())
	job.GoodVersion, job.BadVersion = job.BadVersion, job.GoodVersion

	boundary, err := job.Run(context.Background())
	require.Nil(t, err, "Swapped endpoints returned an error")
	assert.Equal(t, "3.0.0", boundary.LastGood.String(), "Wrong last good version")
	assert.Equal(t, "4.0.0", boundary.FirstBad.String(), "Wrong first bad version")
}

func TestBisectDegenerateRange(t *testing.T) {
	job, runner, _, loader := testJob(t, passed(), failed())
	job.BadVersion = job.GoodVersion

	_, err := job.Run(context.Background())
	assert.ErrorIs(t, err, ErrDegenerateRange, "Degenerate range not rejected")
	assert.Empty(t, runner.runs, "Degenerate range still ran a test")
	assert.Equal(t, 0, loader.calls, "Degenerate range still resolved the payload")
}

func TestBisectUnknownEndpointFails(t *testing.T) {
	job, runner, _, _ := testJob(t, passed(), failed())
	job.BadVersion = "9.9.9"

	_, err := job.Run(context.Background())
	assert.ErrorIs(t, err, ErrUnknownVersion, "Unknown endpoint accepted")
	assert.Empty(t, runner.runs, "Unknown endpoint still ran a test")
}

func TestBisectInconclusiveAborts(t *testing.T) {
	inconclusive := TestOutcome{Outcome: OutcomeInconclusive, Kind: AbnormalExit, ExitCode: 42}
	job, runner, _, _ := testJob(t, passed(), passed(), inconclusive, failed(), failed())

	_, err := job.Run(context.Background())

	var incErr *InconclusiveError
	require.ErrorAs(t, err, &incErr, "Error does not carry the inconclusive outcome")
	assert.Equal(t, "3.0.0", incErr.Version.String(), "Wrong aborting version")
	assert.Equal(t, AbnormalExit, incErr.Outcome.Kind, "Wrong inconclusive sub-kind")
	assert.Len(t, runner.runs, 1, "Versions were tested after the inconclusive run")
	assert.Contains(t, incErr.Outcomes, "3.0.0", "Recorded outcomes not preserved")
}

func TestBisectLaunchFailureCarriesKind(t *testing.T) {
	inconclusive := TestOutcome{Outcome: OutcomeInconclusive, Kind: LaunchFailure, ExitCode: -1}
	job, _, _, _ := testJob(t, passed(), passed(), inconclusive, failed(), failed())

	_, err := job.Run(context.Background())

	var incErr *InconclusiveError
	require.ErrorAs(t, err, &incErr, "Error does not carry the inconclusive outcome")
	assert.Equal(t, LaunchFailure, incErr.Outcome.Kind, "Wrong inconclusive sub-kind")
}

func TestBisectNoConvergence(t *testing.T) {
	// Every probe passes, so the window closes without a failed outcome at
	// its right bound
	job, _, _, _ := testJob(t, passed(), passed(), passed(), passed(), passed())

	_, err := job.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoConvergence, "Missing pass/fail pairing accepted as success")
}

func TestBisectResolverFailureIsFatal(t *testing.T) {
	job, runner, resolver, _ := testJob(t, passed(), passed(), failed())
	resolver.err = errors.New("mirror gone")

	_, err := job.Run(context.Background())
	assert.NotNil(t, err, "Resolver failure not surfaced")
	assert.Len(t, runner.runs, 0, "Test ran despite resolver failure")
}

func TestBisectPayloadFailureIsFatal(t *testing.T) {
	job, runner, _, loader := testJob(t, passed(), passed(), failed())
	loader.err = ErrInvalidSource

	_, err := job.Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidSource, "Payload failure not surfaced")
	assert.Empty(t, runner.runs, "Test ran despite payload failure")
}

func TestBisectEmitsProgress(t *testing.T) {
	job, _, _, _ := testJob(t, passed(), passed(), passed(), failed(), failed())

	var events []Progress
	job.Observer = func(p Progress) { events = append(events, p) }

	boundary, err := job.Run(context.Background())
	require.Nil(t, err, "Bisection returned an error")
	require.Len(t, events, boundary.Runs, "One progress event per run expected")

	for _, ev := range events {
		assert.Equal(t, 5, ev.Total, "Wrong total in progress event")
		assert.NotNil(t, ev.Version, "Progress event without version")
	}
}

func TestBisectHonorsCancellation(t *testing.T) {
	job, _, _, _ := testJob(t, passed(), passed(), passed(), failed(), failed())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := job.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled, "Cancelled session did not stop")
}

func TestGetJobFromConfig(t *testing.T) {
	yml := `
goodVersion: "10.0.0"
badVersion: "12.0.0"
payload: "./my-payload"
args:
  - "--lang=en"
`

	job, err := GetJobFromConfig(strings.NewReader(yml))
	require.Nil(t, err, "GetJobFromConfig returned an error")

	assert.Equal(t, "10.0.0", job.GoodVersion, "Mismatch in job field")
	assert.Equal(t, "12.0.0", job.BadVersion, "Mismatch in job field")
	assert.Equal(t, "./my-payload", job.PayloadSource, "Mismatch in job field")
	assert.ElementsMatch(t, []string{"--lang=en"}, job.Args, "Mismatch in job field")
	assert.True(t, job.Headless, "Headless default not applied")
	assert.Equal(t, 300*time.Second, job.RunTimeout, "Run timeout default not applied")
}

func TestGetJobFromConfigOverrides(t *testing.T) {
	yml := `
goodVersion: "10.0.0"
badVersion: "12.0.0"
payload: "inline"
headless: false
runTimeout: 60
`

	job, err := GetJobFromConfig(strings.NewReader(yml))
	require.Nil(t, err, "GetJobFromConfig returned an error")

	assert.False(t, job.Headless, "Explicit headless value overridden by default")
	assert.Equal(t, 60*time.Second, job.RunTimeout, "Explicit run timeout overridden by default")
}
