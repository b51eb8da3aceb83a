package versect

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// A session holds the state of one running bisection: a window of two indices
// into a fixed ordered slice established at session start. Test executions
// within a session are strictly sequential, since every outcome determines
// the next midpoint.
type session struct {
	job *Job

	releases []*Version
	payload  *Payload

	left, right int

	outcomes map[int]TestOutcome // The classified outcome per tested index
	runs     int

	log *logrus.Entry
}

func (s *session) run(ctx context.Context) (*Boundary, error) {
	for s.right-s.left > 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mid := s.nextProbe()
		version := s.releases[mid]

		exe, err := s.job.Executables.Resolve(ctx, version.String())
		if err != nil {
			return nil, errors.Join(fmt.Errorf("resolving executable for version %s failed", version), err)
		}

		s.log.Infof("Testing version %s (window %d..%d of %d releases)", version, s.left, s.right, len(s.releases))
		outcome := s.job.Runner.Run(ctx, exe, s.payload.EntryPath, RunOptions{
			Args:     s.job.Args,
			Dir:      s.payload.Dir,
			Headless: s.job.Headless,
			Output:   s.job.Output,
			Timeout:  s.job.RunTimeout,
		})
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.outcomes[mid] = outcome
		s.runs++
		s.notify(mid, outcome)

		switch outcome.Outcome {
		case OutcomePassed:
			s.left = mid
		case OutcomeFailed:
			s.right = mid
		default:
			// No directional signal, stop instead of bisecting on noise
			s.log.Warnf("Aborting bisection, outcome for version %s was %s", version, outcome)
			return nil, &InconclusiveError{
				Version:  version,
				Outcome:  outcome,
				Outcomes: s.outcomesByVersion(),
			}
		}
		s.log.Infof("Version %s %s. Expected amount of runs left: ~%.1f", version, outcome, math.Log2(float64(s.right-s.left)))
	}

	leftOutcome, leftTested := s.outcomes[s.left]
	rightOutcome, rightTested := s.outcomes[s.right]
	if !leftTested || !rightTested || leftOutcome.Outcome != OutcomePassed || rightOutcome.Outcome != OutcomeFailed {
		return nil, fmt.Errorf("%w: window closed at %s..%s after %d run(s)", ErrNoConvergence, s.releases[s.left], s.releases[s.right], s.runs)
	}

	s.log.Infof("Found boundary after %d run(s): last good %s, first bad %s", s.runs, s.releases[s.left], s.releases[s.right])
	return &Boundary{
		LastGood: s.releases[s.left],
		FirstBad: s.releases[s.right],
		Outcomes: s.outcomesByVersion(),
		Runs:     s.runs,
	}, nil
}

// nextProbe returns the index to test next, the rounded middle of the window.
func (s *session) nextProbe() int {
	return (s.left + s.right + 1) / 2
}

// notify emits a best-effort progress notification to the injected observer.
func (s *session) notify(mid int, outcome TestOutcome) {
	if s.job.Observer == nil {
		return
	}
	s.job.Observer(Progress{
		Left:    s.left,
		Right:   s.right,
		Total:   len(s.releases),
		Version: s.releases[mid],
		Outcome: outcome,
	})
}

func (s *session) outcomesByVersion() map[string]TestOutcome {
	out := make(map[string]TestOutcome, len(s.outcomes))
	for i, outcome := range s.outcomes {
		out[s.releases[i].String()] = outcome
	}
	return out
}
