package verscepter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// A Run is a single execution performed during an automated bisection
type Run struct {
	Version  VersionRecord
	Result   RunResult
	Duration time.Duration
}

// A Report summarizes an automated bisection
type Report struct {
	Result RunResult // Success if the boundary was found

	Boundary *Boundary // The found boundary, nil unless Result is Success

	Runs []Run // Every execution in the order they were performed
}

// A Runner automates a bisection by running an Executor against every candidate
type Runner struct {
	executor Executor

	// CompareURL is an optional template for a link to the changes between the found boundary versions.
	// The placeholders {good} and {bad} are replaced with the respective versions.
	CompareURL string

	// Timeout is only used for reporting in a *TimeoutError
	Timeout time.Duration

	log *logrus.Entry
}

// NewRunner creates a runner using the passed executor. If log is nil, nothing gets logged.
func NewRunner(executor Executor, log *logrus.Entry) *Runner {
	if log == nil {
		// Mute logger
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logrus.NewEntry(logger)
	}
	return &Runner{
		executor: executor,
		log:      log,
	}
}

// AutoBisect bisects the passed versions, ordered oldest first, without human interaction.
//
// Every candidate is passed to the runner's executor, where Success counts as good and Failure as bad.
// A timeout or an error of the executor aborts the whole bisection without recording a judgment for that candidate.
// Executor errors are returned unchanged, timeouts as a *TimeoutError.
// The bisection is never retried.
//
// For exactly two versions the executor is still run once, on the older version, and its result doesn't change the boundary.
func (r *Runner) AutoBisect(ctx context.Context, versions []VersionRecord) (Report, error) {
	report := Report{}

	bisector, err := NewBisector(versions)
	if err != nil {
		r.log.Warnf("Autobisect needs at least two versions, got %d", len(versions))
		return report, err
	}

	r.log.Infof("Bisecting %d versions from %s to %s, expecting at most %d runs", len(versions), versions[0], versions[len(versions)-1], bisector.StepsLeft())

	target := bisector.CurrentVersion()
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		r.log.Infof("Checking %s...", target)
		start := time.Now()
		result, err := r.executor.Run(ctx, target)
		report.Runs = append(report.Runs, Run{Version: target, Result: result, Duration: time.Since(start)})
		if err != nil {
			r.log.Errorf("Checking %s failed - %v", target, err)
			return report, err
		}
		r.log.Infof("Checking %s... %s", target, result)

		var isGood bool
		switch result {
		case Success:
			isGood = true
		case Failure:
			isGood = false
		case Timeout:
			r.log.Warnf("Aborting bisection, %s timed out", target)
			report.Result = Timeout
			return report, &TimeoutError{Version: target.Version, Timeout: r.Timeout}
		default:
			return report, fmt.Errorf("executor returned result %s for version %s", result, target)
		}

		outcome := bisector.Continue(isGood)
		if outcome.Kind == Done {
			boundary := outcome.Boundary
			report.Result = Success
			report.Boundary = &boundary

			r.log.Infof("Autobisect complete; %s passed; %s failed", boundary.LastGood, boundary.FirstBad)
			if r.CompareURL != "" {
				r.log.Infof("Changes between the versions: %s", boundary.CompareURL(r.CompareURL))
			}
			return report, nil
		}

		target = outcome.Next
		r.log.Debugf("Next candidate %s (index %d), at most %d runs left", target, bisector.CurrentIndex(), bisector.StepsLeft())
	}
}
