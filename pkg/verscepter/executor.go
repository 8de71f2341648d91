package verscepter

import (
	"context"
	"fmt"
)

// RunResult is the outcome of running a test against a single version
type RunResult int

const (
	// Invalid means no valid result could be obtained
	Invalid RunResult = iota
	// Success means the version does not exhibit the regression
	Success
	// Failure means the version exhibits the regression
	Failure
	// Timeout means the test did not finish in time
	Timeout
)

func (r RunResult) String() string {
	switch r {
	case Invalid:
		return "invalid"
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Timeout:
		return "timeout"
	}
	return fmt.Sprintf("RunResult(%d)", int(r))
}

// An Executor runs the reproducible test against one specific version.
// Executors are responsible for the version being runnable and have to stop running once ctx is done.
type Executor interface {
	Run(ctx context.Context, version VersionRecord) (RunResult, error)
}

// ExecutorFunc allows using an ordinary function as an Executor
type ExecutorFunc func(ctx context.Context, version VersionRecord) (RunResult, error)

func (f ExecutorFunc) Run(ctx context.Context, version VersionRecord) (RunResult, error) {
	return f(ctx, version)
}
