package verscepter

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRange is returned when a bisection is started with fewer than two versions
	ErrInvalidRange = errors.New("a bisection needs at least two versions")
	// ErrExecutionTimeout is matched by every *TimeoutError
	ErrExecutionTimeout = errors.New("execution timed out")
	// ErrSessionClosed is returned by Session.Next once the session was cancelled or all of its results were received
	ErrSessionClosed = errors.New("bisection session closed")
)

// A TimeoutError is returned by an automated bisection if the executor did not finish in time for a version.
// No judgment was recorded for this version.
type TimeoutError struct {
	Version string        // The version which timed out
	Timeout time.Duration // The timeout of the executor, or 0 if unknown
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("execution of version %s timed out after %s", e.Version, e.Timeout)
	}
	return fmt.Sprintf("execution of version %s timed out", e.Version)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrExecutionTimeout
}

func invalidRange(count int) error {
	return fmt.Errorf("%w, got %d", ErrInvalidRange, count)
}
