package verscepter

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dchest/uniuri"
	"github.com/sirupsen/logrus"
)

// A Session is a bisection driven by manual judgments.
// The session's bisector is owned by a goroutine started in StartSession, judgments reach it only through Candidate.IsGood and Candidate.IsBad.
type Session struct {
	ID string // ID of this session

	candidates chan Candidate
	boundary   chan Boundary

	cancelled  chan struct{}
	cancelOnce sync.Once

	done chan struct{}

	log *logrus.Entry
}

// A Candidate is a version waiting to be judged
type Candidate struct {
	ID        string // ID of this candidate
	SessionID string // ID of the session this candidate stems from

	Step    int           // The number of this candidate in its session, starting at 1
	Version VersionRecord // The version to be judged

	StepsLeft int // The maximum number of judgments left, including this one

	judgment chan bool
	rated    *atomic.Bool
}

// StartSession starts a manual bisection of the passed versions, ordered oldest first.
// It returns ErrInvalidRange if fewer than two versions are passed. If log is nil, nothing gets logged.
func StartSession(versions []VersionRecord, log *logrus.Entry) (*Session, error) {
	bisector, err := NewBisector(versions)
	if err != nil {
		return nil, err
	}

	if log == nil {
		// Mute logger
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logrus.NewEntry(logger)
	}

	id := uniuri.New()
	s := &Session{
		ID: id,

		candidates: make(chan Candidate),
		boundary:   make(chan Boundary, 1),

		cancelled: make(chan struct{}),
		done:      make(chan struct{}),

		log: log.WithField("session-id", id),
	}

	go s.run(bisector)

	return s, nil
}

func (s *Session) run(b *Bisector) {
	defer close(s.done)
	defer close(s.boundary)
	defer close(s.candidates)

	version := b.CurrentVersion()
	for step := 1; ; step++ {
		candidate := Candidate{
			ID:        uniuri.New(),
			SessionID: s.ID,

			Step:    step,
			Version: version,

			StepsLeft: b.StepsLeft(),

			judgment: make(chan bool, 1),
			rated:    &atomic.Bool{},
		}

		select {
		case s.candidates <- candidate:
		case <-s.cancelled:
			s.log.Info("Session cancelled")
			return
		}

		var isGood bool
		select {
		case isGood = <-candidate.judgment:
		case <-s.cancelled:
			s.log.Info("Session cancelled")
			return
		}
		s.log.Debugf("Version %s judged good: %t", version, isGood)

		outcome := b.Continue(isGood)
		if outcome.Kind == Done {
			s.log.Infof("Bisection complete; %s passed; %s failed", outcome.Boundary.LastGood, outcome.Boundary.FirstBad)
			s.boundary <- outcome.Boundary
			return
		}
		version = outcome.Next
	}
}

// Candidates returns the channel on which versions to be judged appear.
// The next candidate only appears once the previous one was rated. The channel is closed once the session ends.
func (s *Session) Candidates() <-chan Candidate {
	return s.candidates
}

// Boundary returns the channel on which the found boundary appears. The channel is closed once the session ends.
func (s *Session) Boundary() <-chan Boundary {
	return s.boundary
}

// Done returns a channel which is closed once the session's goroutine exited
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Next waits for either the next candidate or the found boundary, whichever comes first.
// Exactly one of the returned pointers is non-nil if the error is nil.
// Once the session was cancelled or its boundary was already received, ErrSessionClosed is returned.
func (s *Session) Next(ctx context.Context) (*Candidate, *Boundary, error) {
	select {
	case candidate, ok := <-s.candidates:
		if ok {
			return &candidate, nil, nil
		}
		// The candidates channel is closed before the buffered boundary can be drained
		if boundary, ok := <-s.boundary; ok {
			return nil, &boundary, nil
		}
		return nil, nil, ErrSessionClosed
	case boundary, ok := <-s.boundary:
		if ok {
			return nil, &boundary, nil
		}
		return nil, nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Cancelled reports whether Cancel was called
func (s *Session) Cancelled() bool {
	select {
	case <-s.cancelled:
		return true
	default:
		return false
	}
}

// Cancel stops the session. Pending candidates can no longer be rated afterwards, doing so has no effect.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelled)
	})
}

// IsGood tells the session that this candidate does not exhibit the regression.
// If IsGood is called after the candidate was already rated by a previous IsGood or IsBad method invocation, it will panic.
func (c Candidate) IsGood() {
	c.rate(true)
}

// IsBad tells the session that this candidate exhibits the regression.
// If IsBad is called after the candidate was already rated by a previous IsGood or IsBad method invocation, it will panic.
func (c Candidate) IsBad() {
	c.rate(false)
}

func (c Candidate) rate(isGood bool) {
	if !c.rated.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("candidate %s of session %s was rated twice", c.ID, c.SessionID))
	}
	c.judgment <- isGood
}
