package verscepter

import (
	"math"
	"slices"
	"strings"
)

// OutcomeKind tells whether a bisection step produced a new candidate or the final boundary
type OutcomeKind int

const (
	// Next means the bisection continues with Outcome.Next
	Next OutcomeKind = iota
	// Done means the bisection terminated with Outcome.Boundary
	Done
)

// An Outcome is the result of a single bisection step
type Outcome struct {
	Kind OutcomeKind

	Next     VersionRecord // The next version to test. Only set if Kind is Next
	Boundary Boundary      // The found boundary. Only set if Kind is Done
}

// A Boundary is the pair of adjacent versions between which the behavior changes
type Boundary struct {
	LastGood VersionRecord // The newest version which is good
	FirstBad VersionRecord // The oldest version which is bad

	LastGoodIndex int // The index of LastGood in the bisected versions
	FirstBadIndex int // The index of FirstBad in the bisected versions
}

// CompareURL fills in the placeholders {good} and {bad} of the passed template with the boundary's versions.
// An empty template results in an empty string.
func (b Boundary) CompareURL(template string) string {
	return strings.NewReplacer("{good}", b.LastGood.Version, "{bad}", b.FirstBad.Version).Replace(template)
}

// A Bisector narrows an ordered range of versions down to the boundary between good and bad versions.
// It holds no reference to whoever judges its candidates and performs no I/O.
//
// Once Continue returned an outcome of kind Done, the bisector should be discarded.
type Bisector struct {
	versions []VersionRecord // The bisected versions, where versions[0] is the good version and versions[N-1] is the bad version

	low  int // The index of the newest good version
	high int // The index of the oldest bad version

	pivot int // The index of the version under test
}

// NewBisector creates a bisector for the passed versions, ordered oldest first.
// It returns ErrInvalidRange if fewer than two versions are passed.
// The first candidate is the floor midpoint, which for exactly two versions is the older one.
// Judging it ends the bisection with the two versions as boundary regardless of the judgment.
func NewBisector(versions []VersionRecord) (*Bisector, error) {
	if len(versions) < 2 {
		return nil, invalidRange(len(versions))
	}
	b := &Bisector{
		versions: slices.Clone(versions),
		low:      0,
		high:     len(versions) - 1,
	}
	b.pivot = b.midpoint()
	return b, nil
}

// CurrentVersion returns the version currently under test
func (b *Bisector) CurrentVersion() VersionRecord {
	return b.versions[b.pivot]
}

// CurrentIndex returns the index of the version currently under test
func (b *Bisector) CurrentIndex() int {
	return b.pivot
}

// Range returns a copy of the versions still under consideration, including both boundaries
func (b *Bisector) Range() []VersionRecord {
	return slices.Clone(b.versions[b.low : b.high+1])
}

// StepsLeft returns the maximum number of Continue calls needed until the boundary is found
func (b *Bisector) StepsLeft() int {
	span := b.high - b.low
	if span <= 2 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(span))))
}

// Continue records the judgment of the current version and moves the bisection forward.
// If isGood is true, the current version and all versions before it are considered good, otherwise the current version and all versions after it are considered bad.
func (b *Bisector) Continue(isGood bool) Outcome {
	// Nothing left to subdivide
	if b.high-b.low <= 1 {
		return b.done()
	}

	if isGood {
		b.low = b.pivot
	} else {
		b.high = b.pivot
	}

	if b.high-b.low <= 1 {
		return b.done()
	}

	b.pivot = b.midpoint()
	return Outcome{Kind: Next, Next: b.versions[b.pivot]}
}

func (b *Bisector) midpoint() int {
	return (b.low + b.high) / 2
}

func (b *Bisector) done() Outcome {
	return Outcome{
		Kind: Done,
		Boundary: Boundary{
			LastGood: b.versions[b.low],
			FirstBad: b.versions[b.high],

			LastGoodIndex: b.low,
			FirstBadIndex: b.high,
		},
	}
}
