package verscepter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver"
)

// VersionSource describes where a version of the runtime comes from
type VersionSource int

const (
	// Remote versions are published releases
	Remote VersionSource = iota
	// Local versions are builds present on the local machine
	Local
)

var versionSourceNames = map[VersionSource]string{
	Remote: "remote",
	Local:  "local",
}

func (s VersionSource) String() string {
	if name, ok := versionSourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("VersionSource(%d)", int(s))
}

// ParseVersionSource returns the version source with the passed name
func ParseVersionSource(name string) (VersionSource, error) {
	for source, sourceName := range versionSourceNames {
		if strings.EqualFold(sourceName, name) {
			return source, nil
		}
	}
	return Remote, fmt.Errorf("invalid version source %q", name)
}

// InstallState is the lifecycle state of a version on the local machine.
// It is irrelevant to the bisection itself, executors are expected to only receive runnable versions.
type InstallState int

const (
	Missing InstallState = iota
	Downloading
	Downloaded
	Installing
	Installed
)

var installStateNames = map[InstallState]string{
	Missing:     "missing",
	Downloading: "downloading",
	Downloaded:  "downloaded",
	Installing:  "installing",
	Installed:   "installed",
}

func (s InstallState) String() string {
	if name, ok := installStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("InstallState(%d)", int(s))
}

// ParseInstallState returns the install state with the passed name
func ParseInstallState(name string) (InstallState, error) {
	for state, stateName := range installStateNames {
		if strings.EqualFold(stateName, name) {
			return state, nil
		}
	}
	return Missing, fmt.Errorf("invalid install state %q", name)
}

// A VersionRecord is a single point in the release history under test
type VersionRecord struct {
	Version string        // The version identifier, unique within a bisection
	Source  VersionSource // Where this version comes from
	State   InstallState  // The install state of this version
}

func (v VersionRecord) String() string {
	return v.Version
}

// SortBySemver sorts the passed versions in place, oldest first, by their semantic version.
// It fails without modifying the slice if any version is not a valid semantic version.
func SortBySemver(versions []VersionRecord) error {
	parsed := make(map[string]*semver.Version, len(versions))
	for _, v := range versions {
		sv, err := semver.NewVersion(v.Version)
		if err != nil {
			return fmt.Errorf("version %q is not a semantic version - %v", v.Version, err)
		}
		parsed[v.Version] = sv
	}

	slices.SortStableFunc(versions, func(a, b VersionRecord) int {
		return parsed[a.Version].Compare(parsed[b.Version])
	})
	return nil
}

// IndexOf returns the index of the passed version in the catalog, or -1 if it isn't part of it
func IndexOf(catalog []VersionRecord, version string) int {
	return slices.IndexFunc(catalog, func(v VersionRecord) bool {
		return v.Version == version
	})
}

// SelectRange returns a copy of the versions between startIndex and endIndex of a chronologically ordered catalog, both included.
// The returned slice is always ordered oldest first. If startIndex is after endIndex, the selection is reversed.
func SelectRange(catalog []VersionRecord, startIndex, endIndex int) ([]VersionRecord, error) {
	for _, i := range []int{startIndex, endIndex} {
		if i < 0 || i >= len(catalog) {
			return nil, fmt.Errorf("index %d out of range for catalog of %d versions", i, len(catalog))
		}
	}

	lo, hi := startIndex, endIndex
	if lo > hi {
		lo, hi = hi, lo
	}
	return slices.Clone(catalog[lo : hi+1]), nil
}

// IsEarliestDisabled reports whether the version at index i of a chronologically ordered catalog
// may not be picked as the earliest version, given the latest version was picked at endIndex.
func IsEarliestDisabled(i, endIndex int) bool {
	return i >= endIndex
}

// IsLatestDisabled reports whether the version at index i of a chronologically ordered catalog
// may not be picked as the latest version, given the earliest version was picked at startIndex.
func IsLatestDisabled(i, startIndex int) bool {
	return i <= startIndex
}
