package verscepter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRange(t *testing.T) {
	catalog := generateVersionRange(15)

	values := []struct {
		startIndex int
		endIndex   int

		expected []VersionRecord
	}{
		{0, 3, catalog[0:4]},
		// Picked in reverse, the older version still comes first
		{3, 0, catalog[0:4]},
		{14, 7, catalog[7:15]},
		{5, 5, catalog[5:6]},
	}

	for _, v := range values {
		versions, err := SelectRange(catalog, v.startIndex, v.endIndex)
		require.NoError(t, err)
		assert.Equalf(t, v.expected, versions, "Wrong range for start %d and end %d", v.startIndex, v.endIndex)
	}
}

func TestSelectRangeCopies(t *testing.T) {
	catalog := generateVersionRange(4)
	versions, err := SelectRange(catalog, 0, 3)
	require.NoError(t, err)

	versions[0].Version = "changed"
	assert.Equal(t, "1.0.0", catalog[0].Version)
}

func TestSelectRangeOutOfBounds(t *testing.T) {
	catalog := generateVersionRange(4)
	for _, indices := range [][2]int{{-1, 2}, {0, 4}, {7, 1}} {
		_, err := SelectRange(catalog, indices[0], indices[1])
		assert.Errorf(t, err, "No error for indices %v", indices)
	}
}

func TestSortBySemver(t *testing.T) {
	versions := []VersionRecord{
		{Version: "10.0.0"},
		{Version: "9.4.1"},
		{Version: "10.0.0-beta.2"},
		{Version: "v2.0.0"},
		{Version: "10.0.0-beta.3"},
	}

	require.NoError(t, SortBySemver(versions))

	sorted := make([]string, len(versions))
	for i, v := range versions {
		sorted[i] = v.Version
	}
	assert.Equal(t, []string{"v2.0.0", "9.4.1", "10.0.0-beta.2", "10.0.0-beta.3", "10.0.0"}, sorted)
}

func TestSortBySemverInvalid(t *testing.T) {
	versions := []VersionRecord{{Version: "2.0.0"}, {Version: "latest"}, {Version: "1.0.0"}}

	assert.Error(t, SortBySemver(versions))
	assert.Equal(t, "2.0.0", versions[0].Version, "Versions were modified despite an error")
}

func TestIndexOf(t *testing.T) {
	catalog := generateVersionRange(5)
	assert.Equal(t, 2, IndexOf(catalog, "3.0.0"))
	assert.Equal(t, -1, IndexOf(catalog, "6.0.0"))
}

func TestParseNames(t *testing.T) {
	source, err := ParseVersionSource("Local")
	assert.NoError(t, err)
	assert.Equal(t, Local, source)
	_, err = ParseVersionSource("ftp")
	assert.Error(t, err)

	for state, name := range installStateNames {
		parsed, err := ParseInstallState(name)
		assert.NoError(t, err)
		assert.Equal(t, state, parsed)
		assert.Equal(t, name, state.String())
	}
	_, err = ParseInstallState("ready")
	assert.Error(t, err)
}

func TestBoundaryPickers(t *testing.T) {
	endIndex := 5
	assert.False(t, IsEarliestDisabled(endIndex-1, endIndex), "Version older than the latest version is disabled")
	assert.True(t, IsEarliestDisabled(endIndex+1, endIndex), "Version newer than the latest version is enabled")

	startIndex := 2
	assert.False(t, IsLatestDisabled(startIndex+1, startIndex), "Version newer than the earliest version is disabled")
	assert.True(t, IsLatestDisabled(startIndex-1, startIndex), "Version older than the earliest version is enabled")
}
