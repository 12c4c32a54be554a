package geo

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegionRoundTrip(t *testing.T) {
	for _, r := range Regions() {
		got, err := ParseRegion(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	_, err := ParseRegion("atlantis")
	require.Error(t, err)
}

func TestRegionOfIsCaseInsensitive(t *testing.T) {
	p := NewPartition()

	r, ok := p.RegionOf("Tampines")
	require.True(t, ok)
	assert.Equal(t, East, r)

	r, ok = p.RegionOf("  toa payoh ")
	require.True(t, ok)
	assert.Equal(t, Central, r)

	_, ok = p.RegionOf("gotham")
	assert.False(t, ok)
}

func TestPartitionCoversEveryAreaExactlyOnce(t *testing.T) {
	p := NewPartition()

	var union []string
	for _, r := range Regions() {
		areas := p.Areas(r)
		assert.True(t, sort.StringsAreSorted(areas))
		for _, a := range areas {
			got, ok := p.RegionOf(a)
			require.True(t, ok)
			assert.Equal(t, r, got)
		}
		union = append(union, areas...)
	}

	all := p.AllAreas()
	assert.Len(t, union, len(all))

	seen := make(map[string]bool, len(union))
	for _, a := range union {
		assert.False(t, seen[a], "area %s appears in two regions", a)
		seen[a] = true
	}
}
