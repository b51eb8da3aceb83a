package versect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T, raw ...string) *Catalog {
	t.Helper()
	cat := NewCatalog(nil)
	cat.LoadVersions(raw)
	return cat
}

func versionStrings(versions []*Version) []string {
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.String()
	}
	return out
}

func TestLoadDocument(t *testing.T) {
	t.Run("Array of strings", func(t *testing.T) {
		cat := NewCatalog(nil)
		err := cat.LoadDocument([]byte(`["2.0.0", "1.0.0", "1.5.0"]`))
		require.Nil(t, err, "LoadDocument returned an error")
		assert.Equal(t, []string{"1.0.0", "1.5.0", "2.0.0"}, versionStrings(cat.Versions()), "Catalog not sorted ascending")
	})
	t.Run("Array of records", func(t *testing.T) {
		cat := NewCatalog(nil)
		err := cat.LoadDocument([]byte(`[{"version": "2.0.0"}, {"version": "1.0.0"}]`))
		require.Nil(t, err, "LoadDocument returned an error")
		assert.Equal(t, []string{"1.0.0", "2.0.0"}, versionStrings(cat.Versions()), "Catalog not sorted ascending")
	})
	t.Run("Unparseable entries are dropped", func(t *testing.T) {
		cat := NewCatalog(nil)
		err := cat.LoadDocument([]byte(`["1.0.0", "garbage", "2.0.0"]`))
		require.Nil(t, err, "LoadDocument failed on individual bad entries")
		assert.Equal(t, 2, cat.Len(), "Bad entry not dropped")
	})
	t.Run("Duplicates are deduplicated", func(t *testing.T) {
		cat := NewCatalog(nil)
		err := cat.LoadDocument([]byte(`["1.0.0", "v1.0.0", "1.0.0"]`))
		require.Nil(t, err, "LoadDocument returned an error")
		assert.Equal(t, 1, cat.Len(), "Duplicate canonical versions kept")
	})
	t.Run("Malformed document fails", func(t *testing.T) {
		cat := NewCatalog(nil)
		err := cat.LoadDocument([]byte(`{"not": "an array"}`))
		assert.NotNil(t, err, "Malformed document accepted")
	})
}

func TestLoadReplacesAtomically(t *testing.T) {
	cat := testCatalog(t, "1.0.0", "2.0.0", "3.0.0")
	cat.LoadVersions([]string{"4.0.0"})

	assert.Equal(t, []string{"4.0.0"}, versionStrings(cat.Versions()), "Load did not replace the previous sequence")
}

func TestIsKnown(t *testing.T) {
	cat := testCatalog(t, "1.0.0", "2.0.0-nightly.20210101")

	assert.True(t, cat.IsKnown("1.0.0"), "Known version reported unknown")
	assert.True(t, cat.IsKnown("v1.0.0"), "Canonical matching not applied")
	assert.False(t, cat.IsKnown("3.0.0"), "Unknown version reported known")
	assert.False(t, cat.IsKnown("garbage"), "Unparseable reference reported known")
}

func TestVersionsInMajor(t *testing.T) {
	cat := testCatalog(t, "1.0.0", "1.1.0", "2.0.0", "2.0.1", "3.0.0")

	assert.Equal(t, []string{"2.0.0", "2.0.1"}, versionStrings(cat.VersionsInMajor(2)), "Wrong major subsequence")
	assert.Empty(t, cat.VersionsInMajor(9), "Absent major returned versions")
}

func TestVersionsInRange(t *testing.T) {
	cat := testCatalog(t, "1.0.0", "2.0.0", "3.0.0", "4.0.0", "5.0.0")

	t.Run("Endpoints are included", func(t *testing.T) {
		versions, err := cat.VersionsInRange("2.0.0", "4.0.0")
		require.Nil(t, err, "VersionsInRange returned an error")
		assert.Equal(t, []string{"2.0.0", "3.0.0", "4.0.0"}, versionStrings(versions), "Wrong inclusive range")
	})
	t.Run("Arguments are commutative", func(t *testing.T) {
		forward, err := cat.VersionsInRange("2.0.0", "4.0.0")
		require.Nil(t, err)
		backward, err := cat.VersionsInRange("4.0.0", "2.0.0")
		require.Nil(t, err)
		assert.Equal(t, versionStrings(forward), versionStrings(backward), "Range not commutative")
	})
	t.Run("Same endpoint yields a single element", func(t *testing.T) {
		versions, err := cat.VersionsInRange("3.0.0", "3.0.0")
		require.Nil(t, err)
		assert.Len(t, versions, 1, "Wrong degenerate range")
	})
	t.Run("Unknown endpoints fail", func(t *testing.T) {
		_, err := cat.VersionsInRange("2.0.0", "9.9.9")
		assert.ErrorIs(t, err, ErrUnknownVersion, "Unknown endpoint accepted")
	})
}

func TestLatest(t *testing.T) {
	assert.Nil(t, NewCatalog(nil).Latest(), "Empty catalog has a latest version")

	cat := testCatalog(t, "1.0.0", "2.0.0", "3.0.0-nightly.20210101")
	assert.Equal(t, "3.0.0-nightly.20210101", cat.Latest().String(), "Wrong latest version")
	assert.Equal(t, "2.0.0", cat.LatestStable().String(), "Wrong latest stable version")
}

func TestMajorClassification(t *testing.T) {
	cat := testCatalog(t,
		"1.0.0", "2.0.0", "3.0.0", "4.0.0", "5.0.0", "6.0.0",
		"6.1.0-beta.1",
		"7.0.0-nightly.20210101", "7.0.0-beta.2",
	)

	stable := cat.StableMajors()
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, stable, "Wrong stable majors")
	assert.Equal(t, []uint64{7}, cat.PrereleaseMajors(), "Wrong prerelease majors")
	assert.Equal(t, []uint64{3, 4, 5, 6}, cat.SupportedMajors(), "Wrong supported majors")
	assert.Equal(t, []uint64{1, 2}, cat.ObsoleteMajors(), "Wrong obsolete majors")

	// The classification partitions the stable majors
	assert.ElementsMatch(t, stable, append(cat.ObsoleteMajors(), cat.SupportedMajors()...), "Supported and obsolete don't partition stable")
}

func TestMajorClassificationFewStableMajors(t *testing.T) {
	cat := testCatalog(t, "1.0.0", "2.0.0")

	assert.Equal(t, []uint64{1, 2}, cat.SupportedMajors(), "Wrong supported majors with fewer than N stable majors")
	assert.Empty(t, cat.ObsoleteMajors(), "Obsolete majors reported with fewer than N stable majors")
}
