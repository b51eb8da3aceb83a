package versect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// NightlyTag is the prerelease channel whose releases sort before all other
// prereleases sharing the same major.minor.patch triple.
const NightlyTag = "nightly"

// A Version is a single parsed release. It is immutable once parsed.
// Two versions are equal iff their canonical string forms match.
type Version struct {
	sv        *semver.Version
	canonical string
}

// ParseVersion parses a release identifier into a Version.
// A leading "v" and missing minor/patch components are tolerated.
func ParseVersion(s string) (*Version, error) {
	sv, err := semver.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("invalid version %q", s), err)
	}
	return &Version{sv: sv, canonical: sv.String()}, nil
}

// MustParseVersion parses a release identifier and panics if it is invalid.
func MustParseVersion(s string) *Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Major returns the major component of the version.
func (v *Version) Major() uint64 { return v.sv.Major() }

// Minor returns the minor component of the version.
func (v *Version) Minor() uint64 { return v.sv.Minor() }

// Patch returns the patch component of the version.
func (v *Version) Patch() uint64 { return v.sv.Patch() }

// Prerelease returns the ordered prerelease identifiers, or nil for a stable release.
func (v *Version) Prerelease() []string {
	if v.sv.Prerelease() == "" {
		return nil
	}
	return strings.Split(v.sv.Prerelease(), ".")
}

// IsStable reports whether the version has no prerelease identifiers.
func (v *Version) IsStable() bool { return v.sv.Prerelease() == "" }

// IsNightly reports whether the version's first prerelease identifier is the nightly tag.
func (v *Version) IsNightly() bool {
	pre := v.Prerelease()
	return len(pre) > 0 && pre[0] == NightlyTag
}

// String returns the canonical form of the version.
func (v *Version) String() string { return v.canonical }

// Equal reports whether both versions share the same canonical form.
func (v *Version) Equal(o *Version) bool { return v.canonical == o.canonical }

// Compare orders two versions. The primary key is the numeric
// (major, minor, patch) triple. On a tie, a nightly release sorts strictly
// before any same-triple release that is not a nightly; otherwise standard
// semver prerelease precedence applies, with stable releases sorting after
// any prerelease.
func (v *Version) Compare(o *Version) int {
	if c := compareUint64(v.Major(), o.Major()); c != 0 {
		return c
	}
	if c := compareUint64(v.Minor(), o.Minor()); c != 0 {
		return c
	}
	if c := compareUint64(v.Patch(), o.Patch()); c != 0 {
		return c
	}
	if v.IsNightly() != o.IsNightly() {
		if v.IsNightly() {
			return -1
		}
		return 1
	}
	return v.sv.Compare(o.sv)
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
