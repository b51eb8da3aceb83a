package versect

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultSupportedMajorCount is how many of the highest stable majors are
// considered supported if not configured otherwise.
const DefaultSupportedMajorCount = 4

// ErrUnknownVersion is returned when a range endpoint is not part of the catalog.
var ErrUnknownVersion = errors.New("version not in catalog")

// A ReleaseSet answers ordering, membership, range and classification queries
// over a set of known releases.
type ReleaseSet interface {
	IsKnown(ref string) bool
	Versions() []*Version
	VersionsInMajor(major uint64) []*Version
	VersionsInRange(a, b string) ([]*Version, error)
	Latest() *Version
	LatestStable() *Version
	PrereleaseMajors() []uint64
	StableMajors() []uint64
	SupportedMajors() []uint64
	ObsoleteMajors() []uint64
	Len() int
}

// A Catalog holds an ordered, deduplicated set of known releases.
// Mutation through Load is atomic: readers never observe a partially rebuilt
// sequence.
type Catalog struct {
	mu       sync.RWMutex
	versions []*Version
	index    map[string]int // canonical string -> position in versions

	supportedMajorCount int

	log *logrus.Logger
}

// NewCatalog creates an empty catalog. A nil logger mutes all output.
func NewCatalog(log *logrus.Logger) *Catalog {
	if log == nil {
		// Mute logger
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Catalog{
		index:               make(map[string]int),
		supportedMajorCount: DefaultSupportedMajorCount,
		log:                 log,
	}
}

// releaseRecord is the object shape of a feed entry.
type releaseRecord struct {
	Version string `json:"version"`
}

// normalizeFeed accepts a raw feed document, which is either a JSON array of
// version strings or a JSON array of records bearing a version field, and
// normalizes both shapes into one sequence of raw strings.
func normalizeFeed(doc []byte) ([]string, error) {
	var plain []string
	if err := json.Unmarshal(doc, &plain); err == nil {
		return plain, nil
	}

	var records []releaseRecord
	if err := json.Unmarshal(doc, &records); err != nil {
		return nil, errors.Join(fmt.Errorf("release feed is neither an array of strings nor an array of version records"), err)
	}
	raw := make([]string, len(records))
	for i, r := range records {
		raw[i] = r.Version
	}
	return raw, nil
}

// LoadDocument parses a raw feed document and replaces the catalog contents.
// It only fails if the document as a whole is malformed, individual
// unparseable entries are dropped with a warning.
func (c *Catalog) LoadDocument(doc []byte) error {
	raw, err := normalizeFeed(doc)
	if err != nil {
		return err
	}
	c.LoadVersions(raw)
	return nil
}

// LoadVersions parses every entry independently and atomically replaces the
// stored sequence with the surviving set, sorted and deduplicated.
// Entries that fail to parse are dropped and counted, never fatal.
func (c *Catalog) LoadVersions(raw []string) {
	parsed := make(map[string]*Version, len(raw))
	dropped := 0
	for _, s := range raw {
		v, err := ParseVersion(s)
		if err != nil {
			dropped++
			c.log.Warnf("Dropping unparseable release entry %q - %v", s, err)
			continue
		}
		parsed[v.String()] = v
	}
	if dropped > 0 {
		c.log.Warnf("Dropped %d of %d release entries", dropped, len(raw))
	}

	versions := make([]*Version, 0, len(parsed))
	for _, v := range parsed {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Compare(versions[j]) < 0
	})
	index := make(map[string]int, len(versions))
	for i, v := range versions {
		index[v.String()] = i
	}

	c.mu.Lock()
	c.versions = versions
	c.index = index
	c.mu.Unlock()
}

// IsKnown reports whether the canonical form of ref is present in the catalog.
func (c *Catalog) IsKnown(ref string) bool {
	v, err := ParseVersion(ref)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[v.String()]
	return ok
}

// Versions returns the full ordered sequence of known releases.
func (c *Catalog) Versions() []*Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Version, len(c.versions))
	copy(out, c.versions)
	return out
}

// Len returns the number of known releases.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.versions)
}

// VersionsInMajor returns the subsequence of the catalog, preserving catalog
// order, whose major component equals the argument.
func (c *Catalog) VersionsInMajor(major uint64) []*Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Version
	for _, v := range c.versions {
		if v.Major() == major {
			out = append(out, v)
		}
	}
	return out
}

// VersionsInRange returns the inclusive ordered slice between the positions of
// the two endpoints. The slice is defined purely over catalog order, making
// the operation commutative in its two arguments. Both endpoints must be
// known.
func (c *Catalog) VersionsInRange(a, b string) ([]*Version, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lo, err := c.position(a)
	if err != nil {
		return nil, err
	}
	hi, err := c.position(b)
	if err != nil {
		return nil, err
	}
	if lo > hi {
		lo, hi = hi, lo
	}

	out := make([]*Version, hi-lo+1)
	copy(out, c.versions[lo:hi+1])
	return out, nil
}

// position looks up the index of ref in the ordered sequence.
// The caller must hold at least a read lock.
func (c *Catalog) position(ref string) (int, error) {
	v, err := ParseVersion(ref)
	if err != nil {
		return 0, errors.Join(fmt.Errorf("%w: %q", ErrUnknownVersion, ref), err)
	}
	pos, ok := c.index[v.String()]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVersion, v)
	}
	return pos, nil
}

// Latest returns the last element of the ordered sequence, or nil if the
// catalog is empty.
func (c *Catalog) Latest() *Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.versions) == 0 {
		return nil
	}
	return c.versions[len(c.versions)-1]
}

// LatestStable returns the newest release with an empty prerelease list, or
// nil if there is none.
func (c *Catalog) LatestStable() *Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var latest *Version
	for _, v := range c.versions {
		if v.IsStable() {
			latest = v
		}
	}
	return latest
}

// PrereleaseMajors returns the majors for which every known release is a
// prerelease, in ascending order.
func (c *Catalog) PrereleaseMajors() []uint64 {
	all, stable := c.majorSets()
	var out []uint64
	for _, major := range all {
		if !contains(stable, major) {
			out = append(out, major)
		}
	}
	return out
}

// StableMajors returns the majors with at least one stable release, in
// ascending order.
func (c *Catalog) StableMajors() []uint64 {
	_, stable := c.majorSets()
	return stable
}

// SupportedMajors returns the highest configured number of stable majors, in
// ascending order.
func (c *Catalog) SupportedMajors() []uint64 {
	_, stable := c.majorSets()
	if len(stable) > c.supportedMajorCount {
		stable = stable[len(stable)-c.supportedMajorCount:]
	}
	return stable
}

// ObsoleteMajors returns the stable majors that are no longer supported, in
// ascending order.
func (c *Catalog) ObsoleteMajors() []uint64 {
	_, stable := c.majorSets()
	if len(stable) > c.supportedMajorCount {
		return stable[:len(stable)-c.supportedMajorCount]
	}
	return nil
}

// majorSets derives the ascending list of all majors present and of majors
// with at least one stable release.
func (c *Catalog) majorSets() (all, stable []uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stableSet := make(map[uint64]bool)
	allSet := make(map[uint64]bool)
	for _, v := range c.versions {
		allSet[v.Major()] = true
		if v.IsStable() {
			stableSet[v.Major()] = true
		}
	}
	for major := range allSet {
		all = append(all, major)
	}
	for major := range stableSet {
		stable = append(stable, major)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	sort.Slice(stable, func(i, j int) bool { return stable[i] < stable[j] })
	return all, stable
}

func contains(haystack []uint64, needle uint64) bool {
	for _, x := range haystack {
		if x == needle {
			return true
		}
	}
	return false
}
