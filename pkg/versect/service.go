package versect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrg/xdg"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	// DefaultTTL is the maximum age the cached release list may reach before an
	// accessor triggers a background refresh.
	DefaultTTL = 4 * time.Hour

	cacheFileName = "releases.json"
)

// ServiceConfig configures a ReleaseService. Zero values fall back to
// defaults, only FeedURL is mandatory.
type ServiceConfig struct {
	FeedURL string // The upstream feed returning the release list as JSON

	CacheDir string        // Where the fetched feed document is persisted. Defaults to the user cache directory
	TTL      time.Duration // Maximum cache age before a refresh is triggered

	SupportedMajorCount int // How many of the highest stable majors count as supported

	Client *http.Client   // The client used to fetch the feed
	Fs     afero.Fs       // The filesystem holding the persisted cache
	Log    *logrus.Logger // The log to which information gets printed to
}

// A ReleaseService is a caching decorator around a Catalog. Every accessor
// first checks the freshness of the cached release list and, if it is stale,
// fires a single background refresh without blocking the call. The call
// itself always answers from whatever data is currently in memory.
type ReleaseService struct {
	cat *Catalog

	feedURL   string
	cachePath string
	ttl       time.Duration

	client *http.Client
	fs     afero.Fs
	log    *logrus.Logger

	mu        sync.Mutex // guards lastFetch
	lastFetch time.Time

	refreshing atomic.Bool
}

// DefaultCacheDir returns the versect cache directory for the current user.
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "versect")
}

// NewReleaseService creates a release service and seeds it from the persisted
// cache document if one exists. The cache file's modification time serves as
// the initial freshness timestamp.
func NewReleaseService(cfg ServiceConfig) (*ReleaseService, error) {
	if cfg.FeedURL == "" {
		return nil, errors.New("no release feed URL configured")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir()
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Client == nil {
		cfg.Client = cleanhttp.DefaultClient()
		cfg.Client.Timeout = 30 * time.Second
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Log == nil {
		// Mute logger
		cfg.Log = logrus.New()
		cfg.Log.SetOutput(io.Discard)
	}

	cat := NewCatalog(cfg.Log)
	if cfg.SupportedMajorCount > 0 {
		cat.supportedMajorCount = cfg.SupportedMajorCount
	}

	s := &ReleaseService{
		cat:       cat,
		feedURL:   cfg.FeedURL,
		cachePath: filepath.Join(cfg.CacheDir, cacheFileName),
		ttl:       cfg.TTL,
		client:    cfg.Client,
		fs:        cfg.Fs,
		log:       cfg.Log,
	}

	if doc, err := afero.ReadFile(s.fs, s.cachePath); err == nil {
		if err := s.cat.LoadDocument(doc); err != nil {
			s.log.Warnf("Ignoring corrupt release cache at %s - %v", s.cachePath, err)
		} else if info, err := s.fs.Stat(s.cachePath); err == nil {
			s.lastFetch = info.ModTime()
			s.log.Debugf("Seeded %d releases from cache at %s", s.cat.Len(), s.cachePath)
		}
	}

	return s, nil
}

// Refresh synchronously fetches the feed, replaces the in-memory release
// sequence and rewrites the persisted cache document. On failure the previous
// data remains untouched.
func (s *ReleaseService) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return errors.Join(fmt.Errorf("building release feed request for %s failed", s.feedURL), err)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return errors.Join(fmt.Errorf("fetching release feed from %s failed", s.feedURL), err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("release feed at %s answered with status %d", s.feedURL, res.StatusCode)
	}
	doc, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Join(fmt.Errorf("reading release feed from %s failed", s.feedURL), err)
	}

	if err := s.cat.LoadDocument(doc); err != nil {
		return err
	}

	// The persisted document is replaced wholesale, never partially updated.
	if err := s.fs.MkdirAll(filepath.Dir(s.cachePath), 0755); err != nil {
		s.log.Warnf("Couldn't create release cache directory - %v", err)
	} else if err := afero.WriteFile(s.fs, s.cachePath, doc, 0644); err != nil {
		s.log.Warnf("Couldn't persist release cache at %s - %v", s.cachePath, err)
	}

	s.mu.Lock()
	s.lastFetch = time.Now()
	s.mu.Unlock()

	s.log.Infof("Refreshed release catalog, %d releases known", s.cat.Len())
	return nil
}

// freshen triggers a single background refresh if the cached release list has
// outlived its TTL. It never blocks, a failed refresh is swallowed and the
// prior data stays authoritative.
func (s *ReleaseService) freshen() {
	s.mu.Lock()
	stale := time.Since(s.lastFetch) > s.ttl
	s.mu.Unlock()
	if !stale {
		return
	}
	if !s.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.refreshing.Store(false)
		if err := s.Refresh(context.Background()); err != nil {
			s.log.Warnf("Background release refresh failed, keeping previous data - %v", err)
		}
	}()
}

func (s *ReleaseService) IsKnown(ref string) bool {
	s.freshen()
	return s.cat.IsKnown(ref)
}

func (s *ReleaseService) Versions() []*Version {
	s.freshen()
	return s.cat.Versions()
}

func (s *ReleaseService) Len() int {
	s.freshen()
	return s.cat.Len()
}

func (s *ReleaseService) VersionsInMajor(major uint64) []*Version {
	s.freshen()
	return s.cat.VersionsInMajor(major)
}

func (s *ReleaseService) VersionsInRange(a, b string) ([]*Version, error) {
	s.freshen()
	return s.cat.VersionsInRange(a, b)
}

func (s *ReleaseService) Latest() *Version {
	s.freshen()
	return s.cat.Latest()
}

func (s *ReleaseService) LatestStable() *Version {
	s.freshen()
	return s.cat.LatestStable()
}

func (s *ReleaseService) PrereleaseMajors() []uint64 {
	s.freshen()
	return s.cat.PrereleaseMajors()
}

func (s *ReleaseService) StableMajors() []uint64 {
	s.freshen()
	return s.cat.StableMajors()
}

func (s *ReleaseService) SupportedMajors() []uint64 {
	s.freshen()
	return s.cat.SupportedMajors()
}

func (s *ReleaseService) ObsoleteMajors() []uint64 {
	s.freshen()
	return s.cat.ObsoleteMajors()
}
