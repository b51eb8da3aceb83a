package versect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"
)

// ErrExecutableNotFound is returned when a reference is neither an existing
// local path nor a version the mirror knows about.
var ErrExecutableNotFound = errors.New("executable not found")

// InstallerConfig configures an Installer.
type InstallerConfig struct {
	MirrorURL string // Base URL of the release mirror. The binary for version v lives at MirrorURL/v/Asset
	Asset     string // The file name of the release binary on the mirror

	CacheDir string // Where downloaded binaries are kept. Defaults to the user cache directory

	MaxConcurrentInstalls uint // The max amount of downloads that may run concurrently, or 0 if no limit

	Client *http.Client   // The client used for downloads
	Fs     afero.Fs       // The filesystem holding the binary cache
	Log    *logrus.Logger // The log to which information gets printed to
}

// An Installer resolves version references into runnable executables,
// downloading and caching release binaries on demand. Resolve is idempotent
// for repeated calls with the same version and safe for concurrent use from
// multiple sessions.
type Installer struct {
	mirrorURL string
	asset     string
	binDir    string

	client *http.Client
	fs     afero.Fs
	log    *logrus.Logger

	installSemaphore *semaphore.Weighted
	installing       sync.Map // Map of locks per version to ensure only one download per version runs at once
}

// NewInstaller creates an installer for the given mirror.
func NewInstaller(cfg InstallerConfig) (*Installer, error) {
	if cfg.MirrorURL == "" {
		return nil, errors.New("no release mirror URL configured")
	}
	if cfg.Asset == "" {
		return nil, errors.New("no release asset name configured")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir()
	}
	if cfg.MaxConcurrentInstalls == 0 {
		cfg.MaxConcurrentInstalls = math.MaxInt32
	}
	if cfg.Client == nil {
		cfg.Client = cleanhttp.DefaultClient()
		cfg.Client.Timeout = 5 * time.Minute
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Log == nil {
		// Mute logger
		cfg.Log = logrus.New()
		cfg.Log.SetOutput(io.Discard)
	}

	return &Installer{
		mirrorURL:        strings.TrimSuffix(cfg.MirrorURL, "/"),
		asset:            cfg.Asset,
		binDir:           filepath.Join(cfg.CacheDir, "bin"),
		client:           cfg.Client,
		fs:               cfg.Fs,
		log:              cfg.Log,
		installSemaphore: semaphore.NewWeighted(int64(cfg.MaxConcurrentInstalls)),
	}, nil
}

// Resolve returns the path of a runnable executable for the passed reference.
// An existing file path is returned as-is. A known version is installed into
// the binary cache on first use and reused afterwards. Anything else fails
// with ErrExecutableNotFound.
func (i *Installer) Resolve(ctx context.Context, ref string) (string, error) {
	if info, err := i.fs.Stat(ref); err == nil && !info.IsDir() {
		return ref, nil
	}

	version, err := ParseVersion(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %q is neither an existing path nor a version", ErrExecutableNotFound, ref)
	}

	binPath := filepath.Join(i.binDir, version.String(), i.asset)

	// Take the per-version lock so concurrent sessions never download the
	// same version twice
	newLock := &sync.Mutex{}
	l, _ := i.installing.LoadOrStore(version.String(), newLock)
	lock := l.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	if _, err := i.fs.Stat(binPath); err == nil {
		i.log.Debugf("Version %s already installed at %s, reusing binary", version, binPath)
		return binPath, nil
	}

	if err := i.installSemaphore.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer i.installSemaphore.Release(1)

	if err := i.download(ctx, version, binPath); err != nil {
		return "", err
	}
	return binPath, nil
}

// download fetches the release binary of the passed version and moves it into
// place atomically, so a concurrent reader either sees the complete binary or
// none at all.
func (i *Installer) download(ctx context.Context, version *Version, binPath string) error {
	url := fmt.Sprintf("%s/%s/%s", i.mirrorURL, version, i.asset)
	i.log.Infof("Installing version %s from %s", version, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Join(fmt.Errorf("building download request for version %s failed", version), err)
	}
	res, err := i.client.Do(req)
	if err != nil {
		return errors.Join(fmt.Errorf("download of version %s from %s failed", version, url), err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: mirror has no binary for version %s", ErrExecutableNotFound, version)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("mirror answered with status %d for version %s", res.StatusCode, version)
	}

	if err := i.fs.MkdirAll(filepath.Dir(binPath), 0755); err != nil {
		return errors.Join(fmt.Errorf("creating install directory for version %s failed", version), err)
	}

	partialPath := binPath + ".partial"
	file, err := i.fs.OpenFile(partialPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return errors.Join(fmt.Errorf("creating download file for version %s failed", version), err)
	}
	if _, err := io.Copy(file, res.Body); err != nil {
		file.Close()
		return errors.Join(fmt.Errorf("writing binary of version %s failed", version), err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := i.fs.Chmod(partialPath, 0755); err != nil {
		return err
	}
	if err := i.fs.Rename(partialPath, binPath); err != nil {
		return errors.Join(fmt.Errorf("activating binary of version %s failed", version), err)
	}

	i.log.Infof("Installed version %s at %s", version, binPath)
	return nil
}
