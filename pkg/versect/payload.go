package versect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/opencontainers/go-digest"
	"github.com/otiai10/copy"
	"github.com/sirupsen/logrus"
)

// ErrInvalidSource is returned when a payload source descriptor cannot be
// materialized.
var ErrInvalidSource = errors.New("invalid payload source")

// DefaultEntryFile is the file a payload is entered through if not configured
// otherwise.
const DefaultEntryFile = "main.js"

// A Payload is a materialized, runnable test unit: a directory of resources
// plus the entry path the binary under test is pointed at.
type Payload struct {
	Dir       string // The directory holding the materialized payload
	EntryPath string // The path of the payload's entry file

	temporary bool
}

// Cleanup removes the materialized payload directory if it was created by the
// loader. Payloads pointing at user-owned directories are left untouched.
func (p *Payload) Cleanup() error {
	if !p.temporary {
		return nil
	}
	return os.RemoveAll(p.Dir)
}

// gistIDPattern matches the hex ids gists are addressed by.
var gistIDPattern = regexp.MustCompile(`^[0-9a-f]{16,32}$`)

// A PayloadLoader materializes payloads from the supported source
// descriptors: a local folder, a git reference, a gist id, a plain HTTP(S)
// URL or an inline source string.
type PayloadLoader struct {
	Entry string // The entry file name payloads are expected to provide

	Client *http.Client   // The client used to fetch remote sources
	Log    *logrus.Logger // The log to which information gets printed to
}

// Resolve materializes the passed source descriptor into a payload with an
// entry path. Sources that cannot be materialized fail with ErrInvalidSource.
func (l *PayloadLoader) Resolve(ctx context.Context, source string) (*Payload, error) {
	entry := l.Entry
	if entry == "" {
		entry = DefaultEntryFile
	}
	log := l.logger()

	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: empty source descriptor", ErrInvalidSource)
	}

	// Local folders are copied aside so test runs can't mutate the original
	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		log.Debugf("Materializing payload from local file %s", source)
		content, err := os.ReadFile(source)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("%w: reading payload file %s failed", ErrInvalidSource, source), err)
		}
		return l.writeInline(content, entry)
	} else if err == nil && info.IsDir() {
		log.Debugf("Materializing payload from local folder %s", source)
		dir, err := l.payloadDir(source)
		if err != nil {
			return nil, err
		}
		if err := copy.Copy(source, dir, copy.Options{Specials: true}); err != nil {
			os.RemoveAll(dir)
			return nil, errors.Join(fmt.Errorf("copying payload folder %s failed", source), err)
		}
		return l.finish(dir, entry)
	}

	if url, ok := gitSourceURL(source); ok {
		log.Debugf("Materializing payload from git source %s", url)
		dir, err := l.payloadDir(source)
		if err != nil {
			return nil, err
		}
		cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", url, dir)
		if out, err := cmd.CombinedOutput(); err != nil {
			os.RemoveAll(dir)
			return nil, errors.Join(fmt.Errorf("%w: git clone of %s failed, output: %s", ErrInvalidSource, url, out), err)
		}
		return l.finish(dir, entry)
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		log.Debugf("Materializing payload from URL %s", source)
		content, err := l.fetch(ctx, source)
		if err != nil {
			return nil, err
		}
		return l.writeInline(content, entry)
	}

	// Anything else is treated as inline source text
	log.Debugf("Materializing payload from inline source (%d bytes)", len(source))
	return l.writeInline([]byte(source), entry)
}

// payloadDir creates a fresh content-addressed directory for the passed
// source descriptor.
func (l *PayloadLoader) payloadDir(source string) (string, error) {
	id := digest.FromString(source).Encoded()[:12]
	dir, err := os.MkdirTemp("", "versect-payload-"+id+"-")
	if err != nil {
		return "", err
	}
	return dir, nil
}

// finish validates that the materialized payload provides the entry file.
func (l *PayloadLoader) finish(dir, entry string) (*Payload, error) {
	entryPath := filepath.Join(dir, entry)
	if _, err := os.Stat(entryPath); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: payload has no entry file %s", ErrInvalidSource, entry)
	}
	return &Payload{Dir: dir, EntryPath: entryPath, temporary: true}, nil
}

// writeInline materializes raw source content as the payload's entry file.
func (l *PayloadLoader) writeInline(content []byte, entry string) (*Payload, error) {
	dir, err := l.payloadDir(string(content))
	if err != nil {
		return nil, err
	}
	entryPath := filepath.Join(dir, entry)
	if err := os.WriteFile(entryPath, content, 0644); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return &Payload{Dir: dir, EntryPath: entryPath, temporary: true}, nil
}

func (l *PayloadLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	client := l.Client
	if client == nil {
		client = cleanhttp.DefaultClient()
		client.Timeout = 30 * time.Second
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("%w: %s", ErrInvalidSource, url), err)
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("%w: fetching %s failed", ErrInvalidSource, url), err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s answered with status %d", ErrInvalidSource, url, res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

func (l *PayloadLoader) logger() *logrus.Logger {
	if l.Log != nil {
		return l.Log
	}
	// Mute logger
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// gitSourceURL recognizes git references and gist ids and returns the URL to
// clone them from.
func gitSourceURL(source string) (string, bool) {
	if gistIDPattern.MatchString(source) {
		return "https://gist.github.com/" + source + ".git", true
	}
	if strings.HasSuffix(source, ".git") || strings.HasPrefix(source, "git@") || strings.HasPrefix(source, "git://") {
		return source, true
	}
	return "", false
}
