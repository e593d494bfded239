package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

const (
	IndexFile    = "index.json"
	DefaultLimit = 50

	stampLayout     = "20060102T150405Z"
	timestampLayout = "2006-01-02 15:04 UTC"
)

var ErrNotFound = errors.New("digest not found")

var digestName = regexp.MustCompile(`^digest-\d{8}T\d{6}Z(-\d+)?\.html$`)

type Entry struct {
	Subject   string `json:"subject"`
	Filename  string `json:"filename"`
	ItemCount int    `json:"item_count"`
	Timestamp string `json:"timestamp"`
}

// Time parses the entry timestamp. Entries written by hand may not parse.
func (e Entry) Time() (time.Time, bool) {
	t, err := time.Parse(timestampLayout, e.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Archive stores rendered digests as HTML files next to a newest-first index.
type Archive struct {
	dir   string
	limit int
	now   func() time.Time
	mu    sync.Mutex
}

func New(dir string) *Archive {
	return &Archive{
		dir:   dir,
		limit: DefaultLimit,
		now:   time.Now,
	}
}

func (a *Archive) Dir() string {
	return a.dir
}

// Persist writes the digest HTML and records it at the front of the index.
// Entries beyond the limit are dropped together with their files.
func (a *Archive) Persist(subject, html string, itemCount int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	now := a.now().UTC()
	filename := a.uniqueName(now)

	if err := writeAtomic(filepath.Join(a.dir, filename), []byte(html)); err != nil {
		return "", fmt.Errorf("failed to write digest: %w", err)
	}

	index, err := a.load()
	if err != nil {
		slog.Warn("Digest index unreadable, starting a new one", "error", err)
		index = nil
	}

	entry := Entry{
		Subject:   subject,
		Filename:  filename,
		ItemCount: itemCount,
		Timestamp: now.Format(timestampLayout),
	}
	index = append([]Entry{entry}, index...)

	var evicted []Entry
	if len(index) > a.limit {
		evicted = index[a.limit:]
		index = index[:a.limit]
	}

	if err := a.save(index); err != nil {
		return "", err
	}

	for _, e := range evicted {
		if !digestName.MatchString(e.Filename) {
			continue
		}
		if err := os.Remove(filepath.Join(a.dir, e.Filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove old digest", "file", e.Filename, "error", err)
		}
	}

	slog.Debug("Digest archived", "file", filename, "items", itemCount)

	return filename, nil
}

// Index returns the recorded digests, newest first. A missing index is empty.
func (a *Archive) Index() ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load()
}

// Prune removes index entries whose HTML file no longer exists and returns
// the remaining index.
func (a *Archive) Prune() ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	index, err := a.load()
	if err != nil {
		return nil, err
	}

	kept := make([]Entry, 0, len(index))
	for _, e := range index {
		if _, err := a.path(e.Filename); err == nil {
			kept = append(kept, e)
		}
	}

	if len(kept) != len(index) {
		if err := a.save(kept); err != nil {
			return nil, err
		}
		slog.Info("Pruned digest index", "removed", len(index)-len(kept))
	}

	return kept, nil
}

// Latest returns the newest digest whose file still exists, or nil.
func (a *Archive) Latest() (*Entry, error) {
	index, err := a.Prune()
	if err != nil {
		return nil, err
	}
	if len(index) == 0 {
		return nil, nil
	}
	return &index[0], nil
}

// Path resolves an archived digest file. Names that are not digest files or
// do not exist yield ErrNotFound.
func (a *Archive) Path(name string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path(name)
}

func (a *Archive) Read(name string) ([]byte, error) {
	path, err := a.Path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read digest: %w", err)
	}
	return data, nil
}

func (a *Archive) path(name string) (string, error) {
	if !digestName.MatchString(name) {
		return "", ErrNotFound
	}

	path := filepath.Join(a.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

func (a *Archive) uniqueName(now time.Time) string {
	base := "digest-" + now.Format(stampLayout)
	name := base + ".html"
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(a.dir, name)); errors.Is(err, os.ErrNotExist) {
			return name
		}
		name = fmt.Sprintf("%s-%d.html", base, n)
	}
}

func (a *Archive) load() ([]Entry, error) {
	data, err := os.ReadFile(filepath.Join(a.dir, IndexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read digest index: %w", err)
	}

	var index []Entry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse digest index: %w", err)
	}
	if index == nil {
		index = []Entry{}
	}
	return index, nil
}

func (a *Archive) save(index []Entry) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode digest index: %w", err)
	}

	if err := writeAtomic(filepath.Join(a.dir, IndexFile), data); err != nil {
		return fmt.Errorf("failed to write digest index: %w", err)
	}
	return nil
}

// writeAtomic replaces path through a temporary file in the same directory,
// so readers see either the old or the new content.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
