// Package cache tracks relayed videos written to the local cache directory.
//
// A download is written to <dir>/<videoID>.<entryID>.part and renamed to
// <dir>/<videoID>.mp4 when it completes. Failed and aborted downloads keep
// their .part file until evicted or purged.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidtok/metrics"
)

type State string

const (
	StateDownloading State = "downloading"
	StateComplete    State = "complete"
	StateFailed      State = "failed"
)

var (
	ErrNotFound = errors.New("cache entry not found")
	ErrInUse    = errors.New("cache entry is downloading")
)

// Entry is the lifecycle record of one download.
type Entry struct {
	ID           string    `json:"id"`
	VideoID      string    `json:"videoId"`
	Path         string    `json:"path"`
	State        State     `json:"state"`
	BytesWritten int64     `json:"bytesWritten"`
	Reason       string    `json:"reason,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Archiver copies completed downloads to durable storage.
type Archiver interface {
	Archive(ctx context.Context, videoID, path string) error
	Remove(ctx context.Context, videoID string) error
}

// Store owns the cache directory and the entries written into it.
type Store struct {
	dir      string
	logger   *slog.Logger
	archiver Archiver
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry

	archiveWG sync.WaitGroup
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option      { return func(s *Store) { s.logger = l } }
func WithArchiver(a Archiver) Option        { return func(s *Store) { s.archiver = a } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New creates dir if absent and returns an empty Store over it.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	s := &Store{
		dir:     dir,
		logger:  slog.Default(),
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) finalPath(videoID string) string {
	return filepath.Join(s.dir, videoID+".mp4")
}

// Begin registers a downloading entry and opens its part file.
func (s *Store) Begin(videoID string) (*Writer, error) {
	entryID := uuid.New().String()
	path := filepath.Join(s.dir, videoID+"."+entryID+".part")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create part file: %w", err)
	}

	now := s.now()
	e := &Entry{
		ID:        entryID,
		VideoID:   videoID,
		Path:      path,
		State:     StateDownloading,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.entries[entryID] = e
	s.mu.Unlock()
	s.snapshot()

	return &Writer{store: s, entryID: entryID, videoID: videoID, f: f}, nil
}

// Get returns the most recently started entry for videoID.
func (s *Store) Get(videoID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Entry
	for _, e := range s.entries {
		if e.VideoID != videoID {
			continue
		}
		if latest == nil || e.StartedAt.After(latest.StartedAt) {
			latest = e
		}
	}
	if latest == nil {
		return Entry{}, false
	}
	return *latest, true
}

// List returns copies of all entries, oldest first.
func (s *Store) List() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Evict removes every entry and file for videoID. It refuses while any
// download of videoID is in progress.
func (s *Store) Evict(ctx context.Context, videoID string) error {
	s.mu.Lock()
	var victims []*Entry
	for _, e := range s.entries {
		if e.VideoID != videoID {
			continue
		}
		if e.State == StateDownloading {
			s.mu.Unlock()
			return ErrInUse
		}
		victims = append(victims, e)
	}
	if len(victims) == 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	for _, e := range victims {
		delete(s.entries, e.ID)
	}
	s.mu.Unlock()

	for _, e := range victims {
		removeQuiet(e.Path, s.logger)
	}
	removeQuiet(s.finalPath(videoID), s.logger)
	if s.archiver != nil {
		if err := s.archiver.Remove(ctx, videoID); err != nil {
			s.logger.Warn("archive remove failed", "video", videoID, "err", err)
		}
	}
	s.logger.Info("cache entry evicted", "video", videoID, "entries", len(victims))
	s.snapshot()
	return nil
}

// Purge deletes every cached and partial file in the directory and forgets
// all entries. It is called at shutdown after the server has drained.
func (s *Store) Purge() error {
	s.archiveWG.Wait()

	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()

	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	var errs []error
	removed := 0
	for _, f := range files {
		if f.IsDir() || !isCacheFile(f.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, f.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	s.logger.Info("cache purged", "dir", s.dir, "files", removed)
	s.snapshot()
	return errors.Join(errs...)
}

// Usage returns the bytes held by cache files in the directory.
func (s *Store) Usage() (int64, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}
	var total int64
	for _, f := range files {
		if f.IsDir() || !isCacheFile(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

func (s *Store) update(entryID string, fn func(e *Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[entryID]; ok {
		fn(e)
		e.UpdatedAt = s.now()
	}
}

func (s *Store) snapshot() {
	if s.metrics == nil {
		return
	}
	counts := map[string]int{}
	s.mu.Lock()
	for _, e := range s.entries {
		counts[string(e.State)]++
	}
	s.mu.Unlock()
	used, _ := s.Usage()
	s.metrics.CacheSnapshot(counts, used)
}

func isCacheFile(name string) bool {
	return strings.HasSuffix(name, ".mp4") || strings.HasSuffix(name, ".part")
}

func removeQuiet(path string, logger *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove cache file", "path", path, "err", err)
	}
}
