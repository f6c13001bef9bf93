package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Writer appends one download to its part file. It is used by a single
// goroutine; Complete and Fail are terminal and idempotent.
type Writer struct {
	store   *Store
	entryID string
	videoID string
	f       *os.File

	mu   sync.Mutex
	n    int64
	done bool
}

func (w *Writer) EntryID() string { return w.entryID }

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return 0, os.ErrClosed
	}
	n, err := w.f.Write(p)
	w.n += int64(n)
	total := w.n
	w.store.update(w.entryID, func(e *Entry) { e.BytesWritten = total })
	return n, err
}

// Complete closes the part file and renames it to the final cache path.
func (w *Writer) Complete() error {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return nil
	}
	w.done = true
	w.mu.Unlock()

	s := w.store
	partPath := w.f.Name()
	if err := w.f.Close(); err != nil {
		s.update(w.entryID, func(e *Entry) { e.State, e.Reason = StateFailed, "close: "+err.Error() })
		return fmt.Errorf("close part file: %w", err)
	}
	final := s.finalPath(w.videoID)
	if err := os.Rename(partPath, final); err != nil {
		s.update(w.entryID, func(e *Entry) { e.State, e.Reason = StateFailed, "rename: "+err.Error() })
		return fmt.Errorf("finalize cache file: %w", err)
	}
	s.update(w.entryID, func(e *Entry) {
		e.State = StateComplete
		e.Path = final
	})
	s.logger.Info("cache entry complete", "video", w.videoID, "size", humanize.IBytes(uint64(w.n)))
	s.snapshot()

	if s.archiver != nil {
		s.archiveWG.Add(1)
		go func() {
			defer s.archiveWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := s.archiver.Archive(ctx, w.videoID, final); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("archive upload failed", "video", w.videoID, "err", err)
			}
		}()
	}
	return nil
}

// Fail closes the part file, keeps it on disk and marks the entry failed.
func (w *Writer) Fail(reason string) {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	w.done = true
	w.mu.Unlock()

	s := w.store
	if err := w.f.Close(); err != nil {
		s.logger.Warn("close part file", "video", w.videoID, "err", err)
	}
	s.update(w.entryID, func(e *Entry) {
		e.State = StateFailed
		e.Reason = reason
	})
	s.logger.Warn("cache entry failed", "video", w.videoID, "reason", reason, "written", humanize.IBytes(uint64(w.n)))
	s.snapshot()
}
