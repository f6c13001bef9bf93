package cache

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
)

// JanitorConfig bounds the cache. A zero TTL or MaxBytes disables that rule.
type JanitorConfig struct {
	Interval time.Duration
	TTL      time.Duration
	MaxBytes int64
}

// RunJanitor sweeps the cache every cfg.Interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, cfg JanitorConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	t := time.NewTicker(cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(ctx, cfg)
		}
	}
}

// Sweep evicts idle entries older than the TTL, then the oldest
// non-downloading entries until usage is within MaxBytes.
func (s *Store) Sweep(ctx context.Context, cfg JanitorConfig) {
	if cfg.TTL > 0 {
		now := s.now()
		for _, c := range s.evictable() {
			age := now.Sub(c.LastUsed)
			if age <= cfg.TTL {
				continue
			}
			s.logger.Info("janitor dropping idle entry", "video", c.VideoID, "age", age.Truncate(time.Second))
			if err := s.Evict(ctx, c.VideoID); err != nil && !errors.Is(err, ErrNotFound) {
				s.logger.Debug("janitor skip", "video", c.VideoID, "err", err)
			}
		}
	}

	if cfg.MaxBytes <= 0 {
		return
	}
	used, err := s.Usage()
	if err != nil {
		s.logger.Warn("janitor usage", "err", err)
		return
	}
	for used > cfg.MaxBytes {
		cands := s.evictable()
		if len(cands) == 0 {
			s.logger.Info("cache over cap but nothing evictable",
				"used", humanize.IBytes(uint64(used)), "max", humanize.IBytes(uint64(cfg.MaxBytes)))
			return
		}
		oldest := cands[0]
		s.logger.Info("janitor evicting",
			"video", oldest.VideoID, "used", humanize.IBytes(uint64(used)), "max", humanize.IBytes(uint64(cfg.MaxBytes)))
		if err := s.Evict(ctx, oldest.VideoID); err != nil {
			s.logger.Debug("janitor skip", "video", oldest.VideoID, "err", err)
			return
		}
		if used, err = s.Usage(); err != nil {
			return
		}
	}
}

// candidate is a video whose entries may all be evicted together.
type candidate struct {
	VideoID  string
	LastUsed time.Time
}

// evictable returns videos with no download in progress, least recently
// updated first.
func (s *Store) evictable() []candidate {
	latest := make(map[string]time.Time)
	busy := make(map[string]bool)
	for _, e := range s.List() {
		if e.State == StateDownloading {
			busy[e.VideoID] = true
		}
		if e.UpdatedAt.After(latest[e.VideoID]) {
			latest[e.VideoID] = e.UpdatedAt
		}
	}
	out := make([]candidate, 0, len(latest))
	for id, at := range latest {
		if !busy[id] {
			out = append(out, candidate{VideoID: id, LastUsed: at})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUsed.Equal(out[j].LastUsed) {
			return out[i].VideoID < out[j].VideoID
		}
		return out[i].LastUsed.Before(out[j].LastUsed)
	})
	return out
}
