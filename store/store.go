// Package store persists per-profile user state: likes, preferences,
// player settings, playback positions and the viewed ledger.
package store

import (
	"errors"
	"regexp"
	"time"

	"vidtok/db"
)

// DefaultProfile owns all records written by unauthenticated requests.
const DefaultProfile = "default"

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Store is the SQL-backed implementation of the ViewedLedger,
// PreferenceStore, LikeStore, SettingsStore and PlaybackStore contracts.
// All writes are last-write-wins.
type Store struct {
	DB *db.CompatDB

	// Now is the clock used for every timestamp the store writes.
	Now func() time.Time
}

func New(d *db.CompatDB) *Store {
	return &Store{DB: d, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,32}$`)

// ValidVideoID reports whether id looks like an upstream video identifier.
func ValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}
