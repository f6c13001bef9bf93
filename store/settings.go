package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Settings struct {
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
}

// DefaultSettings is returned for profiles that never saved settings.
var DefaultSettings = Settings{Volume: 1, Muted: false}

func (s *Store) Settings(ctx context.Context, profileID string) (Settings, error) {
	var st Settings
	var muted int
	err := s.DB.QueryRowContext(ctx,
		`SELECT volume, muted FROM settings WHERE profile_id = ?`,
		profileID).Scan(&st.Volume, &muted)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	st.Muted = muted != 0
	return st, nil
}

func (s *Store) SaveSettings(ctx context.Context, profileID string, st Settings) error {
	muted := 0
	if st.Muted {
		muted = 1
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO settings (profile_id, volume, muted, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (profile_id) DO UPDATE SET volume = excluded.volume, muted = excluded.muted, updated_at = excluded.updated_at`,
		profileID, st.Volume, muted, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
