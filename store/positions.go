package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Position is the PlaybackState of one video.
type Position struct {
	VideoID         string    `json:"videoId"`
	PositionSeconds float64   `json:"position"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Position returns the last saved playback offset, 0 when unknown.
func (s *Store) Position(ctx context.Context, profileID, videoID string) (float64, error) {
	var pos float64
	err := s.DB.QueryRowContext(ctx,
		`SELECT position_seconds FROM playback_positions WHERE profile_id = ? AND video_id = ?`,
		profileID, videoID).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load position: %w", err)
	}
	return pos, nil
}

func (s *Store) SavePosition(ctx context.Context, profileID, videoID string, seconds float64) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO playback_positions (profile_id, video_id, position_seconds, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (profile_id, video_id) DO UPDATE SET position_seconds = excluded.position_seconds, updated_at = excluded.updated_at`,
		profileID, videoID, seconds, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}
