package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Viewed is one ViewedRecord. A video may be viewed many times.
type Viewed struct {
	ID       string    `json:"id"`
	VideoID  string    `json:"videoId"`
	ViewedAt time.Time `json:"viewedAt"`
}

// MarkViewed appends a viewed record stamped with the store clock.
func (s *Store) MarkViewed(ctx context.Context, profileID, videoID string) (Viewed, error) {
	v := Viewed{
		ID:       uuid.New().String(),
		VideoID:  videoID,
		ViewedAt: fromMillis(s.now().UnixMilli()),
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO viewed (id, profile_id, video_id, viewed_at) VALUES (?, ?, ?, ?)`,
		v.ID, profileID, v.VideoID, v.ViewedAt.UnixMilli())
	if err != nil {
		return Viewed{}, fmt.Errorf("mark viewed: %w", err)
	}
	return v, nil
}

// ViewedIDs returns the distinct ids viewed at or after since.
func (s *Store) ViewedIDs(ctx context.Context, profileID string, since time.Time) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT video_id FROM viewed WHERE profile_id = ? AND viewed_at >= ?`,
		profileID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list viewed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan viewed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PruneViewed deletes records older than before across all profiles.
func (s *Store) PruneViewed(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM viewed WHERE viewed_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune viewed: %w", err)
	}
	return res.RowsAffected()
}
