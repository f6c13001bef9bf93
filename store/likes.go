package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidtok/db"
)

// Like is a LikeRecord: presence means the profile likes the video.
type Like struct {
	VideoID  string                 `json:"videoId"`
	Title    string                 `json:"title"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	LikedAt  time.Time              `json:"likedAt"`
}

// ToggleLike flips the like state of videoID and returns the new state.
func (s *Store) ToggleLike(ctx context.Context, profileID, videoID, title string, metadata map[string]interface{}) (bool, error) {
	metaJSON := []byte("{}")
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return false, fmt.Errorf("encode like metadata: %w", err)
		}
		metaJSON = b
	}

	return db.InTx(ctx, s.DB, func(conn *db.CompatConn) (bool, error) {
		var exists int
		err := conn.QueryRowContext(ctx,
			`SELECT 1 FROM likes WHERE profile_id = ? AND video_id = ?`,
			profileID, videoID).Scan(&exists)
		switch {
		case err == nil:
			if _, err := conn.ExecContext(ctx,
				`DELETE FROM likes WHERE profile_id = ? AND video_id = ?`,
				profileID, videoID); err != nil {
				return false, fmt.Errorf("delete like: %w", err)
			}
			return false, nil
		case errors.Is(err, sql.ErrNoRows):
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO likes (profile_id, video_id, title, metadata, liked_at, seq)
				 VALUES (?, ?, ?, ?, ?, `+s.nextLikeSeq()+`)`,
				profileID, videoID, title, string(metaJSON), s.now().UnixMilli()); err != nil {
				return false, fmt.Errorf("insert like: %w", err)
			}
			return true, nil
		default:
			return false, fmt.Errorf("lookup like: %w", err)
		}
	})
}

// nextLikeSeq is the SQL expression numbering inserts, so likes made within
// the same millisecond still sort by recency.
func (s *Store) nextLikeSeq() string {
	if s.DB.IsPostgres() {
		return `nextval('likes_seq')`
	}
	return `(SELECT COALESCE(MAX(seq), 0) + 1 FROM likes)`
}

// IsLiked reports whether the profile currently likes videoID.
func (s *Store) IsLiked(ctx context.Context, profileID, videoID string) (bool, error) {
	var exists int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM likes WHERE profile_id = ? AND video_id = ?`,
		profileID, videoID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup like: %w", err)
	}
	return true, nil
}

// Likes returns the profile's likes, most recent first. limit <= 0 means all.
func (s *Store) Likes(ctx context.Context, profileID string, limit int) ([]Like, error) {
	query := `SELECT video_id, title, metadata, liked_at FROM likes
		WHERE profile_id = ? ORDER BY liked_at DESC, seq DESC`
	args := []interface{}{profileID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list likes: %w", err)
	}
	defer rows.Close()

	likes := make([]Like, 0)
	for rows.Next() {
		var l Like
		var metaJSON string
		var likedAt int64
		if err := rows.Scan(&l.VideoID, &l.Title, &metaJSON, &likedAt); err != nil {
			return nil, fmt.Errorf("scan like: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &l.Metadata); err != nil {
			slog.Warn("dropping unreadable like metadata", "video_id", l.VideoID, "err", err)
			l.Metadata = nil
		}
		l.LikedAt = fromMillis(likedAt)
		likes = append(likes, l)
	}
	return likes, rows.Err()
}

// RecentLikeTitles returns up to n non-empty like titles, most recent first.
func (s *Store) RecentLikeTitles(ctx context.Context, profileID string, n int) ([]string, error) {
	likes, err := s.Likes(ctx, profileID, 0)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, n)
	for _, l := range likes {
		if len(titles) == n {
			break
		}
		if l.Title != "" {
			titles = append(titles, l.Title)
		}
	}
	return titles, nil
}
