package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidtok/db"
)

// Preferences are the explicit interests a profile picked during onboarding.
type Preferences struct {
	Channels  []string  `json:"channels"`
	Topics    []string  `json:"topics"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Preferences returns the saved preferences, or nil when the profile has none.
func (s *Store) Preferences(ctx context.Context, profileID string) (*Preferences, error) {
	var channels, topics string
	var updatedAt int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT channels, topics, updated_at FROM preferences WHERE profile_id = ?`,
		profileID).Scan(&channels, &topics, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	p := &Preferences{UpdatedAt: fromMillis(updatedAt)}
	if err := json.Unmarshal([]byte(channels), &p.Channels); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	if err := json.Unmarshal([]byte(topics), &p.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	return p, nil
}

// SavePreferences replaces the profile's preferences wholesale.
func (s *Store) SavePreferences(ctx context.Context, profileID string, channels, topics []string) (*Preferences, error) {
	p := &Preferences{
		Channels:  cleanList(channels),
		Topics:    cleanList(topics),
		UpdatedAt: fromMillis(s.now().UnixMilli()),
	}
	channelsJSON, _ := json.Marshal(p.Channels)
	topicsJSON, _ := json.Marshal(p.Topics)

	return db.InTx(ctx, s.DB, func(conn *db.CompatConn) (*Preferences, error) {
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM preferences WHERE profile_id = ?`, profileID); err != nil {
			return nil, fmt.Errorf("clear preferences: %w", err)
		}
		if _, err := conn.ExecContext(ctx,
			`INSERT INTO preferences (profile_id, channels, topics, updated_at) VALUES (?, ?, ?, ?)`,
			profileID, string(channelsJSON), string(topicsJSON), p.UpdatedAt.UnixMilli()); err != nil {
			return nil, fmt.Errorf("insert preferences: %w", err)
		}
		return p, nil
	})
}

// cleanList trims entries, drops blanks and keeps the first occurrence of
// each value.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
