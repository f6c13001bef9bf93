package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateProfile registers a named profile and returns its id.
func (s *Store) CreateProfile(ctx context.Context, username, passwordHash string) (string, error) {
	id := uuid.New().String()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO profiles (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		id, username, passwordHash, s.now().UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("create profile: %w", err)
	}
	return id, nil
}

// ProfileCredentials returns the id and password hash for username.
func (s *Store) ProfileCredentials(ctx context.Context, username string) (id, passwordHash string, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM profiles WHERE username = ?`,
		username).Scan(&id, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("load profile: %w", err)
	}
	return id, passwordHash, nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key")
}
