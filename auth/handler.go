package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"vidtok/httputil"
	"vidtok/store"
)

const maxPasswordLen = 72 // bcrypt truncates at 72 bytes

const tokenTTL = 30 * 24 * time.Hour

type contextKey string

// ProfileIDKey is the context key used to store the resolved profile ID.
const ProfileIDKey contextKey = "profile_id"

// ProfileID returns the profile selected by the request's bearer token, or
// store.DefaultProfile when there is none.
func ProfileID(r *http.Request) string {
	if id, ok := r.Context().Value(ProfileIDKey).(string); ok && id != "" {
		return id
	}
	return store.DefaultProfile
}

// WithProfile returns a copy of ctx carrying profileID.
func WithProfile(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, ProfileIDKey, profileID)
}

// Handler holds dependencies for profile account endpoints.
type Handler struct {
	Store     *store.Store
	JWTSecret string
}

// Credentials is the JSON body for register and login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleRegister creates a named profile.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req Credentials
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, 400, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 3 || len(req.Password) < 8 {
		httputil.WriteError(w, 400, "username must be 3+ chars, password 8+ chars")
		return
	}
	if len(req.Password) > maxPasswordLen {
		httputil.WriteError(w, 400, "password must not exceed 72 characters")
		return
	}
	if req.Username == store.DefaultProfile {
		httputil.WriteError(w, 409, "username already taken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httputil.WriteError(w, 500, "internal error")
		return
	}

	profileID, err := h.Store.CreateProfile(r.Context(), req.Username, string(hash))
	if errors.Is(err, store.ErrDuplicate) {
		httputil.WriteError(w, 409, "username already taken")
		return
	}
	if err != nil {
		slog.Error("create profile", "username", req.Username, "err", err)
		httputil.WriteError(w, 500, "failed to create profile")
		return
	}

	token, err := GenerateToken(profileID, h.JWTSecret)
	if err != nil {
		httputil.WriteError(w, 500, "failed to generate token")
		return
	}
	httputil.WriteJSON(w, 201, map[string]string{"token": token, "profile_id": profileID})
}

// HandleLogin authenticates an existing profile.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req Credentials
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, 400, "invalid request body")
		return
	}
	if len(req.Password) > maxPasswordLen {
		httputil.WriteError(w, 401, "invalid credentials")
		return
	}

	profileID, hash, err := h.Store.ProfileCredentials(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("load profile", "err", err)
		}
		httputil.WriteError(w, 401, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		httputil.WriteError(w, 401, "invalid credentials")
		return
	}

	token, err := GenerateToken(profileID, h.JWTSecret)
	if err != nil {
		httputil.WriteError(w, 500, "failed to generate token")
		return
	}
	httputil.WriteJSON(w, 200, map[string]string{"token": token, "profile_id": profileID})
}

// GenerateToken creates a signed JWT for the given profile ID and secret.
func GenerateToken(profileID, secret string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": profileID,
		"exp": now.Add(tokenTTL).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ProfileIDFromToken parses the Bearer JWT from a request using the given
// secret. It returns "" when the header is absent or the token is invalid.
func ProfileIDFromToken(r *http.Request, secret string) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}

	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return ""
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// OptionalAuth puts the token's profile ID into the context when a valid
// JWT is present. Requests without one fall through to the default profile.
func (h *Handler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if profileID := ProfileIDFromToken(r, h.JWTSecret); profileID != "" {
			r = r.WithContext(WithProfile(r.Context(), profileID))
		}
		next.ServeHTTP(w, r)
	})
}
