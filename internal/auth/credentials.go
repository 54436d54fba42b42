// Package auth persists the session token the client presents to the
// identity provider.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Makepad-fr/tada/internal/config"
)

const (
	credFileName = "credentials.json"
	tokenEnv     = "TADA_TOKEN"
)

// Token kinds.
const (
	KindSession = "session"
	KindJWT     = "jwt"
)

type TokenInfo struct {
	Token     string     `json:"token"`
	Kind      string     `json:"kind"`              // "session" | "jwt"
	Source    string     `json:"source"`            // "env" | "file"
	UserID    string     `json:"user_id,omitempty"` // set by the oauth login flow
	CreatedAt time.Time  `json:"created_at"`        // when we saved to file
	ExpiresAt *time.Time `json:"expires_at"`        // optional (JWT or server-provided)
}

// Store reads and writes credentials.json under Dir.
type Store struct {
	Dir string
}

// DefaultStore keeps credentials in ~/.tada.
func DefaultStore() (*Store, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path() string {
	return filepath.Join(s.Dir, credFileName)
}

// Get returns the active token or nil when not logged in.
// TADA_TOKEN wins over the file.
func (s *Store) Get() (*TokenInfo, error) {
	// 1) env override
	env := strings.TrimSpace(os.Getenv(tokenEnv))
	if env != "" {
		tok := stripBearer(env)
		ti := &TokenInfo{Token: tok, Kind: KindOf(tok), Source: "env"}
		ti.ExpiresAt = expiry(tok)
		return ti, nil
	}

	// 2) file
	b, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // not logged in
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var ti TokenInfo
	if err := json.Unmarshal(b, &ti); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	ti.Token = stripBearer(ti.Token)
	if ti.Kind == "" {
		ti.Kind = KindOf(ti.Token)
	}
	return &ti, nil
}

// Set saves a token with owner-only permissions.
func (s *Store) Set(token, userID string, expires *time.Time) error {
	token = stripBearer(strings.TrimSpace(token))
	if token == "" {
		return fmt.Errorf("empty token")
	}
	// ensure ~/.tada exists with 0700
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if expires == nil {
		expires = expiry(token)
	}
	ti := TokenInfo{
		Token:     token,
		Kind:      KindOf(token),
		Source:    "file",
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: expires,
	}
	b, err := json.MarshalIndent(ti, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	// write with 0600 (owner-only)
	if err := os.WriteFile(s.path(), b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Delete removes the credentials file. A missing file is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func stripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}
