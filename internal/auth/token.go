// Package auth persists the bearer token between CLI invocations.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned by Load when no token has been saved.
var ErrNoToken = errors.New("not logged in")

// ErrExpired is returned by Load when the saved token has expired.
var ErrExpired = errors.New("session expired, please log in again")

// TokenStore keeps a single bearer token in a file readable only by the
// current user.
type TokenStore struct {
	path string
	now  func() time.Time
}

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path, now: time.Now}
}

// DefaultTokenPath returns ~/.config/flowboard/token (or the platform
// equivalent).
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "flowboard", "token"), nil
}

func (s *TokenStore) Path() string { return s.path }

// Load returns the saved token. A token that carries an expiry in the past
// yields ErrExpired; tokens without a readable expiry are returned as is.
func (s *TokenStore) Load() (string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", ErrNoToken
	}
	if exp, ok := ExpiresAt(tok); ok && !s.now().Before(exp) {
		return "", ErrExpired
	}
	return tok, nil
}

func (s *TokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// Clear removes the saved token. Clearing a missing token is not an error.
func (s *TokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// ExpiresAt reads the exp claim of a JWT without verifying its signature.
// The server remains the authority; this only avoids sending a token that
// is known to be stale.
func ExpiresAt(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
