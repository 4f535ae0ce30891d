// Package auth issues session tokens for registered usernames. The gateway
// resolves a token presented at login to the username it acts as.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	defaultSessionTTL = 30 * 24 * time.Hour
	tokenBytes        = 32
)

var (
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]{2,31}$`)

// Service is the account/session contract used by the gateway and the HTTP
// routes.
type Service interface {
	Register(username, password string) (sessionToken string, err error)
	Login(username, password string) (sessionToken string, err error)
	ResolveSession(token string) (username string, ok bool)
	Logout(token string)
	Close() error
}

// NormalizeUsername is the identity key: trimmed and lower case.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername applies the account rules; guests are held to them too.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(strings.TrimSpace(username)) {
		return ErrInvalidUsername
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
