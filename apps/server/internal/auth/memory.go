package auth

import (
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Manager keeps accounts and sessions in memory, for single-binary runs and tests.
type Manager struct {
	mu sync.Mutex

	sessionTTL time.Duration
	sessions   map[string]sessionRecord // token -> username
	accounts   map[string][]byte        // normalized username -> bcrypt hash
}

type sessionRecord struct {
	Username  string
	ExpiresAt time.Time
}

func NewManager(sessionTTL time.Duration) *Manager {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &Manager{
		sessionTTL: sessionTTL,
		sessions:   make(map[string]sessionRecord),
		accounts:   make(map[string][]byte),
	}
}

func (m *Manager) Close() error { return nil }

func (m *Manager) Register(username, password string) (string, error) {
	if err := ValidateUsername(username); err != nil {
		return "", err
	}
	if err := validatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	key := NormalizeUsername(username)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.accounts[key]; exists {
		return "", ErrUsernameTaken
	}
	m.accounts[key] = hash
	return m.issueLocked(key, time.Now())
}

func (m *Manager) Login(username, password string) (string, error) {
	key := NormalizeUsername(username)
	if key == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.accounts[key]
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return m.issueLocked(key, time.Now())
}

// ResolveSession validates token and slides its expiry forward.
func (m *Manager) ResolveSession(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[token]
	if !ok {
		return "", false
	}
	now := time.Now()
	if !now.Before(rec.ExpiresAt) {
		delete(m.sessions, token)
		return "", false
	}
	rec.ExpiresAt = now.Add(m.sessionTTL)
	m.sessions[token] = rec
	return rec.Username, true
}

func (m *Manager) Logout(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

func (m *Manager) issueLocked(username string, now time.Time) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	m.sessions[token] = sessionRecord{Username: username, ExpiresAt: now.Add(m.sessionTTL)}
	return token, nil
}
