package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// SQLManager stores accounts and sessions in sqlite or postgres.
type SQLManager struct {
	db         *sql.DB
	driver     string
	sessionTTL time.Duration
}

func NewSQLiteManager(dbPath string, sessionTTL time.Duration) (*SQLManager, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		if parent := filepath.Dir(dbPath); parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newSQLManager(ctx, db, "sqlite", sessionTTL)
}

func NewPostgresManager(dsn string, sessionTTL time.Duration) (*SQLManager, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return newSQLManager(ctx, db, "postgres", sessionTTL)
}

func newSQLManager(ctx context.Context, db *sql.DB, driver string, sessionTTL time.Duration) (*SQLManager, error) {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	m := &SQLManager{db: db, driver: driver, sessionTTL: sessionTTL}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS accounts (
    username TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    created_at_ms BIGINT NOT NULL,
    last_login_at_ms BIGINT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS sessions (
    token TEXT PRIMARY KEY,
    username TEXT NOT NULL REFERENCES accounts(username),
    expires_at_ms BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_username ON sessions(username)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("auth schema: %w", err)
		}
	}
	return m, nil
}

func (m *SQLManager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *SQLManager) Register(username, password string) (string, error) {
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, m.rebind(`
INSERT INTO accounts (username, password_hash, created_at_ms, last_login_at_ms)
VALUES (?, ?, ?, ?)`), key, string(hash), now.UnixMilli(), now.UnixMilli()); err != nil {
		if m.isUniqueViolation(err) {
			return "", ErrUsernameTaken
		}
		return "", err
	}
	token, err := m.issueTx(ctx, tx, key, now)
	if err != nil {
		return "", err
	}
	return token, tx.Commit()
}

func (m *SQLManager) Login(username, password string) (string, error) {
	key := NormalizeUsername(username)
	if key == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var hash string
	err := m.db.QueryRowContext(ctx, m.rebind(`SELECT password_hash FROM accounts WHERE username = ?`), key).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, m.rebind(`UPDATE accounts SET last_login_at_ms = ? WHERE username = ?`), now.UnixMilli(), key); err != nil {
		return "", err
	}
	token, err := m.issueTx(ctx, tx, key, now)
	if err != nil {
		return "", err
	}
	return token, tx.Commit()
}

func (m *SQLManager) ResolveSession(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var username string
	var expiresAtMs int64
	err := m.db.QueryRowContext(ctx, m.rebind(`SELECT username, expires_at_ms FROM sessions WHERE token = ?`), token).
		Scan(&username, &expiresAtMs)
	if err != nil {
		return "", false
	}
	now := time.Now().UTC()
	if now.UnixMilli() >= expiresAtMs {
		_, _ = m.db.ExecContext(ctx, m.rebind(`DELETE FROM sessions WHERE token = ?`), token)
		return "", false
	}
	_, _ = m.db.ExecContext(ctx, m.rebind(`UPDATE sessions SET expires_at_ms = ? WHERE token = ?`),
		now.Add(m.sessionTTL).UnixMilli(), token)
	return username, true
}

func (m *SQLManager) Logout(token string) {
	if token == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _ = m.db.ExecContext(ctx, m.rebind(`DELETE FROM sessions WHERE token = ?`), token)
}

func (m *SQLManager) issueTx(ctx context.Context, tx *sql.Tx, username string, now time.Time) (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		_, err = tx.ExecContext(ctx, m.rebind(`INSERT INTO sessions (token, username, expires_at_ms) VALUES (?, ?, ?)`),
			token, username, now.Add(m.sessionTTL).UnixMilli())
		if err != nil {
			if m.isUniqueViolation(err) {
				continue
			}
			return "", err
		}
		return token, nil
	}
	return "", fmt.Errorf("failed to generate unique session token")
}

// rebind turns ? placeholders into $n for postgres.
func (m *SQLManager) rebind(query string) string {
	if m.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (m *SQLManager) isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
