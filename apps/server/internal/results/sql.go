package results

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLService stores results in sqlite or postgres. Both share the schema and
// differ only in placeholders and upsert syntax.
type SQLService struct {
	db     *sql.DB
	driver string
}

func NewSQLiteService(dbPath string) (*SQLService, error) {
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
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{`PRAGMA busy_timeout = 5000;`, `PRAGMA foreign_keys = ON;`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return newSQLService(ctx, db, "sqlite")
}

func NewPostgresService(dsn string) (*SQLService, error) {
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
	return newSQLService(ctx, db, "postgres")
}

func newSQLService(ctx context.Context, db *sql.DB, driver string) (*SQLService, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS game_results (
    game_id TEXT PRIMARY KEY,
    table_num INTEGER NOT NULL,
    game TEXT NOT NULL,
    score TEXT NOT NULL DEFAULT '',
    ended_at_ms BIGINT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS game_result_players (
    game_id TEXT NOT NULL REFERENCES game_results(game_id) ON DELETE CASCADE,
    username TEXT NOT NULL,
    seat INTEGER NOT NULL,
    code TEXT NOT NULL,
    PRIMARY KEY (game_id, username)
)`,
		`CREATE INDEX IF NOT EXISTS idx_game_result_players_user ON game_result_players(username)`,
		`CREATE INDEX IF NOT EXISTS idx_game_results_ended ON game_results(ended_at_ms DESC)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("results schema: %w", err)
		}
	}
	return &SQLService{db: db, driver: driver}, nil
}

func (s *SQLService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLService) RecordGameOver(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`
INSERT INTO game_results (game_id, table_num, game, score, ended_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (game_id) DO NOTHING`), rec.GameID, rec.Table, rec.Game, rec.Score, rec.EndedAt.UTC().UnixMilli())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	for _, p := range rec.Players {
		if _, err := tx.ExecContext(ctx, s.rebind(`
INSERT INTO game_result_players (game_id, username, seat, code)
VALUES (?, ?, ?, ?)`), rec.GameID, p.Username, p.Seat, p.Code); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLService) ListRecent(ctx context.Context, username string, limit int) ([]Record, error) {
	limit = clampLimit(limit)
	query := `
SELECT g.game_id, g.table_num, g.game, g.score, g.ended_at_ms
FROM game_results g
ORDER BY g.ended_at_ms DESC, g.game_id DESC
LIMIT ?`
	args := []any{limit}
	if username != "" {
		query = `
SELECT g.game_id, g.table_num, g.game, g.score, g.ended_at_ms
FROM game_results g
JOIN game_result_players p ON p.game_id = g.game_id
WHERE p.username = ?
ORDER BY g.ended_at_ms DESC, g.game_id DESC
LIMIT ?`
		args = []any{username, limit}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	items := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var endedAtMs int64
		if err := rows.Scan(&rec.GameID, &rec.Table, &rec.Game, &rec.Score, &endedAtMs); err != nil {
			rows.Close()
			return nil, err
		}
		rec.EndedAt = time.UnixMilli(endedAtMs).UTC()
		items = append(items, rec)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// sqlite runs on one connection, so players are loaded after the game rows are closed
	for i := range items {
		players, err := s.players(ctx, items[i].GameID)
		if err != nil {
			log.Printf("[Results] load players for %s failed: %v", items[i].GameID, err)
			return nil, err
		}
		items[i].Players = players
	}
	return items, nil
}

func (s *SQLService) players(ctx context.Context, gameID string) ([]PlayerResult, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT username, seat, code FROM game_result_players WHERE game_id = ? ORDER BY seat`), gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlayerResult
	for rows.Next() {
		var p PlayerResult
		if err := rows.Scan(&p.Username, &p.Seat, &p.Code); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLService) rebind(query string) string {
	if s.driver != "postgres" {
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
