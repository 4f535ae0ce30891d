// Package results stores finished games. The lobby feeds it one record per
// game_over; the HTTP handler lists a user's recent games.
package results

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tablekit/apps/server/internal/config"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

var ErrInvalidRecord = errors.New("invalid result record")

// Record is one finished game instance.
type Record struct {
	GameID  string         `json:"game_id"`
	Table   int            `json:"table"`
	Game    string         `json:"game"`
	Score   string         `json:"score"`
	EndedAt time.Time      `json:"ended_at"`
	Players []PlayerResult `json:"players"`
}

type PlayerResult struct {
	Username string `json:"username"`
	Seat     int    `json:"seat"`
	Code     string `json:"code"`
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.GameID) == "" {
		return fmt.Errorf("%w: empty game id", ErrInvalidRecord)
	}
	if len(r.Players) == 0 {
		return fmt.Errorf("%w: no players", ErrInvalidRecord)
	}
	return nil
}

// Includes reports whether username played in r.
func (r Record) Includes(username string) bool {
	for _, p := range r.Players {
		if p.Username == username {
			return true
		}
	}
	return false
}

type Service interface {
	// RecordGameOver is idempotent per GameID.
	RecordGameOver(ctx context.Context, rec Record) error
	// ListRecent returns username's games, newest first.
	ListRecent(ctx context.Context, username string, limit int) ([]Record, error)
	Close() error
}

// NewService builds the store selected by cfg.ResultsMode.
func NewService(cfg config.Config) (Service, error) {
	switch cfg.ResultsMode {
	case config.ModeMemory:
		return NewMemoryService(cfg.ResultsCacheSize)
	case config.ModeSQLite:
		return NewSQLiteService(cfg.ResultsSQLitePath)
	case config.ModePostgres:
		return NewPostgresService(cfg.ResultsDSN)
	default:
		return nil, fmt.Errorf("invalid RESULTS_MODE %q", cfg.ResultsMode)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}
