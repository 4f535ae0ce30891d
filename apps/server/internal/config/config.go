// Package config reads the server settings from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
)

type Config struct {
	ListenAddr string
	// TCPAddr enables the framed raw-TCP listener when set.
	TCPAddr         string
	OriginAllowlist []string
	ReadLimit       int64
	OutboxSize      int

	AuthMode       string
	AuthRequired   bool
	AuthDSN        string
	AuthSQLitePath string
	SessionTTL     time.Duration

	ResultsMode       string
	ResultsDSN        string
	ResultsSQLitePath string
	ResultsCacheSize  int

	TableIdleTTL time.Duration
	// VacancyGrace is how long a vacated seat may hold a running game
	// before the table is aborted.
	VacancyGrace time.Duration
}

// FromEnv loads files (default ".env") if present and reads the environment.
func FromEnv(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[Config] .env not loaded: %v", err)
	}

	cfg := Config{
		ListenAddr:        envString("LISTEN_ADDR", ":8080"),
		TCPAddr:           envString("TCP_ADDR", ""),
		OriginAllowlist:   envList("ORIGIN_ALLOWLIST"),
		ReadLimit:         int64(envIntOrDefault("READ_LIMIT", 65536)),
		OutboxSize:        envIntOrDefault("OUTBOX_SIZE", 256),
		AuthMode:          modeFromEnv("AUTH_MODE"),
		AuthRequired:      envBool("AUTH_REQUIRED", false),
		AuthDSN:           envString("AUTH_DATABASE_DSN", envString("DATABASE_DSN", "")),
		AuthSQLitePath:    envString("AUTH_SQLITE_PATH", envString("SQLITE_PATH", "tablekit.db")),
		SessionTTL:        envDurationOrDefault("SESSION_TTL", 30*24*time.Hour),
		ResultsMode:       modeFromEnv("RESULTS_MODE"),
		ResultsDSN:        envString("RESULTS_DATABASE_DSN", envString("DATABASE_DSN", "")),
		ResultsSQLitePath: envString("RESULTS_SQLITE_PATH", envString("SQLITE_PATH", "tablekit.db")),
		ResultsCacheSize:  envIntOrDefault("RESULTS_CACHE_SIZE", 1024),
		TableIdleTTL:      envDurationOrDefault("TABLE_IDLE_TTL", 10*time.Minute),
		VacancyGrace:      envDurationOrDefault("VACANCY_GRACE", 30*time.Second),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	for name, mode := range map[string]string{"AUTH_MODE": c.AuthMode, "RESULTS_MODE": c.ResultsMode} {
		switch mode {
		case ModeMemory, ModeSQLite, ModePostgres:
		default:
			return fmt.Errorf("invalid %s %q (supported: %s, %s, %s)", name, mode, ModeMemory, ModeSQLite, ModePostgres)
		}
	}
	if c.AuthMode == ModePostgres && c.AuthDSN == "" {
		return fmt.Errorf("AUTH_MODE=postgres needs AUTH_DATABASE_DSN")
	}
	if c.ResultsMode == ModePostgres && c.ResultsDSN == "" {
		return fmt.Errorf("RESULTS_MODE=postgres needs RESULTS_DATABASE_DSN")
	}
	if c.OutboxSize <= 0 {
		return fmt.Errorf("OUTBOX_SIZE must be > 0")
	}
	return nil
}

// OriginAllowed reports whether a websocket Origin may connect. An empty
// allowlist admits everyone.
func (c Config) OriginAllowed(origin string) bool {
	if len(c.OriginAllowlist) == 0 || origin == "" {
		return true
	}
	for _, o := range c.OriginAllowlist {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func modeFromEnv(key string) string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch raw {
	case "", ModeMemory, "mem":
		return ModeMemory
	case ModeSQLite, "local":
		return ModeSQLite
	case ModePostgres, "postgresql", "db":
		return ModePostgres
	default:
		return raw
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envIntOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("[Config] ignoring %s=%q", key, raw)
		return fallback
	}
	return n
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Printf("[Config] ignoring %s=%q", key, raw)
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("[Config] ignoring %s=%q", key, raw)
		return fallback
	}
	return v
}
