package auth

import (
	"fmt"

	"tablekit/apps/server/internal/config"
)

// NewService builds the account store selected by cfg.AuthMode.
func NewService(cfg config.Config) (Service, error) {
	switch cfg.AuthMode {
	case config.ModeMemory:
		return NewManager(cfg.SessionTTL), nil
	case config.ModeSQLite:
		return NewSQLiteManager(cfg.AuthSQLitePath, cfg.SessionTTL)
	case config.ModePostgres:
		return NewPostgresManager(cfg.AuthDSN, cfg.SessionTTL)
	default:
		return nil, fmt.Errorf("invalid AUTH_MODE %q", cfg.AuthMode)
	}
}
