package config

import (
	"fmt"
	"time"

	"signwise/adapters/sqlx"
)

// LoadProfile returns the defaults for a named deployment profile,
// with environment overrides applied and validated.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name
	switch name {
	case "development":
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case "testing":
		cfg.Environment = EnvTesting
		cfg.Logging.Level = "warn"
		cfg.Clock.Dispatch = "sync"
		cfg.Clock.Timezone = "UTC"
		cfg.Notifications.ReminderEnabled = false
	case "staging":
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "sql"
		cfg.Storage.SQL = sqlx.DefaultConfig(sqlx.DriverSQLite)
		cfg.Storage.SQL.DSN = "./data/signwise.db"
	case "production":
		cfg.Environment = EnvProduction
		cfg.Storage.Adapter = "redis"
		cfg.Server.CORSOrigin = ""
		cfg.Server.ShutdownTimeout = 15 * time.Second
		cfg.Security.EnableRateLimit = true
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
