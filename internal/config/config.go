package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime setting. Values come from defaults, then an
// optional config file named by CONFIG_FILE, then the environment.
type Config struct {
	Env  string
	Port string

	DBDriver string
	DBDSN    string

	RedisAddr     string
	RedisPassword string
	EventsChannel string

	JWTSecret string

	PersistTimeout time.Duration
	IdleTimeout    time.Duration
	ReaperSchedule string

	CORSOrigins    []string
	MetricsEnabled bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "production")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "file:clicker.db?cache=shared")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("EVENTS_CHANNEL", "clicker:events")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("PERSIST_TIMEOUT", "10s")
	v.SetDefault("IDLE_TIMEOUT", "30m")
	v.SetDefault("REAPER_SCHEDULE", "@every 1m")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("METRICS_ENABLED", true)
}

// LoadConfig reads the configuration and validates it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Env:            v.GetString("ENV"),
		Port:           v.GetString("PORT"),
		DBDriver:       strings.ToLower(v.GetString("DB_DRIVER")),
		DBDSN:          v.GetString("DB_DSN"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		EventsChannel:  v.GetString("EVENTS_CHANNEL"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		PersistTimeout: v.GetDuration("PERSIST_TIMEOUT"),
		IdleTimeout:    v.GetDuration("IDLE_TIMEOUT"),
		ReaperSchedule: v.GetString("REAPER_SCHEDULE"),
		CORSOrigins:    splitList(v.GetString("CORS_ORIGINS")),
		MetricsEnabled: v.GetBool("METRICS_ENABLED"),
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		return errors.New("unsupported DB_DRIVER: " + cfg.DBDriver + ". Currently supported: postgres, sqlite")
	}
	if cfg.DBDSN == "" {
		return errors.New("DB_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.PersistTimeout <= 0 {
		return errors.New("PERSIST_TIMEOUT must be positive")
	}
	if cfg.IdleTimeout < 0 {
		return errors.New("IDLE_TIMEOUT cannot be negative")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
