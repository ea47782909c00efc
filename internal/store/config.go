package store

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the pgx pool connection settings, loaded from environment
// variables the same way database.LoadConfigFromEnv does
// (pkg/database/config.go), minus the Ent-specific fields this module
// doesn't need.
type Config struct {
	DatabaseURL     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// LoadConfigFromEnv reads DATABASE_URL plus pool-sizing overrides, applying
// production-ready defaults when they are unset.
func LoadConfigFromEnv() (Config, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	maxConns, err := envInt("DB_MAX_CONNS", 25)
	if err != nil {
		return Config{}, err
	}
	minConns, err := envInt("DB_MIN_CONNS", 2)
	if err != nil {
		return Config{}, err
	}
	maxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", time.Hour)
	if err != nil {
		return Config{}, err
	}
	maxIdleTime, err := envDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}

	return Config{
		DatabaseURL:     url,
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		MaxConnLifetime: maxLifetime,
		MaxConnIdleTime: maxIdleTime,
	}, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
