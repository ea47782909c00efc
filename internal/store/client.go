// Package store implements the persistence boundary: pgx-backed
// repositories for raw_ingestions, extracted_entities, entities and
// failed_extractions, plus embedded golang-migrate SQL migrations and the
// raw-payload file offload helper.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver for database/sql, used only to drive migrate
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps a pgx connection pool and exposes the table-scoped
// repositories, grounded on database.Client
// (pkg/database/client.go) minus the Ent driver this module replaces
// with pgx directly (see DESIGN.md).
type Client struct {
	pool *pgxpool.Pool

	RawIngestions     *RawIngestionRepo
	ExtractedEntities *ExtractedEntityRepo
	Entities          *EntityRepo
	FailedExtractions *FailedExtractionRepo
}

// NewClient opens a pool against cfg.DatabaseURL, applies embedded
// migrations, and wires the repositories over the shared pool.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Client{
		pool:              pool,
		RawIngestions:     &RawIngestionRepo{pool: pool},
		ExtractedEntities: &ExtractedEntityRepo{pool: pool},
		Entities:          &EntityRepo{pool: pool},
		FailedExtractions: &FailedExtractionRepo{pool: pool},
	}, nil
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}

// runMigrations applies every embedded up migration that hasn't run yet.
// Migration files ship embedded in the binary via go:embed so a deployed
// build never depends on an external migrations directory.
func runMigrations(databaseURL string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	defer sourceDriver.Close()

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
