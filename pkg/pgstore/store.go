// Package pgstore implements taskcast.LongTermStore over PostgreSQL via pgx/database/sql and
// golang-migrate embedded migrations, grounded in the teacher's own database/client.go wiring
// pattern (minus ent, since this store is a fixed two-table contract rather than a generated ORM
// schema).
package pgstore

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds connection and pool settings for Store.
type Config struct {
	DSN             string
	Prefix          string // names the migrations table ({prefix}_schema_migrations); defaults to "taskcast"
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects, applies migrations, and returns a ready Store.
func Open(cfg Config) (*Store, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "taskcast"
	}
	db, err := stdsql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := runMigrations(db, cfg.Prefix); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// runMigrations applies the embedded SQL migrations. The migration source driver is closed
// afterward but not the postgres driver/DB itself, since postgres.WithInstance wraps the caller's
// *sql.DB and closing it here would break the returned Store.
func runMigrations(db *stdsql.DB, prefix string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: prefix + "_schema_migrations"})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, prefix, driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return sourceDriver.Close()
}

// Store is a Postgres-backed taskcast.LongTermStore. Table names are fixed (taskcast_tasks and
// taskcast_events, matching spec §6.4); Config.Prefix only namespaces golang-migrate's own
// bookkeeping table so multiple Stores can share a schema migrations-table-free of collisions.
type Store struct {
	db *stdsql.DB
}

func (s *Store) tasksTable() string  { return "taskcast_tasks" }
func (s *Store) eventsTable() string { return "taskcast_events" }

// Close closes the underlying *sql.DB.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity, for the HTTP health endpoint.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func marshalOrNil(v json.RawMessage) any {
	if len(v) == 0 {
		return nil
	}
	return []byte(v)
}
