package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	applog "billbuddy/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateLogger routes golang-migrate's progress lines to the store logger.
type migrateLogger struct {
	ctx    context.Context
	logger *applog.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.DebugContext(l.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Enabled(l.ctx, slog.LevelDebug)
}

// RunMigrations brings the schema at dbPath up to date and returns the schema
// version. A file written before migrations were tracked already holds the
// expenses table; the first migration leaves its rows alone and the file is
// adopted at version 1.
func RunMigrations(ctx context.Context, dbPath string, logger *applog.Logger) (uint, error) {
	// The migrate driver closes its connection, so it gets its own.
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	legacy, err := isUntrackedLegacy(ctx, migrateDB)
	if err != nil {
		return 0, fmt.Errorf("inspect schema: %w", err)
	}

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()
	m.Log = migrateLogger{ctx: ctx, logger: logger}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema left dirty at version %d", version)
	}

	if legacy {
		logger.InfoContext(ctx, "Adopted expenses table without migration history", "path", dbPath, "schema_version", version)
	} else {
		logger.DebugContext(ctx, "Schema up to date", "path", dbPath, "schema_version", version)
	}
	return version, nil
}

// isUntrackedLegacy reports whether the file has an expenses table but no
// migration bookkeeping.
func isUntrackedLegacy(ctx context.Context, db *sql.DB) (bool, error) {
	const q = `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`

	var expenses, tracked int
	if err := db.QueryRowContext(ctx, q, "expenses").Scan(&expenses); err != nil {
		return false, err
	}
	if err := db.QueryRowContext(ctx, q, "schema_migrations").Scan(&tracked); err != nil {
		return false, err
	}
	return expenses > 0 && tracked == 0, nil
}
