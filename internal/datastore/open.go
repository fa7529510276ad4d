package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/Phillip-Gao/Flight-Forecast/db/schema"
	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dbwriter"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
)

// Open connects to the store selected by cfg and waits for it to answer a
// ping, retrying with exponential backoff for up to ConnectTimeoutSeconds.
// The memory driver has no database and is rejected here.
func Open(ctx context.Context, cfg config.StoreConf, logger *zap.Logger) (*sql.DB, dbwriter.Dialect, error) {
	var (
		driverName string
		dialect    dbwriter.Dialect
	)
	switch cfg.Driver {
	case "sqlite":
		driverName, dialect = "sqlite", dbwriter.DialectSQLite
		if path := SQLitePath(cfg.DSN); path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, "", fmt.Errorf("failed to create store directory: %w", err)
			}
		}
	case "pgx":
		driverName, dialect = "pgx", dbwriter.DialectPostgres
	default:
		return nil, "", errs.Configurationf("open store", "driver %q has no database", cfg.Driver)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
	}
	if dialect == dbwriter.DialectSQLite {
		// one connection keeps :memory: databases shared and writes serialized
		db.SetMaxOpenConns(1)
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if cfg.ConnectTimeoutSeconds > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
		bo = exp
	}
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("Store not ready", zap.String("driver", cfg.Driver), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to connect to %s store: %w", cfg.Driver, err)
	}
	logger.Info("Connected to run store", zap.String("driver", cfg.Driver))
	return db, dialect, nil
}

// SQLitePath extracts the file path from a SQLite DSN such as
// "file:out/runs.db?_pragma=busy_timeout(5000)". In-memory DSNs yield "".
func SQLitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return ""
	}
	return path
}

// Migrate applies every pending migration from db/schema.
func Migrate(db *sql.DB, dialect dbwriter.Dialect) error {
	src, err := iofs.New(schema.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	var drv database.Driver
	switch dialect {
	case dbwriter.DialectSQLite:
		drv, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case dbwriter.DialectPostgres:
		drv, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		return errs.Configurationf("migrate store", "unknown dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	// m is not closed: that would close db as well.
	m, err := migrate.NewWithInstance("iofs", src, string(dialect), drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
