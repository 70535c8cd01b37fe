package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"showrunner/pkg/logging"
)

// ErrNoRows is re-exported so callers do not need database/sql
var ErrNoRows = sql.ErrNoRows

// Config holds connection pool settings for Postgres
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns sane pool defaults for a single service
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Connect opens and verifies a Postgres connection
func Connect(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// MustConnect connects to Postgres or exits the process
func MustConnect(cfg Config, logger logging.Logger) *sql.DB {
	db, err := Connect(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	logger.WithField("max_open_conns", cfg.MaxOpenConns).Info("Connected to database")
	return db
}
