// Package db provides read-only access to the patient database: connection
// handling, schema inspection, and guarded query execution.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Config holds patient database connection configuration.
type Config struct {
	Driver   string // "mysql" or "sqlite3"
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Params   string // extra mysql DSN parameters
	Path     string // sqlite file path
}

// Client wraps a *sql.DB together with the dialect name the connected
// database speaks. The pool is safe for concurrent cycles.
type Client struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

// NewClient opens a connection for the configured driver and verifies it
// with a ping.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		sqlDB   *sql.DB
		dialect string
		err     error
	)

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite path must be provided")
		}
		sqlDB, err = sql.Open("sqlite3", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		dialect = "sqlite"
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
		if cfg.Params != "" {
			dsn += "?" + cfg.Params
		}
		sqlDB, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
		dialect = "mysql"
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("connected to patient database", "driver", cfg.Driver, "dialect", dialect)

	return &Client{db: sqlDB, dialect: dialect, logger: logger}, nil
}

// NewClientFromDB wraps an already-open database handle. Used by tests and
// by callers that manage the pool themselves.
func NewClientFromDB(sqlDB *sql.DB, dialect string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{db: sqlDB, dialect: dialect, logger: logger}
}

// Dialect returns the SQL dialect name of the connected database.
func (c *Client) Dialect() string {
	return c.dialect
}

// Close closes the underlying pool.
func (c *Client) Close() error {
	return c.db.Close()
}
