package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"advent/internal/config"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// DB is the credential store adapter. Every query goes through it and every
// failure is logged here before it is returned.
type DB struct {
	sql    *sql.DB
	driver string
	log    *slog.Logger
}

// Open connects to the configured store, checks it is reachable and brings
// the schema up to date.
func Open(ctx context.Context, c config.DatabaseConfig, lg *slog.Logger) (*DB, error) {
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var (
		s   *sql.DB
		err error
	)
	switch c.Driver {
	case "", "sqlite":
		if c.Path == "" {
			return nil, errors.New("db path is required")
		}
		// modernc SQLite uses a URI-like DSN; plain file paths are ok.
		dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", c.Path)
		s, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		s.SetMaxOpenConns(1)
		s.SetMaxIdleConns(1)
		s.SetConnMaxLifetime(0)
		c.Driver = "sqlite"
	case "mysql":
		s, err = sql.Open("mysql", mysqlDSN(c))
		if err != nil {
			return nil, err
		}
		limit := c.ConnectionLimit
		if limit < 1 {
			limit = 10
		}
		s.SetMaxOpenConns(limit)
		s.SetMaxIdleConns(limit)
		s.SetConnMaxLifetime(30 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", c.Driver)
	}

	db := &DB{sql: s, driver: c.Driver, log: lg.With("component", "db", "driver", c.Driver)}
	if err := db.ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := db.setPragmas(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := migrateUp(s, c); err != nil {
		_ = s.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite is a shorthand for a SQLite store at path.
func OpenSQLite(ctx context.Context, path string, lg *slog.Logger) (*DB, error) {
	return Open(ctx, config.DatabaseConfig{Driver: "sqlite", Path: path, ConnectionLimit: 1}, lg)
}

func (d *DB) Close() error {
	return d.sql.Close()
}

// Driver returns the configured driver name.
func (d *DB) Driver() string { return d.driver }

func (d *DB) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return d.sql.PingContext(ctx)
}

func (d *DB) setPragmas(ctx context.Context) error {
	if d.driver != "sqlite" {
		return nil
	}
	// WAL improves read concurrency for web + transfers.
	_, err := d.sql.ExecContext(ctx, "PRAGMA journal_mode = WAL;")
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx, "PRAGMA foreign_keys = ON;")
	return err
}

func mysqlDSN(c config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = c.Host + ":" + strconv.Itoa(c.Port)
	mc.DBName = c.Name
	mc.MultiStatements = true
	mc.ClientFoundRows = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}
