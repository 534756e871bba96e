package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"advent/internal/config"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	mysqlmigrate "github.com/golang-migrate/migrate/v4/database/mysql"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

// migrateUp applies pending migrations for the configured driver.
// The migrate instance is not closed since that would close s.
func migrateUp(s *sql.DB, c config.DatabaseConfig) error {
	src, err := iofs.New(migrationsFS, "migrations/"+c.Driver)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	var drv database.Driver
	switch c.Driver {
	case "sqlite":
		drv, err = sqlitemigrate.WithInstance(s, &sqlitemigrate.Config{})
	case "mysql":
		drv, err = mysqlmigrate.WithInstance(s, &mysqlmigrate.Config{DatabaseName: c.Name})
	default:
		err = fmt.Errorf("unsupported db driver %q", c.Driver)
	}
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, c.Driver, drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
