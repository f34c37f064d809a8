package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// Migrate applies all up migrations for the configured driver. It uses its
// own connection, which the migrate driver closes when done.
func Migrate(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	db, err := sql.Open(config.Driver, config.dataSource())
	if err != nil {
		return fmt.Errorf("failed to open %s connection: %w", config.Driver, err)
	}

	var (
		driver database.Driver
		dir    string
	)
	switch config.Driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
		dir = "migrations/postgres"
	default:
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
		dir = "migrations/sqlite"
	}
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrations, dir)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, config.Driver, driver)
	if err != nil {
		source.Close()
		driver.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
