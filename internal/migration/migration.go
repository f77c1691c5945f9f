package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	clientdomain "github.com/smallbiznis/recurring/internal/client/domain"
	invoicedomain "github.com/smallbiznis/recurring/internal/invoice/domain"
	notificationdomain "github.com/smallbiznis/recurring/internal/notification/domain"
	recurringdomain "github.com/smallbiznis/recurring/internal/recurring/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrate brings the schema up to date. Postgres runs the versioned SQL
// migrations; other dialects are for local use and get gorm AutoMigrate.
func Migrate(conn *gorm.DB, dbType string) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "", "postgres", "postgresql":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	default:
		return AutoMigrate(conn)
	}
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&clientdomain.Client{},
		&recurringdomain.Profile{},
		&recurringdomain.LineItemTemplate{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceSequence{},
		&notificationdomain.Notification{},
	)
}
