package main

import (
	"github.com/smallbiznis/recurring/internal/config"
	"github.com/smallbiznis/recurring/internal/migration"
	"github.com/smallbiznis/recurring/internal/observability"
	"github.com/smallbiznis/recurring/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				conn *gorm.DB
				cfg  config.Config
			)
			app := fx.New(
				config.Module,
				observability.Module,
				db.Module,
				fx.Populate(&conn, &cfg),
				fx.NopLogger,
			)
			if err := app.Err(); err != nil {
				return err
			}
			if err := migration.Migrate(conn, cfg.DBType); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	}
}
