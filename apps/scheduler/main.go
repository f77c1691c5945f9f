package main

import (
	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/internal/config"
	"github.com/smallbiznis/recurring/internal/idgen"
	"github.com/smallbiznis/recurring/internal/invoice"
	"github.com/smallbiznis/recurring/internal/migration"
	"github.com/smallbiznis/recurring/internal/notification"
	"github.com/smallbiznis/recurring/internal/observability"
	"github.com/smallbiznis/recurring/internal/recurring"
	"github.com/smallbiznis/recurring/internal/scheduler"
	"github.com/smallbiznis/recurring/internal/server"
	"github.com/smallbiznis/recurring/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		clock.Module,
		migration.Module,

		recurring.Module,
		invoice.Module,
		notification.Module,
		scheduler.Module,
		server.Module,

		fx.Invoke(scheduler.StartScheduler),
	)
	app.Run()
}
