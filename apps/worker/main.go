package main

import (
	"github.com/smallbiznis/recurring/internal/client"
	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/internal/config"
	"github.com/smallbiznis/recurring/internal/idgen"
	"github.com/smallbiznis/recurring/internal/invoice"
	"github.com/smallbiznis/recurring/internal/notification"
	"github.com/smallbiznis/recurring/internal/observability"
	"github.com/smallbiznis/recurring/internal/providers/email"
	"github.com/smallbiznis/recurring/pkg/db"
	"go.uber.org/fx"
)

// The worker delivers notifications enqueued by the scheduler. It needs
// REDIS_ADDR.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		clock.Module,

		client.Module,
		invoice.Module,
		email.Module,
		notification.WorkerModule,
	)
	app.Run()
}
