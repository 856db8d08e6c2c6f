package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/audit"
	"github.com/smallbiznis/eventreg/internal/capacity"
	"github.com/smallbiznis/eventreg/internal/catalog"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/identity"
	"github.com/smallbiznis/eventreg/internal/ledger"
	"github.com/smallbiznis/eventreg/internal/migration"
	"github.com/smallbiznis/eventreg/internal/notification"
	"github.com/smallbiznis/eventreg/internal/observability"
	"github.com/smallbiznis/eventreg/internal/payment"
	"github.com/smallbiznis/eventreg/internal/ratelimit"
	"github.com/smallbiznis/eventreg/internal/registration"
	"github.com/smallbiznis/eventreg/internal/scheduler"
	"github.com/smallbiznis/eventreg/internal/seed"
	"github.com/smallbiznis/eventreg/internal/server"
	"github.com/smallbiznis/eventreg/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		seed.Module,
		clock.Module,

		// Functional Domains
		identity.Module,
		catalog.Module,
		audit.Module,
		ledger.Module,
		capacity.Module,
		payment.Module,
		notification.Module,
		registration.Module,
		ratelimit.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
