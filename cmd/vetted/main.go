package main

import (
	"github.com/vettedhq/vetted/internal/clock"
	"github.com/vettedhq/vetted/internal/config"
	"github.com/vettedhq/vetted/internal/delta"
	"github.com/vettedhq/vetted/internal/migration"
	"github.com/vettedhq/vetted/internal/observability"
	"github.com/vettedhq/vetted/internal/ratelimit"
	"github.com/vettedhq/vetted/internal/render"
	"github.com/vettedhq/vetted/internal/report"
	"github.com/vettedhq/vetted/internal/server"
	"github.com/vettedhq/vetted/internal/snapshot"
	"github.com/vettedhq/vetted/internal/sources"
	"github.com/vettedhq/vetted/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		migration.Module,

		ratelimit.Module,
		snapshot.Module,
		sources.Module,
		delta.Module,
		report.Module,
		render.Module,
		server.Module,
	)

	app.Run()
}
