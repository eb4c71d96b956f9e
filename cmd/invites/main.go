package main

import (
	"github.com/smallbiznis/invites/internal/clock"
	"github.com/smallbiznis/invites/internal/config"
	"github.com/smallbiznis/invites/internal/observability"
	"github.com/smallbiznis/invites/internal/server"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		server.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}
