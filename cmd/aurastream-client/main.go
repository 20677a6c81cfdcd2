// Command aurastream-client runs the synchronized audio streaming client.
package main

import (
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/aurastream/aurastream-client/internal/app"
	"github.com/aurastream/aurastream-client/internal/codec"
	"github.com/aurastream/aurastream-client/internal/config"
	"github.com/aurastream/aurastream-client/internal/infrastructure"
	"github.com/aurastream/aurastream-client/internal/renderer"
	"github.com/aurastream/aurastream-client/internal/session"
	"github.com/aurastream/aurastream-client/internal/timesync"
	"github.com/aurastream/aurastream-client/internal/transport"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	application := app.New(
		config.Module,
		infrastructure.LoggerModule,
		timesync.Module,
		renderer.Module,
		transport.Module,
		session.Module,
		codec.Module,
		fx.Supply(configPath),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return infrastructure.NewFxLoggerAdapter(logger)
		}),
	)

	// Run blocks until SIGINT/SIGTERM, then drives the OnStop hooks
	// (session disconnect, logger sync) before returning.
	application.Run()
}
