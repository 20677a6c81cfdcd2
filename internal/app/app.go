// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aurastream/aurastream-client/internal/session"
)

// Application represents the main application with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	// Combine all provided modules with lifecycle management
	options := append(modules, fx.Invoke(registerLifecycleHooks))

	app := fx.New(options...)

	return &Application{
		app: app,
	}
}

// Run starts the application and blocks until it's stopped.
func (a *Application) Run() {
	a.app.Run()
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// registerLifecycleHooks connects the session coordinator to the app
// lifecycle and forwards its state-machine events to the log.
func registerLifecycleHooks(lc fx.Lifecycle, coordinator *session.Coordinator, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting application: connecting session")

			if err := coordinator.Connect(ctx); err != nil {
				logger.Error("Failed to connect session", zap.Error(err))

				return err
			}

			go forwardEvents(coordinator, logger)

			logger.Info("Application started successfully")

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping application: disconnecting session")

			coordinator.Disconnect("client shutdown")

			logger.Info("Application stopped successfully")

			return nil
		},
	})
}

func forwardEvents(coordinator *session.Coordinator, logger *zap.Logger) {
	for ev := range coordinator.Events() {
		switch e := ev.(type) {
		case session.Connected:
			logger.Info("session connected")
		case session.ReconnectingEvent:
			logger.Warn("session reconnecting", zap.Int("attempt", e.Attempt), zap.String("name", e.Name))
		case session.Reconnected:
			logger.Info("session reconnected")
		case session.DisconnectedEvent:
			logger.Info("session disconnected")
		case session.ErrorEvent:
			logger.Error("session error", zap.String("message", e.Message))
		}
	}
}
