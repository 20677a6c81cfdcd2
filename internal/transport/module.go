package transport

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aurastream/aurastream-client/internal/config"
	"github.com/aurastream/aurastream-client/internal/session"
)

// NewFromConfig constructs a WebSocketTransport from the application
// configuration's server block.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) session.Transport {
	return New(Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Path: cfg.Server.Path,
		TLS:  cfg.Server.TLS,
	}, logger)
}

// Module provides the session.Transport implementation backed by a
// real WebSocket connection.
var Module = fx.Module("transport",
	fx.Provide(NewFromConfig),
)
