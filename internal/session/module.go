package session

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aurastream/aurastream-client/internal/config"
	"github.com/aurastream/aurastream-client/internal/protocol"
	"github.com/aurastream/aurastream-client/internal/renderer"
	"github.com/aurastream/aurastream-client/internal/timesync"
)

// Params collects the Coordinator's constructor dependencies for Fx.
type Params struct {
	fx.In

	Cfg       *config.Config
	Transport Transport
	Filter    *timesync.Filter
	Render    *renderer.Renderer
	Logger    *zap.Logger
}

// NewCoordinator builds the session Coordinator and its Driver, wiring the
// Driver as the Filter's feed through the given Transport.
func NewCoordinator(p Params) *Coordinator {
	sender := &transportProbeSender{transport: p.Transport}
	driver := timesync.NewDriver(p.Filter, sender, timesync.SystemClock{}, p.Logger)
	return New(p.Cfg, p.Transport, p.Filter, driver, p.Render, p.Logger)
}

// Module wires the session Coordinator.
var Module = fx.Module("session",
	fx.Provide(NewCoordinator),
)

type transportProbeSender struct {
	transport Transport
}

func (s *transportProbeSender) SendTimeProbe(clientTimeUs int64) error {
	data, err := protocol.BuildClientTime(clientTimeUs)
	if err != nil {
		return err
	}
	s.transport.SendText(data)
	return nil
}
