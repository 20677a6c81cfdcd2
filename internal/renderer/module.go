package renderer

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aurastream/aurastream-client/internal/timesync"
)

// NewSink constructs the OutputSink the Renderer writes to. No
// device-backed sink is part of this module (github.com/ebitengine/oto/v3
// is the backend named in DESIGN.md); it wires the in-memory FakeSink,
// since no audio device is available in this environment.
func NewSink() OutputSink {
	return NewFakeSink()
}

// NewRenderer constructs the Renderer against the shared clock Filter and
// the provided OutputSink.
func NewRenderer(filter *timesync.Filter, sink OutputSink, logger *zap.Logger) *Renderer {
	return New(filter, sink, logger, func() int64 { return time.Now().UnixMicro() })
}

// Module provides the renderer package's Fx wiring. The concrete Filter is
// supplied by the timesync module; the OutputSink is supplied here.
var Module = fx.Module("renderer",
	fx.Provide(NewSink),
	fx.Provide(NewRenderer),
)
