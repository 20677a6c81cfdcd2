package timesync

import (
	"go.uber.org/fx"

	"github.com/aurastream/aurastream-client/internal/config"
)

// Module provides the clock-synchronization Filter as a shared singleton.
// The Driver is constructed by the session package, which owns the
// transport-backed ProbeSender implementation.
var Module = fx.Module("timesync",
	fx.Provide(NewFilterFromConfig),
)

// NewFilterFromConfig builds the Filter at the dimension and static delay
// the host configured. Dimension 4 is what makes network_change detection
// and the driver's burst-on-network-change handoff reachable; dimension 2
// (offset+drift only) remains the default.
func NewFilterFromConfig(cfg *config.Config) *Filter {
	return NewFilter(dimensionFromConfig(cfg.Player.TimeSyncDimension), int64(cfg.Player.StaticDelayMs)*1000)
}

func dimensionFromConfig(n int) Dimension {
	switch n {
	case 3:
		return Dim3
	case 4:
		return Dim4
	default:
		return Dim2
	}
}
