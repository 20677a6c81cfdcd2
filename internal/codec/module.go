package codec

import "go.uber.org/fx"

// Module is intentionally empty: decoders are constructed per active
// stream (via NewDecoder) once stream/start declares the codec, rather
// than provided as a single Fx-managed singleton.
var Module = fx.Module("codec")
