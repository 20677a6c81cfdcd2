package timesync

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deterministicNoise is a tiny seeded PRNG wrapper so scenario tests are
// reproducible without depending on wall-clock entropy.
func deterministicNoise(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func feed(f *Filter, offsetUs, maxErrorUs, clientTimeUs, rttUs int64) Outcome {
	outcome, _ := f.AddMeasurement(offsetUs, maxErrorUs, clientTimeUs, rttUs)
	return outcome
}

func TestFirstMeasurementInitializesFromNothing(t *testing.T) {
	f := NewFilter(Dim2, 0)
	outcome := feed(f, 1000, 200, 1_000_000, 400)
	assert.Equal(t, Accepted, outcome)
	assert.Equal(t, int64(1000), f.OffsetUs())
}

func TestSecondMeasurementNeverDerivesDriftFromTwoPoints(t *testing.T) {
	f := NewFilter(Dim2, 0)
	feed(f, 1000, 200, 1_000_000, 400)
	feed(f, 1100, 200, 1_500_000, 400)
	assert.Equal(t, 0.0, f.DriftPPM())
}

func TestMaxErrorZeroClampsVarianceToOne(t *testing.T) {
	f := NewFilter(Dim2, 0)
	outcome := feed(f, 500, 0, 1_000_000, 0)
	assert.Equal(t, Accepted, outcome)
	assert.Equal(t, 1.0, f.p[0][0])
}

func TestServerToClientAdditiveAfterConvergence(t *testing.T) {
	f := NewFilter(Dim2, 0)
	rng := deterministicNoise(1)
	clientTime := int64(0)
	for i := 0; i < 30; i++ {
		clientTime += 500_000
		noise := int64(rng.NormFloat64() * 3000)
		feed(f, 1_000_000+noise, 6000, clientTime, 12000)
	}
	require.True(t, f.IsConverged())

	a := f.ServerToClient(10_000_000)
	b := f.ServerToClient(10_000_001)
	assert.Equal(t, int64(1), b-a)
}

func TestClientToServerInvertsServerToClient(t *testing.T) {
	f := NewFilter(Dim2, 500)
	feed(f, 42, 100, 1_000_000, 200)
	for _, tVal := range []int64{0, 1, -1, 1_000_000_000, -500} {
		got := f.ClientToServer(f.ServerToClient(tVal))
		assert.InDelta(t, tVal, got, 1, "round trip for t=%d", tVal)
	}
}

func TestDriftClampedAndCovarianceFiniteNonNegative(t *testing.T) {
	f := NewFilter(Dim2, 0)
	rng := deterministicNoise(2)
	clientTime := int64(0)
	for i := 0; i < 50; i++ {
		clientTime += 500_000
		noise := int64(rng.NormFloat64() * 2000)
		feed(f, noise, 5000, clientTime, 10000)

		assert.LessOrEqual(t, math.Abs(f.DriftPPM()), maxDriftPPM)
		assert.True(t, finiteMatrix(f.p))
		assert.GreaterOrEqual(t, f.p[0][0], 0.0)
	}
}

func TestFreezeThawWithNoMeasurementsBetweenLeavesOffsetAndDriftIdentical(t *testing.T) {
	f := NewFilter(Dim2, 0)
	rng := deterministicNoise(3)
	clientTime := int64(0)
	for i := 0; i < 10; i++ {
		clientTime += 500_000
		feed(f, 123_456+int64(rng.NormFloat64()*100), 2000, clientTime, 4000)
	}
	require.True(t, f.IsReady())

	offsetBefore := f.OffsetUs()
	driftBefore := f.DriftPPM()

	f.Freeze()
	f.Thaw()

	assert.Equal(t, offsetBefore, f.OffsetUs())
	assert.Equal(t, driftBefore, f.DriftPPM())
}

func TestResetTwiceIsIdempotent(t *testing.T) {
	f := NewFilter(Dim2, 0)
	feed(f, 100, 200, 1_000_000, 400)
	f.Reset()
	f.Reset()
	assert.Equal(t, int64(0), f.OffsetUs())
	assert.False(t, f.IsReady())
}

// E1 — Cold convergence.
func TestScenarioE1ColdConvergence(t *testing.T) {
	f := NewFilter(Dim2, 0)
	rng := deterministicNoise(42)
	clientTime := int64(0)
	convergedAt := -1
	for i := 1; i <= 30; i++ {
		clientTime += 500_000
		noise := rng.NormFloat64() * 3000
		feed(f, 1_000_000+int64(noise), 9000, clientTime, 18000)
		if convergedAt == -1 && f.IsConverged() {
			convergedAt = i
		}
	}
	require.NotEqual(t, -1, convergedAt, "filter never converged")
	assert.LessOrEqual(t, convergedAt, 5, "expected convergence by the 5th measurement")

	assert.InDelta(t, 1_000_000, f.OffsetUs(), 2000)
	assert.Less(t, math.Abs(f.DriftPPM()), 10.0)
}

// E2 — Cellular spike rejection.
func TestScenarioE2CellularSpikeRejection(t *testing.T) {
	f := NewFilter(Dim2, 0)
	rng := deterministicNoise(7)
	clientTime := int64(0)
	for i := 0; i < 15; i++ {
		clientTime += 500_000
		feed(f, int64(rng.NormFloat64()*200), 2000, clientTime, 4000)
	}
	offsetBefore := f.OffsetUs()

	clientTime += 500_000
	outcome := feed(f, 250_000, 5000, clientTime, 10000)

	assert.Equal(t, Rejected, outcome)
	assert.LessOrEqual(t, math.Abs(float64(f.OffsetUs()-offsetBefore)), 500.0)
}

// E3 — Genuine step change.
func TestScenarioE3GenuineStepChange(t *testing.T) {
	f := NewFilter(Dim2, 0)
	rng := deterministicNoise(11)
	clientTime := int64(0)
	for i := 0; i < 15; i++ {
		clientTime += 500_000
		feed(f, int64(rng.NormFloat64()*200), 2000, clientTime, 4000)
	}

	var last Outcome
	for i := 0; i < 3; i++ {
		clientTime += 500_000
		last = feed(f, 300_000+int64(rng.NormFloat64()*200), 2000, clientTime, 4000)
	}
	assert.Equal(t, Accepted, last, "third successive outlier must be forced through")

	for i := 0; i < 5; i++ {
		clientTime += 500_000
		feed(f, 300_000+int64(rng.NormFloat64()*200), 2000, clientTime, 4000)
	}
	assert.InDelta(t, 300_000, f.OffsetUs(), 50_000)
}

// E6 — Reconnect freeze/thaw.
func TestScenarioE6ReconnectFreezeThaw(t *testing.T) {
	f := NewFilter(Dim2, 0)
	rng := deterministicNoise(99)
	clientTime := int64(0)
	for i := 0; i < 20; i++ {
		clientTime += 500_000
		feed(f, 123_456+int64(rng.NormFloat64()*50), 1500, clientTime, 3000)
	}
	require.True(t, f.IsConverged())

	pBefore := make([]float64, len(f.p))
	for i := range f.p {
		pBefore[i] = f.p[i][i]
	}
	offsetBefore := f.OffsetUs()

	f.Freeze()
	assert.True(t, f.IsFrozen())

	f.Thaw()
	assert.False(t, f.IsFrozen())
	assert.InDelta(t, offsetBefore, f.OffsetUs(), 1)
	for i := range f.p {
		assert.InDelta(t, pBefore[i]*10, f.p[i][i], 1e-6)
	}
}

func TestNonPositiveDeltaIgnoredSilently(t *testing.T) {
	f := NewFilter(Dim2, 0)
	feed(f, 100, 200, 1_000_000, 400)
	feed(f, 200, 200, 1_000_000, 400) // same clock reading, dt == 0
	feed(f, 300, 200, 900_000, 400)   // earlier reading, dt < 0
	assert.Equal(t, int64(1), f.measurementCount)
}

func TestIdentityWithShiftAppliesDecayToHigherDimensions(t *testing.T) {
	m2 := identityWithShift(2, 0.5)
	assert.Equal(t, 1.0, m2[0][0])
	assert.Equal(t, 0.5, m2[0][1])
	assert.Equal(t, 1.0, m2[1][1])

	m3 := identityWithShift(3, 0.5)
	assert.Equal(t, 0.5, m3[0][1])
	assert.Equal(t, accelDecay, m3[2][2])

	m4 := identityWithShift(4, 0.5)
	assert.Equal(t, accelDecay, m4[2][2])
	assert.Equal(t, rttDecay, m4[3][3])
}

func TestSetDimensionPreservesOffsetDriftAndReinflatesCovariance(t *testing.T) {
	f := NewFilter(Dim2, 0)
	rng := deterministicNoise(21)
	clientTime := int64(0)
	for i := 0; i < 8; i++ {
		clientTime += 500_000
		feed(f, 1_000_000+int64(rng.NormFloat64()*200), 2000, clientTime, 4000)
	}
	require.True(t, f.IsReady())
	offsetBefore := f.OffsetUs()
	driftBefore := f.DriftPPM()

	f.SetDimension(Dim4)

	assert.Equal(t, Dim4, f.dim)
	require.Len(t, f.state, 4)
	assert.Equal(t, offsetBefore, f.OffsetUs())
	assert.Equal(t, driftBefore, f.DriftPPM())
	assert.Equal(t, 0.0, f.state[2])
	assert.Equal(t, 0.0, f.state[3])
	assert.Greater(t, f.p[2][2], 1.0)
	assert.Greater(t, f.p[3][3], 1.0)

	// Switching back down truncates rather than losing the original 2-D
	// covariance block.
	p00Before := f.p[0][0]
	f.SetDimension(Dim2)
	assert.Equal(t, p00Before, f.p[0][0])
}

func TestDim4DetectsNetworkChangeOnRTTStep(t *testing.T) {
	f := NewFilter(Dim4, 0)
	rng := deterministicNoise(55)
	clientTime := int64(0)
	for i := 0; i < 20; i++ {
		clientTime += 500_000
		feed(f, int64(rng.NormFloat64()*200), 2000, clientTime, 4000)
	}
	require.True(t, f.IsConverged())

	clientTime += 500_000
	_, event := f.AddMeasurement(int64(rng.NormFloat64()*200), 2000, clientTime, 80_000)
	assert.Equal(t, EventNetworkChange, event)
}
