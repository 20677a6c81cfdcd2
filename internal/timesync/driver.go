package timesync

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurastream/aurastream-client/pkg/util"
)

const (
	burstProbeCount     = 10
	burstProbeSpacing   = 50 * time.Millisecond
	burstSettleWait     = 100 * time.Millisecond
	steadyIntervalPre   = 500 * time.Millisecond
	steadyIntervalPost  = 4 * time.Second
	maxAcceptableRTTUs  = 10 * time.Second / time.Microsecond
)

// Measurement is one completed round-trip probe, ready to fold into the Filter.
type Measurement struct {
	OffsetUs     int64
	MaxErrorUs   int64
	ClientTimeUs int64
	RTTUs        int64
}

// ProbeSender issues a client/time probe and returns immediately; the reply
// arrives later through OnServerTime.
type ProbeSender interface {
	SendTimeProbe(clientTimeUs int64) error
}

// Clock abstracts wall-clock reads so driver tests can run deterministically.
type Clock interface {
	NowUs() int64
}

// CollectOutcome reports how on_server_time handled a reply.
type CollectOutcome int

const (
	// Consumed means the reply was forwarded to the Filter immediately.
	Consumed CollectOutcome = iota
	// Collected means the reply was buffered as part of an in-flight burst.
	Collected
)

// Driver issues client time probes in bursts and at steady-state cadence,
// buffering burst replies and submitting only the lowest-RTT one to the
// Filter to suppress cellular-handoff spikes.
type Driver struct {
	mu sync.Mutex

	filter *Filter
	sender ProbeSender
	clock  Clock
	logger *zap.Logger

	burstInProgress bool
	burstReplies    []Measurement
	networkChanged  bool

	stopCh   chan struct{}
	stopOnce sync.Once
	running  bool

	settleTimer *util.Debouncer
}

// NewDriver constructs a Driver feeding the given Filter through sender.
func NewDriver(filter *Filter, sender ProbeSender, clock Clock, logger *zap.Logger) *Driver {
	return &Driver{
		filter: filter,
		sender: sender,
		clock:  clock,
		logger: logger,
	}
}

// Start launches probe issuance. Idempotent: calling Start while already
// running is a no-op.
func (d *Driver) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.stopOnce = sync.Once{}
	stopCh := d.stopCh
	d.mu.Unlock()

	go d.runBurst(stopCh)
	go d.steadyLoop(stopCh)
}

// Stop guarantees burst_in_progress is false on every exit path, including
// one reached via panic recovery in the caller's goroutine.
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	stopCh := d.stopCh
	d.running = false
	d.mu.Unlock()

	d.stopOnce.Do(func() { close(stopCh) })

	d.mu.Lock()
	d.burstInProgress = false
	d.burstReplies = nil
	d.networkChanged = false
	d.mu.Unlock()
}

// BurstInProgress reports whether a burst is currently in flight.
func (d *Driver) BurstInProgress() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.burstInProgress
}

// TriggerBurst starts a new burst, used after a network-change event.
// Calls while a burst is already in flight are coalesced into a no-op; the
// claim itself happens inside runBurst so there is exactly one place that
// sets burst_in_progress true, matching its unconditional reset on every
// exit path.
func (d *Driver) TriggerBurst() {
	d.mu.Lock()
	stopCh := d.stopCh
	d.mu.Unlock()

	go d.runBurst(stopCh)
}

func (d *Driver) runBurst(stopCh chan struct{}) {
	d.mu.Lock()
	if d.burstInProgress {
		// Another burst already claimed the in-flight slot; Start() and
		// TriggerBurst() both dispatch here, only one should proceed.
		d.mu.Unlock()
		return
	}
	d.burstInProgress = true
	d.burstReplies = d.burstReplies[:0]
	d.settleTimer = util.NewDebouncer(burstSettleWait)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.burstInProgress = false
		d.burstReplies = nil
		if d.settleTimer != nil {
			d.settleTimer.Stop()
			d.settleTimer = nil
		}
		retrigger := d.networkChanged
		d.networkChanged = false
		d.mu.Unlock()

		// Issue the network-change re-burst only after this burst's own
		// claim on burst_in_progress is fully released, so TriggerBurst's
		// single-claim-point invariant holds even for a self-triggered burst.
		if retrigger {
			d.TriggerBurst()
		}
	}()

	ticker := time.NewTicker(burstProbeSpacing)
	defer ticker.Stop()

	for i := 0; i < burstProbeCount; i++ {
		if i > 0 {
			select {
			case <-ticker.C:
			case <-stopCh:
				return
			}
		}
		if err := d.sender.SendTimeProbe(d.clock.NowUs()); err != nil && d.logger != nil {
			d.logger.Warn("time probe send failed", zap.Error(err))
		}
	}

	// Every reply received during the quiet-window wait resets the
	// deadline, so the burst settles once replies stop trickling in
	// rather than after a fixed wait from the last probe sent.
	d.mu.Lock()
	settle := d.settleTimer
	d.mu.Unlock()
	select {
	case <-settle.C():
	case <-stopCh:
		return
	}

	d.mu.Lock()
	replies := d.burstReplies
	d.burstReplies = nil
	d.mu.Unlock()

	best, ok := lowestRTT(replies)
	if !ok {
		return
	}
	if _, event := d.filter.AddMeasurement(best.OffsetUs, best.MaxErrorUs, best.ClientTimeUs, best.RTTUs); event == EventNetworkChange {
		d.mu.Lock()
		d.networkChanged = true
		d.mu.Unlock()
	}
}

func (d *Driver) steadyLoop(stopCh chan struct{}) {
	for {
		interval := steadyIntervalPre
		if d.filter.IsConverged() {
			interval = steadyIntervalPost
		}
		select {
		case <-time.After(interval):
		case <-stopCh:
			return
		}
		if d.BurstInProgress() {
			continue
		}
		if err := d.sender.SendTimeProbe(d.clock.NowUs()); err != nil && d.logger != nil {
			d.logger.Warn("time probe send failed", zap.Error(err))
		}
	}
}

// OnServerTime handles one probe reply. During a burst it is buffered and
// Collected is returned; otherwise it is forwarded to the Filter
// immediately and Consumed is returned. Replies older than
// MAX_ACCEPTABLE_RTT_US are dropped either way.
func (d *Driver) OnServerTime(m Measurement) CollectOutcome {
	if m.RTTUs > int64(maxAcceptableRTTUs) {
		return Consumed
	}

	d.mu.Lock()
	if d.burstInProgress {
		d.burstReplies = append(d.burstReplies, m)
		if d.settleTimer != nil {
			d.settleTimer.Reset()
		}
		d.mu.Unlock()
		return Collected
	}
	d.mu.Unlock()

	if _, event := d.filter.AddMeasurement(m.OffsetUs, m.MaxErrorUs, m.ClientTimeUs, m.RTTUs); event == EventNetworkChange {
		d.TriggerBurst()
	}
	return Consumed
}

func lowestRTT(replies []Measurement) (Measurement, bool) {
	if len(replies) == 0 {
		return Measurement{}, false
	}
	best := replies[0]
	for _, r := range replies[1:] {
		if r.RTTUs < best.RTTUs {
			best = r
		}
	}
	return best, true
}
