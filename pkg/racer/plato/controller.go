package plato

import (
	"math/rand"
	"time"
)

// windowCapacity is the fixed capacity of the own/peer latency sliding
// windows the controller feeds into its estimators.
const windowCapacity = 100

// Config holds the validated PLATO scalars.
type Config struct {
	TargetLatency             time.Duration
	TargetPublishingFrequency time.Duration
	MinimumLatency            time.Duration
	MaxGossipTimeout          time.Duration
	MaxPublishingFrequency    time.Duration
	OwnLatencyWeight          float64
	RSIOverbought             float64
	RSIOversold               float64
	UpPeriod                  int
	DownPeriod                int
	SmoothingWindowUp         int
	SmoothingWindowDown       int
}

// Validate enforces the inequalities spec.md §4.D requires at load
// time: target_latency > minimum_latency > 0; max_gossip_timeout >
// target_latency; own_latency_weight in [0,1]; rsi_overbought >
// rsi_oversold.
func (c Config) Validate() error {
	switch {
	case c.MinimumLatency <= 0:
		return fieldError("minimum_latency", "must be > 0")
	case c.TargetLatency <= c.MinimumLatency:
		return fieldError("target_latency", "must be > minimum_latency")
	case c.MaxGossipTimeout <= c.TargetLatency:
		return fieldError("max_gossip_timeout", "must be > target_latency")
	case c.OwnLatencyWeight < 0 || c.OwnLatencyWeight > 1:
		return fieldError("own_latency_weight", "must be in [0,1]")
	case c.RSIOverbought <= c.RSIOversold:
		return fieldError("rsi_overbought", "must be > rsi_oversold")
	}
	return nil
}

// Stats is a read-only snapshot of the controller's current state,
// exposed for operator status lines.
type Stats struct {
	Latency              time.Duration
	PublishingFrequency  time.Duration
	OwnRSIUp             float64
	PeerRSIUp            float64
	OwnRSIDown           float64
	PeerRSIDown          float64
	RecentlyMissedDelivery bool
	TimingChanged        bool
}

// Controller is the adaptive congestion controller (component D). It
// ingests own and peer latency observations and, on each Tick, applies
// at most one of three mutually exclusive control laws.
type Controller struct {
	cfg Config
	rng *rand.Rand

	latency             time.Duration
	publishingFrequency time.Duration

	ownWindow  []float64
	peerWindow []float64

	ownRSIUp    *RSI
	peerRSIUp   *RSI
	ownRSIDown  *RSI
	peerRSIDown *RSI

	ownSGUp    *SavitzkyGolay
	peerSGUp   *SavitzkyGolay
	ownSGDown  *SavitzkyGolay
	peerSGDown *SavitzkyGolay

	recentlyMissedDelivery bool
	timingChanged          bool
}

// NewController builds a controller seeded at the target latency and
// target publishing frequency, using rng for the throttle/accelerate
// jitter multipliers.
func NewController(cfg Config, rng *rand.Rand) *Controller {
	return &Controller{
		cfg:                 cfg,
		rng:                 rng,
		latency:             cfg.TargetLatency,
		publishingFrequency: cfg.TargetPublishingFrequency,
		ownRSIUp:            NewRSI(cfg.UpPeriod),
		peerRSIUp:           NewRSI(cfg.UpPeriod),
		ownRSIDown:          NewRSI(cfg.DownPeriod),
		peerRSIDown:         NewRSI(cfg.DownPeriod),
		ownSGUp:             NewSavitzkyGolay(cfg.SmoothingWindowUp),
		peerSGUp:            NewSavitzkyGolay(cfg.SmoothingWindowUp),
		ownSGDown:           NewSavitzkyGolay(cfg.SmoothingWindowDown),
		peerSGDown:          NewSavitzkyGolay(cfg.SmoothingWindowDown),
	}
}

// RecordOurLatency ingests a locally observed round latency.
func (c *Controller) RecordOurLatency(d time.Duration) {
	v := d.Seconds()
	c.ownWindow = pushBounded(c.ownWindow, v, windowCapacity)
	c.ownRSIUp.Next(v)
	c.ownRSIDown.Next(v)
	c.ownSGUp.Next(v)
	c.ownSGDown.Next(v)
}

// RecordPeerLatency ingests a peer-reported round latency, arriving via
// a transport congestion-update frame.
func (c *Controller) RecordPeerLatency(d time.Duration) {
	v := d.Seconds()
	c.peerWindow = pushBounded(c.peerWindow, v, windowCapacity)
	c.peerRSIUp.Next(v)
	c.peerRSIDown.Next(v)
	c.peerSGUp.Next(v)
	c.peerSGDown.Next(v)
}

// MarkMissedDelivery records that a round exceeded its phase timeout
// without delivering, feeding the operator-facing Stats.
func (c *Controller) MarkMissedDelivery() {
	c.recentlyMissedDelivery = true
}

func pushBounded(window []float64, v float64, capacity int) []float64 {
	window = append(window, v)
	if len(window) > capacity {
		window = window[len(window)-capacity:]
	}
	return window
}

// weightedLatency combines the two up-period smoothers: ŵ = w*SG_own_up
// + (1-w)*SG_peer_up.
func (c *Controller) weightedLatency() float64 {
	return c.cfg.OwnLatencyWeight*c.ownSGUp.Value() + (1-c.cfg.OwnLatencyWeight)*c.peerSGUp.Value()
}

func (c *Controller) upSmoothersReady() bool {
	return c.ownSGUp.Ready() && c.peerSGUp.Ready()
}

func (c *Controller) downSmoothersReady() bool {
	return c.ownSGDown.Ready() && c.peerSGDown.Ready()
}

// Tick applies at most one control law, in fast-forward, throttle,
// accelerate order, and returns whether it changed the timeout or
// cadence.
func (c *Controller) Tick() bool {
	c.timingChanged = false

	if c.tryFastForward() {
		return true
	}
	if c.tryThrottle() {
		return true
	}
	c.tryAccelerate()
	return c.timingChanged
}

// tryFastForward escapes an undertimed state: if both up-period
// smoothers are ready and latency <= 0.5*weighted-latency, doubling
// latency is accepted only if the doubled value stays strictly under
// 85% of max_gossip_timeout.
func (c *Controller) tryFastForward() bool {
	if !c.upSmoothersReady() {
		return false
	}
	w := c.weightedLatency()
	if c.latency.Seconds() > 0.5*w {
		return false
	}
	proposed := 2 * c.latency
	ceiling := time.Duration(0.85 * float64(c.cfg.MaxGossipTimeout))
	if proposed >= ceiling {
		return false
	}
	c.latency = proposed
	c.timingChanged = true
	return true
}

// tryThrottle reacts to the onset of congestion: both up-period RSIs
// must exceed rsi_overbought.
func (c *Controller) tryThrottle() bool {
	if !c.upSmoothersReady() {
		return false
	}
	if !c.ownRSIUp.Ready() || !c.peerRSIUp.Ready() {
		return false
	}
	if c.ownRSIUp.Value() <= c.cfg.RSIOverbought || c.peerRSIUp.Value() <= c.cfg.RSIOverbought {
		return false
	}
	alpha := 1.01 + c.rng.Float64()*(1.10-1.01)
	c.latency = minDuration(scaleDuration(c.latency, alpha), c.cfg.MaxGossipTimeout)
	c.publishingFrequency = minDuration(scaleDuration(c.publishingFrequency, alpha), c.cfg.MaxPublishingFrequency)
	c.timingChanged = true
	return true
}

// tryAccelerate recovers once congestion subsides: both down-period
// RSIs must be below rsi_oversold.
func (c *Controller) tryAccelerate() bool {
	if !c.downSmoothersReady() {
		return false
	}
	if !c.ownRSIDown.Ready() || !c.peerRSIDown.Ready() {
		return false
	}
	if c.ownRSIDown.Value() >= c.cfg.RSIOversold || c.peerRSIDown.Value() >= c.cfg.RSIOversold {
		return false
	}
	alpha := 0.90 + c.rng.Float64()*(0.99-0.90)
	c.latency = maxDuration(scaleDuration(c.latency, alpha), c.cfg.MinimumLatency)
	c.publishingFrequency = maxDuration(scaleDuration(c.publishingFrequency, alpha), c.cfg.MinimumLatency)
	c.timingChanged = true
	return true
}

// Timeout returns the effective phase timeout: max(latency, 5s).
func (c *Controller) Timeout() time.Duration {
	if c.latency < 5*time.Second {
		return 5 * time.Second
	}
	return c.latency
}

// Stats returns a read-only snapshot of the controller's current state.
func (c *Controller) Stats() Stats {
	return Stats{
		Latency:                c.latency,
		PublishingFrequency:    c.publishingFrequency,
		OwnRSIUp:               c.ownRSIUp.Value(),
		PeerRSIUp:              c.peerRSIUp.Value(),
		OwnRSIDown:             c.ownRSIDown.Value(),
		PeerRSIDown:            c.peerRSIDown.Value(),
		RecentlyMissedDelivery: c.recentlyMissedDelivery,
		TimingChanged:          c.timingChanged,
	}
}

func scaleDuration(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
