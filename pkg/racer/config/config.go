// Package config loads and validates the TOML configuration surface:
// node identity and bind addresses, the consensus (SPDE) thresholds,
// the PLATO scalars, the initial peer list, and logging settings.
// Environment variables and CLI flags layer on top of the file, in that
// order.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// NodeConfig identifies this node and its bind addresses.
type NodeConfig struct {
	ID             string `toml:"id"`
	RouterBind     string `toml:"router_bind"`
	PublisherBind  string `toml:"publisher_bind"`
	SelectionType  string `toml:"selection_type"` // "normal" | "random" | "poisson"
}

// ConsensusConfig is the SPDE engine's six non-negative integer
// thresholds plus the sample-size convenience helper.
type ConsensusConfig struct {
	EchoSampleSize     int `toml:"echo_sample_size"`
	ReadySampleSize    int `toml:"ready_sample_size"`
	DeliverySampleSize int `toml:"delivery_sample_size"`
	ReadyThreshold     int `toml:"ready_threshold"`
	FeedbackThreshold  int `toml:"feedback_threshold"`
	DeliveryThreshold  int `toml:"delivery_threshold"`
	MaxDelivered       int `toml:"max_delivered"`
	DefaultTimeoutMs   int64 `toml:"default_timeout_ms"`
}

// WithSampleSize sets all three sample-size fields to n in one call, for
// operators who want a single dial instead of three independent
// integers.
func (c *ConsensusConfig) WithSampleSize(n int) *ConsensusConfig {
	c.EchoSampleSize = n
	c.ReadySampleSize = n
	c.DeliverySampleSize = n
	return c
}

// ByzantineHeadroom returns delivery_sample_size - delivery_threshold,
// the number of forgers the delivery threshold can absorb before an
// attacker controlling that many sampled peers could force a false
// delivery.
func (c ConsensusConfig) ByzantineHeadroom() int {
	return c.DeliverySampleSize - c.DeliveryThreshold
}

func ceilDiv(num, den int) int {
	return int(math.Ceil(float64(num) / float64(den)))
}

// Validate enforces spec.md §4.C's threshold ordering and ratio
// inequalities. It never second-guesses Byzantine headroom; that is
// surfaced separately as a warning by ByzantineHeadroom's caller.
func (c ConsensusConfig) Validate() error {
	for name, v := range map[string]int{
		"echo_sample_size":     c.EchoSampleSize,
		"ready_sample_size":    c.ReadySampleSize,
		"delivery_sample_size": c.DeliverySampleSize,
		"ready_threshold":      c.ReadyThreshold,
		"feedback_threshold":   c.FeedbackThreshold,
		"delivery_threshold":   c.DeliveryThreshold,
	} {
		if v < 0 {
			return &ValidationError{Field: name, Reason: "must be non-negative"}
		}
	}
	if !(c.ReadyThreshold < c.FeedbackThreshold && c.FeedbackThreshold < c.DeliveryThreshold) {
		return &ValidationError{Field: "ready_threshold/feedback_threshold/delivery_threshold", Reason: "must satisfy ready_threshold < feedback_threshold < delivery_threshold"}
	}
	if want := ceilDiv(c.EchoSampleSize, 2) + 1; c.ReadyThreshold < want {
		return &ValidationError{Field: "ready_threshold", Reason: fmt.Sprintf("must be >= ceil(echo_sample_size/2)+1 = %d", want)}
	}
	if want := ceilDiv(75*c.ReadySampleSize, 100); c.FeedbackThreshold < want {
		return &ValidationError{Field: "feedback_threshold", Reason: fmt.Sprintf("must be >= ceil(0.75*ready_sample_size) = %d", want)}
	}
	if want := ceilDiv(85*c.DeliverySampleSize, 100); c.DeliveryThreshold < want {
		return &ValidationError{Field: "delivery_threshold", Reason: fmt.Sprintf("must be >= ceil(0.85*delivery_sample_size) = %d", want)}
	}
	return nil
}

// PlatoConfig mirrors plato.Config in TOML-friendly, millisecond-scalar
// form. This is spec.md §6's "twelve PLATO scalars".
type PlatoConfig struct {
	TargetLatencyMs             int64   `toml:"target_latency_ms"`
	TargetPublishingFrequencyMs int64   `toml:"target_publishing_frequency_ms"`
	MinimumLatencyMs            int64   `toml:"minimum_latency_ms"`
	MaxGossipTimeoutMs          int64   `toml:"max_gossip_timeout_ms"`
	MaxPublishingFrequencyMs    int64   `toml:"max_publishing_frequency_ms"`
	OwnLatencyWeight            float64 `toml:"own_latency_weight"`
	RSIOverbought               float64 `toml:"rsi_overbought"`
	RSIOversold                 float64 `toml:"rsi_oversold"`
	RSIUpPeriod                 int     `toml:"rsi_up_period"`
	RSIDownPeriod               int     `toml:"rsi_down_period"`
	SmoothingWindowUp           int     `toml:"smoothing_window_up"`
	SmoothingWindowDown         int     `toml:"smoothing_window_down"`
}

// Validate enforces spec.md §4.D's PLATO scalar inequalities.
func (c PlatoConfig) Validate() error {
	switch {
	case c.MinimumLatencyMs <= 0:
		return &ValidationError{Field: "minimum_latency_ms", Reason: "must be > 0"}
	case c.TargetLatencyMs <= c.MinimumLatencyMs:
		return &ValidationError{Field: "target_latency_ms", Reason: "must be > minimum_latency_ms"}
	case c.MaxGossipTimeoutMs <= c.TargetLatencyMs:
		return &ValidationError{Field: "max_gossip_timeout_ms", Reason: "must be > target_latency_ms"}
	case c.OwnLatencyWeight < 0 || c.OwnLatencyWeight > 1:
		return &ValidationError{Field: "own_latency_weight", Reason: "must be in [0,1]"}
	case c.RSIOverbought <= c.RSIOversold:
		return &ValidationError{Field: "rsi_overbought", Reason: "must be > rsi_oversold"}
	}
	return nil
}

func (c PlatoConfig) durations() (target, targetPublishFreq, minimum, maxTimeout, maxFreq time.Duration) {
	return time.Duration(c.TargetLatencyMs) * time.Millisecond,
		time.Duration(c.TargetPublishingFrequencyMs) * time.Millisecond,
		time.Duration(c.MinimumLatencyMs) * time.Millisecond,
		time.Duration(c.MaxGossipTimeoutMs) * time.Millisecond,
		time.Duration(c.MaxPublishingFrequencyMs) * time.Millisecond
}

// PeerConfig is one entry in the initial peer list.
type PeerConfig struct {
	ID            string `toml:"id"`
	RouterAddress string `toml:"router_address"`
}

// LoggingConfig controls structured logging and the delivered-log sink.
type LoggingConfig struct {
	Level         string `toml:"level"`
	LogDir        string `toml:"log_dir"` // template, e.g. "logs/{node_id}"
	DeliveredFile string `toml:"delivered_file"`
}

// RacerConfig is the root TOML document.
type RacerConfig struct {
	Node      NodeConfig    `toml:"node"`
	Consensus ConsensusConfig `toml:"consensus"`
	Plato     PlatoConfig   `toml:"plato"`
	Peers     []PeerConfig  `toml:"peers"`
	Logging   LoggingConfig `toml:"logging"`
}

// Default returns a RacerConfig with the reference scalar values from
// spec.md §8's end-to-end scenarios.
func Default() RacerConfig {
	return RacerConfig{
		Node: NodeConfig{
			RouterBind:    "tcp://0.0.0.0:5555",
			PublisherBind: "tcp://0.0.0.0:5556",
			SelectionType: "normal",
		},
		Consensus: ConsensusConfig{
			EchoSampleSize:     6,
			ReadySampleSize:    6,
			DeliverySampleSize: 6,
			ReadyThreshold:     4,
			FeedbackThreshold:  5,
			DeliveryThreshold:  6,
			MaxDelivered:       1000,
			DefaultTimeoutMs:   60_000,
		},
		Plato: PlatoConfig{
			TargetLatencyMs:             2500,
			TargetPublishingFrequencyMs: 2500,
			MinimumLatencyMs:            250,
			MaxGossipTimeoutMs:          60_000,
			MaxPublishingFrequencyMs:    10_000,
			OwnLatencyWeight:            0.6,
			RSIOverbought:               70,
			RSIOversold:                 30,
			RSIUpPeriod:                 14,
			RSIDownPeriod:               21,
			SmoothingWindowUp:           14,
			SmoothingWindowDown:         21,
		},
		Logging: LoggingConfig{
			Level:         "info",
			LogDir:        "logs/{node_id}",
			DeliveredFile: "delivered.jsonl",
		},
	}
}

// LoadFile parses a TOML document at path on top of Default().
func LoadFile(path string) (RacerConfig, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return RacerConfig{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides node identity and peer addresses from the
// environment, per spec.md §6: RACER_NODE_ID, RACER_ROUTER_BIND,
// RACER_PUBLISHER_BIND, RACER_PEERS (comma-separated id=address pairs).
func (c *RacerConfig) ApplyEnv() {
	if v := os.Getenv("RACER_NODE_ID"); v != "" {
		c.Node.ID = v
	}
	if v := os.Getenv("RACER_ROUTER_BIND"); v != "" {
		c.Node.RouterBind = v
	}
	if v := os.Getenv("RACER_PUBLISHER_BIND"); v != "" {
		c.Node.PublisherBind = v
	}
	if v := os.Getenv("RACER_PEERS"); v != "" {
		c.Peers = parsePeerList(v)
	}
}

func parsePeerList(spec string) []PeerConfig {
	var out []PeerConfig
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out = append(out, PeerConfig{ID: parts[0], RouterAddress: parts[1]})
	}
	return out
}

// Validate runs every field-level validator and returns the first
// failure, naming the offending field.
func (c RacerConfig) Validate() error {
	if c.Node.ID == "" {
		return &ValidationError{Field: "node.id", Reason: "must not be empty"}
	}
	if c.Node.RouterBind == "" {
		return &ValidationError{Field: "node.router_bind", Reason: "must not be empty"}
	}
	if c.Node.PublisherBind == "" {
		return &ValidationError{Field: "node.publisher_bind", Reason: "must not be empty"}
	}
	if err := c.Consensus.Validate(); err != nil {
		return err
	}
	if err := c.Plato.Validate(); err != nil {
		return err
	}
	return nil
}

// PlatoDurations exposes the PLATO scalars as time.Duration, ready to
// construct a plato.Config.
func (c RacerConfig) PlatoDurations() (target, targetPublishFreq, minimum, maxTimeout, maxFreq time.Duration) {
	return c.Plato.durations()
}

// LogDirFor expands the "{node_id}" template in the configured log
// directory.
func (c RacerConfig) LogDirFor(nodeID string) string {
	return strings.ReplaceAll(c.Logging.LogDir, "{node_id}", nodeID)
}
