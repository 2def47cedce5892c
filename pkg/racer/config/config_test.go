package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidatesAndSatisfiesThresholdRatios(t *testing.T) {
	cfg := Default()
	cfg.Node.ID = "node-a"
	require.NoError(t, cfg.Validate())
}

func TestConsensusValidateOrdering(t *testing.T) {
	c := ConsensusConfig{
		EchoSampleSize: 6, ReadySampleSize: 6, DeliverySampleSize: 6,
		ReadyThreshold: 5, FeedbackThreshold: 4, DeliveryThreshold: 6,
	}
	require.Error(t, c.Validate(), "expected error when ready_threshold >= feedback_threshold")
}

func TestConsensusValidateReadyThresholdFloor(t *testing.T) {
	c := ConsensusConfig{
		EchoSampleSize: 6, ReadySampleSize: 6, DeliverySampleSize: 6,
		ReadyThreshold: 3, FeedbackThreshold: 5, DeliveryThreshold: 6,
	}
	// ceil(6/2)+1 = 4, so 3 must be rejected.
	require.Error(t, c.Validate(), "expected error for ready_threshold below ceil(echo_sample_size/2)+1")
}

func TestConsensusValidateStricterExampleFromScenario3(t *testing.T) {
	c := ConsensusConfig{
		EchoSampleSize: 7, ReadySampleSize: 7, DeliverySampleSize: 7,
		ReadyThreshold: 5, FeedbackThreshold: 6, DeliveryThreshold: 7,
	}
	require.NoError(t, c.Validate(), "expected the stricter scenario-3 configuration to validate")
	assert.Equal(t, 0, c.ByzantineHeadroom(), "expected headroom 0 for delivery_sample_size=delivery_threshold=7")
}

func TestDefaultHasZeroByzantineHeadroom(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0, cfg.Consensus.ByzantineHeadroom(), "expected reference defaults to have zero headroom (the documented open question)")
}

func TestPlatoValidate(t *testing.T) {
	p := Default().Plato
	require.NoError(t, p.Validate())

	bad := p
	bad.TargetLatencyMs = p.MinimumLatencyMs
	require.Error(t, bad.Validate(), "expected error when target_latency_ms <= minimum_latency_ms")
}

func TestApplyEnvOverridesNodeAndPeers(t *testing.T) {
	os.Setenv("RACER_NODE_ID", "env-node")
	os.Setenv("RACER_ROUTER_BIND", "tcp://1.2.3.4:9000")
	os.Setenv("RACER_PEERS", "p1=tcp://host1:5555, p2=tcp://host2:5555")
	defer os.Unsetenv("RACER_NODE_ID")
	defer os.Unsetenv("RACER_ROUTER_BIND")
	defer os.Unsetenv("RACER_PEERS")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "env-node", cfg.Node.ID)
	assert.Equal(t, "tcp://1.2.3.4:9000", cfg.Node.RouterBind)
	require.Len(t, cfg.Peers, 2)
	assert.Equal(t, "p1", cfg.Peers[0].ID)
	assert.Equal(t, "tcp://host2:5555", cfg.Peers[1].RouterAddress)
}

func TestLogDirTemplateExpansion(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "logs/node-7", cfg.LogDirFor("node-7"))
}

func TestWithSampleSizeSetsAllThree(t *testing.T) {
	c := &ConsensusConfig{}
	c.WithSampleSize(9)
	assert.Equal(t, 9, c.EchoSampleSize)
	assert.Equal(t, 9, c.ReadySampleSize)
	assert.Equal(t, 9, c.DeliverySampleSize)
}
