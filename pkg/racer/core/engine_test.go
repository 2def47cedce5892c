package core

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ten2mushi/racer/pkg/racer/config"
	"github.com/ten2mushi/racer/pkg/racer/crypto"
	"github.com/ten2mushi/racer/pkg/racer/logging"
	"github.com/ten2mushi/racer/pkg/racer/peers"
	"github.com/ten2mushi/racer/pkg/racer/plato"
	"github.com/ten2mushi/racer/pkg/racer/round"
	"github.com/ten2mushi/racer/pkg/racer/sample"
	"github.com/ten2mushi/racer/pkg/racer/transport"
	"github.com/ten2mushi/racer/pkg/racer/vclock"
	"github.com/ten2mushi/racer/pkg/racer/wire"
)

type deliveredRecord struct {
	batchID     string
	creatorHex  string
	contentRoot string
	size        int
}

type memorySink struct {
	mu      sync.Mutex
	seq     uint64
	records []deliveredRecord
}

func (s *memorySink) Log(batchID, creatorHex, contentRoot string, size int, payloads interface{}) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.records = append(s.records, deliveredRecord{
		batchID:     batchID,
		creatorHex:  creatorHex,
		contentRoot: contentRoot,
		size:        size,
	})
	return s.seq
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memorySink) first() (deliveredRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return deliveredRecord{}, false
	}
	return s.records[0], true
}

type testNode struct {
	engine *Engine
	sink   *memorySink
}

// buildCluster wires n engines together over one in-memory bus, each
// fully aware of every other node's identity up front (spec.md §8's
// fixed-membership scenario).
func buildCluster(t *testing.T, n int) []*testNode {
	t.Helper()
	bus := transport.NewMemoryBus()
	cfg := config.Default()

	keyPairs := make([]*crypto.KeyPair, n)
	for i := range keyPairs {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatalf("generate key pair: %v", err)
		}
		keyPairs[i] = kp
	}

	nodes := make([]*testNode, n)
	for i := 0; i < n; i++ {
		nodeID := keyPairs[i].Public.Hex()
		peerReg := peers.New(nodeID)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			peerReg.Add(peers.Info{
				ID:            keyPairs[j].Public.Hex(),
				RouterAddress: "mem://" + keyPairs[j].Public.Hex(),
			})
		}

		platoCfg := plato.Config{
			TargetLatency:             time.Duration(cfg.Plato.TargetLatencyMs) * time.Millisecond,
			TargetPublishingFrequency: time.Duration(cfg.Plato.TargetPublishingFrequencyMs) * time.Millisecond,
			MinimumLatency:            time.Duration(cfg.Plato.MinimumLatencyMs) * time.Millisecond,
			MaxGossipTimeout:          time.Duration(cfg.Plato.MaxGossipTimeoutMs) * time.Millisecond,
			MaxPublishingFrequency:    time.Duration(cfg.Plato.MaxPublishingFrequencyMs) * time.Millisecond,
			OwnLatencyWeight:          cfg.Plato.OwnLatencyWeight,
			RSIOverbought:             cfg.Plato.RSIOverbought,
			RSIOversold:               cfg.Plato.RSIOversold,
			UpPeriod:                  cfg.Plato.RSIUpPeriod,
			DownPeriod:                cfg.Plato.RSIDownPeriod,
			SmoothingWindowUp:         cfg.Plato.SmoothingWindowUp,
			SmoothingWindowDown:       cfg.Plato.SmoothingWindowDown,
		}
		// Small test cluster: scale PLATO's latency bounds down. Each
		// phase timeout still has Controller.Timeout's 5s floor, and the
		// safety-net sweep keeps the configured 60s default_timeout_ms.
		platoCfg.MinimumLatency = 20 * time.Millisecond
		platoCfg.TargetLatency = 200 * time.Millisecond
		platoCfg.MaxGossipTimeout = time.Second

		sink := &memorySink{}
		log := logging.NewLogrusLogger("error")
		eng := NewEngine(
			keyPairs[i],
			cfg.Consensus,
			round.NewRegistry(cfg.Consensus.MaxDelivered),
			peerReg,
			vclock.New(),
			sample.NewSelector(rand.New(rand.NewSource(int64(i)+1))),
			plato.NewController(platoCfg, rand.New(rand.NewSource(int64(i)+100))),
			bus.NewTransport(nodeID),
			sink,
			log,
		)
		nodes[i] = &testNode{engine: eng, sink: sink}
	}
	return nodes
}

func startAll(t *testing.T, nodes []*testNode) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	for _, n := range nodes {
		if err := n.engine.Start(ctx); err != nil {
			t.Fatalf("start engine %s: %v", n.engine.NodeID(), err)
		}
	}
	return cancel
}

func stopAll(nodes []*testNode) {
	for _, n := range nodes {
		n.engine.Stop()
	}
}

func waitForDeliveries(t *testing.T, nodes []*testNode, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		allDelivered := true
		for _, n := range nodes {
			if n.sink.count() == 0 {
				allDelivered = false
				break
			}
		}
		if allDelivered {
			return
		}
		if time.Now().After(deadline) {
			for i, n := range nodes {
				t.Errorf("node %d delivered %d times", i, n.sink.count())
			}
			t.Fatal("timed out waiting for every node to deliver")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestEngineBroadcastDeliversToEveryNodeExactlyOnce is the spec.md §8
// scenario-1 happy path: one node submits a payload, every node
// (including the creator) ends up delivering it exactly once, and every
// delivered content_root matches.
func TestEngineBroadcastDeliversToEveryNodeExactlyOnce(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	nodes := buildCluster(t, 7)
	cancel := startAll(t, nodes)
	defer cancel()

	payload := wire.DefaultPayload{SourceLocalID: 1, Value: map[string]string{"hello": "world"}}
	roundKey, err := nodes[0].engine.Submit(payload)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if roundKey == "" {
		t.Fatal("expected non-empty round key")
	}

	waitForDeliveries(t, nodes, 5*time.Second)

	// Let any racing amplification settle, then assert exactly-once.
	time.Sleep(200 * time.Millisecond)

	want, ok := nodes[0].sink.first()
	if !ok {
		t.Fatal("creator never recorded a delivery")
	}
	for i, n := range nodes {
		if got := n.sink.count(); got != 1 {
			t.Errorf("node %d delivered %d times, want exactly 1", i, got)
		}
		rec, ok := n.sink.first()
		if !ok {
			continue
		}
		if rec.contentRoot != want.contentRoot {
			t.Errorf("node %d content_root = %q, want %q", i, rec.contentRoot, want.contentRoot)
		}
		if rec.creatorHex != nodes[0].engine.NodeID() {
			t.Errorf("node %d creator_hex = %q, want creator's id %q", i, rec.creatorHex, nodes[0].engine.NodeID())
		}
	}

	stopAll(nodes)
}

// TestEngineSubmitRejectsInvalidPayload exercises Submit's validation
// boundary independent of the gossip pipeline.
func TestEngineSubmitRejectsInvalidPayload(t *testing.T) {
	nodes := buildCluster(t, 2)
	cancel := startAll(t, nodes)
	defer cancel()
	defer stopAll(nodes)

	_, err := nodes[0].engine.Submit(invalidPayload{})
	if err == nil {
		t.Fatal("expected Submit to reject an invalid payload")
	}
}

type invalidPayload struct{}

func (invalidPayload) ID() uint64                     { return 1 }
func (invalidPayload) CanonicalBytes() ([]byte, error) { return []byte("{}"), nil }
func (invalidPayload) Validate() error                 { return errPayloadAlwaysInvalid }

var errPayloadAlwaysInvalid = errPayloadStub("always invalid, for testing")

type errPayloadStub string

func (e errPayloadStub) Error() string { return string(e) }

// TestEngineSubmitWithNoPeersErrors exercises the no-peers guard.
func TestEngineSubmitWithNoPeersErrors(t *testing.T) {
	nodes := buildCluster(t, 1)
	cancel := startAll(t, nodes)
	defer cancel()
	defer stopAll(nodes)

	_, err := nodes[0].engine.Submit(wire.DefaultPayload{SourceLocalID: 1, Value: "x"})
	if err != ErrNoPeers {
		t.Fatalf("expected ErrNoPeers, got %v", err)
	}
}
