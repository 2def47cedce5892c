// Package core implements the SPDE broadcast engine (component C): the
// submit/on_inbox/tick public contract, the gossip pipeline shared by
// creators and forwarders, and the engine's ownership of the round
// registry, peer registry, PLATO controller, and vector clock. Its
// shape — a protocol engine driven by channel-fed poll loops, talking
// to a pluggable transport, configured through typed structs — follows
// the teacher's Peer/Transport/Deliverable split in
// pkg/mcast/core/{peer,transport,deliver}.go, generalized from
// partition-quorum atomic multicast to randomized-sample double-echo
// broadcast.
package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ten2mushi/racer/pkg/racer/config"
	"github.com/ten2mushi/racer/pkg/racer/crypto"
	"github.com/ten2mushi/racer/pkg/racer/logging"
	"github.com/ten2mushi/racer/pkg/racer/peers"
	"github.com/ten2mushi/racer/pkg/racer/plato"
	"github.com/ten2mushi/racer/pkg/racer/round"
	"github.com/ten2mushi/racer/pkg/racer/sample"
	"github.com/ten2mushi/racer/pkg/racer/transport"
	"github.com/ten2mushi/racer/pkg/racer/vclock"
)

// DefaultTickInterval is how often Start's background loop calls Tick
// when no explicit scheduler drives the engine.
const DefaultTickInterval = time.Second

// defaultSweepTimeout is the registry's safety-net eviction window used
// when config carries no default_timeout_ms (spec.md §5's "fixed
// default_timeout (60s)").
const defaultSweepTimeout = 60 * time.Second

// Engine is the SPDE broadcast engine for one node. A node's identity —
// used both as its transport peer id and as the sender_identity on
// every signed frame — is its public key hex; the peer registry, the
// round registry's witness sets, and the transport's addressing all
// share that one namespace.
type Engine struct {
	nodeID  string
	keyPair *crypto.KeyPair
	cfg     config.ConsensusConfig

	registry  *round.Registry
	peerReg   *peers.Registry
	clock     *vclock.Clock
	transport transport.Transport
	sink      DeliveredSink
	log       logging.Logger
	invoker   Invoker

	samplerMu sync.Mutex
	sampler   *sample.Selector

	platoMu sync.Mutex
	plato   *plato.Controller

	defaultTimeout time.Duration

	routerAddr    string
	publisherAddr string

	ctx    context.Context
	cancel context.CancelFunc
	running int32
}

// NewEngine wires together the already-constructed components a node
// needs: its signing key, the validated consensus thresholds, the
// round/peer registries, the vector clock, a peer sampler, a PLATO
// controller, a transport, the delivered-log sink, and a logger.
func NewEngine(
	keyPair *crypto.KeyPair,
	cfg config.ConsensusConfig,
	registry *round.Registry,
	peerReg *peers.Registry,
	clock *vclock.Clock,
	sampler *sample.Selector,
	controller *plato.Controller,
	tr transport.Transport,
	sink DeliveredSink,
	log logging.Logger,
) *Engine {
	timeout := time.Duration(cfg.DefaultTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultSweepTimeout
	}
	return &Engine{
		nodeID:         keyPair.Public.Hex(),
		keyPair:        keyPair,
		cfg:            cfg,
		registry:       registry,
		peerReg:        peerReg,
		clock:          clock,
		sampler:        sampler,
		plato:          controller,
		transport:      tr,
		sink:           sink,
		log:            log,
		invoker:        NewInvoker(),
		defaultTimeout: timeout,
	}
}

// NodeID returns this engine's identity (its public key hex).
func (e *Engine) NodeID() string { return e.nodeID }

// SetAddresses records this node's own router and publisher bind
// addresses, used only to fill in the PeerDiscovery frames announceSelf
// sends at startup. A node that never calls this (e.g. an engine under
// test over an in-memory transport) simply never announces.
func (e *Engine) SetAddresses(routerAddr, publisherAddr string) {
	e.routerAddr = routerAddr
	e.publisherAddr = publisherAddr
}

// Start binds the transport, connects to every peer already in the
// registry, and spawns the three receive loops plus the tick loop.
// Bind failure is fatal to the node, per spec.md §7.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.transport.Bind(e.ctx); err != nil {
		return err
	}

	for _, id := range e.peerReg.IDs() {
		info, ok := e.peerReg.Get(id)
		if !ok {
			continue
		}
		if info.RouterAddress != "" {
			if err := e.transport.ConnectToPeer(e.ctx, info.ID, info.RouterAddress); err != nil {
				e.log.Warnf("core: connect to peer %s: %v", info.ID, err)
			}
		}
		if info.PublisherAddress != "" {
			if err := e.transport.SubscribeToPeer(info.PublisherAddress); err != nil {
				e.log.Warnf("core: subscribe to peer %s: %v", info.ID, err)
			}
		}
	}

	atomic.StoreInt32(&e.running, 1)
	e.invoker.Spawn(e.pollRouter)
	e.invoker.Spawn(e.pollSubscriber)
	e.invoker.Spawn(e.pollDealer)
	e.invoker.Spawn(func() { e.tickLoop(DefaultTickInterval) })
	e.announceSelf()
	return nil
}

// Stop clears the running flag, which every receive loop and active
// round poller observes on its next iteration, then waits for all
// spawned tasks to exit before closing the transport. Safe to call more
// than once.
func (e *Engine) Stop() {
	if !atomic.CompareAndSwapInt32(&e.running, 1, 0) {
		return
	}
	e.cancel()
	e.invoker.Stop()
	if err := e.transport.Close(); err != nil {
		e.log.Warnf("core: close transport: %v", err)
	}
}

func (e *Engine) isRunning() bool {
	return atomic.LoadInt32(&e.running) == 1
}

// Tick runs the registry's safety-net timeout sweep and evaluates
// PLATO's control laws once. The scheduler (Start's tick loop, or a
// caller-provided clock in tests) is expected to call this at least
// once per gossip round.
func (e *Engine) Tick(now time.Time) {
	expired := e.registry.TimeoutSweep(now, e.defaultTimeout)
	for _, key := range expired {
		e.log.WithFields(logging.Fields{"round_key": key}).Warnf("core: round evicted by safety-net timeout sweep")
	}
	e.platoMu.Lock()
	e.plato.Tick()
	e.platoMu.Unlock()
}

func (e *Engine) tickLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

func (e *Engine) currentTimeout() time.Duration {
	e.platoMu.Lock()
	defer e.platoMu.Unlock()
	return e.plato.Timeout()
}

func (e *Engine) recordOwnLatency(d time.Duration) {
	e.platoMu.Lock()
	e.plato.RecordOurLatency(d)
	e.platoMu.Unlock()
}

func (e *Engine) markMissedDelivery() {
	e.platoMu.Lock()
	e.plato.MarkMissedDelivery()
	e.platoMu.Unlock()
}

func (e *Engine) recentlyMissedDelivery() bool {
	e.platoMu.Lock()
	defer e.platoMu.Unlock()
	return e.plato.Stats().RecentlyMissedDelivery
}

// PlatoStats exposes PLATO's current snapshot, for an operator status
// line.
func (e *Engine) PlatoStats() plato.Stats {
	e.platoMu.Lock()
	defer e.platoMu.Unlock()
	return e.plato.Stats()
}
