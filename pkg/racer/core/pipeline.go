package core

import (
	"time"

	"github.com/ten2mushi/racer/pkg/racer/crypto"
	"github.com/ten2mushi/racer/pkg/racer/logging"
	"github.com/ten2mushi/racer/pkg/racer/round"
	"github.com/ten2mushi/racer/pkg/racer/wire"
)

// echoPollInterval and readyPollInterval are the fixed poll cadences
// spec.md §5 names for the Echo and Ready phase loops.
const (
	echoPollInterval  = 100 * time.Millisecond
	readyPollInterval = 50 * time.Millisecond
)

// runGossipPipeline is the pipeline shared by a creator's Submit and a
// receiver's rebroadcast: draw samples, register waiting sets,
// subscribe to the round's topics, emit subscribe requests, optionally
// unicast the batch, then run the Echo and Ready phase polls in turn.
// A node runs this at most once per round key — duplicate batches are
// rejected before a second invocation is ever spawned — so the node's
// own delivery, if it happens, happens exactly once here.
func (e *Engine) runGossipPipeline(roundKey string, batch *wire.Batch) {
	peerIDs := e.peerReg.IDs()
	self := e.nodeID

	e.samplerMu.Lock()
	echoSample := e.sampler.Sample(peerIDs, e.cfg.EchoSampleSize, self)
	readySample := e.sampler.Sample(peerIDs, e.cfg.ReadySampleSize, self)
	e.samplerMu.Unlock()

	e.registry.RegisterEchoWaiting(roundKey, echoSample)
	e.registry.RegisterReadyWaiting(roundKey, readySample)

	echoTopic := wire.EchoTopic(roundKey)
	readyTopic := wire.ReadyTopic(roundKey)
	if err := e.transport.SubscribeTopic(echoTopic); err != nil {
		e.log.Warnf("core: subscribe %s: %v", echoTopic, err)
	}
	if err := e.transport.SubscribeTopic(readyTopic); err != nil {
		e.log.Warnf("core: subscribe %s: %v", readyTopic, err)
	}
	defer e.unsubscribeRound(echoTopic, readyTopic)

	for _, p := range echoSample {
		e.sendEcho(p, roundKey, wire.EchoSubscribe)
	}
	for _, p := range readySample {
		e.sendEcho(p, roundKey, wire.ReadySubscribe)
	}

	if r, ok := e.registry.Get(roundKey); ok && len(r.ReadyReceived) < e.cfg.FeedbackThreshold {
		e.unicastBatch(batch, echoSample)
	}

	fields := logging.Fields{"round_key": roundKey}
	timeout := e.currentTimeout()
	phaseStart := time.Now()

	echoComplete := e.pollUntil(roundKey, phaseStart.Add(timeout), echoPollInterval, func(r round.Round) bool {
		return len(r.EchoReceived) >= e.cfg.ReadyThreshold
	})
	e.recordOwnLatency(time.Since(phaseStart))

	if !echoComplete {
		e.markMissedDelivery()
		e.log.WithFields(fields).Warnf("core: echo phase timed out")
		return
	}
	e.registry.SetEchoComplete(roundKey)
	e.publishResponse(roundKey, wire.ReadyResponse)

	readyStart := time.Now()
	readyComplete := e.pollUntil(roundKey, readyStart.Add(timeout), readyPollInterval, func(r round.Round) bool {
		return len(r.ReadyReceived) >= e.cfg.DeliveryThreshold
	})

	if !readyComplete {
		e.markMissedDelivery()
		e.log.WithFields(fields).Warnf("core: ready phase timed out")
		return
	}
	e.deliverIfFirst(roundKey)
}

// unicastBatch sends the full batch to every peer in sample, per
// spec.md §4.C step 5. Per-peer send failure is logged and ignored; the
// round proceeds with whatever witnesses do reply.
func (e *Engine) unicastBatch(batch *wire.Batch, sample []string) {
	raw, err := wire.Encode(batch)
	if err != nil {
		e.log.Warnf("core: encode batch %s: %v", batch.BatchID, err)
		return
	}
	for _, p := range sample {
		if err := e.transport.SendToPeer(p, raw); err != nil {
			e.log.Warnf("core: unicast batch to %s: %v", p, err)
		}
	}
}

// pollUntil checks pred against the round's current snapshot
// immediately, then on every tick of interval, until pred succeeds, the
// deadline passes, the engine stops, or the round is evicted out from
// under it.
func (e *Engine) pollUntil(roundKey string, deadline time.Time, interval time.Duration, pred func(round.Round) bool) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if r, ok := e.registry.Get(roundKey); ok && pred(r) {
			return true
		} else if !ok {
			return false
		}
		if !e.isRunning() || !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-e.ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (e *Engine) unsubscribeRound(topics ...string) {
	for _, t := range topics {
		if err := e.transport.UnsubscribeTopic(t); err != nil {
			e.log.Warnf("core: unsubscribe %s: %v", t, err)
		}
	}
}

// sendEcho builds and signs an Echo request of the given kind and
// unicasts it to peerID.
func (e *Engine) sendEcho(peerID, roundKey string, kind wire.EchoKind) {
	msg := wire.Echo{
		MessageType: wire.MessageEcho,
		Kind:        kind,
		RoundKey:    roundKey,
		Sender:      e.nodeID,
		TimestampMs: time.Now().UnixMilli(),
	}
	signingBytes, err := wire.EchoSigningBytes(msg)
	if err != nil {
		e.log.Warnf("core: sign echo to %s: %v", peerID, err)
		return
	}
	sig, err := crypto.Sign(e.keyPair, signingBytes)
	if err != nil {
		e.log.Warnf("core: sign echo to %s: %v", peerID, err)
		return
	}
	msg.Signature = sig

	raw, err := wire.Encode(msg)
	if err != nil {
		e.log.Warnf("core: encode echo to %s: %v", peerID, err)
		return
	}
	if err := e.transport.SendToPeer(peerID, raw); err != nil {
		e.log.Warnf("core: send %s to %s: %v", kind, peerID, err)
	}
}

// publishResponse builds and signs a Response of the given kind and
// broadcasts it on the round's matching topic.
func (e *Engine) publishResponse(roundKey string, kind wire.ResponseKind) {
	msg := wire.Response{
		MessageType: wire.MessageResponse,
		Kind:        kind,
		RoundKey:    roundKey,
		Sender:      e.nodeID,
		TimestampMs: time.Now().UnixMilli(),
	}
	signingBytes, err := wire.ResponseSigningBytes(msg)
	if err != nil {
		e.log.Warnf("core: sign %s for %s: %v", kind, roundKey, err)
		return
	}
	sig, err := crypto.Sign(e.keyPair, signingBytes)
	if err != nil {
		e.log.Warnf("core: sign %s for %s: %v", kind, roundKey, err)
		return
	}
	msg.Signature = sig

	raw, err := wire.Encode(msg)
	if err != nil {
		e.log.Warnf("core: encode %s for %s: %v", kind, roundKey, err)
		return
	}

	topic := wire.EchoTopic(roundKey)
	if kind == wire.ReadyResponse {
		topic = wire.ReadyTopic(roundKey)
	}
	if err := e.transport.Publish(topic, raw); err != nil {
		e.log.Warnf("core: publish %s for %s: %v", kind, roundKey, err)
	}
}

// deliverIfFirst delivers roundKey if this is the transition that
// actually marks it delivered, invoking the sink exactly once. Called
// both from the ready-phase poller's own threshold check and from an
// amplifying ReadyResponse racing to cross the delivery threshold first;
// the registry's firstDelivery flag arbitrates between them.
func (e *Engine) deliverIfFirst(roundKey string) {
	_, _, first, ok := e.registry.Deliver(roundKey)
	if !ok || !first {
		return
	}
	cached, ok := e.registry.CachedBatch(roundKey)
	if !ok {
		return
	}
	batch, ok := cached.(*wire.Batch)
	if !ok || e.sink == nil {
		return
	}
	e.sink.Log(batch.BatchID, batch.CreatorIdentity, batch.ContentRoot, batch.Size, batch.Payloads)
}
