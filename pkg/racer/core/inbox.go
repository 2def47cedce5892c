package core

import (
	"encoding/json"
	"time"

	"github.com/ten2mushi/racer/pkg/racer/crypto"
	"github.com/ten2mushi/racer/pkg/racer/peers"
	"github.com/ten2mushi/racer/pkg/racer/transport"
	"github.com/ten2mushi/racer/pkg/racer/wire"
)

func (e *Engine) pollRouter() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case frame, ok := <-e.transport.RecvRouter():
			if !ok {
				return
			}
			e.handleRouterFrame(frame)
		}
	}
}

func (e *Engine) handleRouterFrame(frame transport.RouterFrame) {
	decoded, err := wire.Decode(frame.Data)
	if err != nil {
		e.log.Warnf("core: decode router frame from %s: %v", frame.PeerIdentity, err)
		return
	}
	switch v := decoded.(type) {
	case *wire.Batch:
		e.OnInboxBatch(v, frame.PeerIdentity)
	case *wire.Echo:
		e.OnInboxEcho(v)
	case *wire.PeerDiscovery:
		e.OnPeerDiscovery(v)
	default:
		e.log.Warnf("core: unexpected router frame type from %s", frame.PeerIdentity)
	}
}

func (e *Engine) pollSubscriber() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case frame, ok := <-e.transport.RecvSubscriber():
			if !ok {
				return
			}
			decoded, err := wire.Decode(frame.Data)
			if err != nil {
				e.log.Warnf("core: decode subscriber frame on %s: %v", frame.Topic, err)
				continue
			}
			if r, ok := decoded.(*wire.Response); ok {
				e.OnInboxResponse(r)
			}
		}
	}
}

func (e *Engine) pollDealer() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case frame, ok := <-e.transport.RecvDealer():
			if !ok {
				return
			}
			var update wire.CongestionUpdate
			if err := json.Unmarshal(frame.Data, &update); err != nil {
				e.log.Warnf("core: decode dealer frame from %s: %v", frame.PeerID, err)
				continue
			}
			e.onCongestionUpdate(&update)
		}
	}
}

func (e *Engine) onCongestionUpdate(u *wire.CongestionUpdate) {
	latency := time.Duration(u.CurrentLatency * float64(time.Second))
	e.platoMu.Lock()
	e.plato.RecordPeerLatency(latency)
	if u.RecentlyMissed {
		e.plato.MarkMissedDelivery()
	}
	e.platoMu.Unlock()
}

// OnInboxBatch handles a batch arriving over the unicast channel: it
// verifies both signatures, drops on failure with a neutral reply,
// replies AlreadyReceived for a duplicate round key, and otherwise
// caches the batch, merges its vector clock, immediately echoes, replies
// OK, and re-signs the batch as this node's own sender before spawning
// the rebroadcast pipeline.
func (e *Engine) OnInboxBatch(b *wire.Batch, fromPeerIdentity string) {
	creatorPub, err := crypto.ParsePublicKeyHex(b.CreatorIdentity)
	if err != nil {
		e.replyStatus(fromPeerIdentity, wire.StatusCongestionUpdate)
		return
	}
	creatorBytes, err := wire.CreatorSigningBytes(*b)
	if err != nil || crypto.Verify(creatorPub, creatorBytes, b.CreatorSignature) != nil {
		e.replyStatus(fromPeerIdentity, wire.StatusCongestionUpdate)
		return
	}

	senderPub, err := crypto.ParsePublicKeyHex(b.SenderIdentity)
	if err != nil {
		e.replyStatus(fromPeerIdentity, wire.StatusCongestionUpdate)
		return
	}
	senderBytes, err := wire.SenderSigningBytes(*b)
	if err != nil || crypto.Verify(senderPub, senderBytes, b.SenderSignature) != nil {
		e.replyStatus(fromPeerIdentity, wire.StatusCongestionUpdate)
		return
	}

	roundKey, err := wire.RoundKey(*b)
	if err != nil {
		e.replyStatus(fromPeerIdentity, wire.StatusCongestionUpdate)
		return
	}

	if _, cached := e.registry.CachedBatch(roundKey); cached {
		e.replyStatus(fromPeerIdentity, wire.StatusAlreadyReceived)
		return
	}

	cp := *b
	e.registry.CacheBatch(roundKey, &cp)
	e.registry.Open(roundKey, time.Now())
	e.clock.Merge(b.VectorClock)

	echoTopic := wire.EchoTopic(roundKey)
	readyTopic := wire.ReadyTopic(roundKey)
	if err := e.transport.SubscribeTopic(echoTopic); err != nil {
		e.log.Warnf("core: subscribe %s: %v", echoTopic, err)
	}
	if err := e.transport.SubscribeTopic(readyTopic); err != nil {
		e.log.Warnf("core: subscribe %s: %v", readyTopic, err)
	}

	e.publishResponse(roundKey, wire.EchoResponse)
	e.replyStatus(fromPeerIdentity, wire.StatusOK)

	forward := cp
	forward.SenderIdentity = e.nodeID
	if err := e.signAsSender(&forward); err != nil {
		e.log.Warnf("core: re-sign forwarded batch %s: %v", forward.BatchID, err)
		return
	}
	e.invoker.Spawn(func() {
		e.runGossipPipeline(roundKey, &forward)
	})
}

// OnInboxEcho handles an EchoSubscribe or ReadySubscribe request.
func (e *Engine) OnInboxEcho(msg *wire.Echo) {
	pub, err := crypto.ParsePublicKeyHex(msg.Sender)
	if err != nil {
		return
	}
	signingBytes, err := wire.EchoSigningBytes(*msg)
	if err != nil || crypto.Verify(pub, signingBytes, msg.Signature) != nil {
		return
	}

	switch msg.Kind {
	case wire.EchoSubscribe:
		if _, ok := e.registry.CachedBatch(msg.RoundKey); ok {
			e.publishResponse(msg.RoundKey, wire.EchoResponse)
		}
	case wire.ReadySubscribe:
		r, ok := e.registry.Get(msg.RoundKey)
		if !ok {
			return
		}
		if len(r.EchoReceived) >= e.cfg.ReadyThreshold || len(r.ReadyReceived) >= e.cfg.FeedbackThreshold {
			e.publishResponse(msg.RoundKey, wire.ReadyResponse)
		}
	}
}

// OnInboxResponse handles an EchoResponse or ReadyResponse published on
// a round's topic: mark_echo/mark_ready, then apply the amplification
// rule before the delivery rule, matching spec.md §4.C's tie-break
// ordering.
func (e *Engine) OnInboxResponse(msg *wire.Response) {
	if msg.Sender == e.nodeID {
		return
	}
	pub, err := crypto.ParsePublicKeyHex(msg.Sender)
	if err != nil {
		return
	}
	signingBytes, err := wire.ResponseSigningBytes(*msg)
	if err != nil || crypto.Verify(pub, signingBytes, msg.Signature) != nil {
		return
	}

	switch msg.Kind {
	case wire.EchoResponse:
		r, ok := e.registry.MarkEcho(msg.RoundKey, msg.Sender)
		if !ok {
			return
		}
		if !r.EchoComplete && len(r.EchoReceived) >= e.cfg.ReadyThreshold {
			e.registry.SetEchoComplete(msg.RoundKey)
			e.publishResponse(msg.RoundKey, wire.ReadyResponse)
		}
	case wire.ReadyResponse:
		r, ok := e.registry.MarkReady(msg.RoundKey, msg.Sender)
		if !ok {
			return
		}
		if !r.EchoComplete && len(r.ReadyReceived) >= e.cfg.FeedbackThreshold {
			e.registry.SetEchoComplete(msg.RoundKey)
			e.publishResponse(msg.RoundKey, wire.ReadyResponse)
		}
		if !r.Delivered && len(r.ReadyReceived) >= e.cfg.DeliveryThreshold {
			e.deliverIfFirst(msg.RoundKey)
		}
	}
}

// OnPeerDiscovery forwards an announced peer's addresses to the
// external peer registry and proactively connects/subscribes to it, so
// it becomes eligible for sampling on the very next gossip pipeline.
func (e *Engine) OnPeerDiscovery(d *wire.PeerDiscovery) {
	if d.PeerID == "" || d.PeerID == e.nodeID {
		return
	}
	e.peerReg.Add(peers.Info{
		ID:               d.PeerID,
		RouterAddress:    d.RouterAddress,
		PublisherAddress: d.PublisherAddr,
		LastSeen:         time.Now(),
	})
	if d.RouterAddress != "" {
		if err := e.transport.ConnectToPeer(e.ctx, d.PeerID, d.RouterAddress); err != nil {
			e.log.Warnf("core: peer discovery connect to %s: %v", d.PeerID, err)
		}
	}
	if d.PublisherAddr != "" {
		if err := e.transport.SubscribeToPeer(d.PublisherAddr); err != nil {
			e.log.Warnf("core: peer discovery subscribe to %s: %v", d.PeerID, err)
		}
	}
}

// announceSelf unicasts a PeerDiscovery frame to every peer already
// known from the static config-seeded peer list, so they learn this
// node's publisher address (config carries only a router address per
// spec.md §6's bootstrap peer list) without a separate discovery round.
// A no-op until SetAddresses has been called.
func (e *Engine) announceSelf() {
	if e.routerAddr == "" && e.publisherAddr == "" {
		return
	}
	msg := wire.PeerDiscovery{
		MessageType:   wire.MessagePeerDisco,
		PeerID:        e.nodeID,
		RouterAddress: e.routerAddr,
		PublisherAddr: e.publisherAddr,
		AnnouncedAtMs: time.Now().UnixMilli(),
	}
	raw, err := wire.Encode(msg)
	if err != nil {
		e.log.Warnf("core: encode self announcement: %v", err)
		return
	}
	for _, id := range e.peerReg.IDs() {
		if err := e.transport.SendToPeer(id, raw); err != nil {
			e.log.Warnf("core: announce self to %s: %v", id, err)
		}
	}
}

// replyStatus replies on the unicast channel with a CongestionUpdate
// carrying the given status, the node's current phase timeout as its
// self-reported latency, and its recently-missed-delivery flag.
func (e *Engine) replyStatus(peerIdentity string, status wire.CongestionStatus) {
	update := wire.CongestionUpdate{
		Status:         status,
		CurrentLatency: e.currentTimeout().Seconds(),
		RecentlyMissed: e.recentlyMissedDelivery(),
	}
	raw, err := wire.Encode(update)
	if err != nil {
		e.log.Warnf("core: encode congestion update to %s: %v", peerIdentity, err)
		return
	}
	if err := e.transport.SendRouterReply(peerIdentity, raw); err != nil {
		e.log.Warnf("core: reply to %s: %v", peerIdentity, err)
	}
}
