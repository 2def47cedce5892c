package transport

import (
	"context"
	"fmt"
	"sync"
)

// memoryBus is the shared switchboard every MemoryTransport in a test
// process registers with, so SendToPeer/Publish/SendRouterReply calls
// reach the right in-process peer without a real socket.
type memoryBus struct {
	mu    sync.RWMutex
	peers map[string]*MemoryTransport
}

func newMemoryBus() *memoryBus {
	return &memoryBus{peers: make(map[string]*MemoryTransport)}
}

// MemoryBus is an in-process stand-in for the wire, used by engine
// tests that want several nodes gossiping without a real ZeroMQ socket.
// It implements the addressing semantics (router unicast, topic-filtered
// publish/subscribe) of ZMQTransport, except that a subscription matches
// a topic exactly rather than by prefix.
type MemoryBus struct {
	bus *memoryBus
}

// NewMemoryBus creates a fresh switchboard for a test cluster.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{bus: newMemoryBus()}
}

// NewTransport builds a MemoryTransport for nodeID wired to this bus.
func (b *MemoryBus) NewTransport(nodeID string) *MemoryTransport {
	return &MemoryTransport{
		nodeID:    nodeID,
		bus:       b.bus,
		routerCh:  make(chan RouterFrame, InboundBatchSize),
		subCh:     make(chan TopicFrame, InboundBatchSize),
		dealerCh:  make(chan DealerFrame, InboundBatchSize),
		topics:    make(map[string]struct{}),
		connected: make(map[string]struct{}),
	}
}

// MemoryTransport implements Transport entirely in-process: Publish
// fans out to every registered peer whose subscribed topic set
// contains the message's topic, SendToPeer/SendRouterReply deliver
// directly into the target's channel.
type MemoryTransport struct {
	nodeID string
	bus    *memoryBus

	routerCh chan RouterFrame
	subCh    chan TopicFrame
	dealerCh chan DealerFrame

	mu        sync.RWMutex
	topics    map[string]struct{}
	connected map[string]struct{}

	closed bool
}

func (t *MemoryTransport) Bind(ctx context.Context) error {
	t.bus.mu.Lock()
	t.bus.peers[t.nodeID] = t
	t.bus.mu.Unlock()
	return nil
}

func (t *MemoryTransport) ConnectToPeer(ctx context.Context, peerID, routerAddress string) error {
	t.mu.Lock()
	t.connected[peerID] = struct{}{}
	t.mu.Unlock()
	return nil
}

func (t *MemoryTransport) SubscribeToPeer(publisherAddress string) error { return nil }

func (t *MemoryTransport) SubscribeTopic(topic string) error {
	t.mu.Lock()
	t.topics[topic] = struct{}{}
	t.mu.Unlock()
	return nil
}

func (t *MemoryTransport) UnsubscribeTopic(topic string) error {
	t.mu.Lock()
	delete(t.topics, topic)
	t.mu.Unlock()
	return nil
}

func (t *MemoryTransport) SendToPeer(peerID string, data []byte) error {
	t.bus.mu.RLock()
	target, ok := t.bus.peers[peerID]
	t.bus.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no connection to peer %s", peerID)
	}
	frame := RouterFrame{PeerIdentity: t.nodeID, Data: append([]byte(nil), data...)}
	select {
	case target.routerCh <- frame:
	default:
		return fmt.Errorf("transport: peer %s router queue full", peerID)
	}
	return nil
}

func (t *MemoryTransport) Publish(topic string, data []byte) error {
	t.bus.mu.RLock()
	defer t.bus.mu.RUnlock()
	for id, peer := range t.bus.peers {
		if id == t.nodeID {
			continue
		}
		peer.mu.RLock()
		_, subscribed := peer.topics[topic]
		peer.mu.RUnlock()
		if !subscribed {
			continue
		}
		frame := TopicFrame{Topic: topic, Data: append([]byte(nil), data...)}
		select {
		case peer.subCh <- frame:
		default:
		}
	}
	return nil
}

func (t *MemoryTransport) RecvRouter() <-chan RouterFrame { return t.routerCh }

func (t *MemoryTransport) RecvSubscriber() <-chan TopicFrame { return t.subCh }

func (t *MemoryTransport) RecvDealer() <-chan DealerFrame { return t.dealerCh }

func (t *MemoryTransport) SendRouterReply(peerIdentity string, data []byte) error {
	t.bus.mu.RLock()
	target, ok := t.bus.peers[peerIdentity]
	t.bus.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no peer %s to reply to", peerIdentity)
	}
	frame := DealerFrame{PeerID: t.nodeID, Data: append([]byte(nil), data...)}
	select {
	case target.dealerCh <- frame:
	default:
		return fmt.Errorf("transport: peer %s dealer queue full", peerIdentity)
	}
	return nil
}

func (t *MemoryTransport) Close() error {
	t.bus.mu.Lock()
	defer t.bus.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	delete(t.bus.peers, t.nodeID)
	return nil
}
