package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
)

// ZMQTransport implements Transport over ZeroMQ ROUTER/DEALER and
// PUB/SUB socket pairs, with one receive goroutine for the router, one
// for the subscriber, and one per connected peer's DEALER socket,
// created lazily on ConnectToPeer. Sends are not queued onto an owning
// goroutine: SendToPeer, Publish and SendRouterReply write to the
// socket directly from the calling goroutine.
type ZMQTransport struct {
	nodeID        string
	routerBind    string
	publisherBind string

	router zmq4.Socket
	pub    zmq4.Socket
	sub    zmq4.Socket

	mu      sync.RWMutex
	dealers map[string]zmq4.Socket

	routerCh chan RouterFrame
	subCh    chan TopicFrame
	dealerCh chan DealerFrame

	wg sync.WaitGroup
}

// NewZMQTransport builds a transport bound to the given router and
// publisher addresses once Bind is called.
func NewZMQTransport(nodeID, routerBind, publisherBind string) *ZMQTransport {
	return &ZMQTransport{
		nodeID:        nodeID,
		routerBind:    routerBind,
		publisherBind: publisherBind,
		dealers:       make(map[string]zmq4.Socket),
		routerCh:      make(chan RouterFrame, InboundBatchSize),
		subCh:         make(chan TopicFrame, InboundBatchSize),
		dealerCh:      make(chan DealerFrame, InboundBatchSize),
	}
}

// Bind opens the router and publisher sockets and starts their receive
// loops. Bind failure is fatal to the node per spec.md §7.
func (t *ZMQTransport) Bind(ctx context.Context) error {
	t.router = zmq4.NewRouter(ctx)
	if err := t.router.Listen(t.routerBind); err != nil {
		return fmt.Errorf("transport: bind router %s: %w", t.routerBind, err)
	}

	t.pub = zmq4.NewPub(ctx)
	if err := t.pub.Listen(t.publisherBind); err != nil {
		return fmt.Errorf("transport: bind publisher %s: %w", t.publisherBind, err)
	}

	t.sub = zmq4.NewSub(ctx)

	t.wg.Add(2)
	go t.recvRouterLoop(ctx)
	go t.recvSubscriberLoop(ctx)
	return nil
}

func (t *ZMQTransport) recvRouterLoop(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := t.router.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if len(msg.Frames) < 2 {
			continue
		}
		frame := RouterFrame{PeerIdentity: string(msg.Frames[0]), Data: msg.Frames[1]}
		select {
		case t.routerCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (t *ZMQTransport) recvSubscriberLoop(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := t.sub.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if len(msg.Frames) < 2 {
			continue
		}
		frame := TopicFrame{Topic: string(msg.Frames[0]), Data: msg.Frames[1]}
		select {
		case t.subCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (t *ZMQTransport) recvDealerLoop(ctx context.Context, peerID string, dealer zmq4.Socket) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := dealer.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if len(msg.Frames) < 1 {
			continue
		}
		frame := DealerFrame{PeerID: peerID, Data: msg.Frames[0]}
		select {
		case t.dealerCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// ConnectToPeer dials a DEALER socket to the peer's router address,
// lazily, on first use, and spawns the goroutine that owns it.
func (t *ZMQTransport) ConnectToPeer(ctx context.Context, peerID, routerAddress string) error {
	t.mu.Lock()
	if _, ok := t.dealers[peerID]; ok {
		t.mu.Unlock()
		return nil
	}
	dealer := zmq4.NewDealer(ctx, zmq4.WithID(zmq4.SocketIdentity(t.nodeID)))
	if err := dealer.Dial(routerAddress); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("transport: dial peer %s at %s: %w", peerID, routerAddress, err)
	}
	t.dealers[peerID] = dealer
	t.mu.Unlock()

	t.wg.Add(1)
	go t.recvDealerLoop(ctx, peerID, dealer)
	return nil
}

// SubscribeToPeer dials the subscriber socket to a peer's publisher
// address.
func (t *ZMQTransport) SubscribeToPeer(publisherAddress string) error {
	if err := t.sub.Dial(publisherAddress); err != nil {
		return fmt.Errorf("transport: subscribe to %s: %w", publisherAddress, err)
	}
	return nil
}

// SubscribeTopic filters the subscriber socket to a topic prefix.
func (t *ZMQTransport) SubscribeTopic(topic string) error {
	return t.sub.SetOption(zmq4.OptionSubscribe, topic)
}

// UnsubscribeTopic stops filtering for a topic prefix.
func (t *ZMQTransport) UnsubscribeTopic(topic string) error {
	return t.sub.SetOption(zmq4.OptionUnsubscribe, topic)
}

// SendToPeer unicasts data to peerID over its dealer connection.
// Transport send failure is per-operation; the caller's round proceeds
// with whatever witnesses do reply.
func (t *ZMQTransport) SendToPeer(peerID string, data []byte) error {
	t.mu.RLock()
	dealer, ok := t.dealers[peerID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no connection to peer %s", peerID)
	}
	return dealer.Send(zmq4.NewMsg(data))
}

// Publish broadcasts data on topic to every subscriber.
func (t *ZMQTransport) Publish(topic string, data []byte) error {
	return t.pub.Send(zmq4.NewMsgFrom([]byte(topic), data))
}

// RecvRouter returns the inbound router queue.
func (t *ZMQTransport) RecvRouter() <-chan RouterFrame { return t.routerCh }

// RecvSubscriber returns the inbound subscriber queue.
func (t *ZMQTransport) RecvSubscriber() <-chan TopicFrame { return t.subCh }

// RecvDealer returns the inbound dealer queue.
func (t *ZMQTransport) RecvDealer() <-chan DealerFrame { return t.dealerCh }

// SendRouterReply replies to a previously received router frame,
// addressed by peer identity as the routing frame.
func (t *ZMQTransport) SendRouterReply(peerIdentity string, data []byte) error {
	return t.router.Send(zmq4.NewMsgFrom([]byte(peerIdentity), data))
}

// Close tears down every socket and waits for all goroutines to exit.
// Callers are expected to have already cancelled the context passed to
// Bind/ConnectToPeer so the receive loops observe it before Close
// blocks on socket teardown.
func (t *ZMQTransport) Close() error {
	if t.router != nil {
		t.router.Close()
	}
	if t.pub != nil {
		t.pub.Close()
	}
	if t.sub != nil {
		t.sub.Close()
	}
	t.mu.Lock()
	for _, d := range t.dealers {
		d.Close()
	}
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}
