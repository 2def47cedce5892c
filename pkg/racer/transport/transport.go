// Package transport implements the peer transport consumed by the SPDE
// engine (spec.md §6): router/dealer unicast, publisher/subscriber
// topic broadcast, and the three independent inbound queues the engine
// polls from. The engine never touches a socket directly: inbound frames
// reach it through bounded channels fed by receive goroutines, and
// outbound sends are made by the transport's methods on the caller's
// goroutine.
package transport

import "context"

// InboundBatchSize is the default buffer depth of every inbound queue,
// matching spec.md §5's "buffer default 100 items".
const InboundBatchSize = 100

// RouterFrame is one frame pulled off the router's inbound queue: the
// sending peer's identity and the raw payload bytes.
type RouterFrame struct {
	PeerIdentity string
	Data         []byte
}

// TopicFrame is one frame pulled off the subscriber's inbound queue.
type TopicFrame struct {
	Topic string
	Data  []byte
}

// DealerFrame is one frame pulled off a dealer's inbound queue: a reply
// from a peer we unicast to, keyed by that peer's id.
type DealerFrame struct {
	PeerID string
	Data   []byte
}

// Transport is the wire-transport contract spec.md §6 requires of an
// external collaborator: unicast with peer identity, topic broadcast,
// and three independent inbound queues (router, subscriber, dealer).
type Transport interface {
	// Bind opens the router and publisher sockets for inbound traffic.
	Bind(ctx context.Context) error

	// ConnectToPeer opens (or reuses) a dealer connection to a peer's
	// router address, lazily spawning its receive goroutine on first
	// use.
	ConnectToPeer(ctx context.Context, peerID, routerAddress string) error

	// SubscribeToPeer dials the subscriber socket to a peer's publisher
	// address, so its topic broadcasts start arriving.
	SubscribeToPeer(publisherAddress string) error

	// SubscribeTopic filters the subscriber socket to start receiving a
	// topic.
	SubscribeTopic(topic string) error

	// UnsubscribeTopic stops receiving a topic.
	UnsubscribeTopic(topic string) error

	// SendToPeer unicasts bytes to peerID over its dealer connection.
	SendToPeer(peerID string, data []byte) error

	// Publish broadcasts bytes on topic to every subscriber.
	Publish(topic string, data []byte) error

	// RecvRouter returns the inbound router queue.
	RecvRouter() <-chan RouterFrame

	// RecvSubscriber returns the inbound subscriber queue.
	RecvSubscriber() <-chan TopicFrame

	// RecvDealer returns the inbound dealer queue (replies from peers we
	// unicast to).
	RecvDealer() <-chan DealerFrame

	// SendRouterReply replies to a frame previously received on the
	// router's inbound queue, addressed by its peer identity.
	SendRouterReply(peerIdentity string, data []byte) error

	// Close tears down every socket and goroutine owned by the
	// transport.
	Close() error
}
