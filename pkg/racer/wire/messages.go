// Package wire defines the canonical-JSON frame types exchanged between
// nodes: batches, echoes, responses, peer-discovery announcements, and
// the congestion-update reply object, plus the topic-naming convention.
package wire

// MessageType is the tagged-union discriminant carried in every
// envelope as "message_type".
type MessageType string

const (
	MessageBatched   MessageType = "BatchedMessage"
	MessageEcho      MessageType = "Echo"
	MessageResponse  MessageType = "Response"
	MessagePeerDisco MessageType = "PeerDiscovery"
)

// EchoKind distinguishes an Echo-subscribe request from a Ready-subscribe
// request.
type EchoKind string

const (
	EchoSubscribe  EchoKind = "EchoSubscribe"
	ReadySubscribe EchoKind = "ReadySubscribe"
)

// ResponseKind distinguishes an Echo response from a Ready response.
type ResponseKind string

const (
	EchoResponse  ResponseKind = "EchoResponse"
	ReadyResponse ResponseKind = "ReadyResponse"
)

// CongestionStatus is the status field of a CongestionUpdate reply.
type CongestionStatus string

const (
	StatusCongestionUpdate CongestionStatus = "CongestionUpdate"
	StatusOK               CongestionStatus = "OK"
	StatusAlreadyReceived  CongestionStatus = "ALREADY_RECEIVED"
)

// Payload is the opaque, schema-polymorphic application value the core
// treats only through these three capabilities. The default
// implementation (CanonicalBytes = canonical JSON, Validate = always OK)
// lives in payload.go.
type Payload interface {
	ID() uint64
	CanonicalBytes() ([]byte, error)
	Validate() error
}

// Batch is the immutable broadcast unit. SenderSignature and
// SenderIdentity change at every hop; every other field is stable for
// the lifetime of the round key.
type Batch struct {
	MessageType      MessageType       `json:"message_type"`
	BatchID          string            `json:"batch_id"`
	CreatorIdentity  string            `json:"creator_identity"`
	SenderIdentity   string            `json:"sender_identity"`
	ContentRoot      string            `json:"content_root"`
	Size             int               `json:"size"`
	Payloads         []RawPayload      `json:"payloads"`
	VectorClock      map[string]uint64 `json:"vector_clock"`
	CreatedAtMs      int64             `json:"created_at_ms"`
	CreatorSignature string            `json:"creator_signature"`
	SenderSignature  string            `json:"sender_signature"`
	AggregateSig     string            `json:"aggregate_sig,omitempty"`
}

// RawPayload is the wire representation of an application Payload: its
// 64-bit identifier plus the canonical byte serialisation, carried
// opaquely by the core.
type RawPayload struct {
	ID    uint64 `json:"id"`
	Bytes []byte `json:"bytes"`
}

// Echo is a signed subscribe request ({EchoSubscribe, ReadySubscribe}).
type Echo struct {
	MessageType MessageType `json:"message_type"`
	Kind        EchoKind    `json:"kind"`
	RoundKey    string      `json:"round_key"`
	Sender      string      `json:"sender_identity"`
	TimestampMs int64       `json:"timestamp_ms"`
	Signature   string      `json:"signature"`
}

// Response is a signed witness response ({EchoResponse, ReadyResponse}).
type Response struct {
	MessageType MessageType  `json:"message_type"`
	Kind        ResponseKind `json:"kind"`
	RoundKey    string       `json:"round_key"`
	Sender      string       `json:"sender_identity"`
	TimestampMs int64        `json:"timestamp_ms"`
	Signature   string       `json:"signature"`
}

// PeerDiscovery announces a peer's router and publisher addresses.
type PeerDiscovery struct {
	MessageType     MessageType `json:"message_type"`
	PeerID          string      `json:"peer_id"`
	RouterAddress   string      `json:"router_address"`
	PublisherAddr   string      `json:"publisher_address"`
	AnnouncedAtMs   int64       `json:"announced_at_ms"`
}

// CongestionUpdate is the sole reply shape on the unicast channel.
type CongestionUpdate struct {
	Status          CongestionStatus `json:"status"`
	CurrentLatency  float64          `json:"current_latency"`
	RecentlyMissed  bool             `json:"recently_missed"`
}

// EchoTopic is the topic name carrying Echo responses for a round.
func EchoTopic(roundKey string) string { return roundKey + "-echo" }

// ReadyTopic is the topic name carrying Ready responses for a round.
func ReadyTopic(roundKey string) string { return roundKey + "-ready" }
