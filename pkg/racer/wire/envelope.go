package wire

import (
	"encoding/json"
	"fmt"
)

// envelopeTag is used only to peek at message_type before picking a
// concrete decode target.
type envelopeTag struct {
	MessageType MessageType `json:"message_type"`
}

// Decode inspects the message_type discriminant and unmarshals raw into
// the matching concrete frame type, returned as interface{} holding one
// of *Batch, *Echo, *Response, *PeerDiscovery.
func Decode(raw []byte) (interface{}, error) {
	var tag envelopeTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("wire: decode envelope tag: %w", err)
	}
	switch tag.MessageType {
	case MessageBatched:
		var b Batch
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("wire: decode batch: %w", err)
		}
		return &b, nil
	case MessageEcho:
		var e Echo
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("wire: decode echo: %w", err)
		}
		return &e, nil
	case MessageResponse:
		var r Response
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("wire: decode response: %w", err)
		}
		return &r, nil
	case MessagePeerDisco:
		var d PeerDiscovery
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("wire: decode peer discovery: %w", err)
		}
		return &d, nil
	default:
		return nil, fmt.Errorf("wire: %w: %q", ErrUnknownMessageType, tag.MessageType)
	}
}

// Encode marshals any of the concrete frame types (or CongestionUpdate)
// to its canonical JSON wire form.
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
