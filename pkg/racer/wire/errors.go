package wire

import "errors"

// ErrUnknownMessageType is returned by Decode when the message_type
// discriminant does not match any known variant.
var ErrUnknownMessageType = errors.New("wire: unknown message_type")
