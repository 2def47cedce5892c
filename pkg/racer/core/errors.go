package core

import "errors"

var (
	// ErrNoPeers is returned by Submit when the peer registry is empty,
	// so no sample can be drawn for either phase.
	ErrNoPeers = errors.New("core: no peers available to sample")

	// ErrPayloadInvalid is returned by Submit when the payload's own
	// Validate fails; the payload is never broadcast.
	ErrPayloadInvalid = errors.New("core: payload failed validation")
)
