package core

import (
	"fmt"
	"time"

	"github.com/ten2mushi/racer/pkg/racer/crypto"
	"github.com/ten2mushi/racer/pkg/racer/wire"
)

// Submit builds a fresh batch from payload, signs it as both creator
// and sender, opens its round, and spawns the gossip pipeline. Returns
// the round key immediately — the gossip pipeline, including both
// phase polls, runs on its own task, matching spec.md §5's task-parallel
// scheduling model rather than blocking the caller for up to two phase
// timeouts.
func (e *Engine) Submit(payload wire.Payload) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	if e.peerReg.Len() == 0 {
		return "", ErrNoPeers
	}

	raw, err := wire.ToRawPayload(payload)
	if err != nil {
		return "", fmt.Errorf("core: encode payload: %w", err)
	}

	e.clock.Increment(e.nodeID)
	vc := e.clock.Snapshot()

	contentRoot, err := wire.ContentRoot([]wire.RawPayload{raw})
	if err != nil {
		return "", fmt.Errorf("core: content root: %w", err)
	}

	batch := wire.Batch{
		MessageType:     wire.MessageBatched,
		BatchID:         fmt.Sprintf("%s-%d", e.nodeID, payload.ID()),
		CreatorIdentity: e.nodeID,
		SenderIdentity:  e.nodeID,
		ContentRoot:     contentRoot,
		Size:            1,
		Payloads:        []wire.RawPayload{raw},
		VectorClock:     vc,
		CreatedAtMs:     time.Now().UnixMilli(),
	}
	if err := e.signAsCreator(&batch); err != nil {
		return "", fmt.Errorf("core: sign as creator: %w", err)
	}
	if err := e.signAsSender(&batch); err != nil {
		return "", fmt.Errorf("core: sign as sender: %w", err)
	}

	roundKey, err := wire.RoundKey(batch)
	if err != nil {
		return "", fmt.Errorf("core: round key: %w", err)
	}

	e.registry.CacheBatch(roundKey, &batch)
	e.registry.Open(roundKey, time.Now())

	e.invoker.Spawn(func() {
		e.runGossipPipeline(roundKey, &batch)
	})
	return roundKey, nil
}

func (e *Engine) signAsCreator(b *wire.Batch) error {
	signingBytes, err := wire.CreatorSigningBytes(*b)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(e.keyPair, signingBytes)
	if err != nil {
		return err
	}
	b.CreatorSignature = sig
	return nil
}

func (e *Engine) signAsSender(b *wire.Batch) error {
	signingBytes, err := wire.SenderSigningBytes(*b)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(e.keyPair, signingBytes)
	if err != nil {
		return err
	}
	b.SenderSignature = sig
	return nil
}
