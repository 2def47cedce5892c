// Package round implements the per-broadcast round registry (component
// B): Echo/Ready witness sets, timeouts, and the bounded delivered
// journal used for duplicate suppression.
package round

import (
	"container/list"
	"sync"
	"time"
)

// Round is the state tracked for one observed round key. Field access
// is only ever mediated through the Registry; callers never hold a
// pointer across a registry operation boundary.
type Round struct {
	RoundKey      string
	StartedAt     time.Time
	EchoWaiting   map[string]struct{}
	EchoReceived  map[string]struct{}
	ReadyWaiting  map[string]struct{}
	ReadyReceived map[string]struct{}
	EchoComplete  bool
	ReadyComplete bool
	Delivered     bool
}

func newRound(key string, now time.Time) *Round {
	return &Round{
		RoundKey:      key,
		StartedAt:     now,
		EchoWaiting:   make(map[string]struct{}),
		EchoReceived:  make(map[string]struct{}),
		ReadyWaiting:  make(map[string]struct{}),
		ReadyReceived: make(map[string]struct{}),
	}
}

// snapshot returns a value copy safe to hand to a caller outside the
// registry lock.
func (r *Round) snapshot() Round {
	cp := Round{
		RoundKey:      r.RoundKey,
		StartedAt:     r.StartedAt,
		EchoComplete:  r.EchoComplete,
		ReadyComplete: r.ReadyComplete,
		Delivered:     r.Delivered,
		EchoWaiting:   make(map[string]struct{}, len(r.EchoWaiting)),
		EchoReceived:  make(map[string]struct{}, len(r.EchoReceived)),
		ReadyWaiting:  make(map[string]struct{}, len(r.ReadyWaiting)),
		ReadyReceived: make(map[string]struct{}, len(r.ReadyReceived)),
	}
	for k := range r.EchoWaiting {
		cp.EchoWaiting[k] = struct{}{}
	}
	for k := range r.EchoReceived {
		cp.EchoReceived[k] = struct{}{}
	}
	for k := range r.ReadyWaiting {
		cp.ReadyWaiting[k] = struct{}{}
	}
	for k := range r.ReadyReceived {
		cp.ReadyReceived[k] = struct{}{}
	}
	return cp
}

// Registry holds every active and recently-delivered round, plus the
// bounded FIFO delivered journal.
type Registry struct {
	mu     sync.Mutex
	rounds map[string]*Round

	maxDelivered int
	journal      *list.List               // of string round keys, oldest at Front
	journalPos   map[string]*list.Element // round key -> its journal element

	batches map[string]interface{} // round key -> cached *wire.Batch, opaque to avoid an import cycle
}

// NewRegistry creates an empty registry whose delivered journal holds at
// most maxDelivered keys.
func NewRegistry(maxDelivered int) *Registry {
	if maxDelivered <= 0 {
		maxDelivered = 1000
	}
	return &Registry{
		rounds:       make(map[string]*Round),
		maxDelivered: maxDelivered,
		journal:      list.New(),
		journalPos:   make(map[string]*list.Element),
		batches:      make(map[string]interface{}),
	}
}

// CacheBatch stores a decoded batch against its round key for duplicate
// detection and later retrieval by the gossip pipeline.
func (reg *Registry) CacheBatch(roundKey string, batch interface{}) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.batches[roundKey] = batch
}

// CachedBatch returns the batch previously stored with CacheBatch, if
// any.
func (reg *Registry) CachedBatch(roundKey string) (interface{}, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	b, ok := reg.batches[roundKey]
	return b, ok
}

// Open is idempotent: it returns the existing round if present, else
// creates one with empty witness sets and start time = now.
func (reg *Registry) Open(roundKey string, now time.Time) Round {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rounds[roundKey]
	if !ok {
		r = newRound(roundKey, now)
		reg.rounds[roundKey] = r
	}
	return r.snapshot()
}

// Get returns the current snapshot of a round, or ok=false if unknown.
func (reg *Registry) Get(roundKey string) (Round, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rounds[roundKey]
	if !ok {
		return Round{}, false
	}
	return r.snapshot(), true
}

// RegisterEchoWaiting adds peers to the echo_waiting set for roundKey.
// Unknown round keys are a no-op.
func (reg *Registry) RegisterEchoWaiting(roundKey string, peers []string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rounds[roundKey]
	if !ok {
		return
	}
	for _, p := range peers {
		if _, received := r.EchoReceived[p]; !received {
			r.EchoWaiting[p] = struct{}{}
		}
	}
}

// RegisterReadyWaiting adds peers to the ready_waiting set for roundKey.
// Unknown round keys are a no-op.
func (reg *Registry) RegisterReadyWaiting(roundKey string, peers []string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rounds[roundKey]
	if !ok {
		return
	}
	for _, p := range peers {
		if _, received := r.ReadyReceived[p]; !received {
			r.ReadyWaiting[p] = struct{}{}
		}
	}
}

// MarkEcho moves peerID from echo_waiting to echo_received; an
// unsolicited response (peerID not in echo_waiting) still counts.
// Re-applying it is a no-op. Returns the updated snapshot and false if
// the round key is unknown.
func (reg *Registry) MarkEcho(roundKey, peerID string) (Round, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rounds[roundKey]
	if !ok {
		return Round{}, false
	}
	delete(r.EchoWaiting, peerID)
	r.EchoReceived[peerID] = struct{}{}
	return r.snapshot(), true
}

// MarkReady is the ready-phase analogue of MarkEcho.
func (reg *Registry) MarkReady(roundKey, peerID string) (Round, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rounds[roundKey]
	if !ok {
		return Round{}, false
	}
	delete(r.ReadyWaiting, peerID)
	r.ReadyReceived[peerID] = struct{}{}
	return r.snapshot(), true
}

// SetEchoComplete idempotently flips echo_complete to true.
func (reg *Registry) SetEchoComplete(roundKey string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rounds[roundKey]; ok {
		r.EchoComplete = true
	}
}

// Deliver sets delivered = true, pushes the key onto the delivered
// journal, and evicts the oldest entry if capacity is exceeded. It is
// idempotent: delivering an already-delivered key does not push a
// second journal entry, and firstDelivery reports false so a caller
// driving an external sink from this transition can tell a repeat
// trigger (e.g. both the ready-phase poller and an amplifying response
// racing to call Deliver) from the one that actually delivered. Returns
// ok=false if the round key is unknown.
func (reg *Registry) Deliver(roundKey string) (evicted string, hadEviction bool, firstDelivery bool, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, present := reg.rounds[roundKey]
	if !present {
		return "", false, false, false
	}
	if r.Delivered {
		return "", false, false, true
	}
	r.Delivered = true
	r.ReadyComplete = true

	if _, already := reg.journalPos[roundKey]; !already {
		el := reg.journal.PushBack(roundKey)
		reg.journalPos[roundKey] = el
	}

	for reg.journal.Len() > reg.maxDelivered {
		oldest := reg.journal.Front()
		oldKey := oldest.Value.(string)
		reg.journal.Remove(oldest)
		delete(reg.journalPos, oldKey)
		delete(reg.rounds, oldKey)
		delete(reg.batches, oldKey)
		evicted, hadEviction = oldKey, true
	}
	return evicted, hadEviction, true, true
}

// IsDelivered reports whether roundKey has already been delivered.
func (reg *Registry) IsDelivered(roundKey string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rounds[roundKey]
	return ok && r.Delivered
}

// JournalLen returns the current size of the delivered journal.
func (reg *Registry) JournalLen() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.journal.Len()
}

// TimeoutSweep returns the keys of non-delivered rounds whose elapsed
// time (relative to now) exceeds timeout, removing them together with
// their cached state.
func (reg *Registry) TimeoutSweep(now time.Time, timeout time.Duration) []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var expired []string
	for key, r := range reg.rounds {
		if r.Delivered {
			continue
		}
		if now.Sub(r.StartedAt) > timeout {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(reg.rounds, key)
		delete(reg.batches, key)
	}
	return expired
}
