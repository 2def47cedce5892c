// Package peers implements the external peer registry: the read
// snapshot of the currently usable peer set that the sample selector
// draws from, and the router/publisher addresses the transport needs to
// connect to each peer.
package peers

import (
	"sync"
	"time"
)

// Info describes one known peer: its identity, the addresses the
// transport dials to reach it, and the latency it last self-reported.
type Info struct {
	ID               string
	PublicKeyHex     string
	RouterAddress    string
	PublisherAddress string
	ReportedLatency  time.Duration
	LastSeen         time.Time
}

// Registry is a concurrency-safe map of known peers, excluding the
// node's own id by construction: Add silently drops an entry whose ID
// matches SelfID.
type Registry struct {
	mu      sync.RWMutex
	selfID  string
	entries map[string]Info
}

// New creates an empty registry for the given self id. A node never
// samples itself; Add enforces that by refusing to store an entry whose
// ID equals selfID.
func New(selfID string) *Registry {
	return &Registry{selfID: selfID, entries: make(map[string]Info)}
}

// SelfID returns the id this registry was constructed with.
func (r *Registry) SelfID() string { return r.selfID }

// Add inserts or replaces a peer entry. A peer matching SelfID is
// silently ignored.
func (r *Registry) Add(p Info) {
	if p.ID == "" || p.ID == r.selfID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.ID] = p
}

// Remove deletes a peer entry, if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Get returns the entry for id, if known.
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[id]
	return p, ok
}

// IDs returns a consistent snapshot of every known peer id, taken under
// the registry lock and safe to hand to a sampler after the lock is
// released.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}

// Len reports the number of known peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// UpdateLatency records a peer's self-reported latency and bumps its
// last-seen timestamp. Unknown peer ids are a no-op.
func (r *Registry) UpdateLatency(id string, latency time.Duration, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entries[id]
	if !ok {
		return
	}
	p.ReportedLatency = latency
	p.LastSeen = now
	r.entries[id] = p
}

// AverageLatency returns the mean of every peer's last-reported
// latency, or zero if the registry is empty.
func (r *Registry) AverageLatency() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return 0
	}
	var total time.Duration
	for _, p := range r.entries {
		total += p.ReportedLatency
	}
	return total / time.Duration(len(r.entries))
}
