package peers

import (
	"testing"
	"time"
)

func TestAddDoesNotStoreSelf(t *testing.T) {
	r := New("self")
	r.Add(Info{ID: "self", RouterAddress: "tcp://x:1"})
	if r.Len() != 0 {
		t.Fatalf("expected self to be excluded, got %d entries", r.Len())
	}
}

func TestAddAndGet(t *testing.T) {
	r := New("self")
	r.Add(Info{ID: "p1", RouterAddress: "tcp://p1:1"})
	got, ok := r.Get("p1")
	if !ok {
		t.Fatal("expected p1 to be known")
	}
	if got.RouterAddress != "tcp://p1:1" {
		t.Fatalf("unexpected router address %q", got.RouterAddress)
	}
}

func TestIDsSnapshot(t *testing.T) {
	r := New("self")
	r.Add(Info{ID: "p1"})
	r.Add(Info{ID: "p2"})
	ids := r.IDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
}

func TestUpdateLatencyUnknownPeerIsNoOp(t *testing.T) {
	r := New("self")
	r.UpdateLatency("ghost", 5*time.Second, time.Now())
	if r.Len() != 0 {
		t.Fatal("expected no entries to be created")
	}
}

func TestAverageLatency(t *testing.T) {
	r := New("self")
	r.Add(Info{ID: "p1"})
	r.Add(Info{ID: "p2"})
	now := time.Now()
	r.UpdateLatency("p1", 2*time.Second, now)
	r.UpdateLatency("p2", 4*time.Second, now)
	if avg := r.AverageLatency(); avg != 3*time.Second {
		t.Fatalf("expected avg 3s, got %v", avg)
	}
}
