package round

import (
	"testing"
	"time"
)

func TestOpenIsIdempotent(t *testing.T) {
	reg := NewRegistry(10)
	now := time.Now()
	r1 := reg.Open("k1", now)
	r2 := reg.Open("k1", now.Add(time.Second))
	if r1.StartedAt != r2.StartedAt {
		t.Fatalf("expected Open to return the existing round, got distinct start times")
	}
}

func TestMarkEchoMovesWaitingToReceived(t *testing.T) {
	reg := NewRegistry(10)
	reg.Open("k1", time.Now())
	reg.RegisterEchoWaiting("k1", []string{"p1", "p2"})

	r, ok := reg.MarkEcho("k1", "p1")
	if !ok {
		t.Fatal("expected known round")
	}
	if _, waiting := r.EchoWaiting["p1"]; waiting {
		t.Fatal("p1 should have left echo_waiting")
	}
	if _, received := r.EchoReceived["p1"]; !received {
		t.Fatal("p1 should be in echo_received")
	}
}

func TestMarkEchoCountsUnsolicitedResponse(t *testing.T) {
	reg := NewRegistry(10)
	reg.Open("k1", time.Now())
	r, ok := reg.MarkEcho("k1", "unsolicited")
	if !ok {
		t.Fatal("expected known round")
	}
	if _, received := r.EchoReceived["unsolicited"]; !received {
		t.Fatal("unsolicited response should still count")
	}
}

func TestMarkEchoReapplicationIsNoOp(t *testing.T) {
	reg := NewRegistry(10)
	reg.Open("k1", time.Now())
	r1, _ := reg.MarkEcho("k1", "p1")
	r2, _ := reg.MarkEcho("k1", "p1")
	if len(r1.EchoReceived) != len(r2.EchoReceived) {
		t.Fatalf("expected idempotent mark_echo, got %d vs %d", len(r1.EchoReceived), len(r2.EchoReceived))
	}
}

func TestMarkUnknownRoundIsNoOp(t *testing.T) {
	reg := NewRegistry(10)
	if _, ok := reg.MarkEcho("missing", "p1"); ok {
		t.Fatal("expected unknown-round mark to report not-ok")
	}
}

func TestWitnessSetsNeverDecrease(t *testing.T) {
	reg := NewRegistry(10)
	reg.Open("k1", time.Now())
	sizes := []int{}
	for _, p := range []string{"p1", "p2", "p3"} {
		r, _ := reg.MarkEcho("k1", p)
		sizes = append(sizes, len(r.EchoReceived))
	}
	for i := 1; i < len(sizes); i++ {
		if sizes[i] < sizes[i-1] {
			t.Fatalf("echo_received shrank: %v", sizes)
		}
	}
}

func TestDeliverIsIdempotentAndOnceOnly(t *testing.T) {
	reg := NewRegistry(10)
	reg.Open("k1", time.Now())
	_, _, first1, ok1 := reg.Deliver("k1")
	_, _, first2, ok2 := reg.Deliver("k1")
	if !ok1 || !ok2 {
		t.Fatal("expected both deliver calls to report known round")
	}
	if !first1 || first2 {
		t.Fatalf("expected firstDelivery true then false, got %v then %v", first1, first2)
	}
	if reg.JournalLen() != 1 {
		t.Fatalf("expected exactly one journal entry, got %d", reg.JournalLen())
	}
}

func TestDeliveredJournalEvictsOldestAtCapacity(t *testing.T) {
	capacity := 3
	reg := NewRegistry(capacity)
	keys := []string{"k1", "k2", "k3", "k4"}
	for _, k := range keys {
		reg.Open(k, time.Now())
		reg.Deliver(k)
	}
	if reg.JournalLen() != capacity {
		t.Fatalf("expected journal length %d, got %d", capacity, reg.JournalLen())
	}
	if reg.IsDelivered("k1") {
		t.Fatal("expected k1 (oldest) to have been evicted")
	}
	if !reg.IsDelivered("k4") {
		t.Fatal("expected k4 (newest) to remain delivered")
	}
}

func TestTimeoutSweepEvictsOnlyNonDelivered(t *testing.T) {
	reg := NewRegistry(10)
	past := time.Now().Add(-time.Minute)
	reg.Open("stale", past)
	reg.Open("fresh", time.Now())
	reg.Deliver("stale")

	expired := reg.TimeoutSweep(time.Now(), time.Second)
	if len(expired) != 0 {
		t.Fatalf("delivered round should never be swept, got %v", expired)
	}

	reg2 := NewRegistry(10)
	reg2.Open("stale", past)
	expired2 := reg2.TimeoutSweep(time.Now(), time.Second)
	if len(expired2) != 1 || expired2[0] != "stale" {
		t.Fatalf("expected stale round to be swept, got %v", expired2)
	}
	if _, ok := reg2.Get("stale"); ok {
		t.Fatal("swept round should no longer be retrievable")
	}
}

func TestCacheBatchRoundTrip(t *testing.T) {
	reg := NewRegistry(10)
	reg.CacheBatch("k1", "fake-batch")
	got, ok := reg.CachedBatch("k1")
	if !ok || got != "fake-batch" {
		t.Fatalf("expected cached batch to round trip, got %v, %v", got, ok)
	}
}
