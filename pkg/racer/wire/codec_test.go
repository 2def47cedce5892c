package wire

import "testing"

func TestCanonicalJSONSortsKeysRegardlessOfInputOrder(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2, "c": 3}
	b := map[string]interface{}{"c": 3, "a": 2, "b": 1}
	ca, err := CanonicalJSON(a)
	if err != nil {
		t.Fatalf("canonical a: %v", err)
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		t.Fatalf("canonical b: %v", err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("expected identical canonical bytes, got %q vs %q", ca, cb)
	}
	if string(ca) != `{"a":2,"b":1,"c":3}` {
		t.Fatalf("unexpected canonical encoding: %q", ca)
	}
}

func TestRoundKeyStableAcrossForwardingHops(t *testing.T) {
	b := Batch{
		BatchID:          "node-a-1",
		CreatorIdentity:  "creator-hex",
		ContentRoot:      "root-hex",
		CreatorSignature: "sig-hex",
		SenderIdentity:   "node-a-hex",
		SenderSignature:  "sender-sig-1",
	}
	k1, err := RoundKey(b)
	if err != nil {
		t.Fatalf("round key: %v", err)
	}

	// Simulate a forward: sender identity and sender signature change,
	// everything the round key depends on stays put.
	b.SenderIdentity = "node-b-hex"
	b.SenderSignature = "sender-sig-2"
	k2, err := RoundKey(b)
	if err != nil {
		t.Fatalf("round key after forward: %v", err)
	}

	if k1 != k2 {
		t.Fatalf("round key changed across forward: %s != %s", k1, k2)
	}
}

func TestRoundKeyChangesWithContentRoot(t *testing.T) {
	b1 := Batch{BatchID: "x", CreatorIdentity: "c", ContentRoot: "root-1", CreatorSignature: "s"}
	b2 := b1
	b2.ContentRoot = "root-2"
	k1, _ := RoundKey(b1)
	k2, _ := RoundKey(b2)
	if k1 == k2 {
		t.Fatal("expected distinct round keys for distinct content roots")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	orig := Echo{
		MessageType: MessageEcho,
		Kind:        EchoSubscribe,
		RoundKey:    "round-1",
		Sender:      "peer-hex",
		TimestampMs: 1000,
		Signature:   "sig",
	}
	raw, err := Encode(&orig)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	e, ok := decoded.(*Echo)
	if !ok {
		t.Fatalf("expected *Echo, got %T", decoded)
	}
	if *e != orig {
		t.Fatalf("round trip mismatch: %+v != %+v", *e, orig)
	}
}

func TestDecodeUnknownMessageType(t *testing.T) {
	_, err := Decode([]byte(`{"message_type":"Bogus"}`))
	if err == nil {
		t.Fatal("expected error for unknown message_type")
	}
}

func TestTopicNaming(t *testing.T) {
	if got := EchoTopic("k"); got != "k-echo" {
		t.Fatalf("unexpected echo topic: %s", got)
	}
	if got := ReadyTopic("k"); got != "k-ready" {
		t.Fatalf("unexpected ready topic: %s", got)
	}
}
