package crypto

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := []byte("round-key-abc123")
	sig, err := Sign(kp, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := Verify(kp.Public, msg, sig); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := []byte("round-key-abc123")
	sig, err := Sign(kp, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tampered := append([]byte(nil), msg...)
	tampered[0] ^= 0x01
	if err := Verify(kp.Public, tampered, sig); err == nil {
		t.Fatal("expected verification failure on tampered message")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	kp1, _ := GenerateKeyPair()
	kp2, _ := GenerateKeyPair()
	msg := []byte("payload")
	sig, _ := Sign(kp1, msg)
	if err := Verify(kp2.Public, msg, sig); err == nil {
		t.Fatal("expected verification failure against mismatched key")
	}
}

func TestPublicKeyHexRoundTrip(t *testing.T) {
	kp, _ := GenerateKeyPair()
	hexKey := kp.Public.Hex()
	parsed, err := ParsePublicKeyHex(hexKey)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	msg := []byte("hello")
	sig, _ := Sign(kp, msg)
	if err := Verify(parsed, msg, sig); err != nil {
		t.Fatalf("round-tripped key failed to verify: %v", err)
	}
}

func TestParsePublicKeyHexRejectsGarbage(t *testing.T) {
	if _, err := ParsePublicKeyHex("not-hex-at-all"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
	if _, err := ParsePublicKeyHex("deadbeef"); err == nil {
		t.Fatal("expected error for hex that is not a valid curve point")
	}
}

func TestSHA256HexDeterministic(t *testing.T) {
	a := SHA256Hex([]byte("x"))
	b := SHA256Hex([]byte("x"))
	if a != b {
		t.Fatal("expected deterministic hash")
	}
	if a == SHA256Hex([]byte("y")) {
		t.Fatal("expected distinct hash for distinct input")
	}
}
