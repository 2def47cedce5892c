// Package crypto provides the ECDSA P-256 signing/verification, SHA-256
// hashing, and optional BLS aggregate-signature primitives consumed by
// the broadcast engine. Keys are exchanged as hex-encoded SEC1
// compressed points, signatures as DER-encoded, base64-text blobs.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"
)

// Curve is the 256-bit prime curve used across the protocol.
var Curve = elliptic.P256()

// ErrMalformedKey is returned when a hex public key cannot be decoded
// into a point on Curve.
var ErrMalformedKey = errors.New("crypto: malformed public key")

// KeyPair holds a private signing key and its derived public key.
type KeyPair struct {
	Private *ecdsa.PrivateKey
	Public  PublicKey
}

// PublicKey is a SEC1 compressed point, the wire representation used in
// every signed frame.
type PublicKey struct {
	raw []byte
}

// GenerateKeyPair creates a fresh P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(Curve, rand.Reader)
	if err != nil {
		return nil, err
	}
	pub := publicKeyFromPrivate(priv)
	return &KeyPair{Private: priv, Public: pub}, nil
}

func publicKeyFromPrivate(priv *ecdsa.PrivateKey) PublicKey {
	raw := elliptic.MarshalCompressed(Curve, priv.PublicKey.X, priv.PublicKey.Y)
	return PublicKey{raw: raw}
}

// Hex encodes the public key as a hex string of its SEC1 compressed form.
func (p PublicKey) Hex() string {
	return hex.EncodeToString(p.raw)
}

// Bytes returns the raw SEC1 compressed point.
func (p PublicKey) Bytes() []byte {
	out := make([]byte, len(p.raw))
	copy(out, p.raw)
	return out
}

// ParsePublicKeyHex decodes a hex-encoded SEC1 compressed point.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, ErrMalformedKey
	}
	x, y := elliptic.UnmarshalCompressed(Curve, raw)
	if x == nil {
		return PublicKey{}, ErrMalformedKey
	}
	return PublicKey{raw: raw}, nil
}

// privateKeySize is the byte width of a P-256 scalar (ceil(256/8)).
const privateKeySize = 32

// MarshalPrivateHex encodes kp's private scalar as fixed-width,
// zero-padded hex, the format `racerd keygen` writes to disk.
func MarshalPrivateHex(kp *KeyPair) string {
	raw := kp.Private.D.Bytes()
	padded := make([]byte, privateKeySize)
	copy(padded[privateKeySize-len(raw):], raw)
	return hex.EncodeToString(padded)
}

// ParsePrivateKeyHex reconstructs a KeyPair from the hex scalar
// MarshalPrivateHex produced, deriving the public key by scalar
// multiplication against the curve base point.
func ParsePrivateKeyHex(s string) (*KeyPair, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != privateKeySize {
		return nil, ErrMalformedKey
	}
	d := new(big.Int).SetBytes(raw)
	x, y := Curve.ScalarBaseMult(raw)
	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: Curve, X: x, Y: y},
		D:         d,
	}
	return &KeyPair{Private: priv, Public: publicKeyFromPrivate(priv)}, nil
}

// ecdsaPublicKey reconstructs the stdlib key needed for verification.
func (p PublicKey) ecdsaPublicKey() (*ecdsa.PublicKey, error) {
	x, y := elliptic.UnmarshalCompressed(Curve, p.raw)
	if x == nil {
		return nil, ErrMalformedKey
	}
	return &ecdsa.PublicKey{Curve: Curve, X: x, Y: y}, nil
}
