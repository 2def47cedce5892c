package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
)

// ErrInvalidSignature is returned by Verify when the signature does not
// match the given public key and message.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

type derSignature struct {
	R, S *big.Int
}

// Sign produces a DER-encoded, base64-text signature over message using
// the given key pair. Go's ecdsa.Sign derives its per-signature nonce
// from the private key, the message digest and fresh randomness read
// from crypto/rand (a hedged construction), so signing the same message
// twice yields different signatures; nonces are not RFC 6979
// deterministic.
func Sign(kp *KeyPair, message []byte) (string, error) {
	digest := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, kp.Private, digest[:])
	if err != nil {
		return "", err
	}
	der, err := asn1.Marshal(derSignature{R: r, S: s})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// Verify checks a base64(DER) signature over message against pub.
func Verify(pub PublicKey, message []byte, sigB64 string) error {
	raw, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return ErrInvalidSignature
	}
	var sig derSignature
	if _, err := asn1.Unmarshal(raw, &sig); err != nil {
		return ErrInvalidSignature
	}
	key, err := pub.ecdsaPublicKey()
	if err != nil {
		return ErrInvalidSignature
	}
	digest := sha256.Sum256(message)
	if !ecdsa.Verify(key, digest[:], sig.R, sig.S) {
		return ErrInvalidSignature
	}
	return nil
}

// SHA256 returns the raw SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// SHA256Hex returns the hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	d := sha256.Sum256(data)
	return hex.EncodeToString(d[:])
}
