package crypto

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

// ErrAggregateVerifyFailed is returned when a BLS aggregate signature
// does not verify against the supplied public key and message set.
var ErrAggregateVerifyFailed = errors.New("crypto: bls aggregate verification failed")

type blsSecretKey = blst.SecretKey
type blsPublicKey = blst.P1Affine
type blsSignature = blst.P2Affine

// BLSKeyPair is an optional BLS12-381 key pair used to aggregate
// signatures over a batch's payload list, independent of the mandatory
// per-frame ECDSA signature.
type BLSKeyPair struct {
	secret *blsSecretKey
	Public []byte // compressed G1 public key
}

// GenerateBLSKeyPair derives a BLS key pair from 32 bytes of entropy.
func GenerateBLSKeyPair(ikm [32]byte) *BLSKeyPair {
	sk := blst.KeyGen(ikm[:])
	pk := new(blsPublicKey).From(sk)
	return &BLSKeyPair{secret: sk, Public: pk.Compress()}
}

// SignBLS signs a single message with the BLS secret key, returning a
// compressed G2 signature.
func SignBLS(kp *BLSKeyPair, message []byte) []byte {
	sig := new(blsSignature).Sign(kp.secret, message, dstPayload)
	return sig.Compress()
}

// AggregateBLS combines per-payload signatures (all produced by the same
// creator key, one per payload in a batch) into a single aggregate
// signature. The verifier re-uses the creator's public key for every
// payload position, per the wire contract.
func AggregateBLS(sigs [][]byte) ([]byte, error) {
	agg := new(blst.P2Aggregate)
	if !agg.AggregateCompressed(sigs, true) {
		return nil, errors.New("crypto: bls signature aggregation failed")
	}
	return agg.ToAffine().Compress(), nil
}

// VerifyAggregateBLS checks an aggregate signature against a single
// creator public key over the distinct payload byte slices it was
// aggregated from.
func VerifyAggregateBLS(pubCompressed []byte, messages [][]byte, aggSigCompressed []byte) error {
	pk := new(blsPublicKey).Uncompress(pubCompressed)
	if pk == nil {
		return ErrAggregateVerifyFailed
	}
	sig := new(blsSignature).Uncompress(aggSigCompressed)
	if sig == nil {
		return ErrAggregateVerifyFailed
	}
	pubs := make([]*blsPublicKey, len(messages))
	for i := range messages {
		pubs[i] = pk
	}
	if !sig.AggregateVerify(true, pubs, true, messages, dstPayload) {
		return ErrAggregateVerifyFailed
	}
	return nil
}

// dstPayload is the domain separation tag for payload-aggregate
// signatures, kept distinct from any other BLS usage in the wider
// deployment.
var dstPayload = []byte("racer-spde-payload-aggregate-v1")
