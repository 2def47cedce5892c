package wire

import (
	"bytes"
	"encoding/json"
	"sort"

	rcrypto "github.com/ten2mushi/racer/pkg/racer/crypto"
)

// CanonicalJSON re-encodes v with every JSON object's keys in sorted
// order, recursively, giving a byte-stable representation regardless of
// map iteration order or struct-tag source ordering. It is the wire
// format's canonicalisation primitive, used both for free-form payload
// bytes and for composing the byte strings that get signed.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// batchCreatorSigningFields is the exact field set covered by the
// creator signature: {batch_id, content_root, size, created_at_ms}.
type batchCreatorSigningFields struct {
	BatchID     string `json:"batch_id"`
	ContentRoot string `json:"content_root"`
	Size        int    `json:"size"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// batchSenderSigningFields is the exact field set covered by the sender
// signature: {batch_id, content_root, sender_identity}.
type batchSenderSigningFields struct {
	BatchID        string `json:"batch_id"`
	ContentRoot    string `json:"content_root"`
	SenderIdentity string `json:"sender_identity"`
}

// CreatorSigningBytes returns the canonical bytes the creator signature
// is computed over.
func CreatorSigningBytes(b Batch) ([]byte, error) {
	return CanonicalJSON(batchCreatorSigningFields{
		BatchID:     b.BatchID,
		ContentRoot: b.ContentRoot,
		Size:        b.Size,
		CreatedAtMs: b.CreatedAtMs,
	})
}

// SenderSigningBytes returns the canonical bytes the sender signature is
// computed over.
func SenderSigningBytes(b Batch) ([]byte, error) {
	return CanonicalJSON(batchSenderSigningFields{
		BatchID:        b.BatchID,
		ContentRoot:    b.ContentRoot,
		SenderIdentity: b.SenderIdentity,
	})
}

// roundKeyFields is the exact field set the round key is a hash of.
// Stable across forwards since the sender signature is excluded.
type roundKeyFields struct {
	BatchID          string `json:"batch_id"`
	CreatorIdentity  string `json:"creator_identity"`
	ContentRoot      string `json:"content_root"`
	CreatorSignature string `json:"creator_signature"`
}

// RoundKey computes H(B): the hash of {batch_id, creator_identity,
// content_root, creator_signature}. Stable across every hop of a
// forwarded batch.
func RoundKey(b Batch) (string, error) {
	canon, err := CanonicalJSON(roundKeyFields{
		BatchID:          b.BatchID,
		CreatorIdentity:  b.CreatorIdentity,
		ContentRoot:      b.ContentRoot,
		CreatorSignature: b.CreatorSignature,
	})
	if err != nil {
		return "", err
	}
	return rcrypto.SHA256Hex(canon), nil
}

// ContentRoot computes the hash commitment to an ordered payload list.
func ContentRoot(payloads []RawPayload) (string, error) {
	canon, err := CanonicalJSON(payloads)
	if err != nil {
		return "", err
	}
	return rcrypto.SHA256Hex(canon), nil
}

// echoSigningFields is the exact field set an Echo/Response signature
// covers: every field except the signature itself.
type echoSigningFields struct {
	Kind        string `json:"kind"`
	RoundKey    string `json:"round_key"`
	Sender      string `json:"sender_identity"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// EchoSigningBytes returns the canonical bytes an Echo request's
// signature is computed over.
func EchoSigningBytes(e Echo) ([]byte, error) {
	return CanonicalJSON(echoSigningFields{
		Kind:        string(e.Kind),
		RoundKey:    e.RoundKey,
		Sender:      e.Sender,
		TimestampMs: e.TimestampMs,
	})
}

// ResponseSigningBytes returns the canonical bytes a Response's
// signature is computed over.
func ResponseSigningBytes(r Response) ([]byte, error) {
	return CanonicalJSON(echoSigningFields{
		Kind:        string(r.Kind),
		RoundKey:    r.RoundKey,
		Sender:      r.Sender,
		TimestampMs: r.TimestampMs,
	})
}
