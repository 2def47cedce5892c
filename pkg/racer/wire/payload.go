package wire

// DefaultPayload is the default Payload implementation: canonical bytes
// are the canonical JSON of Value, and Validate always succeeds. A
// schema-generated payload type would implement Payload directly and
// add real validation; the core never requires more than the interface.
type DefaultPayload struct {
	SourceLocalID uint64
	Value         interface{}
}

func (p DefaultPayload) ID() uint64 { return p.SourceLocalID }

func (p DefaultPayload) CanonicalBytes() ([]byte, error) {
	return CanonicalJSON(p.Value)
}

func (p DefaultPayload) Validate() error { return nil }

// ToRawPayload converts an application Payload into its wire form.
func ToRawPayload(p Payload) (RawPayload, error) {
	b, err := p.CanonicalBytes()
	if err != nil {
		return RawPayload{}, err
	}
	return RawPayload{ID: p.ID(), Bytes: b}, nil
}
