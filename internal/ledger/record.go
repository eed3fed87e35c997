package ledger

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"offerdex/internal/identity"
	"offerdex/pkg/model"
)

// RecordVersion is the wire version written by this build.
const RecordVersion = 1

// Record is one signed catalog publication on the ledger feed. The
// payload is the provider's full catalog in CSV form; applying a record
// replaces whatever the provider published before, so the newest record
// per provider is the whole truth about that provider.
type Record struct {
	Version  int                  `json:"version"`
	Provider model.ProviderPubkey `json:"provider"`

	// Payload is the catalog CSV the provider signed.
	Payload []byte `json:"payload"`

	// Signature covers SigningBytes and is produced with the
	// provider's ed25519 key.
	Signature []byte `json:"signature,omitempty"`

	// Seq orders a provider's records. A record with a Seq not above
	// the last applied one for the same provider is dropped as stale.
	// The signer assigns it, so it is covered by the signature.
	Seq uint64 `json:"seq"`

	Timestamp time.Time `json:"timestamp"`
}

// recordEnvelope is the signed portion of a record.
type recordEnvelope struct {
	Version   int                  `json:"version"`
	Provider  model.ProviderPubkey `json:"provider"`
	Payload   []byte               `json:"payload"`
	Seq       uint64               `json:"seq"`
	Timestamp time.Time            `json:"timestamp"`
}

// NewRecord builds an unsigned record for the provider's catalog CSV.
// Seq is seeded from the clock so consecutive publishes order
// correctly; callers keeping their own counter may overwrite it before
// signing.
func NewRecord(provider model.ProviderPubkey, payload []byte) Record {
	now := time.Now().UTC()
	return Record{
		Version:   RecordVersion,
		Provider:  provider,
		Payload:   payload,
		Seq:       uint64(now.UnixNano()),
		Timestamp: now,
	}
}

// SigningBytes returns the canonical form of the record minus its
// signature: the envelope is serialized as JSON and normalized with
// RFC 8785 JCS, so signer and verifier agree on the exact bytes no
// matter how the JSON was formatted in transit.
func (r Record) SigningBytes() ([]byte, error) {
	env, err := json.Marshal(recordEnvelope{
		Version:   r.Version,
		Provider:  r.Provider,
		Payload:   r.Payload,
		Seq:       r.Seq,
		Timestamp: r.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding record envelope: %w", err)
	}
	canonical, err := jcs.Transform(env)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing record envelope: %w", err)
	}
	return canonical, nil
}

// Sign computes and attaches the signature.
func (r *Record) Sign(priv ed25519.PrivateKey) error {
	data, err := r.SigningBytes()
	if err != nil {
		return err
	}
	r.Signature = identity.Sign(priv, data)
	return nil
}

// Verify checks the record's shape and its signature against the
// embedded provider pubkey.
func (r Record) Verify() error {
	if err := r.Validate(); err != nil {
		return err
	}
	data, err := r.SigningBytes()
	if err != nil {
		return err
	}
	return identity.Verify(r.Provider, data, r.Signature)
}

// Validate checks the record's shape without touching the signature.
func (r Record) Validate() error {
	if r.Version != RecordVersion {
		return fmt.Errorf("%w: unsupported record version %d", model.ErrValidation, r.Version)
	}
	if r.Provider.IsZero() {
		return fmt.Errorf("%w: record has no provider pubkey", model.ErrInvalidIdentity)
	}
	if len(r.Payload) == 0 {
		return fmt.Errorf("%w: record has no payload", model.ErrValidation)
	}
	if len(r.Signature) == 0 {
		return fmt.Errorf("%w: record is unsigned", model.ErrSignature)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: record has no timestamp", model.ErrValidation)
	}
	return nil
}

// Encode serializes the record to its wire form.
func (r Record) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding ledger record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a record from its wire form.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decoding ledger record: %w", err)
	}
	return r, nil
}
