// Package model defines the public domain types of the offering registry:
// provider identities, offering records, search queries, filters and the
// error taxonomy shared by all services.
package model

import (
	"encoding/hex"
	"fmt"
)

// PubkeySize is the exact byte length of a provider public key (ed25519).
const PubkeySize = 32

// ProviderPubkey is the fixed-size opaque identifier of a provider.
// It is a value type: comparable, hashable and usable as a map key.
// Equality is bytewise; no ordering semantics are attached to it.
type ProviderPubkey [PubkeySize]byte

// PubkeyFromBytes builds a ProviderPubkey from a byte slice.
// The slice must be exactly PubkeySize bytes.
func PubkeyFromBytes(b []byte) (ProviderPubkey, error) {
	var pk ProviderPubkey
	if len(b) != PubkeySize {
		return pk, fmt.Errorf("%w: pubkey must be %d bytes, got %d", ErrInvalidIdentity, PubkeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PubkeyFromHex parses a hex-encoded provider public key.
func PubkeyFromHex(s string) (ProviderPubkey, error) {
	var pk ProviderPubkey
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, fmt.Errorf("%w: pubkey is not valid hex: %v", ErrInvalidIdentity, err)
	}
	return PubkeyFromBytes(b)
}

// Bytes returns a copy of the raw key bytes.
func (pk ProviderPubkey) Bytes() []byte {
	b := make([]byte, PubkeySize)
	copy(b, pk[:])
	return b
}

// Hex returns the lowercase hex encoding of the key.
func (pk ProviderPubkey) Hex() string {
	return hex.EncodeToString(pk[:])
}

// Short returns an abbreviated hex form for log output.
func (pk ProviderPubkey) Short() string {
	return hex.EncodeToString(pk[:4])
}

// IsZero reports whether the key is all zero bytes.
func (pk ProviderPubkey) IsZero() bool {
	return pk == ProviderPubkey{}
}

func (pk ProviderPubkey) String() string {
	return pk.Hex()
}

// MarshalText implements encoding.TextMarshaler (hex form).
// This makes the key render as a hex string in JSON and URL values.
func (pk ProviderPubkey) MarshalText() ([]byte, error) {
	return []byte(pk.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *ProviderPubkey) UnmarshalText(text []byte) error {
	parsed, err := PubkeyFromHex(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// OfferingKey is the provider-assigned identifier of an offering.
// It is unique only within one provider's namespace and stays stable
// across updates to the same logical offering.
type OfferingKey = string

// OfferingID is the (provider, key) pair, the only globally unique
// identifier in the registry.
type OfferingID struct {
	Provider ProviderPubkey `json:"provider_pubkey"`
	Key      OfferingKey    `json:"offering_key"`
}

// NewOfferingID builds an OfferingID and validates its parts.
func NewOfferingID(provider ProviderPubkey, key OfferingKey) (OfferingID, error) {
	id := OfferingID{Provider: provider, Key: key}
	return id, id.Validate()
}

// Validate rejects zero pubkeys and empty keys.
func (id OfferingID) Validate() error {
	if id.Provider.IsZero() {
		return fmt.Errorf("%w: provider pubkey is zero", ErrInvalidIdentity)
	}
	if id.Key == "" {
		return fmt.Errorf("%w: offering key is empty", ErrInvalidIdentity)
	}
	return nil
}

func (id OfferingID) String() string {
	return id.Provider.Short() + "/" + id.Key
}

// Compare orders two IDs by (provider hex, key). The ordering carries no
// domain meaning; it exists so result pages and ranking ties resolve
// deterministically across repeated identical queries.
func (id OfferingID) Compare(other OfferingID) int {
	for i := 0; i < PubkeySize; i++ {
		if id.Provider[i] != other.Provider[i] {
			if id.Provider[i] < other.Provider[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case id.Key < other.Key:
		return -1
	case id.Key > other.Key:
		return 1
	default:
		return 0
	}
}
