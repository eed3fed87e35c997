package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentity is returned when a provider pubkey has the wrong
	// length or encoding, or an offering key is empty
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrValidation is returned when an offering record violates a field
	// constraint (negative price, unknown enum value, missing key)
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when no offering is published under the
	// requested (provider, key) identity
	ErrNotFound = errors.New("offering not found")
	// ErrProviderNotFound is returned when a provider has no published offerings
	ErrProviderNotFound = errors.New("provider not found")
	// ErrInvalidQuery is returned when a search query is malformed
	// (negative pagination, unparseable filter operand)
	ErrInvalidQuery = errors.New("invalid query")
	// ErrSignature is returned when a signature does not verify against
	// the claimed provider pubkey
	ErrSignature = errors.New("signature verification failed")
)

// IsNotFound returns true if the error is a missing-offering or
// missing-provider condition, direct or wrapped.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrProviderNotFound)
}

// RowError ties an import failure to the CSV data row that caused it.
// Row numbering is 1-based and does not count the header.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
