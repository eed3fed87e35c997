package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"offerdex/pkg/model"
)

// Sign produces a signature over data: the SHA-256 digest is signed, so
// signers and verifiers never feed large payloads to ed25519 directly.
func Sign(priv ed25519.PrivateKey, data []byte) []byte {
	digest := sha256.Sum256(data)
	return ed25519.Sign(priv, digest[:])
}

// Verify checks a signature produced by Sign against the provider's
// public key.
func Verify(pk model.ProviderPubkey, data []byte, sig []byte) error {
	if pk.IsZero() {
		return fmt.Errorf("%w: provider pubkey is zero", model.ErrInvalidIdentity)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature must be %d bytes, got %d", model.ErrSignature, ed25519.SignatureSize, len(sig))
	}
	digest := sha256.Sum256(data)
	if !ed25519.Verify(ed25519.PublicKey(pk.Bytes()), digest[:], sig) {
		return fmt.Errorf("%w: provider %s", model.ErrSignature, pk.Short())
	}
	return nil
}
