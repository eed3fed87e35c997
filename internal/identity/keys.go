// Package identity handles provider key material: parsing and
// formatting ed25519 public keys and the signature check every signed
// catalog record passes before it reaches the registry.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"offerdex/pkg/model"
)

const pemPublicKeyType = "PUBLIC KEY"

// ParsePublicKey accepts a provider public key as lowercase or
// uppercase hex (64 characters) or as a PEM SPKI block and returns the
// fixed-size key.
func ParsePublicKey(s string) (model.ProviderPubkey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-----BEGIN") {
		return parsePublicKeyPEM([]byte(s))
	}
	return model.PubkeyFromHex(s)
}

// ParsePublicKeyBytes builds a key from raw bytes, rejecting anything
// that is not exactly 32 bytes.
func ParsePublicKeyBytes(b []byte) (model.ProviderPubkey, error) {
	return model.PubkeyFromBytes(b)
}

func parsePublicKeyPEM(data []byte) (model.ProviderPubkey, error) {
	var zero model.ProviderPubkey

	block, _ := pem.Decode(data)
	if block == nil {
		return zero, fmt.Errorf("%w: no PEM block found", model.ErrInvalidIdentity)
	}
	if block.Type != pemPublicKeyType {
		return zero, fmt.Errorf("%w: unexpected PEM block %q", model.ErrInvalidIdentity, block.Type)
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", model.ErrInvalidIdentity, err)
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return zero, fmt.Errorf("%w: not an ed25519 key", model.ErrInvalidIdentity)
	}
	return model.PubkeyFromBytes(edKey)
}

// PublicKeyPEM renders the key as a PEM SPKI block, the interchange
// form providers publish alongside their catalogs.
func PublicKeyPEM(pk model.ProviderPubkey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(ed25519.PublicKey(pk.Bytes()))
	if err != nil {
		return "", fmt.Errorf("encoding public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemPublicKeyType, Bytes: der})), nil
}

// GenerateKeyPair creates a fresh provider identity.
func GenerateKeyPair() (model.ProviderPubkey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return model.ProviderPubkey{}, nil, err
	}
	pk, err := model.PubkeyFromBytes(pub)
	if err != nil {
		return model.ProviderPubkey{}, nil, err
	}
	return pk, priv, nil
}

// LoadPrivateKey reads a signing key from a file. The file holds either
// a hex-encoded 32-byte seed or a PEM PKCS#8 block.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return ParsePrivateKey(string(data))
}

// ParsePrivateKey parses a signing key from its hex seed or PEM PKCS#8
// form.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-----BEGIN") {
		block, _ := pem.Decode([]byte(s))
		if block == nil {
			return nil, fmt.Errorf("%w: no PEM block found", model.ErrInvalidIdentity)
		}
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidIdentity, err)
		}
		edKey, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an ed25519 key", model.ErrInvalidIdentity)
		}
		return edKey, nil
	}

	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not valid hex: %v", model.ErrInvalidIdentity, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", model.ErrInvalidIdentity, ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// PublicKeyOf extracts the provider pubkey from a signing key.
func PublicKeyOf(priv ed25519.PrivateKey) (model.ProviderPubkey, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return model.ProviderPubkey{}, fmt.Errorf("%w: not an ed25519 key", model.ErrInvalidIdentity)
	}
	return model.PubkeyFromBytes(pub)
}
