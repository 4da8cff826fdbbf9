package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// SignatureSize is the length of a compact recoverable signature:
// 1 recovery byte followed by the 32-byte R and S scalars.
const SignatureSize = 65

// Signer signs 32-byte digests with recoverable ECDSA/secp256k1 signatures.
type Signer interface {
	// Sign produces a 65-byte compact signature over a 32-byte digest.
	Sign(digest []byte) ([]byte, error)
	// Address returns the identity derived from the public key.
	Address() types.Address
}

// PrivateKey wraps a secp256k1 private key for compact ECDSA signing.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// Sign produces a 65-byte compact recoverable signature over a 32-byte digest.
func (pk *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	return ecdsa.SignCompact(pk.key, digest, true), nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Address returns the identity derived from this key's public key.
func (pk *PrivateKey) Address() types.Address {
	return AddressFromPubKey(pk.PublicKey())
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// RecoverAddress recovers the signer's identity from a compact signature
// over a 32-byte digest. The recovery byte selects which candidate public
// key is returned, so a valid signature yields exactly one identity.
func RecoverAddress(digest, signature []byte) (types.Address, error) {
	if len(digest) != 32 {
		return types.Address{}, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	if len(signature) != SignatureSize {
		return types.Address{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(signature))
	}
	pubKey, _, err := ecdsa.RecoverCompact(signature, digest)
	if err != nil {
		return types.Address{}, fmt.Errorf("recover pubkey: %w", err)
	}
	return AddressFromPubKey(pubKey.SerializeCompressed()), nil
}
