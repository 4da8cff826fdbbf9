package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Operation type tags. Each digest starts with the domain separator and one
// of these, so a signature over one operation type can never authorize
// another.
const (
	tagTransfer   = 0x01
	tagWithdrawal = 0x02
	tagClaim      = 0x03
)

// Verifier builds domain-separated signing digests per operation type and
// recovers signer identities from compact signatures. The domain separator
// binds the host chain and ledger instance, so signatures cannot replay
// across instances.
type Verifier struct {
	domain types.Hash
}

// NewVerifier creates a verifier for the given signing domain.
func NewVerifier(domain types.Hash) *Verifier {
	return &Verifier{domain: domain}
}

// TransferDigest returns the signing digest over all of a transfer's
// semantic fields. Integers are little-endian.
func (v *Verifier) TransferDigest(t *Transfer) types.Hash {
	buf := make([]byte, 0, types.HashSize+1+8+8+types.AddressSize*2+8+8)
	buf = append(buf, v.domain[:]...)
	buf = append(buf, tagTransfer)
	buf = binary.LittleEndian.AppendUint64(buf, t.Input0)
	buf = binary.LittleEndian.AppendUint64(buf, t.Input1)
	buf = append(buf, t.Destination[:]...)
	buf = append(buf, t.Change[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, t.Amount)
	buf = binary.LittleEndian.AppendUint64(buf, t.Price)
	return crypto.Hash(buf)
}

// WithdrawalDigest returns the signing digest for a withdrawal.
func (v *Verifier) WithdrawalDigest(w *Withdrawal) types.Hash {
	buf := make([]byte, 0, types.HashSize+1+8+8)
	buf = append(buf, v.domain[:]...)
	buf = append(buf, tagWithdrawal)
	buf = binary.LittleEndian.AppendUint64(buf, w.Input)
	buf = binary.LittleEndian.AppendUint64(buf, w.Price)
	return crypto.Hash(buf)
}

// ClaimDigest returns the signing digest for a claim, covering the full
// deposit id list (length-prefixed) so ids can be neither added nor dropped
// under an existing signature.
func (v *Verifier) ClaimDigest(c *Claim) types.Hash {
	buf := make([]byte, 0, types.HashSize+1+8+8+8+8*len(c.Deposits))
	buf = append(buf, v.domain[:]...)
	buf = append(buf, tagClaim)
	buf = binary.LittleEndian.AppendUint64(buf, c.Input)
	buf = binary.LittleEndian.AppendUint64(buf, c.Price)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(c.Deposits)))
	for _, id := range c.Deposits {
		buf = binary.LittleEndian.AppendUint64(buf, id)
	}
	return crypto.Hash(buf)
}

// RecoverSigner recovers the signer identity from a compact signature over
// the given digest. A malformed or unrecoverable signature fails with
// ErrUnauthorized.
func (v *Verifier) RecoverSigner(digest types.Hash, signature []byte) (types.Address, error) {
	addr, err := crypto.RecoverAddress(digest[:], signature)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return addr, nil
}

// SignTransfer signs a transfer in place.
func (v *Verifier) SignTransfer(s crypto.Signer, t *Transfer) error {
	digest := v.TransferDigest(t)
	sig, err := s.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("sign transfer: %w", err)
	}
	t.Signature = sig
	return nil
}

// SignWithdrawal signs a withdrawal in place.
func (v *Verifier) SignWithdrawal(s crypto.Signer, w *Withdrawal) error {
	digest := v.WithdrawalDigest(w)
	sig, err := s.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("sign withdrawal: %w", err)
	}
	w.Signature = sig
	return nil
}

// SignClaim signs a claim in place.
func (v *Verifier) SignClaim(s crypto.Signer, c *Claim) error {
	digest := v.ClaimDigest(c)
	sig, err := s.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("sign claim: %w", err)
	}
	c.Signature = sig
	return nil
}
