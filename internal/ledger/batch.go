package ledger

import (
	"math"

	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Transfer moves value from up to two input outputs to a destination,
// returning any remainder to a change identity. Inputs set to NoInput are
// absent and contribute nothing.
type Transfer struct {
	Input0      uint64
	Input1      uint64
	Destination types.Address
	Change      types.Address
	Amount      uint64
	Price       uint64 // declared willingness to pay per slot unit
	Signature   []byte
}

// Withdrawal consumes one output and pays its remainder, after resource
// cost, back to the signer on the host ledger.
type Withdrawal struct {
	Input     uint64
	Price     uint64
	Signature []byte
}

// Claim settles escrowed deposits into the ledger. Its input output sponsors
// the claim fee; each listed deposit id is released from escrow exactly once.
type Claim struct {
	Input     uint64
	Price     uint64
	Deposits  []uint64
	Signature []byte
}

// Batch is one atomically-committed group of operations. A nil Claim means
// the batch claims nothing.
type Batch struct {
	Claim       *Claim
	Transfers   []Transfer
	Withdrawals []Withdrawal
}

// depositCount returns the number of deposits the batch claims.
func (b *Batch) depositCount() int {
	if b.Claim == nil {
		return 0
	}
	return len(b.Claim.Deposits)
}

// minDeclaredPrice returns the minimum declared price over transfers and
// withdrawals. The claim's price does not participate; it caps the batch
// price separately. With no transfers or withdrawals the minimum is
// unconstrained (MaxUint64).
func (b *Batch) minDeclaredPrice() uint64 {
	min := uint64(math.MaxUint64)
	for i := range b.Transfers {
		if b.Transfers[i].Price < min {
			min = b.Transfers[i].Price
		}
	}
	for i := range b.Withdrawals {
		if b.Withdrawals[i].Price < min {
			min = b.Withdrawals[i].Price
		}
	}
	return min
}
