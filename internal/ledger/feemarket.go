package ledger

import (
	"math/bits"

	"github.com/Klingon-tech/klingnet-ledger/config"
)

// FeeMarket prices batches by their declared slot cost against a smoothed
// reference unit price (the fee base). It is pure computation; the fee base
// itself lives in State and is passed in explicitly.
type FeeMarket struct {
	params *config.Params
}

// NewFeeMarket creates a fee market over the instance parameters.
func NewFeeMarket(params *config.Params) *FeeMarket {
	return &FeeMarket{params: params}
}

// SlotCost returns the total capacity slots a batch consumes, or
// ErrSlotCapacity if it exceeds the slot cap.
func (m *FeeMarket) SlotCost(nDeposits, nTransfers, nWithdrawals int) (uint64, error) {
	cost := uint64(nDeposits)*m.params.SlotsPerClaimDeposit +
		uint64(nTransfers)*m.params.SlotsPerTransfer +
		uint64(nWithdrawals)*m.params.SlotsPerWithdrawal
	if cost > m.params.SlotCap {
		return 0, ErrSlotCapacity
	}
	return cost, nil
}

// BatchPrice computes the unit price a batch pays. Below the fee base the
// declared minimum is taken as-is. Above it, the price interpolates linearly
// with slot cost: a single-slot batch pays close to the fee base, a
// max-capacity batch close to the declared minimum.
func (m *FeeMarket) BatchPrice(feeBase, minDeclared, slotCost uint64) uint64 {
	if minDeclared <= feeBase {
		return minDeclared
	}
	diff := minDeclared - feeBase
	cap := m.params.SlotCap
	// Split the division so diff*slotCost cannot overflow: slotCost <= cap,
	// so diff/cap*slotCost <= diff, and the remainder term is at most cap*cap.
	interp := diff/cap*slotCost + diff%cap*slotCost/cap
	return feeBase + interp
}

// NextFeeBase returns the smoothed fee base after a batch committed at the
// given realized price.
func (m *FeeMarket) NextFeeBase(price uint64) uint64 {
	return price - price/m.params.FeeSmoothingDivisor
}

// TxnFee returns the resource cost of one transfer or withdrawal at the
// given unit price. The second return is false on overflow.
func (m *FeeMarket) TxnFee(price uint64) (uint64, bool) {
	hi, lo := bits.Mul64(price, m.params.TxnGasUnits)
	return lo, hi == 0
}

// ClaimFee returns the fee a claim pays for the given deposit count at the
// given unit price. The second return is false on overflow.
func (m *FeeMarket) ClaimFee(nDeposits int, price uint64) (uint64, bool) {
	hi, perDeposit := bits.Mul64(m.params.ClaimDepositFee, uint64(nDeposits))
	if hi != 0 {
		return 0, false
	}
	fee, carry := bits.Add64(m.params.ClaimBaseFee, perDeposit, 0)
	if carry != 0 {
		return 0, false
	}
	fee, carry = bits.Add64(fee, price, 0)
	return fee, carry == 0
}
