package config

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// =============================================================================
// Protocol Parameters (immutable per ledger instance)
// These MUST match across all operators or batches signed against one
// instance would price and verify differently on another.
// =============================================================================

// Denomination constants.
// 1 coin = 10^12 base units. All ledger and host values are in base units.
const (
	Decimals  = 12
	Coin      = 1_000_000_000_000 // 10^12 base units per coin
	MilliCoin = 1_000_000_000     // 10^9
	MicroCoin = 1_000_000         // 10^6
)

// domainPrefix versions the signing domain. Bump on any digest layout change.
const domainPrefix = "klingnet-ledger/v1"

// Params holds the protocol parameters of one ledger instance.
//
// The slot weights and claim fee constants were provisional in the reference
// system, so they are configuration here rather than hardcoded — but every
// operator of an instance must run the same values.
type Params struct {
	// Instance identity
	ChainID    types.ChainID `json:"chain_id"`    // Host chain the ledger settles on.
	LedgerName string        `json:"ledger_name"` // Instance label, bound into signing digests.

	// Slot pricing: each operation type consumes a fixed number of
	// abstract capacity slots; a batch may not exceed SlotCap.
	SlotsPerClaimDeposit uint64 `json:"slots_per_claim_deposit"`
	SlotsPerTransfer     uint64 `json:"slots_per_transfer"`
	SlotsPerWithdrawal   uint64 `json:"slots_per_withdrawal"`
	SlotCap              uint64 `json:"slot_cap"`

	// Claim fee: ClaimBaseFee + ClaimDepositFee*len(deposits) + batch price.
	ClaimBaseFee    uint64 `json:"claim_base_fee"`
	ClaimDepositFee uint64 `json:"claim_deposit_fee"`

	// Per-transfer/withdrawal resource cost is TxnGasUnits * batch price.
	TxnGasUnits uint64 `json:"txn_gas_units"`

	// Fee base smoothing: feeBase = price - price/FeeSmoothingDivisor
	// after each committed batch.
	FeeSmoothingDivisor uint64 `json:"fee_smoothing_divisor"`

	// InitialFeeBase seeds the fee market at instance creation.
	InitialFeeBase uint64 `json:"initial_fee_base"`

	// Initial host account allocations (address -> balance in base units).
	Alloc map[string]uint64 `json:"alloc,omitempty"`
}

// DefaultParams returns the protocol parameters for the given network.
func DefaultParams(network NetworkType) *Params {
	chainID := types.ChainID(crypto.Hash([]byte("klingnet-host/" + string(network))))
	return &Params{
		ChainID:              chainID,
		LedgerName:           "klingnet-ledger-" + string(network),
		SlotsPerClaimDeposit: 3,
		SlotsPerTransfer:     2,
		SlotsPerWithdrawal:   1,
		SlotCap:              10,
		ClaimBaseFee:         5,
		ClaimDepositFee:      7,
		TxnGasUnits:          2,
		FeeSmoothingDivisor:  5,
		InitialFeeBase:       1,
	}
}

// LoadParams reads protocol parameters from a JSON file.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params file: %w", err)
	}
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse params file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return &p, nil
}

// Validate checks the parameters for internally inconsistent values.
func (p *Params) Validate() error {
	if p.ChainID.IsZero() {
		return fmt.Errorf("chain_id must not be zero")
	}
	if p.LedgerName == "" {
		return fmt.Errorf("ledger_name must not be empty")
	}
	if p.SlotCap == 0 {
		return fmt.Errorf("slot_cap must be positive")
	}
	if p.SlotsPerClaimDeposit == 0 || p.SlotsPerTransfer == 0 || p.SlotsPerWithdrawal == 0 {
		return fmt.Errorf("slot weights must be positive")
	}
	if p.SlotsPerClaimDeposit > p.SlotCap || p.SlotsPerTransfer > p.SlotCap || p.SlotsPerWithdrawal > p.SlotCap {
		return fmt.Errorf("slot weights must not exceed slot_cap %d", p.SlotCap)
	}
	if p.FeeSmoothingDivisor < 2 {
		return fmt.Errorf("fee_smoothing_divisor must be at least 2")
	}
	for addr := range p.Alloc {
		if _, err := types.ParseAddress(addr); err != nil {
			return fmt.Errorf("alloc address %q: %w", addr, err)
		}
	}
	return nil
}

// LedgerAddress returns the ledger component's own identity, derived from
// the signing domain. It is the only caller the escrow accepts claims from,
// and the account that accrues committed resource cost.
func (p *Params) LedgerAddress() types.Address {
	domain := p.DomainSeparator()
	var addr types.Address
	copy(addr[:], domain[:types.AddressSize])
	return addr
}

// DomainSeparator returns the 32-byte signing domain for this instance.
// It binds the host chain identity and the ledger instance identity so a
// signature can never replay on another chain or instance.
func (p *Params) DomainSeparator() types.Hash {
	buf := make([]byte, 0, len(domainPrefix)+types.HashSize+8+len(p.LedgerName))
	buf = append(buf, domainPrefix...)
	buf = append(buf, p.ChainID[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(p.LedgerName)))
	buf = append(buf, p.LedgerName...)
	return crypto.Hash(buf)
}
