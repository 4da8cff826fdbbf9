package ledger

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// ErrUnknownDeposit means a claim referenced a deposit id with no escrow
// record. Kept separate from ErrAlreadyClaimed: the id may simply never
// have existed.
var ErrUnknownDeposit = errors.New("unknown deposit")

// Environment is the host-side effect surface for one batch. A session is
// opened against the batch's write batch, so every host effect commits
// atomically with the ledger's own state or not at all.
type Environment interface {
	// CommitGas charges the batch's resource cost at the given unit price.
	CommitGas(units, unitPrice uint64) error
	// Pay credits an identity's host account.
	Pay(to types.Address, amount uint64) error
}

// EnvironmentFactory opens one Environment session per batch.
type EnvironmentFactory interface {
	Session(b storage.Batch) Environment
}

// EscrowVault is the boundary to the deposit escrow. Claim stages the
// record's removal into b, so a release is durable only when the claiming
// batch commits.
type EscrowVault interface {
	Has(id uint64) (bool, error)
	Claim(id uint64, caller types.Address, b storage.Batch) (amount, bounty uint64, owner types.Address, err error)
}

// payment is a deferred withdrawal payout.
type payment struct {
	to     types.Address
	amount uint64
}

// Processor executes batches against the ledger state. All-or-nothing: any
// failure leaves the output set, bitmap and fee base untouched.
type Processor struct {
	state    *State
	fees     *FeeMarket
	verifier *Verifier
	escrow   EscrowVault
	env      EnvironmentFactory
	batcher  storage.Batcher
	self     types.Address
	log      zerolog.Logger
}

// NewProcessor wires a batch processor. batcher creates the shared write
// batch each component stages into; with prefixed keyspaces it must come
// from the underlying database. self is the ledger's own identity,
// presented to the escrow as the claim caller.
func NewProcessor(state *State, params *config.Params, escrow EscrowVault, env EnvironmentFactory,
	batcher storage.Batcher, self types.Address, log zerolog.Logger) *Processor {
	return &Processor{
		state:    state,
		fees:     NewFeeMarket(params),
		verifier: NewVerifier(params.DomainSeparator()),
		escrow:   escrow,
		env:      env,
		batcher:  batcher,
		self:     self,
		log:      log,
	}
}

// Verifier returns the processor's signing-digest builder, shared with
// clients that construct operations.
func (p *Processor) Verifier() *Verifier {
	return p.verifier
}

// Execute runs one batch to completion or rejects it with no state change.
//
// Independent submissions queue on the state lock and run in arrival
// order. A nested call from a callback during settlement fails with
// ErrReentrantCall instead of deadlocking.
func (p *Processor) Execute(batch *Batch) error {
	gid := goroutineID()
	if p.state.owner.Load() == gid {
		return ErrReentrantCall
	}
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	p.state.owner.Store(gid)
	defer p.state.owner.Store(0)

	// Price the batch before touching any state.
	slotCost, err := p.fees.SlotCost(batch.depositCount(), len(batch.Transfers), len(batch.Withdrawals))
	if err != nil {
		return err
	}
	price := p.fees.BatchPrice(p.state.feeBase, batch.minDeclaredPrice(), slotCost)
	if batch.Claim != nil && batch.Claim.Price < price {
		price = batch.Claim.Price
	}

	st := p.state.newStage()

	// Validate the claim and charge its fee. Deposits are only inspected
	// here; escrow settlement happens after the resource-cost commit.
	var (
		claimChange uint64
		claimSigner types.Address
	)
	if c := batch.Claim; c != nil {
		claimSigner, err = p.verifier.RecoverSigner(p.verifier.ClaimDigest(c), c.Signature)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		claimChange, err = st.consume(c.Input, claimSigner)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		seen := make(map[uint64]struct{}, len(c.Deposits))
		for _, id := range c.Deposits {
			if _, dup := seen[id]; dup {
				return fmt.Errorf("deposit %d listed twice: %w", id, ErrAlreadyClaimed)
			}
			seen[id] = struct{}{}
			if err := st.checkUnclaimed(id); err != nil {
				return err
			}
			has, err := p.escrow.Has(id)
			if err != nil {
				return fmt.Errorf("escrow lookup %d: %w", id, err)
			}
			if !has {
				return fmt.Errorf("deposit %d: %w", id, ErrUnknownDeposit)
			}
		}
		fee, ok := p.fees.ClaimFee(len(c.Deposits), price)
		if !ok || claimChange < fee {
			return fmt.Errorf("claim fee %d exceeds input %d: %w", fee, claimChange, ErrInsufficientClaimFunds)
		}
		claimChange -= fee
	}

	txnFee, ok := p.fees.TxnFee(price)
	if !ok {
		return fmt.Errorf("resource cost overflows: %w", ErrInsufficientInput)
	}

	// Transfers, in submission order. The amount drains input0 before
	// input1, then the fee drains what remains in the same order; only the
	// combined total decides success.
	for i := range batch.Transfers {
		t := &batch.Transfers[i]
		signer, err := p.verifier.RecoverSigner(p.verifier.TransferDigest(t), t.Signature)
		if err != nil {
			return fmt.Errorf("transfer %d: %w", i, err)
		}
		in0, err := st.consume(t.Input0, signer)
		if err != nil {
			return fmt.Errorf("transfer %d: %w", i, err)
		}
		in1, err := st.consume(t.Input1, signer)
		if err != nil {
			return fmt.Errorf("transfer %d: %w", i, err)
		}
		total, carry := bits.Add64(in0, in1, 0)
		if carry != 0 {
			return fmt.Errorf("transfer %d: input amounts overflow", i)
		}
		if total < t.Amount || total-t.Amount < txnFee {
			return fmt.Errorf("transfer %d: inputs %d, need %d+%d: %w", i, total, t.Amount, txnFee, ErrInsufficientInput)
		}
		st.create(t.Destination, t.Amount)
		if leftover := total - t.Amount - txnFee; leftover > 0 {
			st.create(t.Change, leftover)
		}
	}

	// Withdrawals, in submission order. Payouts are deferred until after
	// escrow settlement.
	payments := make([]payment, 0, len(batch.Withdrawals))
	for i := range batch.Withdrawals {
		w := &batch.Withdrawals[i]
		signer, err := p.verifier.RecoverSigner(p.verifier.WithdrawalDigest(w), w.Signature)
		if err != nil {
			return fmt.Errorf("withdrawal %d: %w", i, err)
		}
		amt, err := st.consume(w.Input, signer)
		if err != nil {
			return fmt.Errorf("withdrawal %d: %w", i, err)
		}
		if amt < txnFee {
			return fmt.Errorf("withdrawal %d: input %d, need %d: %w", i, amt, txnFee, ErrInsufficientInput)
		}
		if leftover := amt - txnFee; leftover > 0 {
			payments = append(payments, payment{to: signer, amount: leftover})
		}
	}

	st.feeBase = p.fees.NextFeeBase(price)

	// Everything below stages into one write batch: ledger delta, escrow
	// removals and host effects become durable together on commit.
	b := p.batcher.NewBatch()
	defer b.Discard()
	env := p.env.Session(b)

	if err := env.CommitGas(slotCost, price); err != nil {
		return fmt.Errorf("commit resource cost: %w", err)
	}

	// Escrow settlement. Every id was verified unclaimed and present
	// above, under the same lock, so claims cannot fail here.
	if c := batch.Claim; c != nil {
		for _, id := range c.Deposits {
			if err := st.markClaimed(id); err != nil {
				return err
			}
			amount, bounty, owner, err := p.escrow.Claim(id, p.self, b)
			if err != nil {
				return fmt.Errorf("escrow claim %d: %w", id, err)
			}
			claimChange, ok = addU64(claimChange, bounty)
			if !ok {
				return fmt.Errorf("escrow claim %d: bounty overflows claim change", id)
			}
			st.create(owner, amount)
		}
		if claimChange > 0 {
			st.create(claimSigner, claimChange)
		}
	}

	for _, pay := range payments {
		if err := env.Pay(pay.to, pay.amount); err != nil {
			return fmt.Errorf("pay %s: %w", pay.to, err)
		}
	}

	if err := st.flush(b); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	p.state.apply(st)

	p.log.Info().
		Uint64("price", price).
		Uint64("slots", slotCost).
		Int("transfers", len(batch.Transfers)).
		Int("withdrawals", len(batch.Withdrawals)).
		Int("deposits", batch.depositCount()).
		Int("outputs_created", len(st.created)).
		Uint64("fee_base", st.feeBase).
		Msg("batch committed")
	return nil
}

func addU64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}
