// Package escrow holds deposited funds until the ledger claims them.
// A deposit carries a bounty paid to whoever sponsors the claim; each
// record is released exactly once and only to the ledger.
package escrow

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

var (
	// ErrZeroValueDeposit means a deposit arrived with no payment.
	ErrZeroValueDeposit = errors.New("deposit payment must be positive")

	// ErrBountyNotLessThanAmount means the bounty is not strictly smaller
	// than the escrowed amount it would be deducted from.
	ErrBountyNotLessThanAmount = errors.New("bounty must be less than deposited amount")

	// ErrNotLedgerCaller means claim was invoked by anyone but the ledger.
	ErrNotLedgerCaller = errors.New("claim caller is not the ledger")

	// ErrUnknownDeposit means no record exists at the requested id.
	ErrUnknownDeposit = errors.New("unknown deposit")
)

var (
	prefixDeposit = []byte("d/") // d/<id:8> -> Record JSON
	keyNextID     = []byte("m/next_deposit_id")
)

// Record is one escrowed deposit awaiting claim. Ids are allocated from 0.
type Record struct {
	ID     uint64        `json:"id"`
	Amount uint64        `json:"amount"`
	Bounty uint64        `json:"bounty"`
	Owner  types.Address `json:"owner"`
}

// NotifyFunc receives a notification for every accepted deposit.
type NotifyFunc func(Record)

// Vault is the escrow store. Claims stage their removal into the caller's
// write batch so a release becomes durable together with the claiming
// batch's ledger delta.
type Vault struct {
	db     storage.DB
	ledger types.Address
	log    zerolog.Logger

	mu     sync.Mutex
	nextID uint64
	notify NotifyFunc
}

// OpenVault loads the vault from db. ledger is the only identity allowed
// to claim.
func OpenVault(db storage.DB, ledger types.Address, log zerolog.Logger) (*Vault, error) {
	v := &Vault{db: db, ledger: ledger, log: log}
	has, err := db.Has(keyNextID)
	if err != nil {
		return nil, fmt.Errorf("load deposit counter: %w", err)
	}
	if has {
		data, err := db.Get(keyNextID)
		if err != nil {
			return nil, fmt.Errorf("load deposit counter: %w", err)
		}
		v.nextID = binary.BigEndian.Uint64(data)
	}
	return v, nil
}

// SetNotify installs a deposit notification callback.
func (v *Vault) SetNotify(fn NotifyFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notify = fn
}

// Deposit escrows a payment from owner, reserving bounty for the eventual
// claimant. The payment must be positive and the bounty strictly less than
// the escrowed remainder.
func (v *Vault) Deposit(owner types.Address, payment, bounty uint64) (Record, error) {
	if payment == 0 {
		return Record{}, ErrZeroValueDeposit
	}
	if bounty >= payment || payment-bounty <= bounty {
		return Record{}, ErrBountyNotLessThanAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	rec := Record{
		ID:     v.nextID,
		Amount: payment - bounty,
		Bounty: bounty,
		Owner:  owner,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode deposit %d: %w", rec.ID, err)
	}
	if err := v.db.Put(depositKey(rec.ID), data); err != nil {
		return Record{}, fmt.Errorf("store deposit %d: %w", rec.ID, err)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v.nextID+1)
	if err := v.db.Put(keyNextID, buf[:]); err != nil {
		return Record{}, fmt.Errorf("store deposit counter: %w", err)
	}
	v.nextID++

	v.log.Info().
		Uint64("id", rec.ID).
		Uint64("amount", rec.Amount).
		Uint64("bounty", rec.Bounty).
		Str("owner", rec.Owner.String()).
		Msg("new deposit")
	if v.notify != nil {
		v.notify(rec)
	}
	return rec, nil
}

// Has reports whether a record exists at id.
func (v *Vault) Has(id uint64) (bool, error) {
	return v.db.Has(depositKey(id))
}

// Get returns the record at id, or ErrUnknownDeposit.
func (v *Vault) Get(id uint64) (Record, error) {
	key := depositKey(id)
	has, err := v.db.Has(key)
	if err != nil {
		return Record{}, fmt.Errorf("read deposit %d: %w", id, err)
	}
	if !has {
		return Record{}, fmt.Errorf("deposit %d: %w", id, ErrUnknownDeposit)
	}
	data, err := v.db.Get(key)
	if err != nil {
		return Record{}, fmt.Errorf("read deposit %d: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode deposit %d: %w", id, err)
	}
	return rec, nil
}

// Claim releases the record at id to the ledger, staging its removal into
// b. Only the ledger identity may claim.
func (v *Vault) Claim(id uint64, caller types.Address, b storage.Batch) (amount, bounty uint64, owner types.Address, err error) {
	if caller != v.ledger {
		return 0, 0, types.Address{}, ErrNotLedgerCaller
	}
	rec, err := v.Get(id)
	if err != nil {
		return 0, 0, types.Address{}, err
	}
	if err := storage.WrapBatch(v.db, b).Delete(depositKey(id)); err != nil {
		return 0, 0, types.Address{}, fmt.Errorf("release deposit %d: %w", id, err)
	}
	v.log.Debug().
		Uint64("id", id).
		Uint64("amount", rec.Amount).
		Uint64("bounty", rec.Bounty).
		Msg("deposit claimed")
	return rec.Amount, rec.Bounty, rec.Owner, nil
}

// Count returns the number of unclaimed records.
func (v *Vault) Count() (uint64, error) {
	var n uint64
	err := v.db.ForEach(prefixDeposit, func(key, value []byte) error {
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count deposits: %w", err)
	}
	return n, nil
}

// NextID returns the id the next deposit will receive.
func (v *Vault) NextID() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.nextID
}

func depositKey(id uint64) []byte {
	key := make([]byte, len(prefixDeposit)+8)
	copy(key, prefixDeposit)
	binary.BigEndian.PutUint64(key[len(prefixDeposit):], id)
	return key
}
