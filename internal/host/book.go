// Package host models the account-based host ledger the UTXO ledger
// settles against: per-identity balances, deposit debits, withdrawal
// payouts and the resource-cost commitment.
package host

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-ledger/internal/ledger"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// ErrInsufficientFunds means a host account cannot cover a debit.
var ErrInsufficientFunds = errors.New("insufficient host account balance")

var (
	prefixAccount = []byte("a/") // a/<addr:20> -> 8-byte balance
	keyAllocDone  = []byte("m/alloc_applied")
)

// Book is the host account store. Direct Debit/Credit apply immediately;
// batch-scoped effects go through a Session so they commit atomically with
// the ledger state.
type Book struct {
	db        storage.DB
	collector types.Address
	log       zerolog.Logger
	mu        sync.Mutex
}

// OpenBook opens the account store. Resource cost committed by batches is
// credited to the collector account.
func OpenBook(db storage.DB, collector types.Address, log zerolog.Logger) *Book {
	return &Book{db: db, collector: collector, log: log}
}

// ApplyAlloc seeds initial balances. It runs once per database; subsequent
// calls are no-ops.
func (bk *Book) ApplyAlloc(alloc map[string]uint64) error {
	bk.mu.Lock()
	defer bk.mu.Unlock()

	done, err := bk.db.Has(keyAllocDone)
	if err != nil {
		return fmt.Errorf("check alloc: %w", err)
	}
	if done {
		return nil
	}
	for addrStr, balance := range alloc {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("alloc address %q: %w", addrStr, err)
		}
		if err := bk.writeBalance(addr, balance); err != nil {
			return err
		}
		bk.log.Info().Str("address", addr.String()).Uint64("balance", balance).Msg("alloc applied")
	}
	return bk.db.Put(keyAllocDone, []byte{1})
}

// Balance returns an account's balance. Unknown accounts hold 0.
func (bk *Book) Balance(addr types.Address) (uint64, error) {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	return bk.readBalance(addr)
}

// Debit removes amount from an account, failing with ErrInsufficientFunds
// if the balance cannot cover it.
func (bk *Book) Debit(addr types.Address, amount uint64) error {
	bk.mu.Lock()
	defer bk.mu.Unlock()

	cur, err := bk.readBalance(addr)
	if err != nil {
		return err
	}
	if cur < amount {
		return fmt.Errorf("account %s holds %d, need %d: %w", addr, cur, amount, ErrInsufficientFunds)
	}
	return bk.writeBalance(addr, cur-amount)
}

// Credit adds amount to an account.
func (bk *Book) Credit(addr types.Address, amount uint64) error {
	bk.mu.Lock()
	defer bk.mu.Unlock()

	cur, err := bk.readBalance(addr)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(cur, amount, 0)
	if carry != 0 {
		return fmt.Errorf("account %s balance overflows", addr)
	}
	return bk.writeBalance(addr, sum)
}

// Session opens a batch-scoped effect surface. All writes stage into b,
// remapped onto the book's own keyspace.
func (bk *Book) Session(b storage.Batch) ledger.Environment {
	return &Session{book: bk, b: storage.WrapBatch(bk.db, b), staged: make(map[types.Address]uint64)}
}

func (bk *Book) readBalance(addr types.Address) (uint64, error) {
	key := accountKey(addr)
	has, err := bk.db.Has(key)
	if err != nil {
		return 0, fmt.Errorf("read account %s: %w", addr, err)
	}
	if !has {
		return 0, nil
	}
	data, err := bk.db.Get(key)
	if err != nil {
		return 0, fmt.Errorf("read account %s: %w", addr, err)
	}
	return binary.BigEndian.Uint64(data), nil
}

func (bk *Book) writeBalance(addr types.Address, balance uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], balance)
	if err := bk.db.Put(accountKey(addr), buf[:]); err != nil {
		return fmt.Errorf("write account %s: %w", addr, err)
	}
	return nil
}

// Session stages host-account effects for one batch. Reads go through a
// per-session cache so repeated credits to one account within a batch
// accumulate instead of clobbering each other.
type Session struct {
	book   *Book
	b      storage.Batch
	staged map[types.Address]uint64
}

// CommitGas charges the batch's resource cost at the given unit price.
// The cost corresponds to value retired from consumed outputs; it is
// credited to the collector account so total value is conserved across
// the two ledgers.
func (s *Session) CommitGas(units, unitPrice uint64) error {
	hi, cost := bits.Mul64(units, unitPrice)
	if hi != 0 {
		return fmt.Errorf("resource cost %d*%d overflows", units, unitPrice)
	}
	if cost == 0 {
		return nil
	}
	if err := s.credit(s.book.collector, cost); err != nil {
		return err
	}
	s.book.log.Debug().Uint64("units", units).Uint64("unit_price", unitPrice).Uint64("cost", cost).Msg("resource cost committed")
	return nil
}

// Pay credits an identity's host account.
func (s *Session) Pay(to types.Address, amount uint64) error {
	return s.credit(to, amount)
}

func (s *Session) credit(addr types.Address, amount uint64) error {
	cur, ok := s.staged[addr]
	if !ok {
		var err error
		cur, err = s.book.Balance(addr)
		if err != nil {
			return err
		}
	}
	sum, carry := bits.Add64(cur, amount, 0)
	if carry != 0 {
		return fmt.Errorf("account %s balance overflows", addr)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], sum)
	if err := s.b.Put(accountKey(addr), buf[:]); err != nil {
		return fmt.Errorf("stage account %s: %w", addr, err)
	}
	s.staged[addr] = sum
	return nil
}

func accountKey(addr types.Address) []byte {
	key := make([]byte, len(prefixAccount)+types.AddressSize)
	copy(key, prefixAccount)
	copy(key[len(prefixAccount):], addr[:])
	return key
}
