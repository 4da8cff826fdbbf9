package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// State is the durable ledger aggregate: the output set, the
// claimed-deposit bitmap and the fee base. All mutation goes through the
// batch processor; reads are served directly.
type State struct {
	db storage.DB

	mu sync.Mutex
	// owner holds the id of the goroutine currently executing a batch,
	// 0 when none. A settlement callback that calls back into the
	// processor runs on that same goroutine and would deadlock on mu,
	// so it is recognized by id and turned away before blocking.
	owner atomic.Uint64

	nextID  uint64
	feeBase uint64
}

// goroutineID parses the current goroutine's id from its stack header,
// "goroutine N [running]:". Goroutine ids start at 1, so 0 is free as
// the unowned sentinel.
func goroutineID() uint64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Open loads ledger state from db. A fresh database starts the id counter
// at 1 and seeds the fee base with initialFeeBase.
func Open(db storage.DB, initialFeeBase uint64) (*State, error) {
	s := &State{
		db:      db,
		nextID:  1,
		feeBase: initialFeeBase,
	}

	if v, err := loadMeta(db, keyNextID); err != nil {
		return nil, fmt.Errorf("load id counter: %w", err)
	} else if v != nil {
		s.nextID = binary.BigEndian.Uint64(v)
	}
	if v, err := loadMeta(db, keyFeeBase); err != nil {
		return nil, fmt.Errorf("load fee base: %w", err)
	} else if v != nil {
		s.feeBase = binary.BigEndian.Uint64(v)
	}
	return s, nil
}

// loadMeta reads a meta key, returning nil (no error) when absent.
func loadMeta(db storage.DB, key []byte) ([]byte, error) {
	has, err := db.Has(key)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	return db.Get(key)
}

// FeeBase returns the current smoothed reference unit price.
func (s *State) FeeBase() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeBase
}

// NextID returns the id the next created output will receive.
func (s *State) NextID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// GetOutput returns the output at id, or ErrUnknownOrSpent.
func (s *State) GetOutput(id uint64) (*Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOutput(id)
}

// OutputCount returns the number of unspent outputs.
func (s *State) OutputCount() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n uint64
	err := s.db.ForEach(prefixOutput, func(key, value []byte) error {
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count outputs: %w", err)
	}
	return n, nil
}

// BitmapChunk returns the claimed-deposit mask for a chunk index. Chunks
// never written read as all zeros.
func (s *State) BitmapChunk(index uint64) (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readChunk(index)
}

func (s *State) readOutput(id uint64) (*Output, error) {
	key := outputKey(id)
	has, err := s.db.Has(key)
	if err != nil {
		return nil, fmt.Errorf("read output %d: %w", id, err)
	}
	if !has {
		return nil, fmt.Errorf("output %d: %w", id, ErrUnknownOrSpent)
	}
	data, err := s.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read output %d: %w", id, err)
	}
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode output %d: %w", id, err)
	}
	return &out, nil
}

func (s *State) readChunk(index uint64) (Chunk, error) {
	var c Chunk
	key := chunkKey(index)
	has, err := s.db.Has(key)
	if err != nil {
		return c, fmt.Errorf("read bitmap chunk %d: %w", index, err)
	}
	if !has {
		return c, nil
	}
	data, err := s.db.Get(key)
	if err != nil {
		return c, fmt.Errorf("read bitmap chunk %d: %w", index, err)
	}
	if len(data) != len(c) {
		return c, fmt.Errorf("bitmap chunk %d: bad length %d", index, len(data))
	}
	copy(c[:], data)
	return c, nil
}

// stage is the in-memory overlay one batch mutates. Nothing touches the
// database until flush stages the delta into an atomic write batch; a
// failed batch simply drops its stage.
type stage struct {
	s        *State
	created  []*Output
	consumed map[uint64]*Output
	chunks   map[uint64]*Chunk
	nextID   uint64
	feeBase  uint64
}

func (s *State) newStage() *stage {
	return &stage{
		s:        s,
		consumed: make(map[uint64]*Output),
		chunks:   make(map[uint64]*Chunk),
		nextID:   s.nextID,
		feeBase:  s.feeBase,
	}
}

// create allocates the next id and stages a new output.
func (st *stage) create(owner types.Address, amount uint64) uint64 {
	id := st.nextID
	st.nextID++
	st.created = append(st.created, &Output{ID: id, Owner: owner, Amount: amount})
	return id
}

// consume removes the output at id and returns its amount. Id NoInput is a
// no-op yielding 0. Fails with ErrUnknownOrSpent if the output does not
// exist or was already consumed in this batch, and ErrUnauthorized if its
// owner is not signer.
func (st *stage) consume(id uint64, signer types.Address) (uint64, error) {
	if id == NoInput {
		return 0, nil
	}
	if _, gone := st.consumed[id]; gone {
		return 0, fmt.Errorf("output %d: %w", id, ErrUnknownOrSpent)
	}
	out, err := st.s.readOutput(id)
	if err != nil {
		return 0, err
	}
	if out.Owner != signer {
		return 0, fmt.Errorf("output %d: %w", id, ErrUnauthorized)
	}
	st.consumed[id] = out
	return out.Amount, nil
}

// checkUnclaimed fails with ErrAlreadyClaimed if the deposit's bit is set,
// including bits staged earlier in the same batch.
func (st *stage) checkUnclaimed(id uint64) error {
	c, err := st.loadChunk(chunkOf(id))
	if err != nil {
		return err
	}
	if c.Bit(id) {
		return fmt.Errorf("deposit %d: %w", id, ErrAlreadyClaimed)
	}
	return nil
}

// markClaimed stages the deposit's bit.
func (st *stage) markClaimed(id uint64) error {
	c, err := st.loadChunk(chunkOf(id))
	if err != nil {
		return err
	}
	c.SetBit(id)
	return nil
}

func (st *stage) loadChunk(index uint64) (*Chunk, error) {
	if c, ok := st.chunks[index]; ok {
		return c, nil
	}
	c, err := st.s.readChunk(index)
	if err != nil {
		return nil, err
	}
	st.chunks[index] = &c
	return &c, nil
}

// flush stages the overlay's delta into b, remapped onto the state's own
// keyspace. The caller commits b; commit must then call s.apply to publish
// the in-memory counters.
func (st *stage) flush(b storage.Batch) error {
	b = storage.WrapBatch(st.s.db, b)
	for _, out := range st.created {
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode output %d: %w", out.ID, err)
		}
		if err := b.Put(outputKey(out.ID), data); err != nil {
			return err
		}
	}
	for id := range st.consumed {
		if err := b.Delete(outputKey(id)); err != nil {
			return err
		}
	}
	for index, c := range st.chunks {
		if err := b.Put(chunkKey(index), c[:]); err != nil {
			return err
		}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], st.nextID)
	if err := b.Put(keyNextID, buf[:]); err != nil {
		return err
	}
	binary.BigEndian.PutUint64(buf[:], st.feeBase)
	return b.Put(keyFeeBase, buf[:])
}

// apply publishes the stage's counters after its batch committed.
func (s *State) apply(st *stage) {
	s.nextID = st.nextID
	s.feeBase = st.feeBase
}
