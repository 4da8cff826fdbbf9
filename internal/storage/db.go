// Package storage provides database abstractions.
package storage

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch accumulates writes and deletes for a single atomic commit.
// Operations are not visible until Commit returns nil. Discard releases
// the batch's staged operations and any underlying resources; it is a
// no-op after a successful Commit, so callers can always defer it.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Discard()
}

// Batcher is implemented by DBs that support atomic write batches.
type Batcher interface {
	NewBatch() Batch
}

// BatchWrapper is implemented by DBs that remap logical keys, letting
// several keyspaces stage into one shared batch.
type BatchWrapper interface {
	WrapBatch(b Batch) Batch
}

// WrapBatch translates a shared batch into db's keyspace. DBs that do not
// remap keys use the batch as-is.
func WrapBatch(db DB, b Batch) Batch {
	if w, ok := db.(BatchWrapper); ok {
		return w.WrapBatch(b)
	}
	return b
}
