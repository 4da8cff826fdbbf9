// Package ledger implements the batched UTXO ledger: the output set, the
// claimed-deposit bitmap, the fee market, signature authorization, and the
// atomic batch processor.
package ledger

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Key prefixes for the ledger database.
var (
	prefixOutput = []byte("o/") // o/<id:8> -> Output JSON
	prefixChunk  = []byte("b/") // b/<chunk:8> -> 32-byte claimed mask
	keyNextID    = []byte("m/next_id")
	keyFeeBase   = []byte("m/fee_base")
)

// NoInput is the reserved output id meaning "no input". Consuming it is a
// no-op yielding zero value. Real ids start at 1.
const NoInput uint64 = 0

// Output is an unspent record of value owned by a single identity.
// It is consumed entirely on use; any remainder becomes a new Output.
type Output struct {
	ID     uint64        `json:"id"`
	Owner  types.Address `json:"owner"`
	Amount uint64        `json:"amount"`
}

// outputKey builds a storage key for an output id: "o/" + id(8, big-endian).
// Big-endian keeps prefix iteration in id order.
func outputKey(id uint64) []byte {
	key := make([]byte, len(prefixOutput)+8)
	copy(key, prefixOutput)
	binary.BigEndian.PutUint64(key[len(prefixOutput):], id)
	return key
}
