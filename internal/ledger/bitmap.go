package ledger

import (
	"encoding/binary"
)

// ChunkBits is the width of one deposit-bitmap chunk.
const ChunkBits = 256

// Chunk is one 256-bit mask of the claimed-deposit bitmap. Bit id%256 of
// chunk id/256 is set once the deposit with that id has been claimed.
// Chunks are allocated lazily; an absent chunk reads as all zeros.
type Chunk [ChunkBits / 8]byte

// chunkKey builds a storage key for a bitmap chunk: "b/" + index(8, big-endian).
func chunkKey(index uint64) []byte {
	key := make([]byte, len(prefixChunk)+8)
	copy(key, prefixChunk)
	binary.BigEndian.PutUint64(key[len(prefixChunk):], index)
	return key
}

// chunkOf returns the chunk index holding the bit for a deposit id.
func chunkOf(id uint64) uint64 {
	return id / ChunkBits
}

// Bit reports whether the bit for deposit id (within this chunk) is set.
func (c *Chunk) Bit(id uint64) bool {
	bit := id % ChunkBits
	return c[bit/8]&(1<<(bit%8)) != 0
}

// SetBit sets the bit for deposit id within this chunk.
func (c *Chunk) SetBit(id uint64) {
	bit := id % ChunkBits
	c[bit/8] |= 1 << (bit % 8)
}
