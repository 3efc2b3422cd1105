// Package memory implements the ability to read and write blocks to memory
// using a slice.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
)

// Memory represents the storage implementation for reading and storing
// blocks in memory using a slice. This implements the chain.Storage
// interface.
type Memory struct {
	mu     sync.RWMutex
	blocks []chain.BlockData
}

// New constructs a Memory value for use, optionally seeded with blocks.
func New(blocks ...chain.BlockData) *Memory {
	return &Memory{
		blocks: append([]chain.BlockData(nil), blocks...),
	}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Save appends the block. Blocks must arrive in index order.
func (m *Memory) Save(ctx context.Context, blockData chain.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := uint64(len(m.blocks))
	if blockData.Index != l {
		return fmt.Errorf("block is out of order, got %d, exp %d", blockData.Index, l)
	}

	m.blocks = append(m.blocks, blockData)

	return nil
}

// Load returns a copy of every stored block in order.
func (m *Memory) Load(ctx context.Context) ([]chain.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]chain.BlockData(nil), m.blocks...), nil
}

// Len returns the number of stored blocks.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.blocks)
}
