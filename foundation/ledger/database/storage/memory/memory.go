// Package memory implements the ability to read and write blocks to memory
// using a slice. Used by tests and ephemeral nodes.
package memory

import (
	"errors"
	"sync"

	"github.com/claimchain/claimchain/foundation/ledger/database"
)

// Memory represents the storage implementation for reading and storing
// blocks in memory using a slice. This implements the database.Storage
// interface.
type Memory struct {
	mu     sync.RWMutex
	blocks []database.BlockData
}

// New constructs a Memory value for use.
func New() (*Memory, error) {
	return &Memory{}, nil
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Write takes the specified block and stores it in memory. Rewriting an
// existing block number is allowed so integrity tampering can be exercised.
func (m *Memory) Write(blockData database.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	num := blockData.Header.Number
	l := uint64(len(m.blocks))

	switch {
	case num == l+1:
		m.blocks = append(m.blocks, blockData)
	case num >= 1 && num <= l:
		m.blocks[num-1] = blockData
	default:
		return errors.New("block is out of order")
	}

	return nil
}

// GetBlock searches the chain in memory to locate and return the contents
// of the specified block by number.
func (m *Memory) GetBlock(num uint64) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l := uint64(len(m.blocks))
	if num < 1 || num > l {
		return database.BlockData{}, errors.New("block does not exist")
	}

	return m.blocks[num-1], nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (m *Memory) ForEach() database.Iterator {
	return &memoryIterator{storage: m}
}

// Truncate removes the blocks from the specified number through the tip of
// the chain.
func (m *Memory) Truncate(fromNum uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fromNum < 1 {
		fromNum = 1
	}
	if fromNum <= uint64(len(m.blocks)) {
		m.blocks = m.blocks[:fromNum-1]
	}

	return nil
}

// Reset will clear out the chain in memory.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = nil
	return nil
}

// =============================================================================

// memoryIterator represents the iteration implementation for walking through
// and reading blocks in memory. This implements the database Iterator
// interface.
type memoryIterator struct {
	storage *Memory // Access to the storage API.
	current uint64  // Current block number being iterated over.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from memory.
func (mi *memoryIterator) Next() (database.BlockData, error) {
	if mi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	mi.current++
	blockData, err := mi.storage.GetBlock(mi.current)
	if err != nil {
		mi.eoc = true
	}

	return blockData, err
}

// Done returns the end of chain value.
func (mi *memoryIterator) Done() bool {
	return mi.eoc
}
