// Package mempool maintains the pool of transactions admitted but not yet
// included in a block. The pool is bounded and hands transactions to the
// miner in admission order.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/claimchain/claimchain/foundation/ledger/database"
)

// DefaultMaxSize is the pool capacity used when none is configured.
const DefaultMaxSize = 128

// Set of errors returned on admission.
var (
	ErrFull      = errors.New("mempool is full")
	ErrDuplicate = errors.New("transaction already in mempool")
)

// poolTx pairs a transaction with its admission sequence so picking can
// honor arrival order.
type poolTx struct {
	tx  database.BlockTx
	seq uint64
}

// Mempool represents a cache of transactions organized by account:nonce.
type Mempool struct {
	mu      sync.RWMutex
	pool    map[string]poolTx
	maxSize int
	seq     uint64
}

// New constructs a new mempool with the specified capacity. A capacity of
// zero or less selects the default.
func New(maxSize int) *Mempool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &Mempool{
		pool:    make(map[string]poolTx),
		maxSize: maxSize,
	}
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Add accepts a transaction into the pool. Duplicates are rejected and a
// full pool rejects new entries rather than evicting old ones.
func (mp *Mempool) Add(tx database.BlockTx) (int, error) {
	key, err := mapKey(tx)
	if err != nil {
		return 0, err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[key]; exists {
		return len(mp.pool), ErrDuplicate
	}

	if len(mp.pool) >= mp.maxSize {
		return len(mp.pool), ErrFull
	}

	mp.seq++
	mp.pool[key] = poolTx{tx: tx, seq: mp.seq}

	return len(mp.pool), nil
}

// Delete removes the specified transaction from the pool.
func (mp *Mempool) Delete(tx database.BlockTx) error {
	key, err := mapKey(tx)
	if err != nil {
		return err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, key)

	return nil
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]poolTx)
}

// PickOldest returns up to howMany transactions in admission order. Pass a
// negative value for all of them. The transactions stay in the pool until a
// block containing them is committed, so a discarded mining candidate gives
// them back for free.
func (mp *Mempool) PickOldest(howMany int) []database.BlockTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entries := make([]poolTx, 0, len(mp.pool))
	for _, entry := range mp.pool {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	if howMany < 0 || howMany > len(entries) {
		howMany = len(entries)
	}

	txs := make([]database.BlockTx, 0, howMany)
	for _, entry := range entries[:howMany] {
		txs = append(txs, entry.tx)
	}

	return txs
}

// Copy returns every transaction in the pool in admission order.
func (mp *Mempool) Copy() []database.BlockTx {
	return mp.PickOldest(-1)
}

// =============================================================================

// mapKey is used to identify a transaction in the pool: the signing account
// and the account's nonce together are unique.
func mapKey(tx database.BlockTx) (string, error) {
	account, err := tx.FromAccount()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s:%d", account, tx.Nonce), nil
}
