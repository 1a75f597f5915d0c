// Package leveldb implements the ability to read and write blocks to a
// LevelDB database, keyed by big-endian block number so iteration order
// matches chain order.
package leveldb

import (
	"encoding/binary"
	"encoding/json"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/claimchain/claimchain/foundation/ledger/database"
)

// LevelDB represents the storage implementation for reading and storing
// blocks in a LevelDB database. This implements the database.Storage
// interface.
type LevelDB struct {
	db *leveldb.DB
}

// New constructs a LevelDB value for use, opening or creating the database
// at the specified path.
func New(dbPath string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, err
	}

	return &LevelDB{db: db}, nil
}

// Close releases the underlying database handle.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// Write takes the specified block and stores it under its block number.
func (l *LevelDB) Write(blockData database.BlockData) error {
	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	return l.db.Put(blockKey(blockData.Header.Number), data, nil)
}

// GetBlock locates and returns the contents of the specified block by number.
func (l *LevelDB) GetBlock(num uint64) (database.BlockData, error) {
	data, err := l.db.Get(blockKey(num), nil)
	if err != nil {
		return database.BlockData{}, err
	}

	var blockData database.BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (l *LevelDB) ForEach() database.Iterator {
	return &levelIterator{level: l}
}

// Truncate removes the blocks from the specified number through the tip of
// the chain.
func (l *LevelDB) Truncate(fromNum uint64) error {
	iter := l.db.NewIterator(&util.Range{Start: blockKey(fromNum)}, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}

	return l.db.Write(batch, nil)
}

// Reset will clear out the chain in the database.
func (l *LevelDB) Reset() error {
	return l.Truncate(1)
}

// blockKey forms the big-endian key for the specified block number.
func blockKey(num uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, num)
	return key
}

// =============================================================================

// levelIterator represents the iteration implementation for walking through
// and reading blocks in the database. This implements the database Iterator
// interface. Each step is a point read by block number, so an abandoned
// iterator holds no database resources.
type levelIterator struct {
	level   *LevelDB
	current uint64
	eoc     bool
}

// Next retrieves the next block from the database.
func (li *levelIterator) Next() (database.BlockData, error) {
	if li.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	li.current++
	blockData, err := li.level.GetBlock(li.current)
	if err != nil {
		li.eoc = true
	}

	return blockData, err
}

// Done returns the end of chain value.
func (li *levelIterator) Done() bool {
	return li.eoc
}
