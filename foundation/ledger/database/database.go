// Package database handles all the lower level support for maintaining the
// chain in storage and maintaining an in-memory ledger of accounts and items.
package database

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/claimchain/claimchain/foundation/ledger/genesis"
)

// amountTolerance bounds float comparisons on credit amounts. Every node
// applies the same operations in the same order, so replayed values differ
// from computed ones only by accumulated rounding.
const amountTolerance = 1e-9

// amountsEqual reports whether two credit amounts are the same within the
// comparison tolerance.
func amountsEqual(a, b float64) bool {
	return math.Abs(a-b) < amountTolerance
}

// =============================================================================

// ledger is the state derived from folding the chain: account balances and
// item reservation records. It is never patched across a replacement, only
// rebuilt.
type ledger struct {
	accounts map[AccountID]Account
	items    map[string]Item
}

// newLedger constructs the genesis ledger from the opening balances.
func newLedger(gen genesis.Genesis) (*ledger, error) {
	led := ledger{
		accounts: make(map[AccountID]Account),
		items:    make(map[string]Item),
	}

	for accountStr, balance := range gen.Balances {
		accountID, err := ToAccountID(accountStr)
		if err != nil {
			return nil, err
		}
		led.accounts[accountID] = newAccount(accountID, balance)
	}

	return &led, nil
}

// clone makes an independent copy of the ledger for draft folding.
func (l *ledger) clone() *ledger {
	accounts := make(map[AccountID]Account, len(l.accounts))
	for accountID, account := range l.accounts {
		accounts[accountID] = account
	}

	items := make(map[string]Item, len(l.items))
	for itemID, item := range l.items {
		items[itemID] = item
	}

	return &ledger{accounts: accounts, items: items}
}

// =============================================================================

// Database manages data related to accounts and items that have transacted
// on the chain, along with the chain itself in storage.
type Database struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	latestBlock Block
	ledger      *ledger

	storage   Storage
	evHandler func(v string, args ...any)
}

// New constructs a new database, seeds it from the genesis information and
// replays the chain found in storage. A stored chain that fails validation
// at any block is never trusted: the database falls back to a genesis-only
// chain and reports a loud warning instead of failing.
func New(gen genesis.Genesis, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	led, err := newLedger(gen)
	if err != nil {
		return nil, err
	}

	db := Database{
		genesis:   gen,
		ledger:    led,
		storage:   storage,
		evHandler: evHandler,
	}

	iter := storage.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err == nil {
			var block Block
			if block, err = ToBlock(blockData); err == nil {
				if err = block.ValidateBlock(db.latestBlock, evHandler); err == nil {
					err = db.applyBlock(block)
				}
			}
		}

		if err != nil {
			evHandler("database: New: WARNING: stored chain is invalid: %s: starting from genesis", err)

			led, resetErr := newLedger(gen)
			if resetErr != nil {
				return nil, resetErr
			}
			db.ledger = led
			db.latestBlock = Block{}

			if resetErr := storage.Reset(); resetErr != nil {
				return nil, resetErr
			}
			break
		}
	}

	return &db, nil
}

// NewFromBlocks constructs a database by validating and folding the
// specified candidate chain from genesis. It owns no storage and exists to
// vet chains received from peers before they are adopted.
func NewFromBlocks(gen genesis.Genesis, blocks []Block, evHandler func(v string, args ...any)) (*Database, error) {
	led, err := newLedger(gen)
	if err != nil {
		return nil, err
	}

	db := Database{
		genesis:   gen,
		ledger:    led,
		evHandler: evHandler,
	}

	for _, block := range blocks {
		if err := block.ValidateBlock(db.latestBlock, evHandler); err != nil {
			return nil, fmt.Errorf("block %d: %w", block.Header.Number, err)
		}
		if err := db.applyBlock(block); err != nil {
			return nil, fmt.Errorf("block %d: %w", block.Header.Number, err)
		}
	}

	return &db, nil
}

// Close closes the underlying storage.
func (db *Database) Close() {
	if db.storage != nil {
		db.storage.Close()
	}
}

// =============================================================================

// ApplyBlock folds the block's transactions into the ledger and makes it the
// latest block. The fold happens against a draft copy, so a block that fails
// any transaction precondition leaves the ledger untouched.
func (db *Database) ApplyBlock(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.applyBlock(block)
}

// applyBlock is the lock-free implementation of ApplyBlock shared with the
// replay paths.
func (db *Database) applyBlock(block Block) error {
	txs := block.Trans.Values()
	if len(txs) == 0 || txs[0].Kind != TxKindCoinbase {
		return errors.New("block is missing its leading coinbase transaction")
	}

	draft := db.ledger.clone()

	var feeShare float64
	for _, tx := range txs[1:] {
		fee, err := db.applyTransaction(draft, tx)
		if err != nil {
			return err
		}
		feeShare += fee
	}

	// The coinbase must pay out exactly the mining reward plus the escrow
	// fee share earned by the releases in this block. Anything else makes
	// the whole block invalid.
	coinbase := txs[0]
	if coinbase.ChainID != db.genesis.ChainID {
		return fmt.Errorf("coinbase has wrong chain id, got %d, exp %d", coinbase.ChainID, db.genesis.ChainID)
	}
	if coinbase.ToID != block.Header.BeneficiaryID {
		return fmt.Errorf("coinbase beneficiary %s doesn't match block beneficiary %s", coinbase.ToID, block.Header.BeneficiaryID)
	}
	expected := db.genesis.MiningReward + feeShare
	if !amountsEqual(coinbase.Value, expected) {
		return fmt.Errorf("coinbase value wrong, got %v, exp %v", coinbase.Value, expected)
	}

	account := draft.accounts[coinbase.ToID]
	account.AccountID = coinbase.ToID
	account.Balance += coinbase.Value
	draft.accounts[coinbase.ToID] = account

	db.ledger = draft
	db.latestBlock = block

	return nil
}

// applyTransaction performs the economic rules for a single non-coinbase
// transaction against the draft ledger. It returns the escrow fee share the
// transaction earns for the block's miner.
func (db *Database) applyTransaction(draft *ledger, tx BlockTx) (feeShare float64, err error) {
	fromID, err := tx.FromAccount()
	if err != nil {
		return 0, fmt.Errorf("invalid signature: %w", err)
	}

	if tx.ChainID != db.genesis.ChainID {
		return 0, fmt.Errorf("transaction has wrong chain id, got %d, exp %d", tx.ChainID, db.genesis.ChainID)
	}

	from := draft.accounts[fromID]
	from.AccountID = fromID

	if tx.Nonce <= from.Nonce {
		return 0, fmt.Errorf("transaction nonce too small, current %d, provided %d", from.Nonce, tx.Nonce)
	}

	switch tx.Kind {
	case TxKindRequest:
		item, exists := draft.items[tx.ItemID]
		if !exists {
			item = Item{ItemID: tx.ItemID, Value: db.genesis.BaseValue}
		}

		switch {
		case !item.Reserved():

			// Reserving a free item costs the flat base value.
			if from.Balance < db.genesis.BaseValue-amountTolerance {
				return 0, fmt.Errorf("insufficient funds to reserve item %s, bal %v, needed %v", tx.ItemID, from.Balance, db.genesis.BaseValue)
			}
			from.Balance -= db.genesis.BaseValue
			item.HolderID = fromID
			item.Value = db.genesis.BaseValue
			item.Demand = 0
			item.Escrow = 0

		case item.HolderID == fromID:
			return 0, fmt.Errorf("account %s already holds item %s", fromID, tx.ItemID)

		case from.Balance >= item.Value-amountTolerance:

			// Fully funded request on a held item: a buyout. The item's
			// going value is paid to the current holder and the
			// reservation changes hands. Value and demand persist.
			holder := draft.accounts[item.HolderID]
			holder.AccountID = item.HolderID
			holder.Balance += item.Value
			draft.accounts[item.HolderID] = holder

			from.Balance -= item.Value
			item.HolderID = fromID
			item.Demand++

		default:

			// Underfunded request on a held item: a penalty payment into
			// escrow. Demand raises the penalty rate for the next one and
			// the item's value grows by a fixed step.
			penalty := db.genesis.PenaltyAmount(item.Demand)
			if from.Balance < penalty-amountTolerance {
				return 0, fmt.Errorf("insufficient funds for penalty on item %s, bal %v, needed %v", tx.ItemID, from.Balance, penalty)
			}
			from.Balance -= penalty
			item.Escrow += penalty
			item.Value += db.genesis.ValueIncrement
			item.Demand++
		}

		draft.items[tx.ItemID] = item

	case TxKindRelease:
		item, exists := draft.items[tx.ItemID]
		if !exists || !item.Reserved() {
			return 0, fmt.Errorf("item %s is not reserved", tx.ItemID)
		}
		if item.HolderID != fromID {
			return 0, fmt.Errorf("account %s is not the holder of item %s", fromID, tx.ItemID)
		}

		// The holder gets the item's value plus two thirds of the escrow.
		// The last third goes to whichever miner folds this release into a
		// block, via that block's coinbase.
		from.Balance += item.Value + item.Escrow*2/3
		feeShare = item.Escrow / 3

		draft.items[tx.ItemID] = Item{ItemID: tx.ItemID, Value: db.genesis.BaseValue}

	case TxKindBuyout, TxKindTransfer:
		if tx.ToID == fromID {
			return 0, fmt.Errorf("transaction invalid, sending money to yourself, from %s, to %s", fromID, tx.ToID)
		}
		if from.Balance < tx.Value-amountTolerance {
			return 0, fmt.Errorf("insufficient funds, bal %v, needed %v", from.Balance, tx.Value)
		}

		to := draft.accounts[tx.ToID]
		to.AccountID = tx.ToID
		to.Balance += tx.Value
		draft.accounts[tx.ToID] = to

		from.Balance -= tx.Value

	case TxKindCoinbase:
		return 0, errors.New("coinbase transaction out of place")

	default:
		return 0, fmt.Errorf("unknown transaction kind %q", tx.Kind)
	}

	// Update the nonce for the next transaction check.
	from.Nonce = tx.Nonce
	draft.accounts[fromID] = from

	return feeShare, nil
}

// =============================================================================

// CheckTx runs the transaction against a draft of the current ledger and
// reports whether it would apply. This is the soft admission check: the
// ledger may shift before the transaction is mined, so it is re-verified at
// block assembly and block validation time.
func (db *Database) CheckTx(tx BlockTx) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	draft := db.ledger.clone()
	_, err := db.applyTransaction(draft, tx)
	return err
}

// ValidateNonce validates the nonce for the specified transaction is larger
// than the last nonce used by the account that signed it.
func (db *Database) ValidateNonce(tx SignedTx) error {
	fromID, err := tx.FromAccount()
	if err != nil {
		return err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	account := db.ledger.accounts[fromID]
	if tx.Nonce <= account.Nonce {
		return fmt.Errorf("invalid nonce, got %d, exp > %d", tx.Nonce, account.Nonce)
	}

	return nil
}

// SelectValid dry-runs the candidate transactions in order against a draft
// of the current ledger. It returns the transactions that fold cleanly, the
// ones that don't, and the escrow fee share the valid set earns for the
// miner's coinbase.
func (db *Database) SelectValid(txs []BlockTx) (valid []BlockTx, dropped []BlockTx, feeShare float64) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	draft := db.ledger.clone()

	for _, tx := range txs {
		fee, err := db.applyTransaction(draft, tx)
		if err != nil {
			db.evHandler("database: SelectValid: dropping tx[%s]: %s", tx, err)
			dropped = append(dropped, tx)
			continue
		}
		valid = append(valid, tx)
		feeShare += fee
	}

	return valid, dropped, feeShare
}

// =============================================================================

// Reset re-initializes the database and its storage back to genesis.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.storage.Reset(); err != nil {
		return err
	}

	led, err := newLedger(db.genesis)
	if err != nil {
		return err
	}

	db.ledger = led
	db.latestBlock = Block{}

	return nil
}

// ReplaceChain atomically swaps the stored chain and the ledger for the
// specified candidate chain. The candidate is validated and folded from
// genesis first, so a bad candidate leaves everything untouched.
func (db *Database) ReplaceChain(blocks []Block) error {
	candidate, err := NewFromBlocks(db.genesis, blocks, db.evHandler)
	if err != nil {
		return fmt.Errorf("candidate chain invalid: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.storage.Reset(); err != nil {
		return err
	}
	for _, block := range blocks {
		if err := db.storage.Write(NewBlockData(block)); err != nil {
			return err
		}
	}

	db.ledger = candidate.ledger
	db.latestBlock = candidate.latestBlock

	return nil
}

// Rebuild discards the ledger and re-folds the chain currently in storage.
// Unlike the constructor, a bad stored block is returned as an error.
func (db *Database) Rebuild() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	led, err := newLedger(db.genesis)
	if err != nil {
		return err
	}
	db.ledger = led
	db.latestBlock = Block{}

	iter := db.storage.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return err
		}

		block, err := ToBlock(blockData)
		if err != nil {
			return err
		}

		if err := block.ValidateBlock(db.latestBlock, db.evHandler); err != nil {
			return fmt.Errorf("block %d: %w", block.Header.Number, err)
		}

		if err := db.applyBlock(block); err != nil {
			return fmt.Errorf("block %d: %w", block.Header.Number, err)
		}
	}

	return nil
}

// IntegrityCheck re-validates the stored chain pairwise from genesis,
// economics included, without touching the live ledger. It returns the
// number of the first bad block, or 0 when the chain is sound. The walk
// holds the read lock so a concurrent chain replacement can't surface a
// half-written chain as corruption.
func (db *Database) IntegrityCheck() (uint64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	led, err := newLedger(db.genesis)
	if err != nil {
		return 0, err
	}

	scratch := Database{
		genesis:   db.genesis,
		ledger:    led,
		evHandler: func(v string, args ...any) {},
	}

	iter := db.storage.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return scratch.latestBlock.Header.Number + 1, err
		}

		block, err := ToBlock(blockData)
		if err != nil {
			return scratch.latestBlock.Header.Number + 1, err
		}

		if err := block.ValidateBlock(scratch.latestBlock, scratch.evHandler); err != nil {
			return block.Header.Number, err
		}

		if err := scratch.applyBlock(block); err != nil {
			return block.Header.Number, err
		}
	}

	return 0, nil
}

// Truncate removes the stored blocks from the specified number through the
// tip and re-folds what remains. Used to cut an invalid suffix found by the
// integrity check.
func (db *Database) Truncate(fromNum uint64) error {
	if err := db.storage.Truncate(fromNum); err != nil {
		return err
	}

	return db.Rebuild()
}

// TamperBlock rewrites a stored block with a corrupted transaction value.
// This exists to demonstrate integrity detection and has no place on a
// mutation path.
func (db *Database) TamperBlock(num uint64) error {
	blockData, err := db.storage.GetBlock(num)
	if err != nil {
		return err
	}

	if len(blockData.Trans) > 0 {
		blockData.Trans[0].Value++
	} else {
		blockData.Header.Nonce++
	}

	return db.storage.Write(blockData)
}

// =============================================================================

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// CopyAccounts makes a copy of the current accounts in the ledger.
func (db *Database) CopyAccounts() map[AccountID]Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accounts := make(map[AccountID]Account, len(db.ledger.accounts))
	for accountID, account := range db.ledger.accounts {
		accounts[accountID] = account
	}

	return accounts
}

// CopyItems makes a copy of the current item records in the ledger.
func (db *Database) CopyItems() map[string]Item {
	db.mu.RLock()
	defer db.mu.RUnlock()

	items := make(map[string]Item, len(db.ledger.items))
	for itemID, item := range db.ledger.items {
		items[itemID] = item
	}

	return items
}

// Query returns the account for the specified account id.
func (db *Database) Query(accountID AccountID) (Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.ledger.accounts[accountID]
	if !exists {
		return Account{}, errors.New("account does not exist")
	}

	return account, nil
}

// QueryItem returns the record for the specified item id.
func (db *Database) QueryItem(itemID string) (Item, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	item, exists := db.ledger.items[itemID]
	if !exists {
		return Item{}, errors.New("item does not exist")
	}

	return item, nil
}

// CopyChain returns the full stored chain in wire form. The walk holds the
// read lock so it never observes a chain replacement part way through its
// reset and rewrite.
func (db *Database) CopyChain() []BlockData {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var blocks []BlockData
	iter := db.storage.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			db.evHandler("database: CopyChain: WARNING: %s", err)
			return nil
		}
		blocks = append(blocks, blockData)
	}

	return blocks
}

// Write adds a new block to storage.
func (db *Database) Write(block Block) error {
	return db.storage.Write(NewBlockData(block))
}

// GetBlock searches storage to locate and return the specified block by
// number.
func (db *Database) GetBlock(num uint64) (Block, error) {
	blockData, err := db.storage.GetBlock(num)
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}
