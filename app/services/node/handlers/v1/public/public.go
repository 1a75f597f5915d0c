// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	v1 "github.com/claimchain/claimchain/business/web/v1"
	"github.com/claimchain/claimchain/foundation/events"
	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/claimchain/claimchain/foundation/ledger/state"
	"github.com/claimchain/claimchain/foundation/nameservice"
	"github.com/claimchain/claimchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, wd := <-ch:
			if !wd {
				return nil
			}

			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}

			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds new user transactions to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "from:nonce", signedTx, "kind", signedTx.Kind, "item", signedTx.ItemID, "to", signedTx.ToID, "value", signedTx.Value)
	if err := h.State.SubmitWalletTransaction(signedTx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	acct := web.Param(r, "account")

	mempool := h.State.RetrieveMempool()

	trans := []tx{}
	for _, tran := range mempool {
		account, _ := tran.FromAccount()

		if acct != "" && (acct != string(account)) && (acct != string(tran.ToID)) {
			continue
		}

		trans = append(trans, tx{
			FromAccount: account,
			FromName:    h.NS.Lookup(account),
			Kind:        tran.Kind,
			ItemID:      tran.ItemID,
			To:          tran.ToID,
			ToName:      h.NS.Lookup(tran.ToID),
			Nonce:       tran.Nonce,
			Value:       tran.Value,
			TimeStamp:   tran.TimeStamp,
			Sig:         tran.SignatureString(),
		})
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Accounts returns the current balances for all users.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account := web.Param(r, "account")

	var blkAccounts map[database.AccountID]database.Account
	switch account {
	case "":
		blkAccounts = h.State.QueryAccounts()

	default:
		accountID, err := database.ToAccountID(account)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}

		act, err := h.State.QueryAccount(accountID)
		if err != nil {
			return v1.NewRequestError(err, http.StatusNotFound)
		}
		blkAccounts = map[database.AccountID]database.Account{accountID: act}
	}

	acts := make([]info, 0, len(blkAccounts))
	for accountID, blkAccount := range blkAccounts {
		act := info{
			Account: accountID,
			Name:    h.NS.Lookup(accountID),
			Balance: blkAccount.Balance,
			Nonce:   blkAccount.Nonce,
		}
		acts = append(acts, act)
	}

	ai := actInfo{
		LatestBlock: h.State.RetrieveLatestBlock().Hash(),
		Uncommitted: h.State.QueryMempoolLength(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// Items returns the current item reservation records.
func (h Handlers) Items(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	itemID := web.Param(r, "item")

	var items map[string]database.Item
	switch itemID {
	case "":
		items = h.State.QueryItems()

	default:
		item, err := h.State.QueryItem(itemID)
		if err != nil {
			return v1.NewRequestError(err, http.StatusNotFound)
		}
		items = map[string]database.Item{itemID: item}
	}

	infos := make([]itemInfo, 0, len(items))
	for id, item := range items {
		infos = append(infos, itemInfo{
			ItemID:     id,
			Reserved:   item.Reserved(),
			HolderID:   item.HolderID,
			HolderName: h.NS.Lookup(item.HolderID),
			Value:      item.Value,
			Demand:     item.Demand,
			Escrow:     item.Escrow,
		})
	}

	return web.Respond(ctx, w, infos, http.StatusOK)
}

// BlocksByNumber returns the blocks for the specified to/from range with the
// transactions expanded for display.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, to, err := blockRange(web.Param(r, "from"), web.Param(r, "to"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	dbBlocks := h.State.QueryBlocksByNumber(from, to)
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for j, blk := range dbBlocks {
		values := blk.Trans.Values()

		trans := make([]tx, len(values))
		for i, tran := range values {
			account, _ := tran.FromAccount()
			trans[i] = tx{
				FromAccount: account,
				FromName:    h.NS.Lookup(account),
				Kind:        tran.Kind,
				ItemID:      tran.ItemID,
				To:          tran.ToID,
				ToName:      h.NS.Lookup(tran.ToID),
				Nonce:       tran.Nonce,
				Value:       tran.Value,
				TimeStamp:   tran.TimeStamp,
				Sig:         tran.SignatureString(),
			}
		}

		blocks[j] = block{
			Hash:          blk.Hash(),
			PrevBlockHash: blk.Header.PrevBlockHash,
			Beneficiary:   blk.Header.BeneficiaryID,
			Difficulty:    blk.Header.Difficulty,
			Number:        blk.Header.Number,
			TransRoot:     blk.Header.TransRoot,
			TimeStamp:     blk.Header.TimeStamp,
			Nonce:         blk.Header.Nonce,
			Transactions:  trans,
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// blockRange resolves the from/to web parameters, mapping "latest" to the
// query constant.
func blockRange(fromStr string, toStr string) (uint64, uint64, error) {
	if fromStr == "latest" || fromStr == "" {
		fromStr = fmt.Sprintf("%d", state.QueryLatest)
	}
	if toStr == "latest" || toStr == "" {
		toStr = fmt.Sprintf("%d", state.QueryLatest)
	}

	from, err := strconv.ParseUint(fromStr, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	to, err := strconv.ParseUint(toStr, 10, 64)
	if err != nil {
		return 0, 0, err
	}

	if from > to {
		return 0, 0, errors.New("from greater than to")
	}

	return from, to, nil
}
