// Package private maintains the group of handlers for node administration.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	v1 "github.com/claimchain/claimchain/business/web/v1"
	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/claimchain/claimchain/foundation/ledger/peer"
	"github.com/claimchain/claimchain/foundation/ledger/state"
	"github.com/claimchain/claimchain/foundation/nameservice"
	"github.com/claimchain/claimchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node administration endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.RetrieveLatestBlock()

	status := struct {
		LatestBlockHash   string        `json:"latest_block_hash"`
		LatestBlockNumber uint64        `json:"latest_block_number"`
		Uncommitted       int           `json:"uncommitted"`
		KnownPeers        []peer.Peer   `json:"known_peers"`
		ConnectedPeers    []peer.Status `json:"connected_peers"`
	}{
		LatestBlockHash:   latestBlock.Hash(),
		LatestBlockNumber: latestBlock.Header.Number,
		Uncommitted:       h.State.QueryMempoolLength(),
		KnownPeers:        h.State.RetrieveKnownPeers(),
		ConnectedPeers:    h.State.NetPeerStatus(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fromStr := web.Param(r, "from")
	if fromStr == "latest" || fromStr == "" {
		fromStr = fmt.Sprintf("%d", state.QueryLatest)
	}

	toStr := web.Param(r, "to")
	if toStr == "latest" || toStr == "" {
		toStr = fmt.Sprintf("%d", state.QueryLatest)
	}

	from, err := strconv.ParseUint(fromStr, 10, 64)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}
	to, err := strconv.ParseUint(toStr, 10, 64)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if from > to {
		return v1.NewRequestError(errors.New("from greater than to"), http.StatusBadRequest)
	}

	blocks := h.State.QueryBlocksByNumber(from, to)
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.RetrieveMempool()
	return web.Respond(ctx, w, txs, http.StatusOK)
}

// ConnectPeer dials a new peer and performs the announce handshake.
func (h Handlers) ConnectPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Host string `json:"host" validate:"required"`
	}
	if err := web.Decode(r, &req); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := h.State.ConnectToPeer(req.Host); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		Host   string `json:"host"`
	}{
		Status: "connected",
		Host:   req.Host,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SyncChains asks every connected peer for its chain so the longest valid
// chain wins.
func (h Handlers) SyncChains(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.RequestPeerChains()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "chain sync requested",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mine performs one mining pass right now instead of waiting for the worker
// signal. Useful for tooling and demos.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.MineNewBlock(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNoTransactions) {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
		return err
	}

	resp := struct {
		Status string `json:"status"`
		Hash   string `json:"hash"`
		Number uint64 `json:"number"`
	}{
		Status: "block mined",
		Hash:   block.Hash(),
		Number: block.Header.Number,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Integrity re-validates the stored chain from genesis.
func (h Handlers) Integrity(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	badBlock, err := h.State.CheckIntegrity()

	resp := struct {
		OK       bool   `json:"ok"`
		BadBlock uint64 `json:"bad_block,omitempty"`
		Reason   string `json:"reason,omitempty"`
	}{
		OK:       err == nil,
		BadBlock: badBlock,
	}
	if err != nil {
		resp.Reason = err.Error()
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Corrupt damages a stored block so integrity detection and repair can be
// exercised end to end.
func (h Handlers) Corrupt(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	num, err := strconv.ParseUint(web.Param(r, "block"), 10, 64)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := h.State.CorruptBlock(num); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		Block  uint64 `json:"block"`
	}{
		Status: "block corrupted",
		Block:  num,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Repair truncates the invalid suffix of the chain and asks the peers to
// fill the gap.
func (h Handlers) Repair(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	truncatedFrom, err := h.State.Repair()
	if err != nil {
		return err
	}

	resp := struct {
		Status        string `json:"status"`
		TruncatedFrom uint64 `json:"truncated_from,omitempty"`
	}{
		Status:        "repair complete",
		TruncatedFrom: truncatedFrom,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
