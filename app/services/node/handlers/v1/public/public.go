// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/dpos/business/web/errs"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/mempool"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/blockchain/statestore"
	"github.com/ardanlabs/dpos/foundation/events"
	"github.com/ardanlabs/dpos/foundation/nameservice"
	"github.com/ardanlabs/dpos/foundation/web"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Bounds on the size of submitted documents.
const (
	maxBlockBody = 1 << 20
	maxTxBody    = 64 << 10
)

// Handlers manages the set of chain endpoints.
type Handlers struct {
	Log     *zap.SugaredLogger
	State   *state.State
	Mempool *mempool.Mempool
	NS      *nameservice.NameService
	WS      websocket.Upgrader
	Evts    *events.Events
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

	id, ch := h.Evts.Acquire()
	defer h.Evts.Release(id)

	h.Log.Infow("websocket open", "traceid", v.TraceID, "subscriber", id)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteJSON(msg); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	last := h.State.LastBlock()

	finalized, err := h.State.Storage().GetFinalizedHeight()
	if err != nil {
		return err
	}

	st := status{
		NetworkID:       hexutil.Encode(h.State.NetworkID()),
		Height:          last.Height(),
		BlockID:         last.Header.IDHex(),
		Timestamp:       last.Header.Timestamp(),
		FinalizedHeight: finalized,
		BlockTime:       h.State.Slots().Interval(),
		CurrentSlot:     h.State.Slots().CurrentSlot(),
		Validators:      len(h.State.Validators()),
		CachedHeaders:   len(h.State.CachedHeaders()),
	}

	return web.Respond(ctx, w, st, http.StatusOK)
}

// Genesis returns the genesis block.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return respondBlock(ctx, w, h.State.GenesisBlock())
}

// Validators returns the active validator set.
func (h Handlers) Validators(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	vs := h.State.Validators()

	resp := make([]validator, len(vs))
	for i, v := range vs {
		resp[i] = validator{
			Address:                v.Address.Hex(),
			Name:                   h.NS.Lookup(v.Address),
			MinActiveHeight:        v.MinActiveHeight,
			IsConsensusParticipant: v.IsConsensusParticipant,
		}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Account returns the persisted state of an account.
func (h Handlers) Account(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr := web.Param(r, "address")
	if !common.IsHexAddress(addr) {
		return errs.NewTrusted(fmt.Errorf("invalid address %q", addr), http.StatusBadRequest)
	}

	acct, err := statestore.New(h.State.Storage()).GetAccount(common.HexToAddress(addr))
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, toAccount(acct), http.StatusOK)
}

// BlockByID returns the block with the specified hex id.
func (h Handlers) BlockByID(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := hexutil.Decode(web.Param(r, "id"))
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block id: %w", err), http.StatusBadRequest)
	}

	block, err := h.State.Storage().GetBlockByID(id)
	if err != nil {
		return errs.FromChain(err)
	}

	return respondBlock(ctx, w, block)
}

// BlockByHeight returns the block at the specified height.
func (h Handlers) BlockByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := strconv.ParseUint(web.Param(r, "height"), 10, 32)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid height: %w", err), http.StatusBadRequest)
	}

	block, err := h.State.Storage().GetBlockByHeight(uint32(height))
	if err != nil {
		return errs.FromChain(err)
	}

	return respondBlock(ctx, w, block)
}

// SubmitBlock takes a block in its JSON form, validates and verifies it
// and if that passes, adds the block to the chain.
func (h Handlers) SubmitBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBlockBody))
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to read payload: %w", err), http.StatusBadRequest)
	}

	block, err := database.BlockFromJSON(data)
	if err != nil {
		return errs.FromChain(err)
	}

	if block.Header == nil {
		return errs.NewTrusted(errors.New("block header is required"), http.StatusBadRequest)
	}

	h.Log.Infow("submit block", "traceid", v.TraceID, "height", block.Height(), "txs", len(block.Transactions))

	// Ask the state package to validate the block. If the block passes
	// validation and verification, it will be added to the chain.
	if err := h.State.ProcessBlock(ctx, block); err != nil {
		return errs.FromChain(err)
	}

	resp := struct {
		Status  string `json:"status"`
		BlockID string `json:"blockID"`
	}{
		Status:  "accepted",
		BlockID: block.Header.IDHex(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitTransaction adds a new transaction to the mempool so it can be
// forged into a future block.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxTxBody))
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to read payload: %w", err), http.StatusBadRequest)
	}

	tx, err := database.TransactionFromJSON(data)
	if err != nil {
		return errs.FromChain(err)
	}

	if err := tx.Validate(); err != nil {
		return errs.FromChain(err)
	}

	if err := tx.VerifySignature(h.State.NetworkID()); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	sender, err := statestore.New(h.State.Storage()).GetAccount(tx.SenderAddress())
	if err != nil {
		return err
	}

	if tx.Nonce() < sender.Nonce {
		return errs.NewTrusted(fmt.Errorf("nonce %d already used, account nonce is %d", tx.Nonce(), sender.Nonce), http.StatusBadRequest)
	}

	h.Log.Infow("add tran", "traceid", v.TraceID, "tx", tx, "from", h.NS.Lookup(tx.SenderAddress()), "fee", tx.Fee())
	n := h.Mempool.Upsert(tx)

	resp := struct {
		Status  string `json:"status"`
		TxID    string `json:"txID"`
		Mempool int    `json:"mempool"`
	}{
		Status:  "transactions added to mempool",
		TxID:    hexutil.Encode(tx.ID()),
		Mempool: n,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Uncommitted returns the set of uncommitted transactions in forging order.
func (h Handlers) Uncommitted(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.Mempool.PickBest(-1)

	resp := make([]json.RawMessage, 0, len(txs))
	for _, tx := range txs {
		data, err := tx.ToJSON()
		if err != nil {
			return err
		}
		resp = append(resp, data)
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

func respondBlock(ctx context.Context, w http.ResponseWriter, block database.Block) error {
	data, err := block.ToJSON()
	if err != nil {
		return err
	}

	return web.RespondRaw(ctx, w, data, http.StatusOK)
}
