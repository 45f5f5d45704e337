// Package private maintains the group of handlers for operator access.
package private

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ardanlabs/dpos/business/web/errs"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/mempool"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/web"
	"go.uber.org/zap"
)

// maxHeaders bounds the number of headers returned by one call.
const maxHeaders = 1000

// Handlers manages the set of operator endpoints.
type Handlers struct {
	Log     *zap.SugaredLogger
	State   *state.State
	Mempool *mempool.Mempool
}

// HeadersByHeight returns the headers between the specified from/to
// heights inclusive.
func (h Handlers) HeadersByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	last := h.State.LastBlock().Height()

	parse := func(s string) (uint32, error) {
		if s == "latest" || s == "" {
			return last, nil
		}
		n, err := strconv.ParseUint(s, 10, 32)
		return uint32(n), err
	}

	from, err := parse(web.Param(r, "from"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	to, err := parse(web.Param(r, "to"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	if to-from >= maxHeaders {
		return errs.NewTrusted(errors.New("range too large"), http.StatusBadRequest)
	}

	headers, err := h.State.Storage().GetBlockHeadersByHeightBetween(from, to)
	if err != nil {
		return errs.FromChain(err)
	}

	if len(headers) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return respondHeaders(ctx, w, headers)
}

// DeleteLastBlock removes the head of the chain. The removed block is
// archived for restoration when the archive query parameter is true.
func (h Handlers) DeleteLastBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	archive, _ := strconv.ParseBool(r.URL.Query().Get("archive"))

	block, err := h.State.DeleteLastBlock(ctx, archive)
	if err != nil {
		return errs.FromChain(err)
	}

	h.Log.Infow("delete last block", "traceid", v.TraceID, "height", block.Height(), "archive", archive)

	resp := struct {
		Status  string `json:"status"`
		Height  uint32 `json:"height"`
		BlockID string `json:"blockID"`
	}{
		Status:  "removed",
		Height:  block.Height(),
		BlockID: block.Header.IDHex(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// RestoreTempBlocks processes the archived blocks again.
func (h Handlers) RestoreTempBlocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	restored, err := h.State.RestoreTempBlocks(ctx)
	if err != nil {
		return errs.FromChain(err)
	}

	resp := struct {
		Restored int    `json:"restored"`
		Height   uint32 `json:"height"`
	}{
		Restored: restored,
		Height:   h.State.LastBlock().Height(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// TruncateMempool drops every uncommitted transaction.
func (h Handlers) TruncateMempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dropped := h.Mempool.Count()
	h.Mempool.Truncate()

	resp := struct {
		Dropped int `json:"dropped"`
	}{
		Dropped: dropped,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

func respondHeaders(ctx context.Context, w http.ResponseWriter, headers []*database.BlockHeader) error {
	data := []byte{'['}
	for i, header := range headers {
		if i > 0 {
			data = append(data, ',')
		}

		b, err := header.ToJSON()
		if err != nil {
			return err
		}
		data = append(data, b...)
	}
	data = append(data, ']')

	return web.RespondRaw(ctx, w, data, http.StatusOK)
}
