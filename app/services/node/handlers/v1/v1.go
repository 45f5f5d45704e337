// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/dpos/app/services/node/handlers/v1/private"
	"github.com/ardanlabs/dpos/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/dpos/foundation/blockchain/mempool"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/events"
	"github.com/ardanlabs/dpos/foundation/nameservice"
	"github.com/ardanlabs/dpos/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log     *zap.SugaredLogger
	State   *state.State
	Mempool *mempool.Mempool
	NS      *nameservice.NameService
	Evts    *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:     cfg.Log,
		State:   cfg.State,
		Mempool: cfg.Mempool,
		NS:      cfg.NS,
		Evts:    cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/node/status", pbl.Status)
	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/validators", pbl.Validators)
	app.Handle(http.MethodGet, version, "/accounts/:address", pbl.Account)
	app.Handle(http.MethodGet, version, "/blocks/:id", pbl.BlockByID)
	app.Handle(http.MethodGet, version, "/blocks/height/:height", pbl.BlockByHeight)
	app.Handle(http.MethodPost, version, "/blocks", pbl.SubmitBlock)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Uncommitted)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:     cfg.Log,
		State:   cfg.State,
		Mempool: cfg.Mempool,
	}

	app.Handle(http.MethodGet, version, "/node/blocks/list/:from/:to", prv.HeadersByHeight)
	app.Handle(http.MethodDelete, version, "/blocks/last", prv.DeleteLastBlock)
	app.Handle(http.MethodPost, version, "/blocks/temp/restore", prv.RestoreTempBlocks)
	app.Handle(http.MethodDelete, version, "/tx/uncommitted", prv.TruncateMempool)
}
