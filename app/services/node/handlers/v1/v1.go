// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/claimchain/claimchain/app/services/node/handlers/v1/private"
	"github.com/claimchain/claimchain/app/services/node/handlers/v1/public"
	"github.com/claimchain/claimchain/foundation/events"
	"github.com/claimchain/claimchain/foundation/ledger/state"
	"github.com/claimchain/claimchain/foundation/nameservice"
	"github.com/claimchain/claimchain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/accounts/list", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/list/:account", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/items/list", pbl.Items)
	app.Handle(http.MethodGet, version, "/items/list/:item", pbl.Items)
	app.Handle(http.MethodGet, version, "/blocks/list/:from/:to", pbl.BlocksByNumber)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list/:account", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitWalletTransaction)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/block/list/:from/:to", prv.BlocksByNumber)
	app.Handle(http.MethodGet, version, "/node/tx/uncommitted/list", prv.Mempool)
	app.Handle(http.MethodPost, version, "/node/peers/connect", prv.ConnectPeer)
	app.Handle(http.MethodPost, version, "/node/chain/sync", prv.SyncChains)
	app.Handle(http.MethodPost, version, "/node/mine", prv.Mine)
	app.Handle(http.MethodGet, version, "/node/integrity", prv.Integrity)
	app.Handle(http.MethodPost, version, "/node/integrity/corrupt/:block", prv.Corrupt)
	app.Handle(http.MethodPost, version, "/node/integrity/repair", prv.Repair)
}
