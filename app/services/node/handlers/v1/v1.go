// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/powchain/app/services/node/handlers/v1/chaingrp"
	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
	"github.com/ardanlabs/powchain/foundation/blockchain/worker"
	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/ardanlabs/powchain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log    *zap.SugaredLogger
	Name   string
	Chain  *chain.Chain
	Worker *worker.Worker
	Evts   *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	cgh := chaingrp.Handlers{
		Log:    cfg.Log,
		Name:   cfg.Name,
		Chain:  cfg.Chain,
		Worker: cfg.Worker,
		Evts:   cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", cgh.Events)
	app.Handle(http.MethodGet, version, "/chain", cgh.List)
	app.Handle(http.MethodGet, version, "/chain/latest", cgh.Latest)
	app.Handle(http.MethodGet, version, "/chain/validate", cgh.Validate)
	app.Handle(http.MethodGet, version, "/chain/summary", cgh.Summary)
	app.Handle(http.MethodGet, version, "/chain/persistence", cgh.Persistence)
	app.Handle(http.MethodGet, version, "/blocks/:index", cgh.BlockByIndex)
	app.Handle(http.MethodPost, version, "/blocks", cgh.AddBlock)
}
