// Package chaingrp maintains the group of handlers for chain access.
package chaingrp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/powchain/business/sys/metrics"
	"github.com/ardanlabs/powchain/business/sys/validate"
	v1 "github.com/ardanlabs/powchain/business/web/v1"
	"github.com/ardanlabs/powchain/foundation/blockchain/canonical"
	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
	"github.com/ardanlabs/powchain/foundation/blockchain/worker"
	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/ardanlabs/powchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Set of messages reported by the validate endpoint.
const (
	msgValid    = "Blockchain is valid"
	msgTampered = "Blockchain has been tampered with"
)

// Handlers manages the set of chain endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	Name   string
	Chain  *chain.Chain
	Worker *worker.Worker
	WS     websocket.Upgrader
	Evts   *events.Events
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
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// List returns every block in the chain along with the summary.
func (h Handlers) List(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := chainResponse{
		Chain:   toBlocks(h.Chain.Blocks()),
		Summary: toSummary(h.Name, h.Chain.Summary()),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Latest returns the head of the chain.
func (h Handlers) Latest(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if h.Chain.Len() == 0 {
		return v1.NewRequestError(chain.ErrNotInitialized, http.StatusNotFound)
	}

	return web.Respond(ctx, w, blockResponse{Block: toBlock(h.Chain.Latest())}, http.StatusOK)
}

// BlockByIndex returns the block at the index in the path.
func (h Handlers) BlockByIndex(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := strconv.ParseUint(web.Param(r, "index"), 10, 64)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("invalid block index: %w", err), http.StatusBadRequest)
	}

	b, err := h.Chain.BlockByIndex(index)
	if err != nil {
		return v1.NewRequestError(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, blockResponse{Block: toBlock(b)}, http.StatusOK)
}

// Validate reports whether the chain is intact and where it was broken.
func (h Handlers) Validate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := validation{
		IsValid: true,
		Message: msgValid,
	}

	if err := h.Chain.Verify(); err != nil {
		resp.IsValid = false
		resp.Message = msgTampered
		resp.Detail = err.Error()

		if ve, ok := chain.AsValidationError(err); ok {
			index := ve.Index
			resp.FirstInvalidIndex = &index
			resp.Violation = ve.Violation
		}

		h.Log.Infow("validate", "traceid", web.GetTraceID(ctx), "ERROR", err)
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Summary returns the aggregate state of the chain.
func (h Handlers) Summary(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, toSummary(h.Name, h.Chain.Summary()), http.StatusOK)
}

// Persistence reports how the chain is using its storage.
func (h Handlers) Persistence(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Chain.Persistence(), http.StatusOK)
}

// AddBlock mines a new block holding the payload and appends it to the
// chain. The response is sent once the work is done.
func (h Handlers) AddBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nb NewBlock
	if err := web.Decode(r, &nb); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(nb); err != nil {
		return err
	}

	h.Log.Infow("add block", "traceid", web.GetTraceID(ctx), "head", h.Chain.Latest().Index)

	b, err := h.Worker.Submit(ctx, nb.Payload)
	if err != nil {
		switch {
		case canonical.IsEncodingError(err):
			return v1.NewRequestError(err, http.StatusBadRequest)
		case errors.Is(err, worker.ErrShutdown),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return v1.NewRequestError(fmt.Errorf("mining stopped: %w", err), http.StatusServiceUnavailable)
		}
		return fmt.Errorf("adding block: %w", err)
	}

	metrics.SetBlocks(h.Chain.Len())

	return web.Respond(ctx, w, blockResponse{Block: toBlock(b)}, http.StatusCreated)
}
