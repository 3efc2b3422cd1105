// Package worker implements the mining workflow for the chain. Blocks are
// mined by a single goroutine so the HTTP handlers never hold the chain
// write lock themselves.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
)

// ErrShutdown is returned for work submitted after the worker was stopped.
var ErrShutdown = errors.New("worker is shutting down")

// job represents a request to mine a block holding the payload.
type job struct {
	ctx     context.Context
	payload chain.Payload
	result  chan result
}

type result struct {
	block chain.Block
	err   error
}

// =============================================================================

// Worker manages the mining workflow for the chain.
type Worker struct {
	chain     *chain.Chain
	wg        sync.WaitGroup
	shut      chan struct{}
	shutOnce  sync.Once
	jobs      chan job
	evHandler chain.EventHandler
}

// Run creates a worker and starts up the mining goroutine.
func Run(c *chain.Chain, evHandler chain.EventHandler) *Worker {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	w := Worker{
		chain:     c,
		shut:      make(chan struct{}),
		jobs:      make(chan job),
		evHandler: evHandler,
	}

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.miningOperations()
	}()

	<-hasStarted

	return &w
}

// Shutdown cancels any mining in progress and terminates the goroutine
// performing work. It is safe to call more than once.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.shutOnce.Do(func() {
		w.evHandler("worker: shutdown: terminate goroutines")
		close(w.shut)
	})
	w.wg.Wait()
}

// Submit hands the payload to the mining goroutine and waits for the mined
// block. Cancelling the context abandons the mining operation.
func (w *Worker) Submit(ctx context.Context, payload chain.Payload) (chain.Block, error) {
	j := job{
		ctx:     ctx,
		payload: payload,
		result:  make(chan result, 1),
	}

	select {
	case w.jobs <- j:
	case <-w.shut:
		return chain.Block{}, ErrShutdown
	case <-ctx.Done():
		return chain.Block{}, ctx.Err()
	}

	// Once accepted, the mining goroutine always reports back.
	r := <-j.result
	return r.block, r.err
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
