package worker

import (
	"context"
	"errors"
	"time"
)

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case j := <-w.jobs:
			if w.isShutdown() {
				j.result <- result{err: ErrShutdown}
				continue
			}
			j.result <- w.runMiningOperation(j)

		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation mines the block for the job and appends it to the
// chain.
func (w *Worker) runMiningOperation(j job) result {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// Create a context so mining can be cancelled by the caller or shutdown.
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()

	// This G exists to cancel the mining operation on shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)

		select {
		case <-w.shut:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	t := time.Now()
	block, err := w.chain.AddBlock(ctx, j.payload)
	duration := time.Since(t)

	cancel()
	<-done

	w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

	if err != nil {
		switch {
		case w.isShutdown() && errors.Is(err, context.Canceled):
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
			return result{err: ErrShutdown}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
		default:
			w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		}
		return result{err: err}
	}

	w.evHandler("worker: runMiningOperation: MINING: blk[%d] hash[%s]", block.Index, block.Hash)

	return result{block: block}
}
