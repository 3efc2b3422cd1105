package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/powchain/foundation/blockchain/worker"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// unsolvableChain returns a chain whose next block can never be mined, so
// a mining operation only ends when it is cancelled.
func unsolvableChain(t *testing.T) *chain.Chain {
	t.Helper()

	m := memory.New(chain.BlockData{Index: 0, TimeStamp: 1, Payload: "{}", PrevHash: chain.GenesisPrevHash, Hash: "seed"})

	c, err := chain.New(context.Background(), chain.Config{Difficulty: 64, Storage: m})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the chain: %v", failed, err)
	}
	t.Cleanup(func() { c.Shutdown(context.Background()) })

	return c
}

func Test_Submit(t *testing.T) {
	t.Log("Given the need to mine blocks through the worker.")
	{
		c, err := chain.New(context.Background(), chain.Config{Difficulty: 1})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the chain: %v", failed, err)
		}

		w := worker.Run(c, nil)
		defer w.Shutdown()

		t.Logf("\tTest 0:\tWhen submitting payloads concurrently.")
		{
			const n = 8

			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := w.Submit(context.Background(), chain.Payload{"n": i}); err != nil {
						errs <- err
					}
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				t.Fatalf("\t%s\tTest 0:\tShould mine every payload: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould mine every payload.", success)

			if c.Len() != n+1 {
				t.Fatalf("\t%s\tTest 0:\tShould append every block: got %d, exp %d", failed, c.Len(), n+1)
			}
			t.Logf("\t%s\tTest 0:\tShould append every block.", success)

			if !c.Validate() {
				t.Fatalf("\t%s\tTest 0:\tShould leave a valid chain: %v", failed, c.Verify())
			}
			t.Logf("\t%s\tTest 0:\tShould leave a valid chain.", success)
		}

		t.Logf("\tTest 1:\tWhen the returned block is checked against the head.")
		{
			block, err := w.Submit(context.Background(), chain.Payload{"amount": 5})
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould mine the block: %v", failed, err)
			}

			if latest := c.Latest(); latest.Hash != block.Hash || latest.Index != block.Index {
				t.Fatalf("\t%s\tTest 1:\tShould return the appended block: got %+v, exp %+v", failed, block, latest)
			}
			t.Logf("\t%s\tTest 1:\tShould return the appended block.", success)
		}
	}
}

func Test_Cancel(t *testing.T) {
	t.Log("Given the need to stop mining that will never finish.")
	{
		t.Logf("\tTest 0:\tWhen the caller's context expires.")
		{
			c := unsolvableChain(t)
			w := worker.Run(c, nil)
			defer w.Shutdown()

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			_, err := w.Submit(ctx, chain.Payload{"amount": 5})
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("\t%s\tTest 0:\tShould return the context error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould return the context error.", success)

			if c.Len() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould not append a block: %d", failed, c.Len())
			}
			t.Logf("\t%s\tTest 0:\tShould not append a block.", success)
		}

		t.Logf("\tTest 1:\tWhen the worker is shutdown while mining.")
		{
			c := unsolvableChain(t)
			w := worker.Run(c, nil)

			errCh := make(chan error, 1)
			go func() {
				_, err := w.Submit(context.Background(), chain.Payload{"amount": 5})
				errCh <- err
			}()

			time.Sleep(50 * time.Millisecond)
			w.Shutdown()

			select {
			case err := <-errCh:
				if !errors.Is(err, worker.ErrShutdown) {
					t.Fatalf("\t%s\tTest 1:\tShould return ErrShutdown: %v", failed, err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest 1:\tShould stop mining on shutdown.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould stop mining on shutdown.", success)

			if _, err := w.Submit(context.Background(), chain.Payload{"amount": 6}); !errors.Is(err, worker.ErrShutdown) {
				t.Fatalf("\t%s\tTest 1:\tShould reject work after shutdown: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject work after shutdown.", success)

			w.Shutdown()
			t.Logf("\t%s\tTest 1:\tShould allow shutdown to be called again.", success)
		}
	}
}
