package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Storage interface represents the behavior required to be implemented by any
// package providing durable storage for the chain. Every call reports its
// outcome through the returned error.
type Storage interface {
	Load(ctx context.Context) ([]BlockData, error)
	Save(ctx context.Context, blockData BlockData) error
	Close() error
}

// LoadPolicy decides what happens when existing blocks can't be loaded from
// storage while constructing a chain.
type LoadPolicy int

// Set of supported load policies.
const (
	// LoadFallback logs the failure, disables storage for the lifetime of
	// the chain and starts a fresh chain from a new genesis block.
	LoadFallback LoadPolicy = iota

	// LoadFatal fails the construction of the chain.
	LoadFatal
)

// ParseLoadPolicy converts a configuration string into a LoadPolicy.
func ParseLoadPolicy(s string) (LoadPolicy, error) {
	switch strings.ToLower(s) {
	case "", "fallback":
		return LoadFallback, nil
	case "fatal":
		return LoadFatal, nil
	}

	return 0, fmt.Errorf("unknown load policy %q", s)
}

// String implements the fmt.Stringer interface.
func (lp LoadPolicy) String() string {
	if lp == LoadFatal {
		return "fatal"
	}
	return "fallback"
}

// PersistenceStatus reports how the chain is using its storage.
type PersistenceStatus struct {
	Configured bool   `json:"configured"`       // A storage adapter was provided.
	Active     bool   `json:"active"`           // Blocks are still being saved.
	Saved      uint64 `json:"saved"`            // Blocks saved since construction.
	Reason     string `json:"reason,omitempty"` // Why storage was disabled.
}

// =============================================================================

// persister saves appended blocks in the background so a slow or failing
// store never holds up block production. The first block that can't be
// saved switches the chain to local only mode.
type persister struct {
	storage   Storage
	retries   int
	delay     time.Duration
	timeout   time.Duration
	evHandler EventHandler

	queue chan Block
	shut  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
	reason string
	saved  uint64
}

func newPersister(cfg Config, evHandler EventHandler) *persister {
	p := persister{
		storage:   cfg.Storage,
		retries:   cfg.SaveRetries,
		delay:     cfg.RetryDelay,
		timeout:   cfg.SaveTimeout,
		evHandler: evHandler,
		queue:     make(chan Block, cfg.QueueSize),
		shut:      make(chan struct{}),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run()
	}()

	return &p
}

// enqueue hands a block to the background saver without blocking.
func (p *persister) enqueue(block Block) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.reason != "" {
		return
	}

	select {
	case p.queue <- block:
	default:
		p.reason = fmt.Sprintf("save queue full at block %d", block.Index)
		p.evHandler("chain: persister: WARNING: %s: continuing local only", p.reason)
	}
}

// status returns the current persistence status.
func (p *persister) status() PersistenceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PersistenceStatus{
		Configured: true,
		Active:     p.reason == "",
		Saved:      p.saved,
		Reason:     p.reason,
	}
}

// shutdown stops accepting blocks and waits for the queued ones to be saved.
func (p *persister) shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		close(p.shut)
		return fmt.Errorf("draining save queue: %w", ctx.Err())
	}
}

func (p *persister) run() {
	p.evHandler("chain: persister: G started")
	defer p.evHandler("chain: persister: G completed")

	for block := range p.queue {
		p.mu.Lock()
		disabled := p.reason != ""
		p.mu.Unlock()

		if disabled {
			continue
		}

		if err := p.save(block); err != nil {
			p.mu.Lock()
			p.reason = fmt.Sprintf("saving block %d: %s", block.Index, err)
			p.mu.Unlock()

			p.evHandler("chain: persister: ERROR: blk[%d]: %s: continuing local only", block.Index, err)
			continue
		}

		p.mu.Lock()
		p.saved++
		p.mu.Unlock()
	}
}

// save writes the block, retrying a bounded number of times.
func (p *persister) save(block Block) error {
	blockData, err := NewBlockData(block)
	if err != nil {
		return err
	}

	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			p.evHandler("chain: persister: blk[%d]: retry[%d] in %v", block.Index, attempt, p.delay)

			select {
			case <-time.After(p.delay):
			case <-p.shut:
				return errors.Join(errors.New("shutdown during retry"), err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = p.storage.Save(ctx, blockData)
		cancel()

		if err == nil {
			p.evHandler("chain: persister: blk[%d]: saved", block.Index)
			return nil
		}

		p.evHandler("chain: persister: WARNING: blk[%d]: attempt[%d]: %s", block.Index, attempt+1, err)
	}

	return err
}
