// Package chain implements the append-only, proof of work protected chain of
// blocks. It owns genesis creation, mining, appending and validation, and can
// optionally mirror every block into a storage adapter.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/canonical"
	"github.com/ardanlabs/powchain/foundation/blockchain/digest"
)

// Set of errors returned by the chain.
var (
	ErrGenesisExists  = errors.New("genesis block already exists")
	ErrNotInitialized = errors.New("chain has no genesis block")
	ErrBlockNotFound  = errors.New("block not found")
)

// EventHandler defines a function that is called when events occur in the
// processing of blocks.
type EventHandler func(v string, args ...any)

// DefaultGenesisPayload returns the sentinel payload recorded by a genesis
// block when none is configured.
func DefaultGenesisPayload() Payload {
	return Payload{
		"type":    "genesis",
		"message": "powchain genesis block",
	}
}

// =============================================================================

// Config represents the configuration required to construct a chain.
type Config struct {
	Difficulty     uint          // Used as given, zero turns the work requirement off.
	Hasher         digest.Hasher // Defaults to digest.Default.
	GenesisPayload Payload       // Defaults to DefaultGenesisPayload.
	Storage        Storage       // Optional, nil runs the chain local only.
	LoadPolicy     LoadPolicy
	LoadRetries    int           // Extra load attempts before LoadPolicy applies.
	SaveRetries    int           // Extra save attempts before going local only.
	RetryDelay     time.Duration // Pause between attempts.
	SaveTimeout    time.Duration // Deadline for a single save, defaults to 30s.
	QueueSize      int           // Blocks waiting to be saved, defaults to 64.
	Now            func() time.Time
	EvHandler      EventHandler
}

// Summary represents the aggregate state of the chain.
type Summary struct {
	TotalBlocks   int               `json:"total_blocks"`
	IsValid       bool              `json:"is_valid"`
	Difficulty    uint              `json:"difficulty"`
	HashAlgorithm string            `json:"hash_algorithm"`
	Encoding      string            `json:"encoding"`
	LatestBlock   Block             `json:"latest_block"`
	Persistence   PersistenceStatus `json:"persistence"`
}

// Chain manages the ordered sequence of blocks. A single writer produces
// blocks at a time while any number of readers work from snapshots.
type Chain struct {
	difficulty     uint
	hasher         digest.Hasher
	genesisPayload Payload
	now            func() time.Time
	evHandler      EventHandler

	storage    Storage
	persist    *persister
	loadFailed string
	closeOnce  sync.Once

	writeMu sync.Mutex

	mu     sync.RWMutex
	blocks []Block
}

// New constructs a chain. When storage is configured the existing blocks are
// loaded from it, otherwise a genesis block is mined.
func New(ctx context.Context, cfg Config) (*Chain, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.Hasher == nil {
		cfg.Hasher = digest.Default
	}
	if cfg.Difficulty > uint(cfg.Hasher.HexLen()) {
		return nil, fmt.Errorf("difficulty %d exceeds %s hash length %d", cfg.Difficulty, cfg.Hasher.Name(), cfg.Hasher.HexLen())
	}
	if cfg.GenesisPayload == nil {
		cfg.GenesisPayload = DefaultGenesisPayload()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 30 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	genesisPayload, err := normalizePayload(cfg.GenesisPayload)
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	c := Chain{
		difficulty:     cfg.Difficulty,
		hasher:         cfg.Hasher,
		genesisPayload: genesisPayload,
		now:            cfg.Now,
		evHandler:      ev,
		storage:        cfg.Storage,
	}

	if cfg.Storage == nil {
		ev("chain: New: no storage configured: running local only")
		if _, err := c.CreateGenesis(ctx); err != nil {
			return nil, err
		}
		return &c, nil
	}

	blocks, err := c.load(ctx, cfg)
	if err != nil {
		if cfg.LoadPolicy == LoadFatal {
			return nil, fmt.Errorf("loading chain: %w", err)
		}

		c.loadFailed = fmt.Sprintf("loading chain: %s", err)
		ev("chain: New: WARNING: %s: running local only", c.loadFailed)

		if _, err := c.CreateGenesis(ctx); err != nil {
			return nil, err
		}
		return &c, nil
	}

	// Storage is healthy, so from here every appended block is saved.
	c.persist = newPersister(cfg, ev)

	if len(blocks) == 0 {
		ev("chain: New: storage is empty: creating genesis")
		if _, err := c.CreateGenesis(ctx); err != nil {
			c.persist.shutdown(context.Background())
			return nil, err
		}
		return &c, nil
	}

	c.blocks = blocks
	ev("chain: New: loaded blocks[%d] from storage", len(blocks))

	return &c, nil
}

// load reads the existing blocks from storage. Stored hashes and nonces are
// trusted and not recomputed here, Verify is where they get checked.
func (c *Chain) load(ctx context.Context, cfg Config) ([]Block, error) {
	var records []BlockData
	var err error

	for attempt := 0; attempt <= cfg.LoadRetries; attempt++ {
		if attempt > 0 {
			c.evHandler("chain: load: retry[%d] in %v", attempt, cfg.RetryDelay)

			select {
			case <-time.After(cfg.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		records, err = cfg.Storage.Load(ctx)
		if err == nil {
			break
		}

		c.evHandler("chain: load: WARNING: attempt[%d]: %s", attempt+1, err)
	}

	if err != nil {
		return nil, err
	}

	blocks := make([]Block, len(records))
	for i, record := range records {
		block, err := ToBlock(record)
		if err != nil {
			return nil, err
		}
		blocks[i] = block
	}

	return blocks, nil
}

// Shutdown waits for queued blocks to be saved and releases the storage. It
// is safe to call more than once.
func (c *Chain) Shutdown(ctx context.Context) error {
	c.evHandler("chain: shutdown: started")
	defer c.evHandler("chain: shutdown: completed")

	if c.persist != nil {
		if err := c.persist.shutdown(ctx); err != nil {
			return err
		}
	}

	var err error
	if c.storage != nil {
		c.closeOnce.Do(func() {
			err = c.storage.Close()
		})
	}

	return err
}

// =============================================================================

// CreateGenesis mines and appends the genesis block. It can only succeed on
// a chain that has no blocks.
func (c *Chain) CreateGenesis(ctx context.Context) (Block, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if len(c.snapshot()) > 0 {
		return Block{}, ErrGenesisExists
	}

	c.evHandler("chain: CreateGenesis: started")
	defer c.evHandler("chain: CreateGenesis: completed")

	block := Block{
		Index:     0,
		TimeStamp: uint64(c.now().UTC().Unix()),
		Payload:   clonePayload(c.genesisPayload),
		PrevHash:  GenesisPrevHash,
	}

	return c.mineAndAppend(ctx, block)
}

// AddBlock mines a new block holding the payload on top of the current head
// and appends it. Calls are serialized, the returned block is the one that
// was appended.
func (c *Chain) AddBlock(ctx context.Context, payload Payload) (Block, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	blocks := c.snapshot()
	if len(blocks) == 0 {
		return Block{}, ErrNotInitialized
	}
	head := blocks[len(blocks)-1]

	c.evHandler("chain: AddBlock: started: blk[%d]", len(blocks))
	defer c.evHandler("chain: AddBlock: completed")

	normalized, err := normalizePayload(payload)
	if err != nil {
		return Block{}, err
	}

	block := Block{
		Index:     uint64(len(blocks)),
		TimeStamp: uint64(c.now().UTC().Unix()),
		Payload:   normalized,
		PrevHash:  head.Hash,
	}

	return c.mineAndAppend(ctx, block)
}

// mineAndAppend performs the proof of work and publishes the block. The
// caller must hold the write lock.
func (c *Chain) mineAndAppend(ctx context.Context, block Block) (Block, error) {
	if err := Mine(ctx, &block, c.difficulty, c.hasher, c.evHandler); err != nil {
		return Block{}, err
	}

	// Readers only get to see the block once the work is done.
	c.mu.Lock()
	c.blocks = append(c.blocks, block)
	c.mu.Unlock()

	if c.persist != nil {
		c.persist.enqueue(block)
	}

	return block.clone(), nil
}

// =============================================================================

// Latest returns the head of the chain. The zero Block is returned before
// the genesis block exists.
func (c *Chain) Latest() Block {
	blocks := c.snapshot()
	if len(blocks) == 0 {
		return Block{}
	}

	return blocks[len(blocks)-1].clone()
}

// Blocks returns a copy of the entire chain in order.
func (c *Chain) Blocks() []Block {
	blocks := c.snapshot()

	out := make([]Block, len(blocks))
	for i, block := range blocks {
		out[i] = block.clone()
	}

	return out
}

// BlockByIndex returns the block at the specified index.
func (c *Chain) BlockByIndex(index uint64) (Block, error) {
	blocks := c.snapshot()
	if index >= uint64(len(blocks)) {
		return Block{}, ErrBlockNotFound
	}

	return blocks[index].clone(), nil
}

// Len returns the number of blocks in the chain.
func (c *Chain) Len() int {
	return len(c.snapshot())
}

// Difficulty returns the number of leading zeros every block must solve for.
func (c *Chain) Difficulty() uint {
	return c.difficulty
}

// Hasher returns the hash algorithm used by the chain.
func (c *Chain) Hasher() digest.Hasher {
	return c.hasher
}

// Persistence reports how the chain is using its storage.
func (c *Chain) Persistence() PersistenceStatus {
	switch {
	case c.persist != nil:
		return c.persist.status()
	case c.storage != nil:
		return PersistenceStatus{Configured: true, Reason: c.loadFailed}
	}

	return PersistenceStatus{}
}

// Summary returns the aggregate state of the chain computed from a single
// snapshot.
func (c *Chain) Summary() Summary {
	blocks := c.snapshot()

	var latest Block
	if len(blocks) > 0 {
		latest = blocks[len(blocks)-1].clone()
	}

	return Summary{
		TotalBlocks:   len(blocks),
		IsValid:       verify(blocks, c.difficulty, c.hasher) == nil,
		Difficulty:    c.difficulty,
		HashAlgorithm: c.hasher.Name(),
		Encoding:      canonical.Version,
		LatestBlock:   latest,
		Persistence:   c.Persistence(),
	}
}

// snapshot returns the current blocks. Blocks are never modified once
// appended, so the capped slice can be read without holding the lock.
func (c *Chain) snapshot() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.blocks[:len(c.blocks):len(c.blocks)]
}
