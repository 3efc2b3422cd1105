// Package disk implements the ability to read and write blocks to disk, one
// file per block.
package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
)

// Disk represents the storage implementation for reading and storing blocks
// in their own separate files on disk. This implements the chain.Storage
// interface.
type Disk struct {
	dbPath string
}

// New constructs a Disk value for use, creating the folder if needed.
func New(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, err
	}

	return &Disk{dbPath: dbPath}, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new block and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// Save stores the block on disk in a file labeled with the block index. The
// file is written under a temporary name first so a crash never leaves a
// partial block behind.
func (d *Disk) Save(ctx context.Context, blockData chain.BlockData) error {
	if blockData.Index > 0 {
		if _, err := os.Stat(d.getPath(blockData.Index - 1)); err != nil {
			return fmt.Errorf("block %d is out of order: %w", blockData.Index, err)
		}
	}

	// Marshal the block for writing to disk in a more human readable format.
	data, err := json.MarshalIndent(blockData, "", "  ")
	if err != nil {
		return err
	}

	tmp := d.getPath(blockData.Index) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmp, d.getPath(blockData.Index))
}

// Load reads every block on disk starting with block 0 until the first
// missing file.
func (d *Disk) Load(ctx context.Context) ([]chain.BlockData, error) {
	var blocks []chain.BlockData

	iter := d.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		blocks = append(blocks, blockData)
	}

	return blocks, nil
}

// GetBlock searches the blockchain on disk to locate and return the
// contents of the specified block by index.
func (d *Disk) GetBlock(index uint64) (chain.BlockData, error) {

	// Open the block file for the specified index.
	f, err := os.Open(d.getPath(index))
	if err != nil {
		return chain.BlockData{}, err
	}
	defer f.Close()

	// Decode the contents of the block.
	var blockData chain.BlockData
	if err := json.NewDecoder(f).Decode(&blockData); err != nil {
		return chain.BlockData{}, fmt.Errorf("block %d: %w", index, err)
	}

	if blockData.Index != index {
		return chain.BlockData{}, fmt.Errorf("file for block %d holds block %d", index, blockData.Index)
	}

	return blockData, nil
}

// ForEach returns an iterator to walk through all the blocks on disk
// starting with block 0.
func (d *Disk) ForEach() *Iterator {
	return &Iterator{disk: d}
}

// getPath forms the path to the specified block.
func (d *Disk) getPath(index uint64) string {
	return filepath.Join(d.dbPath, strconv.FormatUint(index, 10)+".json")
}

// =============================================================================

// Iterator represents the iteration implementation for walking through and
// reading blocks on disk.
type Iterator struct {
	disk    *Disk  // Access to the disk storage API.
	current uint64 // Current block index being iterated over.
	eoc     bool   // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from disk.
func (it *Iterator) Next() (chain.BlockData, error) {
	if it.eoc {
		return chain.BlockData{}, errors.New("end of chain")
	}

	blockData, err := it.disk.GetBlock(it.current)
	if errors.Is(err, fs.ErrNotExist) {
		it.eoc = true
		return chain.BlockData{}, nil
	}
	it.current++

	return blockData, err
}

// Done returns the end of chain value.
func (it *Iterator) Done() bool {
	return it.eoc
}
