package disk_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "blocks")

	d, err := disk.New(dir)
	require.NoError(t, err)
	defer d.Close()

	empty, err := d.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	blocks := []chain.BlockData{
		{Index: 0, TimeStamp: 10, Payload: `{"type":"genesis"}`, PrevHash: "0", Hash: "00aa", Nonce: 3},
		{Index: 1, TimeStamp: 11, Payload: `{"amount":5}`, PrevHash: "00aa", Hash: "00bb", Nonce: 9},
		{Index: 2, TimeStamp: 12, Payload: `{"note":"é\n"}`, PrevHash: "00bb", Hash: "00cc", Nonce: 1},
	}
	for _, bd := range blocks {
		require.NoError(t, d.Save(ctx, bd))
	}

	got, err := d.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, blocks, got)

	one, err := d.GetBlock(1)
	require.NoError(t, err)
	assert.Equal(t, blocks[1], one)

	_, err = os.Stat(filepath.Join(dir, "2.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveOutOfOrder(t *testing.T) {
	d, err := disk.New(t.TempDir())
	require.NoError(t, err)

	err = d.Save(context.Background(), chain.BlockData{Index: 3})
	assert.Error(t, err)
}

func TestLoadCorruptBlock(t *testing.T) {
	dir := t.TempDir()

	d, err := disk.New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "0.json"), []byte("{not json"), 0600))

	_, err = d.Load(context.Background())
	assert.Error(t, err)
}
