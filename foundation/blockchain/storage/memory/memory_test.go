package memory_test

import (
	"context"
	"testing"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	blocks := []chain.BlockData{
		{Index: 0, TimeStamp: 10, Payload: `{"type":"genesis"}`, PrevHash: "0", Hash: "00aa", Nonce: 3},
		{Index: 1, TimeStamp: 11, Payload: `{"amount":5}`, PrevHash: "00aa", Hash: "00bb", Nonce: 9},
	}
	for _, bd := range blocks {
		require.NoError(t, m.Save(ctx, bd))
	}

	got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, blocks, got)
	assert.Equal(t, 2, m.Len())

	// The returned slice is a copy.
	got[0].Hash = "ffff"
	again, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "00aa", again[0].Hash)
}

func TestSaveOutOfOrder(t *testing.T) {
	m := memory.New()

	err := m.Save(context.Background(), chain.BlockData{Index: 1})
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}
