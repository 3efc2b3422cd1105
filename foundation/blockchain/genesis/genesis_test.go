package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
	"github.com/ardanlabs/powchain/foundation/blockchain/digest"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
name: donations
difficulty: 3
hash_algorithm: keccak256
payload:
  type: genesis
  ngo:
    name: Shelter
    founded: 1999
`)

	g, err := genesis.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "donations", g.Name)
	assert.Equal(t, uint(3), g.Difficulty)
	assert.Equal(t, map[string]any{"name": "Shelter", "founded": 1999}, g.Payload["ngo"])

	cfg, err := g.ChainConfig()
	require.NoError(t, err)
	assert.Equal(t, digest.Keccak256, cfg.Hasher)
	assert.Equal(t, uint(3), cfg.Difficulty)
}

func TestLoadDefaults(t *testing.T) {
	g, err := genesis.Load(writeFile(t, "name: bare\n"))
	require.NoError(t, err)

	assert.Equal(t, uint(chain.DefaultDifficulty), g.Difficulty)
	assert.Equal(t, "sha256", g.HashAlgorithm)
	assert.Equal(t, map[string]any(chain.DefaultGenesisPayload()), g.Payload)
}

func TestLoadZeroDifficulty(t *testing.T) {
	g, err := genesis.Load(writeFile(t, "difficulty: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, uint(0), g.Difficulty)
}

func TestLoadErrors(t *testing.T) {
	_, err := genesis.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = genesis.Load(writeFile(t, "hash_algorithm: md5\n"))
	assert.Error(t, err)

	_, err = genesis.Load(writeFile(t, "difficulty: [1\n"))
	assert.Error(t, err)
}

func TestShippedGenesis(t *testing.T) {
	g, err := genesis.Load("../../../zblock/genesis.yaml")
	require.NoError(t, err)

	c, err := g.ChainConfig()
	require.NoError(t, err)

	blk, err := chain.New(t.Context(), c)
	require.NoError(t, err)
	assert.True(t, blk.Validate())
}
