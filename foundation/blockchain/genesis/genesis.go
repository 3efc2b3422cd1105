// Package genesis maintains access to the genesis file.
package genesis

import (
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
	"github.com/ardanlabs/powchain/foundation/blockchain/digest"
	"gopkg.in/yaml.v3"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time      `yaml:"date"`
	Name          string         `yaml:"name"`           // Name of this chain, shown in summaries and logs.
	Difficulty    uint           `yaml:"difficulty"`     // How difficult it needs to be to solve the work problem.
	HashAlgorithm string         `yaml:"hash_algorithm"` // Digest used for block hashes: sha256 or keccak256.
	Payload       map[string]any `yaml:"payload"`        // Data recorded by the genesis block.
}

// Default returns the genesis used when no file is provided.
func Default() Genesis {
	return Genesis{
		Name:          "powchain",
		Difficulty:    chain.DefaultDifficulty,
		HashAlgorithm: digest.Default.Name(),
		Payload:       chain.DefaultGenesisPayload(),
	}
}

// =============================================================================

// Load opens and consumes the genesis file. Fields missing from the file
// keep their default values.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	genesis := Default()
	genesis.Payload = nil

	if err := yaml.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("parsing genesis %s: %w", path, err)
	}

	if genesis.Payload == nil {
		genesis.Payload = chain.DefaultGenesisPayload()
	}

	if _, err := genesis.Hasher(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Hasher returns the digest named by the genesis.
func (g Genesis) Hasher() (digest.Hasher, error) {
	return digest.Lookup(g.HashAlgorithm)
}

// ChainConfig returns the chain settings described by the genesis. Storage
// and retry settings are left for the caller.
func (g Genesis) ChainConfig() (chain.Config, error) {
	hasher, err := g.Hasher()
	if err != nil {
		return chain.Config{}, err
	}

	cfg := chain.Config{
		Difficulty:     g.Difficulty,
		Hasher:         hasher,
		GenesisPayload: chain.Payload(g.Payload),
	}

	return cfg, nil
}
