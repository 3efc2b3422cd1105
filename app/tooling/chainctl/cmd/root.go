// Package cmd contains the chainctl commands.
package cmd

import (
	"errors"
	"os"

	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/spf13/cobra"
)

var (
	dbPath      string
	genesisPath string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "zblock/blocks", "Path to the directory holding the block files.")
	rootCmd.PersistentFlags().StringVarP(&genesisPath, "genesis", "g", "zblock/genesis.yaml", "Path to the genesis file.")
}

var rootCmd = &cobra.Command{
	Use:           "chainctl",
	Short:         "Inspect and verify a proof of work chain",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command named on the command line.
func Execute() error {
	return rootCmd.Execute()
}

// loadGenesis returns the genesis in use, falling back to the defaults when
// the file doesn't exist.
func loadGenesis() (genesis.Genesis, error) {
	gen, err := genesis.Load(genesisPath)
	if errors.Is(err, os.ErrNotExist) {
		return genesis.Default(), nil
	}

	return gen, err
}
