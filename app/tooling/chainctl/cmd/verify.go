package cmd

import (
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/disk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute every hash and check the chain links.",
	RunE:  verifyRun,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func verifyRun(cmd *cobra.Command, args []string) error {
	gen, err := loadGenesis()
	if err != nil {
		return err
	}

	hasher, err := gen.Hasher()
	if err != nil {
		return err
	}

	d, err := disk.New(dbPath)
	if err != nil {
		return err
	}
	defer d.Close()

	records, err := d.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading blocks: %w", err)
	}

	if len(records) == 0 {
		return fmt.Errorf("no blocks found in %s", dbPath)
	}

	out := cmd.OutOrStdout()

	blocks := make([]chain.Block, len(records))
	for i, rec := range records {
		b, err := chain.ToBlock(rec)
		if err != nil {
			fmt.Fprint(out, pterm.Error.Sprintfln("Blockchain has been tampered with: first invalid index %d", i))
			return fmt.Errorf("block %d: %w", i, err)
		}
		blocks[i] = b
	}

	if err := chain.VerifyBlocks(blocks, gen.Difficulty, hasher); err != nil {
		if ve, ok := chain.AsValidationError(err); ok {
			fmt.Fprint(out, pterm.Error.Sprintfln("Blockchain has been tampered with: first invalid index %d (%s)", ve.Index, ve.Violation))
		}
		return err
	}

	fmt.Fprint(out, pterm.Success.Sprintfln("Blockchain is valid: %d blocks, difficulty %d, %s", len(blocks), gen.Difficulty, hasher.Name()))
	return nil
}
