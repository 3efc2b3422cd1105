package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/storage/disk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every block stored on disk.",
	RunE:  listRun,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func listRun(cmd *cobra.Command, args []string) error {
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
		fmt.Fprint(cmd.OutOrStdout(), pterm.Warning.Sprintfln("no blocks found in %s", dbPath))
		return nil
	}

	data := pterm.TableData{
		{"Index", "Time", "Nonce", "Previous", "Hash", "Payload"},
	}
	for _, rec := range records {
		data = append(data, []string{
			strconv.FormatUint(rec.Index, 10),
			time.Unix(int64(rec.TimeStamp), 0).UTC().Format(time.RFC3339),
			strconv.FormatUint(rec.Nonce, 10),
			short(rec.PrevHash),
			short(rec.Hash),
			rec.Payload,
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}

// short trims a hash for display.
func short(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "..."
}
