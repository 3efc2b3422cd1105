package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Print the genesis settings in use.",
	RunE:  genesisRun,
}

func init() {
	rootCmd.AddCommand(genesisCmd)
}

func genesisRun(cmd *cobra.Command, args []string) error {
	gen, err := loadGenesis()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(gen)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
