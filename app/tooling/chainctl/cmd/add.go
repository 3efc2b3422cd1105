package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var url string

var addCmd = &cobra.Command{
	Use:   "add [payload json]",
	Short: "Ask a running node to mine a block holding the payload.",
	Args:  cobra.ExactArgs(1),
	RunE:  addRun,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

func addRun(cmd *cobra.Command, args []string) error {
	// The payload is forwarded as written so numbers keep every digit.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(args[0]), &fields); err != nil {
		return fmt.Errorf("payload must be a json object: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("payload must be a json object")
	}

	body, err := json.Marshal(struct {
		Payload json.RawMessage `json:"payload"`
	}{
		Payload: json.RawMessage(args[0]),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url+"/v1/blocks", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		Block struct {
			Index uint64 `json:"index"`
			Nonce uint64 `json:"nonce"`
			Hash  string `json:"hash"`
		} `json:"block"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("node returned %d: %s", resp.StatusCode, result.Error)
	}

	fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintfln("Mined block %d: nonce %d hash %s", result.Block.Index, result.Block.Nonce, result.Block.Hash))
	return nil
}
