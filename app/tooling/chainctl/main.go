// This program performs administrative tasks against a chain stored on disk.
package main

import (
	"fmt"
	"os"

	"github.com/ardanlabs/powchain/app/tooling/chainctl/cmd"
	"github.com/ardanlabs/powchain/foundation/logger"
)

func main() {

	// Construct the application logger. Command output goes to stdout so
	// the logs are kept on stderr.
	log, err := logger.New("CHAINCTL", "stderr")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cmd.Execute(); err != nil {
		log.Errorw("chainctl", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}
