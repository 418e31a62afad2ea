// Command docbot is the entry point for the SafeMobile documentation
// assistant. It provides a CLI interface (via Cobra), an HTTP API server,
// and a Telegram bot frontend.
package main

import (
	"fmt"
	"os"

	"github.com/safemobile/docbot/cmd/docbot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
