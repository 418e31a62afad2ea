// Package commands defines all Cobra CLI commands for the docbot binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/safemobile/docbot/internal/audit"
	"github.com/safemobile/docbot/internal/config"
	"github.com/safemobile/docbot/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docbot",
		Short: "SafeMobile documentation assistant powered by retrieval-augmented generation",
		Long: `docbot answers questions about the UEM SafeMobile system by searching the
product documentation index and generating grounded answers with an LLM.

It can answer a one-off question from the command line, serve an HTTP API,
or run as a Telegram bot with feedback collection.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.docbot/config.yaml).
See 'docbot --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docbot/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewBotCmd(),
		NewVersionCmd(),
	)

	return root
}
