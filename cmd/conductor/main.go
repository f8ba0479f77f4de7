package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"conductor/internal/infra/config"
	"conductor/internal/infra/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "conductor",
		Short: "Run tool-using LLM agents and let them delegate to each other",
		Long: `conductor runs language-model agents that call tools in a bounded loop
and hand sub-tasks to other agents.

Configuration is read from config.yaml (or --config); CONDUCTOR_* environment
variables override it. Secrets written as enc:... are decrypted with
CONDUCTOR_CONFIG_KEY.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "config file path")

	root.AddCommand(
		newRunCmd(opts),
		newAgentsCmd(opts),
		newToolsCmd(opts),
		newModelsCmd(opts),
		newEncryptCmd(),
		newVersionCmd(),
	)
	return root
}

// loadRuntime reads the config and builds the logger. The returned closer
// flushes a file-backed log output.
func loadRuntime(opts *rootOptions) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, func() { _ = closeLog() }, nil
}
