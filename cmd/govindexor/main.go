package main

import (
	"os"

	// Import built-in protocols to register them
	_ "github.com/goran-ethernal/GovIndexor/examples/protocols/governor"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║           GovIndexor v%s               ║
║     Governance Chain Indexing Service     ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "govindexor",
	Short: "GovIndexor - governance chain indexing service",
	Long: `GovIndexor follows one or more networks block by block, dispatches the events of
governance contracts to protocol writers and keeps the resulting entities and a
per-network checkpoint in a shared store.`,
	Version: version,
	RunE:    runIndexer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(configCmd)
}

// componentLogger returns the logger of component as configured in cfg.
func componentLogger(cfg *config.Config, component string) *logger.Logger {
	if cfg.Logging == nil {
		return logger.NewComponentLoggerFromConfig(component, nil)
	}

	return logger.NewComponentLoggerFromConfig(component, cfg.Logging)
}
