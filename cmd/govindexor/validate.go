package main

import (
	"fmt"

	internalconfig "github.com/goran-ethernal/GovIndexor/internal/config"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/internal/registry"
	"github.com/goran-ethernal/GovIndexor/pkg/protocol"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration, compose the enabled protocols of every network and build its
source registry without connecting to any node or database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := internalconfig.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		log := logger.NewNopLogger()
		out := cmd.OutOrStdout()

		for _, network := range cfg.Networks {
			comp, err := protocol.Compose(network.Protocols, log)
			if err != nil {
				return fmt.Errorf("network %s: %w", network.Namespace, err)
			}

			reg, err := registry.New(network.Namespace, comp.Manifest, log)
			if err != nil {
				return fmt.Errorf("network %s: %w", network.Namespace, err)
			}

			fmt.Fprintf(out, "%s: %d source(s), %d template(s), %d handler(s), first block %d\n",
				network.Namespace, len(reg.Sources()), len(comp.Manifest.Templates), len(reg.HandlerNames()),
				reg.MinStart())
		}

		fmt.Fprintln(out, "configuration is valid")

		return nil
	},
}
