package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/goran-ethernal/GovIndexor/internal/common"
	internalconfig "github.com/goran-ethernal/GovIndexor/internal/config"
	"github.com/goran-ethernal/GovIndexor/internal/storage"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or move network checkpoints",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show [namespace...]",
	Short: "Show the checkpoint of configured networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, backend, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer backend.Close()

		namespaces := args
		if len(namespaces) == 0 {
			for _, n := range cfg.Networks {
				namespaces = append(namespaces, n.Namespace)
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0) //nolint:mnd
		fmt.Fprintln(w, "NAMESPACE\tHEIGHT\tBLOCK HASH\tUPDATED")

		for _, ns := range namespaces {
			cp, err := backend.Checkpoints().Get(cmd.Context(), ns)
			if err != nil {
				return err
			}
			if cp == nil {
				fmt.Fprintf(w, "%s\t-\t-\t-\n", ns)
				continue
			}

			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", ns, cp.Height, cp.BlockHash.Hex(),
				time.Unix(cp.UpdatedAt, 0).UTC().Format(time.RFC3339))
		}

		return w.Flush()
	},
}

var checkpointSetCmd = &cobra.Command{
	Use:   "set <namespace> <height>",
	Short: "Move the checkpoint of a network",
	Long: `Set the checkpoint of a network to height, so that indexing resumes at height+1.
Use it to skip a block a writer cannot apply or to re-index from an earlier block.
Stop the indexer before running it.`,
	Args: cobra.ExactArgs(2), //nolint:mnd
	RunE: func(cmd *cobra.Command, args []string) error {
		namespace := args[0]
		height, err := common.ParseUint64orHex(&args[1])
		if err != nil {
			return fmt.Errorf("invalid height %q: %w", args[1], err)
		}

		cfg, backend, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer backend.Close()

		if _, ok := cfg.Network(namespace); !ok {
			return fmt.Errorf("namespace %s is not configured", namespace)
		}

		prev, err := backend.Checkpoints().Get(cmd.Context(), namespace)
		if err != nil {
			return err
		}

		if err := backend.Checkpoints().Reset(cmd.Context(), namespace, height); err != nil {
			return err
		}

		log := componentLogger(cfg, common.ComponentCheckpoint).WithNamespace(namespace)
		if prev != nil {
			log.Warnw("checkpoint moved", "from", prev.Height, "to", height)
		} else {
			log.Warnw("checkpoint created", "height", height)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "checkpoint of %s set to %d, indexing resumes at %d\n",
			namespace, height, height+1)

		return nil
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointSetCmd)
}

func openStorage(ctx context.Context) (*config.Config, storage.Backend, error) {
	cfg, err := internalconfig.LoadFromFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	backend, err := storage.Open(ctx, cfg.Storage, componentLogger(cfg, common.ComponentStorage))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	return cfg, backend, nil
}
