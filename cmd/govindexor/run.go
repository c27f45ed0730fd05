package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goran-ethernal/GovIndexor/internal/common"
	internalconfig "github.com/goran-ethernal/GovIndexor/internal/config"
	"github.com/goran-ethernal/GovIndexor/internal/indexer"
	"github.com/goran-ethernal/GovIndexor/internal/metrics"
	"github.com/goran-ethernal/GovIndexor/internal/notify"
	"github.com/goran-ethernal/GovIndexor/internal/registry"
	"github.com/goran-ethernal/GovIndexor/internal/rpc"
	"github.com/goran-ethernal/GovIndexor/internal/storage"
	"github.com/goran-ethernal/GovIndexor/pkg/api"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/goran-ethernal/GovIndexor/pkg/protocol"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Index every configured network",
	Long: `Run the indexing loop of every configured network until interrupted. A network whose
writer fails halts at the failing block while the others keep running.`,
	RunE: runIndexer,
}

func runIndexer(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := internalconfig.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	log := componentLogger(cfg, common.ComponentIndexer)

	log.Infof("Opening %s storage...", cfg.Storage.Driver)
	backend, err := storage.Open(ctx, cfg.Storage, componentLogger(cfg, common.ComponentStorage))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warnf("Failed to close storage: %v", err)
		}
	}()

	if err := backend.Start(ctx); err != nil {
		return fmt.Errorf("failed to start storage: %w", err)
	}

	notifier, err := notify.New(ctx, cfg.Notifier, componentLogger(cfg, common.ComponentNotifier))
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			log.Warnf("Failed to close notifier: %v", err)
		}
	}()

	group := indexer.NewGroup()
	for _, network := range cfg.Networks {
		ix, closeReader, err := buildIndexer(ctx, cfg, network, backend, notifier)
		if err != nil {
			return fmt.Errorf("network %s: %w", network.Namespace, err)
		}
		defer closeReader()

		if err := group.Add(ix); err != nil {
			return err
		}
		log.Infof("✓ Registered namespace: %s (%d protocol(s), from block %d)",
			network.Namespace, len(network.Protocols), ix.StartHeight())
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, group.Healthy, componentLogger(cfg, common.ComponentMetrics))
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(context.Background()); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
		log.Infof("Metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, group, backend, componentLogger(cfg, common.ComponentAPI))
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				log.Errorf("API server error: %v", err)
			}
		}()
	}

	log.Info("Starting GovIndexor...")

	if err := group.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("indexing failed: %w", err)
	}

	log.Info("GovIndexor stopped successfully")
	return nil
}

// buildIndexer wires the indexer of one network. The returned func closes its chain reader.
func buildIndexer(ctx context.Context, cfg *config.Config, network config.NetworkConfig,
	backend storage.Backend, notifier notify.Notifier) (*indexer.Indexer, func(), error) {
	comp, err := protocol.Compose(network.Protocols, componentLogger(cfg, common.ComponentProtocol))
	if err != nil {
		return nil, nil, err
	}

	reg, err := registry.New(network.Namespace, comp.Manifest,
		componentLogger(cfg, common.ComponentRegistry).WithNamespace(network.Namespace))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build source registry: %w", err)
	}

	dispatcher, err := indexer.NewDispatcher(reg, comp.Writers, comp.Prefixes,
		componentLogger(cfg, common.ComponentDispatcher).WithNamespace(network.Namespace))
	if err != nil {
		return nil, nil, err
	}

	reader, err := rpc.Dial(ctx, network, componentLogger(cfg, common.ComponentRPCClient).WithNamespace(network.Namespace))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", network.RPCURL, err)
	}

	ix := indexer.New(network, reader, backend, reg, dispatcher, notifier,
		componentLogger(cfg, common.ComponentIndexer).WithNamespace(network.Namespace))

	return ix, reader.Close, nil
}
