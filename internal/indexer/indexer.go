package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	internalcommon "github.com/goran-ethernal/GovIndexor/internal/common"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/internal/metrics"
	"github.com/goran-ethernal/GovIndexor/internal/notify"
	"github.com/goran-ethernal/GovIndexor/internal/registry"
	"github.com/goran-ethernal/GovIndexor/internal/storage"
	"github.com/goran-ethernal/GovIndexor/pkg/chain"
	"github.com/goran-ethernal/GovIndexor/pkg/checkpoint"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
)

// State is the life cycle stage of a namespace indexer.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateRetrying State = "retrying"
	StateHalted   State = "halted"
	StateFinished State = "finished"
	StateStopped  State = "stopped"
)

// Status is a snapshot of an indexer, served by the operator API.
type Status struct {
	Namespace  string    `json:"namespace"`
	State      State     `json:"state"`
	NextHeight uint64    `json:"next_height"`
	Retries    uint64    `json:"retries"`
	LastError  string    `json:"last_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Indexer applies the blocks of one namespace in height order. It is the single writer of
// its namespace: blocks, and the events inside a block, are applied strictly one at a time.
type Indexer struct {
	cfg        config.NetworkConfig
	reader     chain.Reader
	backend    storage.Backend
	registry   *registry.Registry
	dispatcher *Dispatcher
	notifier   notify.Notifier
	log        *logger.Logger

	mu     sync.RWMutex
	status Status
}

// New wires an indexer for cfg.Namespace. notifier may be nil.
func New(cfg config.NetworkConfig, reader chain.Reader, backend storage.Backend, reg *registry.Registry,
	dispatcher *Dispatcher, notifier notify.Notifier, log *logger.Logger) *Indexer {
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Indexer{
		cfg:        cfg,
		reader:     reader,
		backend:    backend,
		registry:   reg,
		dispatcher: dispatcher,
		notifier:   notifier,
		log:        log.WithComponent(internalcommon.ComponentIndexer).WithNamespace(cfg.Namespace),
		status:     Status{Namespace: cfg.Namespace, State: StateStarting, UpdatedAt: time.Now()},
	}
}

// Namespace returns the namespace the indexer writes.
func (ix *Indexer) Namespace() string {
	return ix.cfg.Namespace
}

// Registry returns the source registry of the namespace.
func (ix *Indexer) Registry() *registry.Registry {
	return ix.registry
}

// Status returns a snapshot of the indexer state.
func (ix *Indexer) Status() Status {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return ix.status
}

func (ix *Indexer) setStatus(update func(*Status)) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	update(&ix.status)
	ix.status.UpdatedAt = time.Now()
}

// StartHeight returns the lowest height the namespace indexes: start_block when set,
// otherwise the lowest start of the configured sources.
func (ix *Indexer) StartHeight() uint64 {
	if ix.cfg.StartBlock > 0 {
		return ix.cfg.StartBlock
	}

	return ix.registry.MinStart()
}

// Run indexes until ctx is cancelled, end_block is passed or a block fails to apply.
// Unavailable blocks are retried forever with a fixed delay. A writer failure is returned
// as a *writer.FailedError with the checkpoint left on the last good block.
func (ix *Indexer) Run(ctx context.Context) (err error) {
	defer func() {
		ix.setStatus(func(s *Status) {
			switch {
			case err == nil:
				s.State = StateFinished
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				s.State = StateStopped
			default:
				s.State = StateHalted
				s.LastError = err.Error()
			}
		})
	}()

	if delay := ix.cfg.StartupDelay.Duration; delay > 0 {
		ix.log.Infof("waiting %v before indexing", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	instances, err := ix.backend.Instances(ctx, ix.cfg.Namespace)
	if err != nil {
		return fmt.Errorf("failed to load template instances: %w", err)
	}
	if err := ix.registry.Restore(instances); err != nil {
		return fmt.Errorf("failed to restore template instances: %w", err)
	}

	height, err := checkpoint.ResumeHeight(ctx, ix.backend.Checkpoints(), ix.cfg.Namespace, ix.StartHeight())
	if err != nil {
		return fmt.Errorf("failed to compute resume height: %w", err)
	}

	ix.log.Infow("indexer started",
		"height", height,
		"end_block", ix.cfg.EndBlock,
		"instances", len(instances),
		"atomic_blocks", ix.cfg.IsAtomic(),
	)

	for {
		if ix.cfg.EndBlock != 0 && height > ix.cfg.EndBlock {
			ix.log.Infof("reached end block %d", ix.cfg.EndBlock)
			return nil
		}

		ix.setStatus(func(s *Status) {
			s.State = StateRunning
			s.NextHeight = height
		})

		block, err := ix.fetch(ctx, height)
		if err != nil {
			return err
		}

		if err := ix.ProcessBlock(ctx, block); err != nil {
			ix.log.Errorf("halting at block %d: %v", height, err)
			return err
		}

		height++
	}
}

// fetch reads the block at height, waiting retry_delay between attempts for as long as
// the chain is unavailable. It only fails when ctx is done.
func (ix *Indexer) fetch(ctx context.Context, height uint64) (*chain.Block, error) {
	var block *chain.Block

	operation := func() error {
		b, err := ix.reader.FetchBlock(ctx, height)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return err
		}
		if b == nil {
			return chain.NewUnavailableError(height, errors.New("reader returned no block"))
		}
		if b.Number != height {
			return fmt.Errorf("reader returned block %d for height %d", b.Number, height)
		}

		block = b
		return nil
	}

	notifyRetry := func(err error, delay time.Duration) {
		metrics.FetchRetriesInc(ix.cfg.Namespace)
		ix.setStatus(func(s *Status) {
			s.State = StateRetrying
			s.Retries++
			s.LastError = err.Error()
		})
		ix.log.Warnf("block %d not fetched, retrying in %v: %v", height, delay, err)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(ix.cfg.RetryDelay.Duration), ctx)
	if err := backoff.RetryNotify(operation, b, notifyRetry); err != nil {
		return nil, err
	}

	return block, nil
}

// ProcessBlock applies block and advances the checkpoint to it. With atomic blocks every
// write of the block and the checkpoint commit together; otherwise writes land as they are
// made and the checkpoint is advanced last. On failure nothing is advanced and template
// instances created by the block are forgotten.
func (ix *Indexer) ProcessBlock(ctx context.Context, block *chain.Block) (err error) {
	start := time.Now()

	batch, err := ix.backend.Begin(ctx, block.Number, ix.cfg.IsAtomic())
	if err != nil {
		return fmt.Errorf("failed to begin block %d: %w", block.Number, err)
	}

	registrar := newBlockRegistrar(ix.registry, block.Number)

	defer func() {
		if err == nil {
			return
		}
		if rbErr := batch.Rollback(); rbErr != nil {
			ix.log.Warnf("rollback of block %d failed: %v", block.Number, rbErr)
		}
		ix.registry.Discard(registrar.created)
	}()

	if err = ix.dispatcher.DispatchBlock(ctx, block, batch.Entities(), registrar); err != nil {
		return err
	}

	for _, inst := range registrar.created {
		if err = batch.SaveInstance(ctx, *inst); err != nil {
			return fmt.Errorf("failed to save template instance %s at %s: %w", inst.Template, inst.Address.Hex(), err)
		}
	}

	if err = batch.Checkpoints().Advance(ctx, ix.cfg.Namespace, block.Number, block.Hash); err != nil {
		return fmt.Errorf("failed to advance checkpoint to %d: %w", block.Number, err)
	}

	if err = batch.Commit(); err != nil {
		return fmt.Errorf("failed to commit block %d: %w", block.Number, err)
	}

	ix.recordBlock(block, time.Since(start))

	if nErr := ix.notifier.BlockIndexed(ctx, ix.cfg.Namespace, block.Number, block.Hash); nErr != nil {
		metrics.NotifierFailuresInc(ix.cfg.Namespace)
		ix.log.Warnf("block %d notification failed: %v", block.Number, nErr)
	}

	return nil
}

func (ix *Indexer) recordBlock(block *chain.Block, elapsed time.Duration) {
	ns := ix.cfg.Namespace

	metrics.BlockProcessingTimeLog(ns, elapsed)
	metrics.BlocksProcessedInc(ns)
	metrics.LogsProcessedInc(ns, block.LogCount())
	metrics.LastCheckpointSet(ns, block.Number)

	seconds := elapsed.Seconds()
	if seconds == 0 {
		seconds = 1 // prevent division by zero
	}
	metrics.IndexingRateLog(ns, 1/seconds)

	ix.setStatus(func(s *Status) {
		s.NextHeight = block.Number + 1
		s.LastError = ""
	})

	if block.LogCount() > 0 {
		ix.log.Debugf("applied block %d with %d logs in %v", block.Number, block.LogCount(), elapsed)
	}
}
