package indexer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	internalcommon "github.com/goran-ethernal/GovIndexor/internal/common"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/internal/metrics"
	"github.com/goran-ethernal/GovIndexor/internal/registry"
	"github.com/goran-ethernal/GovIndexor/pkg/chain"
	"github.com/goran-ethernal/GovIndexor/pkg/entity"
	"github.com/goran-ethernal/GovIndexor/pkg/writer"
)

// Dispatcher routes the logs of a block to the writers bound to them.
// Writers run one at a time: transactions in index order, logs in log index order and,
// for a log matched by several sources or handlers, in registration order.
type Dispatcher struct {
	namespace string
	registry  *registry.Registry
	writers   map[string]writer.Func
	prefixes  map[string]string

	log       *logger.Logger
	writerLog *logger.Logger
}

// NewDispatcher binds the handlers of reg to writers. prefixes maps a handler name to the
// prefix of the protocol that owns it and may be nil. Every handler of reg, templates
// included, must have a writer.
func NewDispatcher(reg *registry.Registry, writers map[string]writer.Func, prefixes map[string]string,
	log *logger.Logger) (*Dispatcher, error) {
	for _, name := range reg.HandlerNames() {
		if _, ok := writers[name]; !ok {
			return nil, fmt.Errorf("no writer registered for handler %q", name)
		}
	}

	return &Dispatcher{
		namespace: reg.Namespace(),
		registry:  reg,
		writers:   writers,
		prefixes:  prefixes,
		log:       log.WithComponent(internalcommon.ComponentDispatcher),
		writerLog: log.WithComponent(internalcommon.ComponentProtocol),
	}, nil
}

// DispatchBlock applies every matched log of block through store. The first writer
// failure stops the block and is returned as a *writer.FailedError.
func (d *Dispatcher) DispatchBlock(ctx context.Context, block *chain.Block, store entity.Store,
	registrar writer.TemplateRegistrar) error {
	dispatched := 0

	for ti := range block.Transactions {
		tx := &block.Transactions[ti]

		for li := range tx.Logs {
			log := &tx.Logs[li]
			if len(log.Topics) == 0 {
				continue
			}

			// matched per log so that instances created earlier in the block take part
			for _, src := range d.registry.Match(log.Address, block.Number) {
				for _, h := range src.HandlersFor(log.Topics[0]) {
					if err := ctx.Err(); err != nil {
						return err
					}

					if err := d.dispatch(ctx, block, tx, log, h, store, registrar); err != nil {
						return err
					}
					dispatched++
				}
			}
		}
	}

	if dispatched > 0 {
		d.log.Debugf("block %d: dispatched %d events", block.Number, dispatched)
	}

	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, block *chain.Block, tx *chain.Transaction, log *types.Log,
	h registry.Handler, store entity.Store, registrar writer.TemplateRegistrar) error {
	fail := func(cause error) error {
		metrics.WriterFailuresInc(d.namespace, h.Fn)
		return &writer.FailedError{
			Namespace: d.namespace,
			Height:    block.Number,
			Handler:   h.Fn,
			TxHash:    tx.Hash,
			LogIndex:  log.Index,
			Cause:     cause,
		}
	}

	event, err := DecodeEvent(h.Event, log)
	if err != nil {
		return fail(err)
	}

	wc := writer.NewContext(writer.Context{
		Namespace: d.namespace,
		Height:    block.Number,
		Handler:   h.Fn,
		Block:     block,
		Tx:        tx,
		Log:       log,
		Event:     event,
		Store:     store,
		Logger:    d.writerLog,
	}, d.prefixes[h.Fn], registrar)

	if err := invoke(ctx, d.writers[h.Fn], wc); err != nil {
		return fail(err)
	}

	metrics.EventsDispatchedInc(d.namespace, h.Fn)

	return nil
}

// invoke runs fn, turning a panic into an error.
func invoke(ctx context.Context, fn writer.Func, wc *writer.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("writer panicked: %v", r)
		}
	}()

	return fn(ctx, wc)
}

// DecodeEvent decodes log as event: non-indexed arguments from the data, indexed ones
// from the topics after topic0.
func DecodeEvent(event abi.Event, log *types.Log) (*writer.Event, error) {
	args := make(map[string]any, len(event.Inputs))

	if err := event.Inputs.UnpackIntoMap(args, log.Data); err != nil {
		return nil, fmt.Errorf("failed to decode %s data: %w", event.Sig, err)
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}

	topics := []common.Hash{}
	if len(log.Topics) > 1 {
		topics = log.Topics[1:]
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, topics); err != nil {
		return nil, fmt.Errorf("failed to decode %s topics: %w", event.Sig, err)
	}

	return &writer.Event{
		Name:      event.RawName,
		Signature: event.Sig,
		Args:      args,
	}, nil
}

// blockRegistrar instantiates templates on behalf of the writers of one block and
// remembers the instances it created, so they can be persisted with the block or
// discarded when the block fails.
type blockRegistrar struct {
	registry *registry.Registry
	height   uint64
	created  []*registry.Instance
}

func newBlockRegistrar(reg *registry.Registry, height uint64) *blockRegistrar {
	return &blockRegistrar{registry: reg, height: height}
}

func (b *blockRegistrar) RegisterTemplate(_ context.Context, template string, address common.Address, start uint64) error {
	inst, created, err := b.registry.Instantiate(template, address, start, b.height)
	if err != nil {
		return err
	}

	if created {
		b.created = append(b.created, inst)
		metrics.TemplateInstancesInc(b.registry.Namespace(), template)
	}

	return nil
}
