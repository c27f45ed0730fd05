package writer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/pkg/chain"
	"github.com/goran-ethernal/GovIndexor/pkg/entity"
	"github.com/goran-ethernal/GovIndexor/pkg/manifest"
)

// Func applies one decoded event to the entity store.
// Writers run strictly one at a time per namespace, in chain order.
type Func func(ctx context.Context, wc *Context) error

// TemplateRegistrar instantiates templates on behalf of writers.
type TemplateRegistrar interface {
	// RegisterTemplate starts watching address with the named template from start on.
	// Registering an already known (template, address) pair is a no-op.
	RegisterTemplate(ctx context.Context, template string, address common.Address, start uint64) error
}

// Context is what a writer receives for a single event.
type Context struct {
	Namespace string
	Height    uint64
	Handler   string

	Block *chain.Block
	Tx    *chain.Transaction
	Log   *types.Log
	Event *Event

	Store  entity.Store
	Logger *logger.Logger

	prefix    string
	registrar TemplateRegistrar
}

// NewContext returns a copy of base bound to a protocol prefix and a template registrar.
func NewContext(base Context, prefix string, registrar TemplateRegistrar) *Context {
	wc := base
	wc.prefix = prefix
	wc.registrar = registrar

	return &wc
}

// RegisterTemplate instantiates a template of the writer's own protocol. name is given
// without the protocol prefix.
func (c *Context) RegisterTemplate(ctx context.Context, name string, address common.Address, start uint64) error {
	if c.registrar == nil {
		return fmt.Errorf("template registration not available for %s", name)
	}

	return c.registrar.RegisterTemplate(ctx, manifest.ApplyPrefix(c.prefix, name), address, start)
}

// New returns a fresh entity in the writer's namespace.
func (c *Context) New(typ, id string) *entity.Entity {
	return entity.New(typ, id, c.Namespace)
}

// Load returns the entity from the writer's namespace or nil.
func (c *Context) Load(ctx context.Context, typ, id string) (*entity.Entity, error) {
	return c.Store.Load(ctx, typ, id, c.Namespace)
}

// Save upserts e.
func (c *Context) Save(ctx context.Context, e *entity.Entity) error {
	return c.Store.Save(ctx, e)
}

// FailedError reports a writer that failed to apply an event. It halts the namespace:
// the checkpoint stays below Height until the cause is resolved.
type FailedError struct {
	Namespace string
	Height    uint64
	Handler   string
	TxHash    common.Hash
	LogIndex  uint
	Cause     error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("writer %s failed in namespace %s at height %d (tx %s, log %d): %v",
		e.Handler, e.Namespace, e.Height, e.TxHash.Hex(), e.LogIndex, e.Cause)
}

func (e *FailedError) Unwrap() error {
	return e.Cause
}
