package indexer

import (
	"context"
	"fmt"
	"sync"

	"github.com/goran-ethernal/GovIndexor/internal/registry"
	"golang.org/x/sync/errgroup"
)

// Group runs the indexers of several namespaces side by side. Namespaces share nothing
// but the storage backend, so a namespace that halts leaves the others running.
type Group struct {
	mu       sync.RWMutex
	indexers []*Indexer
}

// NewGroup returns an empty group.
func NewGroup() *Group {
	return &Group{}
}

// Add registers an indexer. Namespaces must be unique.
func (g *Group) Add(ix *Indexer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, existing := range g.indexers {
		if existing.Namespace() == ix.Namespace() {
			return fmt.Errorf("namespace %s already registered", ix.Namespace())
		}
	}

	g.indexers = append(g.indexers, ix)

	return nil
}

// Indexers returns the registered indexers in registration order.
func (g *Group) Indexers() []*Indexer {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Indexer, len(g.indexers))
	copy(out, g.indexers)

	return out
}

// Get returns the indexer of namespace.
func (g *Group) Get(namespace string) (*Indexer, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, ix := range g.indexers {
		if ix.Namespace() == namespace {
			return ix, true
		}
	}

	return nil, false
}

// Statuses returns the status of every indexer in registration order.
func (g *Group) Statuses() []Status {
	indexers := g.Indexers()

	statuses := make([]Status, 0, len(indexers))
	for _, ix := range indexers {
		statuses = append(statuses, ix.Status())
	}

	return statuses
}

// Sources returns the sources watched by namespace, template instances included.
func (g *Group) Sources(namespace string) ([]*registry.Source, bool) {
	ix, ok := g.Get(namespace)
	if !ok {
		return nil, false
	}

	return ix.Registry().Sources(), true
}

// Healthy returns an error naming the first halted namespace, if any.
func (g *Group) Healthy() error {
	for _, status := range g.Statuses() {
		if status.State == StateHalted {
			return fmt.Errorf("namespace %s halted at height %d: %s", status.Namespace, status.NextHeight, status.LastError)
		}
	}

	return nil
}

// Run runs every indexer until each one returns and reports the first error. ctx is not
// cancelled when one namespace fails.
func (g *Group) Run(ctx context.Context) error {
	var eg errgroup.Group

	for _, ix := range g.Indexers() {
		eg.Go(func() error {
			if err := ix.Run(ctx); err != nil {
				return fmt.Errorf("namespace %s: %w", ix.Namespace(), err)
			}
			return nil
		})
	}

	return eg.Wait()
}
