package registry

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/GovIndexor/internal/codegen"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/pkg/manifest"
)

// ErrUnknownTemplate is returned when instantiating a template the manifest does not declare.
var ErrUnknownTemplate = errors.New("unknown template")

// Handler binds one ABI event of a source to a writer.
type Handler struct {
	Event abi.Event
	Fn    string
}

// Source is a contract watched from a start height.
type Source struct {
	Address common.Address
	Start   uint64
	ABI     string

	// Template is the template the source was instantiated from, empty for configured sources
	Template string

	handlers []Handler
	byTopic  map[common.Hash][]Handler
}

// HandlersFor returns the handlers bound to the event with the given topic0, in
// configuration order.
func (s *Source) HandlersFor(topic common.Hash) []Handler {
	return s.byTopic[topic]
}

// Handlers returns every handler of the source in configuration order.
func (s *Source) Handlers() []Handler {
	return slices.Clone(s.handlers)
}

// Instance is a template bound to an address at runtime.
type Instance struct {
	Namespace string         `meddler:"namespace" json:"namespace"`
	Template  string         `meddler:"template" json:"template"`
	Address   common.Address `meddler:"address,address" json:"address"`
	Start     uint64         `meddler:"start" json:"start"`

	// CreatedAt is the height of the block whose event created the instance
	CreatedAt uint64 `meddler:"created_at" json:"created_at"`

	// Seq orders instances of a namespace by creation
	Seq uint64 `meddler:"seq" json:"seq"`
}

type instanceKey struct {
	template string
	address  common.Address
}

type template struct {
	abi      string
	handlers []Handler
}

// Registry holds the sources of one namespace: the configured ones and those instantiated
// from templates.
type Registry struct {
	namespace string
	log       *logger.Logger

	abis      map[string]*abi.ABI
	templates map[string]template

	mu        sync.RWMutex
	static    int
	sources   []*Source
	byAddress map[common.Address][]*Source
	instances map[instanceKey]*Instance
	minStart  uint64
}

// New builds the registry of namespace from a merged manifest.
func New(namespace string, m manifest.Manifest, log *logger.Logger) (*Registry, error) {
	r := &Registry{
		namespace: namespace,
		log:       log,
		abis:      make(map[string]*abi.ABI, len(m.ABIs)),
		templates: make(map[string]template, len(m.Templates)),
		byAddress: make(map[common.Address][]*Source),
		instances: make(map[instanceKey]*Instance),
	}

	for name, abiJSON := range m.ABIs {
		parsed, err := abi.JSON(strings.NewReader(abiJSON))
		if err != nil {
			return nil, fmt.Errorf("abi %s: %w", name, err)
		}
		r.abis[name] = &parsed
	}

	for name, tmpl := range m.Templates {
		handlers, err := r.resolveEvents(tmpl.ABI, tmpl.Events)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		r.templates[name] = template{abi: tmpl.ABI, handlers: handlers}
	}

	for i, src := range m.Sources {
		if !common.IsHexAddress(src.Contract) {
			return nil, fmt.Errorf("source[%d]: invalid contract address %q", i, src.Contract)
		}

		handlers, err := r.resolveEvents(src.ABI, src.Events)
		if err != nil {
			return nil, fmt.Errorf("source[%d] (%s): %w", i, src.Contract, err)
		}

		r.add(newSource(common.HexToAddress(src.Contract), src.Start, src.ABI, "", handlers))
	}

	r.static = len(r.sources)
	r.minStart, _ = m.MinStart()

	return r, nil
}

func newSource(address common.Address, start uint64, abiName, tmpl string, handlers []Handler) *Source {
	src := &Source{
		Address:  address,
		Start:    start,
		ABI:      abiName,
		Template: tmpl,
		handlers: handlers,
		byTopic:  make(map[common.Hash][]Handler, len(handlers)),
	}

	for _, h := range handlers {
		src.byTopic[h.Event.ID] = append(src.byTopic[h.Event.ID], h)
	}

	return src
}

// resolveEvents looks up each configured event in the named ABI. A full signature
// that the ABI lacks is synthesized from the signature text.
func (r *Registry) resolveEvents(abiName string, events []manifest.Event) ([]Handler, error) {
	contractABI, ok := r.abis[abiName]
	if !ok {
		return nil, fmt.Errorf("unknown abi %q", abiName)
	}

	handlers := make([]Handler, 0, len(events))
	for _, ev := range events {
		event, err := codegen.ResolveEvent(contractABI, ev.Name)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.Name, err)
		}

		handlers = append(handlers, Handler{Event: event, Fn: ev.Fn})
	}

	return handlers, nil
}

func (r *Registry) add(src *Source) {
	r.sources = append(r.sources, src)
	r.byAddress[src.Address] = append(r.byAddress[src.Address], src)
}

// Namespace returns the namespace the registry serves.
func (r *Registry) Namespace() string {
	return r.namespace
}

// MinStart returns the lowest start height of the configured sources, zero when there are none.
func (r *Registry) MinStart() uint64 {
	return r.minStart
}

// HandlerNames returns the sorted, distinct writer names of the configured sources and
// of every template.
func (r *Registry) HandlerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, src := range r.sources[:r.static] {
		for _, h := range src.handlers {
			seen[h.Fn] = struct{}{}
		}
	}
	for _, tmpl := range r.templates {
		for _, h := range tmpl.handlers {
			seen[h.Fn] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(seen))
}

// Match returns the sources of address that are active at height, in registration order.
func (r *Registry) Match(address common.Address, height uint64) []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Source
	for _, src := range r.byAddress[address] {
		if src.Start <= height {
			matched = append(matched, src)
		}
	}

	return matched
}

// Sources returns a snapshot of all sources in registration order.
func (r *Registry) Sources() []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.sources)
}

// Instances returns the template instances in creation order.
func (r *Registry) Instances() []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Instance, 0, len(r.sources)-r.static)
	for _, src := range r.sources[r.static:] {
		out = append(out, *r.instances[instanceKey{template: src.Template, address: src.Address}])
	}

	return out
}

// Instantiate binds template to address from start on. created is false when the pair was
// already instantiated, in which case the existing instance is returned and nothing changes.
func (r *Registry) Instantiate(tmplName string, address common.Address, start, createdAt uint64) (*Instance, bool, error) {
	tmpl, ok := r.templates[tmplName]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownTemplate, tmplName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := instanceKey{template: tmplName, address: address}
	if existing, ok := r.instances[key]; ok {
		return existing, false, nil
	}

	inst := &Instance{
		Namespace: r.namespace,
		Template:  tmplName,
		Address:   address,
		Start:     start,
		CreatedAt: createdAt,
		Seq:       uint64(len(r.sources) - r.static),
	}

	r.instances[key] = inst
	r.add(newSource(address, start, tmpl.abi, tmplName, tmpl.handlers))

	r.log.Infof("instantiated template %s at %s from height %d", tmplName, address.Hex(), start)

	return inst, true, nil
}

// Restore registers previously persisted instances in their creation order.
func (r *Registry) Restore(instances []Instance) error {
	sorted := slices.Clone(instances)
	slices.SortStableFunc(sorted, func(a, b Instance) int {
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		return cmp.Compare(a.CreatedAt, b.CreatedAt)
	})

	for _, inst := range sorted {
		if inst.Namespace != "" && inst.Namespace != r.namespace {
			return fmt.Errorf("instance of %s belongs to namespace %s", inst.Address.Hex(), inst.Namespace)
		}
		if _, _, err := r.Instantiate(inst.Template, inst.Address, inst.Start, inst.CreatedAt); err != nil {
			return fmt.Errorf("restore %s at %s: %w", inst.Template, inst.Address.Hex(), err)
		}
	}

	return nil
}

// Discard removes instances, typically those created by a block that failed to commit.
func (r *Registry) Discard(instances []*Instance) {
	if len(instances) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[instanceKey]struct{}, len(instances))
	for _, inst := range instances {
		key := instanceKey{template: inst.Template, address: inst.Address}
		if _, ok := r.instances[key]; !ok {
			continue
		}
		drop[key] = struct{}{}
		delete(r.instances, key)
	}

	keep := func(src *Source) bool {
		if src.Template == "" {
			return true
		}
		_, dropped := drop[instanceKey{template: src.Template, address: src.Address}]
		return !dropped
	}

	r.sources = slices.DeleteFunc(r.sources, func(src *Source) bool { return !keep(src) })
	for addr, srcs := range r.byAddress {
		srcs = slices.DeleteFunc(srcs, func(src *Source) bool { return !keep(src) })
		if len(srcs) == 0 {
			delete(r.byAddress, addr)
			continue
		}
		r.byAddress[addr] = srcs
	}

	r.log.Debugf("discarded %d template instances", len(drop))
}
