package protocol

import (
	"fmt"
	"maps"
	"slices"

	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/goran-ethernal/GovIndexor/pkg/manifest"
	"github.com/goran-ethernal/GovIndexor/pkg/writer"
)

// Protocol is a pluggable module: the contracts it watches and the writers that apply
// their events. Writer names in Manifest refer to keys of Writers.
type Protocol struct {
	Name     string
	Manifest manifest.Manifest
	Writers  map[string]writer.Func
}

// Validate checks that every handler referenced by the manifest has a writer.
func (p *Protocol) Validate() error {
	for _, fn := range p.Manifest.Handlers() {
		if _, ok := p.Writers[fn]; !ok {
			return fmt.Errorf("protocol %s: no writer for handler %q", p.Name, fn)
		}
	}

	return nil
}

// Composition is the merged view of all protocols enabled on a network.
type Composition struct {
	Manifest manifest.Manifest
	Writers  map[string]writer.Func

	// Prefixes maps each handler name to the prefix of the protocol it came from
	Prefixes map[string]string
}

// Compose instantiates the enabled protocols in order and merges them, namespacing every
// handler, template and ABI with the protocol's prefix.
func Compose(cfgs []config.ProtocolConfig, log *logger.Logger) (*Composition, error) {
	manifests := make([]manifest.Manifest, 0, len(cfgs))
	comp := &Composition{
		Writers:  make(map[string]writer.Func),
		Prefixes: make(map[string]string),
	}

	for _, cfg := range cfgs {
		p, err := Create(cfg.Type, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("create protocol %s: %w", cfg.Type, err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}

		manifests = append(manifests, p.Manifest.WithPrefix(cfg.Prefix))

		for _, name := range slices.Sorted(maps.Keys(p.Writers)) {
			full := manifest.ApplyPrefix(cfg.Prefix, name)
			if _, exists := comp.Writers[full]; exists {
				return nil, fmt.Errorf("protocol %s: writer %q collides with another protocol", cfg.Type, full)
			}
			comp.Writers[full] = p.Writers[name]
			comp.Prefixes[full] = cfg.Prefix
		}
	}

	merged, err := manifest.Merge(manifests...)
	if err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("invalid merged manifest: %w", err)
	}

	comp.Manifest = merged

	return comp, nil
}
