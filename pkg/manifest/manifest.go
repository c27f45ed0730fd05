package manifest

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/goran-ethernal/GovIndexor/internal/common"
)

// Event binds an event of a contract ABI to a named writer.
type Event struct {
	// Name is either the bare event name ("Transfer") or its full signature
	// ("Transfer(address,address,uint256)").
	Name string `yaml:"name" json:"name" toml:"name"`

	// Fn is the name of the writer invoked for the event
	Fn string `yaml:"fn" json:"fn" toml:"fn"`
}

// Source is a contract watched from a start height.
type Source struct {
	// Contract is the address of the contract
	Contract string `yaml:"contract" json:"contract" toml:"contract"`

	// Start is the first height at which events of this source are dispatched
	Start uint64 `yaml:"start" json:"start" toml:"start"`

	// ABI is the name of an entry in Manifest.ABIs
	ABI string `yaml:"abi" json:"abi" toml:"abi"`

	// Events lists the handled events
	Events []Event `yaml:"events" json:"events" toml:"events"`
}

// Template describes a source whose addresses are discovered at runtime.
type Template struct {
	ABI    string  `yaml:"abi" json:"abi" toml:"abi"`
	Events []Event `yaml:"events" json:"events" toml:"events"`
}

// Manifest lists the sources, templates and ABIs of one or more protocols.
type Manifest struct {
	Sources   []Source            `yaml:"sources" json:"sources" toml:"sources"`
	Templates map[string]Template `yaml:"templates,omitempty" json:"templates,omitempty" toml:"templates,omitempty"`

	// ABIs maps a name to a contract ABI in its JSON form
	ABIs map[string]string `yaml:"abis,omitempty" json:"abis,omitempty" toml:"abis,omitempty"`
}

// ApplyPrefix namespaces name with prefix. An empty prefix leaves name unchanged.
func ApplyPrefix(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return prefix + "_" + name
}

func prefixEvents(prefix string, events []Event) []Event {
	out := make([]Event, len(events))
	for i, ev := range events {
		out[i] = Event{Name: ev.Name, Fn: ApplyPrefix(prefix, ev.Fn)}
	}

	return out
}

// WithPrefix returns a copy of m in which every writer name, template name and ABI name
// carries prefix.
func (m Manifest) WithPrefix(prefix string) Manifest {
	out := Manifest{
		Sources:   make([]Source, len(m.Sources)),
		Templates: make(map[string]Template, len(m.Templates)),
		ABIs:      make(map[string]string, len(m.ABIs)),
	}

	for i, src := range m.Sources {
		out.Sources[i] = Source{
			Contract: src.Contract,
			Start:    src.Start,
			ABI:      ApplyPrefix(prefix, src.ABI),
			Events:   prefixEvents(prefix, src.Events),
		}
	}

	for name, tmpl := range m.Templates {
		out.Templates[ApplyPrefix(prefix, name)] = Template{
			ABI:    ApplyPrefix(prefix, tmpl.ABI),
			Events: prefixEvents(prefix, tmpl.Events),
		}
	}

	for name, abiJSON := range m.ABIs {
		out.ABIs[ApplyPrefix(prefix, name)] = abiJSON
	}

	return out
}

// Merge concatenates the sources of ms in order and unions their templates and ABIs.
// Duplicate template or ABI names are rejected; prefix the inputs first to avoid them.
func Merge(ms ...Manifest) (Manifest, error) {
	out := Manifest{
		Templates: make(map[string]Template),
		ABIs:      make(map[string]string),
	}

	for _, m := range ms {
		out.Sources = append(out.Sources, m.Sources...)

		for name, tmpl := range m.Templates {
			if _, exists := out.Templates[name]; exists {
				return Manifest{}, fmt.Errorf("duplicate template %q", name)
			}
			out.Templates[name] = tmpl
		}

		for name, abiJSON := range m.ABIs {
			if _, exists := out.ABIs[name]; exists {
				return Manifest{}, fmt.Errorf("duplicate abi %q", name)
			}
			out.ABIs[name] = abiJSON
		}
	}

	return out, nil
}

// Handlers returns the sorted, distinct writer names referenced by m.
func (m Manifest) Handlers() []string {
	seen := make(map[string]struct{})
	for _, src := range m.Sources {
		for _, ev := range src.Events {
			seen[ev.Fn] = struct{}{}
		}
	}
	for _, tmpl := range m.Templates {
		for _, ev := range tmpl.Events {
			seen[ev.Fn] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(seen))
}

// MinStart returns the lowest start height over the static sources. ok is false when
// there are none.
func (m Manifest) MinStart() (start uint64, ok bool) {
	for i, src := range m.Sources {
		if i == 0 || src.Start < start {
			start = src.Start
		}
	}

	return start, len(m.Sources) > 0
}

func validateEvents(where string, events []Event) error {
	if len(events) == 0 {
		return fmt.Errorf("%s: at least one event must be configured", where)
	}

	for i, ev := range events {
		if ev.Name == "" {
			return fmt.Errorf("%s, event[%d]: name is required", where, i)
		}
		if ev.Fn == "" {
			return fmt.Errorf("%s, event[%d] (%s): fn is required", where, i, ev.Name)
		}
	}

	return nil
}

// Validate checks that every reference in m resolves.
func (m Manifest) Validate() error {
	if len(m.Sources) == 0 && len(m.Templates) == 0 {
		return errors.New("manifest has no sources and no templates")
	}

	for i, src := range m.Sources {
		where := fmt.Sprintf("source[%d]", i)

		if _, err := common.ParseAddress(src.Contract); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		if _, ok := m.ABIs[src.ABI]; !ok {
			return fmt.Errorf("%s: unknown abi %q", where, src.ABI)
		}
		if err := validateEvents(where, src.Events); err != nil {
			return err
		}
	}

	for name, tmpl := range m.Templates {
		where := fmt.Sprintf("template %q", name)

		if name == "" {
			return errors.New("template name is required")
		}
		if _, ok := m.ABIs[tmpl.ABI]; !ok {
			return fmt.Errorf("%s: unknown abi %q", where, tmpl.ABI)
		}
		if err := validateEvents(where, tmpl.Events); err != nil {
			return err
		}
	}

	return nil
}
