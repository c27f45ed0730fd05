package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABIEvent builds the go-ethereum ABI event described by the signature. Its ID is the
// keccak hash of the canonical signature, the log topic0 of the event.
func (e *EventSignature) ABIEvent() (abi.Event, error) {
	args := make(abi.Arguments, len(e.Params))
	for i, param := range e.Params {
		typ, err := abi.NewType(param.Type, "", nil)
		if err != nil {
			return abi.Event{}, fmt.Errorf("parameter %s: %w", param.Name, err)
		}

		args[i] = abi.Argument{Name: param.Name, Type: typ, Indexed: param.Indexed}
	}

	return abi.NewEvent(e.Name, e.Name, false, args), nil
}

type abiInput struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed"`
}

type abiEntry struct {
	Type      string     `json:"type"`
	Name      string     `json:"name"`
	Anonymous bool       `json:"anonymous"`
	Inputs    []abiInput `json:"inputs"`
}

// ABIJSON renders events as a contract ABI in its JSON form. The result is checked by
// parsing it back with go-ethereum.
func ABIJSON(events []*EventSignature) (string, error) {
	entries := make([]abiEntry, 0, len(events))
	for _, ev := range events {
		inputs := make([]abiInput, len(ev.Params))
		for i, p := range ev.Params {
			inputs[i] = abiInput{Name: p.Name, Type: p.Type, Indexed: p.Indexed}
		}

		entries = append(entries, abiEntry{Type: "event", Name: ev.Name, Inputs: inputs})
	}

	out, err := json.MarshalIndent(entries, "", "\t")
	if err != nil {
		return "", err
	}

	parsed, err := abi.JSON(bytes.NewReader(out))
	if err != nil {
		return "", fmt.Errorf("invalid ABI: %w", err)
	}

	for _, ev := range events {
		if parsed.Events[ev.Name].ID != ev.Topic() {
			return "", fmt.Errorf("event %s: topic mismatch", ev.Name)
		}
	}

	return string(out), nil
}

// EventsFromABI returns a signature with parameter names for every event of a contract
// ABI, sorted by event name. Anonymous events have no topic to match and are skipped.
func EventsFromABI(r io.Reader) ([]string, error) {
	parsed, err := abi.JSON(r)
	if err != nil {
		return nil, fmt.Errorf("invalid ABI: %w", err)
	}

	names := slices.Sorted(maps.Keys(parsed.Events))
	out := make([]string, 0, len(names))
	for _, name := range names {
		ev := parsed.Events[name]
		if ev.Anonymous {
			continue
		}

		params := make([]string, len(ev.Inputs))
		for i, in := range ev.Inputs {
			param := in.Type.String()
			if in.Indexed {
				param += " indexed"
			}
			if in.Name != "" {
				param += " " + in.Name
			}
			params[i] = param
		}

		out = append(out, fmt.Sprintf("%s(%s)", ev.RawName, strings.Join(params, ", ")))
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("ABI has no events")
	}

	return out, nil
}
