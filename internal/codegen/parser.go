package codegen

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	arrayDims    = regexp.MustCompile(`^(\[\]|\[[1-9][0-9]*\])*$`)
)

// EventParam is one parameter of an event signature.
type EventParam struct {
	Name    string // declared name, or argN for unnamed parameters
	Type    string // canonical Solidity type: uint is written uint256
	Indexed bool
}

// EventSignature is an event written out in a manifest or handed to protocol-gen.
// Both a bare type list, "VoteCast(address,uint256,uint8)", and a declaration with
// indexed markers and names, "VoteCast(address indexed voter, uint256 proposalId)",
// are accepted.
type EventSignature struct {
	Name   string
	Params []EventParam
}

// IsSignature reports whether a manifest event reference is a full signature rather
// than a bare event name looked up in the ABI.
func IsSignature(ref string) bool {
	return strings.ContainsRune(ref, '(')
}

// ParseEventSignature parses sig. Tuple parameters are rejected: a manifest needing them
// references the event by name and ships the ABI.
func ParseEventSignature(sig string) (*EventSignature, error) {
	sig = strings.TrimSpace(sig)

	name, rest, ok := strings.Cut(sig, "(")
	if !ok {
		return nil, fmt.Errorf("signature %q has no parameter list", sig)
	}
	list, ok := strings.CutSuffix(rest, ")")
	if !ok {
		return nil, fmt.Errorf("signature %q does not end with ')'", sig)
	}
	if strings.ContainsAny(list, "()") {
		return nil, fmt.Errorf("signature %q: tuple parameters are not supported", sig)
	}

	name = strings.TrimSpace(name)
	if !identPattern.MatchString(name) {
		return nil, fmt.Errorf("invalid event name %q", name)
	}

	ev := &EventSignature{Name: name, Params: []EventParam{}}
	if strings.TrimSpace(list) == "" {
		return ev, nil
	}

	seen := make(map[string]struct{})
	for i, raw := range strings.Split(list, ",") {
		param, err := parseParam(raw, i)
		if err != nil {
			return nil, fmt.Errorf("%s parameter %d: %w", name, i, err)
		}
		if _, dup := seen[param.Name]; dup {
			return nil, fmt.Errorf("%s parameter %d: duplicate name %q", name, i, param.Name)
		}
		seen[param.Name] = struct{}{}

		ev.Params = append(ev.Params, param)
	}

	return ev, nil
}

// parseParam reads "type", "type name", "type indexed" or "type indexed name".
func parseParam(raw string, pos int) (EventParam, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return EventParam{}, errors.New("empty parameter")
	}

	typ, err := canonicalType(fields[0])
	if err != nil {
		return EventParam{}, err
	}

	param := EventParam{Type: typ}
	rest := fields[1:]
	if len(rest) > 0 && rest[0] == "indexed" {
		param.Indexed = true
		rest = rest[1:]
	}

	switch len(rest) {
	case 0:
		param.Name = fmt.Sprintf("arg%d", pos)
	case 1:
		if !identPattern.MatchString(rest[0]) {
			return EventParam{}, fmt.Errorf("invalid parameter name %q", rest[0])
		}
		param.Name = rest[0]
	default:
		return EventParam{}, fmt.Errorf("unexpected %q after %s", strings.Join(rest[1:], " "), rest[0])
	}

	return param, nil
}

// canonicalType validates a Solidity type and expands the int and uint aliases, which
// would otherwise hash to a different topic0.
func canonicalType(t string) (string, error) {
	base, dims := t, ""
	if i := strings.IndexByte(t, '['); i >= 0 {
		base, dims = t[:i], t[i:]
	}

	if base == "uint" || base == "int" {
		base += "256"
	}
	if !elementaryType(base) {
		return "", fmt.Errorf("unsupported type %q", t)
	}
	if !arrayDims.MatchString(dims) {
		return "", fmt.Errorf("malformed array suffix in %q", t)
	}

	canonical := base + dims
	if _, err := abi.NewType(canonical, "", nil); err != nil {
		return "", fmt.Errorf("type %q: %w", t, err)
	}

	return canonical, nil
}

func elementaryType(t string) bool {
	switch t {
	case addressType, boolType, stringType, bytesType:
		return true
	}

	if n, ok := sizeSuffix(t, bytesType); ok {
		return n <= 32
	}

	return intBits(t) > 0
}

// intBits returns the width of a sized uintN or intN type, zero for anything else.
func intBits(t string) int {
	digits := strings.TrimPrefix(t, "u")
	n, ok := sizeSuffix(digits, "int")
	if !ok || n > 256 || n%8 != 0 {
		return 0
	}

	return n
}

func sizeSuffix(t, prefix string) (int, bool) {
	digits, ok := strings.CutPrefix(t, prefix)
	if !ok || digits == "" || digits[0] < '1' || digits[0] > '9' {
		return 0, false
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}

	return n, true
}

// CanonicalSignature is the signature without names or indexed markers, the
// preimage of topic0: "VoteCast(address,uint256,uint8)".
func (e *EventSignature) CanonicalSignature() string {
	types := make([]string, len(e.Params))
	for i, param := range e.Params {
		types[i] = param.Type
	}

	return e.Name + "(" + strings.Join(types, ",") + ")"
}

// Topic returns topic0 of the event, the keccak hash of its canonical signature.
func (e *EventSignature) Topic() common.Hash {
	return crypto.Keccak256Hash([]byte(e.CanonicalSignature()))
}

// HandlerName is the name of the writer generated for the event.
func (e *EventSignature) HandlerName() string {
	return "handle" + e.Name
}

// ResolveEvent finds the event a manifest references in contractABI. A bare name must
// exist in the ABI. A signature resolves to the ABI event with the same canonical form,
// keeping the ABI's argument names, and otherwise to an event synthesized from the
// signature itself.
func ResolveEvent(contractABI *abi.ABI, ref string) (abi.Event, error) {
	if !IsSignature(ref) {
		event, ok := contractABI.Events[strings.TrimSpace(ref)]
		if !ok {
			return abi.Event{}, errors.New("not found in abi")
		}
		return event, nil
	}

	sig, err := ParseEventSignature(ref)
	if err != nil {
		return abi.Event{}, err
	}

	canonical := sig.CanonicalSignature()
	for _, event := range contractABI.Events {
		if event.Sig == canonical {
			return event, nil
		}
	}

	return sig.ABIEvent()
}
