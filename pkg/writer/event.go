package writer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a decoded log.
type Event struct {
	// Name is the ABI event name
	Name string

	// Signature is the canonical signature, e.g. "Transfer(address,address,uint256)"
	Signature string

	// Args holds indexed and non-indexed arguments by name, as decoded by go-ethereum
	Args map[string]any
}

func arg[T any](e *Event, name string) (T, error) {
	var zero T

	v, ok := e.Args[name]
	if !ok {
		return zero, fmt.Errorf("%s: missing argument %s", e.Name, name)
	}

	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s: argument %s is %T, expected %T", e.Name, name, v, zero)
	}

	return t, nil
}

// Address returns an address argument.
func (e *Event) Address(name string) (common.Address, error) {
	return arg[common.Address](e, name)
}

// Addresses returns an address[] argument.
func (e *Event) Addresses(name string) ([]common.Address, error) {
	return arg[[]common.Address](e, name)
}

// BigInt returns an integer argument wider than 64 bits.
func (e *Event) BigInt(name string) (*big.Int, error) {
	return arg[*big.Int](e, name)
}

// Uint8 returns a uint8 argument.
func (e *Event) Uint8(name string) (uint8, error) {
	return arg[uint8](e, name)
}

// Uint64 returns a uint64 argument.
func (e *Event) Uint64(name string) (uint64, error) {
	return arg[uint64](e, name)
}

// Text returns a string argument.
func (e *Event) Text(name string) (string, error) {
	return arg[string](e, name)
}

// Bool returns a bool argument.
func (e *Event) Bool(name string) (bool, error) {
	return arg[bool](e, name)
}

// Bytes32 returns a bytes32 argument as a hash.
func (e *Event) Bytes32(name string) (common.Hash, error) {
	b, err := arg[[32]byte](e, name)
	if err != nil {
		return common.Hash{}, err
	}

	return common.Hash(b), nil
}
