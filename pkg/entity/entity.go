package entity

import (
	"encoding/json"
	"fmt"
	"maps"
	"math/big"
	"strconv"
)

// Entity is a typed, namespaced record identified by (Namespace, Type, ID).
// Fields hold JSON compatible values; big integers are stored as decimal strings.
type Entity struct {
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	Namespace string         `json:"namespace"`
	Fields    map[string]any `json:"fields"`
}

// New returns an empty entity. Nothing is persisted until Store.Save is called.
func New(typ, id, namespace string) *Entity {
	return &Entity{
		Type:      typ,
		ID:        id,
		Namespace: namespace,
		Fields:    make(map[string]any),
	}
}

// Key identifies the entity inside its namespace.
func (e *Entity) Key() string {
	return e.Type + ":" + e.ID
}

// Clone returns a copy with its own field map. Nested values are shared.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Fields = maps.Clone(e.Fields)
	if c.Fields == nil {
		c.Fields = make(map[string]any)
	}

	return &c
}

// Set stores value under key. A nil value removes the key.
func (e *Entity) Set(key string, value any) {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	if value == nil {
		delete(e.Fields, key)
		return
	}

	e.Fields[key] = value
}

func (e *Entity) SetString(key, value string) {
	e.Set(key, value)
}

func (e *Entity) SetBool(key string, value bool) {
	e.Set(key, value)
}

func (e *Entity) SetInt64(key string, value int64) {
	e.Set(key, value)
}

// SetUint64 stores value as a decimal string so it survives JSON round trips on every backend.
func (e *Entity) SetUint64(key string, value uint64) {
	e.Set(key, strconv.FormatUint(value, 10))
}

// SetBigInt stores value as a decimal string. A nil value removes the key.
func (e *Entity) SetBigInt(key string, value *big.Int) {
	if value == nil {
		e.Set(key, nil)
		return
	}

	e.Set(key, value.String())
}

// Has reports whether key is set.
func (e *Entity) Has(key string) bool {
	_, ok := e.Fields[key]
	return ok
}

// Delete removes key.
func (e *Entity) Delete(key string) {
	delete(e.Fields, key)
}

// GetString returns the string stored under key, or "" when absent.
func (e *Entity) GetString(key string) (string, error) {
	v, ok := e.Fields[key]
	if !ok {
		return "", nil
	}

	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s.%s: expected string, got %T", e.Type, key, v)
	}

	return s, nil
}

// GetBool returns the bool stored under key, or false when absent.
func (e *Entity) GetBool(key string) (bool, error) {
	v, ok := e.Fields[key]
	if !ok {
		return false, nil
	}

	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s.%s: expected bool, got %T", e.Type, key, v)
	}

	return b, nil
}

// GetBigInt returns the integer stored under key, or zero when absent.
func (e *Entity) GetBigInt(key string) (*big.Int, error) {
	v, ok := e.Fields[key]
	if !ok {
		return new(big.Int), nil
	}

	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case *big.Int:
		return new(big.Int).Set(t), nil
	case int64:
		return big.NewInt(t), nil
	case int:
		return big.NewInt(int64(t)), nil
	case uint64:
		return new(big.Int).SetUint64(t), nil
	default:
		return nil, fmt.Errorf("%s.%s: expected integer, got %T", e.Type, key, v)
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s.%s: invalid integer %q", e.Type, key, s)
	}

	return n, nil
}

// GetInt64 returns the integer stored under key, or zero when absent.
func (e *Entity) GetInt64(key string) (int64, error) {
	n, err := e.GetBigInt(key)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("%s.%s: %s overflows int64", e.Type, key, n)
	}

	return n.Int64(), nil
}

// GetUint64 returns the integer stored under key, or zero when absent.
func (e *Entity) GetUint64(key string) (uint64, error) {
	n, err := e.GetBigInt(key)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("%s.%s: %s overflows uint64", e.Type, key, n)
	}

	return n.Uint64(), nil
}
