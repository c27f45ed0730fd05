package entity

import (
	"context"
	"fmt"
	"math/big"
)

// Store persists entities.
type Store interface {
	// Load returns the entity or nil when it does not exist.
	Load(ctx context.Context, typ, id, namespace string) (*Entity, error)

	// Save upserts e: a missing row is inserted, an existing row gets the fields of e
	// written over it while fields absent from e are kept.
	Save(ctx context.Context, e *Entity) error

	// Insert stores e only if no row with the same key exists. It reports whether e was written.
	Insert(ctx context.Context, e *Entity) (bool, error)
}

// Exists reports whether the entity is already stored. Writers use it to skip
// work that was done before ("load or skip").
func Exists(ctx context.Context, store Store, typ, id, namespace string) (bool, error) {
	e, err := store.Load(ctx, typ, id, namespace)
	if err != nil {
		return false, err
	}

	return e != nil, nil
}

// LoadOrNew loads the entity or returns a fresh one. created is true for a fresh entity.
func LoadOrNew(ctx context.Context, store Store, typ, id, namespace string) (e *Entity, created bool, err error) {
	e, err = store.Load(ctx, typ, id, namespace)
	if err != nil {
		return nil, false, err
	}
	if e != nil {
		return e, false, nil
	}

	return New(typ, id, namespace), true, nil
}

// Increment adds delta to a counter field of e, treating a missing field as zero.
func (e *Entity) Increment(key string, delta int64) error {
	current, err := e.GetBigInt(key)
	if err != nil {
		return err
	}

	e.SetBigInt(key, current.Add(current, big.NewInt(delta)))

	return nil
}

// Increment loads or creates the entity, adds delta to each named counter and saves it.
//
// Increment is not idempotent: replaying the same event adds delta again. It is only
// exact when the surrounding block is applied atomically with its checkpoint.
func Increment(ctx context.Context, store Store, typ, id, namespace string, delta int64, keys ...string) (*Entity, error) {
	e, _, err := LoadOrNew(ctx, store, typ, id, namespace)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		if err := e.Increment(key, delta); err != nil {
			return nil, fmt.Errorf("increment %s: %w", key, err)
		}
	}

	if err := store.Save(ctx, e); err != nil {
		return nil, err
	}

	return e, nil
}
