package checkpoint

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrRegression is returned when an advance would not move the checkpoint forward.
var ErrRegression = errors.New("checkpoint regression")

// Checkpoint records the highest fully applied block of a namespace.
// Uses meddler tags for automatic struct-to-db mapping.
type Checkpoint struct {
	Namespace string      `meddler:"namespace" json:"namespace"`
	Height    uint64      `meddler:"height" json:"height"`
	BlockHash common.Hash `meddler:"block_hash,hash" json:"block_hash"`
	UpdatedAt int64       `meddler:"updated_at" json:"updated_at"`
}

// Store defines the interface for reading and advancing per namespace checkpoints.
type Store interface {
	// Get returns the checkpoint of namespace, or nil if the namespace never advanced.
	Get(ctx context.Context, namespace string) (*Checkpoint, error)

	// Advance records height as fully applied. The new height must be above the stored one,
	// otherwise ErrRegression is returned.
	Advance(ctx context.Context, namespace string, height uint64, blockHash common.Hash) error

	// Reset overwrites the checkpoint unconditionally. It is an operator action used to skip
	// or replay blocks.
	Reset(ctx context.Context, namespace string, height uint64) error
}

// ResumeHeight returns the next height to process for namespace: minStart when the namespace
// has no checkpoint, otherwise max(minStart, last+1).
func ResumeHeight(ctx context.Context, store Store, namespace string, minStart uint64) (uint64, error) {
	cp, err := store.Get(ctx, namespace)
	if err != nil {
		return 0, err
	}
	if cp == nil {
		return minStart, nil
	}

	return max(minStart, cp.Height+1), nil
}
