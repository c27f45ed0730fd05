package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrChainUnavailable is matched by every error a Reader returns for a height it cannot serve yet.
var ErrChainUnavailable = errors.New("chain unavailable")

// ErrBlockNotReady is used as the cause when the requested height is past the readable head.
var ErrBlockNotReady = errors.New("block not ready")

// Reader fetches blocks, with their transactions and logs, by height.
type Reader interface {
	// FetchBlock returns the block at height. Any failure is reported as an *UnavailableError.
	FetchBlock(ctx context.Context, height uint64) (*Block, error)

	// Close releases the underlying connection.
	Close()
}

// UnavailableError reports that a height could not be read.
type UnavailableError struct {
	Height uint64
	Cause  error
}

// NewUnavailableError wraps cause for height.
func NewUnavailableError(height uint64, cause error) *UnavailableError {
	return &UnavailableError{Height: height, Cause: cause}
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("block %d unavailable: %v", e.Height, e.Cause)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrChainUnavailable) hold for every UnavailableError.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrChainUnavailable
}

// Transaction groups the logs emitted by one transaction, in log index order.
type Transaction struct {
	Hash  common.Hash
	Index uint
	Logs  []types.Log
}

// Block is a fetched block. It is treated as immutable once built.
type Block struct {
	Number       uint64
	Hash         common.Hash
	ParentHash   common.Hash
	Timestamp    uint64
	Transactions []Transaction
}

// NewBlock builds a Block from its header and the logs it contains.
// Transactions are ordered by index, logs inside a transaction by log index.
// Logs that belong to another block are rejected.
func NewBlock(header *types.Header, logs []types.Log) (*Block, error) {
	if header == nil {
		return nil, errors.New("nil header")
	}

	block := &Block{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  header.Time,
	}

	sorted := make([]types.Log, len(logs))
	copy(sorted, logs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TxIndex != sorted[j].TxIndex {
			return sorted[i].TxIndex < sorted[j].TxIndex
		}
		return sorted[i].Index < sorted[j].Index
	})

	for _, log := range sorted {
		if log.BlockNumber != block.Number {
			return nil, fmt.Errorf("log %d of tx %s belongs to block %d, not %d",
				log.Index, log.TxHash.Hex(), log.BlockNumber, block.Number)
		}

		n := len(block.Transactions)
		if n == 0 || block.Transactions[n-1].Index != log.TxIndex {
			block.Transactions = append(block.Transactions, Transaction{
				Hash:  log.TxHash,
				Index: log.TxIndex,
			})
			n++
		}

		block.Transactions[n-1].Logs = append(block.Transactions[n-1].Logs, log)
	}

	return block, nil
}

// LogCount returns the number of logs across all transactions.
func (b *Block) LogCount() int {
	count := 0
	for _, tx := range b.Transactions {
		count += len(tx.Logs)
	}

	return count
}
