package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/GovIndexor/internal/common"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/pkg/chain"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
)

const (
	methodGetHeader = "eth_getBlockByNumber"
	methodGetLogs   = "eth_getLogs"
)

// EthClient is the part of the node API the chain reader uses. *ethclient.Client implements it.
type EthClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Close()
}

var (
	_ EthClient    = (*ethclient.Client)(nil)
	_ chain.Reader = (*Client)(nil)
)

// Client is the chain reader of one namespace. It only serves heights at or below the head
// of its finality mode.
type Client struct {
	eth       EthClient
	namespace string
	finality  chain.Finality
	lag       uint64
	retry     *config.RetryConfig
	log       *logger.Logger

	mu   sync.Mutex
	head uint64
}

// Dial connects to the RPC endpoint of cfg.
func Dial(ctx context.Context, cfg config.NetworkConfig, log *logger.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}

	return NewClient(ethclient.NewClient(rpcClient), cfg, log)
}

// NewClient returns a chain reader on top of eth configured by cfg.
func NewClient(eth EthClient, cfg config.NetworkConfig, log *logger.Logger) (*Client, error) {
	finality, err := chain.ParseFinality(cfg.Finality)
	if err != nil {
		return nil, err
	}

	return &Client{
		eth:       eth,
		namespace: cfg.Namespace,
		finality:  finality,
		lag:       cfg.FinalizedLag,
		retry:     cfg.Retry,
		log:       log.WithComponent(common.ComponentRPCClient).WithNamespace(cfg.Namespace),
	}, nil
}

// Close closes the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// FetchBlock returns the block at height with its logs grouped by transaction.
// Every failure, including a height that is not readable yet, is an *chain.UnavailableError.
func (c *Client) FetchBlock(ctx context.Context, height uint64) (*chain.Block, error) {
	if err := c.ensureReadable(ctx, height); err != nil {
		return nil, chain.NewUnavailableError(height, err)
	}

	var header *types.Header
	err := c.call(ctx, methodGetHeader, func() (err error) {
		header, err = c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
		return err
	})
	if err != nil {
		return nil, chain.NewUnavailableError(height, err)
	}
	if header == nil {
		return nil, chain.NewUnavailableError(height, ethereum.NotFound)
	}

	hash := header.Hash()

	var logs []types.Log
	err = c.call(ctx, methodGetLogs, func() (err error) {
		logs, err = c.eth.FilterLogs(ctx, ethereum.FilterQuery{BlockHash: &hash})
		return err
	})
	if err != nil {
		return nil, chain.NewUnavailableError(height, err)
	}

	block, err := chain.NewBlock(header, logs)
	if err != nil {
		return nil, chain.NewUnavailableError(height, err)
	}

	c.log.Debugf("fetched block %d (%s) with %d logs", height, hash.Hex(), len(logs))

	return block, nil
}

// ensureReadable checks height against the cached head and refreshes the head only when
// height is beyond it.
func (c *Client) ensureReadable(ctx context.Context, height uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.head != 0 && height <= c.head {
		return nil
	}

	var header *types.Header
	err := c.call(ctx, methodGetHeader, func() (err error) {
		header, err = c.eth.HeaderByNumber(ctx, big.NewInt(int64(c.finality.HeadTag())))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get %s head: %w", c.finality, err)
	}
	if header == nil || header.Number == nil {
		return fmt.Errorf("%w: node returned no %s head", chain.ErrBlockNotReady, c.finality)
	}

	head := c.finality.ReadableHead(header.Number.Uint64(), c.lag)

	c.head = head
	ReadableHead.WithLabelValues(c.namespace).Set(float64(head))

	if height > head {
		return fmt.Errorf("%w: height %d is above the %s head %d", chain.ErrBlockNotReady, height, c.finality, head)
	}

	return nil
}

// call runs one RPC through the retry policy and records its metrics.
func (c *Client) call(ctx context.Context, method string, fn func() error) error {
	return retryWithBackoff(ctx, c.retry, method, func() error {
		RPCMethodInc(method)
		start := time.Now()

		err := fn()
		RPCMethodDuration(method, time.Since(start))

		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				c.log.Debugf("%s failed: %v", method, err)
			}
			RPCMethodError(method, classifyError(err))
		}

		return err
	})
}
