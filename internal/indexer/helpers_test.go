package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	internalcommon "github.com/goran-ethernal/GovIndexor/internal/common"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/internal/registry"
	"github.com/goran-ethernal/GovIndexor/internal/storage"
	"github.com/goran-ethernal/GovIndexor/pkg/chain"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/goran-ethernal/GovIndexor/pkg/entity"
	"github.com/goran-ethernal/GovIndexor/pkg/manifest"
	"github.com/goran-ethernal/GovIndexor/pkg/writer"
	"github.com/stretchr/testify/require"
)

const (
	testNamespace = "testnet"

	testABI = `[
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"Created","anonymous":false,"inputs":[
		{"name":"child","type":"address","indexed":true}]}
]`
)

var (
	factoryAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenAddr   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	childAddr   = common.HexToAddress("0x3000000000000000000000000000000000000003")

	alice = common.HexToAddress("0xa1")
	bob   = common.HexToAddress("0xb0")
	carol = common.HexToAddress("0xc0")
	dave  = common.HexToAddress("0xd0")

	testContractABI = mustParseABI(testABI)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}

	return parsed
}

func testManifest() manifest.Manifest {
	return manifest.Manifest{
		Sources: []manifest.Source{
			{
				Contract: factoryAddr.Hex(),
				Start:    10,
				ABI:      "Token",
				Events:   []manifest.Event{{Name: "Created", Fn: "handleCreated"}},
			},
			{
				Contract: tokenAddr.Hex(),
				Start:    10,
				ABI:      "Token",
				Events:   []manifest.Event{{Name: "Transfer", Fn: "handleTransfer"}},
			},
		},
		Templates: map[string]manifest.Template{
			"Child": {ABI: "Token", Events: []manifest.Event{{Name: "Transfer", Fn: "handleChildTransfer"}}},
		},
		ABIs: map[string]string{"Token": testABI},
	}
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func txHash(height uint64, index uint) common.Hash {
	return crypto.Keccak256Hash(fmt.Appendf(nil, "%d/%d", height, index))
}

func newLog(t *testing.T, event string, contract common.Address, height uint64, txIndex, index uint,
	indexed []common.Hash, data ...any) types.Log {
	t.Helper()

	ev := testContractABI.Events[event]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)

	return types.Log{
		Address:     contract,
		Topics:      append([]common.Hash{ev.ID}, indexed...),
		Data:        packed,
		BlockNumber: height,
		TxIndex:     txIndex,
		TxHash:      txHash(height, txIndex),
		Index:       index,
	}
}

func transferLog(t *testing.T, contract common.Address, height uint64, txIndex, index uint,
	from, to common.Address, value int64) types.Log {
	t.Helper()

	return newLog(t, "Transfer", contract, height, txIndex, index,
		[]common.Hash{addrTopic(from), addrTopic(to)}, big.NewInt(value))
}

func createdLog(t *testing.T, height uint64, txIndex, index uint, child common.Address) types.Log {
	t.Helper()

	return newLog(t, "Created", factoryAddr, height, txIndex, index, []common.Hash{addrTopic(child)})
}

func newTestBlock(t *testing.T, height uint64, logs ...types.Log) *chain.Block {
	t.Helper()

	header := &types.Header{Number: new(big.Int).SetUint64(height), Time: 1700000000 + height}
	block, err := chain.NewBlock(header, logs)
	require.NoError(t, err)

	return block
}

// scenarioBlocks returns blocks 10 to 12: a factory creating a child in block 10 and
// token transfers in every block, the child emitting from block 11 on.
func scenarioBlocks(t *testing.T) map[uint64]*chain.Block {
	t.Helper()

	return map[uint64]*chain.Block{
		10: newTestBlock(t, 10,
			createdLog(t, 10, 0, 0, childAddr),
			transferLog(t, tokenAddr, 10, 1, 1, alice, bob, 5),
		),
		11: newTestBlock(t, 11,
			transferLog(t, tokenAddr, 11, 0, 0, alice, carol, 7),
			transferLog(t, tokenAddr, 11, 0, 1, alice, dave, 8),
			transferLog(t, childAddr, 11, 1, 2, bob, carol, 1),
		),
		12: newTestBlock(t, 12,
			transferLog(t, tokenAddr, 12, 0, 0, alice, bob, 2),
		),
	}
}

// stubReader serves fixed blocks. Heights listed in failures fail that many times first,
// heights listed in empties return no block and no error that many times; unknown heights
// are never ready.
type stubReader struct {
	mu       sync.Mutex
	blocks   map[uint64]*chain.Block
	failures map[uint64]int
	empties  map[uint64]int
	calls    map[uint64]int
}

func newStubReader(blocks map[uint64]*chain.Block) *stubReader {
	return &stubReader{
		blocks:   blocks,
		failures: make(map[uint64]int),
		empties:  make(map[uint64]int),
		calls:    make(map[uint64]int),
	}
}

func (r *stubReader) FetchBlock(_ context.Context, height uint64) (*chain.Block, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls[height]++

	if r.failures[height] > 0 {
		r.failures[height]--
		return nil, chain.NewUnavailableError(height, errors.New("connection refused"))
	}
	if r.empties[height] > 0 {
		r.empties[height]--
		return nil, nil
	}

	block, ok := r.blocks[height]
	if !ok {
		return nil, chain.NewUnavailableError(height, chain.ErrBlockNotReady)
	}

	return block, nil
}

func (r *stubReader) Close() {}

func (r *stubReader) callCount(height uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls[height]
}

// testProtocol records every writer invocation and can inject failures.
type testProtocol struct {
	mu     sync.Mutex
	calls  []string
	failAt func(wc *writer.Context) error
}

func (p *testProtocol) writers() map[string]writer.Func {
	return map[string]writer.Func{
		"handleCreated":       p.wrap(handleCreated),
		"handleTransfer":      p.wrap(handleTransfer),
		"handleChildTransfer": p.wrap(handleChildTransfer),
	}
}

func (p *testProtocol) wrap(fn writer.Func) writer.Func {
	return func(ctx context.Context, wc *writer.Context) error {
		p.mu.Lock()
		p.calls = append(p.calls, fmt.Sprintf("%s@%d/%d/%d", wc.Handler, wc.Height, wc.Tx.Index, wc.Log.Index))
		hook := p.failAt
		p.mu.Unlock()

		if hook != nil {
			if err := hook(wc); err != nil {
				return err
			}
		}

		return fn(ctx, wc)
	}
}

func (p *testProtocol) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.calls...)
}

// failOnce fails the writer of the log at (height, logIndex) the first time it runs.
func failOnce(height uint64, logIndex uint) func(wc *writer.Context) error {
	var once sync.Once

	return func(wc *writer.Context) error {
		var err error
		if wc.Height == height && wc.Log.Index == logIndex {
			once.Do(func() { err = errors.New("injected failure") })
		}
		return err
	}
}

func handleCreated(ctx context.Context, wc *writer.Context) error {
	child, err := wc.Event.Address("child")
	if err != nil {
		return err
	}

	return wc.RegisterTemplate(ctx, "Child", child, wc.Height)
}

// handleTransfer stores the transfer once (load or skip) and counts it on the receiver
// (load or create, then increment).
func handleTransfer(ctx context.Context, wc *writer.Context) error {
	to, err := wc.Event.Address("to")
	if err != nil {
		return err
	}
	value, err := wc.Event.BigInt("value")
	if err != nil {
		return err
	}

	id := fmt.Sprintf("%s/%d", wc.Tx.Hash.Hex(), wc.Log.Index)
	exists, err := entity.Exists(ctx, wc.Store, "transfer", id, wc.Namespace)
	if err != nil {
		return err
	}
	if !exists {
		e := wc.New("transfer", id)
		e.SetString("to", to.Hex())
		e.SetBigInt("value", value)
		e.SetUint64("height", wc.Height)
		if err := wc.Save(ctx, e); err != nil {
			return err
		}
	}

	_, err = entity.Increment(ctx, wc.Store, "account", to.Hex(), wc.Namespace, 1, "received")
	return err
}

func handleChildTransfer(ctx context.Context, wc *writer.Context) error {
	_, err := entity.Increment(ctx, wc.Store, "child", wc.Log.Address.Hex(), wc.Namespace, 1, "transfers")
	return err
}

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()

	cfg := config.StorageConfig{
		Driver: config.StorageDriverSQLite,
		SQLite: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "indexer.db")},
	}
	cfg.ApplyDefaults()

	backend, err := storage.Open(context.Background(), cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, backend.Close()) })

	return backend
}

func testNetworkConfig(namespace string, endBlock uint64, atomic bool) config.NetworkConfig {
	cfg := config.NetworkConfig{
		Namespace:    namespace,
		RPCURL:       "http://localhost:8545",
		EndBlock:     endBlock,
		RetryDelay:   internalcommon.NewDuration(time.Millisecond),
		AtomicBlocks: &atomic,
	}
	cfg.ApplyDefaults()

	return cfg
}

func newTestRegistry(t *testing.T, namespace string) *registry.Registry {
	t.Helper()

	reg, err := registry.New(namespace, testManifest(), logger.NewNopLogger())
	require.NoError(t, err)

	return reg
}

func newTestIndexer(t *testing.T, cfg config.NetworkConfig, reader chain.Reader, backend storage.Backend,
	proto *testProtocol) *Indexer {
	t.Helper()

	reg := newTestRegistry(t, cfg.Namespace)
	dispatcher, err := NewDispatcher(reg, proto.writers(), nil, logger.NewNopLogger())
	require.NoError(t, err)

	return New(cfg, reader, backend, reg, dispatcher, nil, logger.NewNopLogger())
}

// snapshot returns the stored fields of every entity of the test protocol, keyed by type/id.
func snapshot(t *testing.T, backend storage.Backend, namespace string) map[string]map[string]any {
	t.Helper()

	out := make(map[string]map[string]any)
	for _, typ := range []string{"transfer", "account", "child"} {
		entities, err := backend.ListEntities(context.Background(), namespace, typ, "", storage.MaxListLimit)
		require.NoError(t, err)

		for _, e := range entities {
			out[typ+"/"+e.ID] = e.Fields
		}
	}

	return out
}
