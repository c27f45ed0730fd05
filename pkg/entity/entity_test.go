package entity

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntity_TypedFields(t *testing.T) {
	t.Parallel()

	e := New("proposal", "1", "mainnet")
	require.Equal(t, "proposal:1", e.Key())

	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	e.SetString("title", "Upgrade")
	e.SetBool("executed", true)
	e.SetUint64("start", 18_000_000)
	e.SetInt64("delta", -5)
	e.SetBigInt("votes", huge)

	title, err := e.GetString("title")
	require.NoError(t, err)
	require.Equal(t, "Upgrade", title)

	executed, err := e.GetBool("executed")
	require.NoError(t, err)
	require.True(t, executed)

	start, err := e.GetUint64("start")
	require.NoError(t, err)
	require.Equal(t, uint64(18_000_000), start)

	delta, err := e.GetInt64("delta")
	require.NoError(t, err)
	require.Equal(t, int64(-5), delta)

	votes, err := e.GetBigInt("votes")
	require.NoError(t, err)
	require.Equal(t, 0, huge.Cmp(votes))

	_, err = e.GetUint64("delta")
	require.ErrorContains(t, err, "overflows uint64")

	_, err = e.GetBool("title")
	require.ErrorContains(t, err, "expected bool")

	e.Set("title", nil)
	require.False(t, e.Has("title"))
}

func TestEntity_GetAbsentFields(t *testing.T) {
	t.Parallel()

	e := New("user", "0xabc", "mainnet")

	s, err := e.GetString("missing")
	require.NoError(t, err)
	require.Empty(t, s)

	n, err := e.GetBigInt("missing")
	require.NoError(t, err)
	require.Zero(t, n.Sign())
}

func TestEntity_GetBigIntFromJSONNumber(t *testing.T) {
	t.Parallel()

	e := New("user", "0xabc", "mainnet")
	e.Set("count", json.Number("18446744073709551616"))

	n, err := e.GetBigInt("count")
	require.NoError(t, err)
	require.Equal(t, "18446744073709551616", n.String())

	e.Set("count", json.Number("1.5"))
	_, err = e.GetBigInt("count")
	require.ErrorContains(t, err, "invalid integer")
}

func TestLoadOrNewAndIncrement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	e, created, err := LoadOrNew(ctx, store, "user", "0xabc", "mainnet")
	require.NoError(t, err)
	require.True(t, created)
	require.Empty(t, e.Fields)

	_, err = Increment(ctx, store, "user", "0xabc", "mainnet", 1, "votes", "actions")
	require.NoError(t, err)
	_, err = Increment(ctx, store, "user", "0xabc", "mainnet", 1, "votes")
	require.NoError(t, err)

	e, created, err = LoadOrNew(ctx, store, "user", "0xabc", "mainnet")
	require.NoError(t, err)
	require.False(t, created)

	votes, err := e.GetUint64("votes")
	require.NoError(t, err)
	require.Equal(t, uint64(2), votes)

	actions, err := e.GetUint64("actions")
	require.NoError(t, err)
	require.Equal(t, uint64(1), actions)
}

func TestExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	ok, err := Exists(ctx, store, "metadata", "0x01", "mainnet")
	require.NoError(t, err)
	require.False(t, ok)

	inserted, err := store.Insert(ctx, New("metadata", "0x01", "mainnet"))
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.Insert(ctx, New("metadata", "0x01", "mainnet"))
	require.NoError(t, err)
	require.False(t, inserted)

	ok, err = Exists(ctx, store, "metadata", "0x01", "mainnet")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Exists(ctx, store, "metadata", "0x01", "testnet")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore_SaveMergesFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	e := New("proposal", "1", "mainnet")
	e.SetString("title", "a")
	e.SetString("state", "created")
	require.NoError(t, store.Save(ctx, e))

	partial := New("proposal", "1", "mainnet")
	partial.SetString("state", "executed")
	require.NoError(t, store.Save(ctx, partial))

	loaded, err := store.Load(ctx, "proposal", "1", "mainnet")
	require.NoError(t, err)

	title, _ := loaded.GetString("title")
	state, _ := loaded.GetString("state")
	require.Equal(t, "a", title)
	require.Equal(t, "executed", state)

	// mutating a loaded copy does not touch the store
	loaded.SetString("title", "b")
	again, err := store.Load(ctx, "proposal", "1", "mainnet")
	require.NoError(t, err)
	title, _ = again.GetString("title")
	require.Equal(t, "a", title)
}
