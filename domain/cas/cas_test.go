package cas

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCIDIsDeterministicRegardlessOfKeyOrder(t *testing.T) {
	a := map[string]interface{}{"b": 2, "a": 1, "c": map[string]interface{}{"y": 2, "x": 1}}
	b := map[string]interface{}{"c": map[string]interface{}{"x": 1, "y": 2}, "a": 1, "b": 2}

	cidA, err := CID(a)
	require.NoError(t, err)
	cidB, err := CID(b)
	require.NoError(t, err)

	require.Equal(t, cidA, cidB)
	require.True(t, len(cidA) > 1 && cidA[0] == 'b')
}

func TestCIDDiffersForDifferentPayloads(t *testing.T) {
	cidA, err := CID(map[string]interface{}{"a": 1})
	require.NoError(t, err)
	cidB, err := CID(map[string]interface{}{"a": 2})
	require.NoError(t, err)
	require.NotEqual(t, cidA, cidB)
}

func TestLocalStorePutIsIdempotentAndGetRoundtrips(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)

	ctx := context.Background()
	payload := map[string]interface{}{"round": "r1", "score": 0.5}

	cid1, err := store.Put(ctx, payload)
	require.NoError(t, err)
	cid2, err := store.Put(ctx, payload)
	require.NoError(t, err)
	require.Equal(t, cid1, cid2)

	data, err := store.Get(ctx, cid1)
	require.NoError(t, err)
	require.Contains(t, string(data), "round")
}

func TestLocalStoreGetUnknownCIDErrors(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "bdoesnotexist")
	require.Error(t, err)
}
