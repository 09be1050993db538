package ingestor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/culture-arena/domain/store"
	"github.com/r3e-network/culture-arena/infrastructure/ledger"
)

type noopRecomputer struct {
	calls [][]string
}

func (n *noopRecomputer) ScheduleRecompute(_ context.Context, ids []string) {
	n.calls = append(n.calls, ids)
}

func hexPayload(t *testing.T, v interface{}) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return hex.EncodeToString(raw)
}

func newTestIngestor(t *testing.T) (*Ingestor, *ledger.MockLedger, *store.MemoryStore, *noopRecomputer) {
	t.Helper()
	mockLedger := ledger.NewMockLedger()
	memStore := store.NewMemoryStore()
	recomputer := &noopRecomputer{}
	ing := New(Config{Addresses: []string{"0xgraph"}, FinalityDepth: 5, BlockBatchSize: 10},
		mockLedger, memStore, recomputer, logrus.NewEntry(logrus.New()))
	return ing, mockLedger, memStore, recomputer
}

func TestBackfillAppliesMintThenCiteInOrderAndAdvancesCursor(t *testing.T) {
	ing, mockLedger, memStore, recomputer := newTestIngestor(t)
	ctx := context.Background()

	mockLedger.SetBlock(ledger.Block{Number: 100, Timestamp: 1000})
	mockLedger.SetBlock(ledger.Block{Number: 101, Timestamp: 1010})
	mockLedger.SetBlock(ledger.Block{Number: 110, Timestamp: 1100})

	mockLedger.AppendLog(ledger.Log{
		Address: "0xgraph", Topics: []string{TopicArtifactMinted}, BlockNumber: 100, Index: 0,
		Data: hexPayload(t, artifactMintedPayload{ID: "art-100", Author: "alice", Kind: "original", CID: "cid-100"}),
	})
	mockLedger.AppendLog(ledger.Log{
		Address: "0xgraph", Topics: []string{TopicArtifactMinted}, BlockNumber: 101, Index: 0,
		Data: hexPayload(t, artifactMintedPayload{ID: "art-101", Author: "bob", Kind: "remix", CID: "cid-101"}),
	})
	mockLedger.AppendLog(ledger.Log{
		Address: "0xgraph", Topics: []string{TopicArtifactCited}, BlockNumber: 101, Index: 1,
		Data: hexPayload(t, artifactCitedPayload{FromID: "art-101", ToID: "art-100"}),
	})

	require.NoError(t, ing.Backfill(ctx, false))

	artifacts, err := memStore.Artifacts(ctx)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	citations, err := memStore.Citations(ctx)
	require.NoError(t, err)
	require.Len(t, citations, 1)

	cursor, err := memStore.ReadCursor(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(101), cursor.BlockNumber)
	require.Equal(t, 1, cursor.LogIndex)

	require.NotEmpty(t, recomputer.calls)
}

func TestBackfillComputesSafeTargetBelowFinalityDepth(t *testing.T) {
	ing, mockLedger, memStore, _ := newTestIngestor(t)
	ctx := context.Background()

	mockLedger.SetBlock(ledger.Block{Number: 110, Timestamp: 1100})
	mockLedger.AppendLog(ledger.Log{
		Address: "0xgraph", Topics: []string{TopicArtifactMinted}, BlockNumber: 108, Index: 0,
		Data: hexPayload(t, artifactMintedPayload{ID: "art-108", Author: "alice", Kind: "original", CID: "cid"}),
	})
	mockLedger.SetBlock(ledger.Block{Number: 108, Timestamp: 1080})

	require.NoError(t, ing.Backfill(ctx, false))

	// 108 > safeTarget (110-5=105), so it must not be applied yet.
	artifacts, err := memStore.Artifacts(ctx)
	require.NoError(t, err)
	require.Empty(t, artifacts)
}

func TestBackfillCoalescesConcurrentCalls(t *testing.T) {
	ing, mockLedger, _, _ := newTestIngestor(t)
	ctx := context.Background()
	mockLedger.SetBlock(ledger.Block{Number: 10, Timestamp: 100})

	done := make(chan error, 2)
	go func() { done <- ing.Backfill(ctx, false) }()
	go func() { done <- ing.Backfill(ctx, false) }()

	require.NoError(t, <-done)
	require.NoError(t, <-done)
}

func TestApplyLogSkipsUnparsablePayloadWithoutError(t *testing.T) {
	ing, _, memStore, _ := newTestIngestor(t)
	ctx := context.Background()

	err := ing.applyLog(ctx, ledger.Log{
		Address: "0xgraph", Topics: []string{TopicArtifactMinted}, BlockNumber: 1, Index: 0,
		Data: "not-hex!!",
	}, false)
	require.NoError(t, err)

	artifacts, err := memStore.Artifacts(ctx)
	require.NoError(t, err)
	require.Empty(t, artifacts)
}

func TestRoundFinalizedHydratesTimestampBeforePersisting(t *testing.T) {
	ing, mockLedger, memStore, _ := newTestIngestor(t)
	ctx := context.Background()
	mockLedger.SetBlock(ledger.Block{Number: 50, Timestamp: 5000})

	err := ing.applyLog(ctx, ledger.Log{
		Address: "0xgraph", Topics: []string{TopicRoundFinalized}, BlockNumber: 50, Index: 0,
		Data: hexPayload(t, roundFinalizedPayload{RoundID: "r1", PreviousDifficulty: 1, DifficultyDelta: 0.1, NewDifficulty: 1.1}),
	}, false)
	require.NoError(t, err)

	cursor, err := memStore.ReadCursor(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(50), cursor.BlockNumber)
}
