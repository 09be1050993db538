package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/culture-arena/domain/elo"
	"github.com/r3e-network/culture-arena/infrastructure/ledger"
)

func TestLedgerFinalizerNotifiesLedgerWithAggregateScore(t *testing.T) {
	mock := ledger.NewMockLedger()
	f := &ledgerFinalizer{ledger: mock}

	err := f.NotifyRoundFinalized(context.Background(), "round-1", elo.QDScore{Fitness: 0.9, Diversity: 0.2})
	require.NoError(t, err)

	rounds := mock.FinalizedRounds()
	require.Len(t, rounds, 1)
	require.Equal(t, "round-1", rounds[0].RoundID)
	require.Equal(t, 0.9, rounds[0].Fitness)
	require.Equal(t, 0.2, rounds[0].Diversity)
}

func TestLedgerFinalizerPropagatesLedgerError(t *testing.T) {
	mock := ledger.NewMockLedger()
	mock.ErrorOnNextCall = context.DeadlineExceeded
	f := &ledgerFinalizer{ledger: mock}

	err := f.NotifyRoundFinalized(context.Background(), "round-1", elo.QDScore{Fitness: 0.5, Diversity: 0.5})
	require.Error(t, err)
}
