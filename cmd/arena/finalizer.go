package main

import (
	"context"
	"fmt"

	"github.com/r3e-network/culture-arena/domain/arena"
	"github.com/r3e-network/culture-arena/domain/elo"
	"github.com/r3e-network/culture-arena/infrastructure/ledger"
)

// ledgerFinalizer adapts ledger.Ledger.FinalizeRound to arena.Finalizer.
type ledgerFinalizer struct {
	ledger ledger.Ledger
}

func (f *ledgerFinalizer) NotifyRoundFinalized(ctx context.Context, roundID string, aggregate elo.QDScore) error {
	_, err := f.ledger.FinalizeRound(ctx, roundID, aggregate.Fitness, aggregate.Diversity)
	if err != nil {
		return fmt.Errorf("finalizer: notify ledger: %w", err)
	}
	return nil
}

var _ arena.Finalizer = (*ledgerFinalizer)(nil)
