// Package ingestor implements the Event Ingestor: reorg-safe backfill plus a
// tail subscription over the three culture-graph log topics, applying each
// log to the Persistent Store Adapter and advancing the cursor.
package ingestor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain"
	"github.com/r3e-network/culture-arena/domain/store"
	"github.com/r3e-network/culture-arena/infrastructure/ledger"
	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
)

// Config configures the Ingestor.
type Config struct {
	Addresses      []string
	FinalityDepth  uint64
	BlockBatchSize uint64
}

// InfluenceRecomputer is invoked after each applied event with the set of
// artifact ids whose influence should be recomputed. Implemented by the
// Influence Engine; kept as an interface here to avoid a store<->influence
// import cycle.
type InfluenceRecomputer interface {
	ScheduleRecompute(ctx context.Context, artifactIDs []string)
}

// Ingestor drives backfill and tail ingestion.
type Ingestor struct {
	cfg    Config
	ledger ledger.Ledger
	store  store.Store
	influence InfluenceRecomputer
	log    *logrus.Entry

	backfillMu      sync.Mutex
	backfillInFlight bool
	backfillDone    chan struct{}
}

// New builds an Ingestor.
func New(cfg Config, l ledger.Ledger, s store.Store, influence InfluenceRecomputer, log *logrus.Entry) *Ingestor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ingestor{cfg: cfg, ledger: l, store: s, influence: influence, log: log}
}

// Start runs backfill once, then switches to the tail subscription. It
// blocks until ctx is cancelled.
func (i *Ingestor) Start(ctx context.Context) error {
	if err := i.Backfill(ctx, false); err != nil {
		return err
	}

	unsubscribes := make([]func(), 0, 3*len(i.cfg.Addresses))
	for _, addr := range i.cfg.Addresses {
		for _, topic := range []string{TopicArtifactMinted, TopicArtifactCited, TopicRoundFinalized} {
			unsub, err := i.ledger.Subscribe(ctx, ledger.LogFilter{Address: addr, Topics: []string{topic}}, func(l ledger.Log) {
				if err := i.applyLog(ctx, l, false); err != nil {
					i.log.WithError(err).Warn("tail apply failed")
				}
			})
			if err != nil {
				for _, u := range unsubscribes {
					u()
				}
				return svcerrors.LedgerUnavailable(fmt.Errorf("subscribe %s/%s: %w", addr, topic, err))
			}
			unsubscribes = append(unsubscribes, unsub)
		}
	}

	<-ctx.Done()
	for _, u := range unsubscribes {
		u()
	}
	return ctx.Err()
}

// Backfill runs the reorg-safe catch-up sequence. Concurrent calls coalesce
// onto a single in-flight backfill.
func (i *Ingestor) Backfill(ctx context.Context, force bool) error {
	i.backfillMu.Lock()
	if i.backfillInFlight {
		done := i.backfillDone
		i.backfillMu.Unlock()
		<-done
		return nil
	}
	i.backfillInFlight = true
	i.backfillDone = make(chan struct{})
	i.backfillMu.Unlock()

	err := i.runBackfill(ctx, force)

	i.backfillMu.Lock()
	i.backfillInFlight = false
	close(i.backfillDone)
	i.backfillMu.Unlock()

	return err
}

func (i *Ingestor) runBackfill(ctx context.Context, force bool) error {
	cursor, err := i.store.ReadCursor(ctx)
	if err != nil {
		return err
	}

	latest, err := i.ledger.GetBlockNumber(ctx)
	if err != nil {
		return svcerrors.LedgerUnavailable(fmt.Errorf("get block number: %w", err))
	}

	safeTarget := uint64(0)
	if latest > i.cfg.FinalityDepth {
		safeTarget = latest - i.cfg.FinalityDepth
	}

	if cursor.BlockNumber > 0 && (i.cfg.FinalityDepth > 0 || force) {
		purgeFrom := uint64(0)
		if cursor.BlockNumber > i.cfg.FinalityDepth {
			purgeFrom = cursor.BlockNumber - i.cfg.FinalityDepth
		}
		if err := i.store.PurgeFromBlock(ctx, purgeFrom); err != nil {
			return err
		}
		cursor, err = i.store.ReadCursor(ctx)
		if err != nil {
			return err
		}
	}

	batchSize := i.cfg.BlockBatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	start := cursor.BlockNumber
	for start <= safeTarget {
		end := start + batchSize - 1
		if end > safeTarget {
			end = safeTarget
		}

		logs, err := i.fetchBatch(ctx, start, end)
		if err != nil {
			return err
		}
		sort.Slice(logs, func(a, b int) bool {
			if logs[a].BlockNumber != logs[b].BlockNumber {
				return logs[a].BlockNumber < logs[b].BlockNumber
			}
			return logs[a].Index < logs[b].Index
		})

		for _, l := range logs {
			if !force && !cursor.Before(l.BlockNumber, l.Index) {
				continue
			}
			if err := i.applyLog(ctx, l, true); err != nil {
				i.log.WithError(err).Warn("backfill apply skipped")
				continue
			}
			cursor = domain.EventCursor{BlockNumber: l.BlockNumber, LogIndex: l.Index}
		}

		start = end + 1
	}

	return nil
}

func (i *Ingestor) fetchBatch(ctx context.Context, from, to uint64) ([]ledger.Log, error) {
	var all []ledger.Log
	for _, addr := range i.cfg.Addresses {
		for _, topic := range []string{TopicArtifactMinted, TopicArtifactCited, TopicRoundFinalized} {
			logs, err := i.ledger.GetLogs(ctx, ledger.LogFilter{Address: addr, Topics: []string{topic}, FromBlock: from, ToBlock: to})
			if err != nil {
				return nil, svcerrors.LedgerUnavailable(fmt.Errorf("get logs %s/%s: %w", addr, topic, err))
			}
			all = append(all, logs...)
		}
	}
	return all, nil
}

// applyLog dispatches a single log to its apply function. Parse errors are
// logged and the log skipped without advancing the cursor on their own; the
// caller advances the cursor only after a successful apply.
func (i *Ingestor) applyLog(ctx context.Context, l ledger.Log, fromBackfill bool) error {
	topic, err := logTopic(l)
	if err != nil {
		i.log.WithError(err).Warn("log missing topic, skipped")
		return nil
	}

	cursor := domain.EventCursor{BlockNumber: l.BlockNumber, LogIndex: l.Index}

	switch topic {
	case TopicArtifactMinted:
		var payload artifactMintedPayload
		if err := decodeLogData(l, &payload); err != nil {
			i.log.WithError(err).Warn("ArtifactMinted parse failed, skipped")
			return nil
		}
		block, err := i.ledger.GetBlock(ctx, l.BlockNumber)
		if err != nil {
			return svcerrors.LedgerUnavailable(fmt.Errorf("get block %d: %w", l.BlockNumber, err))
		}
		artifact := domain.Artifact{
			ID: payload.ID, Author: payload.Author, Kind: domain.ArtifactKind(payload.Kind),
			CID: payload.CID, ParentID: payload.ParentID,
			BlockNumber: l.BlockNumber, BlockHash: l.BlockHash, LogIndex: l.Index,
			Timestamp: time.Unix(block.Timestamp, 0).UTC(),
		}
		if err := i.store.UpsertArtifact(ctx, artifact, cursor); err != nil {
			return err
		}
		i.scheduleRecompute(ctx, payload.ID, payload.ParentID)

	case TopicArtifactCited:
		var payload artifactCitedPayload
		if err := decodeLogData(l, &payload); err != nil {
			i.log.WithError(err).Warn("ArtifactCited parse failed, skipped")
			return nil
		}
		citation := domain.Citation{
			FromID: payload.FromID, ToID: payload.ToID,
			BlockNumber: l.BlockNumber, BlockHash: l.BlockHash, LogIndex: l.Index,
		}
		if err := i.store.UpsertCitation(ctx, citation, cursor); err != nil {
			return err
		}
		i.scheduleRecompute(ctx, payload.FromID, &payload.ToID)

	case TopicRoundFinalized:
		var payload roundFinalizedPayload
		if err := decodeLogData(l, &payload); err != nil {
			i.log.WithError(err).Warn("RoundFinalized parse failed, skipped")
			return nil
		}
		// The block must be hydrated before persisting; a timestamp=0
		// placeholder is never written durably.
		block, err := i.ledger.GetBlock(ctx, l.BlockNumber)
		if err != nil {
			return svcerrors.LedgerUnavailable(fmt.Errorf("get block %d: %w", l.BlockNumber, err))
		}
		finalization := domain.RoundFinalization{
			RoundID: payload.RoundID, PreviousDifficulty: payload.PreviousDifficulty,
			DifficultyDelta: payload.DifficultyDelta, NewDifficulty: payload.NewDifficulty,
			FinalizedAt: time.Unix(block.Timestamp, 0).UTC(),
			BlockNumber: l.BlockNumber, BlockHash: l.BlockHash, LogIndex: l.Index,
		}
		if err := i.store.UpsertRoundFinalization(ctx, finalization, cursor); err != nil {
			return err
		}

	default:
		i.log.WithField("topic", topic).Warn("unknown log topic, skipped")
	}

	return nil
}

func (i *Ingestor) scheduleRecompute(ctx context.Context, a string, b *string) {
	if i.influence == nil {
		return
	}
	ids := []string{a}
	if b != nil {
		ids = append(ids, *b)
	}
	i.influence.ScheduleRecompute(ctx, ids)
}

