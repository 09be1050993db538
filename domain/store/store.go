// Package store is the Persistent Store Adapter: upsert-by-key for
// Artifact/Citation/RoundFinalization, cursor read/write, and
// purgeFromBlock reorg recovery, all transactional per the data model's
// ownership rules.
package store

import (
	"context"

	"github.com/r3e-network/culture-arena/domain"
)

// Store is the persistence surface the Event Ingestor, Influence Engine, and
// Arena Round Orchestrator depend on.
type Store interface {
	// UpsertArtifact inserts or updates an Artifact and advances the cursor
	// in a single transaction.
	UpsertArtifact(ctx context.Context, artifact domain.Artifact, cursor domain.EventCursor) error
	// UpsertCitation inserts a Citation and advances the cursor in a single
	// transaction. Re-applying an already-seen (fromId, toId, blockNumber,
	// logIndex) key is a no-op, not a conflict.
	UpsertCitation(ctx context.Context, citation domain.Citation, cursor domain.EventCursor) error
	// UpsertRoundFinalization inserts or updates a RoundFinalization and
	// advances the cursor in a single transaction.
	UpsertRoundFinalization(ctx context.Context, finalization domain.RoundFinalization, cursor domain.EventCursor) error

	// ReadCursor returns the current EventCursor, or the zero cursor if none
	// has been written yet.
	ReadCursor(ctx context.Context) (domain.EventCursor, error)
	// WriteCursor sets the EventCursor unconditionally. The reorg recovery
	// path does not call it: PurgeFromBlock rewinds the cursor itself.
	WriteCursor(ctx context.Context, cursor domain.EventCursor) error

	// PurgeFromBlock deletes all Artifact/Citation/RoundFinalization rows
	// with BlockNumber >= n and rewinds the cursor to (n, -1), atomically.
	PurgeFromBlock(ctx context.Context, n uint64) error

	// Artifacts returns every Artifact, used by the Influence Engine to
	// rebuild the citation graph.
	Artifacts(ctx context.Context) ([]domain.Artifact, error)
	// Citations returns every Citation.
	Citations(ctx context.Context) ([]domain.Citation, error)
	// InfluenceMetric returns the stored metric for an artifact, or nil if
	// none has been computed yet.
	InfluenceMetric(ctx context.Context, artifactID string) (*domain.InfluenceMetric, error)
	// SaveInfluenceMetrics persists a full set of metrics in one transaction.
	SaveInfluenceMetrics(ctx context.Context, metrics []domain.InfluenceMetric) error

	// Round operations, used by the Arena Round Orchestrator.
	SaveRound(ctx context.Context, round domain.Round) error
	Round(ctx context.Context, id string) (*domain.Round, error)
	OpenRounds(ctx context.Context) ([]domain.Round, error)

	SaveCommitteeMember(ctx context.Context, member domain.CommitteeMember) error
	CommitteeMembers(ctx context.Context, roundID string) ([]domain.CommitteeMember, error)

	SaveAgent(ctx context.Context, agent domain.Agent) error
	Agent(ctx context.Context, id string) (*domain.Agent, error)
	// Agents returns every Agent ordered by Rating descending, for the
	// Arena's scoreboard endpoint.
	Agents(ctx context.Context, limit int) ([]domain.Agent, error)
}
