// Package domain holds the entities shared across the Culture-Graph Indexer,
// Influence Engine, Arena Round Orchestrator, and Telemetry Submitter.
package domain

import "time"

// =============================================================================
// Culture graph
// =============================================================================

// ArtifactKind distinguishes the shape of a minted artifact.
type ArtifactKind string

const (
	ArtifactKindOriginal  ArtifactKind = "original"
	ArtifactKindRemix     ArtifactKind = "remix"
	ArtifactKindAnnotation ArtifactKind = "annotation"
)

// Artifact is an immutable record of one ArtifactMinted event. It becomes
// immutable once observed at a finalized depth; unique by ID.
type Artifact struct {
	ID          string       `json:"id" db:"id"`
	Author      string       `json:"author" db:"author"`
	Kind        ArtifactKind `json:"kind" db:"kind"`
	CID         string       `json:"cid" db:"cid"`
	ParentID    *string      `json:"parentId,omitempty" db:"parent_id"`
	BlockNumber uint64       `json:"blockNumber" db:"block_number"`
	BlockHash   string       `json:"blockHash" db:"block_hash"`
	LogIndex    int          `json:"logIndex" db:"log_index"`
	Timestamp   time.Time    `json:"timestamp" db:"timestamp"`
}

// Citation links two artifacts observed via an ArtifactCited event. Composite
// unique key (FromID, ToID, BlockNumber, LogIndex); never edited, only
// inserted or purged on reorg.
type Citation struct {
	FromID      string `json:"fromId" db:"from_id"`
	ToID        string `json:"toId" db:"to_id"`
	BlockNumber uint64 `json:"blockNumber" db:"block_number"`
	BlockHash   string `json:"blockHash" db:"block_hash"`
	LogIndex    int    `json:"logIndex" db:"log_index"`
}

// InfluenceMetric is the Influence Engine's derived, transactionally
// recomputed output for one artifact. Unique by ArtifactID.
type InfluenceMetric struct {
	ArtifactID    string  `json:"artifactId" db:"artifact_id"`
	Score         float64 `json:"score" db:"score"`
	CitationCount int64   `json:"citationCount" db:"citation_count"`
	LineageDepth  int64   `json:"lineageDepth" db:"lineage_depth"`
}

// RoundFinalization records one RoundFinalized ledger event alongside the
// difficulty adjustment it carried.
type RoundFinalization struct {
	RoundID            string    `json:"roundId" db:"round_id"`
	PreviousDifficulty float64   `json:"previousDifficulty" db:"previous_difficulty"`
	DifficultyDelta    float64   `json:"difficultyDelta" db:"difficulty_delta"`
	NewDifficulty      float64   `json:"newDifficulty" db:"new_difficulty"`
	FinalizedAt        time.Time `json:"finalizedAt" db:"finalized_at"`
	BlockNumber         uint64    `json:"blockNumber" db:"block_number"`
	BlockHash           string    `json:"blockHash" db:"block_hash"`
	LogIndex            int       `json:"logIndex" db:"log_index"`
}

// EventCursor is the singleton ingestion watermark. A successful apply must
// not decrease (BlockNumber, LogIndex) lexicographically except via reorg
// purge, which rewinds it to a safe base.
type EventCursor struct {
	BlockNumber uint64 `json:"blockNumber" db:"block_number"`
	LogIndex    int    `json:"logIndex" db:"log_index"`
}

// Before reports whether the cursor position (block, index) lies strictly
// before c, used to decide whether a log has already been applied.
func (c EventCursor) Before(block uint64, index int) bool {
	if c.BlockNumber != block {
		return c.BlockNumber < block
	}
	return c.LogIndex < index
}

// =============================================================================
// Arena round state
// =============================================================================

// RoundState is one of the three stages in the Round lifecycle.
type RoundState string

const (
	RoundStateCommit RoundState = "COMMIT"
	RoundStateReveal RoundState = "REVEAL"
	RoundStateClosed RoundState = "CLOSED"
)

// Round is one commit-reveal cycle of the Arena Round Orchestrator.
type Round struct {
	ID             string         `json:"id" db:"id"`
	State          RoundState     `json:"state" db:"state"`
	StartedAt      time.Time      `json:"startedAt" db:"started_at"`
	CommitDeadline time.Time      `json:"commitDeadline" db:"commit_deadline"`
	RevealDeadline time.Time      `json:"revealDeadline" db:"reveal_deadline"`
	ClosedAt       *time.Time     `json:"closedAt,omitempty" db:"closed_at"`
	TargetDuration time.Duration  `json:"targetDuration" db:"target_duration"`
	IPFSSnapshotCID *string       `json:"ipfsSnapshotCid,omitempty" db:"ipfs_snapshot_cid"`
	Metadata       map[string]any `json:"metadata,omitempty" db:"metadata"`
}

// CommitteeRole distinguishes a round participant's responsibility.
type CommitteeRole string

const (
	RoleContestant CommitteeRole = "CONTESTANT"
	RoleValidator  CommitteeRole = "VALIDATOR"
)

// CommitteeMember is one agent's participation record within a Round.
// Unique by (RoundID, AgentID, Role).
type CommitteeMember struct {
	ID              string        `json:"id" db:"id"`
	RoundID         string        `json:"roundId" db:"round_id"`
	AgentID         string        `json:"agentId" db:"agent_id"`
	Role            CommitteeRole `json:"role" db:"role"`
	CommitHash      *string       `json:"commitHash,omitempty" db:"commit_hash"`
	CommitAt        *time.Time    `json:"commitAt,omitempty" db:"commit_at"`
	RevealPayload   []byte        `json:"revealPayload,omitempty" db:"reveal_payload"`
	RevealAt        *time.Time    `json:"revealAt,omitempty" db:"reveal_at"`
	Slashed         bool          `json:"slashed" db:"slashed"`
	ModerationNote  *string       `json:"moderationNote,omitempty" db:"moderation_note"`
}

// Agent is one rated participant in the arena. Rating defaults to 1500.
type Agent struct {
	ID      string   `json:"id" db:"id"`
	Rating  float64  `json:"rating" db:"rating"`
	KFactor *float64 `json:"kFactor,omitempty" db:"k_factor"`
}

const DefaultAgentRating = 1500.0

// =============================================================================
// Telemetry
// =============================================================================

// TelemetryState is the Telemetry Submitter's persisted JSON checkpoint file,
// owned exclusively by the submitter and guarded by in-process serialization.
type TelemetryState struct {
	// Processed maps "agent:job" to the energy log's summary.lastUpdated
	// value that was last submitted for it.
	Processed map[string]string `json:"processed"`
	// APINonces maps a signer address to the last nonce confirmed in API
	// mode; the next reservation uses the value after it.
	APINonces map[string]uint64 `json:"apiNonces"`
}

// NewTelemetryState returns an empty, ready-to-use TelemetryState.
func NewTelemetryState() *TelemetryState {
	return &TelemetryState{
		Processed: make(map[string]string),
		APINonces: make(map[string]uint64),
	}
}

// EnergyLogStage is one measured phase of a job's execution.
type EnergyLogStage struct {
	Name       string  `json:"name"`
	CPUTimeMs  float64 `json:"cpuTimeMs"`
	GPUTimeMs  float64 `json:"gpuTimeMs"`
	Energy     float64 `json:"energy"`
}

// EnergyLogSummary aggregates an EnergyLog's stages.
type EnergyLogSummary struct {
	TotalCPUTimeMs     float64   `json:"totalCpuTimeMs"`
	TotalGPUTimeMs     float64   `json:"totalGpuTimeMs"`
	EnergyScore        float64   `json:"energyScore"`
	AverageEfficiency  float64   `json:"averageEfficiency"`
	Runs               int       `json:"runs"`
	LastUpdated        time.Time `json:"lastUpdated"`
	Complexity         float64   `json:"complexity"`
	SuccessRate        float64   `json:"successRate"`
}

// EnergyLog is one on-disk input file the Telemetry Submitter polls for.
type EnergyLog struct {
	JobID   string           `json:"jobId"`
	Agent   string           `json:"agent"`
	Stages  []EnergyLogStage `json:"stages"`
	Summary EnergyLogSummary `json:"summary"`
}
