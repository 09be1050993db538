package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/r3e-network/culture-arena/domain"
	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
)

// PostgresStore is the production Store, backed by sqlx over lib/pq.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens a connection pool against dsn and verifies it with
// a ping before returning.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, svcerrors.StoreUnavailable(fmt.Errorf("connect: %w", err))
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

func (s *PostgresStore) writeCursorTx(ctx context.Context, tx *sqlx.Tx, cursor domain.EventCursor) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO event_cursor (id, block_number, log_index) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET block_number = EXCLUDED.block_number, log_index = EXCLUDED.log_index
	`, cursor.BlockNumber, cursor.LogIndex)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("write cursor: %w", err))
	}
	return nil
}

// UpsertArtifact implements Store.
func (s *PostgresStore) UpsertArtifact(ctx context.Context, artifact domain.Artifact, cursor domain.EventCursor) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO artifacts (id, author, kind, cid, parent_id, block_number, block_hash, log_index, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			cid = EXCLUDED.cid, block_number = EXCLUDED.block_number,
			block_hash = EXCLUDED.block_hash, log_index = EXCLUDED.log_index
	`, artifact.ID, artifact.Author, artifact.Kind, artifact.CID, artifact.ParentID,
		artifact.BlockNumber, artifact.BlockHash, artifact.LogIndex, artifact.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return svcerrors.StoreConflict(artifact.ID)
		}
		return svcerrors.StoreUnavailable(fmt.Errorf("upsert artifact: %w", err))
	}

	if err := s.writeCursorTx(ctx, tx, cursor); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// UpsertCitation implements Store.
func (s *PostgresStore) UpsertCitation(ctx context.Context, citation domain.Citation, cursor domain.EventCursor) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO citations (from_id, to_id, block_number, block_hash, log_index)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (from_id, to_id, block_number, log_index) DO NOTHING
	`, citation.FromID, citation.ToID, citation.BlockNumber, citation.BlockHash, citation.LogIndex)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("upsert citation: %w", err))
	}

	if err := s.writeCursorTx(ctx, tx, cursor); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// UpsertRoundFinalization implements Store.
func (s *PostgresStore) UpsertRoundFinalization(ctx context.Context, finalization domain.RoundFinalization, cursor domain.EventCursor) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO round_finalizations (round_id, previous_difficulty, difficulty_delta, new_difficulty, finalized_at, block_number, block_hash, log_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (round_id) DO UPDATE SET
			previous_difficulty = EXCLUDED.previous_difficulty,
			difficulty_delta = EXCLUDED.difficulty_delta,
			new_difficulty = EXCLUDED.new_difficulty,
			finalized_at = EXCLUDED.finalized_at,
			block_number = EXCLUDED.block_number,
			block_hash = EXCLUDED.block_hash,
			log_index = EXCLUDED.log_index
	`, finalization.RoundID, finalization.PreviousDifficulty, finalization.DifficultyDelta, finalization.NewDifficulty,
		finalization.FinalizedAt, finalization.BlockNumber, finalization.BlockHash, finalization.LogIndex)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("upsert round finalization: %w", err))
	}

	if err := s.writeCursorTx(ctx, tx, cursor); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// ReadCursor implements Store.
func (s *PostgresStore) ReadCursor(ctx context.Context) (domain.EventCursor, error) {
	var cursor domain.EventCursor
	err := s.db.GetContext(ctx, &cursor, `SELECT block_number, log_index FROM event_cursor WHERE id = 1`)
	if err == sql.ErrNoRows {
		return domain.EventCursor{}, nil
	}
	if err != nil {
		return domain.EventCursor{}, svcerrors.StoreUnavailable(fmt.Errorf("read cursor: %w", err))
	}
	return cursor, nil
}

// WriteCursor implements Store.
func (s *PostgresStore) WriteCursor(ctx context.Context, cursor domain.EventCursor) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()
	if err := s.writeCursorTx(ctx, tx, cursor); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// PurgeFromBlock implements Store: deletes all rows at or above block n and
// rewinds the cursor to (n, -1), atomically.
func (s *PostgresStore) PurgeFromBlock(ctx context.Context, n uint64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	for _, table := range []string{"artifacts", "citations", "round_finalizations"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE block_number >= $1`, table), n); err != nil {
			return svcerrors.StoreUnavailable(fmt.Errorf("purge %s: %w", table, err))
		}
	}

	if err := s.writeCursorTx(ctx, tx, domain.EventCursor{BlockNumber: n, LogIndex: -1}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Artifacts implements Store.
func (s *PostgresStore) Artifacts(ctx context.Context) ([]domain.Artifact, error) {
	var artifacts []domain.Artifact
	err := s.db.SelectContext(ctx, &artifacts, `
		SELECT id, author, kind, cid, parent_id, block_number, block_hash, log_index, timestamp FROM artifacts
	`)
	if err != nil {
		return nil, svcerrors.StoreUnavailable(fmt.Errorf("list artifacts: %w", err))
	}
	return artifacts, nil
}

// Citations implements Store.
func (s *PostgresStore) Citations(ctx context.Context) ([]domain.Citation, error) {
	var citations []domain.Citation
	err := s.db.SelectContext(ctx, &citations, `
		SELECT from_id, to_id, block_number, block_hash, log_index FROM citations
	`)
	if err != nil {
		return nil, svcerrors.StoreUnavailable(fmt.Errorf("list citations: %w", err))
	}
	return citations, nil
}

// InfluenceMetric implements Store.
func (s *PostgresStore) InfluenceMetric(ctx context.Context, artifactID string) (*domain.InfluenceMetric, error) {
	var metric domain.InfluenceMetric
	err := s.db.GetContext(ctx, &metric, `
		SELECT artifact_id, score, citation_count, lineage_depth FROM influence_metrics WHERE artifact_id = $1
	`, artifactID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, svcerrors.StoreUnavailable(fmt.Errorf("read influence metric: %w", err))
	}
	return &metric, nil
}

// SaveInfluenceMetrics implements Store: persists the full set in one
// transaction, per §4.3 step 5.
func (s *PostgresStore) SaveInfluenceMetrics(ctx context.Context, metrics []domain.InfluenceMetric) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	for _, m := range metrics {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO influence_metrics (artifact_id, score, citation_count, lineage_depth)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (artifact_id) DO UPDATE SET
				score = EXCLUDED.score, citation_count = EXCLUDED.citation_count, lineage_depth = EXCLUDED.lineage_depth
		`, m.ArtifactID, m.Score, m.CitationCount, m.LineageDepth)
		if err != nil {
			return svcerrors.StoreUnavailable(fmt.Errorf("upsert influence metric %s: %w", m.ArtifactID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// SaveRound implements Store.
func (s *PostgresStore) SaveRound(ctx context.Context, round domain.Round) error {
	metadata, err := json.Marshal(round.Metadata)
	if err != nil {
		return fmt.Errorf("marshal round metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rounds (id, state, started_at, commit_deadline, reveal_deadline, closed_at, target_duration, ipfs_snapshot_cid, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state, closed_at = EXCLUDED.closed_at,
			ipfs_snapshot_cid = EXCLUDED.ipfs_snapshot_cid, metadata = EXCLUDED.metadata
	`, round.ID, round.State, round.StartedAt, round.CommitDeadline, round.RevealDeadline,
		round.ClosedAt, round.TargetDuration, round.IPFSSnapshotCID, metadata)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("save round: %w", err))
	}
	return nil
}

// Round implements Store.
func (s *PostgresStore) Round(ctx context.Context, id string) (*domain.Round, error) {
	var raw struct {
		domain.Round
		Metadata []byte `db:"metadata"`
	}
	err := s.db.GetContext(ctx, &raw, `
		SELECT id, state, started_at, commit_deadline, reveal_deadline, closed_at, target_duration, ipfs_snapshot_cid, metadata
		FROM rounds WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, svcerrors.StoreUnavailable(fmt.Errorf("read round: %w", err))
	}
	round := raw.Round
	if len(raw.Metadata) > 0 {
		if err := json.Unmarshal(raw.Metadata, &round.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal round metadata: %w", err)
		}
	}
	return &round, nil
}

// OpenRounds implements Store: all rounds not yet CLOSED.
func (s *PostgresStore) OpenRounds(ctx context.Context) ([]domain.Round, error) {
	var rounds []domain.Round
	err := s.db.SelectContext(ctx, &rounds, `
		SELECT id, state, started_at, commit_deadline, reveal_deadline, closed_at, target_duration, ipfs_snapshot_cid
		FROM rounds WHERE state != $1
	`, domain.RoundStateClosed)
	if err != nil {
		return nil, svcerrors.StoreUnavailable(fmt.Errorf("list open rounds: %w", err))
	}
	return rounds, nil
}

// SaveCommitteeMember implements Store.
func (s *PostgresStore) SaveCommitteeMember(ctx context.Context, member domain.CommitteeMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO committee_members (id, round_id, agent_id, role, commit_hash, commit_at, reveal_payload, reveal_at, slashed, moderation_note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (round_id, agent_id, role) DO UPDATE SET
			commit_hash = EXCLUDED.commit_hash, commit_at = EXCLUDED.commit_at,
			reveal_payload = EXCLUDED.reveal_payload, reveal_at = EXCLUDED.reveal_at,
			slashed = EXCLUDED.slashed, moderation_note = EXCLUDED.moderation_note
	`, member.ID, member.RoundID, member.AgentID, member.Role, member.CommitHash, member.CommitAt,
		member.RevealPayload, member.RevealAt, member.Slashed, member.ModerationNote)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("save committee member: %w", err))
	}
	return nil
}

// CommitteeMembers implements Store.
func (s *PostgresStore) CommitteeMembers(ctx context.Context, roundID string) ([]domain.CommitteeMember, error) {
	var members []domain.CommitteeMember
	err := s.db.SelectContext(ctx, &members, `
		SELECT id, round_id, agent_id, role, commit_hash, commit_at, reveal_payload, reveal_at, slashed, moderation_note
		FROM committee_members WHERE round_id = $1
	`, roundID)
	if err != nil {
		return nil, svcerrors.StoreUnavailable(fmt.Errorf("list committee members: %w", err))
	}
	return members, nil
}

// SaveAgent implements Store.
func (s *PostgresStore) SaveAgent(ctx context.Context, agent domain.Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, rating, k_factor) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET rating = EXCLUDED.rating, k_factor = EXCLUDED.k_factor
	`, agent.ID, agent.Rating, agent.KFactor)
	if err != nil {
		return svcerrors.StoreUnavailable(fmt.Errorf("save agent: %w", err))
	}
	return nil
}

// Agent implements Store.
func (s *PostgresStore) Agent(ctx context.Context, id string) (*domain.Agent, error) {
	var agent domain.Agent
	err := s.db.GetContext(ctx, &agent, `SELECT id, rating, k_factor FROM agents WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, svcerrors.StoreUnavailable(fmt.Errorf("read agent: %w", err))
	}
	return &agent, nil
}

// Agents implements Store. limit <= 0 returns every agent.
func (s *PostgresStore) Agents(ctx context.Context, limit int) ([]domain.Agent, error) {
	query := `SELECT id, rating, k_factor FROM agents ORDER BY rating DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var agents []domain.Agent
	if err := s.db.SelectContext(ctx, &agents, query, args...); err != nil {
		return nil, svcerrors.StoreUnavailable(fmt.Errorf("list agents: %w", err))
	}
	return agents, nil
}

var _ Store = (*PostgresStore)(nil)
