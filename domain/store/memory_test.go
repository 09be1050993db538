package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/culture-arena/domain"
)

func TestMemoryStoreUpsertArtifactAdvancesCursor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.UpsertArtifact(ctx, domain.Artifact{ID: "a1", BlockNumber: 10}, domain.EventCursor{BlockNumber: 10, LogIndex: 0})
	require.NoError(t, err)

	cursor, err := s.ReadCursor(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.EventCursor{BlockNumber: 10, LogIndex: 0}, cursor)

	artifacts, err := s.Artifacts(ctx)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
}

func TestMemoryStoreUpsertCitationIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	citation := domain.Citation{FromID: "a1", ToID: "a2", BlockNumber: 1, LogIndex: 0}

	require.NoError(t, s.UpsertCitation(ctx, citation, domain.EventCursor{BlockNumber: 1, LogIndex: 0}))
	require.NoError(t, s.UpsertCitation(ctx, citation, domain.EventCursor{BlockNumber: 1, LogIndex: 0}))

	citations, err := s.Citations(ctx)
	require.NoError(t, err)
	require.Len(t, citations, 1)
}

func TestMemoryStorePurgeFromBlockRewindsCursorAndDeletesRows(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertArtifact(ctx, domain.Artifact{ID: "a1", BlockNumber: 5}, domain.EventCursor{BlockNumber: 5}))
	require.NoError(t, s.UpsertArtifact(ctx, domain.Artifact{ID: "a2", BlockNumber: 15}, domain.EventCursor{BlockNumber: 15}))

	require.NoError(t, s.PurgeFromBlock(ctx, 10))

	artifacts, err := s.Artifacts(ctx)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	require.Equal(t, "a1", artifacts[0].ID)

	cursor, err := s.ReadCursor(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.EventCursor{BlockNumber: 10, LogIndex: -1}, cursor)
}

func TestMemoryStoreSaveInfluenceMetricsAndRoundRoundtrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveInfluenceMetrics(ctx, []domain.InfluenceMetric{
		{ArtifactID: "a1", Score: 0.5, CitationCount: 2, LineageDepth: 1},
	}))
	metric, err := s.InfluenceMetric(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, metric)
	require.Equal(t, 0.5, metric.Score)

	require.NoError(t, s.SaveRound(ctx, domain.Round{ID: "r1", State: domain.RoundStateCommit}))
	round, err := s.Round(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, domain.RoundStateCommit, round.State)

	open, err := s.OpenRounds(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestMemoryStoreCommitteeMembersUniqueByRoundAgentRole(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveCommitteeMember(ctx, domain.CommitteeMember{ID: "m1", RoundID: "r1", AgentID: "agent1", Role: domain.RoleContestant}))
	require.NoError(t, s.SaveCommitteeMember(ctx, domain.CommitteeMember{ID: "m1", RoundID: "r1", AgentID: "agent1", Role: domain.RoleContestant, Slashed: true}))

	members, err := s.CommitteeMembers(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.True(t, members[0].Slashed)
}
