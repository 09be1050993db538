package store

import (
	"context"
	"sort"
	"sync"

	"github.com/r3e-network/culture-arena/domain"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu sync.RWMutex

	cursor      domain.EventCursor
	artifacts   map[string]domain.Artifact
	citations   map[string]domain.Citation
	finalizations map[string]domain.RoundFinalization
	metrics     map[string]domain.InfluenceMetric
	rounds      map[string]domain.Round
	members     map[string]domain.CommitteeMember // keyed by roundID+agentID+role
	agents      map[string]domain.Agent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts:     make(map[string]domain.Artifact),
		citations:     make(map[string]domain.Citation),
		finalizations: make(map[string]domain.RoundFinalization),
		metrics:       make(map[string]domain.InfluenceMetric),
		rounds:        make(map[string]domain.Round),
		members:       make(map[string]domain.CommitteeMember),
		agents:        make(map[string]domain.Agent),
	}
}

func citationKey(c domain.Citation) string {
	return c.FromID + "|" + c.ToID + "|" + itoa(c.BlockNumber) + "|" + itoa(uint64(c.LogIndex))
}

func memberKey(roundID, agentID string, role domain.CommitteeRole) string {
	return roundID + "|" + agentID + "|" + string(role)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	digits := make([]byte, 0, 20)
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func (s *MemoryStore) UpsertArtifact(_ context.Context, artifact domain.Artifact, cursor domain.EventCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifact.ID] = artifact
	s.cursor = cursor
	return nil
}

func (s *MemoryStore) UpsertCitation(_ context.Context, citation domain.Citation, cursor domain.EventCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := citationKey(citation)
	if _, exists := s.citations[key]; !exists {
		s.citations[key] = citation
	}
	s.cursor = cursor
	return nil
}

func (s *MemoryStore) UpsertRoundFinalization(_ context.Context, finalization domain.RoundFinalization, cursor domain.EventCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizations[finalization.RoundID] = finalization
	s.cursor = cursor
	return nil
}

func (s *MemoryStore) ReadCursor(_ context.Context) (domain.EventCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor, nil
}

func (s *MemoryStore) WriteCursor(_ context.Context, cursor domain.EventCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	return nil
}

func (s *MemoryStore) PurgeFromBlock(_ context.Context, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.artifacts {
		if a.BlockNumber >= n {
			delete(s.artifacts, id)
		}
	}
	for key, c := range s.citations {
		if c.BlockNumber >= n {
			delete(s.citations, key)
		}
	}
	for id, f := range s.finalizations {
		if f.BlockNumber >= n {
			delete(s.finalizations, id)
		}
	}
	s.cursor = domain.EventCursor{BlockNumber: n, LogIndex: -1}
	return nil
}

func (s *MemoryStore) Artifacts(_ context.Context) ([]domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Citations(_ context.Context) ([]domain.Citation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Citation, 0, len(s.citations))
	for _, c := range s.citations {
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) InfluenceMetric(_ context.Context, artifactID string) (*domain.InfluenceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.metrics[artifactID]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *MemoryStore) SaveInfluenceMetrics(_ context.Context, metrics []domain.InfluenceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range metrics {
		s.metrics[m.ArtifactID] = m
	}
	return nil
}

func (s *MemoryStore) SaveRound(_ context.Context, round domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[round.ID] = round
	return nil
}

func (s *MemoryStore) Round(_ context.Context, id string) (*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rounds[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *MemoryStore) OpenRounds(_ context.Context) ([]domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Round
	for _, r := range s.rounds {
		if r.State != domain.RoundStateClosed {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveCommitteeMember(_ context.Context, member domain.CommitteeMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey(member.RoundID, member.AgentID, member.Role)] = member
	return nil
}

func (s *MemoryStore) CommitteeMembers(_ context.Context, roundID string) ([]domain.CommitteeMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CommitteeMember
	for _, m := range s.members {
		if m.RoundID == roundID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (s *MemoryStore) SaveAgent(_ context.Context, agent domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = agent
	return nil
}

func (s *MemoryStore) Agent(_ context.Context, id string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.agents[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (s *MemoryStore) Agents(_ context.Context, limit int) ([]domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
