// Package arena implements the Arena Round Orchestrator: the commit/reveal
// finite-state machine over a Round, its Elo/QD scoring, PID difficulty
// update, CAS snapshot, and ledger finalization notify, per §4.4.
package arena

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain"
	"github.com/r3e-network/culture-arena/domain/cas"
	"github.com/r3e-network/culture-arena/domain/difficulty"
	"github.com/r3e-network/culture-arena/domain/elo"
	"github.com/r3e-network/culture-arena/domain/moderation"
	"github.com/r3e-network/culture-arena/domain/store"
	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
	"github.com/r3e-network/culture-arena/infrastructure/signer"
	"github.com/r3e-network/culture-arena/infrastructure/stablejson"
)

var commitHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

const (
	DefaultCommitWindowSeconds = 300
	DefaultRevealWindowSeconds = 300
	DefaultTargetDurationSeconds = 600
)

// Finalizer notifies the on-chain round finalizer once a round closes.
// Transport failure is logged but never undoes the close.
type Finalizer interface {
	NotifyRoundFinalized(ctx context.Context, roundID string, aggregate elo.QDScore) error
}

// ScoringHook supplies the quality/novelty pair for a revealed submission.
// The spec's reference behavior is a pseudo-random stub; StableScoringHook
// below reproduces it deterministically (seeded off roundID+agentID) so
// tests are reproducible, per the scoring-source Open Question.
type ScoringHook interface {
	Score(ctx context.Context, roundID, agentID string, submission []byte) (quality, novelty float64, err error)
}

// StableScoringHook is the default ScoringHook: pseudo-random per reveal,
// but a pure function of (roundID, agentID) so repeated runs over the same
// round reproduce the same aggregate.
type StableScoringHook struct{}

// Score implements ScoringHook.
func (StableScoringHook) Score(_ context.Context, roundID, agentID string, _ []byte) (float64, float64, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(roundID + ":" + agentID))
	r := rand.New(rand.NewSource(int64(h.Sum64())))
	return r.Float64(), r.Float64(), nil
}

// Config tunes the Orchestrator's windows and scoring parameters.
type Config struct {
	CommitWindowSeconds   int
	RevealWindowSeconds   int
	DefaultTargetDuration time.Duration
	EloK                  float64
}

// DefaultConfig returns the spec's default windows and gains.
func DefaultConfig() Config {
	return Config{
		CommitWindowSeconds:   DefaultCommitWindowSeconds,
		RevealWindowSeconds:   DefaultRevealWindowSeconds,
		DefaultTargetDuration: DefaultTargetDurationSeconds * time.Second,
		EloK:                  elo.DefaultK,
	}
}

// Orchestrator drives the Round state machine. It owns a single Difficulty
// Controller shared across every round it runs, per §4.5 ("maintains D").
type Orchestrator struct {
	cfg        Config
	store      store.Store
	moderation *moderation.Gateway
	cas        cas.Store
	finalizer  Finalizer
	scoring    ScoringHook
	difficulty *difficulty.Controller
	log        *logrus.Entry

	now func() time.Time
}

// New builds an Orchestrator. finalizer and casStore may be nil for tests
// that don't exercise the close path's external side effects.
func New(cfg Config, s store.Store, mod *moderation.Gateway, casStore cas.Store, finalizer Finalizer, scoring ScoringHook, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if scoring == nil {
		scoring = StableScoringHook{}
	}
	targetSeconds := cfg.DefaultTargetDuration.Seconds()
	if targetSeconds <= 0 {
		targetSeconds = DefaultTargetDurationSeconds
	}
	return &Orchestrator{
		cfg:        cfg,
		store:      s,
		moderation: mod,
		cas:        casStore,
		finalizer:  finalizer,
		scoring:    scoring,
		difficulty: difficulty.New(difficulty.DefaultConfig(targetSeconds)),
		log:        log,
		now:        time.Now,
	}
}

// StartResult is the result of StartRound.
type StartResult struct {
	ID              string
	State           domain.RoundState
	CommitDeadline  time.Time
	RevealDeadline  time.Time
	DifficultyScore float64
}

// StartRound opens a new Round in the COMMIT state over the given
// contestant/validator ids, shuffled deterministically.
func (o *Orchestrator) StartRound(ctx context.Context, contestantIDs, validatorIDs []string, targetDuration time.Duration, metadata map[string]any) (*StartResult, error) {
	if len(contestantIDs) == 0 {
		return nil, svcerrors.SchemaViolation("startRound requires at least one contestant")
	}
	if len(validatorIDs) == 0 {
		return nil, svcerrors.SchemaViolation("startRound requires at least one validator")
	}
	if targetDuration <= 0 {
		targetDuration = o.cfg.DefaultTargetDuration
	}

	now := o.now()
	commitDeadline := now.Add(time.Duration(o.cfg.CommitWindowSeconds) * time.Second)
	revealDeadline := commitDeadline.Add(time.Duration(o.cfg.RevealWindowSeconds) * time.Second)

	contestants := SeededShuffle(contestantIDs, now.UnixNano())
	validators := SeededShuffle(validatorIDs, commitDeadline.UnixNano())

	roundID := uuid.NewString()
	round := domain.Round{
		ID:             roundID,
		State:          domain.RoundStateCommit,
		StartedAt:      now,
		CommitDeadline: commitDeadline,
		RevealDeadline: revealDeadline,
		TargetDuration: targetDuration,
		Metadata:       metadata,
	}

	if err := o.store.SaveRound(ctx, round); err != nil {
		return nil, err
	}

	if err := o.enrollAgents(ctx, contestants, domain.RoleContestant, roundID); err != nil {
		return nil, err
	}
	if err := o.enrollAgents(ctx, validators, domain.RoleValidator, roundID); err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{
		"roundId":     roundID,
		"contestants": len(contestants),
		"validators":  len(validators),
	}).Info("round started")

	return &StartResult{
		ID:              roundID,
		State:           domain.RoundStateCommit,
		CommitDeadline:  commitDeadline,
		RevealDeadline:  revealDeadline,
		DifficultyScore: o.difficulty.Difficulty(),
	}, nil
}

func (o *Orchestrator) enrollAgents(ctx context.Context, ids []string, role domain.CommitteeRole, roundID string) error {
	for _, id := range ids {
		existing, err := o.store.Agent(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			if err := o.store.SaveAgent(ctx, domain.Agent{ID: id, Rating: domain.DefaultAgentRating}); err != nil {
				return err
			}
		}
		member := domain.CommitteeMember{
			ID:      uuid.NewString(),
			RoundID: roundID,
			AgentID: id,
			Role:    role,
		}
		if err := o.store.SaveCommitteeMember(ctx, member); err != nil {
			return err
		}
	}
	return nil
}

// CommitSubmission records commitHash for agentID in roundID, during the
// commit window only. Last-write-wins within the window.
func (o *Orchestrator) CommitSubmission(ctx context.Context, roundID, agentID, commitHash string) error {
	if !commitHashPattern.MatchString(commitHash) {
		return svcerrors.InvalidCommitHash(commitHash)
	}

	round, err := o.store.Round(ctx, roundID)
	if err != nil {
		return err
	}
	if round == nil {
		return svcerrors.RoundNotFound(roundID)
	}
	if o.now().After(round.CommitDeadline) {
		return svcerrors.CommitClosed(roundID)
	}

	member, err := o.findMember(ctx, roundID, agentID, domain.RoleContestant)
	if err != nil {
		return err
	}
	if member == nil {
		return svcerrors.NotEnrolled(roundID, agentID)
	}

	now := o.now()
	member.CommitHash = &commitHash
	member.CommitAt = &now
	return o.store.SaveCommitteeMember(ctx, *member)
}

// RevealSubmission verifies submission hashes to the stored commit, runs
// moderation, and stores the payload.
func (o *Orchestrator) RevealSubmission(ctx context.Context, roundID, agentID string, submission interface{}) error {
	round, err := o.store.Round(ctx, roundID)
	if err != nil {
		return err
	}
	if round == nil {
		return svcerrors.RoundNotFound(roundID)
	}
	if o.now().After(round.RevealDeadline) {
		return svcerrors.RevealClosed(roundID)
	}

	member, err := o.findMember(ctx, roundID, agentID, domain.RoleContestant)
	if err != nil {
		return err
	}
	if member == nil {
		return svcerrors.NotEnrolled(roundID, agentID)
	}
	if member.CommitHash == nil {
		return svcerrors.MissingCommit(roundID, agentID)
	}

	canonical, err := stablejson.Marshal(submission)
	if err != nil {
		return fmt.Errorf("arena: canonicalize submission: %w", err)
	}
	computedHash := hexDigest(canonical)
	if !strings.EqualFold(computedHash, *member.CommitHash) {
		return svcerrors.CommitmentMismatch(roundID, agentID)
	}

	now := o.now()
	if o.moderation != nil {
		verdict := o.moderation.Classify(ctx, string(canonical))
		if verdict.Flagged {
			member.Slashed = true
			member.ModerationNote = &verdict.Reason
			member.RevealPayload = canonical
			member.RevealAt = &now
			if saveErr := o.store.SaveCommitteeMember(ctx, *member); saveErr != nil {
				return saveErr
			}
			o.log.WithFields(logrus.Fields{"roundId": roundID, "agentId": agentID, "reason": verdict.Reason}).Warn("reveal rejected by moderation")
			return svcerrors.ModerationRejected(verdict.Reason)
		}
	}

	member.RevealPayload = canonical
	member.RevealAt = &now
	return o.store.SaveCommitteeMember(ctx, *member)
}

func hexDigest(data []byte) string {
	digest := signer.Keccak256(data)
	return "0x" + hex.EncodeToString(digest[:])
}

func (o *Orchestrator) findMember(ctx context.Context, roundID, agentID string, role domain.CommitteeRole) (*domain.CommitteeMember, error) {
	members, err := o.store.CommitteeMembers(ctx, roundID)
	if err != nil {
		return nil, err
	}
	for i := range members {
		if members[i].AgentID == agentID && members[i].Role == role {
			return &members[i], nil
		}
	}
	return nil, nil
}

