package arena

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain"
	"github.com/r3e-network/culture-arena/domain/elo"
	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
)

// CloseResult is the outcome of closing a Round.
type CloseResult struct {
	RoundID       string
	Aggregate     elo.QDScore
	NewDifficulty float64
	CID           string
}

type casSnapshot struct {
	Round     domain.Round `json:"round"`
	Aggregate elo.QDScore  `json:"aggregate"`
	ClosedAt  string       `json:"closedAt"`
}

// CloseRound runs the §4.4 eight-step close sequence. It is idempotent: a
// round already CLOSED is a no-op that returns the round id, its stored CID
// and the controller's current difficulty; the aggregate is not recomputed
// and is left zero in that result.
func (o *Orchestrator) CloseRound(ctx context.Context, roundID string) (*CloseResult, error) {
	round, err := o.store.Round(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, svcerrors.RoundNotFound(roundID)
	}
	if round.State == domain.RoundStateClosed {
		return o.alreadyClosedResult(*round), nil
	}

	members, err := o.store.CommitteeMembers(ctx, roundID)
	if err != nil {
		return nil, err
	}

	// Step 1: slash validators with no commit, contestants with no reveal.
	for i := range members {
		m := &members[i]
		switch m.Role {
		case domain.RoleValidator:
			if m.CommitHash == nil {
				m.Slashed = true
			}
		case domain.RoleContestant:
			if m.RevealPayload == nil {
				m.Slashed = true
			}
		}
	}

	// Steps 2-3: per-contestant QD score, then aggregate.
	var qdScores []elo.QDScore
	for i := range members {
		m := &members[i]
		if m.Role != domain.RoleContestant || m.Slashed || m.RevealPayload == nil {
			continue
		}
		quality, novelty, scoreErr := o.scoring.Score(ctx, roundID, m.AgentID, m.RevealPayload)
		if scoreErr != nil {
			o.log.WithError(scoreErr).WithField("agentId", m.AgentID).Warn("scoring hook failed, treating as zero score")
			quality, novelty = 0, 0
		}
		qdScores = append(qdScores, elo.ComputeQDScore(quality, novelty))
	}
	aggregate := elo.Aggregate(qdScores)

	// Step 4: Elo updates.
	if updateErr := o.updateRatings(ctx, members, aggregate); updateErr != nil {
		return nil, updateErr
	}

	for i := range members {
		if saveErr := o.store.SaveCommitteeMember(ctx, members[i]); saveErr != nil {
			return nil, saveErr
		}
	}

	now := o.now()

	// Step 5: CAS snapshot.
	var cid string
	if o.cas != nil {
		snapshot := casSnapshot{Round: *round, Aggregate: aggregate, ClosedAt: now.Format("2006-01-02T15:04:05.000Z07:00")}
		cid, err = o.cas.Put(ctx, snapshot)
		if err != nil {
			o.log.WithError(err).Warn("cas snapshot failed, closing round without a cid")
			cid = ""
		}
	}

	// Step 6: transition to CLOSED.
	round.State = domain.RoundStateClosed
	round.ClosedAt = &now
	if cid != "" {
		round.IPFSSnapshotCID = &cid
	}
	if err := o.store.SaveRound(ctx, *round); err != nil {
		return nil, err
	}

	// Step 7: notify finalizer; failure logged, never undoes the close.
	if o.finalizer != nil {
		if notifyErr := o.finalizer.NotifyRoundFinalized(ctx, roundID, aggregate); notifyErr != nil {
			o.log.WithError(notifyErr).WithField("roundId", roundID).Warn("ledger finalizer notify failed")
		}
	}

	// Step 8: feed actual duration into the difficulty controller.
	actualDuration := now.Sub(round.StartedAt).Seconds()
	newDifficulty := o.difficulty.Update(actualDuration)

	o.log.WithFields(logrus.Fields{"roundId": roundID, "difficulty": newDifficulty, "cid": cid}).Info("round closed")

	return &CloseResult{RoundID: roundID, Aggregate: aggregate, NewDifficulty: newDifficulty, CID: cid}, nil
}

func (o *Orchestrator) updateRatings(ctx context.Context, members []domain.CommitteeMember, aggregate elo.QDScore) error {
	var validatorRatings []float64
	agentRatings := make(map[string]float64, len(members))

	for _, m := range members {
		agent, err := o.store.Agent(ctx, m.AgentID)
		if err != nil {
			return err
		}
		rating := domain.DefaultAgentRating
		if agent != nil {
			rating = agent.Rating
		}
		agentRatings[m.AgentID] = rating
		if m.Role == domain.RoleValidator {
			validatorRatings = append(validatorRatings, rating)
		}
	}

	meanValidatorRating := meanOf(validatorRatings)
	pseudoOpponent := aggregate.Fitness*1000 + 1000

	for i := range members {
		m := &members[i]
		k := o.cfg.EloK
		if k == 0 {
			k = elo.DefaultK
		}

		var newRating float64
		switch m.Role {
		case domain.RoleContestant:
			newRating = elo.NewRating(agentRatings[m.AgentID], meanValidatorRating, 1, k)
		case domain.RoleValidator:
			score := 1.0
			if m.Slashed {
				score = 0.0
			}
			newRating = elo.NewRating(agentRatings[m.AgentID], pseudoOpponent, score, k)
		default:
			continue
		}

		if err := o.store.SaveAgent(ctx, domain.Agent{ID: m.AgentID, Rating: newRating}); err != nil {
			return err
		}
	}
	return nil
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return domain.DefaultAgentRating
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func (o *Orchestrator) alreadyClosedResult(round domain.Round) *CloseResult {
	cid := ""
	if round.IPFSSnapshotCID != nil {
		cid = *round.IPFSSnapshotCID
	}
	return &CloseResult{RoundID: round.ID, NewDifficulty: o.difficulty.Difficulty(), CID: cid}
}
