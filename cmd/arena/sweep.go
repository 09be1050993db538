package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain"
	"github.com/r3e-network/culture-arena/domain/arena"
	"github.com/r3e-network/culture-arena/domain/store"
)

// sweeper periodically closes rounds whose reveal window has elapsed, so a
// round with no human/automation caller still finalizes per §4.4's "sweep
// job" note.
type sweeper struct {
	orchestrator *arena.Orchestrator
	store        store.Store
	hub          *roundHub
	log          *logrus.Entry
}

func (s *sweeper) sweepOnce(ctx context.Context) {
	rounds, err := s.store.OpenRounds(ctx)
	if err != nil {
		s.log.WithError(err).Warn("sweep: list open rounds")
		return
	}

	now := time.Now()
	for _, round := range rounds {
		if round.State == domain.RoundStateClosed {
			continue
		}
		if now.Before(round.RevealDeadline) {
			continue
		}
		result, err := s.orchestrator.CloseRound(ctx, round.ID)
		if err != nil {
			s.log.WithError(err).WithField("roundId", round.ID).Warn("sweep: close round")
			continue
		}
		roundsClosed.WithLabelValues("sweep").Inc()
		s.hub.broadcast(result)
		s.log.WithField("roundId", round.ID).Info("sweep: closed expired round")
	}
}

// startSweeper runs sweepOnce on the given interval via a cron schedule
// expressed as "@every <interval>", stopping when ctx is cancelled.
func startSweeper(ctx context.Context, s *sweeper, interval time.Duration) (*cron.Cron, error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := cron.New()
	_, err := c.AddFunc("@every "+interval.String(), func() { s.sweepOnce(ctx) })
	if err != nil {
		return nil, err
	}
	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c, nil
}
