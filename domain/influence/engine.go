package influence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain"
	"github.com/r3e-network/culture-arena/domain/store"
	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
)

// Engine recomputes PageRank/CitationCount/LineageDepth after ingested
// events and persists all three metrics transactionally, per §4.3.
type Engine struct {
	store  store.Store
	oracle ReferenceOracle
	cfg    Config
	cache  *redis.Client
	cacheTTL time.Duration
	log    *logrus.Entry
}

// NewEngine builds an Engine. cache may be nil, in which case scores are not
// cached externally (only held in the store).
func NewEngine(s store.Store, oracle ReferenceOracle, cfg Config, cache *redis.Client, cacheTTL time.Duration, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Engine{store: s, oracle: oracle, cfg: cfg, cache: cache, cacheTTL: cacheTTL, log: log}
}

// ScheduleRecompute implements ingestor.InfluenceRecomputer. The minimal
// implementation recomputes synchronously and ignores which ids triggered
// it, since PageRank is a whole-graph computation; the ids are logged for
// observability only.
func (e *Engine) ScheduleRecompute(ctx context.Context, artifactIDs []string) {
	if err := e.Recompute(ctx); err != nil {
		e.log.WithError(err).WithField("triggeredBy", artifactIDs).Warn("influence recompute failed")
	}
}

// Recompute runs the full §4.3 pipeline: load, PageRank, CitationCount,
// LineageDepth, persist, optional cross-validation.
func (e *Engine) Recompute(ctx context.Context) error {
	artifacts, err := e.store.Artifacts(ctx)
	if err != nil {
		return err
	}
	citations, err := e.store.Citations(ctx)
	if err != nil {
		return err
	}

	g := BuildGraph(artifacts, citations)
	cfg := e.cfg
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}

	result := PageRank(g, cfg)
	counts := CitationCount(g)
	depths := LineageDepth(g)

	metrics := make([]domain.InfluenceMetric, 0, len(g.Nodes))
	for _, id := range g.Nodes {
		metrics = append(metrics, domain.InfluenceMetric{
			ArtifactID:    id,
			Score:         result.Scores[id],
			CitationCount: counts[id],
			LineageDepth:  depths[id],
		})
	}

	if err := e.store.SaveInfluenceMetrics(ctx, metrics); err != nil {
		return err
	}

	e.cacheScores(ctx, result.Scores)

	report := CrossValidate(ctx, e.oracle, g, cfg, result.Scores)
	if !report.Skipped && !report.OK {
		return svcerrors.InfluenceValidationFailed(report.MaxDelta, 5*cfg.Tolerance)
	}
	if report.Skipped {
		e.log.Debug("cross-validation skipped: reference oracle unavailable")
	}

	return nil
}

func (e *Engine) cacheScores(ctx context.Context, scores map[string]float64) {
	if e.cache == nil {
		return
	}
	payload, err := json.Marshal(scores)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, "influence:scores", payload, e.cacheTTL).Err(); err != nil {
		e.log.WithError(err).Debug("influence score cache write failed")
	}
}

// CachedScores reads the last cached score snapshot, if any.
func (e *Engine) CachedScores(ctx context.Context) (map[string]float64, error) {
	if e.cache == nil {
		return nil, nil
	}
	raw, err := e.cache.Get(ctx, "influence:scores").Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read influence score cache: %w", err)
	}
	var scores map[string]float64
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, fmt.Errorf("unmarshal cached scores: %w", err)
	}
	return scores, nil
}
