package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain/ingestor"
	"github.com/r3e-network/culture-arena/domain/store"
	"github.com/r3e-network/culture-arena/infrastructure/httputil"
)

var backfillTriggered = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "indexer_manual_backfill_triggered_total",
	Help: "Total manually-triggered backfill passes via POST /indexer/backfill.",
})

func init() {
	prometheus.MustRegister(backfillTriggered)
}

// indexerServer exposes the Culture-Graph Indexer's operational surface:
// health, metrics, cursor inspection, and a manual backfill trigger.
type indexerServer struct {
	store store.Store
	ing   *ingestor.Ingestor
	log   *logrus.Entry
}

func (s *indexerServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/indexer/cursor", s.handleCursor)
	r.Post("/indexer/backfill", s.handleBackfill)
	return r
}

func (s *indexerServer) handleCursor(w http.ResponseWriter, r *http.Request) {
	cursor, err := s.store.ReadCursor(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("indexer: read cursor failed")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cursor)
}

// handleBackfill triggers a coalesced backfill pass in the background;
// concurrent callers fold onto the in-flight pass per Ingestor.Backfill.
func (s *indexerServer) handleBackfill(w http.ResponseWriter, _ *http.Request) {
	backfillTriggered.Inc()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.ing.Backfill(ctx, false); err != nil {
			s.log.WithError(err).Warn("indexer: manual backfill failed")
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}
