package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain/arena"
	"github.com/r3e-network/culture-arena/domain/store"
	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
	"github.com/r3e-network/culture-arena/infrastructure/httputil"
)

var (
	roundsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arena_rounds_started_total",
		Help: "Total rounds started by the Arena Round Orchestrator.",
	})
	roundsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_rounds_closed_total",
		Help: "Total rounds closed, labeled by how closure was triggered.",
	}, []string{"trigger"})
)

func init() {
	prometheus.MustRegister(roundsStarted, roundsClosed)
}

// server wires the Arena Round Orchestrator onto an HTTP surface, per §6's
// illustrative endpoint list.
type server struct {
	orchestrator *arena.Orchestrator
	store        store.Store
	hub          *roundHub
	log          *logrus.Entry
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/arena/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/arena/commit", s.handleCommit).Methods(http.MethodPost)
	r.HandleFunc("/arena/reveal", s.handleReveal).Methods(http.MethodPost)
	r.HandleFunc("/arena/close/{roundId}", s.handleClose).Methods(http.MethodPost)
	r.HandleFunc("/arena/status/{roundId}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/arena/scoreboard", s.handleScoreboard).Methods(http.MethodGet)
	r.HandleFunc("/arena/stream", s.hub.handleWebsocket).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// writeJSON and writeError delegate to the shared infrastructure/httputil
// helpers, the single JSON response/error path also available to the
// Indexer and Telemetry Submitter HTTP surfaces.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	httputil.WriteJSON(w, status, v)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

type startRequest struct {
	ContestantIDs  []string               `json:"contestantIds"`
	ValidatorIDs   []string               `json:"validatorIds"`
	TargetSeconds  int                    `json:"targetSeconds"`
	Metadata       map[string]interface{} `json:"metadata"`
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, svcerrors.SchemaViolation("malformed start request: "+err.Error()))
		return
	}

	result, err := s.orchestrator.StartRound(r.Context(), req.ContestantIDs, req.ValidatorIDs,
		time.Duration(req.TargetSeconds)*time.Second, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	roundsStarted.Inc()
	writeJSON(w, http.StatusCreated, result)
}

type commitRequest struct {
	RoundID    string `json:"roundId"`
	AgentID    string `json:"agentId"`
	CommitHash string `json:"commitHash"`
}

func (s *server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, svcerrors.SchemaViolation("malformed commit request: "+err.Error()))
		return
	}
	if err := s.orchestrator.CommitSubmission(r.Context(), req.RoundID, req.AgentID, req.CommitHash); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type revealRequest struct {
	RoundID    string      `json:"roundId"`
	AgentID    string      `json:"agentId"`
	Submission interface{} `json:"submission"`
}

func (s *server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, svcerrors.SchemaViolation("malformed reveal request: "+err.Error()))
		return
	}
	if err := s.orchestrator.RevealSubmission(r.Context(), req.RoundID, req.AgentID, req.Submission); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *server) handleClose(w http.ResponseWriter, r *http.Request) {
	roundID := mux.Vars(r)["roundId"]
	result, err := s.orchestrator.CloseRound(r.Context(), roundID)
	if err != nil {
		writeError(w, err)
		return
	}
	roundsClosed.WithLabelValues("manual").Inc()
	s.hub.broadcast(result)
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	roundID := mux.Vars(r)["roundId"]
	round, err := s.store.Round(r.Context(), roundID)
	if err != nil {
		writeError(w, err)
		return
	}
	if round == nil {
		writeError(w, svcerrors.RoundNotFound(roundID))
		return
	}
	members, err := s.store.CommitteeMembers(r.Context(), roundID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"round": round, "members": members})
}

func (s *server) handleScoreboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil && parsed > 0 {
			limit = parsed
		}
	}
	agents, err := s.store.Agents(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}
