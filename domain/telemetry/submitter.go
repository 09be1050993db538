// Package telemetry implements the Operator Telemetry Submitter: it polls
// on-disk EnergyLog files, builds EnergyAttestation payloads, signs them,
// and delivers them through a contract or API Sender with bounded retry,
// guarding against replay and stranded nonces across restarts.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain"
	"github.com/r3e-network/culture-arena/domain/telemetry/nonce"
	"github.com/r3e-network/culture-arena/domain/telemetry/sender"
	"github.com/r3e-network/culture-arena/infrastructure/signer"
)

const (
	defaultMaxRetries   = 5
	defaultRetryDelayMS = 2000
	defaultMaxBatchSize = 20
)

// Config configures a Submitter. It mirrors pkg/config.TelemetryConfig
// field-for-field; cmd/telemetry-submitter adapts one into the other.
type Config struct {
	EnergyLogDir       string
	MaxBatchSize       int
	MaxRetries         int
	RetryDelayMS       int
	ChainID            int64
	VerifyingContract  string
	EnergyScaling      float64
	ValueScaling       float64
	EpochDurationSec   int64
	DeadlineBufferSec  int64
	Role               int
	PollInterval       time.Duration
}

// Status summarizes the most recently completed submission cycle, for the
// control surface's GET /status.
type Status struct {
	LastCycleAt         time.Time
	LastCycleLogs       int
	LastCycleSubmitted  int
	LastCycleFailed     int
	PendingReservations int
}

// Submitter runs the per-cycle attestation pipeline on a poll loop.
type Submitter struct {
	cfg       Config
	state     *StateStore
	nonces    nonce.Manager
	sender    sender.Sender
	signer    signer.Signer
	log       *logrus.Entry
	now       func() time.Time
	immediate chan struct{}

	statusMu sync.Mutex
	status   Status
}

// New builds a Submitter.
func New(cfg Config, state *StateStore, nonces nonce.Manager, snd sender.Sender, sgn signer.Signer, log *logrus.Entry) *Submitter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Submitter{
		cfg:       cfg,
		state:     state,
		nonces:    nonces,
		sender:    snd,
		signer:    sgn,
		log:       log,
		now:       time.Now,
		immediate: make(chan struct{}, 1),
	}
}

// TriggerNow requests an out-of-band cycle at the next loop iteration,
// coalescing with any already-pending request.
func (s *Submitter) TriggerNow() {
	select {
	case s.immediate <- struct{}{}:
	default:
	}
}

// Run polls at cfg.PollInterval until ctx is cancelled, running one cycle
// per tick (and immediately on TriggerNow). A failed cycle is logged and
// does not stop the loop.
func (s *Submitter) Run(ctx context.Context) error {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.immediate:
		}

		if err := s.RunOnce(ctx); err != nil {
			s.log.WithError(err).Warn("telemetry: cycle failed")
		}
	}
}

// RunOnce executes one submission cycle over the currently readable
// EnergyLog files.
func (s *Submitter) RunOnce(ctx context.Context) error {
	logs := s.loadEnergyLogs()

	sort.Slice(logs, func(a, b int) bool {
		return logs[a].Summary.LastUpdated.Before(logs[b].Summary.LastUpdated)
	})

	maxBatch := s.cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatchSize
	}
	if len(logs) > maxBatch {
		logs = logs[:maxBatch]
	}

	now := s.now()
	submitted, failed := 0, 0
	for _, log := range logs {
		if s.processOne(ctx, log, now) {
			submitted++
		} else {
			failed++
		}
	}

	s.statusMu.Lock()
	s.status.LastCycleAt = now
	s.status.LastCycleLogs = len(logs)
	s.status.LastCycleSubmitted = submitted
	s.status.LastCycleFailed = failed
	s.statusMu.Unlock()

	return nil
}

// Status returns a snapshot of the most recently completed cycle.
func (s *Submitter) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *Submitter) reservationStarted() {
	s.statusMu.Lock()
	s.status.PendingReservations++
	s.statusMu.Unlock()
}

func (s *Submitter) reservationResolved() {
	s.statusMu.Lock()
	if s.status.PendingReservations > 0 {
		s.status.PendingReservations--
	}
	s.statusMu.Unlock()
}

// processOne runs the attestation pipeline for one EnergyLog, returning
// true if it was submitted (or intentionally skipped as already-processed),
// false if a reservation, signing, or submit step failed.
func (s *Submitter) processOne(ctx context.Context, log domain.EnergyLog, now time.Time) bool {
	raw, err := buildAttestation(log, now.Unix(), buildParams{
		EnergyScaling:     s.cfg.EnergyScaling,
		ValueScaling:      s.cfg.ValueScaling,
		EpochDurationSec:  s.cfg.EpochDurationSec,
		DeadlineBufferSec: s.cfg.DeadlineBufferSec,
		Role:              s.cfg.Role,
	})
	if err != nil {
		s.log.WithError(err).WithField("jobId", log.JobID).Warn("telemetry: skipping malformed energy log")
		return false
	}

	key := processedKey(raw.User, raw.JobID)
	lastUpdated := log.Summary.LastUpdated.UTC().Format(time.RFC3339Nano)
	if prev := s.state.Processed(key); prev != "" && prev >= lastUpdated {
		return true
	}

	reservation, err := s.nonces.Reserve(ctx, raw.User)
	if err != nil {
		s.log.WithError(err).WithField("user", raw.User).Warn("telemetry: nonce reservation failed")
		return false
	}
	if reservation == nil {
		return true
	}

	s.reservationStarted()
	defer s.reservationResolved()

	digest := typedDataDigest(s.cfg.ChainID, s.cfg.VerifyingContract, raw, reservation.Nonce)
	signature, err := s.signer.SignDigest(ctx, digest)
	if err != nil {
		_ = s.nonces.Release(ctx, *reservation)
		s.log.WithError(err).WithField("user", raw.User).Warn("telemetry: signing failed")
		return false
	}

	att := sender.Attestation{
		JobID:      raw.JobID,
		User:       raw.User,
		Energy:     raw.Energy,
		Degeneracy: raw.Degeneracy,
		EpochID:    raw.EpochID,
		Role:       raw.Role,
		Deadline:   raw.Deadline,
		UPre:       raw.UPre,
		UPost:      raw.UPost,
		Value:      raw.Value,
		Signature:  signature,
		Nonce:      reservation.Nonce,
	}

	if err := s.submitWithBackoff(ctx, att); err != nil {
		if releaseErr := s.nonces.Release(ctx, *reservation); releaseErr != nil {
			s.log.WithError(releaseErr).Warn("telemetry: nonce release after failed submit also failed")
		}
		s.log.WithError(err).WithField("user", raw.User).WithField("jobId", raw.JobID).Warn("telemetry: submit exhausted retries")
		return false
	}

	if err := s.nonces.Confirm(ctx, *reservation); err != nil {
		s.log.WithError(err).Warn("telemetry: nonce confirm failed")
	}
	if err := s.state.MarkProcessed(key, lastUpdated); err != nil {
		s.log.WithError(err).Warn("telemetry: failed to persist processed state")
	}
	return true
}

// submitWithBackoff makes an initial Submit attempt plus up to cfg.MaxRetries
// retries, delaying baseDelay*2^(attempt-1) after every failed attempt except
// the last. With the default MaxRetries=5 this produces 6 total attempts and
// the 2s,4s,8s,16s,32s schedule.
func (s *Submitter) submitWithBackoff(ctx context.Context, att sender.Attestation) error {
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	baseDelayMS := s.cfg.RetryDelayMS
	if baseDelayMS <= 0 {
		baseDelayMS = defaultRetryDelayMS
	}
	baseDelay := time.Duration(baseDelayMS) * time.Millisecond

	totalAttempts := maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= totalAttempts; attempt++ {
		if err := s.sender.Submit(ctx, att); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == totalAttempts {
			break
		}
		delay := baseDelay * time.Duration(uint64(1)<<uint(attempt-1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("telemetry: submit failed after %d attempts: %w", totalAttempts, lastErr)
}

// loadEnergyLogs walks energyLogDir/<agent>/*.json, parsing and sanitizing
// each file; malformed files are skipped with a warning rather than failing
// the whole cycle.
func (s *Submitter) loadEnergyLogs() []domain.EnergyLog {
	dir := s.cfg.EnergyLogDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).WithField("dir", dir).Warn("telemetry: failed to list energy log directory")
		}
		return nil
	}

	var logs []domain.EnergyLog
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		agentDir := filepath.Join(dir, entry.Name())
		files, err := filepath.Glob(filepath.Join(agentDir, "*.json"))
		if err != nil {
			s.log.WithError(err).WithField("agentDir", agentDir).Warn("telemetry: failed to glob agent directory")
			continue
		}

		for _, f := range files {
			raw, err := os.ReadFile(f)
			if err != nil {
				s.log.WithError(err).WithField("file", f).Warn("telemetry: failed to read energy log, skipped")
				continue
			}
			var entryLog domain.EnergyLog
			if err := json.Unmarshal(raw, &entryLog); err != nil {
				s.log.WithError(err).WithField("file", f).Warn("telemetry: malformed energy log, skipped")
				continue
			}
			if entryLog.Agent == "" {
				entryLog.Agent = entry.Name()
			}
			logs = append(logs, entryLog)
		}
	}
	return logs
}
