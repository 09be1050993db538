// Package main is the Arena Round Orchestrator's HTTP entry point: it
// drives the commit/reveal round lifecycle over the configured store,
// moderation gateway, CAS snapshotter, and ledger finalizer, and serves the
// §6 illustrative HTTP/WebSocket surface.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain/arena"
	"github.com/r3e-network/culture-arena/domain/cas"
	"github.com/r3e-network/culture-arena/domain/moderation"
	"github.com/r3e-network/culture-arena/domain/store"
	"github.com/r3e-network/culture-arena/infrastructure/ledger"
	"github.com/r3e-network/culture-arena/pkg/config"
	"github.com/r3e-network/culture-arena/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	log := logger.New(logger.Config{
		Level: cfg.Logging.Level, Format: cfg.Logging.Format,
		Output: cfg.Logging.Output, FilePrefix: cfg.Logging.FilePrefix,
	})
	entry := log.Component("arena")

	st, err := store.NewPostgresStore(context.Background(), cfg.Database.DSN)
	if err != nil {
		entry.WithError(err).Fatal("connect store")
	}

	mod, err := moderation.New(moderation.Config{
		ExternalEndpoint: cfg.Moderation.ExternalEndpoint,
	}, log.Component("moderation"))
	if err != nil {
		entry.WithError(err).Fatal("build moderation gateway")
	}

	casStore, err := cas.NewLocalStore(cfg.CAS.SnapshotDir)
	if err != nil {
		entry.WithError(err).Fatal("build cas store")
	}

	var chain ledger.Ledger
	if cfg.Ledger.RPCURL != "" {
		chain, err = ledger.NewClient(ledger.Config{
			RPCURL:            cfg.Ledger.RPCURL,
			VerifyingContract: cfg.Ledger.VerifyingContract,
			Timeout:           cfg.Ledger.RequestTimeout,
		})
		if err != nil {
			entry.WithError(err).Fatal("build ledger client")
		}
	} else {
		entry.Warn("no ledger rpc url configured, round closes will not notify the chain")
		chain = ledger.NewMockLedger()
	}
	finalizer := &ledgerFinalizer{ledger: chain}

	orchestratorCfg := arena.Config{
		CommitWindowSeconds:   cfg.Arena.CommitWindowSeconds,
		RevealWindowSeconds:   cfg.Arena.RevealWindowSeconds,
		DefaultTargetDuration: time.Duration(cfg.Difficulty.TargetSeconds) * time.Second,
		EloK:                  cfg.Arena.EloK,
	}
	orchestrator := arena.New(orchestratorCfg, st, mod, casStore, finalizer, nil, log.Component("orchestrator"))

	hub := newRoundHub(log.Component("hub"))
	srv := &server{orchestrator: orchestrator, store: st, hub: hub, log: log.Component("http")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweep := &sweeper{orchestrator: orchestrator, store: st, hub: hub, log: log.Component("sweeper")}
	cronJob, err := startSweeper(ctx, sweep, cfg.Arena.SweepInterval)
	if err != nil {
		entry.WithError(err).Fatal("start sweeper")
	}
	defer cronJob.Stop()

	addr := cfg.Arena.HTTPAddr
	if addr == "" {
		addr = ":8081"
	}
	httpServer := &http.Server{Addr: addr, Handler: srv.routes()}

	go func() {
		entry.WithField("addr", addr).Info("arena http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Fatal("http server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	entry.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		entry.WithError(err).Warn("graceful shutdown failed")
	}
}
