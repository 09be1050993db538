// Package main is the Culture-Graph Indexer entry point: it runs the Event
// Ingestor's backfill-then-tail loop against the configured Ledger and
// triggers the Influence Engine's recompute on every applied event.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain/influence"
	"github.com/r3e-network/culture-arena/domain/ingestor"
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
	entry := log.Component("indexer")

	st, err := store.NewPostgresStore(context.Background(), cfg.Database.DSN)
	if err != nil {
		entry.WithError(err).Fatal("connect store")
	}

	chain, err := ledger.NewClient(ledger.Config{
		RPCURL:            cfg.Ledger.RPCURL,
		VerifyingContract: cfg.Ledger.VerifyingContract,
		Timeout:           cfg.Ledger.RequestTimeout,
		PollInterval:      cfg.Indexer.TailInterval,
	})
	if err != nil {
		entry.WithError(err).Fatal("build ledger client")
	}

	oracle, err := influence.NewHTTPReferenceOracle(cfg.Influence.ValidatorEndpoint, 10*time.Second)
	if err != nil {
		entry.WithError(err).Fatal("build reference oracle")
	}

	engine := influence.NewEngine(st, oracle, influence.Config{
		Damping:       cfg.Influence.Damping,
		Tolerance:     cfg.Influence.Tolerance,
		MaxIterations: cfg.Influence.MaxIterations,
	}, nil, 0, log.Component("influence"))

	addresses := dedupe(cfg.Ledger.MintedTopicAddress, cfg.Ledger.RoundTopicAddress)
	ing := ingestor.New(ingestor.Config{
		Addresses:      addresses,
		FinalityDepth:  cfg.Indexer.FinalityDepth,
		BlockBatchSize: cfg.Indexer.BlockBatchSize,
	}, chain, st, engine, log.Component("ingestor"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := ing.Start(ctx); err != nil && ctx.Err() == nil {
			entry.WithError(err).Fatal("ingestor stopped")
		}
	}()

	httpSrv := &indexerServer{store: st, ing: ing, log: log.Component("http")}
	addr := cfg.Indexer.HTTPAddr
	if addr == "" {
		addr = ":8083"
	}
	httpServer := &http.Server{Addr: addr, Handler: httpSrv.routes()}

	go func() {
		entry.WithField("addr", addr).Info("indexer http server listening")
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

func dedupe(addrs ...string) []string {
	seen := make(map[string]bool, len(addrs))
	var out []string
	for _, a := range addrs {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
