// Package main is the Operator Telemetry Submitter entry point: it polls
// on-disk EnergyLog files, signs EnergyAttestation payloads, and delivers
// them through either a contract-mode or API-mode Sender, per spec §4.8-§4.9.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain/telemetry"
	"github.com/r3e-network/culture-arena/domain/telemetry/nonce"
	"github.com/r3e-network/culture-arena/domain/telemetry/sender"
	"github.com/r3e-network/culture-arena/infrastructure/ledger"
	"github.com/r3e-network/culture-arena/infrastructure/signer"
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
	entry := log.Component("telemetry-submitter")

	stateFile := cfg.Telemetry.StateFile
	if stateFile == "" {
		stateFile = "./telemetry-state.json"
	}
	state, err := telemetry.LoadStateStore(stateFile)
	if err != nil {
		entry.WithError(err).Fatal("load state store")
	}

	sgn, err := signer.NewLocalSignerFromHex(cfg.Telemetry.SignerKey)
	if err != nil {
		entry.WithError(err).Fatal("build signer")
	}

	var nonceManager nonce.Manager
	var snd sender.Sender

	mode := strings.ToLower(cfg.Telemetry.Mode)
	switch mode {
	case "contract":
		chain, err := ledger.NewClient(ledger.Config{
			RPCURL:            cfg.Ledger.RPCURL,
			VerifyingContract: cfg.Ledger.VerifyingContract,
			Timeout:           cfg.Ledger.RequestTimeout,
		})
		if err != nil {
			entry.WithError(err).Fatal("build ledger client")
		}
		nonceManager = nonce.NewContractManager(chain, func(_ context.Context) error {
			entry.Warn("refreshing ledger connection after classified network failure")
			return nil
		})
		snd = sender.NewContractSender(chain)
	case "api":
		nonceManager = nonce.NewAPIManager(state)
		apiSender, err := sender.NewAPISender(sender.APIConfig{
			Endpoint: cfg.Telemetry.APIURL,
			Timeout:  15 * time.Second,
		})
		if err != nil {
			entry.WithError(err).Fatal("build api sender")
		}
		snd = apiSender
	default:
		entry.Fatal(fmt.Sprintf("unknown telemetry mode %q, expected \"api\" or \"contract\"", cfg.Telemetry.Mode))
	}

	submitterCfg := telemetry.Config{
		EnergyLogDir:      cfg.Telemetry.EnergyLogDir,
		MaxBatchSize:      cfg.Telemetry.MaxBatchSize,
		MaxRetries:        cfg.Telemetry.MaxRetries,
		RetryDelayMS:      cfg.Telemetry.RetryDelayMS,
		ChainID:           cfg.Ledger.ChainID,
		VerifyingContract: cfg.Ledger.VerifyingContract,
		EnergyScaling:     cfg.Telemetry.EnergyScaling,
		ValueScaling:      cfg.Telemetry.ValueScaling,
		EpochDurationSec:  cfg.Telemetry.EpochDurationSec,
		DeadlineBufferSec: cfg.Telemetry.DeadlineBufferSec,
		Role:              cfg.Telemetry.Role,
		PollInterval:      cfg.Telemetry.PollInterval(),
	}

	submitter := telemetry.New(submitterCfg, state, nonceManager, snd, sgn, log.Component("submitter"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := submitter.Run(ctx); err != nil && ctx.Err() == nil {
			entry.WithError(err).Fatal("submitter stopped")
		}
	}()

	httpSrv := &telemetryServer{submitter: submitter, log: log.Component("http")}
	addr := cfg.Telemetry.HTTPAddr
	if addr == "" {
		addr = ":8082"
	}
	httpServer := &http.Server{Addr: addr, Handler: httpSrv.routes()}

	go func() {
		entry.WithField("addr", addr).Info("telemetry-submitter http server listening")
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
