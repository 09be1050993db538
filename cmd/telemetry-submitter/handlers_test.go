package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/culture-arena/domain/telemetry"
	"github.com/r3e-network/culture-arena/domain/telemetry/nonce"
)

type memPersisted struct{ m map[string]uint64 }

func (p *memPersisted) Get(address string) uint64    { return p.m[address] }
func (p *memPersisted) Set(address string, n uint64) { p.m[address] = n }

func newTestTelemetryServer(t *testing.T) *telemetryServer {
	t.Helper()
	state, err := telemetry.LoadStateStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	mgr := nonce.NewAPIManager(&memPersisted{m: make(map[string]uint64)})
	s := telemetry.New(telemetry.Config{EnergyLogDir: t.TempDir()}, state, mgr, nil, nil, logrus.NewEntry(logrus.New()))
	return &telemetryServer{submitter: s, log: logrus.NewEntry(logrus.New())}
}

func TestHandleStatusReturnsSubmitterSnapshot(t *testing.T) {
	srv := newTestTelemetryServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleRunNowAccepts(t *testing.T) {
	srv := newTestTelemetryServer(t)

	req := httptest.NewRequest(http.MethodPost, "/run-now", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleHealthzReportsHostMetrics(t *testing.T) {
	srv := newTestTelemetryServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "status")
}
