package sender

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/r3e-network/culture-arena/infrastructure/httputil"
)

// APIConfig configures an APISender.
type APIConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// APISender submits attestations to an off-chain API endpoint instead of a
// contract. Used when the Telemetry Submitter is configured for API mode.
type APISender struct {
	endpoint   string
	httpClient *http.Client
}

// NewAPISender builds an APISender over a normalized endpoint.
func NewAPISender(cfg APIConfig) (*APISender, error) {
	normalized, _, err := httputil.NormalizeServiceBaseURL(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("sender: invalid API endpoint: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := httputil.CopyHTTPClientWithTimeout(&http.Client{
		Transport: httputil.DefaultTransportWithMinTLS12(),
	}, timeout, true)

	return &APISender{endpoint: normalized, httpClient: client}, nil
}

type submitRequest struct {
	JobID      uint64 `json:"jobId"`
	User       string `json:"user"`
	Energy     float64 `json:"energy"`
	Degeneracy int64   `json:"degeneracy"`
	EpochID    int64   `json:"epochId"`
	Role       int     `json:"role"`
	Deadline   int64   `json:"deadline"`
	UPre       float64 `json:"uPre"`
	UPost      float64 `json:"uPost"`
	Value      float64 `json:"value"`
	Nonce      uint64  `json:"nonce"`
	Signature  string  `json:"signature"`
}

// Submit implements Sender by POSTing the attestation as JSON. A non-2xx
// response is treated as a failure so the Submitter's retry/backoff loop
// applies uniformly across both transports.
func (s *APISender) Submit(ctx context.Context, att Attestation) error {
	body, err := json.Marshal(submitRequest{
		JobID:      att.JobID,
		User:       att.User,
		Energy:     att.Energy,
		Degeneracy: att.Degeneracy,
		EpochID:    att.EpochID,
		Role:       att.Role,
		Deadline:   att.Deadline,
		UPre:       att.UPre,
		UPost:      att.UPost,
		Value:      att.Value,
		Nonce:      att.Nonce,
		Signature:  "0x" + hex.EncodeToString(att.Signature),
	})
	if err != nil {
		return fmt.Errorf("sender: encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sender: build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sender: submit attestation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := httputil.ReadAllStrict(resp.Body, 1<<16)
		return fmt.Errorf("sender: API submit returned status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

var _ Sender = (*APISender)(nil)
