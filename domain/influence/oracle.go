package influence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/r3e-network/culture-arena/infrastructure/httputil"
)

// HTTPReferenceOracle cross-validates PageRank scores against an external
// HTTP service, the optional independent implementation named in §4.3's
// cross-validation step.
type HTTPReferenceOracle struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPReferenceOracle builds an HTTPReferenceOracle. An empty endpoint
// returns (nil, nil): callers should pass the nil ReferenceOracle to
// NewEngine so cross-validation is simply skipped.
func NewHTTPReferenceOracle(endpoint string, timeout time.Duration) (*HTTPReferenceOracle, error) {
	if endpoint == "" {
		return nil, nil
	}
	normalized, _, err := httputil.NormalizeServiceBaseURL(endpoint)
	if err != nil {
		return nil, fmt.Errorf("influence: invalid validator endpoint: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := httputil.CopyHTTPClientWithTimeout(&http.Client{
		Transport: httputil.DefaultTransportWithMinTLS12(),
	}, timeout, true)
	return &HTTPReferenceOracle{endpoint: normalized, httpClient: client}, nil
}

type pageRankRequest struct {
	Nodes         []string            `json:"nodes"`
	CitationsFrom map[string][]string `json:"citationsFrom"`
	Damping       float64             `json:"damping"`
	Tolerance     float64             `json:"tolerance"`
	MaxIterations int                 `json:"maxIterations"`
}

type pageRankResponse struct {
	Scores map[string]float64 `json:"scores"`
}

// ComputePageRank implements ReferenceOracle by delegating to the external
// validator service.
func (o *HTTPReferenceOracle) ComputePageRank(ctx context.Context, g Graph, cfg Config) (map[string]float64, error) {
	body, err := json.Marshal(pageRankRequest{
		Nodes:         g.Nodes,
		CitationsFrom: g.CitationsFrom,
		Damping:       cfg.Damping,
		Tolerance:     cfg.Tolerance,
		MaxIterations: cfg.MaxIterations,
	})
	if err != nil {
		return nil, fmt.Errorf("influence: encode oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("influence: build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("influence: oracle unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("influence: oracle returned status %d", resp.StatusCode)
	}

	raw, err := httputil.ReadAllStrict(resp.Body, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("influence: read oracle response: %w", err)
	}

	var parsed pageRankResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("influence: parse oracle response: %w", err)
	}
	return parsed.Scores, nil
}

var _ ReferenceOracle = (*HTTPReferenceOracle)(nil)
