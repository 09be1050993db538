// Package moderation implements the Moderation Gateway: an external HTTP
// classifier tier with a banned-phrase-list fallback, per §4.10.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/infrastructure/httputil"
	"github.com/r3e-network/culture-arena/infrastructure/ratelimit"
	"github.com/r3e-network/culture-arena/infrastructure/resilience"
)

// DefaultBannedPhrases is the substring-match fallback list used whenever no
// external endpoint is configured, or the endpoint call fails.
var DefaultBannedPhrases = []string{"hate speech", "terrorism", "malware"}

// Verdict is the Gateway's classification result.
type Verdict struct {
	Flagged bool
	Reason  string
}

// Gateway classifies reveal payload text as flagged or clean.
type Gateway struct {
	externalEndpoint string
	bannedPhrases    []string
	httpClient       *http.Client
	breaker          *resilience.CircuitBreaker
	limiter          *ratelimit.Limiter
	retryCfg         resilience.RetryConfig
	log              *logrus.Entry
}

// Config configures a Gateway.
type Config struct {
	ExternalEndpoint string
	BannedPhrases    []string
	Timeout          time.Duration

	// RetryConfig overrides the backoff schedule for a failing external
	// classifier. Zero value falls back to resilience.DefaultRetryConfig.
	RetryConfig resilience.RetryConfig
	// CircuitBreaker overrides the breaker guarding the external classifier.
	// Zero value falls back to resilience.DefaultConfig.
	CircuitBreaker resilience.Config
	// RateLimit throttles calls to the external classifier. Zero value
	// falls back to ratelimit.DefaultConfig.
	RateLimit ratelimit.Config
}

// New builds a Gateway. An empty ExternalEndpoint skips straight to the
// banned-phrase fallback.
func New(cfg Config, log *logrus.Entry) (*Gateway, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	phrases := cfg.BannedPhrases
	if len(phrases) == 0 {
		phrases = DefaultBannedPhrases
	}

	g := &Gateway{bannedPhrases: phrases, log: log}

	if cfg.ExternalEndpoint == "" {
		return g, nil
	}

	normalized, _, err := httputil.NormalizeServiceBaseURL(cfg.ExternalEndpoint)
	if err != nil {
		return nil, fmt.Errorf("moderation: invalid external endpoint: %w", err)
	}
	g.externalEndpoint = normalized

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	g.httpClient = httputil.CopyHTTPClientWithTimeout(&http.Client{
		Transport: httputil.DefaultTransportWithMinTLS12(),
	}, timeout, true)

	retryCfg := cfg.RetryConfig
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = resilience.DefaultRetryConfig()
	}
	cbCfg := cfg.CircuitBreaker
	if cbCfg.MaxFailures <= 0 {
		cbCfg = resilience.DefaultConfig()
	}
	rlCfg := cfg.RateLimit
	if rlCfg.RequestsPerSecond <= 0 {
		rlCfg = ratelimit.DefaultConfig()
	}
	g.retryCfg = retryCfg
	g.breaker = resilience.New(cbCfg)
	g.limiter = ratelimit.New(rlCfg)

	return g, nil
}

type classifyRequest struct {
	Input string `json:"input"`
}

type classifyResponse struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason"`
}

// Classify returns the Gateway's verdict on text. It tries the external
// endpoint first if configured; any transport or parsing failure falls back
// to the banned-phrase list rather than propagating an error, since
// moderation must never block a reveal on an unrelated outage.
func (g *Gateway) Classify(ctx context.Context, text string) Verdict {
	if g.externalEndpoint != "" {
		if verdict, ok := g.classifyExternal(ctx, text); ok {
			return verdict
		}
	}
	return g.classifyBannedPhrases(text)
}

// classifyExternal calls the external classifier guarded by a rate limiter,
// circuit breaker, and retry-with-backoff; any failure surviving all three
// falls back to the banned-phrase list rather than blocking the reveal.
func (g *Gateway) classifyExternal(ctx context.Context, text string) (Verdict, bool) {
	var verdict Verdict
	err := resilience.Retry(ctx, g.retryCfg, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		return g.breaker.Execute(ctx, func() error {
			v, err := g.doClassifyExternal(ctx, text)
			if err != nil {
				return err
			}
			verdict = v
			return nil
		})
	})
	if err != nil {
		g.log.WithError(err).Warn("moderation: external classifier unavailable, falling back")
		return Verdict{}, false
	}
	return verdict, true
}

func (g *Gateway) doClassifyExternal(ctx context.Context, text string) (Verdict, error) {
	body, err := json.Marshal(classifyRequest{Input: text})
	if err != nil {
		return Verdict{}, fmt.Errorf("encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.externalEndpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("execute classify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	raw, err := httputil.ReadAllStrict(resp.Body, 1<<20)
	if err != nil {
		return Verdict{}, fmt.Errorf("read classify response: %w", err)
	}

	var parsed classifyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Verdict{}, fmt.Errorf("parse classify response: %w", err)
	}

	return Verdict{Flagged: parsed.Flagged, Reason: parsed.Reason}, nil
}

func (g *Gateway) classifyBannedPhrases(text string) Verdict {
	lower := strings.ToLower(text)
	for _, phrase := range g.bannedPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return Verdict{Flagged: true, Reason: fmt.Sprintf("matched banned phrase %q", phrase)}
		}
	}
	return Verdict{Flagged: false}
}
