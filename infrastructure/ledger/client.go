package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/r3e-network/culture-arena/infrastructure/httputil"
	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
	hexutil "github.com/r3e-network/culture-arena/infrastructure/hex"
	"github.com/r3e-network/culture-arena/infrastructure/ratelimit"
	"github.com/r3e-network/culture-arena/infrastructure/resilience"
)

// Client is a JSON-RPC-over-HTTP Ledger backed by a standard
// eth_blockNumber/eth_getBlockByNumber/eth_getLogs/eth_call surface.
type Client struct {
	rpcURL            string
	verifyingContract string
	httpClient        *http.Client

	retryCfg resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	limiter  *ratelimit.Limiter

	subMu      sync.Mutex
	subs       []*subscription
	pollPeriod time.Duration
}

// Config configures a Client.
type Config struct {
	RPCURL            string
	VerifyingContract string
	Timeout           time.Duration
	HTTPClient        *http.Client
	PollInterval      time.Duration // used by the fallback poll-based Subscribe

	// RetryConfig overrides the backoff schedule for failed RPC calls.
	// Zero value falls back to resilience.DefaultRetryConfig.
	RetryConfig resilience.RetryConfig
	// CircuitBreaker overrides the breaker guarding RPC calls. Zero value
	// falls back to resilience.DefaultConfig.
	CircuitBreaker resilience.Config
	// RateLimit throttles outbound RPC calls. Zero value falls back to
	// ratelimit.DefaultConfig.
	RateLimit ratelimit.Config
}

// NewClient builds a JSON-RPC Ledger client.
func NewClient(cfg Config) (*Client, error) {
	normalized, _, err := httputil.NormalizeBaseURL(cfg.RPCURL, httputil.BaseURLOptions{RequireHTTPSInStrictMode: true})
	if err != nil {
		return nil, fmt.Errorf("invalid ledger rpc url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: httputil.DefaultTransportWithMinTLS12(),
		}
	} else {
		httpClient = httputil.CopyHTTPClientWithTimeout(httpClient, timeout, cfg.Timeout != 0)
	}

	pollPeriod := cfg.PollInterval
	if pollPeriod <= 0 {
		pollPeriod = 5 * time.Second
	}

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

	return &Client{
		rpcURL:            normalized,
		verifyingContract: cfg.VerifyingContract,
		httpClient:        httpClient,
		retryCfg:          retryCfg,
		breaker:           resilience.New(cbCfg),
		limiter:           ratelimit.New(rlCfg),
		pollPeriod:        pollPeriod,
	}, nil
}

// call performs a JSON-RPC request and returns the raw result. Each attempt
// waits on the rate limiter and runs through the circuit breaker, and the
// whole attempt is retried with backoff: a limiter or open-breaker refusal
// counts as a failed attempt and is retried like any other error.
func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	var result json.RawMessage
	err := resilience.Retry(ctx, c.retryCfg, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(ctx, func() error {
			raw, err := c.doCall(ctx, method, params)
			if err != nil {
				return err
			}
			result = raw
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// doCall performs a single JSON-RPC round trip without retry or breaker
// logic; call wraps it with both.
func (c *Client) doCall(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := RPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, svcerrors.LedgerUnavailable(fmt.Errorf("marshal rpc request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, svcerrors.LedgerUnavailable(fmt.Errorf("build rpc request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, svcerrors.LedgerUnavailable(fmt.Errorf("execute rpc request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, truncated, readErr := httputil.ReadAllWithLimit(resp.Body, 32<<10)
		if readErr != nil {
			return nil, svcerrors.LedgerUnavailable(fmt.Errorf("read rpc error body: %w", readErr))
		}
		msg := strings.TrimSpace(string(respBody))
		if truncated {
			msg += "...(truncated)"
		}
		return nil, svcerrors.LedgerUnavailable(fmt.Errorf("rpc http error %d: %s", resp.StatusCode, msg))
	}

	respBody, err := httputil.ReadAllStrict(resp.Body, 8<<20)
	if err != nil {
		return nil, svcerrors.LedgerUnavailable(fmt.Errorf("read rpc response: %w", err))
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, svcerrors.LedgerUnavailable(fmt.Errorf("unmarshal rpc response: %w", err))
	}
	if rpcResp.Error != nil {
		return nil, svcerrors.LedgerUnavailable(rpcResp.Error)
	}
	return rpcResp.Result, nil
}

// GetBlockNumber implements Ledger.
func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, err
	}
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err != nil {
		return 0, svcerrors.LedgerUnavailable(fmt.Errorf("decode block number: %w", err))
	}
	return parseHexUint64(hexStr)
}

// GetBlock implements Ledger.
func (c *Client) GetBlock(ctx context.Context, n uint64) (*Block, error) {
	raw, err := c.call(ctx, "eth_getBlockByNumber", []interface{}{toHexBlockTag(n), false})
	if err != nil {
		return nil, err
	}

	var wire struct {
		Number    string `json:"number"`
		Hash      string `json:"hash"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, svcerrors.LedgerUnavailable(fmt.Errorf("decode block: %w", err))
	}

	ts, err := parseHexUint64(wire.Timestamp)
	if err != nil {
		return nil, svcerrors.LedgerUnavailable(fmt.Errorf("decode block timestamp: %w", err))
	}

	return &Block{Number: n, Hash: wire.Hash, Timestamp: int64(ts)}, nil
}

// GetLogs implements Ledger.
func (c *Client) GetLogs(ctx context.Context, filter LogFilter) ([]Log, error) {
	params := map[string]interface{}{
		"fromBlock": toHexBlockTag(filter.FromBlock),
		"toBlock":   toHexBlockTag(filter.ToBlock),
	}
	if filter.Address != "" {
		params["address"] = filter.Address
	}
	if len(filter.Topics) > 0 {
		params["topics"] = filter.Topics
	}

	raw, err := c.call(ctx, "eth_getLogs", []interface{}{params})
	if err != nil {
		return nil, err
	}

	var wire []struct {
		Address         string   `json:"address"`
		Topics          []string `json:"topics"`
		Data            string   `json:"data"`
		BlockNumber     string   `json:"blockNumber"`
		BlockHash       string   `json:"blockHash"`
		LogIndex        string   `json:"logIndex"`
		TransactionHash string   `json:"transactionHash"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, svcerrors.LedgerUnavailable(fmt.Errorf("decode logs: %w", err))
	}

	logs := make([]Log, 0, len(wire))
	for _, w := range wire {
		blockNumber, err := parseHexUint64(w.BlockNumber)
		if err != nil {
			return nil, svcerrors.LedgerUnavailable(fmt.Errorf("decode log block number: %w", err))
		}
		logIndex, err := parseHexUint64(w.LogIndex)
		if err != nil {
			return nil, svcerrors.LedgerUnavailable(fmt.Errorf("decode log index: %w", err))
		}
		logs = append(logs, Log{
			Address:         w.Address,
			Topics:          w.Topics,
			Data:            w.Data,
			BlockNumber:     blockNumber,
			BlockHash:       w.BlockHash,
			Index:           int(logIndex),
			TransactionHash: w.TransactionHash,
		})
	}
	return logs, nil
}

// VerifyAttestation implements Ledger by sending an eth_sendTransaction to
// the verifying contract whose data is the attestation bytes followed by the
// signature bytes, and returns the transaction hash.
func (c *Client) VerifyAttestation(ctx context.Context, attestation, signature []byte) (string, error) {
	data := hexutil.EncodeWithPrefix(attestation) + hexutil.EncodeToString(signature)
	params := map[string]interface{}{
		"to":   c.verifyingContract,
		"data": data,
	}
	raw, err := c.call(ctx, "eth_sendTransaction", []interface{}{params})
	if err != nil {
		return "", err
	}
	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return "", svcerrors.LedgerUnavailable(fmt.Errorf("decode verify tx hash: %w", err))
	}
	return txHash, nil
}

// Nonces implements Ledger by calling the contract's nonces(address) view.
func (c *Client) Nonces(ctx context.Context, address string) (uint64, error) {
	const noncesSelector = "0x7ecebe00" // keccak256("nonces(address)")[:4]
	padded := strings.Repeat("0", 24) + hexutil.Normalize(address)
	params := map[string]interface{}{
		"to":   c.verifyingContract,
		"data": noncesSelector + padded,
	}
	raw, err := c.call(ctx, "eth_call", []interface{}{params, "latest"})
	if err != nil {
		return 0, err
	}
	var hexResult string
	if err := json.Unmarshal(raw, &hexResult); err != nil {
		return 0, svcerrors.LedgerUnavailable(fmt.Errorf("decode nonces result: %w", err))
	}
	return parseHexUint64(hexResult)
}

// FinalizeRound implements Ledger by sending a round-finalization
// transaction carrying the round id and its fitness and diversity values.
func (c *Client) FinalizeRound(ctx context.Context, roundID string, fitness, diversity float64) (string, error) {
	data := hexutil.EncodeWithPrefix([]byte(roundID)) +
		hexutil.EncodeToString([]byte(strconv.FormatFloat(fitness, 'f', -1, 64))) +
		hexutil.EncodeToString([]byte(strconv.FormatFloat(diversity, 'f', -1, 64)))
	params := map[string]interface{}{
		"to":   c.verifyingContract,
		"data": data,
	}
	raw, err := c.call(ctx, "eth_sendTransaction", []interface{}{params})
	if err != nil {
		return "", err
	}
	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return "", svcerrors.LedgerUnavailable(fmt.Errorf("decode finalize tx hash: %w", err))
	}
	return txHash, nil
}

func toHexBlockTag(n uint64) string {
	if n == 0 {
		return "latest"
	}
	return "0x" + strconv.FormatUint(n, 16)
}

func parseHexUint64(s string) (uint64, error) {
	s = hexutil.TrimPrefix(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}

