package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/culture-arena/infrastructure/resilience"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newJSONResponse(payload []byte) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(payload)),
	}
}

func newTestClient(t *testing.T, handle func(RPCRequest) RPCResponse) *Client {
	t.Helper()
	client, err := NewClient(Config{
		RPCURL:            "http://example.com",
		VerifyingContract: "0xoracle",
		RetryConfig:       resilience.RetryConfig{MaxAttempts: 1},
	})
	require.NoError(t, err)

	client.httpClient.Transport = roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		var req RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		resp := handle(req)
		resp.JSONRPC = "2.0"
		resp.ID = req.ID
		payload, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		return newJSONResponse(payload), nil
	})
	return client
}

func TestNewClientRejectsEmptyURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestGetBlockNumberDecodesHexResult(t *testing.T) {
	client := newTestClient(t, func(req RPCRequest) RPCResponse {
		require.Equal(t, "eth_blockNumber", req.Method)
		return RPCResponse{Result: json.RawMessage(`"0x2a"`)}
	})

	n, err := client.GetBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), n)
}

func TestGetBlockDecodesFields(t *testing.T) {
	client := newTestClient(t, func(req RPCRequest) RPCResponse {
		require.Equal(t, "eth_getBlockByNumber", req.Method)
		return RPCResponse{Result: json.RawMessage(`{"number":"0x2a","hash":"0xabc","timestamp":"0x61000000"}`)}
	})

	b, err := client.GetBlock(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, uint64(42), b.Number)
	require.Equal(t, "0xabc", b.Hash)
	require.Equal(t, int64(0x61000000), b.Timestamp)
}

func TestGetLogsDecodesHexFields(t *testing.T) {
	client := newTestClient(t, func(req RPCRequest) RPCResponse {
		require.Equal(t, "eth_getLogs", req.Method)
		return RPCResponse{Result: json.RawMessage(`[
			{"address":"0xabc","topics":["0x1"],"data":"0x","blockNumber":"0x1","blockHash":"0xb1","logIndex":"0x0","transactionHash":"0xt1"}
		]`)}
	})

	logs, err := client.GetLogs(context.Background(), LogFilter{FromBlock: 1, ToBlock: 1})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, uint64(1), logs[0].BlockNumber)
	require.Equal(t, "0xt1", logs[0].TransactionHash)
}

func TestCallPropagatesRPCError(t *testing.T) {
	client := newTestClient(t, func(req RPCRequest) RPCResponse {
		return RPCResponse{Error: &RPCError{Code: -32000, Message: "boom"}}
	})

	_, err := client.GetBlockNumber(context.Background())
	require.Error(t, err)
}

func TestNoncesEncodesAddressIntoCallData(t *testing.T) {
	client := newTestClient(t, func(req RPCRequest) RPCResponse {
		require.Equal(t, "eth_call", req.Method)
		require.Len(t, req.Params, 2)
		call, ok := req.Params[0].(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, "0x7ecebe00"+"000000000000000000000000"+"00000000000000000000000000000000000001", call["data"])
		return RPCResponse{Result: json.RawMessage(`"0x5"`)}
	})

	n, err := client.Nonces(context.Background(), "0x00000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Equal(t, uint64(5), n)
}

func TestFinalizeRoundSendsTransactionAndReturnsHash(t *testing.T) {
	client := newTestClient(t, func(req RPCRequest) RPCResponse {
		require.Equal(t, "eth_sendTransaction", req.Method)
		return RPCResponse{Result: json.RawMessage(`"0xfinalizetx"`)}
	})

	txHash, err := client.FinalizeRound(context.Background(), "round-1", 0.75, 0.5)
	require.NoError(t, err)
	require.Equal(t, "0xfinalizetx", txHash)
}

func TestFinalizeRoundPropagatesRPCError(t *testing.T) {
	client := newTestClient(t, func(req RPCRequest) RPCResponse {
		return RPCResponse{Error: &RPCError{Code: -32000, Message: "boom"}}
	})

	_, err := client.FinalizeRound(context.Background(), "round-1", 0.75, 0.5)
	require.Error(t, err)
}

func TestCallRetriesOnFailureThenSucceeds(t *testing.T) {
	client, err := NewClient(Config{
		RPCURL:            "http://example.com",
		VerifyingContract: "0xoracle",
		RetryConfig:       resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})
	require.NoError(t, err)

	attempts := 0
	client.httpClient.Transport = roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		var req RPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		attempts++
		resp := RPCResponse{JSONRPC: "2.0", ID: req.ID}
		if attempts < 3 {
			resp.Error = &RPCError{Code: -32000, Message: "transient"}
		} else {
			resp.Result = json.RawMessage(`"0x2a"`)
		}
		payload, err := json.Marshal(resp)
		require.NoError(t, err)
		return newJSONResponse(payload), nil
	})

	n, err := client.GetBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), n)
	require.Equal(t, 3, attempts)
}

func TestCallFailsFastOnceCircuitBreakerOpens(t *testing.T) {
	client, err := NewClient(Config{
		RPCURL:            "http://example.com",
		VerifyingContract: "0xoracle",
		RetryConfig:       resilience.RetryConfig{MaxAttempts: 1},
		CircuitBreaker:    resilience.Config{MaxFailures: 1, Timeout: time.Minute, HalfOpenMax: 1},
	})
	require.NoError(t, err)

	attempts := 0
	client.httpClient.Transport = roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		attempts++
		var req RPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := RPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: -32000, Message: "boom"}}
		payload, err := json.Marshal(resp)
		require.NoError(t, err)
		return newJSONResponse(payload), nil
	})

	_, err = client.GetBlockNumber(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, attempts)

	_, err = client.GetBlockNumber(context.Background())
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	require.Equal(t, 1, attempts, "second call must fail fast without hitting the transport")
}
