package influence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewHTTPReferenceOracleReturnsNilForEmptyEndpoint(t *testing.T) {
	oracle, err := NewHTTPReferenceOracle("", 0)
	require.NoError(t, err)
	require.Nil(t, oracle)
}

func TestHTTPReferenceOracleComputePageRankParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"scores":{"a":0.5,"b":0.5}}`))
	}))
	defer server.Close()

	oracle, err := NewHTTPReferenceOracle(server.URL, 0)
	require.NoError(t, err)
	require.NotNil(t, oracle)

	scores, err := oracle.ComputePageRank(context.Background(), Graph{Nodes: []string{"a", "b"}}, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 0.5, scores["a"])
}
