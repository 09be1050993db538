package httputil

import (
	"encoding/json"
	"net/http"

	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
)

// WriteJSON writes v as a JSON response with the given status code. It is
// the single JSON-encoding path shared by the Arena, Culture-Graph Indexer,
// and Operator Telemetry HTTP surfaces.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to an HTTP status via infrastructure/errors.GetHTTPStatus
// and writes it as a JSON {"error": ...} body.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, svcerrors.GetHTTPStatus(err), map[string]string{"error": err.Error()})
}
