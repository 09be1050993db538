// Package sender implements the two transports the Telemetry Submitter can
// deliver a signed EnergyAttestation through: an on-chain contract call and
// an off-chain API endpoint.
package sender

import (
	"context"

	"github.com/r3e-network/culture-arena/infrastructure/stablejson"
)

// Attestation is the signed payload a Sender delivers.
type Attestation struct {
	JobID       uint64
	User        string
	Energy      float64
	Degeneracy  int64
	EpochID     int64
	Role        int
	Deadline    int64
	UPre        float64
	UPost       float64
	Value       float64
	Nonce       uint64
	Signature   []byte `json:",omitempty"`
}

// Sender submits a signed attestation through one transport.
type Sender interface {
	Submit(ctx context.Context, att Attestation) error
}

// encodeAttestation canonicalizes the unsigned fields of att for
// transmission/hashing, excluding the signature itself.
func encodeAttestation(att Attestation) ([]byte, error) {
	unsigned := att
	unsigned.Signature = nil
	return stablejson.Marshal(unsigned)
}
