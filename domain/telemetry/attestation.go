package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/r3e-network/culture-arena/domain"
	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
	hexutil "github.com/r3e-network/culture-arena/infrastructure/hex"
	"github.com/r3e-network/culture-arena/infrastructure/signer"
)

// checksummedAddress applies the EIP-55 mixed-case checksum to a 0x-prefixed
// hex address: each hex digit is uppercased when the corresponding nibble of
// Keccak256(lowercase address without "0x") is >= 8.
func checksummedAddress(address string) (string, error) {
	trimmed := hexutil.TrimPrefix(address)
	if len(trimmed) != 40 || !hexutil.IsHexString(trimmed) {
		return "", svcerrors.InvalidAddress(address)
	}
	lower := strings.ToLower(trimmed)

	hash := signer.Keccak256([]byte(lower))

	var out strings.Builder
	out.WriteString("0x")
	for i, c := range lower {
		if c >= '0' && c <= '9' {
			out.WriteRune(c)
			continue
		}
		// hash byte i/2's high nibble covers even i, low nibble covers odd i.
		var nibble byte
		if i%2 == 0 {
			nibble = hash[i/2] >> 4
		} else {
			nibble = hash[i/2] & 0x0f
		}
		if nibble >= 8 {
			out.WriteRune(c - 'a' + 'A')
		} else {
			out.WriteRune(c)
		}
	}
	return out.String(), nil
}

// parseIntegerOrFail parses a job ID given as either decimal or 0x-prefixed
// hex, matching the range of identifiers the ledger and the energy logs use.
func parseIntegerOrFail(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		v, err := strconv.ParseUint(hexutil.TrimPrefix(trimmed), 16, 64)
		if err != nil {
			return 0, svcerrors.InvalidJobID(raw)
		}
		return v, nil
	}
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, svcerrors.InvalidJobID(raw)
	}
	return v, nil
}

// buildParams holds the scaling/default knobs attestation construction needs,
// mirroring the TelemetryConfig fields of the same name.
type buildParams struct {
	EnergyScaling     float64
	ValueScaling      float64
	EpochDurationSec  int64
	DeadlineBufferSec int64
	Role              int
}

// rawAttestation is the pre-signature attestation content built from one
// EnergyLog, before nonce assignment and signing.
type rawAttestation struct {
	JobID      uint64
	User       string
	Energy     float64
	Degeneracy int64
	EpochID    int64
	Role       int
	Deadline   int64
	UPre       float64
	UPost      float64
	Value      float64
}

// buildAttestation converts one EnergyLog into a rawAttestation per the
// field formulas: energy is the scaled, non-negative energy score;
// degeneracy is at least 1; epochId buckets the log's last-updated time;
// deadline gives the relayer a bounded submission window; uPre/uPost bound
// the measured CPU/GPU usage window; value scales average efficiency into
// the oracle's fixed-point unit.
func buildAttestation(log domain.EnergyLog, nowUnix int64, p buildParams) (rawAttestation, error) {
	jobID, err := parseIntegerOrFail(log.JobID)
	if err != nil {
		return rawAttestation{}, err
	}

	user, err := checksummedAddress(log.Agent)
	if err != nil {
		return rawAttestation{}, err
	}

	energyScaling := p.EnergyScaling
	if energyScaling == 0 {
		energyScaling = 1
	}
	energy := math.Round(log.Summary.EnergyScore * energyScaling)
	if energy < 0 {
		energy = 0
	}

	degeneracy := int64(log.Summary.Runs)
	if degeneracy < 1 {
		degeneracy = 1
	}

	epochDuration := p.EpochDurationSec
	if epochDuration <= 0 {
		epochDuration = 86400
	}
	epochID := log.Summary.LastUpdated.Unix() / epochDuration

	role := p.Role
	if role == 0 {
		role = 2
	}

	deadlineBuffer := p.DeadlineBufferSec
	if deadlineBuffer <= 0 {
		deadlineBuffer = 3600
	}
	deadline := nowUnix + deadlineBuffer

	uPre := math.Round(log.Summary.TotalCPUTimeMs)
	uPost := math.Round(log.Summary.TotalCPUTimeMs + log.Summary.TotalGPUTimeMs)

	valueScaling := p.ValueScaling
	if valueScaling == 0 {
		valueScaling = 1_000_000
	}
	value := math.Round(log.Summary.AverageEfficiency * valueScaling)

	return rawAttestation{
		JobID:      jobID,
		User:       user,
		Energy:     energy,
		Degeneracy: degeneracy,
		EpochID:    epochID,
		Role:       role,
		Deadline:   deadline,
		UPre:       uPre,
		UPost:      uPost,
		Value:      value,
	}, nil
}

// processedKey is the replay-guard key "agent:jobId" (lowercased).
func processedKey(agent string, jobID uint64) string {
	return strings.ToLower(fmt.Sprintf("%s:%d", agent, jobID))
}
