package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/culture-arena/domain"
)

func TestChecksummedAddressIsIdempotentAndCaseInsensitiveOnInput(t *testing.T) {
	lower := "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	upper := "0X5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED"

	fromLower, err := checksummedAddress(lower)
	require.NoError(t, err)
	fromUpper, err := checksummedAddress(upper)
	require.NoError(t, err)
	require.Equal(t, fromLower, fromUpper)

	// applying it again to its own (mixed-case) output reproduces the same
	// checksum, since casing never affects the digest.
	again, err := checksummedAddress(fromLower)
	require.NoError(t, err)
	require.Equal(t, fromLower, again)
}

func TestChecksummedAddressRejectsWrongLength(t *testing.T) {
	_, err := checksummedAddress("0x1234")
	require.Error(t, err)
}

func TestParseIntegerOrFailAcceptsHexAndDecimal(t *testing.T) {
	v, err := parseIntegerOrFail("0x2a")
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)

	v, err = parseIntegerOrFail("42")
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)
}

func TestParseIntegerOrFailRejectsGarbage(t *testing.T) {
	_, err := parseIntegerOrFail("not-a-number")
	require.Error(t, err)
}

func TestBuildAttestationComputesFieldsPerFormula(t *testing.T) {
	log := domain.EnergyLog{
		JobID: "7",
		Agent: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		Summary: domain.EnergyLogSummary{
			TotalCPUTimeMs:    1000,
			TotalGPUTimeMs:    500,
			EnergyScore:       2.5,
			AverageEfficiency: 0.8,
			Runs:              0,
			LastUpdated:       time.Unix(190_000_000, 0).UTC(),
		},
	}

	raw, err := buildAttestation(log, 200_000_000, buildParams{
		EnergyScaling:     10,
		ValueScaling:      1_000_000,
		EpochDurationSec:  86400,
		DeadlineBufferSec: 3600,
		Role:              2,
	})
	require.NoError(t, err)

	require.Equal(t, uint64(7), raw.JobID)
	require.Equal(t, float64(25), raw.Energy)
	require.Equal(t, int64(1), raw.Degeneracy) // runs=0 clamps to 1
	require.Equal(t, int64(190_000_000/86400), raw.EpochID)
	require.Equal(t, 2, raw.Role)
	require.Equal(t, int64(200_000_000+3600), raw.Deadline)
	require.Equal(t, float64(1000), raw.UPre)
	require.Equal(t, float64(1500), raw.UPost)
	require.Equal(t, float64(800_000), raw.Value)
}

func TestBuildAttestationClampsNegativeEnergyToZero(t *testing.T) {
	log := domain.EnergyLog{
		JobID: "1",
		Agent: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		Summary: domain.EnergyLogSummary{
			EnergyScore: -5,
			LastUpdated: time.Unix(1000, 0),
		},
	}
	raw, err := buildAttestation(log, 2000, buildParams{})
	require.NoError(t, err)
	require.Equal(t, float64(0), raw.Energy)
}

func TestBuildAttestationFailsOnInvalidJobID(t *testing.T) {
	log := domain.EnergyLog{
		JobID: "not-a-job",
		Agent: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
	}
	_, err := buildAttestation(log, 0, buildParams{})
	require.Error(t, err)
}
