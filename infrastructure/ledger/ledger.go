package ledger

import "context"

// Ledger is the read/write surface the Event Ingestor and Operator
// Telemetry Submitter depend on. A single implementation backs both: a
// JSON-RPC-over-HTTP client for production, an in-memory fake for tests.
type Ledger interface {
	// GetBlockNumber returns the current chain head.
	GetBlockNumber(ctx context.Context) (uint64, error)
	// GetBlock returns the block at height n.
	GetBlock(ctx context.Context, n uint64) (*Block, error)
	// GetLogs returns all logs matching filter, inclusive of FromBlock/ToBlock.
	GetLogs(ctx context.Context, filter LogFilter) ([]Log, error)
	// Subscribe registers cb to be called for every new log matching filter
	// as it is produced. It returns an unsubscribe function.
	Subscribe(ctx context.Context, filter LogFilter, cb func(Log)) (unsubscribe func(), err error)

	// VerifyAttestation submits a signed EnergyAttestation to the
	// EnergyOracle contract and returns the submitting transaction hash.
	VerifyAttestation(ctx context.Context, attestation, signature []byte) (txHash string, err error)
	// Nonces returns the on-chain nonce ceiling for address.
	Nonces(ctx context.Context, address string) (uint64, error)

	// FinalizeRound submits a closed round's aggregate QD score to the
	// contract, which computes its own difficulty adjustment and emits the
	// RoundFinalized log the Event Ingestor consumes. Called once by the
	// Arena Round Orchestrator's close path.
	FinalizeRound(ctx context.Context, roundID string, fitness, diversity float64) (txHash string, err error)
}
