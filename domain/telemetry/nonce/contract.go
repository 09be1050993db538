package nonce

import (
	"context"
	"regexp"
	"sync"

	"github.com/r3e-network/culture-arena/infrastructure/ledger"
)

// networkFailurePattern matches the spec's classifier for errors that
// should trigger a connection refresh rather than a hard failure:
// NETWORK_ERROR|SERVER_ERROR|TIMEOUT|OFFCHAIN_FAULT or the common
// network|timeout|ECONN|socket|disconnected substrings.
var networkFailurePattern = regexp.MustCompile(`(?i)network|timeout|econn|socket|disconnected|network_error|server_error|offchain_fault`)

func isNetworkFailure(err error) bool {
	if err == nil {
		return false
	}
	return networkFailurePattern.MatchString(err.Error())
}

// NonceSource reads the on-chain nonce for an address. ledger.Ledger
// satisfies this directly.
type NonceSource interface {
	Nonces(ctx context.Context, address string) (uint64, error)
}

// ContractManager implements contract-mode nonce reservation: the on-chain
// nonce is read lazily once per address and cached (Confirm advances the
// cache), every Reserve takes the pending reservation into account, and the
// connection is rebuilt on classified network failures.
type ContractManager struct {
	mu      sync.Mutex
	source  NonceSource
	cached  map[string]uint64
	pending map[string]uint64
	refresh func(ctx context.Context) error
}

// NewContractManager builds a ContractManager. refresh rebuilds the
// JSON-RPC provider/signer/contract from scratch; it may be nil if the
// caller has no refresh procedure (the failure is still reported).
func NewContractManager(source NonceSource, refresh func(ctx context.Context) error) *ContractManager {
	return &ContractManager{
		source:  source,
		cached:  make(map[string]uint64),
		pending: make(map[string]uint64),
		refresh: refresh,
	}
}

// Reserve implements Manager. It returns (nil, nil) — not an error — when a
// network failure prevents determining the current nonce this cycle, per
// §4.9's "return null for this cycle".
func (m *ContractManager) Reserve(ctx context.Context, address string) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base, ok := m.cached[address]
	if !ok {
		onchain, err := m.source.Nonces(ctx, address)
		if err != nil {
			if isNetworkFailure(err) && m.refresh != nil {
				_ = m.refresh(ctx)
			}
			return nil, nil
		}
		base = onchain
		m.cached[address] = base
	}

	if pending, ok := m.pending[address]; ok && pending > base {
		base = pending
	}
	next := base + 1
	m.pending[address] = next
	return &Reservation{Address: address, Nonce: next}, nil
}

// Confirm implements Manager: caches the confirmed nonce and clears pending.
func (m *ContractManager) Confirm(_ context.Context, r Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached[r.Address] = r.Nonce
	delete(m.pending, r.Address)
	return nil
}

// Release implements Manager: clears pending only if it still matches.
func (m *ContractManager) Release(_ context.Context, r Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pending, ok := m.pending[r.Address]; ok && pending == r.Nonce {
		delete(m.pending, r.Address)
	}
	return nil
}

var _ Manager = (*ContractManager)(nil)
var _ NonceSource = (ledger.Ledger)(nil)
