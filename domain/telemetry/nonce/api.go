package nonce

import (
	"context"
	"sync"
)

// APIManager implements API-mode nonce reservation: next =
// max(persisted, lastReservedPending) + 1. The pending map is per-process;
// persisted ceilings are owned by the caller (the Telemetry Submitter's
// on-disk state) and read/written through the PersistedNonces accessor.
type APIManager struct {
	mu      sync.Mutex
	nonces  PersistedNonces
	pending map[string]uint64
}

// PersistedNonces is the durable ceiling store API mode reads and writes.
// The Telemetry Submitter implements this over its on-disk TelemetryState.
type PersistedNonces interface {
	Get(address string) uint64
	Set(address string, nonce uint64)
}

// NewAPIManager builds an APIManager over persisted nonce ceilings.
func NewAPIManager(persisted PersistedNonces) *APIManager {
	return &APIManager{nonces: persisted, pending: make(map[string]uint64)}
}

// Reserve implements Manager.
func (m *APIManager) Reserve(_ context.Context, address string) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := m.nonces.Get(address)
	if pending, ok := m.pending[address]; ok && pending > base {
		base = pending
	}
	next := base + 1
	m.pending[address] = next
	return &Reservation{Address: address, Nonce: next}, nil
}

// Confirm implements Manager: clears pending and persists the new ceiling.
func (m *APIManager) Confirm(_ context.Context, r Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, r.Address)
	m.nonces.Set(r.Address, r.Nonce)
	return nil
}

// Release implements Manager: clears pending only if it still matches the
// reservation (a later concurrent reservation must not be clobbered).
func (m *APIManager) Release(_ context.Context, r Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pending, ok := m.pending[r.Address]; ok && pending == r.Nonce {
		delete(m.pending, r.Address)
	}
	return nil
}

var _ Manager = (*APIManager)(nil)
