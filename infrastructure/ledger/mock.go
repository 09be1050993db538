package ledger

import (
	"context"
	"sort"
	"sync"
)

// MockLedger is an in-memory Ledger for tests: an append-only log set plus a
// manually advanced head, with error injection for exercising retry paths.
type MockLedger struct {
	mu sync.RWMutex

	head   uint64
	blocks map[uint64]*Block
	logs   []Log
	nonces map[string]uint64
	finalizedRounds []FinalizedRound

	subs []*mockSubscription

	// ErrorOnNextCall is returned (and cleared) by the next read/write call.
	ErrorOnNextCall error
}

type mockSubscription struct {
	filter LogFilter
	cb     func(Log)
	active bool
}

// NewMockLedger returns an empty MockLedger.
func NewMockLedger() *MockLedger {
	return &MockLedger{blocks: make(map[uint64]*Block)}
}

func (m *MockLedger) checkError() error {
	if m.ErrorOnNextCall != nil {
		err := m.ErrorOnNextCall
		m.ErrorOnNextCall = nil
		return err
	}
	return nil
}

// SetBlock registers block data the ledger should report for GetBlock/
// GetBlockNumber, advancing the head if n is the new highest block.
func (m *MockLedger) SetBlock(b Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blockCopy := b
	m.blocks[b.Number] = &blockCopy
	if b.Number > m.head {
		m.head = b.Number
	}
}

// AppendLog adds a log and notifies any active subscriptions whose filter
// matches it.
func (m *MockLedger) AppendLog(l Log) {
	m.mu.Lock()
	m.logs = append(m.logs, l)
	subs := make([]*mockSubscription, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, sub := range subs {
		if sub.active && logMatchesFilter(l, sub.filter) {
			sub.cb(l)
		}
	}
}

// GetBlockNumber implements Ledger.
func (m *MockLedger) GetBlockNumber(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkError(); err != nil {
		return 0, err
	}
	return m.head, nil
}

// GetBlock implements Ledger.
func (m *MockLedger) GetBlock(_ context.Context, n uint64) (*Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkError(); err != nil {
		return nil, err
	}
	b, ok := m.blocks[n]
	if !ok {
		return nil, nil
	}
	blockCopy := *b
	return &blockCopy, nil
}

// GetLogs implements Ledger.
func (m *MockLedger) GetLogs(_ context.Context, filter LogFilter) ([]Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkError(); err != nil {
		return nil, err
	}

	var out []Log
	for _, l := range m.logs {
		if l.BlockNumber < filter.FromBlock {
			continue
		}
		if filter.ToBlock != 0 && l.BlockNumber > filter.ToBlock {
			continue
		}
		if logMatchesFilter(l, filter) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

// Subscribe implements Ledger. Delivery is synchronous from AppendLog's
// goroutine, which is sufficient for deterministic tests.
func (m *MockLedger) Subscribe(_ context.Context, filter LogFilter, cb func(Log)) (func(), error) {
	sub := &mockSubscription{filter: filter, cb: cb, active: true}
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		sub.active = false
	}, nil
}

// VerifyAttestation implements Ledger, returning a deterministic fake tx hash.
func (m *MockLedger) VerifyAttestation(_ context.Context, _, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError(); err != nil {
		return "", err
	}
	return "0xmocktx", nil
}

// NonceByAddress lets tests seed the nonce Nonces() should report.
func (m *MockLedger) NonceByAddress(address string, nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nonces == nil {
		m.nonces = make(map[string]uint64)
	}
	m.nonces[address] = nonce
}

// Nonces implements Ledger.
func (m *MockLedger) Nonces(_ context.Context, address string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkError(); err != nil {
		return 0, err
	}
	return m.nonces[address], nil
}

// FinalizedRound records one FinalizeRound call for test assertions.
type FinalizedRound struct {
	RoundID   string
	Fitness   float64
	Diversity float64
}

// FinalizeRound implements Ledger, returning a deterministic fake tx hash
// and recording the call for inspection.
func (m *MockLedger) FinalizeRound(_ context.Context, roundID string, fitness, diversity float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError(); err != nil {
		return "", err
	}
	m.finalizedRounds = append(m.finalizedRounds, FinalizedRound{
		RoundID: roundID, Fitness: fitness, Diversity: diversity,
	})
	return "0xmocktx", nil
}

// FinalizedRounds returns every FinalizeRound call recorded so far.
func (m *MockLedger) FinalizedRounds() []FinalizedRound {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]FinalizedRound{}, m.finalizedRounds...)
}

func logMatchesFilter(l Log, filter LogFilter) bool {
	if filter.Address != "" && l.Address != filter.Address {
		return false
	}
	if len(filter.Topics) == 0 {
		return true
	}
	for i, topic := range filter.Topics {
		if topic == "" {
			continue
		}
		if i >= len(l.Topics) || l.Topics[i] != topic {
			return false
		}
	}
	return true
}

// Ensure MockLedger implements Ledger.
var _ Ledger = (*MockLedger)(nil)
