// Package nonce implements the two Nonce Manager variants behind one
// contract, per §4.9: API mode (a persisted per-process ceiling) and
// contract mode (a lazily-cached on-chain nonce).
package nonce

import "context"

// Reservation is a nonce claimed for address but not yet confirmed.
type Reservation struct {
	Address string
	Nonce   uint64
}

// Manager reserves, confirms, and releases nonces for a signer address.
// Reserve returns (nil, nil) when no nonce could be determined this cycle
// (e.g. a network failure in contract mode) — that is not itself an error,
// it means "skip this cycle".
type Manager interface {
	Reserve(ctx context.Context, address string) (*Reservation, error)
	Confirm(ctx context.Context, r Reservation) error
	Release(ctx context.Context, r Reservation) error
}
