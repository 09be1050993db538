package sender

import (
	"context"
	"fmt"

	"github.com/r3e-network/culture-arena/infrastructure/ledger"
)

// VerifyingLedger is the subset of ledger.Ledger the contract sender needs.
type VerifyingLedger interface {
	VerifyAttestation(ctx context.Context, data, signature []byte) (txHash string, err error)
}

// ContractSender submits attestations as a ledger transaction.
type ContractSender struct {
	ledger VerifyingLedger
}

// NewContractSender builds a ContractSender over any VerifyingLedger
// (ledger.Client and ledger.MockLedger both qualify).
func NewContractSender(l VerifyingLedger) *ContractSender {
	return &ContractSender{ledger: l}
}

// Submit implements Sender by re-encoding the attestation as stable JSON and
// calling the ledger's verify entrypoint with the attached signature.
func (s *ContractSender) Submit(ctx context.Context, att Attestation) error {
	data, err := encodeAttestation(att)
	if err != nil {
		return fmt.Errorf("sender: encode attestation: %w", err)
	}
	_, err = s.ledger.VerifyAttestation(ctx, data, att.Signature)
	return err
}

var _ Sender = (*ContractSender)(nil)
var _ VerifyingLedger = (ledger.Ledger)(nil)
