// Package signer abstracts producing contract-verifiable signatures over
// attestation payloads, mirroring the way the teacher splits transaction
// signing from arbitrary-message signing so a local development key and a
// remote/custodial signer can be swapped in behind the same interface.
package signer

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
)

// Signer abstracts producing an ECDSA secp256k1 signature over an
// already-hashed digest. Implementations may hold the key locally or
// delegate to a remote custody service; callers never see raw key material.
type Signer interface {
	// Address returns the signer's 20-byte Ethereum-style address, derived
	// from the uncompressed public key's Keccak256 hash.
	Address() [20]byte
	// SignDigest signs a 32-byte digest (typically an EIP-712 typed-data
	// hash) and returns a 65-byte [R || S || V] signature.
	SignDigest(ctx context.Context, digest [32]byte) ([]byte, error)
}

// LocalSigner implements Signer using a key held in process memory. It is
// the development/single-operator path; a custody-backed Signer can be
// substituted without touching call sites.
type LocalSigner struct {
	key     *secp256k1.PrivateKey
	address [20]byte
}

// NewLocalSignerFromHex builds a LocalSigner from a hex-encoded secp256k1
// private key (with or without a leading "0x").
func NewLocalSignerFromHex(privateKeyHex string) (*LocalSigner, error) {
	raw, err := decodeHexKey(privateKeyHex)
	if err != nil {
		return nil, svcerrors.SignatureFailed(fmt.Errorf("decode private key: %w", err))
	}

	priv := secp256k1.PrivKeyFromBytes(raw)
	pub := priv.PubKey()

	addr, err := addressFromPubKey(pub)
	if err != nil {
		return nil, svcerrors.SignatureFailed(err)
	}

	return &LocalSigner{key: priv, address: addr}, nil
}

// Address implements Signer.
func (s *LocalSigner) Address() [20]byte {
	return s.address
}

// SignDigest implements Signer. It produces a recoverable signature in the
// [R || S || V] layout typed-data verifiers expect; V is normalized to
// {27, 28}.
func (s *LocalSigner) SignDigest(_ context.Context, digest [32]byte) ([]byte, error) {
	sig := ecdsa.SignCompact(s.key, digest[:], false)
	if len(sig) != 65 {
		return nil, svcerrors.SignatureFailed(fmt.Errorf("unexpected compact signature length %d", len(sig)))
	}

	// SignCompact returns [recoveryID+27 || R || S]; typed-data verifiers
	// expect [R || S || V]. Rotate it into that order.
	out := make([]byte, 65)
	copy(out[0:64], sig[1:65])
	out[64] = sig[0]
	return out, nil
}

// Keccak256 hashes data with the Keccak-256 permutation used by EIP-712 and
// the rest of the EVM-log ecosystem (distinct from SHA3-256/FIPS-202).
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func addressFromPubKey(pub *secp256k1.PublicKey) ([20]byte, error) {
	uncompressed := pub.SerializeUncompressed()
	if len(uncompressed) != 65 {
		return [20]byte{}, fmt.Errorf("unexpected uncompressed pubkey length %d", len(uncompressed))
	}
	hash := Keccak256(uncompressed[1:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr, nil
}

func decodeHexKey(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 64 {
		return nil, fmt.Errorf("private key must be 32 bytes hex-encoded, got %d hex chars", len(s))
	}
	return hex.DecodeString(s)
}
