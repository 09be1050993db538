package signer

import (
	"context"
	"strings"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/require"
)

// testKeyHex is a 32-byte (64 hex char) scalar well below the secp256k1
// group order, valid as a private key.
var testKeyHex = strings.Repeat("ab", 32)

func TestNewLocalSignerFromHexAcceptsWithAndWithoutPrefix(t *testing.T) {
	s1, err := NewLocalSignerFromHex(testKeyHex)
	require.NoError(t, err)

	s2, err := NewLocalSignerFromHex("0x" + testKeyHex)
	require.NoError(t, err)

	require.Equal(t, s1.Address(), s2.Address())
}

func TestNewLocalSignerFromHexRejectsBadLength(t *testing.T) {
	_, err := NewLocalSignerFromHex("abcd")
	require.Error(t, err)
}

func TestSignDigestProducesVerifiableSignature(t *testing.T) {
	s, err := NewLocalSignerFromHex(testKeyHex)
	require.NoError(t, err)

	digest := Keccak256([]byte("attestation payload"))
	sig, err := s.SignDigest(context.Background(), digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	// Rotate [R||S||V] back into SignCompact's [V||R||S] and recover the pubkey.
	compact := make([]byte, 65)
	compact[0] = sig[64]
	copy(compact[1:], sig[0:64])

	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	require.NoError(t, err)

	recoveredAddr, err := addressFromPubKey(pub)
	require.NoError(t, err)
	require.Equal(t, s.Address(), recoveredAddr)
}

func TestKeccak256IsDeterministic(t *testing.T) {
	a := Keccak256([]byte("hello"))
	b := Keccak256([]byte("hello"))
	require.Equal(t, a, b)

	c := Keccak256([]byte("hello"), []byte("world"))
	require.NotEqual(t, a, c)
}

func TestAddressFromPubKeyMatchesKnownVector(t *testing.T) {
	priv := secp256k1.PrivKeyFromBytes(mustDecodeHex(t, testKeyHex))
	addr, err := addressFromPubKey(priv.PubKey())
	require.NoError(t, err)
	require.NotEqual(t, [20]byte{}, addr)
}

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := decodeHexKey(s)
	require.NoError(t, err)
	return b
}
