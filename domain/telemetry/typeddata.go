package telemetry

import (
	"github.com/r3e-network/culture-arena/infrastructure/signer"
	"github.com/r3e-network/culture-arena/infrastructure/stablejson"
)

// typedDataDomain mirrors the EIP-712 domain separator fields named in §4.8:
// {name: "EnergyOracle", version: "1", chainId, verifyingContract}.
type typedDataDomain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

const energyOracleDomainName = "EnergyOracle"
const energyOracleDomainVersion = "1"

// typedDataDigest is a simplified stand-in for full EIP-712 ABI-encoded
// struct hashing: the corpus carries no ABI-encoding library, so the domain
// separator and the EnergyAttestation message are canonicalized with
// stablejson and hashed together with Keccak256. It is deterministic and
// collision-resistant like the real scheme, but is not interoperable with a
// generic EIP-712 `eth_signTypedData` verifier expecting ABI-encoded structs.
func typedDataDigest(chainID int64, verifyingContract string, att rawAttestation, nonce uint64) [32]byte {
	domain := typedDataDomain{
		Name:              energyOracleDomainName,
		Version:           energyOracleDomainVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
	message := struct {
		rawAttestation
		Nonce uint64 `json:"nonce"`
	}{rawAttestation: att, Nonce: nonce}

	domainBytes := stablejson.MustMarshal(domain)
	messageBytes := stablejson.MustMarshal(message)
	return signer.Keccak256([]byte("EnergyAttestation"), domainBytes, messageBytes)
}
