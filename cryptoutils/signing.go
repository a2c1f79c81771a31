// Package cryptoutils provides the deterministic cryptographic primitives of
// the diploma registry: structured-payload signing and signer recovery,
// certificate identifier derivation, and symmetric document encryption.
// All functions are pure and safe for concurrent use.
package cryptoutils

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/attestia/diploma-registry-backend/interfaces"
)

// Type hashes binding the signed payloads, EIP-712 style.
var (
	domainTypeHash     = crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	issuanceTypeHash   = crypto.Keccak256([]byte("Issuance(bytes32 docHash,bytes16 salt,address issuer,uint256 issuedAt,string storageURI)"))
	revocationTypeHash = crypto.Keccak256([]byte("Revocation(bytes32 certificateId,string reason,address issuer)"))
)

// SigningDomain binds signatures to one registry deployment. Signatures
// produced for a different chain or registry instance never verify.
type SigningDomain struct {
	Name            string
	Version         string
	ChainID         uint64
	RegistryAddress interfaces.Address
}

// DefaultDomain returns the canonical signing domain for a deployment.
func DefaultDomain(chainID uint64, registryAddress interfaces.Address) SigningDomain {
	return SigningDomain{
		Name:            "DiplomaRegistry",
		Version:         "1",
		ChainID:         chainID,
		RegistryAddress: registryAddress,
	}
}

func toBytes32(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], b)
	return out
}

// Separator computes the domain separator hash.
func (d SigningDomain) Separator() ([32]byte, error) {
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	addressTy, _ := abi.NewType("address", "", nil)

	arguments := abi.Arguments{
		{Type: bytes32Ty},
		{Type: bytes32Ty},
		{Type: bytes32Ty},
		{Type: uint256Ty},
		{Type: addressTy},
	}

	packed, err := arguments.Pack(
		toBytes32(domainTypeHash),
		toBytes32(crypto.Keccak256([]byte(d.Name))),
		toBytes32(crypto.Keccak256([]byte(d.Version))),
		new(big.Int).SetUint64(d.ChainID),
		common.Address(d.RegistryAddress),
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode signing domain: %w", err)
	}

	return crypto.Keccak256Hash(packed), nil
}

// IssuanceDigest computes the digest an issuer signs when issuing a
// certificate. The digest is a pure function of the domain and the typed
// fields; no external state is consulted.
func IssuanceDigest(domain SigningDomain, docHash interfaces.DocHash, salt interfaces.Salt, issuer interfaces.Address, issuedAt uint64, storageURI string) ([32]byte, error) {
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)
	bytes16Ty, _ := abi.NewType("bytes16", "", nil)
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	addressTy, _ := abi.NewType("address", "", nil)

	arguments := abi.Arguments{
		{Type: bytes32Ty},
		{Type: bytes32Ty},
		{Type: bytes16Ty},
		{Type: addressTy},
		{Type: uint256Ty},
		{Type: bytes32Ty},
	}

	packed, err := arguments.Pack(
		toBytes32(issuanceTypeHash),
		[32]byte(docHash),
		[16]byte(salt),
		common.Address(issuer),
		new(big.Int).SetUint64(issuedAt),
		toBytes32(crypto.Keccak256([]byte(storageURI))),
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode issuance payload: %w", err)
	}

	return typedDataDigest(domain, crypto.Keccak256Hash(packed))
}

// RevocationDigest computes the digest an issuer signs when revoking a
// certificate. The chain is bound through the domain separator.
func RevocationDigest(domain SigningDomain, certificateID interfaces.CertificateID, reason string, issuer interfaces.Address) ([32]byte, error) {
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)
	addressTy, _ := abi.NewType("address", "", nil)

	arguments := abi.Arguments{
		{Type: bytes32Ty},
		{Type: bytes32Ty},
		{Type: bytes32Ty},
		{Type: addressTy},
	}

	packed, err := arguments.Pack(
		toBytes32(revocationTypeHash),
		[32]byte(certificateID),
		toBytes32(crypto.Keccak256([]byte(reason))),
		common.Address(issuer),
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode revocation payload: %w", err)
	}

	return typedDataDigest(domain, crypto.Keccak256Hash(packed))
}

// typedDataDigest combines the domain separator and a struct hash into the
// final signable digest: keccak256(0x19 || 0x01 || separator || structHash).
func typedDataDigest(domain SigningDomain, structHash common.Hash) ([32]byte, error) {
	separator, err := domain.Separator()
	if err != nil {
		return [32]byte{}, err
	}

	return crypto.Keccak256Hash([]byte{0x19, 0x01}, separator[:], structHash.Bytes()), nil
}

// RecoverSigner recovers the signer identity from a digest and a 65-byte
// [R || S || V] signature. Both V in {0, 1} and the transported {27, 28}
// convention are accepted. Comparing the recovered identity against an
// expected one is the caller's responsibility.
func RecoverSigner(digest [32]byte, signature []byte) (interfaces.Address, error) {
	if len(signature) != 65 {
		return interfaces.Address{}, fmt.Errorf("%w: expected 65 bytes, got %d", interfaces.ErrMalformedSignature, len(signature))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return interfaces.Address{}, fmt.Errorf("%w: invalid recovery id", interfaces.ErrMalformedSignature)
	}

	pubkey, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return interfaces.Address{}, fmt.Errorf("%w: %v", interfaces.ErrMalformedSignature, err)
	}

	return interfaces.Address(crypto.PubkeyToAddress(*pubkey)), nil
}

// Sign produces a 65-byte [R || S || V] signature over the digest with V in
// the {27, 28} convention. Used by clients and tests; the registry itself
// never holds private signing material.
func Sign(digest [32]byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}

	sig[64] += 27
	return sig, nil
}

// SignerAddress returns the registry identity for a private key.
func SignerAddress(key *ecdsa.PrivateKey) interfaces.Address {
	return interfaces.Address(crypto.PubkeyToAddress(key.PublicKey))
}

// DeriveCertificateID computes the deterministic certificate identifier
// from exactly these five fields in this order. Identical inputs always
// produce identical output, letting clients precompute the identifier and
// the processor verify it was not tampered with.
func DeriveCertificateID(docHash interfaces.DocHash, salt interfaces.Salt, issuer interfaces.Address, chainID uint64, issuedAt uint64) (interfaces.CertificateID, error) {
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)
	bytes16Ty, _ := abi.NewType("bytes16", "", nil)
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	addressTy, _ := abi.NewType("address", "", nil)

	arguments := abi.Arguments{
		{Type: bytes32Ty},
		{Type: bytes16Ty},
		{Type: addressTy},
		{Type: uint256Ty},
		{Type: uint256Ty},
	}

	packed, err := arguments.Pack(
		[32]byte(docHash),
		[16]byte(salt),
		common.Address(issuer),
		new(big.Int).SetUint64(chainID),
		new(big.Int).SetUint64(issuedAt),
	)
	if err != nil {
		return interfaces.CertificateID{}, fmt.Errorf("failed to encode certificate ID preimage: %w", err)
	}

	return interfaces.CertificateID(crypto.Keccak256Hash(packed)), nil
}

// DocumentHash computes the 32-byte digest of an unsigned off-chain
// document, as consumed by issuance.
func DocumentHash(document []byte) interfaces.DocHash {
	return interfaces.DocHash(crypto.Keccak256Hash(document))
}
