// Package interfaces defines the core types and contracts of the diploma
// certificate registry. It provides the boundary between components without
// implementation details.
package interfaces

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Address represents a 20-byte signer identity, compatible with Ethereum
// account addresses recovered from ECDSA signatures.
type Address [20]byte

// NewAddressFromBytes creates an address from a raw 20-byte slice.
func NewAddressFromBytes(addr []byte) (Address, error) {
	if len(addr) != 20 {
		return Address{}, errors.New("invalid address length: must be 20 bytes")
	}

	var res Address
	copy(res[:], addr)
	return res, nil
}

// NewAddressFromHex creates an address from a hex string, with or without
// the 0x prefix.
func NewAddressFromHex(addr string) (Address, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return Address{}, errors.New("invalid address length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewAddressFromBytes(addrBytes)
}

// String returns the hex string representation of the address.
func (addr Address) String() string {
	return hex.EncodeToString(addr[:])
}

// Bytes returns the raw 20-byte address.
func (addr Address) Bytes() []byte {
	return addr[:]
}

// Equal compares two addresses for equality.
func (addr Address) Equal(other Address) bool {
	return addr == other
}

// IsZero reports whether the address is the zero value.
func (addr Address) IsZero() bool {
	return addr == Address{}
}

// CertificateID is the 32-byte deterministic identifier of a certificate,
// derived from its immutable issuance fields.
type CertificateID [32]byte

// NewCertificateIDFromHex parses a certificate ID from a 64-character hex
// string, with or without the 0x prefix.
func NewCertificateIDFromHex(source string) (CertificateID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return CertificateID{}, errors.New("invalid certificate ID length: hex string must be 64 characters")
	}

	idBytes, err := hex.DecodeString(clean)
	if err != nil {
		return CertificateID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var id CertificateID
	copy(id[:], idBytes)
	return id, nil
}

// String returns the hex representation of the certificate ID.
func (id CertificateID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 32-byte identifier.
func (id CertificateID) Bytes() []byte {
	return id[:]
}

// Equal compares two certificate IDs.
func (id CertificateID) Equal(other CertificateID) bool {
	return bytes.Equal(id[:], other[:])
}

// DocHash is the 32-byte digest of the unsigned off-chain document.
type DocHash [32]byte

// NewDocHashFromHex parses a document hash from a 64-character hex string.
func NewDocHashFromHex(source string) (DocHash, error) {
	id, err := NewCertificateIDFromHex(source)
	if err != nil {
		return DocHash{}, err
	}
	return DocHash(id), nil
}

// String returns the hex representation of the document hash.
func (h DocHash) String() string {
	return hex.EncodeToString(h[:])
}

// Salt is the 16-byte random value mixed into certificate ID derivation.
type Salt [16]byte

// NewSaltFromHex parses a salt from a 32-character hex string.
func NewSaltFromHex(source string) (Salt, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 32 {
		return Salt{}, errors.New("invalid salt length: hex string must be 32 characters")
	}

	saltBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Salt{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var s Salt
	copy(s[:], saltBytes)
	return s, nil
}

// String returns the hex representation of the salt.
func (s Salt) String() string {
	return hex.EncodeToString(s[:])
}

// CertificateStatus tracks the lifecycle of a certificate record.
// Transitions are strictly None -> Active -> Revoked, never backward.
type CertificateStatus int

const (
	// StatusNone means no record exists for the identifier.
	StatusNone CertificateStatus = iota
	// StatusActive means the certificate was issued and not revoked.
	StatusActive
	// StatusRevoked is terminal; a revoked certificate is never reactivated.
	StatusRevoked
)

// String returns the status name.
func (s CertificateStatus) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusActive:
		return "active"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// MaxRevokeReasonLen bounds the revocation reason string.
const MaxRevokeReasonLen = 256

// Certificate is the authoritative record of an issued diploma.
// Once Active, DocHash, StorageURI, Issuer, IssuedAt and Salt are immutable;
// a successful revocation sets the revoke fields exactly once.
type Certificate struct {
	ID              CertificateID     `json:"certificate_id"`
	DocHash         DocHash           `json:"doc_hash"`
	StorageURI      string            `json:"storage_uri"`
	Issuer          Address           `json:"issuer"`
	IssuedAt        uint64            `json:"issued_at"`
	Salt            Salt              `json:"salt"`
	Status          CertificateStatus `json:"status"`
	IssuerSignature []byte            `json:"issuer_signature"`
	RevokeReason    string            `json:"revoke_reason,omitempty"`
	RevokedAt       uint64            `json:"revoked_at,omitempty"`
	RevokeSignature []byte            `json:"revoke_signature,omitempty"`
}

// ProposalAction identifies the allow-list change a proposal carries.
type ProposalAction int

const (
	// ActionNone is the zero value and never stored.
	ActionNone ProposalAction = iota
	// ActionAdd inserts NewIssuer into the allow-list.
	ActionAdd
	// ActionRotate atomically replaces Issuer with NewIssuer.
	ActionRotate
)

// String returns the action name.
func (a ProposalAction) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionAdd:
		return "add"
	case ActionRotate:
		return "rotate"
	default:
		return "unknown"
	}
}

// IssuerProposal is a pending or executed issuer allow-list change.
// Once Executed is set the proposal is immutable and can never execute again.
type IssuerProposal struct {
	ID        uint64         `json:"proposal_id"`
	Action    ProposalAction `json:"action"`
	Issuer    Address        `json:"issuer,omitempty"`
	NewIssuer Address        `json:"new_issuer"`
	Approvals uint64         `json:"approvals"`
	Executed  bool           `json:"executed"`
	CreatedAt uint64         `json:"created_at"`
}
