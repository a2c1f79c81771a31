package interfaces

// RegistryStore is the authoritative mutable state of the registry:
// certificate records, the permanent duplicate-issuance guard, the issuer
// allow-list and governance proposals. Every mutating method performs its
// precondition checks and the mutation in one atomic step, so concurrent
// transactions racing on the same certificate ID, (docHash, issuer) pair or
// proposal ID see exactly one winner.
type RegistryStore interface {
	// Certificate returns a copy of the record, or ErrCertificateNotFound.
	Certificate(id CertificateID) (Certificate, error)

	// StatusOf returns the lifecycle status for the identifier. Missing
	// records report StatusNone.
	StatusOf(id CertificateID) CertificateStatus

	// IsDuplicate reports whether (docHash, issuer) was ever issued.
	// The guard is permanent: revocation does not reset it.
	IsDuplicate(docHash DocHash, issuer Address) bool

	// PutCertificate stores a new Active record and marks the duplicate
	// guard. Fails with ErrCertificateExists or ErrDuplicateIssuance.
	PutCertificate(cert Certificate) error

	// MarkRevoked transitions an Active record to Revoked and stores the
	// revocation fields. Fails with ErrCertificateNotFound or
	// ErrCertificateRevoked.
	MarkRevoked(id CertificateID, reason string, revokedAt uint64, signature []byte) error

	// IsIssuerAllowed reports current allow-list membership.
	IsIssuerAllowed(issuer Address) bool

	// Issuers returns a snapshot of the allow-list in enumeration order.
	Issuers() []Address

	// AddIssuer inserts an issuer directly, bypassing governance. Used for
	// bootstrap only. Fails with ErrIssuerKnown.
	AddIssuer(issuer Address) error

	// CreateProposal validates the action against the current allow-list
	// and allocates the next proposal ID (starting at 1).
	CreateProposal(action ProposalAction, issuer, newIssuer Address, createdAt uint64) (IssuerProposal, error)

	// Proposal returns a copy of the proposal, or ErrProposalNotFound.
	Proposal(id uint64) (IssuerProposal, error)

	// Approve records one approval. The approver must be a currently
	// authorized issuer; a repeated approval fails with ErrAlreadyApproved
	// instead of double-counting.
	Approve(id uint64, approver Address) (IssuerProposal, error)

	// ExecuteProposal re-validates the action preconditions against the
	// current allow-list, applies the change and marks the proposal
	// executed, all atomically. The threshold in force at execution time
	// applies, not the one at proposal time.
	ExecuteProposal(id uint64, threshold uint64) (IssuerProposal, error)
}

// IssueRequest carries a complete signed issuance transaction.
type IssueRequest struct {
	CertificateID   CertificateID `json:"certificate_id"`
	DocHash         DocHash       `json:"doc_hash"`
	StorageURI      string        `json:"storage_uri"`
	Issuer          Address       `json:"issuer"`
	IssuedAt        uint64        `json:"issued_at"`
	Salt            Salt          `json:"salt"`
	IssuerSignature []byte        `json:"issuer_signature"`
}

// RevokeRequest carries a revocation transaction. Signature is required
// when the processor runs in its signature-gated configuration.
type RevokeRequest struct {
	CertificateID CertificateID `json:"certificate_id"`
	Reason        string        `json:"reason"`
	Caller        Address       `json:"caller"`
	Signature     []byte        `json:"signature,omitempty"`
}

// CertificateRegistry is the transaction-processing surface exposed to
// transports. All entry points are fail-atomic: the first violated
// precondition is surfaced as a typed rejection and no state changes.
type CertificateRegistry interface {
	Issue(req IssueRequest) (Certificate, []Event, error)
	Revoke(req RevokeRequest) (Certificate, []Event, error)

	ProposeAdd(caller, newIssuer Address) (IssuerProposal, []Event, error)
	ProposeRotate(caller, oldIssuer, newIssuer Address) (IssuerProposal, []Event, error)
	Approve(caller Address, proposalID uint64) (IssuerProposal, []Event, error)
	Execute(caller Address, proposalID uint64) (IssuerProposal, []Event, error)
	SetApprovalThreshold(caller Address, threshold uint64) error

	Certificate(id CertificateID) (Certificate, error)
	StatusOf(id CertificateID) CertificateStatus
	Issuers() []Address
	Proposal(id uint64) (IssuerProposal, error)
}
