package interfaces

// Event is a domain event emitted by a successful state transition.
// The processor returns events instead of broadcasting them itself; the
// caller appends them to an audit sink. Replaying the sink reconstructs
// registry state without re-deriving it from transactions.
type Event interface {
	// Kind returns the stable event name used in the audit trail.
	Kind() string
}

// CertificateIssued is emitted once per successful issuance.
type CertificateIssued struct {
	CertificateID CertificateID `json:"certificate_id"`
	Issuer        Address       `json:"issuer"`
	DocHash       DocHash       `json:"doc_hash"`
	StorageURI    string        `json:"storage_uri"`
	IssuedAt      uint64        `json:"issued_at"`
	Salt          Salt          `json:"salt"`
}

func (CertificateIssued) Kind() string { return "certificate_issued" }

// CertificateRevoked is emitted once per successful revocation.
type CertificateRevoked struct {
	CertificateID CertificateID `json:"certificate_id"`
	Issuer        Address       `json:"issuer"`
	Reason        string        `json:"reason"`
	RevokedAt     uint64        `json:"revoked_at"`
}

func (CertificateRevoked) Kind() string { return "certificate_revoked" }

// IssuerUpdated is emitted whenever the allow-list changes. Authorized is
// true for insertions and false for removals; a rotation emits both.
type IssuerUpdated struct {
	Issuer     Address `json:"issuer"`
	Authorized bool    `json:"authorized"`
}

func (IssuerUpdated) Kind() string { return "issuer_updated" }

// IssuerUpdateProposed is emitted when an admin creates a proposal.
type IssuerUpdateProposed struct {
	ProposalID uint64         `json:"proposal_id"`
	Action     ProposalAction `json:"action"`
	Issuer     Address        `json:"issuer,omitempty"`
	NewIssuer  Address        `json:"new_issuer"`
	CreatedAt  uint64         `json:"created_at"`
}

func (IssuerUpdateProposed) Kind() string { return "issuer_update_proposed" }

// IssuerUpdateApproved is emitted on each accepted approval.
type IssuerUpdateApproved struct {
	ProposalID uint64  `json:"proposal_id"`
	Approver   Address `json:"approver"`
	Approvals  uint64  `json:"approvals"`
}

func (IssuerUpdateApproved) Kind() string { return "issuer_update_approved" }

// IssuerUpdateExecuted is emitted when a proposal is applied.
type IssuerUpdateExecuted struct {
	ProposalID uint64         `json:"proposal_id"`
	Action     ProposalAction `json:"action"`
	Issuer     Address        `json:"issuer,omitempty"`
	NewIssuer  Address        `json:"new_issuer"`
}

func (IssuerUpdateExecuted) Kind() string { return "issuer_update_executed" }

// EventSink receives emitted domain events in order. Implementations must
// treat the stream as append-only.
type EventSink interface {
	Append(events ...Event) error
}
