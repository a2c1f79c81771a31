package registry

import (
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/attestia/diploma-registry-backend/cryptoutils"
	"github.com/attestia/diploma-registry-backend/interfaces"
)

// Config carries the deployment-specific parameters of a Processor.
type Config struct {
	// Domain binds signatures to this registry deployment.
	Domain cryptoutils.SigningDomain

	// Admin is the governance admin identity: it proposes and executes
	// issuer updates, sets the approval threshold, and may revoke any
	// certificate.
	Admin interfaces.Address

	// ApprovalThreshold is the initial number of approvals required to
	// execute a proposal. Must be positive.
	ApprovalThreshold uint64

	// RequireRevokeSignature gates revocation on a signature that recovers
	// to the record's issuer. Enabled by default in the server; disabling
	// it allows the caller-identity check alone to authorize revocation.
	RequireRevokeSignature bool
}

// Processor validates signed transactions and applies them to the state
// store. Every entry point checks all preconditions before any mutation and
// surfaces the first violated one as a typed rejection; there is no partial
// commit and no automatic retry.
type Processor struct {
	store            interfaces.RegistryStore
	domain           cryptoutils.SigningDomain
	admin            interfaces.Address
	requireRevokeSig bool
	threshold        atomic.Uint64
	log              *slog.Logger

	now func() uint64
}

// NewProcessor creates a transaction processor over the given store.
func NewProcessor(store interfaces.RegistryStore, cfg Config, log *slog.Logger) (*Processor, error) {
	if cfg.ApprovalThreshold == 0 {
		return nil, interfaces.ErrInvalidThreshold
	}
	if cfg.Admin.IsZero() {
		return nil, fmt.Errorf("%w: admin address is zero", interfaces.ErrValidation)
	}

	p := &Processor{
		store:            store,
		domain:           cfg.Domain,
		admin:            cfg.Admin,
		requireRevokeSig: cfg.RequireRevokeSignature,
		log:              log,
		now:              func() uint64 { return uint64(time.Now().Unix()) },
	}
	p.threshold.Store(cfg.ApprovalThreshold)
	return p, nil
}

// Issue validates and applies an issuance transaction.
//
// Preconditions, checked in order: issuer is allow-listed; no record exists
// at the certificate ID; storage URI is non-empty; issuedAt is positive;
// the (docHash, issuer) pair was never issued before; the certificate ID
// equals the derived value; the issuance signature recovers to the issuer.
// The final store insert re-checks existence and duplication atomically, so
// racing transactions cannot both succeed.
func (p *Processor) Issue(req interfaces.IssueRequest) (interfaces.Certificate, []interfaces.Event, error) {
	if !p.store.IsIssuerAllowed(req.Issuer) {
		return interfaces.Certificate{}, nil, interfaces.ErrIssuerNotAllowed
	}
	if p.store.StatusOf(req.CertificateID) != interfaces.StatusNone {
		return interfaces.Certificate{}, nil, interfaces.ErrCertificateExists
	}
	if req.StorageURI == "" {
		return interfaces.Certificate{}, nil, interfaces.ErrEmptyStorageURI
	}
	if req.IssuedAt == 0 {
		return interfaces.Certificate{}, nil, interfaces.ErrZeroIssuedAt
	}
	if p.store.IsDuplicate(req.DocHash, req.Issuer) {
		return interfaces.Certificate{}, nil, interfaces.ErrDuplicateIssuance
	}

	derived, err := cryptoutils.DeriveCertificateID(req.DocHash, req.Salt, req.Issuer, p.domain.ChainID, req.IssuedAt)
	if err != nil {
		return interfaces.Certificate{}, nil, err
	}
	if !derived.Equal(req.CertificateID) {
		return interfaces.Certificate{}, nil, interfaces.ErrIDMismatch
	}

	digest, err := cryptoutils.IssuanceDigest(p.domain, req.DocHash, req.Salt, req.Issuer, req.IssuedAt, req.StorageURI)
	if err != nil {
		return interfaces.Certificate{}, nil, err
	}
	signer, err := cryptoutils.RecoverSigner(digest, req.IssuerSignature)
	if err != nil {
		return interfaces.Certificate{}, nil, err
	}
	if !signer.Equal(req.Issuer) {
		return interfaces.Certificate{}, nil, interfaces.ErrSignerMismatch
	}

	cert := interfaces.Certificate{
		ID:              req.CertificateID,
		DocHash:         req.DocHash,
		StorageURI:      req.StorageURI,
		Issuer:          req.Issuer,
		IssuedAt:        req.IssuedAt,
		Salt:            req.Salt,
		Status:          interfaces.StatusActive,
		IssuerSignature: req.IssuerSignature,
	}
	if err := p.store.PutCertificate(cert); err != nil {
		return interfaces.Certificate{}, nil, err
	}

	p.log.Info("Certificate issued",
		"certificateId", cert.ID.String(),
		"issuer", cert.Issuer.String(),
		"docHash", cert.DocHash.String())

	events := []interfaces.Event{interfaces.CertificateIssued{
		CertificateID: cert.ID,
		Issuer:        cert.Issuer,
		DocHash:       cert.DocHash,
		StorageURI:    cert.StorageURI,
		IssuedAt:      cert.IssuedAt,
		Salt:          cert.Salt,
	}}
	return cert, events, nil
}

// Revoke validates and applies a revocation transaction. Revocation is
// irreversible and does not release the duplicate-issuance guard: the same
// (docHash, issuer) pair can never be reissued.
func (p *Processor) Revoke(req interfaces.RevokeRequest) (interfaces.Certificate, []interfaces.Event, error) {
	cert, err := p.store.Certificate(req.CertificateID)
	if err != nil {
		return interfaces.Certificate{}, nil, err
	}
	if cert.Status != interfaces.StatusActive {
		return interfaces.Certificate{}, nil, interfaces.ErrCertificateRevoked
	}
	if !req.Caller.Equal(cert.Issuer) && !req.Caller.Equal(p.admin) {
		return interfaces.Certificate{}, nil, interfaces.ErrNotRecordIssuer
	}
	if len(req.Reason) == 0 || len(req.Reason) > interfaces.MaxRevokeReasonLen {
		return interfaces.Certificate{}, nil, interfaces.ErrReasonLength
	}

	if p.requireRevokeSig {
		digest, err := cryptoutils.RevocationDigest(p.domain, req.CertificateID, req.Reason, cert.Issuer)
		if err != nil {
			return interfaces.Certificate{}, nil, err
		}
		signer, err := cryptoutils.RecoverSigner(digest, req.Signature)
		if err != nil {
			return interfaces.Certificate{}, nil, err
		}
		if !signer.Equal(cert.Issuer) {
			return interfaces.Certificate{}, nil, interfaces.ErrSignerMismatch
		}
	}

	revokedAt := p.now()
	if err := p.store.MarkRevoked(req.CertificateID, req.Reason, revokedAt, req.Signature); err != nil {
		return interfaces.Certificate{}, nil, err
	}

	revoked, err := p.store.Certificate(req.CertificateID)
	if err != nil {
		return interfaces.Certificate{}, nil, err
	}

	p.log.Info("Certificate revoked",
		"certificateId", revoked.ID.String(),
		"issuer", revoked.Issuer.String(),
		"reason", req.Reason)

	events := []interfaces.Event{interfaces.CertificateRevoked{
		CertificateID: revoked.ID,
		Issuer:        revoked.Issuer,
		Reason:        revoked.RevokeReason,
		RevokedAt:     revoked.RevokedAt,
	}}
	return revoked, events, nil
}

// ProposeAdd creates a governance proposal to add a new issuer.
func (p *Processor) ProposeAdd(caller, newIssuer interfaces.Address) (interfaces.IssuerProposal, []interfaces.Event, error) {
	if !caller.Equal(p.admin) {
		return interfaces.IssuerProposal{}, nil, interfaces.ErrNotAdmin
	}
	if newIssuer.IsZero() {
		return interfaces.IssuerProposal{}, nil, fmt.Errorf("%w: new issuer address is zero", interfaces.ErrValidation)
	}

	proposal, err := p.store.CreateProposal(interfaces.ActionAdd, interfaces.Address{}, newIssuer, p.now())
	if err != nil {
		return interfaces.IssuerProposal{}, nil, err
	}

	p.log.Info("Issuer addition proposed", "proposalId", proposal.ID, "newIssuer", newIssuer.String())
	return proposal, []interfaces.Event{proposedEvent(proposal)}, nil
}

// ProposeRotate creates a governance proposal to replace an issuer.
func (p *Processor) ProposeRotate(caller, oldIssuer, newIssuer interfaces.Address) (interfaces.IssuerProposal, []interfaces.Event, error) {
	if !caller.Equal(p.admin) {
		return interfaces.IssuerProposal{}, nil, interfaces.ErrNotAdmin
	}
	if newIssuer.IsZero() {
		return interfaces.IssuerProposal{}, nil, fmt.Errorf("%w: new issuer address is zero", interfaces.ErrValidation)
	}

	proposal, err := p.store.CreateProposal(interfaces.ActionRotate, oldIssuer, newIssuer, p.now())
	if err != nil {
		return interfaces.IssuerProposal{}, nil, err
	}

	p.log.Info("Issuer rotation proposed",
		"proposalId", proposal.ID,
		"issuer", oldIssuer.String(),
		"newIssuer", newIssuer.String())
	return proposal, []interfaces.Event{proposedEvent(proposal)}, nil
}

// Approve records one approval by a currently authorized issuer.
func (p *Processor) Approve(caller interfaces.Address, proposalID uint64) (interfaces.IssuerProposal, []interfaces.Event, error) {
	proposal, err := p.store.Approve(proposalID, caller)
	if err != nil {
		return interfaces.IssuerProposal{}, nil, err
	}

	p.log.Info("Proposal approved",
		"proposalId", proposal.ID,
		"approver", caller.String(),
		"approvals", proposal.Approvals)

	events := []interfaces.Event{interfaces.IssuerUpdateApproved{
		ProposalID: proposal.ID,
		Approver:   caller,
		Approvals:  proposal.Approvals,
	}}
	return proposal, events, nil
}

// Execute applies a proposal once enough approvals have accumulated. The
// threshold in force now applies, not the one at proposal time, and the
// action preconditions are re-validated against current state.
func (p *Processor) Execute(caller interfaces.Address, proposalID uint64) (interfaces.IssuerProposal, []interfaces.Event, error) {
	if !caller.Equal(p.admin) {
		return interfaces.IssuerProposal{}, nil, interfaces.ErrNotAdmin
	}

	proposal, err := p.store.ExecuteProposal(proposalID, p.threshold.Load())
	if err != nil {
		return interfaces.IssuerProposal{}, nil, err
	}

	p.log.Info("Proposal executed",
		"proposalId", proposal.ID,
		"action", proposal.Action.String(),
		"newIssuer", proposal.NewIssuer.String())

	events := []interfaces.Event{interfaces.IssuerUpdateExecuted{
		ProposalID: proposal.ID,
		Action:     proposal.Action,
		Issuer:     proposal.Issuer,
		NewIssuer:  proposal.NewIssuer,
	}}
	if proposal.Action == interfaces.ActionRotate {
		events = append(events, interfaces.IssuerUpdated{Issuer: proposal.Issuer, Authorized: false})
	}
	events = append(events, interfaces.IssuerUpdated{Issuer: proposal.NewIssuer, Authorized: true})

	return proposal, events, nil
}

// SetApprovalThreshold updates the execution threshold for all proposals
// not yet executed.
func (p *Processor) SetApprovalThreshold(caller interfaces.Address, threshold uint64) error {
	if !caller.Equal(p.admin) {
		return interfaces.ErrNotAdmin
	}
	if threshold == 0 {
		return interfaces.ErrInvalidThreshold
	}

	p.threshold.Store(threshold)
	p.log.Info("Approval threshold updated", "threshold", threshold)
	return nil
}

// Certificate returns the stored record for an identifier.
func (p *Processor) Certificate(id interfaces.CertificateID) (interfaces.Certificate, error) {
	return p.store.Certificate(id)
}

// StatusOf returns the lifecycle status for an identifier.
func (p *Processor) StatusOf(id interfaces.CertificateID) interfaces.CertificateStatus {
	return p.store.StatusOf(id)
}

// Issuers returns the current allow-list snapshot.
func (p *Processor) Issuers() []interfaces.Address {
	return p.store.Issuers()
}

// Proposal returns the stored proposal for an identifier.
func (p *Processor) Proposal(id uint64) (interfaces.IssuerProposal, error) {
	return p.store.Proposal(id)
}

func proposedEvent(proposal interfaces.IssuerProposal) interfaces.Event {
	return interfaces.IssuerUpdateProposed{
		ProposalID: proposal.ID,
		Action:     proposal.Action,
		Issuer:     proposal.Issuer,
		NewIssuer:  proposal.NewIssuer,
		CreatedAt:  proposal.CreatedAt,
	}
}
