// Package registry implements the certificate registry core: the
// authoritative state store, the multi-signature issuer governance state
// machine, and the transaction processor that validates signed issuance and
// revocation transactions against them.
package registry

import (
	"fmt"
	"sync"

	"github.com/attestia/diploma-registry-backend/interfaces"
)

type docIssuerKey struct {
	doc    interfaces.DocHash
	issuer interfaces.Address
}

type approvalKey struct {
	proposal uint64
	approver interfaces.Address
}

// Store is the in-memory implementation of interfaces.RegistryStore.
// A single RWMutex serializes all mutations, which gives every
// check-and-mutate operation single-writer semantics: two transactions
// racing on the same certificate ID or (docHash, issuer) pair see exactly
// one winner. Reads run against a consistent snapshot under the read lock.
type Store struct {
	mu sync.RWMutex

	certs  map[interfaces.CertificateID]*interfaces.Certificate
	issued map[docIssuerKey]bool

	issuerSet  map[interfaces.Address]bool
	issuerList []interfaces.Address

	proposals      map[uint64]*interfaces.IssuerProposal
	approvals      map[approvalKey]bool
	nextProposalID uint64
}

// NewStore creates an empty registry state store. Proposal IDs start at 1.
func NewStore() *Store {
	return &Store{
		certs:          make(map[interfaces.CertificateID]*interfaces.Certificate),
		issued:         make(map[docIssuerKey]bool),
		issuerSet:      make(map[interfaces.Address]bool),
		proposals:      make(map[uint64]*interfaces.IssuerProposal),
		approvals:      make(map[approvalKey]bool),
		nextProposalID: 1,
	}
}

// Certificate returns a copy of the stored record.
func (s *Store) Certificate(id interfaces.CertificateID) (interfaces.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, ok := s.certs[id]
	if !ok {
		return interfaces.Certificate{}, interfaces.ErrCertificateNotFound
	}
	return *cert, nil
}

// StatusOf returns the lifecycle status for the identifier.
func (s *Store) StatusOf(id interfaces.CertificateID) interfaces.CertificateStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, ok := s.certs[id]
	if !ok {
		return interfaces.StatusNone
	}
	return cert.Status
}

// IsDuplicate reports whether the (docHash, issuer) pair was ever issued.
func (s *Store) IsDuplicate(docHash interfaces.DocHash, issuer interfaces.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.issued[docIssuerKey{doc: docHash, issuer: issuer}]
}

// PutCertificate stores a new record and marks the duplicate guard in one
// critical section. The guard is never cleared, not even by revocation.
func (s *Store) PutCertificate(cert interfaces.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.certs[cert.ID]; ok {
		return interfaces.ErrCertificateExists
	}

	key := docIssuerKey{doc: cert.DocHash, issuer: cert.Issuer}
	if s.issued[key] {
		return interfaces.ErrDuplicateIssuance
	}

	stored := cert
	s.certs[cert.ID] = &stored
	s.issued[key] = true
	return nil
}

// MarkRevoked transitions an Active record to Revoked.
func (s *Store) MarkRevoked(id interfaces.CertificateID, reason string, revokedAt uint64, signature []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert, ok := s.certs[id]
	if !ok {
		return interfaces.ErrCertificateNotFound
	}
	if cert.Status != interfaces.StatusActive {
		return interfaces.ErrCertificateRevoked
	}

	cert.Status = interfaces.StatusRevoked
	cert.RevokeReason = reason
	cert.RevokedAt = revokedAt
	cert.RevokeSignature = signature
	return nil
}

// IsIssuerAllowed reports current allow-list membership.
func (s *Store) IsIssuerAllowed(issuer interfaces.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.issuerSet[issuer]
}

// Issuers returns a snapshot of the allow-list.
func (s *Store) Issuers() []interfaces.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]interfaces.Address, len(s.issuerList))
	copy(out, s.issuerList)
	return out
}

// AddIssuer inserts an issuer without governance. Bootstrap only.
func (s *Store) AddIssuer(issuer interfaces.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertIssuerLocked(issuer)
}

func (s *Store) insertIssuerLocked(issuer interfaces.Address) error {
	if s.issuerSet[issuer] {
		return interfaces.ErrIssuerKnown
	}

	s.issuerSet[issuer] = true
	s.issuerList = append(s.issuerList, issuer)
	return nil
}

// removeIssuerLocked keeps set and list consistent. The removed slot is
// filled by swapping with the last entry; surviving entries keep their
// logical identity, order is otherwise unspecified.
func (s *Store) removeIssuerLocked(issuer interfaces.Address) error {
	if !s.issuerSet[issuer] {
		return interfaces.ErrIssuerUnknown
	}

	delete(s.issuerSet, issuer)
	for i, entry := range s.issuerList {
		if entry == issuer {
			last := len(s.issuerList) - 1
			s.issuerList[i] = s.issuerList[last]
			s.issuerList = s.issuerList[:last]
			break
		}
	}
	return nil
}

// validateActionLocked checks a proposal action against the current
// allow-list. Used both at proposal time and again at execute time, since
// the allow-list may have drifted in between.
func (s *Store) validateActionLocked(action interfaces.ProposalAction, issuer, newIssuer interfaces.Address) error {
	switch action {
	case interfaces.ActionAdd:
		if s.issuerSet[newIssuer] {
			return interfaces.ErrIssuerKnown
		}
	case interfaces.ActionRotate:
		if issuer == newIssuer {
			return interfaces.ErrRotateToSelf
		}
		if !s.issuerSet[issuer] {
			return interfaces.ErrIssuerUnknown
		}
		if s.issuerSet[newIssuer] {
			return interfaces.ErrIssuerKnown
		}
	default:
		return fmt.Errorf("%w: unsupported proposal action %d", interfaces.ErrValidation, action)
	}
	return nil
}

// CreateProposal validates the action and allocates the next proposal ID.
func (s *Store) CreateProposal(action interfaces.ProposalAction, issuer, newIssuer interfaces.Address, createdAt uint64) (interfaces.IssuerProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateActionLocked(action, issuer, newIssuer); err != nil {
		return interfaces.IssuerProposal{}, err
	}

	proposal := &interfaces.IssuerProposal{
		ID:        s.nextProposalID,
		Action:    action,
		Issuer:    issuer,
		NewIssuer: newIssuer,
		CreatedAt: createdAt,
	}
	s.proposals[proposal.ID] = proposal
	s.nextProposalID++

	return *proposal, nil
}

// Proposal returns a copy of the stored proposal.
func (s *Store) Proposal(id uint64) (interfaces.IssuerProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proposal, ok := s.proposals[id]
	if !ok {
		return interfaces.IssuerProposal{}, interfaces.ErrProposalNotFound
	}
	return *proposal, nil
}

// Approve records a single approval. A second approval by the same approver
// is rejected rather than double-counted.
func (s *Store) Approve(id uint64, approver interfaces.Address) (interfaces.IssuerProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposal, ok := s.proposals[id]
	if !ok {
		return interfaces.IssuerProposal{}, interfaces.ErrProposalNotFound
	}
	if proposal.Executed {
		return interfaces.IssuerProposal{}, interfaces.ErrProposalExecuted
	}
	if !s.issuerSet[approver] {
		return interfaces.IssuerProposal{}, interfaces.ErrApproverNotAllowed
	}

	key := approvalKey{proposal: id, approver: approver}
	if s.approvals[key] {
		return interfaces.IssuerProposal{}, interfaces.ErrAlreadyApproved
	}

	s.approvals[key] = true
	proposal.Approvals++
	return *proposal, nil
}

// ExecuteProposal applies an approved proposal. The action preconditions
// are re-validated against the current allow-list before applying; a stale
// proposal whose assumptions no longer hold fails here instead of
// corrupting state.
func (s *Store) ExecuteProposal(id uint64, threshold uint64) (interfaces.IssuerProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposal, ok := s.proposals[id]
	if !ok {
		return interfaces.IssuerProposal{}, interfaces.ErrProposalNotFound
	}
	if proposal.Executed {
		return interfaces.IssuerProposal{}, interfaces.ErrProposalExecuted
	}
	if proposal.Approvals < threshold {
		return interfaces.IssuerProposal{}, interfaces.ErrInsufficientApprovals
	}

	if err := s.validateActionLocked(proposal.Action, proposal.Issuer, proposal.NewIssuer); err != nil {
		return interfaces.IssuerProposal{}, err
	}

	switch proposal.Action {
	case interfaces.ActionAdd:
		if err := s.insertIssuerLocked(proposal.NewIssuer); err != nil {
			return interfaces.IssuerProposal{}, err
		}
	case interfaces.ActionRotate:
		if err := s.removeIssuerLocked(proposal.Issuer); err != nil {
			return interfaces.IssuerProposal{}, err
		}
		if err := s.insertIssuerLocked(proposal.NewIssuer); err != nil {
			return interfaces.IssuerProposal{}, err
		}
	}

	proposal.Executed = true
	return *proposal, nil
}
