package interfaces

import (
	"errors"
	"fmt"
)

// Error categories. Every rejection produced by the registry wraps exactly
// one of these, so callers can branch on the category with errors.Is while
// still distinguishing the specific precondition that failed.
var (
	// ErrAuthorization covers unknown issuers and approvers and wrong callers.
	ErrAuthorization = errors.New("authorization error")

	// ErrStateConflict covers duplicate records and terminal proposal states.
	ErrStateConflict = errors.New("state conflict")

	// ErrValidation covers malformed, empty or oversized input fields.
	ErrValidation = errors.New("validation error")

	// ErrSignature covers malformed signatures and signer mismatches.
	ErrSignature = errors.New("signature error")
)

// Authorization errors.
var (
	ErrIssuerNotAllowed   = fmt.Errorf("%w: issuer not in allow-list", ErrAuthorization)
	ErrApproverNotAllowed = fmt.Errorf("%w: approver is not an authorized issuer", ErrAuthorization)
	ErrNotAdmin           = fmt.Errorf("%w: caller is not the governance admin", ErrAuthorization)
	ErrNotRecordIssuer    = fmt.Errorf("%w: caller is neither record issuer nor admin", ErrAuthorization)
)

// State conflict errors.
var (
	ErrCertificateExists  = fmt.Errorf("%w: certificate already exists", ErrStateConflict)
	ErrDuplicateIssuance  = fmt.Errorf("%w: document already issued by this issuer", ErrStateConflict)
	ErrCertificateRevoked = fmt.Errorf("%w: certificate is not active", ErrStateConflict)
	ErrProposalExecuted   = fmt.Errorf("%w: proposal already executed", ErrStateConflict)
	ErrAlreadyApproved    = fmt.Errorf("%w: proposal already approved by this approver", ErrStateConflict)
	ErrIssuerKnown        = fmt.Errorf("%w: issuer already authorized", ErrStateConflict)
	ErrIssuerUnknown      = fmt.Errorf("%w: issuer not currently authorized", ErrStateConflict)

	ErrInsufficientApprovals = fmt.Errorf("%w: approvals below threshold", ErrStateConflict)
)

// Validation errors.
var (
	ErrCertificateNotFound = fmt.Errorf("%w: certificate not found", ErrValidation)
	ErrProposalNotFound    = fmt.Errorf("%w: proposal not found", ErrValidation)
	ErrEmptyStorageURI     = fmt.Errorf("%w: storage URI must not be empty", ErrValidation)
	ErrZeroIssuedAt        = fmt.Errorf("%w: issuedAt timestamp must be positive", ErrValidation)
	ErrReasonLength        = fmt.Errorf("%w: revoke reason must be 1-256 bytes", ErrValidation)
	ErrIDMismatch          = fmt.Errorf("%w: certificate ID does not match derived value", ErrValidation)
	ErrRotateToSelf        = fmt.Errorf("%w: rotation source and target are identical", ErrValidation)
	ErrInvalidThreshold    = fmt.Errorf("%w: approval threshold must be positive", ErrValidation)
)

// Signature errors.
var (
	ErrMalformedSignature = fmt.Errorf("%w: malformed signature bytes", ErrSignature)
	ErrSignerMismatch     = fmt.Errorf("%w: recovered signer does not match expected identity", ErrSignature)
)
