package httpserver

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/attestia/diploma-registry-backend/eventlog"
	"github.com/attestia/diploma-registry-backend/interfaces"
	"github.com/attestia/diploma-registry-backend/keyescrow"
	"github.com/attestia/diploma-registry-backend/metrics"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// EventLog is the audit log surface the handler needs: append on successful
// transactions, replay for the events endpoint.
type EventLog interface {
	Append(events ...interfaces.Event) error
	Replay(afterSequence uint64) ([]eventlog.Record, error)
}

// Handler processes HTTP requests for the diploma registry service. It
// translates JSON requests into registry transactions, appends emitted events
// to the audit log and maps typed rejections onto HTTP status codes.
type Handler struct {
	registry interfaces.CertificateRegistry
	events   EventLog
	escrow   *keyescrow.Escrow
	log      *slog.Logger
}

// NewHandler creates a new HTTP request handler. The event log may be nil,
// in which case emitted events are dropped and the events endpoint reports
// an empty log.
func NewHandler(registry interfaces.CertificateRegistry, events EventLog, log *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		events:   events,
		log:      log,
	}
}

// WithEscrow attaches an archival key escrow, enabling the custodian share
// submission endpoints.
func (h *Handler) WithEscrow(escrow *keyescrow.Escrow) *Handler {
	h.escrow = escrow
	return h
}

// IssueRequest is the JSON shape of an issuance transaction. Byte fields are
// hex-encoded, with or without 0x prefix.
type IssueRequest struct {
	CertificateID string `json:"certificate_id"`
	DocHash       string `json:"doc_hash"`
	Salt          string `json:"salt"`
	Issuer        string `json:"issuer"`
	IssuedAt      uint64 `json:"issued_at"`
	StorageURI    string `json:"storage_uri"`
	Signature     string `json:"signature"`
}

// RevokeRequest is the JSON shape of a revocation transaction.
type RevokeRequest struct {
	Reason    string `json:"reason"`
	Caller    string `json:"caller"`
	Signature string `json:"signature,omitempty"`
}

// ProposalRequest is the JSON shape of a governance proposal.
type ProposalRequest struct {
	Caller    string `json:"caller"`
	Action    string `json:"action"`
	Issuer    string `json:"issuer,omitempty"`
	NewIssuer string `json:"new_issuer"`
}

type CallerRequest struct {
	Caller string `json:"caller"`
}

type ThresholdRequest struct {
	Caller    string `json:"caller"`
	Threshold uint64 `json:"threshold"`
}

// CertificateResponse is the JSON shape of a certificate record.
type CertificateResponse struct {
	CertificateID   string `json:"certificate_id"`
	DocHash         string `json:"doc_hash"`
	StorageURI      string `json:"storage_uri"`
	Issuer          string `json:"issuer"`
	IssuedAt        uint64 `json:"issued_at"`
	Salt            string `json:"salt"`
	Status          string `json:"status"`
	IssuerSignature string `json:"issuer_signature"`
	RevokeReason    string `json:"revoke_reason,omitempty"`
	RevokedAt       uint64 `json:"revoked_at,omitempty"`
	RevokeSignature string `json:"revoke_signature,omitempty"`
}

type ProposalResponse struct {
	ID        uint64 `json:"id"`
	Action    string `json:"action"`
	Issuer    string `json:"issuer,omitempty"`
	NewIssuer string `json:"new_issuer"`
	Approvals uint64 `json:"approvals"`
	Executed  bool   `json:"executed"`
	CreatedAt uint64 `json:"created_at"`
}

// HandleIssue processes certificate issuance requests.
//
// URL format: POST /api/certificates
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}

	txReq, err := req.toTransaction()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cert, events, err := h.registry.Issue(txReq)
	if err != nil {
		h.writeRejection(w, "issue", err)
		return
	}

	h.appendEvents(events)
	metrics.CertificatesIssued.Inc()

	h.log.Info("Certificate issued",
		slog.String("certificate_id", cert.ID.String()),
		slog.String("issuer", cert.Issuer.String()))

	h.writeJSON(w, http.StatusCreated, certificateToResponse(cert))
}

// HandleRevoke processes certificate revocation requests.
//
// URL format: POST /api/certificates/{certificate_id}/revoke
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.NewCertificateIDFromHex(chi.URLParam(r, "certificate_id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid certificate ID: %v", err), http.StatusBadRequest)
		return
	}

	var req RevokeRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}

	caller, err := interfaces.NewAddressFromHex(req.Caller)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid caller address: %v", err), http.StatusBadRequest)
		return
	}

	signature, err := decodeHex(req.Signature)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid signature encoding: %v", err), http.StatusBadRequest)
		return
	}

	cert, events, err := h.registry.Revoke(interfaces.RevokeRequest{
		CertificateID: id,
		Reason:        req.Reason,
		Caller:        caller,
		Signature:     signature,
	})
	if err != nil {
		h.writeRejection(w, "revoke", err)
		return
	}

	h.appendEvents(events)
	metrics.CertificatesRevoked.Inc()

	h.log.Info("Certificate revoked",
		slog.String("certificate_id", cert.ID.String()),
		slog.String("caller", caller.String()))

	h.writeJSON(w, http.StatusOK, certificateToResponse(cert))
}

// HandleGetCertificate returns the full certificate record.
//
// URL format: GET /api/certificates/{certificate_id}
func (h *Handler) HandleGetCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.NewCertificateIDFromHex(chi.URLParam(r, "certificate_id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid certificate ID: %v", err), http.StatusBadRequest)
		return
	}

	cert, err := h.registry.Certificate(id)
	if err != nil {
		h.writeRejection(w, "get_certificate", err)
		return
	}

	h.writeJSON(w, http.StatusOK, certificateToResponse(cert))
}

// HandleCertificateStatus returns just the lifecycle status. Unknown
// identifiers report status "none" rather than an error, so verifiers can
// distinguish "never issued" cheaply.
//
// URL format: GET /api/certificates/{certificate_id}/status
func (h *Handler) HandleCertificateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.NewCertificateIDFromHex(chi.URLParam(r, "certificate_id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid certificate ID: %v", err), http.StatusBadRequest)
		return
	}

	status := h.registry.StatusOf(id)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": status.String()})
}

// HandleIssuers returns the current issuer allow-list.
//
// URL format: GET /api/issuers
func (h *Handler) HandleIssuers(w http.ResponseWriter, r *http.Request) {
	issuers := h.registry.Issuers()
	list := make([]string, 0, len(issuers))
	for _, issuer := range issuers {
		list = append(list, issuer.String())
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{"issuers": list})
}

// HandlePropose creates an issuer governance proposal.
//
// URL format: POST /api/governance/proposals
func (h *Handler) HandlePropose(w http.ResponseWriter, r *http.Request) {
	var req ProposalRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}

	caller, err := interfaces.NewAddressFromHex(req.Caller)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid caller address: %v", err), http.StatusBadRequest)
		return
	}

	newIssuer, err := interfaces.NewAddressFromHex(req.NewIssuer)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid new issuer address: %v", err), http.StatusBadRequest)
		return
	}

	var proposal interfaces.IssuerProposal
	var events []interfaces.Event

	switch req.Action {
	case "add":
		proposal, events, err = h.registry.ProposeAdd(caller, newIssuer)
	case "rotate":
		oldIssuer, addrErr := interfaces.NewAddressFromHex(req.Issuer)
		if addrErr != nil {
			http.Error(w, fmt.Sprintf("invalid issuer address: %v", addrErr), http.StatusBadRequest)
			return
		}
		proposal, events, err = h.registry.ProposeRotate(caller, oldIssuer, newIssuer)
	default:
		http.Error(w, fmt.Sprintf("unsupported action: %s", req.Action), http.StatusBadRequest)
		return
	}

	if err != nil {
		h.writeRejection(w, "propose", err)
		return
	}

	h.appendEvents(events)
	metrics.GovernanceProposals.WithLabelValues(req.Action).Inc()

	h.log.Info("Issuer update proposed",
		slog.Uint64("proposal_id", proposal.ID),
		slog.String("action", proposal.Action.String()))

	h.writeJSON(w, http.StatusCreated, proposalToResponse(proposal))
}

// HandleGetProposal returns a governance proposal.
//
// URL format: GET /api/governance/proposals/{proposal_id}
func (h *Handler) HandleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	proposal, err := h.registry.Proposal(id)
	if err != nil {
		h.writeRejection(w, "get_proposal", err)
		return
	}

	h.writeJSON(w, http.StatusOK, proposalToResponse(proposal))
}

// HandleApprove records an approval on a pending proposal.
//
// URL format: POST /api/governance/proposals/{proposal_id}/approve
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req CallerRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}

	caller, err := interfaces.NewAddressFromHex(req.Caller)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid caller address: %v", err), http.StatusBadRequest)
		return
	}

	proposal, events, err := h.registry.Approve(caller, id)
	if err != nil {
		h.writeRejection(w, "approve", err)
		return
	}

	h.appendEvents(events)
	h.writeJSON(w, http.StatusOK, proposalToResponse(proposal))
}

// HandleExecute executes a proposal that has reached the approval threshold.
//
// URL format: POST /api/governance/proposals/{proposal_id}/execute
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req CallerRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}

	caller, err := interfaces.NewAddressFromHex(req.Caller)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid caller address: %v", err), http.StatusBadRequest)
		return
	}

	proposal, events, err := h.registry.Execute(caller, id)
	if err != nil {
		h.writeRejection(w, "execute", err)
		return
	}

	h.appendEvents(events)
	metrics.GovernanceExecutions.Inc()

	h.log.Info("Issuer update executed",
		slog.Uint64("proposal_id", proposal.ID),
		slog.String("action", proposal.Action.String()))

	h.writeJSON(w, http.StatusOK, proposalToResponse(proposal))
}

// HandleSetThreshold updates the approval threshold for proposal execution.
//
// URL format: PUT /api/governance/threshold
func (h *Handler) HandleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req ThresholdRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}

	caller, err := interfaces.NewAddressFromHex(req.Caller)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid caller address: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.registry.SetApprovalThreshold(caller, req.Threshold); err != nil {
		h.writeRejection(w, "set_threshold", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]uint64{"threshold": req.Threshold})
}

// HandleEvents replays the audit log.
//
// URL format: GET /api/events?after=<sequence>
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid after parameter: %v", err), http.StatusBadRequest)
			return
		}
		after = parsed
	}

	if h.events == nil {
		h.writeJSON(w, http.StatusOK, map[string][]eventlog.Record{"events": {}})
		return
	}

	records, err := h.events.Replay(after)
	if err != nil {
		h.log.Error("Failed to replay event log", "err", err)
		http.Error(w, "failed to replay event log", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []eventlog.Record{}
	}

	h.writeJSON(w, http.StatusOK, map[string][]eventlog.Record{"events": records})
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest)
		return err
	}

	return nil
}

// appendEvents records emitted events in the audit log. Log append failures
// don't fail the transaction: state has already changed, losing the audit
// trail entry is logged and surfaced through metrics instead.
func (h *Handler) appendEvents(events []interfaces.Event) {
	if h.events == nil || len(events) == 0 {
		return
	}
	if err := h.events.Append(events...); err != nil {
		h.log.Error("Failed to append events to audit log", "err", err)
	}
}

// writeRejection maps a typed registry rejection onto an HTTP status code:
// authorization failures are 403, state conflicts 409, validation failures
// 400 (with missing records as 404) and signature failures 401.
func (h *Handler) writeRejection(w http.ResponseWriter, operation string, err error) {
	status := http.StatusInternalServerError
	category := "internal"

	switch {
	case errors.Is(err, interfaces.ErrCertificateNotFound), errors.Is(err, interfaces.ErrProposalNotFound):
		status = http.StatusNotFound
		category = "validation"
	case errors.Is(err, interfaces.ErrAuthorization):
		status = http.StatusForbidden
		category = "authorization"
	case errors.Is(err, interfaces.ErrStateConflict):
		status = http.StatusConflict
		category = "state_conflict"
	case errors.Is(err, interfaces.ErrValidation):
		status = http.StatusBadRequest
		category = "validation"
	case errors.Is(err, interfaces.ErrSignature):
		status = http.StatusUnauthorized
		category = "signature"
	}

	metrics.RequestsRejected.WithLabelValues(category).Inc()

	h.log.Debug("Request rejected",
		slog.String("operation", operation),
		slog.String("category", category),
		"err", err)

	h.writeJSON(w, status, map[string]string{"error": err.Error(), "category": category})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (r IssueRequest) toTransaction() (interfaces.IssueRequest, error) {
	var req interfaces.IssueRequest

	id, err := interfaces.NewCertificateIDFromHex(r.CertificateID)
	if err != nil {
		return req, fmt.Errorf("invalid certificate ID: %w", err)
	}

	docHash, err := interfaces.NewDocHashFromHex(r.DocHash)
	if err != nil {
		return req, fmt.Errorf("invalid document hash: %w", err)
	}

	salt, err := interfaces.NewSaltFromHex(r.Salt)
	if err != nil {
		return req, fmt.Errorf("invalid salt: %w", err)
	}

	issuer, err := interfaces.NewAddressFromHex(r.Issuer)
	if err != nil {
		return req, fmt.Errorf("invalid issuer address: %w", err)
	}

	signature, err := decodeHex(r.Signature)
	if err != nil {
		return req, fmt.Errorf("invalid signature encoding: %w", err)
	}

	return interfaces.IssueRequest{
		CertificateID:   id,
		DocHash:         docHash,
		StorageURI:      r.StorageURI,
		Issuer:          issuer,
		IssuedAt:        r.IssuedAt,
		Salt:            salt,
		IssuerSignature: signature,
	}, nil
}

func certificateToResponse(cert interfaces.Certificate) CertificateResponse {
	return CertificateResponse{
		CertificateID:   cert.ID.String(),
		DocHash:         cert.DocHash.String(),
		StorageURI:      cert.StorageURI,
		Issuer:          cert.Issuer.String(),
		IssuedAt:        cert.IssuedAt,
		Salt:            cert.Salt.String(),
		Status:          cert.Status.String(),
		IssuerSignature: hex.EncodeToString(cert.IssuerSignature),
		RevokeReason:    cert.RevokeReason,
		RevokedAt:       cert.RevokedAt,
		RevokeSignature: hex.EncodeToString(cert.RevokeSignature),
	}
}

func proposalToResponse(proposal interfaces.IssuerProposal) ProposalResponse {
	resp := ProposalResponse{
		ID:        proposal.ID,
		Action:    proposal.Action.String(),
		NewIssuer: proposal.NewIssuer.String(),
		Approvals: proposal.Approvals,
		Executed:  proposal.Executed,
		CreatedAt: proposal.CreatedAt,
	}
	if proposal.Action == interfaces.ActionRotate {
		resp.Issuer = proposal.Issuer.String()
	}
	return resp
}

func parseProposalID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "proposal_id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid proposal ID: %w", err)
	}
	return id, nil
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
