// Package clients provides HTTP clients for the diploma registry API,
// including helpers that build and sign transactions locally so issuer keys
// never leave the caller.
package clients

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/attestia/diploma-registry-backend/cryptoutils"
	"github.com/attestia/diploma-registry-backend/httpserver"
	"github.com/attestia/diploma-registry-backend/interfaces"
)

// RegistryClient talks to the registry HTTP API.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRegistryClient creates a client for the registry API at baseURL
// (e.g. "http://localhost:8080"). An optional timeout overrides the
// 30 second default.
func NewRegistryClient(baseURL string, timeout ...time.Duration) *RegistryClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &RegistryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// BuildSignedIssueRequest derives the certificate ID and signs the issuance
// digest with the issuer key, returning a request body ready to submit.
func BuildSignedIssueRequest(domain cryptoutils.SigningDomain, key *ecdsa.PrivateKey, docHash interfaces.DocHash, salt interfaces.Salt, issuedAt uint64, storageURI string) (httpserver.IssueRequest, error) {
	issuer := cryptoutils.SignerAddress(key)

	id, err := cryptoutils.DeriveCertificateID(docHash, salt, issuer, domain.ChainID, issuedAt)
	if err != nil {
		return httpserver.IssueRequest{}, fmt.Errorf("failed to derive certificate ID: %w", err)
	}

	digest, err := cryptoutils.IssuanceDigest(domain, docHash, salt, issuer, issuedAt, storageURI)
	if err != nil {
		return httpserver.IssueRequest{}, fmt.Errorf("failed to compute issuance digest: %w", err)
	}

	signature, err := cryptoutils.Sign(digest, key)
	if err != nil {
		return httpserver.IssueRequest{}, fmt.Errorf("failed to sign issuance digest: %w", err)
	}

	return httpserver.IssueRequest{
		CertificateID: id.String(),
		DocHash:       docHash.String(),
		Salt:          salt.String(),
		Issuer:        issuer.String(),
		IssuedAt:      issuedAt,
		StorageURI:    storageURI,
		Signature:     fmt.Sprintf("%x", signature),
	}, nil
}

// BuildSignedRevokeRequest signs the revocation digest with the issuer key.
func BuildSignedRevokeRequest(domain cryptoutils.SigningDomain, key *ecdsa.PrivateKey, certificateID interfaces.CertificateID, reason string) (httpserver.RevokeRequest, error) {
	issuer := cryptoutils.SignerAddress(key)

	digest, err := cryptoutils.RevocationDigest(domain, certificateID, reason, issuer)
	if err != nil {
		return httpserver.RevokeRequest{}, fmt.Errorf("failed to compute revocation digest: %w", err)
	}

	signature, err := cryptoutils.Sign(digest, key)
	if err != nil {
		return httpserver.RevokeRequest{}, fmt.Errorf("failed to sign revocation digest: %w", err)
	}

	return httpserver.RevokeRequest{
		Reason:    reason,
		Caller:    issuer.String(),
		Signature: fmt.Sprintf("%x", signature),
	}, nil
}

// Issue submits a signed issuance transaction.
func (c *RegistryClient) Issue(req httpserver.IssueRequest) (*httpserver.CertificateResponse, error) {
	var resp httpserver.CertificateResponse
	err := c.post(fmt.Sprintf("%s/api/certificates", c.baseURL), req, &resp, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Revoke submits a revocation for the given certificate.
func (c *RegistryClient) Revoke(certificateID string, req httpserver.RevokeRequest) (*httpserver.CertificateResponse, error) {
	var resp httpserver.CertificateResponse
	err := c.post(fmt.Sprintf("%s/api/certificates/%s/revoke", c.baseURL, certificateID), req, &resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Certificate fetches the full certificate record.
func (c *RegistryClient) Certificate(certificateID string) (*httpserver.CertificateResponse, error) {
	var resp httpserver.CertificateResponse
	err := c.get(fmt.Sprintf("%s/api/certificates/%s", c.baseURL, certificateID), &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the lifecycle status of a certificate. Unknown certificates
// report "none".
func (c *RegistryClient) Status(certificateID string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	err := c.get(fmt.Sprintf("%s/api/certificates/%s/status", c.baseURL, certificateID), &resp)
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Issuers fetches the current issuer allow-list.
func (c *RegistryClient) Issuers() ([]string, error) {
	var resp struct {
		Issuers []string `json:"issuers"`
	}
	err := c.get(fmt.Sprintf("%s/api/issuers", c.baseURL), &resp)
	if err != nil {
		return nil, err
	}
	return resp.Issuers, nil
}

// Propose submits an issuer governance proposal.
func (c *RegistryClient) Propose(req httpserver.ProposalRequest) (*httpserver.ProposalResponse, error) {
	var resp httpserver.ProposalResponse
	err := c.post(fmt.Sprintf("%s/api/governance/proposals", c.baseURL), req, &resp, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Proposal fetches a governance proposal.
func (c *RegistryClient) Proposal(id uint64) (*httpserver.ProposalResponse, error) {
	var resp httpserver.ProposalResponse
	err := c.get(fmt.Sprintf("%s/api/governance/proposals/%d", c.baseURL, id), &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ApproveProposal records an approval on a pending proposal.
func (c *RegistryClient) ApproveProposal(id uint64, caller string) (*httpserver.ProposalResponse, error) {
	var resp httpserver.ProposalResponse
	req := httpserver.CallerRequest{Caller: caller}
	err := c.post(fmt.Sprintf("%s/api/governance/proposals/%d/approve", c.baseURL, id), req, &resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecuteProposal executes a proposal that reached the approval threshold.
func (c *RegistryClient) ExecuteProposal(id uint64, caller string) (*httpserver.ProposalResponse, error) {
	var resp httpserver.ProposalResponse
	req := httpserver.CallerRequest{Caller: caller}
	err := c.post(fmt.Sprintf("%s/api/governance/proposals/%d/execute", c.baseURL, id), req, &resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetThreshold updates the approval threshold (admin only).
func (c *RegistryClient) SetThreshold(caller string, threshold uint64) error {
	req := httpserver.ThresholdRequest{Caller: caller, Threshold: threshold}

	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/governance/threshold", c.baseURL), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("threshold request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("threshold request failed with code %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Events replays the audit log after the given sequence number.
func (c *RegistryClient) Events(after uint64) ([]json.RawMessage, error) {
	var resp struct {
		Events []json.RawMessage `json:"events"`
	}
	err := c.get(fmt.Sprintf("%s/api/events?after=%d", c.baseURL, after), &resp)
	if err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *RegistryClient) get(url string, out any) error {
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with code %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

func (c *RegistryClient) post(url string, in, out any, expected int) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with code %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}
