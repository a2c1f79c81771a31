package httpserver

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/attestia/diploma-registry-backend/cryptoutils"
	"github.com/attestia/diploma-registry-backend/eventlog"
	"github.com/attestia/diploma-registry-backend/interfaces"
	"github.com/attestia/diploma-registry-backend/registry"
)

var testAdmin = mustAddress("0x00000000000000000000000000000000000000ad")

func mustAddress(hex string) interfaces.Address {
	addr, err := interfaces.NewAddressFromHex(hex)
	if err != nil {
		panic(err)
	}
	return addr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type apiFixture struct {
	router http.Handler
	domain cryptoutils.SigningDomain
	issuer *ecdsa.PrivateKey
	events *eventlog.SqliteLog
}

// newAPIFixture wires a real processor, store and SQLite event log behind the
// HTTP router, with one allow-listed issuer key.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	store := registry.NewStore()
	require.NoError(t, store.AddIssuer(cryptoutils.SignerAddress(key)))

	domain := cryptoutils.DefaultDomain(1337, mustAddress("0x00112233445566778899aabbccddeeff00112233"))
	proc, err := registry.NewProcessor(store, registry.Config{
		Domain:            domain,
		Admin:             testAdmin,
		ApprovalThreshold: 1,
	}, testLogger())
	require.NoError(t, err)

	events, err := eventlog.NewSqliteLog(filepath.Join(t.TempDir(), "events.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	srv, err := New(&HTTPServerConfig{
		ListenAddr:    "127.0.0.1:0",
		Log:           testLogger(),
		DrainDuration: time.Second,
	}, NewHandler(proc, events, testLogger()))
	require.NoError(t, err)

	return &apiFixture{
		router: srv.getRouter(),
		domain: domain,
		issuer: key,
		events: events,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// signedIssueBody builds the JSON payload for a valid issuance.
func (f *apiFixture) signedIssueBody(t *testing.T, docHash interfaces.DocHash, salt interfaces.Salt, issuedAt uint64, storageURI string) IssueRequest {
	t.Helper()

	issuer := cryptoutils.SignerAddress(f.issuer)
	id, err := cryptoutils.DeriveCertificateID(docHash, salt, issuer, f.domain.ChainID, issuedAt)
	require.NoError(t, err)

	digest, err := cryptoutils.IssuanceDigest(f.domain, docHash, salt, issuer, issuedAt, storageURI)
	require.NoError(t, err)
	sig, err := cryptoutils.Sign(digest, f.issuer)
	require.NoError(t, err)

	return IssueRequest{
		CertificateID: id.String(),
		DocHash:       docHash.String(),
		Salt:          salt.String(),
		Issuer:        issuer.String(),
		IssuedAt:      issuedAt,
		StorageURI:    storageURI,
		Signature:     fmt.Sprintf("%x", sig),
	}
}

func TestHandleIssue_And_Lifecycle(t *testing.T) {
	f := newAPIFixture(t)

	docHash := cryptoutils.DocumentHash([]byte("B.Sc. thesis document"))
	salt := interfaces.Salt{1, 2, 3}
	body := f.signedIssueBody(t, docHash, salt, 1700000000, "cas://sha256/0000000000000000000000000000000000000000000000000000000000000001")

	rec := f.do(t, http.MethodPost, "/api/certificates", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var cert CertificateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cert))
	assert.Equal(t, body.CertificateID, cert.CertificateID)
	assert.Equal(t, "active", cert.Status)

	// Record is fetchable.
	rec = f.do(t, http.MethodGet, "/api/certificates/"+cert.CertificateID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Status endpoint sees it active.
	rec = f.do(t, http.MethodGet, "/api/certificates/"+cert.CertificateID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"active"}`, rec.Body.String())

	// Re-submitting the same transaction conflicts.
	rec = f.do(t, http.MethodPost, "/api/certificates", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Revoke as the record issuer.
	rec = f.do(t, http.MethodPost, "/api/certificates/"+cert.CertificateID+"/revoke", RevokeRequest{
		Reason: "degree rescinded",
		Caller: cryptoutils.SignerAddress(f.issuer).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/certificates/"+cert.CertificateID+"/status", nil)
	assert.JSONEq(t, `{"status":"revoked"}`, rec.Body.String())

	// The audit log kept every transition.
	records, err := f.events.Replay(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "certificate_issued", records[0].Kind)
	assert.Equal(t, "certificate_revoked", records[1].Kind)
}

func TestHandleIssue_BadRequests(t *testing.T) {
	f := newAPIFixture(t)

	// Not JSON at all.
	req := httptest.NewRequest(http.MethodPost, "/api/certificates", bytes.NewReader([]byte("not-json")))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed hex fields.
	rec = f.do(t, http.MethodPost, "/api/certificates", IssueRequest{
		CertificateID: "zz",
		DocHash:       "zz",
		Salt:          "zz",
		Issuer:        "zz",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown certificate in path.
	rec = f.do(t, http.MethodGet, "/api/certificates/"+interfaces.CertificateID{0xff}.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown certificate status is "none", not an error.
	rec = f.do(t, http.MethodGet, "/api/certificates/"+interfaces.CertificateID{0xff}.String()+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"none"}`, rec.Body.String())
}

func TestGovernanceEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	issuerAddr := cryptoutils.SignerAddress(f.issuer)
	newIssuer := mustAddress("0xb000000000000000000000000000000000000001")

	// Only the admin can propose.
	rec := f.do(t, http.MethodPost, "/api/governance/proposals", ProposalRequest{
		Caller:    newIssuer.String(),
		Action:    "add",
		NewIssuer: newIssuer.String(),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/governance/proposals", ProposalRequest{
		Caller:    testAdmin.String(),
		Action:    "add",
		NewIssuer: newIssuer.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var proposal ProposalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proposal))
	assert.Equal(t, uint64(1), proposal.ID)
	assert.Equal(t, "add", proposal.Action)

	path := fmt.Sprintf("/api/governance/proposals/%d", proposal.ID)

	rec = f.do(t, http.MethodPost, path+"/approve", CallerRequest{Caller: issuerAddr.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Double approval conflicts.
	rec = f.do(t, http.MethodPost, path+"/approve", CallerRequest{Caller: issuerAddr.String()})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, path+"/execute", CallerRequest{Caller: testAdmin.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Allow-list now contains both issuers.
	rec = f.do(t, http.MethodGet, "/api/issuers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var issuers map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issuers))
	assert.ElementsMatch(t, []string{issuerAddr.String(), newIssuer.String()}, issuers["issuers"])

	// Executed proposal is visible and terminal.
	rec = f.do(t, http.MethodGet, path, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proposal))
	assert.True(t, proposal.Executed)

	rec = f.do(t, http.MethodPost, path+"/execute", CallerRequest{Caller: testAdmin.String()})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Threshold updates are admin-gated.
	rec = f.do(t, http.MethodPut, "/api/governance/threshold", ThresholdRequest{Caller: issuerAddr.String(), Threshold: 2})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/governance/threshold", ThresholdRequest{Caller: testAdmin.String(), Threshold: 2})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Missing proposal maps to 404.
	rec = f.do(t, http.MethodGet, "/api/governance/proposals/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleEvents_Replay(t *testing.T) {
	f := newAPIFixture(t)

	docHash := cryptoutils.DocumentHash([]byte("replayed diploma"))
	body := f.signedIssueBody(t, docHash, interfaces.Salt{9}, 1700000001, "cas://sha256/0000000000000000000000000000000000000000000000000000000000000002")
	rec := f.do(t, http.MethodPost, "/api/certificates", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]eventlog.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp["events"], 1)
	assert.Equal(t, "certificate_issued", resp["events"][0].Kind)

	// Replay after the last sequence is empty.
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/events?after=%d", resp["events"][0].Sequence), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp["events"])

	rec = f.do(t, http.MethodGet, "/api/events?after=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestRejectionStatusMapping drives the handler with a mocked registry to
// pin down the error category to HTTP status translation.
func TestRejectionStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"authorization", fmt.Errorf("%w: issuer not allowed", interfaces.ErrIssuerNotAllowed), http.StatusForbidden},
		{"state conflict", interfaces.ErrDuplicateIssuance, http.StatusConflict},
		{"validation", interfaces.ErrEmptyStorageURI, http.StatusBadRequest},
		{"signature", interfaces.ErrSignerMismatch, http.StatusUnauthorized},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRegistry := new(registry.MockCertificateRegistry)
			mockRegistry.On("Issue", mock.Anything).Return(interfaces.Certificate{}, []interfaces.Event(nil), tt.err)

			handler := NewHandler(mockRegistry, nil, testLogger())

			f := newAPIFixture(t)
			body := f.signedIssueBody(t, interfaces.DocHash{1}, interfaces.Salt{1}, 1, "cas://sha256/0000000000000000000000000000000000000000000000000000000000000003")
			raw, err := json.Marshal(body)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/api/certificates", bytes.NewReader(raw))
			rec := httptest.NewRecorder()
			handler.HandleIssue(rec, req)

			assert.Equal(t, tt.expected, rec.Code)
			mockRegistry.AssertExpectations(t)
		})
	}
}
