package registry

import (
	"github.com/stretchr/testify/mock"

	"github.com/attestia/diploma-registry-backend/interfaces"
)

// MockCertificateRegistry mocks the CertificateRegistry interface
type MockCertificateRegistry struct {
	mock.Mock
}

// Issue mocks the Issue method
func (m *MockCertificateRegistry) Issue(req interfaces.IssueRequest) (interfaces.Certificate, []interfaces.Event, error) {
	args := m.Called(req)
	return args.Get(0).(interfaces.Certificate), args.Get(1).([]interfaces.Event), args.Error(2)
}

// Revoke mocks the Revoke method
func (m *MockCertificateRegistry) Revoke(req interfaces.RevokeRequest) (interfaces.Certificate, []interfaces.Event, error) {
	args := m.Called(req)
	return args.Get(0).(interfaces.Certificate), args.Get(1).([]interfaces.Event), args.Error(2)
}

// ProposeAdd mocks the ProposeAdd method
func (m *MockCertificateRegistry) ProposeAdd(caller, newIssuer interfaces.Address) (interfaces.IssuerProposal, []interfaces.Event, error) {
	args := m.Called(caller, newIssuer)
	return args.Get(0).(interfaces.IssuerProposal), args.Get(1).([]interfaces.Event), args.Error(2)
}

// ProposeRotate mocks the ProposeRotate method
func (m *MockCertificateRegistry) ProposeRotate(caller, oldIssuer, newIssuer interfaces.Address) (interfaces.IssuerProposal, []interfaces.Event, error) {
	args := m.Called(caller, oldIssuer, newIssuer)
	return args.Get(0).(interfaces.IssuerProposal), args.Get(1).([]interfaces.Event), args.Error(2)
}

// Approve mocks the Approve method
func (m *MockCertificateRegistry) Approve(caller interfaces.Address, proposalID uint64) (interfaces.IssuerProposal, []interfaces.Event, error) {
	args := m.Called(caller, proposalID)
	return args.Get(0).(interfaces.IssuerProposal), args.Get(1).([]interfaces.Event), args.Error(2)
}

// Execute mocks the Execute method
func (m *MockCertificateRegistry) Execute(caller interfaces.Address, proposalID uint64) (interfaces.IssuerProposal, []interfaces.Event, error) {
	args := m.Called(caller, proposalID)
	return args.Get(0).(interfaces.IssuerProposal), args.Get(1).([]interfaces.Event), args.Error(2)
}

// SetApprovalThreshold mocks the SetApprovalThreshold method
func (m *MockCertificateRegistry) SetApprovalThreshold(caller interfaces.Address, threshold uint64) error {
	args := m.Called(caller, threshold)
	return args.Error(0)
}

// Certificate mocks the Certificate method
func (m *MockCertificateRegistry) Certificate(id interfaces.CertificateID) (interfaces.Certificate, error) {
	args := m.Called(id)
	return args.Get(0).(interfaces.Certificate), args.Error(1)
}

// StatusOf mocks the StatusOf method
func (m *MockCertificateRegistry) StatusOf(id interfaces.CertificateID) interfaces.CertificateStatus {
	args := m.Called(id)
	return args.Get(0).(interfaces.CertificateStatus)
}

// Issuers mocks the Issuers method
func (m *MockCertificateRegistry) Issuers() []interfaces.Address {
	args := m.Called()
	return args.Get(0).([]interfaces.Address)
}

// Proposal mocks the Proposal method
func (m *MockCertificateRegistry) Proposal(id uint64) (interfaces.IssuerProposal, error) {
	args := m.Called(id)
	return args.Get(0).(interfaces.IssuerProposal), args.Error(1)
}
