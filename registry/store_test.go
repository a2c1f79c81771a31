package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestia/diploma-registry-backend/interfaces"
)

func TestStore_PutCertificate(t *testing.T) {
	store := NewStore()
	cert := interfaces.Certificate{
		ID:      interfaces.CertificateID{0x01},
		DocHash: interfaces.DocHash{0x02},
		Issuer:  mustAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Status:  interfaces.StatusActive,
	}

	require.NoError(t, store.PutCertificate(cert))
	assert.Equal(t, interfaces.StatusActive, store.StatusOf(cert.ID))
	assert.True(t, store.IsDuplicate(cert.DocHash, cert.Issuer))

	// Same ID again.
	err := store.PutCertificate(cert)
	assert.ErrorIs(t, err, interfaces.ErrCertificateExists)

	// Different ID, same (docHash, issuer) pair.
	other := cert
	other.ID = interfaces.CertificateID{0x03}
	err = store.PutCertificate(other)
	assert.ErrorIs(t, err, interfaces.ErrDuplicateIssuance)

	// The failed insert must not have registered the new ID.
	assert.Equal(t, interfaces.StatusNone, store.StatusOf(other.ID))
}

func TestStore_CertificateReturnsCopy(t *testing.T) {
	store := NewStore()
	cert := interfaces.Certificate{
		ID:     interfaces.CertificateID{0x01},
		Issuer: mustAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Status: interfaces.StatusActive,
	}
	require.NoError(t, store.PutCertificate(cert))

	got, err := store.Certificate(cert.ID)
	require.NoError(t, err)
	got.Status = interfaces.StatusRevoked

	fresh, err := store.Certificate(cert.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusActive, fresh.Status, "mutating a returned record must not affect the store")
}

func TestStore_MarkRevoked(t *testing.T) {
	store := NewStore()
	cert := interfaces.Certificate{
		ID:     interfaces.CertificateID{0x01},
		Issuer: mustAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Status: interfaces.StatusActive,
	}
	require.NoError(t, store.PutCertificate(cert))

	err := store.MarkRevoked(interfaces.CertificateID{0x99}, "x", 1, nil)
	assert.ErrorIs(t, err, interfaces.ErrCertificateNotFound)

	require.NoError(t, store.MarkRevoked(cert.ID, "reason", 1700000000, []byte{0x01}))

	got, err := store.Certificate(cert.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusRevoked, got.Status)
	assert.Equal(t, "reason", got.RevokeReason)
	assert.Equal(t, uint64(1700000000), got.RevokedAt)

	err = store.MarkRevoked(cert.ID, "again", 1700000001, nil)
	assert.ErrorIs(t, err, interfaces.ErrCertificateRevoked)
}

func TestStore_IssuerListConsistency(t *testing.T) {
	store := NewStore()
	a := mustAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := mustAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	c := mustAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	for _, issuer := range []interfaces.Address{a, b, c} {
		require.NoError(t, store.AddIssuer(issuer))
	}
	assert.ErrorIs(t, store.AddIssuer(a), interfaces.ErrIssuerKnown)

	// Remove the middle entry through a rotation and verify set and list
	// agree afterwards.
	proposal, err := store.CreateProposal(interfaces.ActionRotate, b, mustAddress("0xdddddddddddddddddddddddddddddddddddddddd"), 1)
	require.NoError(t, err)
	_, err = store.Approve(proposal.ID, a)
	require.NoError(t, err)

	executed, err := store.ExecuteProposal(proposal.ID, 1)
	require.NoError(t, err)
	require.True(t, executed.Executed)

	list := store.Issuers()
	assert.Len(t, list, 3)
	assert.False(t, store.IsIssuerAllowed(b))
	for _, issuer := range list {
		assert.True(t, store.IsIssuerAllowed(issuer), "every listed issuer is in the set")
		assert.NotEqual(t, b, issuer)
	}
}

func TestStore_ProposalIDsMonotonic(t *testing.T) {
	store := NewStore()

	for i := 1; i <= 3; i++ {
		var candidate interfaces.Address
		candidate[19] = byte(i)
		proposal, err := store.CreateProposal(interfaces.ActionAdd, interfaces.Address{}, candidate, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), proposal.ID)
	}
}
