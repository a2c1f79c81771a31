package keyescrow

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestia/diploma-registry-backend/cryptoutils"
	"github.com/attestia/diploma-registry-backend/interfaces"
)

func newCustodians(t *testing.T, n int) ([]*ecdsa.PrivateKey, []interfaces.Address) {
	t.Helper()
	keys := make([]*ecdsa.PrivateKey, n)
	addrs := make([]interfaces.Address, n)
	for i := range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = key
		addrs[i] = cryptoutils.SignerAddress(key)
	}
	return keys, addrs
}

func TestSplitAndRecover(t *testing.T) {
	keys, addrs := newCustodians(t, 3)

	documentKey := cryptoutils.DeriveDocumentKey([]byte("archive passphrase"), []byte("0123456789abcdef"))
	escrow, shares, err := Split(documentKey, addrs, 2)
	require.NoError(t, err)
	require.Len(t, shares, 3)
	assert.True(t, escrow.Unlocked())

	recovery, err := NewRecovery(addrs, 2)
	require.NoError(t, err)
	assert.False(t, recovery.Unlocked())

	_, err = recovery.Key()
	require.ErrorIs(t, err, interfaces.ErrStateConflict)

	// One share is not enough.
	sig, err := SignShare(0, shares[0], keys[0])
	require.NoError(t, err)
	require.NoError(t, recovery.SubmitShare(0, shares[0], sig))
	assert.False(t, recovery.Unlocked())

	sig, err = SignShare(2, shares[2], keys[2])
	require.NoError(t, err)
	require.NoError(t, recovery.SubmitShare(2, shares[2], sig))
	assert.True(t, recovery.Unlocked())

	recovered, err := recovery.Key()
	require.NoError(t, err)
	assert.Equal(t, documentKey, recovered)
}

func TestRecoveredKeyDecryptsDocuments(t *testing.T) {
	keys, addrs := newCustodians(t, 3)

	documentKey := cryptoutils.DeriveDocumentKey([]byte("archive passphrase"), []byte("0123456789abcdef"))
	document := []byte("diploma scan, 2024 cohort")
	payload, err := cryptoutils.EncryptDocument(documentKey, document)
	require.NoError(t, err)

	_, shares, err := Split(documentKey, addrs, 2)
	require.NoError(t, err)

	recovery, err := NewRecovery(addrs, 2)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		sig, err := SignShare(i, shares[i], keys[i])
		require.NoError(t, err)
		require.NoError(t, recovery.SubmitShare(i, shares[i], sig))
	}

	recovered, err := recovery.Key()
	require.NoError(t, err)
	plaintext, err := cryptoutils.DecryptDocument(recovered, payload)
	require.NoError(t, err)
	assert.Equal(t, document, plaintext)
}

func TestSubmitShareRejectsUnknownCustodian(t *testing.T) {
	keys, addrs := newCustodians(t, 3)

	documentKey := cryptoutils.DeriveDocumentKey([]byte("pass"), []byte("0123456789abcdef"))
	_, shares, err := Split(documentKey, addrs, 2)
	require.NoError(t, err)

	recovery, err := NewRecovery(addrs, 2)
	require.NoError(t, err)

	outsider, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := SignShare(0, shares[0], outsider)
	require.NoError(t, err)
	err = recovery.SubmitShare(0, shares[0], sig)
	require.ErrorIs(t, err, interfaces.ErrAuthorization)
	assert.False(t, recovery.Unlocked())

	// A valid custodian signature over a different index does not verify.
	sig, err = SignShare(1, shares[0], keys[0])
	require.NoError(t, err)
	err = recovery.SubmitShare(0, shares[0], sig)
	require.ErrorIs(t, err, interfaces.ErrAuthorization)
}

func TestSubmitShareAfterUnlock(t *testing.T) {
	keys, addrs := newCustodians(t, 3)

	documentKey := cryptoutils.DeriveDocumentKey([]byte("pass"), []byte("0123456789abcdef"))
	_, shares, err := Split(documentKey, addrs, 2)
	require.NoError(t, err)

	recovery, err := NewRecovery(addrs, 2)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		sig, err := SignShare(i, shares[i], keys[i])
		require.NoError(t, err)
		require.NoError(t, recovery.SubmitShare(i, shares[i], sig))
	}

	sig, err := SignShare(2, shares[2], keys[2])
	require.NoError(t, err)
	err = recovery.SubmitShare(2, shares[2], sig)
	require.ErrorIs(t, err, interfaces.ErrStateConflict)
}

func TestEscrowConfigValidation(t *testing.T) {
	_, addrs := newCustodians(t, 3)
	documentKey := cryptoutils.DeriveDocumentKey([]byte("pass"), []byte("0123456789abcdef"))

	_, _, err := Split([]byte("short"), addrs, 2)
	require.ErrorIs(t, err, interfaces.ErrValidation)

	_, _, err = Split(documentKey, addrs, 1)
	require.ErrorIs(t, err, interfaces.ErrInvalidThreshold)

	_, _, err = Split(documentKey, addrs[:1], 2)
	require.ErrorIs(t, err, interfaces.ErrInvalidThreshold)

	_, err = NewRecovery(addrs[:1], 2)
	require.ErrorIs(t, err, interfaces.ErrInvalidThreshold)
}
