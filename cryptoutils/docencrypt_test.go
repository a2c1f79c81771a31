package cryptoutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentEncryption_RoundTrip(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	key := DeriveDocumentKey([]byte("correct horse battery staple"), salt[:])
	require.Len(t, key, 32)

	document := []byte("%PDF-1.7 rendered diploma bytes")

	encrypted, err := EncryptDocument(key, document)
	require.NoError(t, err)
	assert.NotEqual(t, document, encrypted)

	decrypted, err := DecryptDocument(key, encrypted)
	require.NoError(t, err)
	assert.Equal(t, document, decrypted)
}

func TestDocumentEncryption_WrongKey(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	key := DeriveDocumentKey([]byte("passphrase"), salt[:])
	encrypted, err := EncryptDocument(key, []byte("document"))
	require.NoError(t, err)

	otherKey := DeriveDocumentKey([]byte("other passphrase"), salt[:])
	_, err = DecryptDocument(otherKey, encrypted)
	assert.Error(t, err)
}

func TestDecryptDocument_ShortPayload(t *testing.T) {
	key := DeriveDocumentKey([]byte("p"), []byte("salt"))
	_, err := DecryptDocument(key, []byte{0x01})
	assert.Error(t, err)
}
