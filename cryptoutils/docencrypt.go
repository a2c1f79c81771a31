package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const gcmNonceSize = 12

// DeriveDocumentKey derives a 32-byte AES key from a passphrase and salt
// using Argon2id. The salt should be unique per document; reusing the
// certificate salt is acceptable since it is random per issuance.
func DeriveDocumentKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// EncryptDocument encrypts a rendered document with AES-GCM.
// Output format: [nonce (12 bytes)][ciphertext].
func EncryptDocument(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ciphertext...), nil
}

// DecryptDocument reverses EncryptDocument.
func DecryptDocument(key, payload []byte) ([]byte, error) {
	if len(payload) < gcmNonceSize {
		return nil, errors.New("encrypted payload too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := aesGCM.Open(nil, payload[:gcmNonceSize], payload[gcmNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt document: %w", err)
	}

	return plaintext, nil
}

// NewSalt generates a fresh random 16-byte salt for issuance.
func NewSalt() ([16]byte, error) {
	var salt [16]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return [16]byte{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
