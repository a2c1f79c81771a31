// Package keyescrow protects the symmetric keys that encrypt archived
// diploma documents. A key is split into shares with Shamir's Secret
// Sharing and distributed to registry custodians; a threshold of shares is
// required to reconstruct it. The reconstructed key lives only in memory,
// so a registry restart always begins locked.
package keyescrow

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/vault/shamir"

	"github.com/attestia/diploma-registry-backend/cryptoutils"
	"github.com/attestia/diploma-registry-backend/interfaces"
)

// Escrow holds an archival document key behind a threshold of custodian
// shares. Shares are authenticated by secp256k1 signatures from registered
// custodian addresses, the same identity scheme the registry uses for
// issuers.
type Escrow struct {
	mu         sync.RWMutex
	key        []byte
	unlocked   bool
	threshold  int
	shares     map[int][]byte
	custodians map[interfaces.Address]struct{}
}

// Split splits a document key into one share per custodian, requiring
// threshold shares to reconstruct. The caller is responsible for
// distributing the shares and erasing the original key. The returned
// escrow starts unlocked since the key was just provided.
func Split(key []byte, custodians []interfaces.Address, threshold int) (*Escrow, [][]byte, error) {
	if len(key) < 32 {
		return nil, nil, fmt.Errorf("%w: document key must be at least 32 bytes", interfaces.ErrValidation)
	}
	if threshold < 2 {
		return nil, nil, fmt.Errorf("%w: escrow threshold must be at least 2", interfaces.ErrInvalidThreshold)
	}
	if len(custodians) < threshold {
		return nil, nil, fmt.Errorf("%w: need at least %d custodians", interfaces.ErrInvalidThreshold, threshold)
	}

	shares, err := shamir.Split(key, len(custodians), threshold)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split document key: %w", err)
	}

	e := newEscrow(custodians, threshold)
	e.key = key
	e.unlocked = true
	return e, shares, nil
}

// NewRecovery creates a locked escrow awaiting custodian shares. Used on
// registry startup, before any archived document can be decrypted.
func NewRecovery(custodians []interfaces.Address, threshold int) (*Escrow, error) {
	if threshold < 2 {
		return nil, fmt.Errorf("%w: escrow threshold must be at least 2", interfaces.ErrInvalidThreshold)
	}
	if len(custodians) < threshold {
		return nil, fmt.Errorf("%w: need at least %d custodians", interfaces.ErrInvalidThreshold, threshold)
	}
	return newEscrow(custodians, threshold), nil
}

func newEscrow(custodians []interfaces.Address, threshold int) *Escrow {
	e := &Escrow{
		threshold:  threshold,
		shares:     make(map[int][]byte),
		custodians: make(map[interfaces.Address]struct{}, len(custodians)),
	}
	for _, c := range custodians {
		e.custodians[c] = struct{}{}
	}
	return e
}

// SubmitShare accepts a custodian's share. The signature must cover
// ShareDigest(index, share) and recover to a registered custodian address.
// Once threshold shares are collected the key is reconstructed, the escrow
// unlocks, and the individual shares are wiped from memory.
func (e *Escrow) SubmitShare(index int, share, signature []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.unlocked {
		return fmt.Errorf("%w: escrow is already unlocked", interfaces.ErrStateConflict)
	}

	signer, err := cryptoutils.RecoverSigner(ShareDigest(index, share), signature)
	if err != nil {
		return err
	}
	if _, ok := e.custodians[signer]; !ok {
		return fmt.Errorf("%w: %s is not an escrow custodian", interfaces.ErrAuthorization, signer)
	}

	e.shares[index] = share
	return e.tryReconstruct()
}

func (e *Escrow) tryReconstruct() error {
	if len(e.shares) < e.threshold {
		return nil
	}

	shares := make([][]byte, 0, len(e.shares))
	for _, share := range e.shares {
		shares = append(shares, share)
	}

	key, err := shamir.Combine(shares)
	if err != nil {
		return fmt.Errorf("failed to reconstruct document key: %w", err)
	}

	e.key = key
	e.unlocked = true

	for i := range e.shares {
		wipeBytes(e.shares[i])
	}
	e.shares = make(map[int][]byte)

	return nil
}

// Unlocked reports whether enough valid shares have been submitted.
func (e *Escrow) Unlocked() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.unlocked
}

// Key returns the reconstructed document key. Fails while locked.
func (e *Escrow) Key() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.unlocked {
		return nil, fmt.Errorf("%w: escrow is locked, more shares required", interfaces.ErrStateConflict)
	}
	return e.key, nil
}

// ShareDigest computes the digest a custodian signs over a share. The
// index is bound into the digest so a share cannot be replayed at a
// different position.
func ShareDigest(index int, share []byte) [32]byte {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(index))
	return crypto.Keccak256Hash([]byte("DiplomaRegistryKeyShare"), idx[:], share)
}

// SignShare signs a share for submission with a custodian's private key.
func SignShare(index int, share []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	return cryptoutils.Sign(ShareDigest(index, share), key)
}

func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
