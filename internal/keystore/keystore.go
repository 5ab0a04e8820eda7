package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"crypto-wallet/internal/wallet"
)

// ErrNotFound is returned when no account blob exists for a user.
var ErrNotFound = errors.New("account not found")

// Store persists generated account key material, encrypted at rest. Key
// material never touches storage in plaintext.
type Store interface {
	Put(ctx context.Context, userID string, acct wallet.Account) error
	Get(ctx context.Context, userID string) (*wallet.Account, error)
}

// seal serializes the account to JSON and encrypts it with AES-256-GCM. The
// random 12 byte nonce is prepended to the ciphertext.
func seal(acct wallet.Account, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(acct)
	if err != nil {
		return nil, fmt.Errorf("marshal account: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open reverses seal.
func open(blob, key []byte) (*wallet.Account, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	if len(blob) < aesgcm.NonceSize() {
		return nil, errors.New("account blob too short")
	}
	nonce, ciphertext := blob[:aesgcm.NonceSize()], blob[aesgcm.NonceSize():]

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt account: %w", err)
	}

	var acct wallet.Account
	if err := json.Unmarshal(plaintext, &acct); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &acct, nil
}
