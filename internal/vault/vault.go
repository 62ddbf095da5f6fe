// Package vault seals and opens credential material at rest.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// envelopePrefix versions the wire format so corrupted or foreign values
// are rejected before any decryption attempt.
const envelopePrefix = "mailsync.enc.v1:"

// ErrDecryptionFailed reports ciphertext that could not be authenticated:
// tampered, truncated, or sealed under a different key. Callers must treat
// the credential as compromised, never as absent.
var ErrDecryptionFailed = errors.New("vault: decryption failed")

// Vault performs authenticated symmetric encryption with a single
// process-lifetime key.
type Vault struct {
	key []byte
}

// New derives a 256-bit key from the configured key string.
func New(keyMaterial string) (*Vault, error) {
	trimmed := strings.TrimSpace(keyMaterial)
	if trimmed == "" {
		return nil, fmt.Errorf("vault: key material is required")
	}
	sum := sha256.Sum256([]byte(trimmed))
	return &Vault{key: sum[:]}, nil
}

// Seal encrypts plaintext with AES-256-GCM. The empty string is a valid
// "no value" sentinel and passes through unencrypted.
func (v *Vault) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	gcm, err := v.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return envelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. The empty sentinel opens to the
// empty string; anything else that fails to authenticate returns
// ErrDecryptionFailed.
func (v *Vault) Open(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	if !strings.HasPrefix(ciphertext, envelopePrefix) {
		return "", ErrDecryptionFailed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, envelopePrefix))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	gcm, err := v.aead()
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrDecryptionFailed
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

func (v *Vault) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create gcm: %w", err)
	}
	return gcm, nil
}
