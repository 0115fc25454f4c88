// Package vault encrypts secrets stored in the settings tables with
// AES-256-GCM.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks an encrypted value so plaintext written before a key
// was configured still reads back.
const sealedPrefix = "enc:v1:"

// ErrDecrypt is returned for a wrong key or tampered ciphertext.
var ErrDecrypt = errors.New("vault: decryption failed (wrong key or tampered data)")

// Sealer encrypts and decrypts values with one key. A nil *Sealer passes
// values through unchanged.
type Sealer struct {
	gcm cipher.AEAD
}

// ParseKey decodes a hex-encoded 32-byte key. An empty string yields a
// nil Sealer.
func ParseKey(hexKey string) (*Sealer, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("vault: key is not hex: %w", err)
	}
	return New(key)
}

// New builds a Sealer from a raw 32-byte key.
func New(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext. Empty input stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: generating nonce: %w", err)
	}

	// nonce is prepended so Open can recover it.
	ciphertext := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + hex.EncodeToString(ciphertext), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if s == nil {
		return "", errors.New("vault: value is encrypted but no key is configured")
	}

	ciphertext, err := hex.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", ErrDecrypt
	}

	nonceSize := s.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrDecrypt
	}

	plaintext, err := s.gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
