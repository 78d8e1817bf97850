package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// SecretBox encrypts small secrets (TOTP seeds, provider tokens) at rest
// with AES-256-GCM.
type SecretBox struct {
	key []byte
}

// NewSecretBox requires a 32-byte key for AES-256.
func NewSecretBox(key []byte) (*SecretBox, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(key))
	}
	return &SecretBox{key: key}, nil
}

// Seal encrypts plaintext and returns (ciphertext, nonce).
func (sb *SecretBox) Seal(plaintext []byte) ([]byte, []byte, error) {
	gcm, err := sb.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open decrypts a previously sealed secret.
func (sb *SecretBox) Open(ciphertext, nonce []byte) ([]byte, error) {
	gcm, err := sb.gcm()
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return plaintext, nil
}

func (sb *SecretBox) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(sb.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
