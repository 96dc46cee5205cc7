// Package crypto seals credentials before they hit the database. Stored
// access tokens are encrypted with AES-256-GCM; the key comes from the
// environment and never touches disk.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Sealer is authenticated encryption for small secrets. Implementations must
// detect tampering on open.
type Sealer interface {
	// Seal encrypts plaintext and returns nonce || ciphertext || tag.
	Seal(plaintext []byte) ([]byte, error)
	// Open verifies and decrypts data produced by Seal.
	Open(sealed []byte) ([]byte, error)
}

// AESSealer implements Sealer with AES-256-GCM.
type AESSealer struct {
	key []byte
}

// NewAESSealer builds a sealer from a base64-encoded 32-byte key, as
// produced by `openssl rand -base64 32`.
func NewAESSealer(base64Key string) (*AESSealer, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: need 32 bytes, got %d", len(key))
	}
	return &AESSealer{key: key}, nil
}

func (s *AESSealer) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext is empty")
	}
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *AESSealer) Open(sealed []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("sealed data too short: %d bytes", len(sealed))
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open failed: integrity check did not pass")
	}
	return plaintext, nil
}

func (s *AESSealer) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// SealString seals a string and base64-encodes the result for a text column.
// Empty input stays empty.
func SealString(s Sealer, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	sealed, err := s.Seal([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenString reverses SealString.
func OpenString(s Sealer, encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode sealed data: %w", err)
	}
	plaintext, err := s.Open(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
