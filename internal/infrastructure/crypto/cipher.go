// Package crypto seals gateway card tokens at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKey    = errors.New("encryption key must be 32 bytes (64 hex chars)")
	ErrInvalidSealed = errors.New("sealed value is malformed")
)

// Cipher seals a value bound to a context string. Opening with another
// context fails, so a token cannot be moved between rows unnoticed.
type Cipher interface {
	Seal(plaintext, context string) (sealed, nonce string, err error)
	Open(sealed, nonce, context string) (string, error)
}

// AESGCM implements Cipher with AES-256-GCM. Sealed values and nonces are
// base64 encoded.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM creates a cipher from a hex encoded 256-bit key.
func NewAESGCM(hexKey string) (*AESGCM, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCM{aead: aead}, nil
}

func (c *AESGCM) Seal(plaintext, context string) (string, string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("failed to read nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), []byte(context))

	return base64.StdEncoding.EncodeToString(sealed),
		base64.StdEncoding.EncodeToString(nonce),
		nil
}

func (c *AESGCM) Open(sealedB64, nonceB64, context string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil {
		return "", ErrInvalidSealed
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrInvalidSealed
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, []byte(context))
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}

	return string(plaintext), nil
}
