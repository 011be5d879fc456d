package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrInvalidKey = errors.New("encryption key must be 32 bytes (64 hex chars)")
	ErrCiphertext = errors.New("ciphertext is malformed or sealed with another key")
)

// Cipher seals short secrets with AES-256-GCM. The random nonce is stored in
// front of the ciphertext and the result is base64 encoded so it fits a text
// column.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(sealed) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", ErrCiphertext
	}

	nonce, body := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", ErrCiphertext
	}
	return string(plaintext), nil
}

// Encrypt is a one-shot Seal with a hex-encoded key.
func Encrypt(hexKey, plaintext string) (string, error) {
	c, err := NewCipher(hexKey)
	if err != nil {
		return "", err
	}
	return c.Seal(plaintext)
}

// Decrypt is a one-shot Open with a hex-encoded key.
func Decrypt(hexKey, encoded string) (string, error) {
	c, err := NewCipher(hexKey)
	if err != nil {
		return "", err
	}
	return c.Open(encoded)
}
