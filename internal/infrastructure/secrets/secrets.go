package secrets

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/firdasafridi/gocrypt"
)

var (
	// ErrInvalidKey is returned when the credentials key is not 64 hex characters.
	ErrInvalidKey = errors.New("secrets: key must be 64 hex characters (32 bytes)")

	// ErrDecrypt is returned when a value cannot be decrypted with the key.
	ErrDecrypt = errors.New("secrets: decryption failed")
)

// credential carries a single value through gocrypt's tag-driven codec.
type credential struct {
	Value string `gocrypt:"aes"`
}

// Cipher encrypts and decrypts credential strings with a fixed AES key.
type Cipher struct {
	gc *gocrypt.Option
}

// KeyLength is the length of a hex-encoded AES-256 key.
const KeyLength = 64

// NewCipher creates a Cipher for a hex-encoded 32-byte key.
func NewCipher(key string) (*Cipher, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKey
	}
	if _, err := hex.DecodeString(key); err != nil {
		return nil, ErrInvalidKey
	}

	aesOpt, err := gocrypt.NewAESOpt(key)
	if err != nil {
		return nil, fmt.Errorf("creating aes option: %w", err)
	}

	return &Cipher{gc: gocrypt.New(&gocrypt.Option{AESOpt: aesOpt})}, nil
}

// Encrypt returns the ciphertext for plaintext. An empty value stays empty.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	cred := credential{Value: plaintext}
	if err := c.gc.Encrypt(&cred); err != nil {
		return "", fmt.Errorf("encrypting value: %w", err)
	}
	return cred.Value, nil
}

// Decrypt returns the plaintext for ciphertext. An empty value stays empty.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	cred := credential{Value: ciphertext}
	if err := c.gc.Decrypt(&cred); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return cred.Value, nil
}
