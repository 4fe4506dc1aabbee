// Package secrets encrypts SMTP credentials at rest. The wire format is
// "salt:iv:tag:ciphertext", all hex-encoded: AES-256-GCM with a per-secret
// random salt fed through scrypt to derive the key. Values that do not match
// the 4-part format decrypt as plaintext; legacy rows predate encryption and
// have to keep working until they are rewritten.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
)

// Cipher encrypts and decrypts credential strings with a shared passphrase.
type Cipher struct {
	passphrase []byte
}

// NewCipher creates a cipher from the process encryption key.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption passphrase must not be empty")
	}

	return &Cipher{passphrase: []byte(passphrase)}, nil
}

// Encrypt seals a plaintext credential into the 4-part hex format.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)

	_, err := rand.Read(salt)
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)

	_, err = rand.Read(nonce)
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	// Seal appends the GCM tag to the ciphertext; the wire format keeps them
	// as separate fields.
	tagOffset := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagOffset], sealed[tagOffset:]

	return strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt opens a 4-part encrypted value. Anything else is returned verbatim
// as a legacy plaintext credential.
func (c *Cipher) Decrypt(value string) (string, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return value, nil
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return value, nil
	}

	nonce, err := hex.DecodeString(parts[1])
	if err != nil {
		return value, nil
	}

	tag, err := hex.DecodeString(parts[2])
	if err != nil {
		return value, nil
	}

	ciphertext, err := hex.DecodeString(parts[3])
	if err != nil {
		return value, nil
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	if len(nonce) != gcm.NonceSize() || len(tag) != gcm.Overhead() {
		return value, nil
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}

	return string(plaintext), nil
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(c.passphrase, salt, 32768, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}
