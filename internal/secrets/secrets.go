// Package secrets encrypts credential material at rest. Every secret
// is sealed under a key derived from a master key and the asset ID it
// belongs to, so state files for different assets cannot decrypt each
// other's contents.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/hkdf"
)

const (
	ServiceName = "sf-connector"

	masterKeyEntry = "master-key"
	masterKeyEnv   = "SF_CONNECTOR_MASTER_KEY"
	masterKeySize  = 32
)

// Codec encrypts and decrypts byte strings under a caller-supplied key
// identifier. Ciphertexts are opaque printable strings suitable for a
// JSON state file.
type Codec interface {
	Encrypt(plaintext, keyID string) (string, error)
	Decrypt(ciphertext, keyID string) (string, error)
}

// AESCodec is the production Codec: AES-256-GCM with per-keyID keys
// derived via HKDF-SHA256 from a master key.
type AESCodec struct {
	master []byte
}

// NewCodec loads the master key from the OS keyring, generating and
// storing one on first use. Headless hosts without a keyring service
// can supply the key hex-encoded in SF_CONNECTOR_MASTER_KEY instead.
func NewCodec() (*AESCodec, error) {
	if encoded := os.Getenv(masterKeyEnv); encoded != "" {
		master, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", masterKeyEnv, err)
		}
		return NewCodecWithKey(master)
	}

	encoded, err := keyring.Get(ServiceName, masterKeyEntry)
	if err == keyring.ErrNotFound {
		master := make([]byte, masterKeySize)
		if _, err := io.ReadFull(rand.Reader, master); err != nil {
			return nil, fmt.Errorf("failed to generate master key: %w", err)
		}
		if err := keyring.Set(ServiceName, masterKeyEntry, hex.EncodeToString(master)); err != nil {
			return nil, fmt.Errorf("failed to store master key in keychain: %w", err)
		}
		return NewCodecWithKey(master)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve master key: %w", err)
	}

	master, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored master key: %w", err)
	}
	return NewCodecWithKey(master)
}

// NewCodecWithKey builds a codec over an explicit master key. Used by
// tests and by deployments that manage the key themselves.
func NewCodecWithKey(master []byte) (*AESCodec, error) {
	if len(master) != masterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeySize, len(master))
	}
	return &AESCodec{master: master}, nil
}

func (c *AESCodec) deriveKey(keyID string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, c.master, nil, []byte(ServiceName+":"+keyID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

func (c *AESCodec) aead(keyID string) (cipher.AEAD, error) {
	key, err := c.deriveKey(keyID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (c *AESCodec) Encrypt(plaintext, keyID string) (string, error) {
	aead, err := c.aead(keyID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *AESCodec) Decrypt(ciphertext, keyID string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("malformed ciphertext: %w", err)
	}

	aead, err := c.aead(keyID)
	if err != nil {
		return "", err
	}

	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("malformed ciphertext: too short")
	}

	plaintext, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
