// Package secrets encrypts API keys at rest. Keys are sealed with
// AES-256-GCM under a key derived from a user passphrase via
// PBKDF2-HMAC-SHA256, and stored as base64 fields in the config file.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultPassphraseEnv names the environment variable the passphrase is
// read from unless the user overrides it with --secret-env.
const DefaultPassphraseEnv = "POLYCHAT_PASSPHRASE"

const (
	pbkdf2Iterations = 150_000
	saltLen          = 16
	nonceLen         = 12
	keyLen           = 32
)

// Encrypted is a sealed secret as stored in the config file.
type Encrypted struct {
	Salt       string `yaml:"salt" json:"salt"`
	Nonce      string `yaml:"nonce" json:"nonce"`
	Ciphertext string `yaml:"ciphertext" json:"ciphertext"`
}

// PassphraseFromEnv reads the master passphrase from the named variable.
func PassphraseFromEnv(envName string) (string, error) {
	if envName == "" {
		envName = DefaultPassphraseEnv
	}
	value, ok := os.LookupEnv(envName)
	if !ok {
		return "", fmt.Errorf("environment variable %s must be set to use encrypted secrets", envName)
	}
	return value, nil
}

// Encrypt seals plaintext under the passphrase with a fresh salt and nonce.
func Encrypt(passphrase, plaintext string) (*Encrypted, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to read random salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to read random nonce: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return &Encrypted{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Decrypt opens a sealed secret. A wrong passphrase fails authentication.
func Decrypt(passphrase string, enc *Encrypted) (string, error) {
	salt, err := decodeField(enc.Salt, "salt")
	if err != nil {
		return "", err
	}
	nonce, err := decodeField(enc.Nonce, "nonce")
	if err != nil {
		return "", err
	}
	ciphertext, err := decodeField(enc.Ciphertext, "ciphertext")
	if err != nil {
		return "", err
	}
	if len(nonce) != nonceLen {
		return "", fmt.Errorf("invalid nonce length %d", len(nonce))
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret (wrong passphrase?)")
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AES-256-GCM: %w", err)
	}
	return cipher.NewGCM(block)
}

func decodeField(value, field string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 for %s: %w", field, err)
	}
	return data, nil
}
