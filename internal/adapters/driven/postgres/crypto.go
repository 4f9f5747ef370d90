package postgres

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

	"golang.org/x/crypto/hkdf"
)

const (
	// secretVersion is the first byte of every sealed blob.
	secretVersion = 0x01

	nonceSize = 12
	keySize   = 32

	// sealedPrefix marks an encrypted token inside the JSON document.
	sealedPrefix = "enc:v1:"

	hkdfInfo = "connect-core token encryption"
)

var (
	// ErrInvalidKeySize is returned when the encryption key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")

	// ErrInvalidBlobSize is returned when the encrypted blob is too small.
	ErrInvalidBlobSize = errors.New("encrypted blob is too small")

	// ErrUnsupportedVersion is returned when the blob version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported secret blob version")

	// ErrDecryptionFailed is returned on a wrong key, corrupted data or a
	// blob sealed for another record.
	ErrDecryptionFailed = errors.New("failed to decrypt secret blob")
)

// SecretEncryptor seals tokens with AES-256-GCM.
// Blob format: version(1) || nonce(12) || ciphertext(N), base64url encoded
// behind the "enc:v1:" prefix.
type SecretEncryptor struct {
	gcm cipher.AEAD
}

// NewSecretEncryptor creates an encryptor from a raw 32-byte key.
func NewSecretEncryptor(key []byte) (*SecretEncryptor, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &SecretEncryptor{gcm: gcm}, nil
}

// NewSecretEncryptorFromPassphrase derives the AES key from an arbitrary
// secret with HKDF-SHA256.
func NewSecretEncryptorFromPassphrase(passphrase string) (*SecretEncryptor, error) {
	if passphrase == "" {
		return nil, errors.New("encryption passphrase is empty")
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	return NewSecretEncryptor(key)
}

// Seal encrypts plaintext. The associated data binds the blob to one record
// so a sealed token cannot be moved to another user or platform.
// Empty input stays empty.
func (e *SecretEncryptor) Seal(plaintext, associated string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := e.gcm.Seal(nil, nonce, []byte(plaintext), []byte(associated))

	blob := make([]byte, 0, 1+nonceSize+len(ciphertext))
	blob = append(blob, secretVersion)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(blob), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix
// are returned unchanged so rows written before encryption was enabled
// stay readable.
func (e *SecretEncryptor) Open(value, associated string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	blob, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(blob) < 1+nonceSize+e.gcm.Overhead() {
		return "", ErrInvalidBlobSize
	}
	if blob[0] != secretVersion {
		return "", fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, blob[0])
	}
	plaintext, err := e.gcm.Open(nil, blob[1:1+nonceSize], blob[1+nonceSize:], []byte(associated))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
