package spcline

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Snapshot encryption framing constants.
const (
	// encryptionMagic marks an encrypted snapshot payload.
	encryptionMagic = "SENC"
	// encryptionVersion is the framing version.
	encryptionVersion = byte(1)
	// encryptionSaltSize is the per-payload KDF salt length in bytes.
	encryptionSaltSize = 16
	// encryptionKeySize is the derived AES-256 key length in bytes.
	encryptionKeySize = 32
	// defaultKDFIterations is the PBKDF2 iteration count when unset.
	defaultKDFIterations = 100_000
)

// EncryptionConfig configures snapshot encryption at rest.
type EncryptionConfig struct {
	// Enabled turns encryption on.
	Enabled bool `yaml:"enabled"`

	// Password is the secret the key is derived from. Required when
	// Enabled is true.
	Password string `yaml:"password"`

	// KDFIterations is the PBKDF2 iteration count.
	// Default: 100000.
	KDFIterations int `yaml:"kdf_iterations"`
}

// Encryptor seals and opens snapshot payloads with AES-256-GCM. Each payload
// gets a fresh salt and nonce, both carried in the framing, so the same
// password can protect any number of snapshots.
type Encryptor struct {
	password   []byte
	iterations int
}

// NewEncryptor validates the configuration and returns an encryptor.
func NewEncryptor(config EncryptionConfig) (*Encryptor, error) {
	if config.Password == "" {
		return nil, newSnapshotError("encrypt", errors.New("encryption password is required"))
	}
	iterations := config.KDFIterations
	if iterations <= 0 {
		iterations = defaultKDFIterations
	}
	return &Encryptor{
		password:   []byte(config.Password),
		iterations: iterations,
	}, nil
}

// Encrypt seals the payload. Output layout: magic, version, salt, nonce,
// ciphertext.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, encryptionSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, newSnapshotError("encrypt", err)
	}
	gcm, err := e.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, newSnapshotError("encrypt", err)
	}

	out := make([]byte, 0, len(encryptionMagic)+1+len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, encryptionMagic...)
	out = append(out, encryptionVersion)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a sealed payload.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	header := len(encryptionMagic) + 1 + encryptionSaltSize
	if len(data) < header || string(data[:len(encryptionMagic)]) != encryptionMagic {
		return nil, newSnapshotError("decrypt", errors.New("not an encrypted payload"))
	}
	if version := data[len(encryptionMagic)]; version != encryptionVersion {
		return nil, newSnapshotError("decrypt", fmt.Errorf("unsupported framing version %d", version))
	}
	salt := data[len(encryptionMagic)+1 : header]
	gcm, err := e.aead(salt)
	if err != nil {
		return nil, err
	}
	if len(data) < header+gcm.NonceSize() {
		return nil, newSnapshotError("decrypt", errors.New("truncated payload"))
	}
	nonce := data[header : header+gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, data[header+gcm.NonceSize():], nil)
	if err != nil {
		return nil, newSnapshotError("decrypt", err)
	}
	return plaintext, nil
}

// IsEncrypted reports whether the payload carries the encryption framing.
func IsEncrypted(data []byte) bool {
	return len(data) >= len(encryptionMagic) && string(data[:len(encryptionMagic)]) == encryptionMagic
}

func (e *Encryptor) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.password, salt, e.iterations, encryptionKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, newSnapshotError("cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, newSnapshotError("cipher", err)
	}
	return gcm, nil
}
