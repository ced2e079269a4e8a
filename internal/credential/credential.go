// Package credential stores workspace secrets (personal access tokens,
// OAuth client secrets) encrypted at rest. Values are sealed with
// AES-256-GCM under a machine-derived key, so a credentials file copied
// off the machine is useless.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	// EncryptedPrefix marks values as encrypted in storage.
	EncryptedPrefix = "enc:v1:"

	storeFile = "credentials.json"
)

var (
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidFormat    = errors.New("invalid encrypted format")
	ErrNotFound         = errors.New("credential not found")
)

// Manager seals and opens individual secret values.
type Manager struct {
	key []byte
}

// NewManager creates a credential manager keyed to this machine. Encrypted
// values survive restarts but cannot be decrypted elsewhere.
func NewManager() (*Manager, error) {
	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	return &Manager{key: key}, nil
}

// Encrypt seals a plaintext value into a storable string.
func (m *Manager) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := m.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens a stored value. Unprefixed values pass through unchanged so
// plaintext entries written by hand keep working.
func (m *Manager) Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	if !strings.HasPrefix(stored, EncryptedPrefix) {
		return stored, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrInvalidFormat, err)
	}

	gcm, err := m.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrInvalidFormat
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

func (m *Manager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// IsEncrypted checks if a value carries the encrypted prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// Store is a small encrypted key/value file, keyed by names like
// "databricks.token" or "anthropic.api_key".
type Store struct {
	manager *Manager
	path    string
}

// NewStore opens (or prepares) the credentials file under dir.
func NewStore(dir string) (*Store, error) {
	manager, err := NewManager()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	return &Store{manager: manager, path: filepath.Join(dir, storeFile)}, nil
}

// Set encrypts and persists a credential.
func (s *Store) Set(name, value string) error {
	entries, err := s.load()
	if err != nil {
		return err
	}
	sealed, err := s.manager.Encrypt(value)
	if err != nil {
		return err
	}
	entries[name] = sealed
	return s.save(entries)
}

// Get decrypts a stored credential. Returns ErrNotFound for unknown names.
func (s *Store) Get(name string) (string, error) {
	entries, err := s.load()
	if err != nil {
		return "", err
	}
	sealed, ok := entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.manager.Decrypt(sealed)
}

// Delete removes a credential. Deleting an absent name is not an error.
func (s *Store) Delete(name string) error {
	entries, err := s.load()
	if err != nil {
		return err
	}
	delete(entries, name)
	return s.save(entries)
}

// List returns the stored credential names without decrypting anything.
func (s *Store) List() ([]string, error) {
	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return entries, nil
}

func (s *Store) save(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// deriveKey builds a machine-specific 32-byte key for AES-256 from stable
// host identifiers, so the key is reproducible across restarts.
func deriveKey() ([]byte, error) {
	var entropy strings.Builder

	hostname, _ := os.Hostname()
	entropy.WriteString(hostname)

	home, _ := os.UserHomeDir()
	entropy.WriteString(home)

	entropy.WriteString(runtime.GOOS)
	entropy.WriteString(runtime.GOARCH)

	entropy.WriteString("genie-credential-store-v1")

	if uid := os.Getuid(); uid != -1 {
		entropy.WriteString(fmt.Sprintf("uid:%d", uid))
	}
	if username := os.Getenv("USER"); username != "" {
		entropy.WriteString(username)
	}

	hash := sha256.Sum256([]byte(entropy.String()))
	return hash[:], nil
}

// MaskSecret masks a secret for display, keeping only the first and last
// four characters of long values.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
