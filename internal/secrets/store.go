// Package secrets keeps provider API keys in a per-user file (mode 0600),
// sealed with AES-GCM under a key derived from the user and platform. It
// keeps keys out of plain-text config; it is not a keychain.
package secrets

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

const fileName = "keys.json"

// ErrKeyNotFound is returned by Fetch when no key is stored for a provider.
var ErrKeyNotFound = errors.New("secrets: key not found")

type keyFile struct {
	Keys map[string]string `json:"keys"` // provider -> base64(nonce|ciphertext)
}

// Store is a key file under dir.
type Store struct {
	dir  string
	seed string
}

// New returns a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir, seed: fmt.Sprintf("bookkeeper-%s-%s", runtime.GOOS, os.Getenv("USER"))}
}

// Default returns the store in the user's config directory.
func Default() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("secrets: config dir: %w", err)
	}
	return New(filepath.Join(dir, "bookkeeper")), nil
}

func (s *Store) Path() string { return filepath.Join(s.dir, fileName) }

func (s *Store) Put(provider, key string) error {
	if provider = norm(provider); provider == "" {
		return errors.New("secrets: provider required")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("secrets: empty key")
	}
	kf, err := s.load()
	if err != nil {
		return err
	}
	ct, err := s.seal([]byte(key))
	if err != nil {
		return err
	}
	kf.Keys[provider] = base64.StdEncoding.EncodeToString(ct)
	return s.save(kf)
}

func (s *Store) Fetch(provider string) (string, error) {
	if provider = norm(provider); provider == "" {
		return "", errors.New("secrets: provider required")
	}
	kf, err := s.load()
	if err != nil {
		return "", err
	}
	enc, ok := kf.Keys[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, provider)
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("secrets: decode %s: %w", provider, err)
	}
	pt, err := s.open(raw)
	if err != nil {
		return "", fmt.Errorf("secrets: unseal %s: %w", provider, err)
	}
	return string(pt), nil
}

// Delete removes a provider's key. Deleting a missing key is not an error.
func (s *Store) Delete(provider string) error {
	if provider = norm(provider); provider == "" {
		return errors.New("secrets: provider required")
	}
	kf, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := kf.Keys[provider]; !ok {
		return nil
	}
	delete(kf.Keys, provider)
	return s.save(kf)
}

func (s *Store) load() (keyFile, error) {
	kf := keyFile{Keys: map[string]string{}}
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return kf, nil
	}
	if err != nil {
		return kf, fmt.Errorf("secrets: read: %w", err)
	}
	if err := json.Unmarshal(data, &kf); err != nil {
		return kf, fmt.Errorf("secrets: parse %s: %w", s.Path(), err)
	}
	if kf.Keys == nil {
		kf.Keys = map[string]string{}
	}
	return kf, nil
}

func (s *Store) save(kf keyFile) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("secrets: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("secrets: write: %w", err)
	}
	return os.Rename(tmp, s.Path())
}

func norm(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func (s *Store) aead() (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(s.seed))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *Store) seal(plain []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
