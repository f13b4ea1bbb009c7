package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// ErrNoCredentials is returned by a backend that holds nothing for a profile
var ErrNoCredentials = errors.New("no stored credentials")

// StorageBackend keeps one serialized credential per profile
type StorageBackend interface {
	Save(profile string, data []byte) error
	Load(profile string) ([]byte, error)
	Delete(profile string) error
	Name() string
}

// KeyringStorage uses the OS keychain
type KeyringStorage struct {
	service string
}

func NewKeyringStorage(service string) *KeyringStorage {
	return &KeyringStorage{service: service}
}

func (s *KeyringStorage) Save(profile string, data []byte) error {
	return keyring.Set(s.service, profile, string(data))
}

func (s *KeyringStorage) Load(profile string) ([]byte, error) {
	secret, err := keyring.Get(s.service, profile)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoCredentials
		}
		return nil, err
	}
	return []byte(secret), nil
}

func (s *KeyringStorage) Delete(profile string) error {
	err := keyring.Delete(s.service, profile)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func (s *KeyringStorage) Name() string {
	return "system-keyring"
}

// keyringAvailable writes and removes a throwaway secret
func keyringAvailable(service string) bool {
	user := service + "-availability"
	if err := keyring.Set(service, user, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(service, user)
	return true
}

// fileStore writes one file per profile under <dir>/credentials
type fileStore struct {
	dir string
	ext string
}

func (f fileStore) path(profile string) string {
	return filepath.Join(f.dir, "credentials", profile+f.ext)
}

func (f fileStore) write(profile string, data []byte) error {
	p := f.path(profile)
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0600)
}

func (f fileStore) read(profile string) ([]byte, error) {
	data, err := os.ReadFile(f.path(profile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, err
	}
	return data, nil
}

func (f fileStore) remove(profile string) error {
	err := os.Remove(f.path(profile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// EncryptedFileStorage seals credentials with AES-GCM using a key kept
// next to them
type EncryptedFileStorage struct {
	files fileStore
	key   []byte
}

func NewEncryptedFileStorage(baseDir string) (*EncryptedFileStorage, error) {
	key, err := loadOrCreateKey(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}
	return &EncryptedFileStorage{files: fileStore{dir: baseDir, ext: ".enc"}, key: key}, nil
}

func (s *EncryptedFileStorage) Save(profile string, data []byte) error {
	sealed, err := s.seal(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return s.files.write(profile, sealed)
}

func (s *EncryptedFileStorage) Load(profile string) ([]byte, error) {
	sealed, err := s.files.read(profile)
	if err != nil {
		return nil, err
	}
	return s.open(sealed)
}

func (s *EncryptedFileStorage) Delete(profile string) error {
	return s.files.remove(profile)
}

func (s *EncryptedFileStorage) Name() string {
	return "encrypted-file"
}

func (s *EncryptedFileStorage) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *EncryptedFileStorage) seal(plaintext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *EncryptedFileStorage) open(sealed []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("invalid ciphertext")
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return plaintext, nil
}

// PlainFileStorage keeps credentials unencrypted. Development only.
type PlainFileStorage struct {
	files fileStore
}

func NewPlainFileStorage(baseDir string) *PlainFileStorage {
	return &PlainFileStorage{files: fileStore{dir: baseDir, ext: ".json"}}
}

func (s *PlainFileStorage) Save(profile string, data []byte) error {
	return s.files.write(profile, data)
}

func (s *PlainFileStorage) Load(profile string) ([]byte, error) {
	return s.files.read(profile)
}

func (s *PlainFileStorage) Delete(profile string) error {
	return s.files.remove(profile)
}

func (s *PlainFileStorage) Name() string {
	return "plain-file"
}

func loadOrCreateKey(baseDir string) ([]byte, error) {
	keyFile := filepath.Join(baseDir, ".keyfile")

	if data, err := os.ReadFile(keyFile); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(data))
		if err == nil && len(key) == 32 {
			return key, nil
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyFile, []byte(base64.StdEncoding.EncodeToString(key)), 0600); err != nil {
		return nil, err
	}
	return key, nil
}
