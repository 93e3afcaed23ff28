// Package auth manages the on-device session: the auth token and user ID
// persisted across launches, encrypted at rest.
package auth

import (
	"crypto/rand"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dropwing/dropwing-go/logger"
	"github.com/dropwing/dropwing-go/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrNoSession is returned by Load when no session has been saved.
var ErrNoSession = stderrors.New("no active session")

// SessionStore persists the authenticated session.
type SessionStore interface {
	Save(session types.Session) error
	Load() (*types.Session, error)
	Clear() error
}

// FileStore is a SessionStore backed by an encrypted file. The encryption
// key is generated on first use and stored next to the session with owner-only
// permissions, standing in for the platform secure storage the mobile app uses.
type FileStore struct {
	path    string
	keyPath string
	mu      sync.Mutex
	log     *zap.SugaredLogger
}

// NewFileStore creates a FileStore writing to the given paths.
func NewFileStore(path, keyPath string) *FileStore {
	return &FileStore{
		path:    path,
		keyPath: keyPath,
		log:     logger.GetLogger().Named("session_store"),
	}
}

// Save encrypts and writes the session.
func (s *FileStore) Save(session types.Session) error {
	if !session.Valid() {
		return fmt.Errorf("refusing to save incomplete session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.loadOrCreateKey()
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("failed to init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := os.WriteFile(s.path, sealed, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	s.log.Infow("Session saved",
		"userID", session.UserID,
		"token", logger.MaskToken(session.Token))
	return nil
}

// Load reads and decrypts the session. Returns ErrNoSession if none exists.
func (s *FileStore) Load() (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	key, err := s.loadKey()
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("session file is corrupt")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}

	var session types.Session
	if err := json.Unmarshal(plaintext, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Clear removes the persisted session. Idempotent.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	s.log.Info("Session cleared")
	return nil
}

func (s *FileStore) loadKey() ([]byte, error) {
	key, err := os.ReadFile(s.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read store key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("store key has wrong size %d", len(key))
	}
	return key, nil
}

func (s *FileStore) loadOrCreateKey() ([]byte, error) {
	key, err := s.loadKey()
	if err == nil {
		return key, nil
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate store key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := os.WriteFile(s.keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write store key: %w", err)
	}
	return key, nil
}
