package persistence

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// SaltKey holds the key-derivation salt inside the wrapped store.
const SaltKey = "sealed_salt"

// KeyParams are the Argon2id parameters used to derive the sealing key.
type KeyParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
}

// DefaultKeyParams matches the interactive Argon2id profile.
var DefaultKeyParams = KeyParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
}

// SealedStore encrypts values with XChaCha20-Poly1305 before handing them to
// the wrapped store. The key name is bound as additional data, so a value
// copied under another key fails to open.
type SealedStore struct {
	inner  KeyValueStore
	secret []byte
	params KeyParams

	mu   sync.Mutex
	aead cipher.AEAD
}

// NewSealedStore wraps inner. The key is derived lazily on first use.
func NewSealedStore(inner KeyValueStore, secret string, params KeyParams) (*SealedStore, error) {
	if inner == nil {
		return nil, errors.New("persistence: sealed store requires a backing store")
	}
	if secret == "" {
		return nil, errors.New("persistence: sealed store requires a secret")
	}
	if params.SaltLength == 0 {
		params.SaltLength = DefaultKeyParams.SaltLength
	}
	return &SealedStore{inner: inner, secret: []byte(secret), params: params}, nil
}

// Get opens the value stored under key.
func (s *SealedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == SaltKey {
		return "", false, ErrReservedKey
	}
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	aead, err := s.cipher(ctx)
	if err != nil {
		return "", false, err
	}

	sealed, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil || len(sealed) < aead.NonceSize() {
		return "", false, fmt.Errorf("%w: %s", ErrCorrupt, key)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("%w: %s", ErrCorrupt, key)
	}
	return string(plaintext), true, nil
}

// Set seals value under key with a fresh random nonce.
func (s *SealedStore) Set(ctx context.Context, key, value string) error {
	if key == SaltKey {
		return ErrReservedKey
	}
	aead, err := s.cipher(ctx)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("persistence: generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return s.inner.Set(ctx, key, base64.RawStdEncoding.EncodeToString(sealed))
}

// Delete removes key from the wrapped store.
func (s *SealedStore) Delete(ctx context.Context, key string) error {
	if key == SaltKey {
		return ErrReservedKey
	}
	return s.inner.Delete(ctx, key)
}

// cipher loads or creates the salt and derives the AEAD once.
func (s *SealedStore) cipher(ctx context.Context) (cipher.AEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aead != nil {
		return s.aead, nil
	}

	salt, err := s.salt(ctx)
	if err != nil {
		return nil, err
	}
	key := argon2.IDKey(s.secret, salt, s.params.Iterations, s.params.Memory, s.params.Parallelism, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("persistence: init cipher: %w", err)
	}
	s.aead = aead
	return aead, nil
}

func (s *SealedStore) salt(ctx context.Context) ([]byte, error) {
	encoded, ok, err := s.inner.Get(ctx, SaltKey)
	if err != nil {
		return nil, fmt.Errorf("persistence: read salt: %w", err)
	}
	if ok {
		salt, err := base64.RawStdEncoding.DecodeString(encoded)
		if err != nil || len(salt) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrCorrupt, SaltKey)
		}
		return salt, nil
	}

	salt := make([]byte, s.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("persistence: generate salt: %w", err)
	}
	if err := s.inner.Set(ctx, SaltKey, base64.RawStdEncoding.EncodeToString(salt)); err != nil {
		return nil, fmt.Errorf("persistence: persist salt: %w", err)
	}
	return salt, nil
}
