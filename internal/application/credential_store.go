package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// KeyValueStore is the durable single-key persistence the session relies on.
// Keys are independent; no multi-key atomicity is assumed.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Persisted keys.
const (
	KeyBackendURL        = "url"
	KeyAccessToken       = "access_token"
	KeyRefreshToken      = "refresh_token"
	KeyAccessTokenExpiry = "access_token_expiry"
	KeyLocation          = "location"
)

// credentialStore is the only writer of persisted credential keys.
type credentialStore struct {
	kv KeyValueStore
}

func newCredentialStore(kv KeyValueStore) *credentialStore {
	return &credentialStore{kv: kv}
}

func (s *credentialStore) backendURL(ctx context.Context) (string, error) {
	value, _, err := s.kv.Get(ctx, KeyBackendURL)
	if err != nil {
		return "", fmt.Errorf("read backend url: %w", err)
	}
	return value, nil
}

func (s *credentialStore) saveBackendURL(ctx context.Context, url string) error {
	if err := s.kv.Set(ctx, KeyBackendURL, url); err != nil {
		return fmt.Errorf("persist backend url: %w", err)
	}
	return nil
}

// load reads the persisted pair. An unparsable expiry reads as the sentinel.
func (s *credentialStore) load(ctx context.Context) (Credentials, error) {
	var creds Credentials
	var err error

	if creds.AccessToken, _, err = s.kv.Get(ctx, KeyAccessToken); err != nil {
		return Credentials{}, fmt.Errorf("read access token: %w", err)
	}
	if creds.RefreshToken, _, err = s.kv.Get(ctx, KeyRefreshToken); err != nil {
		return Credentials{}, fmt.Errorf("read refresh token: %w", err)
	}
	raw, ok, err := s.kv.Get(ctx, KeyAccessTokenExpiry)
	if err != nil {
		return Credentials{}, fmt.Errorf("read access token expiry: %w", err)
	}
	if ok && raw != "" {
		if millis, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil && millis > 0 {
			creds.AccessTokenExpiry = time.UnixMilli(millis)
		}
	}
	return creds, nil
}

// save replaces the persisted pair wholesale. The refresh token is written
// first so a partial write never loses refresh capability.
func (s *credentialStore) save(ctx context.Context, creds Credentials) error {
	if creds.RefreshToken != "" {
		if err := s.kv.Set(ctx, KeyRefreshToken, creds.RefreshToken); err != nil {
			return fmt.Errorf("persist refresh token: %w", err)
		}
	} else if err := s.kv.Delete(ctx, KeyRefreshToken); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	if err := s.kv.Set(ctx, KeyAccessToken, creds.AccessToken); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}

	var millis int64
	if !creds.AccessTokenExpiry.IsZero() {
		millis = creds.AccessTokenExpiry.UnixMilli()
	}
	if err := s.kv.Set(ctx, KeyAccessTokenExpiry, strconv.FormatInt(millis, 10)); err != nil {
		return fmt.Errorf("persist access token expiry: %w", err)
	}
	return nil
}

// clear deletes every credential key and keeps the backend URL. All deletes
// are attempted even when one fails.
func (s *credentialStore) clear(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyAccessToken, KeyAccessTokenExpiry, KeyRefreshToken} {
		if err := s.kv.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *credentialStore) location(ctx context.Context) (string, error) {
	value, _, err := s.kv.Get(ctx, KeyLocation)
	if err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return value, nil
}

func (s *credentialStore) saveLocation(ctx context.Context, locationID string) error {
	if locationID == "" {
		return s.kv.Delete(ctx, KeyLocation)
	}
	if err := s.kv.Set(ctx, KeyLocation, locationID); err != nil {
		return fmt.Errorf("persist location: %w", err)
	}
	return nil
}
