// Package tokenstore keeps the single bearer credential in persistent local
// storage. Only the token string is written; the expiry is recovered from the
// token's exp claim when it is read back.
package tokenstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Key is the storage key the credential lives under.
const Key = "auth_token"

type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

type Store struct {
	storage Storage
}

func New(storage Storage) *Store {
	return &Store{storage: storage}
}

// Get reports false when no credential has been stored. Expiry is informative
// only; an expired token is still returned and left for the server to judge.
func (s *Store) Get(ctx context.Context) (*oauth2.Token, bool, error) {
	raw, ok, err := s.storage.GetItem(ctx, Key)
	if err != nil {
		return nil, false, fmt.Errorf("read credential: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return nil, false, nil
	}
	expiry, _ := ExpiryFromJWT(raw)
	return NewCredential(raw, expiry), true, nil
}

func (s *Store) Set(ctx context.Context, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("credential is empty")
	}
	if err := s.storage.SetItem(ctx, Key, token.AccessToken); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.RemoveItem(ctx, Key); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

func NewCredential(accessToken string, expiry time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}
}

// ExpiryFromJWT reads the exp claim without verifying the signature; the
// client never holds the signing secret.
func ExpiryFromJWT(raw string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// MemoryStorage is a process-local Storage.
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: map[string]string{}}
}

func (m *MemoryStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.items[key]
	return value, ok, nil
}

func (m *MemoryStorage) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryStorage) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
