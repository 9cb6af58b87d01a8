package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joseda-hg/lazytodo/internal/db"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	raw, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return raw
}

func TestGetWithoutCredential(t *testing.T) {
	store := New(NewMemoryStorage())

	token, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, token)
}

func TestSetThenGetRecoversExpiry(t *testing.T) {
	store := New(NewMemoryStorage())
	exp := time.Now().Add(7 * 24 * time.Hour).Truncate(time.Second)
	raw := signedToken(t, exp)

	require.NoError(t, store.Set(context.Background(), NewCredential(raw, exp)))

	token, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, raw, token.AccessToken)
	assert.Equal(t, "Bearer", token.Type())
	assert.True(t, token.Expiry.Equal(exp), "expiry %s != %s", token.Expiry, exp)
}

func TestExpiredTokenIsStillReturned(t *testing.T) {
	store := New(NewMemoryStorage())
	raw := signedToken(t, time.Now().Add(-time.Hour))
	require.NoError(t, store.Set(context.Background(), NewCredential(raw, time.Time{})))

	token, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, raw, token.AccessToken)
}

func TestOpaqueTokenHasNoExpiry(t *testing.T) {
	store := New(NewMemoryStorage())
	require.NoError(t, store.Set(context.Background(), NewCredential("opaque", time.Time{})))

	token, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, token.Expiry.IsZero())
}

func TestClearRemovesCredential(t *testing.T) {
	store := New(NewMemoryStorage())
	require.NoError(t, store.Set(context.Background(), NewCredential("abc", time.Time{})))
	require.NoError(t, store.Clear(context.Background()))

	_, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetRejectsEmptyCredential(t *testing.T) {
	store := New(NewMemoryStorage())
	assert.Error(t, store.Set(context.Background(), nil))
	assert.Error(t, store.Set(context.Background(), NewCredential("", time.Time{})))
}

func TestSQLiteBackedStore(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	defer database.Close()

	storage := db.NewStore(database)
	store := New(storage)
	require.NoError(t, store.Set(context.Background(), NewCredential("abc", time.Time{})))

	value, ok, err := storage.GetItem(context.Background(), Key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", value)
}

type failingStorage struct{ MemoryStorage }

func (failingStorage) GetItem(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func TestGetWrapsStorageError(t *testing.T) {
	store := New(&failingStorage{})
	_, _, err := store.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read credential")
}
