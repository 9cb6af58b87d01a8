package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Joseda-hg/lazytodo/internal/devapi"
	"github.com/Joseda-hg/lazytodo/internal/metrics"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/tokenstore"
)

func newDevClient(t *testing.T, opts ...Option) (*Client, *tokenstore.Store) {
	t.Helper()
	server := httptest.NewServer(devapi.NewServer(devapi.Options{BcryptCost: bcrypt.MinCost}).Handler())
	t.Cleanup(server.Close)

	store := tokenstore.New(tokenstore.NewMemoryStorage())
	return New(server.URL, store, opts...), store
}

func signedIn(t *testing.T, client *Client, store *tokenstore.Store) model.User {
	t.Helper()
	resp, err := client.Signup(context.Background(), "me@example.com", "password123", nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), resp.Credential()))
	return resp.User
}

func TestProtectedCallWithoutCredentialNeverHitsNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client := New(server.URL, tokenstore.New(tokenstore.NewMemoryStorage()))
	_, err := client.ListTasks(context.Background(), "u-1", nil)

	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, "No authentication token available", Message(err, "Failed to load tasks"))
	assert.Zero(t, hits.Load())
}

func TestProtectedCallSendsBearerAndJSONHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	store := tokenstore.New(tokenstore.NewMemoryStorage())
	require.NoError(t, store.Set(context.Background(), tokenstore.NewCredential("tok-123", time.Time{})))

	client := New(server.URL, store)
	tasks, err := client.ListTasks(context.Background(), "u-1", nil)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Equal(t, "Bearer tok-123", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
}

func TestUnauthorizedNavigatesBeforeMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"expired"}`))
	}))
	defer server.Close()

	store := tokenstore.New(tokenstore.NewMemoryStorage())
	require.NoError(t, store.Set(context.Background(), tokenstore.NewCredential("stale", time.Time{})))

	var navigations int
	client := New(server.URL, store, WithNavigator(NavigatorFunc(func() { navigations++ })))
	_, err := client.ListTasks(context.Background(), "u-1", nil)

	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, "Authentication required", Message(err, "Failed to load tasks"))
	assert.Equal(t, 1, navigations)

	_, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "client must leave the credential for the caller to clear")
}

func TestOtherStatusesBecomeStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Task not found"}`))
	}))
	defer server.Close()

	store := tokenstore.New(tokenstore.NewMemoryStorage())
	require.NoError(t, store.Set(context.Background(), tokenstore.NewCredential("tok", time.Time{})))

	client := New(server.URL, store)
	_, err := client.GetTask(context.Background(), "u-1", 42)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 404, statusErr.StatusCode)
	assert.Equal(t, "API error: 404 Not Found", err.Error())
	assert.Equal(t, "Task not found", statusErr.Message)
	assert.Equal(t, "Task not found", Message(err, "Failed to load task"))
}

func TestListTasksSerializesOnlyNonDefaultFields(t *testing.T) {
	var rawQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	store := tokenstore.New(tokenstore.NewMemoryStorage())
	require.NoError(t, store.Set(context.Background(), tokenstore.NewCredential("tok", time.Time{})))
	client := New(server.URL, store)

	_, err := client.ListTasks(context.Background(), "u-1", &model.Query{Priority: model.PriorityFilterHigh})
	require.NoError(t, err)
	assert.Equal(t, "priority=high", rawQuery)

	_, err = client.ListTasks(context.Background(), "u-1", &model.Query{})
	require.NoError(t, err)
	assert.Empty(t, rawQuery)
}

func TestUserIDRequired(t *testing.T) {
	client := New("http://unused.invalid", tokenstore.New(tokenstore.NewMemoryStorage()))
	_, err := client.CreateTask(context.Background(), "", model.TaskCreate{Title: "x"})
	assert.ErrorIs(t, err, ErrUserIDRequired)
}

func TestLoginFailureCarriesServerMessage(t *testing.T) {
	client, _ := newDevClient(t)
	_, err := client.Login(context.Background(), "nobody@example.com", "whatever1")

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "Invalid email or password", authErr.Message)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestLoginFallbackMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer server.Close()

	client := New(server.URL, tokenstore.New(tokenstore.NewMemoryStorage()))
	_, err := client.Login(context.Background(), "me@example.com", "password123")
	assert.EqualError(t, err, "Login failed")

	_, err = client.Signup(context.Background(), "me@example.com", "password123", nil)
	assert.EqualError(t, err, "Signup failed")
}

func TestAuthResponseMissingTokenIsInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"user": map[string]string{"id": "u-1", "email": "a@b.co"}})
	}))
	defer server.Close()

	client := New(server.URL, tokenstore.New(tokenstore.NewMemoryStorage()))
	_, err := client.Login(context.Background(), "a@b.co", "password123")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestSessionLookup(t *testing.T) {
	client, store := newDevClient(t)
	user := signedIn(t, client, store)

	resp, err := client.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.False(t, resp.ExpiresAt.IsZero())

	require.NoError(t, store.Set(context.Background(), tokenstore.NewCredential("forged", time.Time{})))
	_, err = client.Session(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLogoutIsBestEffortWithoutCredential(t *testing.T) {
	client, _ := newDevClient(t)
	assert.NoError(t, client.Logout(context.Background()))
}

func TestTaskRoundTripAgainstDevServer(t *testing.T) {
	client, store := newDevClient(t)
	user := signedIn(t, client, store)
	ctx := context.Background()

	created, err := client.CreateTask(ctx, user.ID, model.TaskCreate{
		Title:    "Buy milk",
		Priority: model.PriorityMedium,
		Tags:     []string{"errand"},
	})
	require.NoError(t, err)
	assert.False(t, created.Completed)

	once, err := client.ToggleTask(ctx, user.ID, created.ID)
	require.NoError(t, err)
	assert.True(t, once.Completed)
	twice, err := client.ToggleTask(ctx, user.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Completed, twice.Completed)

	title := "Buy oat milk"
	updated, err := client.UpdateTask(ctx, user.ID, created.ID, model.TaskUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	fetched, err := client.GetTask(ctx, user.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Title, fetched.Title)

	listed, err := client.ListTasks(ctx, user.ID, &model.Query{Tag: "errand"})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, client.DeleteTask(ctx, user.ID, created.ID))
	listed, err = client.ListTasks(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	client, store := newDevClient(t, WithMetrics(collector))
	user := signedIn(t, client, store)

	_, err := client.ListTasks(context.Background(), user.ID, nil)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "lazytodo_api_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "signup and list_tasks series")
}

func TestRateLimitHonorsContext(t *testing.T) {
	client := New("http://unused.invalid", tokenstore.New(tokenstore.NewMemoryStorage()), WithRateLimit(0.001, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// the first request consumes the only token; the transport error is expected
	_ = client.Logout(ctx)
	err := client.Logout(ctx)
	require.Error(t, err)
}

func TestMessageMapsSentinels(t *testing.T) {
	wrapped := fmt.Errorf("list tasks: %w", ErrAuthRequired)
	assert.Equal(t, "authentication required", ErrAuthRequired.Error())
	assert.Equal(t, "Authentication required", Message(wrapped, "Failed to load tasks"))
	assert.Equal(t, "User ID is required", Message(ErrUserIDRequired, ""))
	assert.Equal(t, "Invalid response from server", Message(ErrInvalidResponse, "Login failed"))
	assert.Equal(t, "Login failed", Message(ErrNoSession, "Login failed"))
	assert.Equal(t, "Invalid email or password", Message(&AuthError{StatusCode: 401, Message: "Invalid email or password"}, "Login failed"))
	assert.Equal(t, "API error: 500 Internal Server Error", Message(&StatusError{StatusCode: 500, StatusText: "Internal Server Error"}, "x"))
	assert.Empty(t, Message(nil, "x"))
}
