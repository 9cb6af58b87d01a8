package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/devapi"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/tokenstore"
)

type fakeAPI struct {
	loginResp   api.AuthResponse
	loginErr    error
	signupResp  api.AuthResponse
	signupErr   error
	sessionResp api.AuthResponse
	sessionErr  error
	logoutErr   error
	logoutCalls int
}

func (f *fakeAPI) Login(context.Context, string, string) (api.AuthResponse, error) {
	return f.loginResp, f.loginErr
}

func (f *fakeAPI) Signup(context.Context, string, string, *string) (api.AuthResponse, error) {
	return f.signupResp, f.signupErr
}

func (f *fakeAPI) Logout(context.Context) error {
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeAPI) Session(context.Context) (api.AuthResponse, error) {
	return f.sessionResp, f.sessionErr
}

func authResponse(token string) api.AuthResponse {
	return api.AuthResponse{
		User:      model.User{ID: "u-1", Email: "me@example.com"},
		Token:     token,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func newManager(t *testing.T, fake *fakeAPI) (*Manager, *tokenstore.Store, *int) {
	t.Helper()
	store := tokenstore.New(tokenstore.NewMemoryStorage())
	navigations := 0
	m := NewManager(fake, store, WithNavigator(api.NavigatorFunc(func() { navigations++ })))
	return m, store, &navigations
}

func storedToken(t *testing.T, store *tokenstore.Store) (string, bool) {
	t.Helper()
	token, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	if !ok {
		return "", false
	}
	return token.AccessToken, true
}

func TestInitialStateIsLoading(t *testing.T) {
	m, _, _ := newManager(t, &fakeAPI{})
	assert.Equal(t, Loading{}, m.State())
	assert.Empty(t, m.UserID())
}

func TestInitWithoutCredential(t *testing.T) {
	fake := &fakeAPI{sessionErr: errors.New("must not be called")}
	m, _, _ := newManager(t, fake)

	assert.Equal(t, Unauthenticated{}, m.Init(context.Background()))
}

func TestInitExchangesCredential(t *testing.T) {
	fake := &fakeAPI{sessionResp: authResponse("fresh")}
	m, store, _ := newManager(t, fake)
	require.NoError(t, store.Set(context.Background(), tokenstore.NewCredential("old", time.Time{})))

	state := m.Init(context.Background())
	auth, ok := state.(Authenticated)
	require.True(t, ok, "got %T", state)
	assert.Equal(t, "u-1", auth.Session.User.ID)

	token, _ := storedToken(t, store)
	assert.Equal(t, "fresh", token)
}

func TestInitClearsRejectedCredential(t *testing.T) {
	fake := &fakeAPI{sessionErr: api.ErrNoSession}
	m, store, navigations := newManager(t, fake)
	require.NoError(t, store.Set(context.Background(), tokenstore.NewCredential("stale", time.Time{})))

	assert.Equal(t, Unauthenticated{}, m.Init(context.Background()))
	_, ok := storedToken(t, store)
	assert.False(t, ok)
	assert.Zero(t, *navigations)
}

func TestLoginSuccessPersistsCredential(t *testing.T) {
	fake := &fakeAPI{loginResp: authResponse("tok")}
	m, store, _ := newManager(t, fake)

	var seen []string
	unsubscribe := m.Subscribe(func(s State) { seen = append(seen, s.Name()) })
	defer unsubscribe()

	session, err := m.Login(context.Background(), "me@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "u-1", session.User.ID)
	assert.Equal(t, "u-1", m.UserID())
	assert.Equal(t, []string{"loading", "authenticated"}, seen)

	token, ok := storedToken(t, store)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
}

func TestLoginFailureMovesToFailed(t *testing.T) {
	fake := &fakeAPI{loginErr: &api.AuthError{StatusCode: 401, Message: "Invalid email or password"}}
	m, store, _ := newManager(t, fake)

	_, err := m.Login(context.Background(), "me@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, Failed{Message: "Invalid email or password"}, m.State())
	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestSignupFailureFallsBack(t *testing.T) {
	fake := &fakeAPI{signupErr: errors.New("connection refused")}
	m, _, _ := newManager(t, fake)

	_, err := m.Signup(context.Background(), "me@example.com", "password123", nil)
	require.Error(t, err)
	assert.Equal(t, Failed{Message: "Signup failed"}, m.State())
}

func TestLogoutClearsEvenWhenServerFails(t *testing.T) {
	fake := &fakeAPI{loginResp: authResponse("tok"), logoutErr: errors.New("offline")}
	m, store, navigations := newManager(t, fake)
	_, err := m.Login(context.Background(), "me@example.com", "password123")
	require.NoError(t, err)

	m.Logout(context.Background())

	assert.Equal(t, 1, fake.logoutCalls)
	assert.Equal(t, Unauthenticated{}, m.State())
	assert.Equal(t, 1, *navigations)
	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestRefreshFailureIsSwallowed(t *testing.T) {
	fake := &fakeAPI{loginResp: authResponse("tok")}
	m, store, _ := newManager(t, fake)
	_, err := m.Login(context.Background(), "me@example.com", "password123")
	require.NoError(t, err)

	fake.sessionErr = &api.StatusError{StatusCode: 500, StatusText: "Internal Server Error"}
	m.Refresh(context.Background())

	assert.Equal(t, Unauthenticated{}, m.State())
	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestInvalidateDropsCredential(t *testing.T) {
	fake := &fakeAPI{loginResp: authResponse("tok")}
	m, store, navigations := newManager(t, fake)
	_, err := m.Login(context.Background(), "me@example.com", "password123")
	require.NoError(t, err)

	m.Invalidate(context.Background())
	assert.Equal(t, Unauthenticated{}, m.State())
	assert.Zero(t, *navigations)
	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "signed out", Describe(Unauthenticated{}))
	assert.Equal(t, "Login failed", Describe(Failed{Message: "Login failed"}))
	assert.Equal(t, "signed in as me@example.com", Describe(Authenticated{Session: model.Session{User: model.User{Email: "me@example.com"}}}))
}

func TestAgainstDevServer(t *testing.T) {
	server := httptest.NewServer(devapi.NewServer(devapi.Options{BcryptCost: bcrypt.MinCost}).Handler())
	defer server.Close()

	store := tokenstore.New(tokenstore.NewMemoryStorage())
	client := api.New(server.URL, store)
	m := NewManager(client, store)
	ctx := context.Background()

	_, err := m.Signup(ctx, "me@example.com", "password123", nil)
	require.NoError(t, err)

	restarted := NewManager(client, store)
	state := restarted.Init(ctx)
	auth, ok := state.(Authenticated)
	require.True(t, ok, "got %T", state)
	assert.Equal(t, "me@example.com", auth.Session.User.Email)

	_, err = m.Login(ctx, "me@example.com", "wrong-password")
	require.Error(t, err)
	assert.Equal(t, Failed{Message: "Invalid email or password"}, m.State())
}
