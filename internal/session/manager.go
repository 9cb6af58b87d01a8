// Package session owns the signed-in session: it exchanges the stored
// credential for a user, and runs login, signup, logout and refresh.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/metrics"
	"github.com/Joseda-hg/lazytodo/internal/model"
)

type AuthAPI interface {
	Login(ctx context.Context, email, password string) (api.AuthResponse, error)
	Signup(ctx context.Context, email, password string, name *string) (api.AuthResponse, error)
	Logout(ctx context.Context) error
	Session(ctx context.Context) (api.AuthResponse, error)
}

type CredentialStore interface {
	Get(ctx context.Context) (*oauth2.Token, bool, error)
	Set(ctx context.Context, token *oauth2.Token) error
	Clear(ctx context.Context) error
}

// Manager is safe for concurrent use. Overlapping operations are not
// coordinated: the last one to finish decides the state.
type Manager struct {
	api       AuthAPI
	store     CredentialStore
	navigator api.Navigator
	logger    *log.Logger
	metrics   metrics.Recorder

	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

type Option func(*Manager)

func WithNavigator(navigator api.Navigator) Option {
	return func(m *Manager) { m.navigator = navigator }
}

func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = recorder }
}

func NewManager(authAPI AuthAPI, store CredentialStore, opts ...Option) *Manager {
	m := &Manager{
		api:       authAPI,
		store:     store,
		navigator: api.NavigatorFunc(func() {}),
		logger:    log.New(io.Discard),
		metrics:   metrics.Nop{},
		state:     Loading{},
		listeners: map[int]func(State){},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Session() (model.Session, bool) {
	if auth, ok := m.State().(Authenticated); ok {
		return auth.Session, true
	}
	return model.Session{}, false
}

// UserID is empty unless authenticated.
func (m *Manager) UserID() string {
	s, _ := m.Session()
	return s.User.ID
}

// Subscribe registers fn for every transition and returns a func that
// removes it.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) transition(next State) {
	m.mu.Lock()
	m.state = next
	listeners := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	m.metrics.RecordSessionTransition(next.Name())
	m.logger.Debug("session transition", "state", next.Name())
	for _, fn := range listeners {
		fn(next)
	}
}

// Init restores the session from the stored credential. A credential the
// server will not exchange is cleared.
func (m *Manager) Init(ctx context.Context) State {
	m.transition(Loading{})

	_, ok, err := m.store.Get(ctx)
	if err != nil {
		m.logger.Error("read stored credential", "err", err)
		m.transition(Unauthenticated{})
		return m.State()
	}
	if !ok {
		m.transition(Unauthenticated{})
		return m.State()
	}

	m.lookup(ctx)
	return m.State()
}

// Refresh re-runs the session lookup. Failures are logged, never returned.
func (m *Manager) Refresh(ctx context.Context) {
	m.lookup(ctx)
}

func (m *Manager) lookup(ctx context.Context) {
	resp, err := m.api.Session(ctx)
	if err != nil {
		m.logger.Warn("session lookup failed", "err", err)
		m.clearCredential(ctx)
		m.transition(Unauthenticated{})
		return
	}
	if err := m.store.Set(ctx, resp.Credential()); err != nil {
		m.logger.Error("store refreshed credential", "err", err)
	}
	m.transition(Authenticated{Session: resp.Session()})
}

func (m *Manager) Login(ctx context.Context, email, password string) (model.Session, error) {
	m.transition(Loading{})
	resp, err := m.api.Login(ctx, email, password)
	return m.authenticated(ctx, resp, err, "Login failed")
}

func (m *Manager) Signup(ctx context.Context, email, password string, name *string) (model.Session, error) {
	m.transition(Loading{})
	resp, err := m.api.Signup(ctx, email, password, name)
	return m.authenticated(ctx, resp, err, "Signup failed")
}

func (m *Manager) authenticated(ctx context.Context, resp api.AuthResponse, err error, fallback string) (model.Session, error) {
	if err != nil {
		message := api.Message(err, fallback)
		m.logger.Info("authentication failed", "message", message)
		m.transition(Failed{Message: message})
		return model.Session{}, err
	}
	if err := m.store.Set(ctx, resp.Credential()); err != nil {
		m.transition(Failed{Message: fallback})
		return model.Session{}, fmt.Errorf("persist credential: %w", err)
	}
	session := resp.Session()
	m.logger.Info("signed in", "user", session.User.ID)
	m.transition(Authenticated{Session: session})
	return session, nil
}

// Logout always ends unauthenticated at the sign-in entry point, whatever
// the server says.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.api.Logout(ctx); err != nil {
		m.logger.Warn("logout request failed", "err", err)
	}
	m.clearCredential(ctx)
	m.transition(Unauthenticated{})
	m.navigator.SignIn()
}

// Invalidate drops a credential the server has rejected.
func (m *Manager) Invalidate(ctx context.Context) {
	m.clearCredential(ctx)
	m.transition(Unauthenticated{})
}

func (m *Manager) clearCredential(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("clear credential", "err", err)
	}
}

// Describe renders a state for status lines.
func Describe(s State) string {
	switch st := s.(type) {
	case Unauthenticated:
		return "signed out"
	case Loading:
		return "loading…"
	case Authenticated:
		return "signed in as " + st.Session.User.DisplayName()
	case Failed:
		return st.Message
	default:
		return fmt.Sprintf("unknown session state %T", s)
	}
}
