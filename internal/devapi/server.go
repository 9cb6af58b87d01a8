// Package devapi is an in-memory implementation of the to-do REST API. It
// backs the client tests and the -dev-api flag for local demos.
package devapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/validate"
)

const (
	maxSearchLength = 100
	maxTagParam     = 200
	defaultTokenTTL = 7 * 24 * time.Hour
)

type Options struct {
	Secret   string
	TokenTTL time.Duration
	Now      func() time.Time
	Logger   *log.Logger
	// BcryptCost defaults to bcrypt.DefaultCost. Tests lower it.
	BcryptCost int
}

type Server struct {
	store  *memoryStore
	tokens tokenIssuer
	logger *log.Logger
}

func NewServer(opts Options) *Server {
	if opts.Secret == "" {
		opts.Secret = "lazytodo-dev-secret"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Server{
		store:  newMemoryStore(opts.Now, opts.BcryptCost),
		tokens: tokenIssuer{secret: []byte(opts.Secret), ttl: opts.TokenTTL, now: opts.Now},
		logger: opts.Logger,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.signup)
		r.Post("/login", s.login)
		r.Post("/logout", s.logout)
		r.Get("/session", s.session)
	})

	r.Route("/api/{userID}/tasks", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/", s.listTasks)
		r.Post("/", s.createTask)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", s.getTask)
			r.Put("/", s.updateTask)
			r.Delete("/", s.deleteTask)
			r.Patch("/complete", s.toggleTask)
		})
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("dev api",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", r.Header.Get("X-Request-ID"),
			"duration", time.Since(start),
		)
	})
}

type contextKey struct{}

func userIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(contextKey{}).(string)
	return userID
}

// requireUser validates the bearer token and checks it against the path's
// user id.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := s.claimsFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if chi.URLParam(r, "userID") != c.UserID {
			writeError(w, http.StatusForbidden, "Access denied: URL user_id does not match authenticated user")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, c.UserID)))
	})
}

func (s *Server) claimsFromRequest(r *http.Request) (*claims, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errInvalidToken
	}
	return s.tokens.validate(strings.TrimSpace(raw))
}

type authResponse struct {
	User      model.User `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt string     `json:"expiresAt"`
}

func (s *Server) authResponse(user model.User) (authResponse, error) {
	token, expiresAt, err := s.tokens.issue(user.ID, user.Email)
	if err != nil {
		return authResponse{}, err
	}
	return authResponse{User: user, Token: token, ExpiresAt: expiresAt.UTC().Format(time.RFC3339)}, nil
}

type signupRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := validate.Signup(req.Email, req.Password, req.Password); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, err := s.store.createUser(req.Email, req.Password, req.Name)
	if errors.Is(err, errEmailTaken) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := s.authResponse(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, err := s.store.authenticate(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	resp, err := s.authResponse(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// logout is stateless: tokens expire on their own.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// session answers null rather than 401 for a bad token.
func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	c, err := s.claimsFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	user, ok := s.store.user(c.UserID)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	raw, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	resp := authResponse{User: user, Token: strings.TrimSpace(raw)}
	if c.ExpiresAt != nil {
		resp.ExpiresAt = c.ExpiresAt.Time.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.store.listTasks(userIDFromContext(r.Context()), q))
}

func queryFromRequest(r *http.Request) (model.Query, error) {
	values := r.URL.Query()
	if len(values.Get("search")) > maxSearchLength {
		return model.Query{}, fmt.Errorf("search must be %d characters or less", maxSearchLength)
	}
	if len(values.Get("tags")) > maxTagParam {
		return model.Query{}, fmt.Errorf("tags must be %d characters or less", maxTagParam)
	}
	q := model.ParseQuery(values)
	switch q.Status {
	case model.StatusAny, model.StatusPending, model.StatusCompleted:
	default:
		return model.Query{}, fmt.Errorf("invalid status %q", q.Status)
	}
	switch q.Priority {
	case model.PriorityAny, model.PriorityFilterHigh, model.PriorityFilterMedium, model.PriorityFilterLow:
	default:
		return model.Query{}, fmt.Errorf("invalid priority %q", q.Priority)
	}
	switch q.SortOrder() {
	case model.SortRecency, model.SortAlphabetical, model.SortPriority:
	default:
		return model.Query{}, fmt.Errorf("invalid sort %q", q.Sort)
	}
	return q, nil
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var input model.TaskCreate
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if input.Priority == "" {
		input.Priority = model.PriorityMedium
	}
	if input.Tags == nil {
		input.Tags = []string{}
	}
	if err := validate.CheckCreate(input); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.store.createTask(userIDFromContext(r.Context()), input))
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	task, err := s.store.getTask(userIDFromContext(r.Context()), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	var input model.TaskUpdate
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := validate.CheckUpdate(input); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	task, err := s.store.updateTask(userIDFromContext(r.Context()), id, input)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	if err := s.store.deleteTask(userIDFromContext(r.Context()), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	task, err := s.store.toggleTask(userIDFromContext(r.Context()), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid task id")
		return 0, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
