package devapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

type fixture struct {
	t      *testing.T
	server *httptest.Server
	mu     sync.Mutex
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, clock: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	s := NewServer(Options{
		Secret:     "test-secret",
		BcryptCost: bcrypt.MinCost,
		Now: func() time.Time {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
	})
	f.server = httptest.NewServer(s.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(method, path, token string, body any) *http.Response {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *fixture) signup(email string) authResponse {
	f.t.Helper()
	resp := f.do(http.MethodPost, "/auth/signup", "", map[string]string{"email": email, "password": "password123"})
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	return decode[authResponse](f.t, resp)
}

func (f *fixture) create(auth authResponse, input model.TaskCreate) model.Task {
	f.t.Helper()
	resp := f.do(http.MethodPost, "/api/"+auth.User.ID+"/tasks", auth.Token, input)
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	return decode[model.Task](f.t, resp)
}

func TestSignupLoginSession(t *testing.T) {
	f := newFixture(t)
	auth := f.signup("Me@Example.com")
	assert.Equal(t, "me@example.com", auth.User.Email)
	assert.NotEmpty(t, auth.Token)

	dup := f.do(http.MethodPost, "/auth/signup", "", map[string]string{"email": "me@example.com", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, dup.StatusCode)
	assert.Equal(t, "Email already registered", decode[map[string]string](t, dup)["message"])

	bad := f.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "me@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	ok := f.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "me@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, ok.StatusCode)
	login := decode[authResponse](t, ok)

	session := f.do(http.MethodGet, "/auth/session", login.Token, nil)
	require.Equal(t, http.StatusOK, session.StatusCode)
	got := decode[*authResponse](t, session)
	require.NotNil(t, got)
	assert.Equal(t, auth.User.ID, got.User.ID)
	assert.Equal(t, login.Token, got.Token)
}

func TestSessionWithBadTokenIsNull(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodGet, "/auth/session", "garbage", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, decode[*authResponse](t, resp))
}

func TestSignupRejectsShortPassword(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodPost, "/auth/signup", "", map[string]string{"email": "me@example.com", "password": "short"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestTasksRequireMatchingUser(t *testing.T) {
	f := newFixture(t)
	alice := f.signup("alice@example.com")
	bob := f.signup("bob@example.com")

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/"+alice.User.ID+"/tasks", "", nil).StatusCode)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/"+alice.User.ID+"/tasks", bob.Token, nil).StatusCode)

	task := f.create(alice, model.TaskCreate{Title: "secret", Priority: model.PriorityLow})
	path := "/api/" + bob.User.ID + "/tasks/" + jsonID(task.ID)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, path, bob.Token, nil).StatusCode)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestTaskCRUD(t *testing.T) {
	f := newFixture(t)
	auth := f.signup("me@example.com")
	base := "/api/" + auth.User.ID + "/tasks"

	task := f.create(auth, model.TaskCreate{Title: "Buy milk", Priority: model.PriorityMedium, Tags: []string{"errand"}})
	assert.False(t, task.Completed)
	assert.Equal(t, auth.User.ID, task.UserID)

	toggled := decode[model.Task](t, f.do(http.MethodPatch, base+"/"+jsonID(task.ID)+"/complete", auth.Token, nil))
	assert.True(t, toggled.Completed)

	title := "Buy oat milk"
	resp := f.do(http.MethodPut, base+"/"+jsonID(task.ID), auth.Token, model.TaskUpdate{Title: &title})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[model.Task](t, resp)
	assert.Equal(t, title, updated.Title)
	assert.True(t, updated.Completed)
	assert.Equal(t, []string{"errand"}, updated.Tags)

	del := f.do(http.MethodDelete, base+"/"+jsonID(task.ID), auth.Token, nil)
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, base+"/"+jsonID(task.ID), auth.Token, nil).StatusCode)
}

func TestCreateValidates(t *testing.T) {
	f := newFixture(t)
	auth := f.signup("me@example.com")
	resp := f.do(http.MethodPost, "/api/"+auth.User.ID+"/tasks", auth.Token, model.TaskCreate{Title: ""})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Title is required", decode[map[string]string](t, resp)["message"])
}

func TestListFiltersAndSorts(t *testing.T) {
	f := newFixture(t)
	auth := f.signup("me@example.com")
	base := "/api/" + auth.User.ID + "/tasks"

	milk := f.create(auth, model.TaskCreate{Title: "Buy milk", Priority: model.PriorityMedium, Tags: []string{"errand"}})
	report := f.create(auth, model.TaskCreate{Title: "Annual report", Priority: model.PriorityHigh, Tags: []string{"work"}})
	call := f.create(auth, model.TaskCreate{Title: "Call mom", Priority: model.PriorityLow, Tags: []string{"Errand"}})
	f.do(http.MethodPatch, base+"/"+jsonID(report.ID)+"/complete", auth.Token, nil)

	ids := func(query string) []int64 {
		resp := f.do(http.MethodGet, base+query, auth.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out []int64
		for _, task := range decode[[]model.Task](t, resp) {
			out = append(out, task.ID)
		}
		return out
	}

	assert.Equal(t, []int64{call.ID, report.ID, milk.ID}, ids(""))
	assert.Equal(t, []int64{report.ID, milk.ID, call.ID}, ids("?sort=alpha"))
	assert.Equal(t, []int64{report.ID, milk.ID, call.ID}, ids("?sort=priority"))
	assert.Equal(t, []int64{call.ID, milk.ID}, ids("?status=pending"))
	assert.Equal(t, []int64{report.ID}, ids("?status=completed"))
	assert.Equal(t, []int64{milk.ID}, ids("?tags=errand"))
	assert.Equal(t, []int64{milk.ID}, ids("?search=MILK"))
	assert.Equal(t, []int64{call.ID}, ids("?priority=low"))

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodGet, base+"?sort=random", auth.Token, nil).StatusCode)
}
