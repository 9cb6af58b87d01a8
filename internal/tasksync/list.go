// Package tasksync holds one user's task collection for the current query.
//
// Every refetch takes a sequence number and only the latest one may replace
// the collection. Mutations that succeed while a refetch is in flight are
// replayed over its result, so a slower list response cannot undo them.
package tasksync

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/model"
)

type TasksAPI interface {
	ListTasks(ctx context.Context, userID string, query *model.Query) ([]model.Task, error)
	CreateTask(ctx context.Context, userID string, input model.TaskCreate) (model.Task, error)
	UpdateTask(ctx context.Context, userID string, taskID int64, input model.TaskUpdate) (model.Task, error)
	DeleteTask(ctx context.Context, userID string, taskID int64) error
	ToggleTask(ctx context.Context, userID string, taskID int64) (model.Task, error)
}

const (
	msgLoadFailed   = "Failed to load tasks"
	msgCreateFailed = "Failed to create task"
	msgUpdateFailed = "Failed to update task"
	msgDeleteFailed = "Failed to delete task"
	msgToggleFailed = "Failed to toggle task completion"
)

// Snapshot is a copy of the list state; callers may keep it.
type Snapshot struct {
	UserID  string
	Query   model.Query
	Tasks   []model.Task
	Loading bool
	Err     error
	// Message is the user-facing form of Err.
	Message string
}

type List struct {
	api      TasksAPI
	logger   *log.Logger
	onChange func(Snapshot)

	mu      sync.Mutex
	userID  string
	query   model.Query
	tasks   []model.Task
	loading bool
	err     error
	message string
	seq     uint64
	journal []change
	// epoch changes with the bound user; replies for an older epoch are dropped.
	epoch uint64
}

// binding is the user a mutation was started for.
type binding struct {
	userID string
	epoch  uint64
}

type Option func(*List)

func WithLogger(logger *log.Logger) Option {
	return func(l *List) { l.logger = logger }
}

// WithOnChange is called after every state change, outside the lock.
func WithOnChange(fn func(Snapshot)) Option {
	return func(l *List) { l.onChange = fn }
}

func New(tasksAPI TasksAPI, opts ...Option) *List {
	l := &List{
		api:      tasksAPI,
		logger:   log.New(io.Discard),
		onChange: func(Snapshot) {},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *List) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *List) snapshotLocked() Snapshot {
	tasks := make([]model.Task, len(l.tasks))
	copy(tasks, l.tasks)
	return Snapshot{
		UserID:  l.userID,
		Query:   l.query,
		Tasks:   tasks,
		Loading: l.loading,
		Err:     l.err,
		Message: l.message,
	}
}

func (l *List) notify() {
	l.onChange(l.Snapshot())
}

// AvailableTags is the sorted set of tags across the loaded tasks.
func (l *List) AvailableTags() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := map[string]struct{}{}
	for _, task := range l.tasks {
		for _, tag := range task.Tags {
			seen[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Bind sets the user and query together and refetches if either changed.
// An empty user clears the collection without a request.
func (l *List) Bind(ctx context.Context, userID string, query model.Query) error {
	query = query.Normalize()

	l.mu.Lock()
	changed := userID != l.userID || query != l.query
	userChanged := userID != l.userID
	l.userID = userID
	l.query = query
	if userChanged {
		l.epoch++
		l.tasks = nil
		l.err = nil
		l.message = ""
	}
	if userID == "" {
		l.seq++
		l.loading = false
		l.journal = nil
	}
	l.mu.Unlock()

	if userID == "" {
		if changed {
			l.notify()
		}
		return nil
	}
	if !changed {
		return nil
	}
	return l.refetch(ctx)
}

func (l *List) SetQuery(ctx context.Context, query model.Query) error {
	l.mu.Lock()
	userID := l.userID
	l.mu.Unlock()
	return l.Bind(ctx, userID, query)
}

func (l *List) SetUser(ctx context.Context, userID string) error {
	l.mu.Lock()
	query := l.query
	l.mu.Unlock()
	return l.Bind(ctx, userID, query)
}

// Refresh refetches under the current binding.
func (l *List) Refresh(ctx context.Context) error {
	l.mu.Lock()
	userID := l.userID
	l.mu.Unlock()
	if userID == "" {
		return nil
	}
	return l.refetch(ctx)
}

// refetch replaces the collection with the server's list. A response that is
// no longer the latest is dropped and reports nil. Mutations confirmed while
// it was in flight are replayed over the response, so the result is the
// server list plus those changes rather than the server list alone.
func (l *List) refetch(ctx context.Context) error {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	userID, query := l.userID, l.query
	l.loading = true
	l.err = nil
	l.message = ""
	l.journal = nil
	l.mu.Unlock()
	l.notify()

	tasks, err := l.api.ListTasks(ctx, userID, &query)

	l.mu.Lock()
	if seq != l.seq {
		l.mu.Unlock()
		l.logger.Debug("dropping stale task list", "seq", seq)
		return nil
	}
	l.loading = false
	if err != nil {
		l.err = err
		l.message = api.Message(err, msgLoadFailed)
	} else {
		for _, c := range l.journal {
			tasks = c.apply(tasks)
		}
		l.tasks = tasks
	}
	l.journal = nil
	l.mu.Unlock()
	l.notify()

	if err != nil {
		l.logger.Warn("task list fetch failed", "err", err)
	}
	return err
}

// begin checks the user and clears the previous error.
func (l *List) begin() (binding, error) {
	l.mu.Lock()
	b := binding{userID: l.userID, epoch: l.epoch}
	if b.userID == "" {
		l.mu.Unlock()
		return binding{}, api.ErrUserIDRequired
	}
	l.err = nil
	l.message = ""
	l.mu.Unlock()
	l.notify()
	return b, nil
}

func (l *List) current(b binding) bool {
	return l.userID == b.userID && l.epoch == b.epoch
}

func (l *List) fail(b binding, err error, fallback string) error {
	l.mu.Lock()
	if !l.current(b) {
		l.mu.Unlock()
		l.logger.Debug("dropping mutation error for previous user", "err", err)
		return err
	}
	l.err = err
	l.message = api.Message(err, fallback)
	l.mu.Unlock()
	l.notify()
	l.logger.Warn("task mutation failed", "err", err)
	return err
}

// apply drops changes confirmed after the list moved to another user.
func (l *List) apply(b binding, c change) {
	l.mu.Lock()
	if !l.current(b) {
		l.mu.Unlock()
		l.logger.Debug("dropping mutation for previous user", "user", b.userID)
		return
	}
	l.tasks = c.apply(l.tasks)
	if l.loading {
		l.journal = append(l.journal, c)
	}
	l.mu.Unlock()
	l.notify()
}

func (l *List) Create(ctx context.Context, input model.TaskCreate) (model.Task, error) {
	b, err := l.begin()
	if err != nil {
		return model.Task{}, err
	}
	task, err := l.api.CreateTask(ctx, b.userID, input)
	if err != nil {
		return model.Task{}, l.fail(b, err, msgCreateFailed)
	}
	l.apply(b, change{kind: upsertTask, task: task})
	return task, nil
}

func (l *List) Update(ctx context.Context, taskID int64, input model.TaskUpdate) (model.Task, error) {
	b, err := l.begin()
	if err != nil {
		return model.Task{}, err
	}
	task, err := l.api.UpdateTask(ctx, b.userID, taskID, input)
	if err != nil {
		return model.Task{}, l.fail(b, err, msgUpdateFailed)
	}
	l.apply(b, change{kind: replaceTask, task: task})
	return task, nil
}

func (l *List) Delete(ctx context.Context, taskID int64) error {
	b, err := l.begin()
	if err != nil {
		return err
	}
	if err := l.api.DeleteTask(ctx, b.userID, taskID); err != nil {
		return l.fail(b, err, msgDeleteFailed)
	}
	l.apply(b, change{kind: removeTask, id: taskID})
	return nil
}

func (l *List) Toggle(ctx context.Context, taskID int64) (model.Task, error) {
	b, err := l.begin()
	if err != nil {
		return model.Task{}, err
	}
	task, err := l.api.ToggleTask(ctx, b.userID, taskID)
	if err != nil {
		return model.Task{}, l.fail(b, err, msgToggleFailed)
	}
	l.apply(b, change{kind: replaceTask, task: task})
	return task, nil
}
