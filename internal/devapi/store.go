package devapi

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

var (
	errEmailTaken   = errors.New("Email already registered")
	errBadLogin     = errors.New("Invalid email or password")
	errTaskNotFound = errors.New("Task not found")
	errForbidden    = errors.New("Access denied: Task belongs to different user")
)

type account struct {
	user         model.User
	passwordHash []byte
}

// memoryStore keeps users and tasks for the life of the process.
type memoryStore struct {
	mu         sync.Mutex
	now        func() time.Time
	bcryptCost int
	byEmail    map[string]*account
	byID       map[string]*account
	tasks      map[int64]model.Task
	nextTaskID int64
}

func newMemoryStore(now func() time.Time, bcryptCost int) *memoryStore {
	return &memoryStore{
		now:        now,
		bcryptCost: bcryptCost,
		byEmail:    map[string]*account{},
		byID:       map[string]*account{},
		tasks:      map[int64]model.Task{},
	}
}

func (s *memoryStore) createUser(email, password string, name *string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return model.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return model.User{}, errEmailTaken
	}
	acct := &account{
		user:         model.User{ID: uuid.NewString(), Email: email, Name: name},
		passwordHash: hash,
	}
	s.byEmail[email] = acct
	s.byID[acct.user.ID] = acct
	return acct.user, nil
}

func (s *memoryStore) authenticate(email, password string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	acct, ok := s.byEmail[email]
	s.mu.Unlock()
	if !ok {
		return model.User{}, errBadLogin
	}
	if bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) != nil {
		return model.User{}, errBadLogin
	}
	return acct.user, nil
}

func (s *memoryStore) user(id string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byID[id]
	if !ok {
		return model.User{}, false
	}
	return acct.user, true
}

func (s *memoryStore) listTasks(userID string, q model.Query) []model.Task {
	s.mu.Lock()
	tasks := make([]model.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if task.UserID == userID && matches(task, q) {
			tasks = append(tasks, cloneTask(task))
		}
	}
	s.mu.Unlock()

	sortTasks(tasks, q.SortOrder())
	return tasks
}

func matches(task model.Task, q model.Query) bool {
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(task.Title), needle) &&
			!strings.Contains(strings.ToLower(task.DescriptionText()), needle) {
			return false
		}
	}
	switch q.Status {
	case model.StatusPending:
		if task.Completed {
			return false
		}
	case model.StatusCompleted:
		if !task.Completed {
			return false
		}
	}
	if q.Priority != model.PriorityAny && string(task.Priority) != string(q.Priority) {
		return false
	}
	if q.Tag != "" && !task.HasTag(q.Tag) {
		return false
	}
	return true
}

// sortTasks breaks created_at ties by id so equal timestamps still order
// newest first.
func sortTasks(tasks []model.Task, order model.SortOrder) {
	newer := func(a, b model.Task) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch order {
		case model.SortAlphabetical:
			if a.Title != b.Title {
				return a.Title < b.Title
			}
			return a.ID < b.ID
		case model.SortPriority:
			if a.Priority.Rank() != b.Priority.Rank() {
				return a.Priority.Rank() < b.Priority.Rank()
			}
			return newer(a, b)
		default:
			return newer(a, b)
		}
	})
}

func (s *memoryStore) createTask(userID string, input model.TaskCreate) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTaskID++
	now := s.now().UTC()
	task := model.Task{
		ID:          s.nextTaskID,
		UserID:      userID,
		Title:       input.Title,
		Description: input.Description,
		Priority:    input.Priority,
		Tags:        append([]string{}, input.Tags...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[task.ID] = task
	return cloneTask(task)
}

func (s *memoryStore) getTask(userID string, id int64) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, err := s.ownedTask(userID, id)
	if err != nil {
		return model.Task{}, err
	}
	return cloneTask(task), nil
}

func (s *memoryStore) ownedTask(userID string, id int64) (model.Task, error) {
	task, ok := s.tasks[id]
	if !ok {
		return model.Task{}, errTaskNotFound
	}
	if task.UserID != userID {
		return model.Task{}, errForbidden
	}
	return task, nil
}

func (s *memoryStore) updateTask(userID string, id int64, input model.TaskUpdate) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.ownedTask(userID, id)
	if err != nil {
		return model.Task{}, err
	}
	if input.Title != nil {
		task.Title = *input.Title
	}
	if input.Description != nil {
		if *input.Description == "" {
			task.Description = nil
		} else {
			description := *input.Description
			task.Description = &description
		}
	}
	if input.Completed != nil {
		task.Completed = *input.Completed
	}
	if input.Priority != nil {
		task.Priority = *input.Priority
	}
	if input.Tags != nil {
		task.Tags = append([]string{}, (*input.Tags)...)
	}
	task.UpdatedAt = s.now().UTC()
	s.tasks[id] = task
	return cloneTask(task), nil
}

func (s *memoryStore) toggleTask(userID string, id int64) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.ownedTask(userID, id)
	if err != nil {
		return model.Task{}, err
	}
	task.Completed = !task.Completed
	task.UpdatedAt = s.now().UTC()
	s.tasks[id] = task
	return cloneTask(task), nil
}

func (s *memoryStore) deleteTask(userID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedTask(userID, id); err != nil {
		return err
	}
	delete(s.tasks, id)
	return nil
}

func cloneTask(task model.Task) model.Task {
	task.Tags = append([]string{}, task.Tags...)
	if task.Description != nil {
		description := *task.Description
		task.Description = &description
	}
	return task
}
