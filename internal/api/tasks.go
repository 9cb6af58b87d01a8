package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

func tasksPath(userID string) string {
	return "/api/" + url.PathEscape(userID) + "/tasks"
}

func taskPath(userID string, taskID int64) string {
	return tasksPath(userID) + "/" + strconv.FormatInt(taskID, 10)
}

// ListTasks sends only the non-default query fields. A nil query lists
// everything in the server's default order.
func (c *Client) ListTasks(ctx context.Context, userID string, query *model.Query) ([]model.Task, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	req := request{op: "list_tasks", method: http.MethodGet, path: tasksPath(userID)}
	if query != nil {
		req.query = query.Values()
	}

	var tasks []model.Task
	if err := c.doProtected(ctx, req, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

func (c *Client) CreateTask(ctx context.Context, userID string, input model.TaskCreate) (model.Task, error) {
	if userID == "" {
		return model.Task{}, ErrUserIDRequired
	}
	if input.Tags == nil {
		input.Tags = []string{}
	}
	var task model.Task
	err := c.doProtected(ctx, request{
		op:     "create_task",
		method: http.MethodPost,
		path:   tasksPath(userID),
		body:   input,
	}, &task)
	return task, err
}

func (c *Client) GetTask(ctx context.Context, userID string, taskID int64) (model.Task, error) {
	if userID == "" {
		return model.Task{}, ErrUserIDRequired
	}
	var task model.Task
	err := c.doProtected(ctx, request{
		op:     "get_task",
		method: http.MethodGet,
		path:   taskPath(userID, taskID),
	}, &task)
	return task, err
}

func (c *Client) UpdateTask(ctx context.Context, userID string, taskID int64, input model.TaskUpdate) (model.Task, error) {
	if userID == "" {
		return model.Task{}, ErrUserIDRequired
	}
	var task model.Task
	err := c.doProtected(ctx, request{
		op:     "update_task",
		method: http.MethodPut,
		path:   taskPath(userID, taskID),
		body:   input,
	}, &task)
	return task, err
}

func (c *Client) DeleteTask(ctx context.Context, userID string, taskID int64) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	return c.doProtected(ctx, request{
		op:     "delete_task",
		method: http.MethodDelete,
		path:   taskPath(userID, taskID),
	}, nil)
}

func (c *Client) ToggleTask(ctx context.Context, userID string, taskID int64) (model.Task, error) {
	if userID == "" {
		return model.Task{}, ErrUserIDRequired
	}
	var task model.Task
	err := c.doProtected(ctx, request{
		op:     "toggle_task",
		method: http.MethodPatch,
		path:   taskPath(userID, taskID) + "/complete",
	}, &task)
	return task, err
}
