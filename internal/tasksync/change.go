package tasksync

import "github.com/Joseda-hg/lazytodo/internal/model"

type changeKind int

const (
	// upsertTask appends, or replaces when the id is already present.
	upsertTask changeKind = iota
	replaceTask
	removeTask
)

type change struct {
	kind changeKind
	task model.Task
	id   int64
}

// apply never mutates tasks in place.
func (c change) apply(tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks)+1)
	switch c.kind {
	case removeTask:
		for _, task := range tasks {
			if task.ID != c.id {
				out = append(out, task)
			}
		}
	default:
		found := false
		for _, task := range tasks {
			if task.ID == c.task.ID {
				out = append(out, c.task)
				found = true
				continue
			}
			out = append(out, task)
		}
		if !found && c.kind == upsertTask {
			out = append(out, c.task)
		}
	}
	return out
}
