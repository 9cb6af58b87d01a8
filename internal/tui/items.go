package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

type tagCountEntry struct {
	Name  string
	Count int
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return "no tags"
	}
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, "#"+tag)
	}
	return strings.Join(parts, " ")
}

func priorityMarker(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "!"
	case model.PriorityLow:
		return "-"
	default:
		return "*"
	}
}

func formatTaskSummary(task model.Task) string {
	check := "[ ]"
	if task.Completed {
		check = "[x]"
	}
	summary := fmt.Sprintf("%s %s %s", check, priorityMarker(task.Priority), task.Title)
	if len(task.Tags) > 0 {
		summary += " | " + formatTags(task.Tags)
	}
	return summary
}

// splitTasks keeps the server's order within each group.
func splitTasks(tasks []model.Task) (pending, completed []model.Task) {
	pending = make([]model.Task, 0, len(tasks))
	completed = make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Completed {
			completed = append(completed, task)
		} else {
			pending = append(pending, task)
		}
	}
	return pending, completed
}

// buildTagEntries counts tags across tasks, most used first. The active tag
// stays listed even when no loaded task carries it, so it can be cleared.
func buildTagEntries(tasks []model.Task, activeTag string) []tagCountEntry {
	counts := make(map[string]int)
	for _, task := range tasks {
		for _, tag := range task.Tags {
			counts[tag]++
		}
	}
	if activeTag != "" {
		if _, ok := counts[activeTag]; !ok {
			counts[activeTag] = 0
		}
	}

	entries := make([]tagCountEntry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, tagCountEntry{Name: name, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count == entries[j].Count {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Count > entries[j].Count
	})
	return entries
}

func taskIndex(tasks []model.Task, id int64) int {
	for i, task := range tasks {
		if task.ID == id {
			return i
		}
	}
	return -1
}
