// Package render formats tasks for terminal output.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

// Renderer styles output for one writer. Colors are dropped when the writer
// is not a terminal.
type Renderer struct {
	high      lipgloss.Style
	medium    lipgloss.Style
	low       lipgloss.Style
	tag       lipgloss.Style
	done      lipgloss.Style
	title     lipgloss.Style
	doneTitle lipgloss.Style
	muted     lipgloss.Style
}

func New(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	return &Renderer{
		high:      r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		medium:    r.NewStyle().Foreground(lipgloss.Color("11")),
		low:       r.NewStyle().Foreground(lipgloss.Color("10")),
		tag:       r.NewStyle().Foreground(lipgloss.Color("14")),
		done:      r.NewStyle().Foreground(lipgloss.Color("10")),
		title:     r.NewStyle().Bold(true),
		doneTitle: r.NewStyle().Strikethrough(true).Faint(true),
		muted:     r.NewStyle().Faint(true),
	}
}

func (r *Renderer) PriorityBadge(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return r.high.Render("! high")
	case model.PriorityLow:
		return r.low.Render("- low")
	default:
		return r.medium.Render("* medium")
	}
}

func (r *Renderer) TagChips(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	chips := make([]string, 0, len(tags))
	for _, tag := range tags {
		chips = append(chips, r.tag.Render("#"+tag))
	}
	return strings.Join(chips, " ")
}

func (r *Renderer) CheckMark(completed bool) string {
	if completed {
		return r.done.Render("[x]")
	}
	return "[ ]"
}

// TaskLine is the one-line summary used in lists.
func (r *Renderer) TaskLine(task model.Task) string {
	title := r.title.Render(task.Title)
	if task.Completed {
		title = r.doneTitle.Render(task.Title)
	}
	parts := []string{
		r.CheckMark(task.Completed),
		r.muted.Render(fmt.Sprintf("%4d", task.ID)),
		title,
		r.PriorityBadge(task.Priority),
	}
	if chips := r.TagChips(task.Tags); chips != "" {
		parts = append(parts, chips)
	}
	return strings.Join(parts, "  ")
}

func (r *Renderer) TaskDetail(task model.Task) string {
	status := "pending"
	if task.Completed {
		status = "completed"
	}
	tags := r.TagChips(task.Tags)
	if tags == "" {
		tags = r.muted.Render("no tags")
	}
	lines := []string{
		r.title.Render(task.Title),
		fmt.Sprintf("ID:       %d", task.ID),
		fmt.Sprintf("Status:   %s %s", r.CheckMark(task.Completed), status),
		fmt.Sprintf("Priority: %s", r.PriorityBadge(task.Priority)),
		fmt.Sprintf("Tags:     %s", tags),
		fmt.Sprintf("Created:  %s", formatTime(task.CreatedAt)),
		fmt.Sprintf("Updated:  %s", formatTime(task.UpdatedAt)),
	}
	if description := task.DescriptionText(); description != "" {
		lines = append(lines, "", description)
	}
	return strings.Join(lines, "\n")
}

// WriteList writes one TaskLine per task, or a placeholder for an empty list.
func (r *Renderer) WriteList(w io.Writer, tasks []model.Task, query model.Query) error {
	if len(tasks) == 0 {
		message := "No tasks yet."
		if !query.IsDefault() {
			message = "No tasks match the current filters."
		}
		_, err := fmt.Fprintln(w, r.muted.Render(message))
		return err
	}
	for _, task := range tasks {
		if _, err := fmt.Fprintln(w, r.TaskLine(task)); err != nil {
			return err
		}
	}
	return nil
}

// QuerySummary describes the active filters, or "" for the default query.
func QuerySummary(q model.Query) string {
	q = q.Normalize()
	if q.IsDefault() {
		return ""
	}
	var parts []string
	if q.Search != "" {
		parts = append(parts, fmt.Sprintf("search %q", q.Search))
	}
	if q.Status != model.StatusAny {
		parts = append(parts, "status "+q.Status.Label())
	}
	if q.Priority != model.PriorityAny {
		parts = append(parts, "priority "+q.Priority.Label())
	}
	if q.Tag != "" {
		parts = append(parts, "tag #"+q.Tag)
	}
	if q.Sort != "" {
		parts = append(parts, "sorted by "+q.Sort.Label())
	}
	return strings.Join(parts, ", ")
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "n/a"
	}
	return ts.Format("2006-01-02 15:04")
}
