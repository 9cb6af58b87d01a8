package tui

import (
	"strings"

	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/validate"
)

type formField struct {
	Label  string
	Value  string
	Secret bool
}

func (f formField) display() string {
	if f.Secret {
		return strings.Repeat("*", len([]rune(f.Value)))
	}
	return f.Value
}

const (
	fieldTitle = iota
	fieldDescription
	fieldPriority
	fieldTags
)

func buildTaskFormFields(task *model.Task) []formField {
	fields := []formField{
		{Label: "Title"},
		{Label: "Description"},
		{Label: "Priority (space/←→)"},
		{Label: "Tags (comma separated)"},
	}

	if task == nil {
		fields[fieldPriority].Value = string(model.PriorityMedium)
		return fields
	}

	fields[fieldTitle].Value = task.Title
	fields[fieldDescription].Value = task.DescriptionText()
	fields[fieldPriority].Value = string(task.Priority)
	fields[fieldTags].Value = joinTags(task.Tags)
	return fields
}

func taskFormFromFields(fields []formField) validate.TaskForm {
	return validate.TaskForm{
		Title:       fields[fieldTitle].Value,
		Description: fields[fieldDescription].Value,
		Priority:    model.Priority(strings.TrimSpace(fields[fieldPriority].Value)),
		Tags:        parseTags(fields[fieldTags].Value),
	}
}

const (
	fieldEmail = iota
	fieldPassword
	fieldConfirm
	fieldName
)

func buildAuthFields(signup bool, email string) []formField {
	fields := []formField{
		{Label: "Email", Value: email},
		{Label: "Password", Secret: true},
	}
	if signup {
		fields = append(fields,
			formField{Label: "Confirm password", Secret: true},
			formField{Label: "Name (optional)"},
		)
	}
	return fields
}

func isPriorityField(label string) bool {
	return strings.HasPrefix(label, "Priority")
}

func nextPriority(current string) string {
	return cyclePriority(current, 1)
}

func prevPriority(current string) string {
	return cyclePriority(current, -1)
}

func cyclePriority(current string, delta int) string {
	order := model.Priorities
	value := model.Priority(strings.TrimSpace(strings.ToLower(current)))
	index := 1
	for i, p := range order {
		if p == value {
			index = i
			break
		}
	}
	index = (index + delta + len(order)) % len(order)
	return string(order[index])
}

// parseTags splits on commas and drops empty entries. Duplicates are kept so
// validation can report them.
func parseTags(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}

func joinTags(tags []string) string {
	return strings.Join(tags, ", ")
}
