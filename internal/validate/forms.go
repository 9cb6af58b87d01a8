package validate

import (
	"fmt"
	"strings"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

// TaskForm is raw form input. Surrounding whitespace is not significant.
type TaskForm struct {
	Title       string
	Description string
	Priority    model.Priority
	Tags        []string
}

func (f TaskForm) normalize() TaskForm {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	if f.Priority == "" {
		f.Priority = model.PriorityMedium
	}
	tags := make([]string, 0, len(f.Tags))
	for _, tag := range f.Tags {
		tags = append(tags, strings.TrimSpace(tag))
	}
	f.Tags = tags
	return f
}

func (f TaskForm) description() *string {
	if f.Description == "" {
		return nil
	}
	d := f.Description
	return &d
}

// Create returns the payload for a new task or the first form error.
func (f TaskForm) Create() (model.TaskCreate, error) {
	f = f.normalize()
	input := model.TaskCreate{
		Title:       f.Title,
		Description: f.description(),
		Priority:    f.Priority,
		Tags:        f.Tags,
	}
	if err := CheckCreate(input); err != nil {
		return model.TaskCreate{}, err
	}
	return input, nil
}

// Update returns a full-field update. An emptied description is sent as ""
// so the server clears it.
func (f TaskForm) Update() (model.TaskUpdate, error) {
	f = f.normalize()
	title := f.Title
	description := f.Description
	priority := f.Priority
	tags := f.Tags
	input := model.TaskUpdate{
		Title:       &title,
		Description: &description,
		Priority:    &priority,
		Tags:        &tags,
	}
	if title == "" {
		return model.TaskUpdate{}, &Error{Field: "title", Message: MsgTitleRequired}
	}
	if err := CheckUpdate(input); err != nil {
		return model.TaskUpdate{}, err
	}
	return input, nil
}

// AddTag appends tag to tags under the form's rules: trimmed, non-empty,
// at most 50 characters, no duplicates, at most 20 tags.
func AddTag(tags []string, tag string) ([]string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" || len([]rune(tag)) > model.MaxTagLength {
		return tags, &Error{Field: "tags", Message: MsgTagLength}
	}
	for _, existing := range tags {
		if existing == tag {
			return tags, &Error{Field: "tags", Message: fmt.Sprintf(msgDuplicateTagPattern, tag)}
		}
	}
	if len(tags) >= model.MaxTags {
		return tags, &Error{Field: "tags", Message: MsgTooManyTags}
	}
	out := make([]string, len(tags), len(tags)+1)
	copy(out, tags)
	return append(out, tag), nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func credentialMessage(field, kw string, _ any) string {
	if field == "password" {
		return MsgPasswordTooShort
	}
	return MsgEmailInvalid
}

// Signup checks the sign-up form. A confirmation mismatch is reported before
// anything else.
func Signup(email, password, confirm string) error {
	if password != confirm {
		return &Error{Field: "confirm", Message: MsgPasswordsMismatch}
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return &Error{Field: "email", Message: MsgEmailRequired}
	}
	return check("credentials.json", credentials{Email: email, Password: password},
		[]string{"password", "email"}, credentialMessage)
}

func Login(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return &Error{Field: "email", Message: MsgEmailRequired}
	}
	if password == "" {
		return &Error{Field: "password", Message: MsgPasswordRequired}
	}
	return nil
}
