// Package validate checks task and account forms before anything is sent to
// the server. Messages are written for display next to the form.
package validate

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	MsgTitleRequired       = "Title is required"
	MsgTitleTooLong        = "Title must be 200 characters or less"
	MsgDescriptionTooLong  = "Description must be 1000 characters or less"
	MsgPriorityInvalid     = "Priority must be high, medium, or low"
	MsgTagLength           = "Each tag must be 1-50 characters"
	MsgTooManyTags         = "A task can have at most 20 tags"
	MsgPasswordsMismatch   = "Passwords do not match"
	MsgPasswordTooShort    = "Password must be at least 8 characters"
	MsgEmailInvalid        = "Enter a valid email address"
	MsgEmailRequired       = "Email is required"
	MsgPasswordRequired    = "Password is required"
	msgDuplicateTagPattern = "Duplicate tag: %s"
)

// Error is a client-side rejection. It is never sent to the server.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	compileOnce sync.Once
	compileErr  error
	schemas     = map[string]*jsonschema.Schema{}
)

func schema(name string) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		names := []string{"task_create.json", "task_update.json", "credentials.json"}
		for _, n := range names {
			data, err := schemaFS.ReadFile("schemas/" + n)
			if err != nil {
				compileErr = fmt.Errorf("read schema %s: %w", n, err)
				return
			}
			if err := compiler.AddResource(n, bytes.NewReader(data)); err != nil {
				compileErr = fmt.Errorf("add schema %s: %w", n, err)
				return
			}
		}
		for _, n := range names {
			compiled, err := compiler.Compile(n)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", n, err)
				return
			}
			schemas[n] = compiled
		}
	})
	if compileErr != nil {
		return nil, compileErr
	}
	return schemas[name], nil
}

// check validates v against the named schema and returns the first failure in
// fieldOrder.
func check(name string, v any, fieldOrder []string, messageFor func(field, keyword string, v any) string) error {
	s, err := schema(name)
	if err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal for validation: %w", err)
	}
	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("unmarshal for validation: %w", err)
	}

	err = s.Validate(obj)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}

	var leaves []*jsonschema.ValidationError
	collectSchemaErrors(&leaves, ve)
	if len(leaves) == 0 {
		return &Error{Message: ve.Message}
	}
	for _, field := range fieldOrder {
		for _, leaf := range leaves {
			if topField(leaf.InstanceLocation) == field {
				return &Error{Field: field, Message: messageFor(field, keyword(leaf.KeywordLocation), v)}
			}
		}
	}
	first := leaves[0]
	return &Error{Field: topField(first.InstanceLocation), Message: first.Message}
}

func collectSchemaErrors(out *[]*jsonschema.ValidationError, err *jsonschema.ValidationError) {
	if err == nil {
		return
	}
	if len(err.Causes) == 0 {
		*out = append(*out, err)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(out, cause)
	}
}

// topField turns "/tags/3" into "tags".
func topField(ptr string) string {
	ptr = strings.TrimPrefix(strings.TrimPrefix(ptr, "#"), "/")
	if i := strings.Index(ptr, "/"); i >= 0 {
		return ptr[:i]
	}
	return ptr
}

func keyword(location string) string {
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}

func taskMessage(field, kw string, v any) string {
	switch field {
	case "title":
		if kw == "maxLength" {
			return MsgTitleTooLong
		}
		return MsgTitleRequired
	case "description":
		return MsgDescriptionTooLong
	case "priority":
		return MsgPriorityInvalid
	case "tags":
		switch kw {
		case "maxItems":
			return MsgTooManyTags
		case "uniqueItems":
			if dup := firstDuplicate(tagsOf(v)); dup != "" {
				return fmt.Sprintf(msgDuplicateTagPattern, dup)
			}
		}
		return MsgTagLength
	}
	return "Invalid " + field
}

func tagsOf(v any) []string {
	switch t := v.(type) {
	case model.TaskCreate:
		return t.Tags
	case model.TaskUpdate:
		if t.Tags != nil {
			return *t.Tags
		}
	}
	return nil
}

func firstDuplicate(tags []string) string {
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			return tag
		}
		seen[tag] = struct{}{}
	}
	return ""
}

var taskFieldOrder = []string{"title", "description", "priority", "tags"}

// CheckCreate validates a create payload as the server will see it.
func CheckCreate(input model.TaskCreate) error {
	if input.Tags == nil {
		input.Tags = []string{}
	}
	return check("task_create.json", input, taskFieldOrder, taskMessage)
}

// CheckUpdate validates only the fields present in a partial update.
func CheckUpdate(input model.TaskUpdate) error {
	return check("task_update.json", input, taskFieldOrder, taskMessage)
}
