package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/render"
	"github.com/Joseda-hg/lazytodo/internal/session"
	"github.com/Joseda-hg/lazytodo/internal/tasksync"
	"github.com/Joseda-hg/lazytodo/internal/tui"
	"github.com/Joseda-hg/lazytodo/internal/validate"
)

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("lazytodo "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) tuiCommand(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	ui := tui.New(a.sessions, a.client,
		tui.WithLogger(a.logger.WithPrefix("tui")),
		tui.WithTimeout(a.cfg.RequestTimeout.Duration),
	)
	a.navigator.route(ui.SignIn)
	defer a.navigator.route(nil)
	return ui.Run()
}

func (a *app) loginCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("login")
	emailFlag := fs.String("email", "", "account email")
	passwordFlag := fs.String("password", "", "account password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	email, err := a.valueOrPrompt(*emailFlag, "Email: ", false)
	if err != nil {
		return err
	}
	password, err := a.valueOrPrompt(*passwordFlag, "Password: ", true)
	if err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if err := validate.Login(email, password); err != nil {
		return err
	}

	s, err := a.sessions.Login(ctx, email, password)
	if err != nil {
		return fail(err, "Login failed")
	}
	fmt.Fprintf(a.stdout, "Signed in as %s\n", s.User.DisplayName())
	return nil
}

func (a *app) signupCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("signup")
	emailFlag := fs.String("email", "", "account email")
	passwordFlag := fs.String("password", "", "account password (prompted when empty)")
	confirmFlag := fs.String("confirm", "", "password confirmation (defaults to -password)")
	nameFlag := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	email, err := a.valueOrPrompt(*emailFlag, "Email: ", false)
	if err != nil {
		return err
	}
	password := *passwordFlag
	confirm := *confirmFlag
	if password == "" {
		if password, err = a.readSecret("Password: "); err != nil {
			return err
		}
		if confirm, err = a.valueOrPrompt(confirm, "Confirm password: ", true); err != nil {
			return err
		}
	} else if confirm == "" {
		confirm = password
	}
	email = strings.TrimSpace(email)
	if err := validate.Signup(email, password, confirm); err != nil {
		return err
	}

	var name *string
	if trimmed := strings.TrimSpace(*nameFlag); trimmed != "" {
		name = &trimmed
	}
	s, err := a.sessions.Signup(ctx, email, password, name)
	if err != nil {
		return fail(err, "Signup failed")
	}
	fmt.Fprintf(a.stdout, "Account created. Signed in as %s\n", s.User.DisplayName())
	return nil
}

func (a *app) logoutCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("logout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.navigator.route(nil)
	a.sessions.Logout(ctx)
	fmt.Fprintln(a.stdout, "Signed out.")
	return nil
}

func (a *app) whoamiCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("whoami")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := a.requireSession(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s <%s>\n", s.User.DisplayName(), s.User.Email)
	fmt.Fprintf(a.stdout, "User ID: %s\n", s.User.ID)
	fmt.Fprintf(a.stdout, "Server: %s\n", a.client.BaseURL())
	if !s.ExpiresAt.IsZero() {
		fmt.Fprintf(a.stdout, "Session expires: %s\n", s.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

// requireSession exchanges the stored credential for a session.
func (a *app) requireSession(ctx context.Context) (model.Session, error) {
	state := a.sessions.Init(ctx)
	if auth, ok := state.(session.Authenticated); ok {
		return auth.Session, nil
	}
	return model.Session{}, errNotSignedIn
}

func (a *app) listCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("list")
	search := fs.String("search", "", "match title or description")
	status := fs.String("status", "", "pending|completed")
	priority := fs.String("priority", "", "high|medium|low")
	tag := fs.String("tag", "", "only tasks with this tag")
	sort := fs.String("sort", "", "date|alpha|priority")
	if err := fs.Parse(args); err != nil {
		return err
	}

	query, err := parseListQuery(*search, *status, *priority, *tag, *sort)
	if err != nil {
		return err
	}
	s, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	list := tasksync.New(a.client, tasksync.WithLogger(a.logger.WithPrefix("tasks")))
	if err := list.Bind(ctx, s.User.ID, query); err != nil {
		return fail(err, "Failed to load tasks")
	}
	if summary := render.QuerySummary(query); summary != "" {
		fmt.Fprintf(a.stdout, "Filters: %s\n", summary)
	}
	return a.render.WriteList(a.stdout, list.Snapshot().Tasks, query)
}

func parseListQuery(search, status, priority, tag, sort string) (model.Query, error) {
	q := model.Query{
		Search:   search,
		Status:   model.StatusFilter(strings.ToLower(strings.TrimSpace(status))),
		Priority: model.PriorityFilter(strings.ToLower(strings.TrimSpace(priority))),
		Tag:      tag,
		Sort:     model.SortOrder(strings.ToLower(strings.TrimSpace(sort))),
	}
	if q.Status == "all" {
		q.Status = model.StatusAny
	}
	if q.Priority == "all" {
		q.Priority = model.PriorityAny
	}
	if !contains(model.StatusFilters, q.Status) {
		return model.Query{}, fmt.Errorf("invalid -status %q (pending|completed)", status)
	}
	if !contains(model.PriorityFilters, q.Priority) {
		return model.Query{}, fmt.Errorf("invalid -priority %q (high|medium|low)", priority)
	}
	if q.Sort != "" && !contains(model.SortOrders, q.Sort) {
		return model.Query{}, fmt.Errorf("invalid -sort %q (date|alpha|priority)", sort)
	}
	return q.Normalize(), nil
}

func contains[T comparable](values []T, value T) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func (a *app) addCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("add")
	description := fs.String("description", "", "task description")
	priority := fs.String("priority", string(model.PriorityMedium), "high|medium|low")
	tags := fs.String("tags", "", "comma separated tags")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tagList, err := splitTags(*tags)
	if err != nil {
		return err
	}
	form := validate.TaskForm{
		Title:       strings.Join(fs.Args(), " "),
		Description: *description,
		Priority:    model.Priority(strings.ToLower(strings.TrimSpace(*priority))),
		Tags:        tagList,
	}
	input, err := form.Create()
	if err != nil {
		return err
	}
	s, err := a.requireSession(ctx)
	if err != nil {
		return err
	}
	task, err := a.client.CreateTask(ctx, s.User.ID, input)
	if err != nil {
		return fail(err, "Failed to create task")
	}
	fmt.Fprintln(a.stdout, a.render.TaskLine(task))
	return nil
}

// editCommand sends only the flags that were given.
func (a *app) editCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("edit")
	title := fs.String("title", "", "new title")
	description := fs.String("description", "", "new description (empty clears it)")
	priority := fs.String("priority", "", "high|medium|low")
	tags := fs.String("tags", "", "comma separated tags (empty clears them)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	taskID, err := parseTaskID(fs.Args())
	if err != nil {
		return err
	}

	var input model.TaskUpdate
	var tagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			value := strings.TrimSpace(*title)
			input.Title = &value
		case "description":
			value := strings.TrimSpace(*description)
			input.Description = &value
		case "priority":
			value := model.Priority(strings.ToLower(strings.TrimSpace(*priority)))
			input.Priority = &value
		case "tags":
			value, err := splitTags(*tags)
			tagErr = err
			input.Tags = &value
		}
	})
	if tagErr != nil {
		return tagErr
	}
	if input == (model.TaskUpdate{}) {
		return errors.New("nothing to change, pass -title, -description, -priority or -tags")
	}
	if input.Title != nil && *input.Title == "" {
		return &validate.Error{Field: "title", Message: validate.MsgTitleRequired}
	}
	if err := validate.CheckUpdate(input); err != nil {
		return err
	}

	s, err := a.requireSession(ctx)
	if err != nil {
		return err
	}
	task, err := a.client.UpdateTask(ctx, s.User.ID, taskID, input)
	if err != nil {
		return fail(err, "Failed to update task")
	}
	fmt.Fprintln(a.stdout, a.render.TaskLine(task))
	return nil
}

func (a *app) toggleCommand(ctx context.Context, args []string) error {
	taskID, err := parseTaskID(args)
	if err != nil {
		return err
	}
	s, err := a.requireSession(ctx)
	if err != nil {
		return err
	}
	task, err := a.client.ToggleTask(ctx, s.User.ID, taskID)
	if err != nil {
		return fail(err, "Failed to toggle task completion")
	}
	fmt.Fprintln(a.stdout, a.render.TaskLine(task))
	return nil
}

func (a *app) deleteCommand(ctx context.Context, args []string) error {
	taskID, err := parseTaskID(args)
	if err != nil {
		return err
	}
	s, err := a.requireSession(ctx)
	if err != nil {
		return err
	}
	if err := a.client.DeleteTask(ctx, s.User.ID, taskID); err != nil {
		return fail(err, "Failed to delete task")
	}
	fmt.Fprintf(a.stdout, "Deleted task %d\n", taskID)
	return nil
}

func (a *app) showCommand(ctx context.Context, args []string) error {
	taskID, err := parseTaskID(args)
	if err != nil {
		return err
	}
	s, err := a.requireSession(ctx)
	if err != nil {
		return err
	}
	task, err := a.client.GetTask(ctx, s.User.ID, taskID)
	if err != nil {
		return fail(err, "Failed to load task")
	}
	fmt.Fprintln(a.stdout, a.render.TaskDetail(task))
	return nil
}

func parseTaskID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one task id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", args[0])
	}
	return id, nil
}

// splitTags reads a comma separated -tags value. Blank entries are skipped.
func splitTags(value string) ([]string, error) {
	tags := []string{}
	for _, part := range strings.Split(value, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		var err error
		if tags, err = validate.AddTag(tags, part); err != nil {
			return nil, err
		}
	}
	return tags, nil
}

// failure prints the user-facing message but keeps err in the chain.
type failure struct {
	message string
	err     error
}

func (f *failure) Error() string { return f.message }
func (f *failure) Unwrap() error { return f.err }

func fail(err error, fallback string) error {
	return &failure{message: api.Message(err, fallback), err: err}
}
