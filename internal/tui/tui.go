package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/session"
	"github.com/Joseda-hg/lazytodo/internal/tasksync"
	"github.com/Joseda-hg/lazytodo/internal/validate"
)

const (
	viewHeader    = "header"
	viewFooter    = "footer"
	viewPending   = "pending"
	viewCompleted = "completed"
	viewTags      = "tags"
	viewDetails   = "details"
	viewSearch    = "search"
	viewForm      = "form"
	viewAuth      = "auth"
	viewHelp      = "help"
)

const defaultTimeout = 30 * time.Second

type UI struct {
	session *session.Manager
	tasks   *tasksync.List
	gui     *gocui.Gui
	logger  *log.Logger
	timeout time.Duration

	unsubscribe func()

	state    session.State
	query    model.Query
	snapshot tasksync.Snapshot

	pending   []model.Task
	completed []model.Task
	tags      []tagCountEntry

	selectedPending   int
	selectedCompleted int
	selectedTags      int
	focus             string

	auth         *authState
	form         *formState
	formEditor   *formEditor
	searchActive bool
	helpActive   bool
	busy         bool
	status       string
}

type fieldSet struct {
	fields []formField
	index  int
	err    string
}

type formState struct {
	fieldSet
	taskID int64
}

type authState struct {
	fieldSet
	signup bool
}

type formEditor struct {
	ui *UI
}

type Option func(*UI)

func WithLogger(logger *log.Logger) Option {
	return func(u *UI) { u.logger = logger }
}

// WithTimeout bounds every network call made from the dashboard.
func WithTimeout(timeout time.Duration) Option {
	return func(u *UI) {
		if timeout > 0 {
			u.timeout = timeout
		}
	}
}

// New wires the dashboard to the session and builds its task list. The UI
// follows session transitions until Close.
func New(sessions *session.Manager, tasksAPI tasksync.TasksAPI, opts ...Option) *UI {
	ui := &UI{
		session: sessions,
		logger:  log.New(io.Discard),
		timeout: defaultTimeout,
		focus:   viewPending,
		state:   sessions.State(),
	}
	for _, opt := range opts {
		opt(ui)
	}
	ui.formEditor = &formEditor{ui: ui}
	ui.tasks = tasksync.New(tasksAPI,
		tasksync.WithLogger(ui.logger),
		tasksync.WithOnChange(func(s tasksync.Snapshot) {
			ui.post(func() { ui.applySnapshot(s) })
		}),
	)
	ui.unsubscribe = sessions.Subscribe(func(s session.State) {
		ui.post(func() { ui.onSession(s) })
	})
	return ui
}

func (u *UI) Close() {
	if u.unsubscribe != nil {
		u.unsubscribe()
		u.unsubscribe = nil
	}
}

// SignIn routes the dashboard to the sign-in form. It is the navigator for
// the API client and the session manager and may be called from any
// goroutine.
func (u *UI) SignIn() {
	if _, ok := u.session.State().(session.Authenticated); ok {
		u.session.Invalidate(context.Background())
	}
	u.post(func() {
		if u.auth == nil {
			u.showAuth(false)
		}
		u.status = "Please sign in"
	})
}

func (u *UI) Run() error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()
	defer u.Close()

	u.gui = gui
	gui.Mouse = true
	gui.SetManagerFunc(u.layout)
	if err := u.bindKeys(gui); err != nil {
		return err
	}
	u.start()

	if err := gui.MainLoop(); err != nil && !goerrors.Is(err, gocui.ErrQuit) {
		return err
	}
	return nil
}

// start restores the stored session. The session listener takes it from
// there.
func (u *UI) start() {
	u.run(func(ctx context.Context) error {
		u.session.Init(ctx)
		return nil
	}, nil)
}

// run executes work off the main loop and hands its error to done on the
// main loop. Without a gui both run inline.
func (u *UI) run(work func(ctx context.Context) error, done func(error)) {
	exec := func() {
		ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
		defer cancel()
		err := work(ctx)
		if done != nil {
			u.post(func() { done(err) })
		}
	}
	if u.gui == nil {
		exec()
		return
	}
	go exec()
}

func (u *UI) post(fn func()) {
	if u.gui == nil {
		fn()
		return
	}
	u.gui.Update(func(*gocui.Gui) error {
		fn()
		return nil
	})
}

func (u *UI) onSession(s session.State) {
	u.state = s
	switch st := s.(type) {
	case session.Authenticated:
		u.auth = nil
		u.status = ""
		userID := st.Session.User.ID
		query := u.query
		u.run(func(ctx context.Context) error {
			return u.tasks.Bind(ctx, userID, query)
		}, nil)
	case session.Unauthenticated:
		u.form = nil
		u.searchActive = false
		if u.auth == nil {
			u.showAuth(false)
		}
		u.run(func(ctx context.Context) error {
			return u.tasks.SetUser(ctx, "")
		}, nil)
	case session.Failed:
		if u.auth != nil {
			u.auth.err = st.Message
		}
	}
}

func (u *UI) applySnapshot(s tasksync.Snapshot) {
	u.snapshot = s
	u.pending, u.completed = splitTasks(s.Tasks)
	u.tags = buildTagEntries(s.Tasks, u.query.Tag)

	if u.selectedPending >= len(u.pending) {
		u.selectedPending = max(len(u.pending)-1, 0)
	}
	if u.selectedCompleted >= len(u.completed) {
		u.selectedCompleted = max(len(u.completed)-1, 0)
	}
	if u.selectedTags >= len(u.tags) {
		u.selectedTags = max(len(u.tags)-1, 0)
	}
}

func (u *UI) showAuth(signup bool) {
	if u.auth != nil && u.auth.signup == signup {
		return
	}
	email := ""
	if u.auth != nil {
		email = u.auth.fields[fieldEmail].Value
	}
	u.auth = &authState{signup: signup, fieldSet: fieldSet{fields: buildAuthFields(signup, email)}}
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	if err := gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, u.quit); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'q', gocui.ModNone, u.quitKey); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'r', gocui.ModNone, u.reload); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'g', gocui.ModNone, u.clearFilters); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'f', gocui.ModNone, u.cycleStatusFilter); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'p', gocui.ModNone, u.cyclePriorityFilter); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'o', gocui.ModNone, u.cycleSort); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'a', gocui.ModNone, u.addTask); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'e', gocui.ModNone, u.editTask); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'd', gocui.ModNone, u.deleteTask); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'x', gocui.ModNone, u.toggleTask); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'L', gocui.ModNone, u.logout); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '/', gocui.ModNone, u.startSearch); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '?', gocui.ModNone, u.toggleHelp); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", gocui.KeyTab, gocui.ModNone, u.switchFocus); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '1', gocui.ModNone, u.focusPending); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '2', gocui.ModNone, u.focusCompleted); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '3', gocui.ModNone, u.focusTags); err != nil {
		return err
	}
	for _, name := range []string{viewPending, viewCompleted, viewTags} {
		if err := gui.SetKeybinding(name, gocui.KeyArrowDown, gocui.ModNone, u.moveDown); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, 'j', gocui.ModNone, u.moveDown); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, gocui.KeyArrowUp, gocui.ModNone, u.moveUp); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, 'k', gocui.ModNone, u.moveUp); err != nil {
			return err
		}
	}
	if err := gui.SetKeybinding(viewPending, gocui.KeyEnter, gocui.ModNone, u.toggleTask); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewCompleted, gocui.KeyEnter, gocui.ModNone, u.toggleTask); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewTags, gocui.KeySpace, gocui.ModNone, u.toggleTagFilter); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewTags, gocui.KeyEnter, gocui.ModNone, u.toggleTagFilter); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewSearch, gocui.KeyEnter, gocui.ModNone, u.submitSearch); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewSearch, gocui.KeyEsc, gocui.ModNone, u.cancelSearch); err != nil {
		return err
	}
	for _, name := range []string{viewForm, viewAuth} {
		if err := gui.SetKeybinding(name, gocui.KeyTab, gocui.ModNone, u.nextFormField); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, gocui.KeyBacktab, gocui.ModNone, u.prevFormField); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, gocui.KeyArrowDown, gocui.ModNone, u.nextFormField); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, gocui.KeyArrowUp, gocui.ModNone, u.prevFormField); err != nil {
			return err
		}
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyEnter, gocui.ModNone, u.submitForm); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyEsc, gocui.ModNone, u.cancelForm); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewAuth, gocui.KeyEnter, gocui.ModNone, u.submitAuth); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewAuth, gocui.KeyCtrlT, gocui.ModNone, u.toggleAuthMode); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewHelp, gocui.KeyEsc, gocui.ModNone, u.closeHelp); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewHelp, 'q', gocui.ModNone, u.closeHelp); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewHelp, '?', gocui.ModNone, u.closeHelp); err != nil {
		return err
	}
	for _, name := range []string{viewPending, viewCompleted, viewTags} {
		viewName := name
		if err := gui.SetViewClickBinding(&gocui.ViewMouseBinding{ViewName: viewName, Key: gocui.MouseLeft, Handler: func(opts gocui.ViewMouseBindingOpts) error {
			return u.onListClick(gui, viewName, opts)
		}}); err != nil {
			return err
		}
	}
	return u.bindMouseScroll(gui)
}

func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	if maxX <= 0 || maxY <= 0 {
		return nil
	}

	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 0, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	headerView.Frame = false
	headerView.Wrap = true
	headerView.FgColor = gocui.ColorDefault
	u.renderHeader(headerView)

	footerY1 := max(maxY-2, 1)
	footerY0 := max(footerY1-2, 1)
	footerView, err := gui.SetView(viewFooter, 0, footerY0, maxX-1, footerY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Frame = false
	footerView.Wrap = true
	footerView.FgColor = gocui.ColorDefault | gocui.AttrDim
	footerView.BgColor = gocui.ColorDefault
	u.renderFooter(footerView)

	bodyTop := 1
	bodyBottom := footerY0 - 1
	if bodyBottom < bodyTop {
		return nil
	}

	layout := computeLayout(maxX, bodyBottom-bodyTop+1)
	leftX1 := layout.leftWidth - 1
	rightX0 := min(leftX1+1, maxX-1)
	rightX1 := maxX - 1

	pendingY0 := bodyTop
	pendingY1 := pendingY0 + layout.pendingHeight - 1
	completedY0 := pendingY1 + 1
	completedY1 := completedY0 + layout.completedHeight - 1
	tagsY0 := completedY1 + 1
	tagsY1 := bodyBottom

	pendingView, err := gui.SetView(viewPending, 0, pendingY0, leftX1, pendingY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		pendingView.TitleColor = gocui.ColorRed
	}
	pendingView.Title = fmt.Sprintf("1 Pending (%d)", len(u.pending))
	applyViewStyle(pendingView, u.focus == viewPending, true)
	u.renderTaskList(pendingView, u.pending, u.selectedPending, u.focus == viewPending)

	completedView, err := gui.SetView(viewCompleted, 0, completedY0, leftX1, completedY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		completedView.TitleColor = gocui.ColorGreen
	}
	completedView.Title = fmt.Sprintf("2 Completed (%d)", len(u.completed))
	applyViewStyle(completedView, u.focus == viewCompleted, true)
	u.renderTaskList(completedView, u.completed, u.selectedCompleted, u.focus == viewCompleted)

	tagsView, err := gui.SetView(viewTags, 0, tagsY0, leftX1, tagsY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		tagsView.Title = "3 Tags"
		tagsView.TitleColor = gocui.ColorCyan
	}
	applyViewStyle(tagsView, u.focus == viewTags, false)
	u.renderTags(tagsView)

	detailsView, err := gui.SetView(viewDetails, rightX0, bodyTop, rightX1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		detailsView.Title = "Details"
		detailsView.Wrap = true
	}
	applyViewStyle(detailsView, false, false)
	u.renderDetails(detailsView)

	_, _ = gui.SetViewOnTop(viewHeader)
	_, _ = gui.SetViewOnTop(viewFooter)

	if u.auth != nil {
		if err := u.showAuthForm(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewAuth)
	}

	if u.searchActive {
		if err := u.showSearch(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewSearch)
	}

	if u.form != nil {
		if err := u.showForm(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewForm)
	}

	if u.helpActive {
		if err := u.showHelp(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewHelp)
	}

	if current := gui.CurrentView(); current == nil || !u.inputActive() {
		_, _ = gui.SetCurrentView(u.focus)
	}

	gui.Cursor = u.searchActive || u.form != nil || u.auth != nil
	return nil
}

type layout struct {
	leftWidth       int
	pendingHeight   int
	completedHeight int
	tagsHeight      int
}

func computeLayout(width, height int) layout {
	safeWidth := max(width-2, 20)
	safeHeight := max(height, 8)

	leftWidth := safeWidth / 2
	if leftWidth < 30 {
		leftWidth = 30
	}
	if leftWidth > safeWidth-18 {
		leftWidth = safeWidth / 2
	}

	pendingHeight := max(int(float64(safeHeight)*0.5), 4)
	completedHeight := max(int(float64(safeHeight)*0.3), 3)
	tagsHeight := safeHeight - pendingHeight - completedHeight
	if tagsHeight < 3 {
		tagsHeight = 3
		completedHeight = max(safeHeight-pendingHeight-tagsHeight, 3)
	}

	return layout{
		leftWidth:       leftWidth,
		pendingHeight:   pendingHeight,
		completedHeight: completedHeight,
		tagsHeight:      tagsHeight,
	}
}

func (u *UI) renderHeader(view *gocui.View) {
	view.Clear()
	fmt.Fprint(view, u.headerText())
}

func (u *UI) headerText() string {
	search := u.query.Search
	if search == "" {
		search = "type / to search"
	}
	tag := u.query.Tag
	if tag == "" {
		tag = "none"
	}
	header := fmt.Sprintf("lazytodo | %s | Search: %s | Status: %s | Priority: %s | Tag: %s | Sort: %s",
		session.Describe(u.state), search, u.query.Status.Label(), u.query.Priority.Label(), tag, u.query.SortOrder().Label())
	if u.snapshot.Loading || u.busy {
		header += " | loading…"
	}
	return header
}

func (u *UI) renderFooter(view *gocui.View) {
	view.Clear()
	view.SetOrigin(0, 0)
	view.SetCursor(0, 0)

	if u.auth != nil {
		fmt.Fprintln(view, "enter submit | tab next field | ctrl+t switch sign in/sign up | ctrl+c quit")
	} else {
		fmt.Fprintln(view, "a add | e edit | x toggle | d delete | enter toggle | r refresh | L sign out | ? help | q quit")
		fmt.Fprintln(view, "/ search | f status | p priority | o sort | space tag | g clear | tab cycle | 1-3 panes")
	}
	if message := u.footerMessage(); message != "" {
		fmt.Fprint(view, message)
	}
}

func (u *UI) footerMessage() string {
	if u.status != "" {
		return u.status
	}
	return u.snapshot.Message
}

func (u *UI) renderTaskList(view *gocui.View, tasks []model.Task, selected int, focused bool) {
	view.Clear()
	if len(tasks) == 0 && !u.snapshot.Loading && u.auth == nil {
		if u.query.IsDefault() {
			fmt.Fprint(view, "  nothing here")
		} else {
			fmt.Fprint(view, "  no tasks match the filters")
		}
		return
	}
	for i, task := range tasks {
		prefix := " "
		if i == selected {
			if focused {
				prefix = ">"
			} else {
				prefix = "*"
			}
		}
		fmt.Fprintf(view, "%s %s\n", prefix, formatTaskSummary(task))
	}
	if focused {
		view.SetCursor(0, min(selected, len(tasks)-1))
	}
}

func (u *UI) renderTags(view *gocui.View) {
	view.Clear()
	for index, entry := range u.tags {
		prefix := " "
		if index == u.selectedTags {
			prefix = ">"
		}
		marker := " "
		if entry.Name == u.query.Tag {
			marker = "x"
		}
		fmt.Fprintf(view, "%s [%s] %s (%d)\n", prefix, marker, entry.Name, entry.Count)
	}
	if u.focus == viewTags {
		view.SetCursor(0, min(u.selectedTags, len(u.tags)-1))
	}
}

func (u *UI) renderDetails(view *gocui.View) {
	view.Clear()
	fmt.Fprint(view, u.detailsText())
}

func (u *UI) detailsText() string {
	selected := u.selectedTask()
	if selected == nil {
		return "No task selected"
	}

	status := "pending"
	if selected.Completed {
		status = "completed"
	}
	lines := []string{
		selected.Title,
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Priority: %s", selected.Priority),
		fmt.Sprintf("Tags: %s", formatTags(selected.Tags)),
		fmt.Sprintf("Created: %s", selected.CreatedAt.Local().Format("2006-01-02 15:04")),
		fmt.Sprintf("Updated: %s", selected.UpdatedAt.Local().Format("2006-01-02 15:04")),
	}
	if description := selected.DescriptionText(); description != "" {
		lines = append(lines, "", description)
	}
	return strings.Join(lines, "\n")
}

func (u *UI) onListClick(gui *gocui.Gui, viewName string, opts gocui.ViewMouseBindingOpts) error {
	if u.inputActive() {
		return nil
	}
	view, err := gui.View(viewName)
	if err != nil {
		return nil
	}

	_, y0, _, _ := view.Dimensions()
	_, oy := view.Origin()
	row := max(opts.Y-y0-1+oy, 0)

	switch viewName {
	case viewPending:
		u.selectedPending = max(min(row, len(u.pending)-1), 0)
	case viewCompleted:
		u.selectedCompleted = max(min(row, len(u.completed)-1), 0)
	case viewTags:
		u.selectedTags = max(min(row, len(u.tags)-1), 0)
	default:
		return nil
	}
	return u.setFocus(gui, viewName)
}

func (u *UI) bindMouseScroll(gui *gocui.Gui) error {
	views := []string{viewPending, viewCompleted, viewTags, viewDetails}
	for _, name := range views {
		if err := gui.SetKeybinding(name, gocui.MouseWheelUp, gocui.ModNone, u.scrollUp); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, gocui.MouseWheelDown, gocui.ModNone, u.scrollDown); err != nil {
			return err
		}
	}
	return nil
}

func (u *UI) scrollUp(gui *gocui.Gui, view *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if view == nil {
		view = gui.CurrentView()
	}
	if view != nil {
		view.ScrollUp(1)
	}
	return nil
}

func (u *UI) scrollDown(gui *gocui.Gui, view *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if view == nil {
		view = gui.CurrentView()
	}
	if view != nil {
		view.ScrollDown(1)
	}
	return nil
}

func (u *UI) selectedTask() *model.Task {
	switch u.focus {
	case viewCompleted:
		if u.selectedCompleted >= 0 && u.selectedCompleted < len(u.completed) {
			return &u.completed[u.selectedCompleted]
		}
	case viewTags:
		return nil
	default:
		if u.selectedPending >= 0 && u.selectedPending < len(u.pending) {
			return &u.pending[u.selectedPending]
		}
	}
	return nil
}

func (u *UI) switchFocus(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewPending:
		return u.setFocus(gui, viewCompleted)
	case viewCompleted:
		return u.setFocus(gui, viewTags)
	default:
		return u.setFocus(gui, viewPending)
	}
}

func (u *UI) focusPending(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewPending)
}

func (u *UI) focusCompleted(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewCompleted)
}

func (u *UI) focusTags(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewTags)
}

func (u *UI) setFocus(gui *gocui.Gui, name string) error {
	if u.inputActive() {
		return nil
	}
	u.focus = name
	if gui != nil {
		_, _ = gui.SetCurrentView(name)
	}
	return nil
}

func (u *UI) moveDown(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewPending:
		if u.selectedPending < len(u.pending)-1 {
			u.selectedPending++
		}
	case viewCompleted:
		if u.selectedCompleted < len(u.completed)-1 {
			u.selectedCompleted++
		}
	case viewTags:
		if u.selectedTags < len(u.tags)-1 {
			u.selectedTags++
		}
	}
	return nil
}

func (u *UI) moveUp(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewPending:
		if u.selectedPending > 0 {
			u.selectedPending--
		}
	case viewCompleted:
		if u.selectedCompleted > 0 {
			u.selectedCompleted--
		}
	case viewTags:
		if u.selectedTags > 0 {
			u.selectedTags--
		}
	}
	return nil
}

func (u *UI) reload(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.status = ""
	u.run(u.tasks.Refresh, nil)
	return nil
}

// applyQuery binds the list to q. Equal queries do not refetch.
func (u *UI) applyQuery(q model.Query) error {
	u.query = q.Normalize()
	u.status = ""
	query := u.query
	u.run(func(ctx context.Context) error {
		return u.tasks.SetQuery(ctx, query)
	}, nil)
	return nil
}

func (u *UI) clearFilters(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	return u.applyQuery(model.Query{})
}

func (u *UI) cycleStatusFilter(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	q := u.query
	q.Status = model.NextStatusFilter(q.Status)
	return u.applyQuery(q)
}

func (u *UI) cyclePriorityFilter(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	q := u.query
	q.Priority = model.NextPriorityFilter(q.Priority)
	return u.applyQuery(q)
}

func (u *UI) cycleSort(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	q := u.query
	q.Sort = model.NextSortOrder(q.Sort)
	return u.applyQuery(q)
}

func (u *UI) toggleTagFilter(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.focus != viewTags {
		return nil
	}
	if u.selectedTags < 0 || u.selectedTags >= len(u.tags) {
		return nil
	}
	q := u.query
	name := u.tags[u.selectedTags].Name
	if q.Tag == name {
		q.Tag = ""
	} else {
		q.Tag = name
	}
	return u.applyQuery(q)
}

func (u *UI) startSearch(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.searchActive = true
	return nil
}

func (u *UI) showSearch(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(30, maxX/2)
	height := 2
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewSearch, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Search title or description"
		view.Wrap = true
		view.Clear()
		fmt.Fprint(view, u.query.Search)
		view.SetCursor(len([]rune(u.query.Search)), 0)
	}
	view.Editable = true
	view.Editor = gocui.DefaultEditor
	_, _ = gui.SetCurrentView(viewSearch)
	return nil
}

func (u *UI) submitSearch(gui *gocui.Gui, view *gocui.View) error {
	value := ""
	if view != nil {
		value = strings.TrimSpace(view.Buffer())
	}
	u.searchActive = false
	u.closeView(gui, viewSearch)
	q := u.query
	q.Search = value
	return u.applyQuery(q)
}

func (u *UI) cancelSearch(gui *gocui.Gui, _ *gocui.View) error {
	u.searchActive = false
	u.closeView(gui, viewSearch)
	return nil
}

func (u *UI) toggleHelp(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() && !u.helpActive {
		return nil
	}
	u.helpActive = !u.helpActive
	return nil
}

func (u *UI) closeHelp(gui *gocui.Gui, _ *gocui.View) error {
	u.helpActive = false
	u.closeView(gui, viewHelp)
	return nil
}

func (u *UI) showHelp(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := min(24, maxY-2)
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewHelp, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Help"
		view.Wrap = true
	}
	view.Clear()
	fmt.Fprint(view, helpText())
	_, _ = gui.SetCurrentView(viewHelp)
	return nil
}

func (u *UI) closeView(gui *gocui.Gui, name string) {
	if gui == nil {
		return
	}
	_ = gui.DeleteView(name)
	_, _ = gui.SetCurrentView(u.focus)
}

func (u *UI) addTask(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	fields := buildTaskFormFields(nil)
	if u.query.Tag != "" {
		fields[fieldTags].Value = u.query.Tag
	}
	u.form = &formState{fieldSet: fieldSet{fields: fields}}
	return nil
}

func (u *UI) editTask(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	u.form = &formState{taskID: selected.ID, fieldSet: fieldSet{fields: buildTaskFormFields(selected)}}
	return nil
}

func (u *UI) showForm(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := min(10, max(8, maxY/2))
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewForm, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Wrap = true
	}
	if u.form.taskID != 0 {
		view.Title = "Edit Task"
	} else {
		view.Title = "New Task"
	}
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.formEditor
	renderFields(view, &u.form.fieldSet)
	_, _ = gui.SetCurrentView(viewForm)
	return nil
}

func (u *UI) submitForm(gui *gocui.Gui, _ *gocui.View) error {
	if u.form == nil || u.busy {
		return nil
	}
	form := u.form
	input := taskFormFromFields(form.fields)

	var work func(ctx context.Context) error
	fallback := "Failed to create task"
	if form.taskID == 0 {
		create, err := input.Create()
		if err != nil {
			form.err = err.Error()
			return nil
		}
		work = func(ctx context.Context) error {
			_, err := u.tasks.Create(ctx, create)
			return err
		}
	} else {
		update, err := input.Update()
		if err != nil {
			form.err = err.Error()
			return nil
		}
		taskID := form.taskID
		fallback = "Failed to update task"
		work = func(ctx context.Context) error {
			_, err := u.tasks.Update(ctx, taskID, update)
			return err
		}
	}

	form.err = ""
	u.busy = true
	u.run(work, func(err error) {
		u.busy = false
		if err != nil {
			if u.form == form {
				form.err = api.Message(err, fallback)
			}
			return
		}
		if u.form == form {
			u.form = nil
			u.closeView(gui, viewForm)
		}
	})
	return nil
}

func (u *UI) cancelForm(gui *gocui.Gui, _ *gocui.View) error {
	u.form = nil
	u.closeView(gui, viewForm)
	return nil
}

func (u *UI) showAuthForm(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(50, maxX/3)
	height := 9
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewAuth, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Wrap = true
	}
	if u.auth.signup {
		view.Title = "Create account"
	} else {
		view.Title = "Sign in"
	}
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.formEditor
	renderFields(view, &u.auth.fieldSet)
	_, _ = gui.SetViewOnTop(viewAuth)
	_, _ = gui.SetCurrentView(viewAuth)
	return nil
}

func (u *UI) toggleAuthMode(_ *gocui.Gui, _ *gocui.View) error {
	if u.auth == nil || u.busy {
		return nil
	}
	u.showAuth(!u.auth.signup)
	return nil
}

func (u *UI) submitAuth(_ *gocui.Gui, _ *gocui.View) error {
	if u.auth == nil || u.busy {
		return nil
	}
	auth := u.auth
	email := strings.TrimSpace(auth.fields[fieldEmail].Value)
	password := auth.fields[fieldPassword].Value

	var work func(ctx context.Context) error
	fallback := "Login failed"
	if auth.signup {
		if err := validate.Signup(email, password, auth.fields[fieldConfirm].Value); err != nil {
			auth.err = err.Error()
			return nil
		}
		var name *string
		if value := strings.TrimSpace(auth.fields[fieldName].Value); value != "" {
			name = &value
		}
		fallback = "Signup failed"
		work = func(ctx context.Context) error {
			_, err := u.session.Signup(ctx, email, password, name)
			return err
		}
	} else {
		if err := validate.Login(email, password); err != nil {
			auth.err = err.Error()
			return nil
		}
		work = func(ctx context.Context) error {
			_, err := u.session.Login(ctx, email, password)
			return err
		}
	}

	auth.err = ""
	u.status = ""
	u.busy = true
	u.run(work, func(err error) {
		u.busy = false
		if err != nil && u.auth == auth {
			auth.err = api.Message(err, fallback)
		}
	})
	return nil
}

func (u *UI) activeFields() *fieldSet {
	if u.form != nil {
		return &u.form.fieldSet
	}
	if u.auth != nil {
		return &u.auth.fieldSet
	}
	return nil
}

func (u *UI) nextFormField(_ *gocui.Gui, view *gocui.View) error {
	set := u.activeFields()
	if set == nil {
		return nil
	}
	if set.index < len(set.fields)-1 {
		set.index++
	}
	renderFields(view, set)
	return nil
}

func (u *UI) prevFormField(_ *gocui.Gui, view *gocui.View) error {
	set := u.activeFields()
	if set == nil {
		return nil
	}
	if set.index > 0 {
		set.index--
	}
	renderFields(view, set)
	return nil
}

func renderFields(view *gocui.View, set *fieldSet) {
	if set == nil || view == nil {
		return
	}
	view.Clear()
	for index, field := range set.fields {
		prefix := "  "
		if index == set.index {
			prefix = "> "
		}
		fmt.Fprintf(view, "%s%s: %s\n", prefix, field.Label, field.display())
	}
	if set.err != "" {
		fmt.Fprintf(view, "\n  %s\n", set.err)
	}
	current := set.fields[set.index]
	cursorX := len([]rune(current.Label)) + len([]rune(current.display())) + 4
	view.SetCursor(cursorX, set.index)
}

func (e *formEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	ui := e.ui
	if ui == nil || view == nil {
		return false
	}
	set := ui.activeFields()
	if set == nil {
		return false
	}
	field := &set.fields[set.index]

	if isPriorityField(field.Label) {
		switch key {
		case gocui.KeyArrowRight, gocui.KeySpace:
			field.Value = nextPriority(field.Value)
		case gocui.KeyArrowLeft:
			field.Value = prevPriority(field.Value)
		}
		renderFields(view, set)
		return true
	}

	switch key {
	case gocui.KeyBackspace, gocui.KeyBackspace2:
		runes := []rune(field.Value)
		if len(runes) > 0 {
			field.Value = string(runes[:len(runes)-1])
		}
	case gocui.KeySpace:
		field.Value += " "
	case gocui.KeyCtrlU:
		field.Value = ""
	}

	if ch != 0 && ch != '\n' && ch != '\r' && mod == 0 {
		field.Value += string(ch)
	}

	renderFields(view, set)
	return true
}

func (u *UI) toggleTask(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	taskID := selected.ID
	u.status = ""
	u.run(func(ctx context.Context) error {
		_, err := u.tasks.Toggle(ctx, taskID)
		return err
	}, nil)
	return nil
}

func (u *UI) deleteTask(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	taskID := selected.ID
	u.status = ""
	u.run(func(ctx context.Context) error {
		return u.tasks.Delete(ctx, taskID)
	}, nil)
	return nil
}

func (u *UI) logout(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.run(func(ctx context.Context) error {
		u.session.Logout(ctx)
		return nil
	}, nil)
	return nil
}

func (u *UI) inputActive() bool {
	return u.searchActive || u.form != nil || u.helpActive || u.auth != nil
}

func (u *UI) quitKey(gui *gocui.Gui, view *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	return u.quit(gui, view)
}

func (u *UI) quit(_ *gocui.Gui, _ *gocui.View) error {
	return gocui.ErrQuit
}

func helpText() string {
	return strings.Join([]string{
		"Navigation:",
		"  Tab cycle panes | 1 Pending | 2 Completed | 3 Tags",
		"  j/k or arrows move selection",
		"  mouse click to focus/select, wheel to scroll",
		"",
		"Tasks:",
		"  a add | e edit | x or enter toggle completion | d delete",
		"  enter save (form) | tab next field | esc cancel",
		"  space/left/right cycle priority (form)",
		"",
		"Search/Filter:",
		"  / search title and description",
		"  f cycle status | p cycle priority | o cycle sort",
		"  space/enter filter by tag (Tags pane) | g clear filters",
		"",
		"Account:",
		"  L sign out | ctrl+t switch sign in/sign up (sign-in form)",
		"",
		"Other:",
		"  r refresh | ? help | esc/q close help | q quit",
	}, "\n")
}

func applyViewStyle(view *gocui.View, focused bool, highlight bool) {
	view.Frame = true
	view.Highlight = focused && highlight
	view.HighlightInactive = false
	view.SelBgColor = gocui.ColorBlue
	view.SelFgColor = gocui.ColorBlack
	view.InactiveViewSelBgColor = gocui.ColorDefault
	if focused {
		view.FrameColor = gocui.ColorCyan
		view.TitleColor = gocui.ColorCyan
	} else {
		view.FrameColor = gocui.ColorDefault
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
