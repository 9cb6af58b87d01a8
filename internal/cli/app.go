// Package cli implements the lazytodo command line: global flags, wiring of
// the token store, API client and session, and the subcommands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/config"
	"github.com/Joseda-hg/lazytodo/internal/db"
	"github.com/Joseda-hg/lazytodo/internal/devapi"
	"github.com/Joseda-hg/lazytodo/internal/logging"
	"github.com/Joseda-hg/lazytodo/internal/metrics"
	"github.com/Joseda-hg/lazytodo/internal/render"
	"github.com/Joseda-hg/lazytodo/internal/session"
	"github.com/Joseda-hg/lazytodo/internal/tokenstore"
)

// Version is set via ldflags at build time.
var Version = "dev"

var errNotSignedIn = errors.New("not signed in, run `lazytodo login` first")

type app struct {
	cfg     config.Config
	cfgPath string

	stdin  io.Reader
	lines  *bufio.Reader
	stdout io.Writer
	stderr io.Writer

	logger    *log.Logger
	store     *db.Store
	tokens    *tokenstore.Store
	client    *api.Client
	sessions  *session.Manager
	render    *render.Renderer
	navigator *navigator
	recorder  metrics.Recorder
	closers   []io.Closer
}

// navigator forwards sign-in requests to whatever surface is running.
type navigator struct {
	mu sync.Mutex
	fn func()
}

func (n *navigator) SignIn() {
	n.mu.Lock()
	fn := n.fn
	n.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (n *navigator) route(fn func()) {
	n.mu.Lock()
	n.fn = fn
	n.mu.Unlock()
}

// Run executes the lazytodo CLI. With no subcommand it starts the dashboard.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("lazytodo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		printUsage(fs, stderr)
	}
	configPathFlag := fs.String("config", "", "config file path")
	dbPathFlag := fs.String("db", "", "sqlite db path for the stored credential")
	apiURLFlag := fs.String("api-url", "", "API base URL")
	logLevelFlag := fs.String("log-level", "", "log level (debug|info|warn|error)")
	devAPIFlag := fs.Bool("dev-api", false, "start the in-memory development API and use it")
	portFlag := fs.Int("port", 0, "development API port")
	showVersion := fs.Bool("version", false, "show version")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintf(stdout, "lazytodo %s\n", Version)
		return nil
	}

	cfgPath, err := resolveConfigPath(*configPathFlag)
	if err != nil {
		return err
	}
	// Flags are saved; the environment only applies to this run.
	fileCfg, err := config.LoadFile(cfgPath)
	if err != nil {
		return err
	}
	applyFlags := func(cfg *config.Config) {
		if *dbPathFlag != "" {
			cfg.DBPath = *dbPathFlag
		}
		if *apiURLFlag != "" {
			cfg.APIURL = strings.TrimRight(*apiURLFlag, "/")
		}
		if *logLevelFlag != "" {
			cfg.LogLevel = *logLevelFlag
		}
		if *portFlag != 0 {
			cfg.DevAPIPort = *portFlag
		}
	}
	applyFlags(&fileCfg)
	if err := config.Save(cfgPath, fileCfg); err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg)

	subcommand := "tui"
	remaining := fs.Args()
	if len(remaining) > 0 {
		subcommand = remaining[0]
		remaining = remaining[1:]
	}

	switch subcommand {
	case "help":
		printUsage(fs, stdout)
		return nil
	case "version":
		fmt.Fprintf(stdout, "lazytodo %s\n", Version)
		return nil
	}

	a := &app{
		cfg:     cfg,
		cfgPath: cfgPath,
		stdin:   stdin,
		lines:   bufio.NewReader(stdin),
		stdout:  stdout,
		stderr:  stderr,
		render:  render.New(stdout),
	}
	defer a.close()

	if err := a.setupLogging(subcommand == "tui"); err != nil {
		return err
	}
	if subcommand == "serve" {
		return a.serveDevAPI(ctx)
	}
	if *devAPIFlag {
		a.startDevAPI()
	}
	a.startMetrics()
	if err := a.connect(); err != nil {
		return err
	}

	err = a.dispatch(ctx, subcommand, remaining)
	if errors.Is(err, api.ErrAuthRequired) {
		a.sessions.Invalidate(ctx)
	}
	return err
}

func (a *app) dispatch(ctx context.Context, subcommand string, args []string) error {
	switch subcommand {
	case "tui":
		return a.tuiCommand(args)
	case "login":
		return a.loginCommand(ctx, args)
	case "signup":
		return a.signupCommand(ctx, args)
	case "logout":
		return a.logoutCommand(ctx, args)
	case "whoami":
		return a.whoamiCommand(ctx, args)
	case "list", "ls":
		return a.listCommand(ctx, args)
	case "add":
		return a.addCommand(ctx, args)
	case "edit":
		return a.editCommand(ctx, args)
	case "done", "toggle":
		return a.toggleCommand(ctx, args)
	case "rm", "delete":
		return a.deleteCommand(ctx, args)
	case "show":
		return a.showCommand(ctx, args)
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n", subcommand)
		return fmt.Errorf("unknown command: %s", subcommand)
	}
}

func (a *app) setupLogging(toFile bool) error {
	opts := logging.Options{Level: a.cfg.LogLevel, Format: a.cfg.LogFormat, Prefix: "lazytodo"}
	if !toFile {
		opts.Level = quietLevel(a.cfg.LogLevel)
		a.logger = logging.New(a.stderr, opts)
		return nil
	}
	logger, closer, err := logging.OpenFile(a.cfg.ResolveLogFile(a.cfgPath), opts)
	if err != nil {
		return err
	}
	a.logger = logger
	a.closers = append(a.closers, closer)
	return nil
}

// quietLevel keeps one-shot commands from printing info logs over their
// output unless debug was asked for.
func quietLevel(level string) string {
	if logging.ParseLevel(level) == log.DebugLevel {
		return level
	}
	return "warn"
}

func (a *app) connect() error {
	dbPath := a.cfg.ResolveDBPath(a.cfgPath)
	if err := config.EnsureDir(dbPath); err != nil {
		return err
	}
	sqlDB, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	a.store = db.NewStore(sqlDB)
	a.closers = append(a.closers, a.store)
	a.tokens = tokenstore.New(a.store)
	if keys, err := a.store.Keys(context.Background()); err == nil {
		a.logger.Debug("storage opened", "path", dbPath, "keys", keys)
	}

	if a.recorder == nil {
		a.recorder = metrics.Nop{}
	}
	a.navigator = &navigator{}
	a.navigator.route(a.signInHint)

	opts := []api.Option{
		api.WithHTTPClient(&http.Client{Timeout: a.cfg.RequestTimeout.Duration}),
		api.WithNavigator(a.navigator),
		api.WithLogger(a.logger.WithPrefix("api")),
		api.WithMetrics(a.recorder),
	}
	if a.cfg.RateLimit > 0 {
		opts = append(opts, api.WithRateLimit(a.cfg.RateLimit, 1))
	}
	a.client = api.New(a.cfg.APIURL, a.tokens, opts...)
	a.sessions = session.NewManager(a.client, a.tokens,
		session.WithNavigator(a.navigator),
		session.WithLogger(a.logger.WithPrefix("session")),
		session.WithMetrics(a.recorder),
	)
	return nil
}

func (a *app) signInHint() {
	fmt.Fprintln(a.stderr, "Your session has ended. Run `lazytodo login` to sign in again.")
}

func (a *app) startMetrics() {
	if a.cfg.MetricsAddr == "" {
		a.recorder = metrics.Nop{}
		return
	}
	registry := prometheus.NewRegistry()
	a.recorder = metrics.NewCollector(registry)
	server := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           metrics.SetupMetricsRoute(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.closers = append(a.closers, server)
	go func() {
		a.logger.Info("metrics server running", "addr", a.cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "err", err)
		}
	}()
}

func (a *app) devAPIServer() *http.Server {
	addr := fmt.Sprintf("localhost:%d", a.cfg.DevAPIPort)
	handler := devapi.NewServer(devapi.Options{Logger: a.logger.WithPrefix("devapi")}).Handler()
	return &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
}

// startDevAPI runs the development API alongside the command and points the
// client at it.
func (a *app) startDevAPI() {
	server := a.devAPIServer()
	a.cfg.APIURL = "http://" + server.Addr
	a.closers = append(a.closers, server)
	go func() {
		a.logger.Info("development API running", "url", a.cfg.APIURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("development API error", "err", err)
		}
	}()
}

func (a *app) serveDevAPI(ctx context.Context) error {
	server := a.devAPIServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	fmt.Fprintf(a.stdout, "Development API running at http://%s\n", server.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.logger != nil {
			a.logger.Debug("close", "err", err)
		}
	}
}

func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.DefaultConfigPath()
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "Usage: lazytodo [flags] [command] [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  tui                      open the dashboard (default)")
	fmt.Fprintln(w, "  login                    sign in")
	fmt.Fprintln(w, "  signup                   create an account")
	fmt.Fprintln(w, "  logout                   sign out and forget the stored token")
	fmt.Fprintln(w, "  whoami                   show the signed-in user")
	fmt.Fprintln(w, "  list                     list tasks (-search -status -priority -tag -sort)")
	fmt.Fprintln(w, "  add <title>              create a task")
	fmt.Fprintln(w, "  edit <id>                change a task")
	fmt.Fprintln(w, "  done <id>                toggle completion")
	fmt.Fprintln(w, "  rm <id>                  delete a task")
	fmt.Fprintln(w, "  show <id>                show one task")
	fmt.Fprintln(w, "  serve                    run the in-memory development API")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}
