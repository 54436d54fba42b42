// Package cli is the tada command line. One-shot commands drive the engine
// on the calling goroutine; `tada ui` hands it to the interactive list.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/ui"
)

// Exit codes: 0 ok, 1 error, 2 usage.
const (
	exitOK    = 0
	exitErr   = 1
	exitUsage = 2
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

func failure(err error) error {
	return &exitError{code: exitErr, err: err}
}

func failuref(format string, args ...any) error {
	return failure(fmt.Errorf(format, args...))
}

var errNotLoggedIn = errors.New("not logged in. Run: tada auth login")

// App holds what the commands need from the outside world.
type App struct {
	Out, Err io.Writer
	// Home replaces ~/.tada.
	Home string
	// OpenURL sends the user to the identity provider.
	OpenURL func(string) error
	// Interactive reports whether a bare `tada` starts the list UI.
	Interactive func() bool

	flags   rootFlags
	cfg     *config.Config
	store   *auth.Store
	closeLg func()
}

type rootFlags struct {
	configPath string
	envFile    string
	endpoint   string
	project    string
	database   string
	todos      string
	steps      string
	timeout    time.Duration
	verbose    bool
	theme      string
	color      bool
	noColor    bool
}

// Run executes args as the tada command line and returns the exit code.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	app := &App{
		Out:         os.Stdout,
		Err:         os.Stderr,
		OpenURL:     openBrowser,
		Interactive: ui.IsTTY,
	}
	return app.Run(ctx, args)
}

// Run executes args and returns the exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.Out)
	root.SetErr(a.Err)
	err := root.ExecuteContext(ctx)
	if a.closeLg != nil {
		a.closeLg()
		a.closeLg = nil
	}
	if err == nil {
		return exitOK
	}
	ui.Fail(a.Err, err.Error())
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// argument and flag errors from cobra itself
	return exitUsage
}

func (a *App) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tada",
		Short:         "tada - a checklist that lives in your document store",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.Interactive != nil && a.Interactive() {
				return a.runUI(cmd.Context())
			}
			_ = cmd.Help()
			return usagef("no subcommand given")
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.flags.configPath, "config", "", "config file (default ~/.tada/config.yaml)")
	f.StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file with TADA_* settings")
	f.StringVar(&a.flags.endpoint, "endpoint", "", "API endpoint, e.g. https://cloud.appwrite.io/v1")
	f.StringVar(&a.flags.project, "project", "", "project id")
	f.StringVar(&a.flags.database, "database", "", "database id")
	f.StringVar(&a.flags.todos, "todos-collection", "", "todos collection id")
	f.StringVar(&a.flags.steps, "steps-collection", "", "steps collection id")
	f.DurationVar(&a.flags.timeout, "timeout", 0, "per-request timeout")
	f.BoolVarP(&a.flags.verbose, "verbose", "v", false, "debug logging, also to stderr")
	f.StringVar(&a.flags.theme, "theme", "classic", "output theme: classic, neon or mono")
	f.BoolVar(&a.flags.color, "color", false, "force colored output")
	f.BoolVar(&a.flags.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		a.lsCmd(),
		a.addCmd(),
		a.doneCmd(),
		a.rmCmd(),
		a.stepCmd(),
		a.uiCmd(),
		a.authCmd(),
	)
	return root
}

// setup loads the configuration and starts logging. The configuration is
// only validated by commands that talk to the server.
func (a *App) setup(cmd *cobra.Command) error {
	path := a.flags.configPath
	if a.Home == "" {
		s, err := auth.DefaultStore()
		if err != nil {
			return failure(err)
		}
		a.store, a.Home = s, s.Dir
		if path == "" {
			if path, err = config.DefaultPath(); err != nil {
				return failure(err)
			}
		}
	} else {
		a.store = &auth.Store{Dir: a.Home}
	}
	if path == "" {
		path = filepath.Join(a.Home, "config.yaml")
	}

	ui.SetColorForcing(a.flags.color, a.flags.noColor)
	ui.SetTheme(a.flags.theme)

	cfg, err := config.Load(path, a.flags.envFile)
	if err != nil {
		return failure(err)
	}
	a.applyFlags(cmd, cfg)
	a.cfg = cfg

	closeLog, err := setupLogging(a.Home, cfg.LogLevel, a.flags.verbose, a.Err)
	if err != nil {
		return failure(err)
	}
	a.closeLg = closeLog
	return nil
}

func (a *App) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if f.Changed(name) {
			*dst = v
		}
	}
	set("endpoint", &cfg.Endpoint, a.flags.endpoint)
	set("project", &cfg.Project, a.flags.project)
	set("database", &cfg.DatabaseID, a.flags.database)
	set("todos-collection", &cfg.TodosCollectionID, a.flags.todos)
	set("steps-collection", &cfg.StepsCollectionID, a.flags.steps)
	if f.Changed("timeout") {
		cfg.RequestTimeout = a.flags.timeout
	}
	if a.flags.verbose {
		cfg.LogLevel = "debug"
	}
}

// validConfig validates the loaded configuration for a server round trip.
func (a *App) validConfig() error {
	if err := a.cfg.Validate(); err != nil {
		return failuref("%w (see ~/.tada/config.yaml or TADA_* variables)", err)
	}
	return nil
}
