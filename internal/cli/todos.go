package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Makepad-fr/tada/internal/appwrite"
	"github.com/Makepad-fr/tada/internal/engine"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/tui"
	"github.com/Makepad-fr/tada/internal/ui"
)

// controller builds an engine over the stored credentials. It is not
// established yet.
func (a *App) controller(ctx context.Context, live bool) (*engine.Controller, *appwrite.Client, error) {
	if err := a.validConfig(); err != nil {
		return nil, nil, err
	}
	tok, err := a.store.Get()
	if err != nil {
		return nil, nil, failure(err)
	}
	client := appwrite.New(a.cfg, tok)
	ctrl := engine.New(ctx, engine.NewBackend(client), engine.Options{
		Channels: a.cfg.Channels(),
		Timeout:  a.cfg.RequestTimeout,
		Live:     live,
	})
	return ctrl, client, nil
}

// connect establishes the session and loads the list.
func (a *App) connect(ctx context.Context) (*engine.Controller, error) {
	tok, err := a.store.Get()
	if err != nil {
		return nil, failure(err)
	}
	if tok == nil {
		return nil, failure(errNotLoggedIn)
	}
	ctrl, _, err := a.controller(ctx, false)
	if err != nil {
		return nil, err
	}
	engine.Drive(ctrl, ctrl.Init())
	if !ctrl.Authenticated() {
		return nil, failuref("session rejected by the server. Run: tada auth login")
	}
	if n := ctrl.Notice(); n != nil {
		return nil, failuref("%s: %w", n.Op, n.Err)
	}
	return ctrl, nil
}

// apply runs one mutation to completion.
func (a *App) apply(ctrl *engine.Controller, cmd tea.Cmd, done string) error {
	if cmd == nil {
		return failuref("nothing to do")
	}
	engine.Drive(ctrl, cmd)
	if n := ctrl.Notice(); n != nil {
		return failuref("%s: %w", n.Op, n.Err)
	}
	ui.OK(a.Out, done)
	return nil
}

// pickTodo resolves a 1-based index as shown by `tada ls`.
func pickTodo(todos []model.Todo, arg string) (model.Todo, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return model.Todo{}, usagef("not a number: %s", arg)
	}
	if n < 1 || n > len(todos) {
		return model.Todo{}, usagef("index out of range: have %d, got %d. Hint: run `tada ls` to see valid indexes", len(todos), n)
	}
	return todos[n-1], nil
}

func pickStep(todo model.Todo, arg string) (model.Step, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return model.Step{}, usagef("not a number: %s", arg)
	}
	if n < 1 || n > len(todo.Steps) {
		return model.Step{}, usagef("step index out of range: %q has %d steps, got %d", todo.Title, len(todo.Steps), n)
	}
	return todo.Steps[n-1], nil
}

func joinTitle(args []string) (string, error) {
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		return "", usagef("empty title")
	}
	return title, nil
}

// -------------- commands ----------------

func (a *App) lsCmd() *cobra.Command {
	var group bool
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List todos and their steps, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			ui.Panel(a.Out, listLines(ctrl.Todos(), group))
			return nil
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "group output by pending/done")
	return cmd
}

func (a *App) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add <title...>",
		Short:   "Add a todo (title can be multiple words)",
		Example: `  tada add "Buy milk"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, err := joinTitle(args)
			if err != nil {
				return err
			}
			ctrl, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			return a.apply(ctrl, ctrl.AddTodo(title), "added")
		},
	}
}

func (a *App) doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <index>",
		Short: "Toggle done for the todo at a 1-based index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			todo, err := pickTodo(ctrl.Todos(), args[0])
			if err != nil {
				return err
			}
			return a.apply(ctrl, ctrl.ToggleTodo(todo.ID), "toggled")
		},
	}
}

func (a *App) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <index>",
		Short: "Delete the todo at a 1-based index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			todo, err := pickTodo(ctrl.Todos(), args[0])
			if err != nil {
				return err
			}
			return a.apply(ctrl, ctrl.DeleteTodo(todo.ID), "removed")
		},
	}
}

func (a *App) stepCmd() *cobra.Command {
	step := &cobra.Command{
		Use:   "step",
		Short: "Manage the steps of a todo",
	}
	step.AddCommand(
		&cobra.Command{
			Use:   "add <index> <title...>",
			Short: "Append a step to a todo",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				title, err := joinTitle(args[1:])
				if err != nil {
					return err
				}
				ctrl, err := a.connect(cmd.Context())
				if err != nil {
					return err
				}
				todo, err := pickTodo(ctrl.Todos(), args[0])
				if err != nil {
					return err
				}
				return a.apply(ctrl, ctrl.AddStep(todo.ID, title), "step added")
			},
		},
		&cobra.Command{
			Use:   "done <index> <step>",
			Short: "Toggle a step",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctrl, todo, s, err := a.resolveStep(cmd.Context(), args)
				if err != nil {
					return err
				}
				return a.apply(ctrl, ctrl.ToggleStep(todo.ID, s.ID), "step toggled")
			},
		},
		&cobra.Command{
			Use:   "rm <index> <step>",
			Short: "Delete a step's document",
			Long: "Delete a step's document from the steps collection. " +
				"The todo keeps listing the step.",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctrl, todo, s, err := a.resolveStep(cmd.Context(), args)
				if err != nil {
					return err
				}
				return a.apply(ctrl, ctrl.DeleteStep(todo.ID, s.ID), "step removed")
			},
		},
	)
	return step
}

func (a *App) resolveStep(ctx context.Context, args []string) (*engine.Controller, model.Todo, model.Step, error) {
	ctrl, err := a.connect(ctx)
	if err != nil {
		return nil, model.Todo{}, model.Step{}, err
	}
	todo, err := pickTodo(ctrl.Todos(), args[0])
	if err != nil {
		return nil, model.Todo{}, model.Step{}, err
	}
	s, err := pickStep(todo, args[1])
	if err != nil {
		return nil, model.Todo{}, model.Step{}, err
	}
	return ctrl, todo, s, nil
}

func (a *App) uiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive list with live updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUI(cmd.Context())
		},
	}
}

func (a *App) runUI(ctx context.Context) error {
	ctrl, _, err := a.controller(ctx, true)
	if err != nil {
		return err
	}
	if err := tui.Run(ctx, ctrl); err != nil {
		return failure(fmt.Errorf("tui: %w", err))
	}
	return nil
}
