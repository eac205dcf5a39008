package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/alecthomas/kingpin/v2"

	"github.com/fynovel/fyctl/internal/confirm"
	"github.com/fynovel/fyctl/internal/model"
)

// NewModelCommand returns the model parent command.
func NewModelCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("model", "Manage the chat model of the runtime.")
}

type ModelListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewModelListCommand returns the model list command.
func NewModelListCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *ModelListCommand {
	c := &ModelListCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("list", "List the selectable models.")
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c ModelListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ModelListCommand) Run(ctx context.Context) error {
	a, err := c.rootCmd.newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.session.Sync(ctx); err != nil {
		return fmt.Errorf("could not sync runtime status: %w", err)
	}

	models, err := a.session.ModelChange.Models(ctx)
	if err != nil {
		return fmt.Errorf("could not list models: %w", err)
	}

	return c.rootCmd.printer(c.format).PrintModels(models, a.session.ModelChange.Current())
}

type ModelCurrentCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewModelCurrentCommand returns the model current command.
func NewModelCurrentCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *ModelCurrentCommand {
	c := &ModelCurrentCommand{rootCmd: rootCmd}
	c.Cmd = parent.Command("current", "Show the model in use.")
	return c
}

func (c ModelCurrentCommand) Name() string { return c.Cmd.FullCommand() }

func (c ModelCurrentCommand) Run(ctx context.Context) error {
	a, err := c.rootCmd.newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.session.Sync(ctx)
	if err != nil {
		return fmt.Errorf("could not sync runtime status: %w", err)
	}
	if !st.ContainerPresent {
		return fmt.Errorf("runtime is not initialized: %w", model.ErrNotFound)
	}

	fmt.Fprintln(c.rootCmd.Stdout, a.session.ModelChange.Current())
	return nil
}

type ModelSetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	target    string
	assumeYes bool
}

// NewModelSetCommand returns the model set command.
func NewModelSetCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *ModelSetCommand {
	c := &ModelSetCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("set", "Change the model of the runtime and follow its progress.")
	c.Cmd.Arg("name", "Name of the model.").Required().StringVar(&c.target)
	c.Cmd.Flag("yes", "Don't ask for confirmation.").Short('y').BoolVar(&c.assumeYes)

	return c
}

func (c ModelSetCommand) Name() string { return c.Cmd.FullCommand() }

func (c ModelSetCommand) Run(ctx context.Context) error {
	prompter := confirm.NewPrompter(confirm.PrompterConfig{
		AssumeYes: c.assumeYes,
		Stdin:     io.NopCloser(c.rootCmd.Stdin),
		Stdout:    nopWriteCloser{c.rootCmd.Stderr},
	})

	a, err := c.rootCmd.newApp(ctx, prompter)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.session.Sync(ctx)
	if err != nil {
		return fmt.Errorf("could not sync runtime status: %w", err)
	}
	if !st.ContainerPresent {
		return fmt.Errorf("runtime is not initialized, run the init command first: %w", model.ErrNotFound)
	}

	err = a.session.RequestModelChange(ctx, c.target)
	if errors.Is(err, model.ErrDeclined) {
		fmt.Fprintln(c.rootCmd.Stdout, "Model change cancelled")
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not change model: %w", err)
	}

	if _, err := follow(ctx, a.session.ModelChange, c.rootCmd.Stderr); err != nil {
		return fmt.Errorf("model change failed: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Model in use: %s\n", a.session.ModelChange.Current())
	return nil
}
