package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type InitCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	force bool
}

// NewInitCommand returns the init command.
func NewInitCommand(rootCmd *RootCommand, app *kingpin.Application) *InitCommand {
	c := &InitCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("init", "Initialize the model runtime and follow its progress.")
	c.Cmd.Flag("force", "Initialize even if the runtime container already exists.").BoolVar(&c.force)

	return c
}

func (c InitCommand) Name() string { return c.Cmd.FullCommand() }

func (c InitCommand) Run(ctx context.Context) error {
	a, err := c.rootCmd.newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.session.Sync(ctx)
	if err != nil {
		return fmt.Errorf("could not sync runtime status: %w", err)
	}

	switch {
	case st.IsInitializing:
		fmt.Fprintln(c.rootCmd.Stderr, "Initialization already in progress, following it")
	case st.ContainerPresent && !c.force:
		fmt.Fprintln(c.rootCmd.Stdout, "Runtime already initialized")
		return nil
	default:
		if err := a.session.StartInit(ctx); err != nil {
			return fmt.Errorf("could not start initialization: %w", err)
		}
	}

	if _, err := follow(ctx, a.session.Init, c.rootCmd.Stderr); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	fmt.Fprintln(c.rootCmd.Stdout, "Runtime initialized")
	return nil
}
