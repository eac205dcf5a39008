package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/fynovel/fyctl/internal/task"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Show the runtime status and the tasks in flight.")
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	a, err := c.rootCmd.newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.session.Sync(ctx)
	if err != nil {
		return fmt.Errorf("could not sync runtime status: %w", err)
	}

	var snaps []task.Snapshot
	for _, o := range a.session.Observers() {
		snaps = append(snaps, o.Snapshot())
	}

	if err := c.rootCmd.printer(c.format).PrintStatus(st, a.session.ModelChange.Current(), snaps); err != nil {
		return fmt.Errorf("could not print status: %w", err)
	}

	return nil
}
