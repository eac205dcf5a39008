package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/storage"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	kind   string
	limit  int
	format string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	kinds := make([]string, 0, len(model.TaskKinds()))
	for _, k := range model.TaskKinds() {
		kinds = append(kinds, string(k))
	}

	c.Cmd = app.Command("history", "List the finished task sessions.")
	c.Cmd.Flag("kind", "Filter by task kind.").EnumVar(&c.kind, kinds...)
	c.Cmd.Flag("limit", "Max number of sessions, 0 lists all.").Default("20").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	if c.limit < 0 {
		return fmt.Errorf("limit can't be negative: %w", model.ErrNotValid)
	}

	a, err := c.rootCmd.newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	runs, err := a.session.History(ctx, storage.TaskRunFilter{
		Kind:  model.TaskKind(c.kind),
		Limit: c.limit,
	})
	if err != nil {
		return err
	}

	if err := c.rootCmd.printer(c.format).PrintHistory(runs); err != nil {
		return fmt.Errorf("could not print history: %w", err)
	}

	return nil
}
