package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"
)

type SearchCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	name   []string
	format string
}

// NewSearchCommand returns the search command.
func NewSearchCommand(rootCmd *RootCommand, app *kingpin.Application) *SearchCommand {
	c := &SearchCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("search", "Search novels by name, the results are kept for the download command.")
	c.Cmd.Arg("name", "Name of the novel.").Required().StringsVar(&c.name)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c SearchCommand) Name() string { return c.Cmd.FullCommand() }

func (c SearchCommand) Run(ctx context.Context) error {
	a, err := c.rootCmd.newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	query := strings.Join(c.name, " ")
	results, err := a.session.Download.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("could not search: %w", err)
	}

	return c.rootCmd.printer(c.format).PrintSearchResults(query, results)
}
