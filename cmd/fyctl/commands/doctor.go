package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/fynovel/fyctl/internal/doctor"
	"github.com/fynovel/fyctl/internal/model"
)

type DoctorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewDoctorCommand returns the doctor command.
func NewDoctorCommand(rootCmd *RootCommand, app *kingpin.Application) *DoctorCommand {
	c := &DoctorCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("doctor", "Run preflight checks for the model runtime.")
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c DoctorCommand) Name() string { return c.Cmd.FullCommand() }

func (c DoctorCommand) Run(ctx context.Context) error {
	a, err := c.rootCmd.newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	checker, err := doctor.NewChecker(doctor.CheckerConfig{
		Backend: a.backend,
		Schema:  a.repo,
		Logger:  c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create checker: %w", err)
	}

	results := checker.Check(ctx)
	if err := c.rootCmd.printer(c.format).PrintChecks(results); err != nil {
		return fmt.Errorf("could not print checks: %w", err)
	}

	if n := model.CountByStatus(results, model.CheckStatusError); n > 0 {
		return fmt.Errorf("preflight checks failed with %d error(s)", n)
	}

	return nil
}
