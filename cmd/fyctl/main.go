package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/fynovel/fyctl/cmd/fyctl/commands"
	"github.com/fynovel/fyctl/internal/log"
	loglogrus "github.com/fynovel/fyctl/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("fyctl", "Background task client for the fy-novel backend.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	initCmd := commands.NewInitCommand(rootCmd, app)
	statusCmd := commands.NewStatusCommand(rootCmd, app)
	searchCmd := commands.NewSearchCommand(rootCmd, app)
	downloadCmd := commands.NewDownloadCommand(rootCmd, app)
	historyCmd := commands.NewHistoryCommand(rootCmd, app)
	watchCmd := commands.NewWatchCommand(rootCmd, app)
	doctorCmd := commands.NewDoctorCommand(rootCmd, app)

	// Model subcommands share a parent command.
	modelCmd := commands.NewModelCommand(app)
	modelListCmd := commands.NewModelListCommand(rootCmd, modelCmd)
	modelCurrentCmd := commands.NewModelCurrentCommand(rootCmd, modelCmd)
	modelSetCmd := commands.NewModelSetCommand(rootCmd, modelCmd)

	cmds := map[string]commands.Command{
		initCmd.Name():         initCmd,
		statusCmd.Name():       statusCmd,
		searchCmd.Name():       searchCmd,
		downloadCmd.Name():     downloadCmd,
		historyCmd.Name():      historyCmd,
		watchCmd.Name():        watchCmd,
		doctorCmd.Name():       doctorCmd,
		modelListCmd.Name():    modelListCmd,
		modelCurrentCmd.Name(): modelCurrentCmd,
		modelSetCmd.Name():     modelSetCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Printer and dashboard commands own the terminal, logs are only shown with --debug.
	quietCommands := map[string]bool{
		"status":        true,
		"history":       true,
		"search":        true,
		"model list":    true,
		"model current": true,
		"doctor":        true,
		"watch":         true,
	}
	if quietCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(ctx, *rootCmd)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(ctx context.Context, config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // Logs go to stderr so they don't mix with printed output.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
