package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/fynovel/fyctl/internal/view/tui"
)

type WatchCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	startInit   bool
	downloadURL string
}

// NewWatchCommand returns the watch command.
func NewWatchCommand(rootCmd *RootCommand, app *kingpin.Application) *WatchCommand {
	c := &WatchCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("watch", "Show a dashboard of the background tasks.")
	c.Cmd.Flag("init", "Start the runtime initialization when it's not initialized.").BoolVar(&c.startInit)
	c.Cmd.Flag("download", "Start downloading the novel at the URL.").StringVar(&c.downloadURL)

	return c
}

func (c WatchCommand) Name() string { return c.Cmd.FullCommand() }

func (c WatchCommand) Run(ctx context.Context) error {
	a, err := c.rootCmd.newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.session.Sync(ctx)
	if err != nil {
		return fmt.Errorf("could not sync runtime status: %w", err)
	}

	if c.startInit && !st.ContainerPresent && !st.IsInitializing {
		if err := a.session.StartInit(ctx); err != nil {
			return fmt.Errorf("could not start initialization: %w", err)
		}
	}

	if c.downloadURL != "" {
		item, err := resolveDownloadTarget(ctx, a.session.Download, c.downloadURL, false)
		if err != nil {
			return err
		}
		if err := a.session.StartDownload(ctx, item); err != nil {
			return fmt.Errorf("could not start download: %w", err)
		}
	}

	return tui.Run(ctx, tui.Config{
		Source:  a.session,
		In:      c.rootCmd.Stdin,
		Out:     c.rootCmd.Stdout,
		NoColor: c.rootCmd.NoColor,
	})
}
