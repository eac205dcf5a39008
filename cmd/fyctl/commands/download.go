package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/fynovel/fyctl/internal/app/download"
	"github.com/fynovel/fyctl/internal/model"
)

type DownloadCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	target    string
	fromCache bool
}

// NewDownloadCommand returns the download command.
func NewDownloadCommand(rootCmd *RootCommand, app *kingpin.Application) *DownloadCommand {
	c := &DownloadCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("download", "Download a novel and follow its progress.")
	c.Cmd.Arg("target", "Index of the last search results (starting at 1) or URL of the novel.").Required().StringVar(&c.target)
	c.Cmd.Flag("from-cache", "Resolve the URL against the last search results to get the novel details.").BoolVar(&c.fromCache)

	return c
}

func (c DownloadCommand) Name() string { return c.Cmd.FullCommand() }

func (c DownloadCommand) Run(ctx context.Context) error {
	a, err := c.rootCmd.newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	item, err := resolveDownloadTarget(ctx, a.session.Download, c.target, c.fromCache)
	if err != nil {
		return err
	}

	if _, err := a.session.Sync(ctx); err != nil {
		c.rootCmd.Logger.Warningf("Could not sync runtime status: %s", err)
	}

	if err := a.session.StartDownload(ctx, item); err != nil {
		return fmt.Errorf("could not start download: %w", err)
	}

	if _, err := follow(ctx, a.session.Download, c.rootCmd.Stderr); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	res, _ := a.session.Download.Result()
	fmt.Fprintf(c.rootCmd.Stdout, "Downloaded %s to %s in %.1fs\n", item.Title(), res.OutputPath, res.ElapsedSeconds)
	return nil
}

type searchCache interface {
	CachedResult(ctx context.Context, position int) (model.SearchResult, error)
	CachedResults(ctx context.Context) (string, []model.SearchResult, error)
}

var _ searchCache = &download.Service{}

// resolveDownloadTarget maps an index of the cached search results or a URL to a download item.
func resolveDownloadTarget(ctx context.Context, cache searchCache, target string, fromCache bool) (model.SearchResult, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return model.SearchResult{}, fmt.Errorf("download target is required: %w", model.ErrNotValid)
	}

	if pos, err := strconv.Atoi(target); err == nil {
		item, err := cache.CachedResult(ctx, pos)
		if err != nil {
			return model.SearchResult{}, fmt.Errorf("could not get search result %d: %w", pos, err)
		}
		return item, nil
	}

	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return model.SearchResult{}, fmt.Errorf("%q is not an index nor a URL: %w", target, model.ErrNotValid)
	}

	if !fromCache {
		return model.SearchResult{URL: target}, nil
	}

	_, results, err := cache.CachedResults(ctx)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("could not get search results: %w", err)
	}
	for _, r := range results {
		if r.URL == target {
			return r, nil
		}
	}

	return model.SearchResult{}, fmt.Errorf("%s is not in the last search results: %w", target, model.ErrNotFound)
}
