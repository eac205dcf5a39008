package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
)

type stubCache struct {
	results []model.SearchResult
	err     error
}

func (s stubCache) CachedResult(_ context.Context, position int) (model.SearchResult, error) {
	if s.err != nil {
		return model.SearchResult{}, s.err
	}
	if position < 1 || position > len(s.results) {
		return model.SearchResult{}, model.ErrNotFound
	}
	return s.results[position-1], nil
}

func (s stubCache) CachedResults(context.Context) (string, []model.SearchResult, error) {
	return "journey", s.results, s.err
}

func TestResolveDownloadTarget(t *testing.T) {
	cached := []model.SearchResult{
		{URL: "https://books.example/1", BookName: "Journey 1"},
		{URL: "https://books.example/2", BookName: "Journey 2"},
	}

	tests := map[string]struct {
		cache     stubCache
		target    string
		fromCache bool
		expItem   model.SearchResult
		expErr    error
	}{
		"An index should resolve the cached result.": {
			cache:   stubCache{results: cached},
			target:  "2",
			expItem: cached[1],
		},
		"An out of range index should fail.": {
			cache:  stubCache{results: cached},
			target: "3",
			expErr: model.ErrNotFound,
		},
		"A URL should be used as is.": {
			cache:   stubCache{err: model.ErrNotFound},
			target:  " https://books.example/9 ",
			expItem: model.SearchResult{URL: "https://books.example/9"},
		},
		"A URL from cache should get the cached details.": {
			cache:     stubCache{results: cached},
			target:    "https://books.example/1",
			fromCache: true,
			expItem:   cached[0],
		},
		"A URL missing from the cache should fail.": {
			cache:     stubCache{results: cached},
			target:    "https://books.example/9",
			fromCache: true,
			expErr:    model.ErrNotFound,
		},
		"Something that is not an index nor a URL should fail.": {
			target: "journey",
			expErr: model.ErrNotValid,
		},
		"An empty target should fail.": {
			target: "  ",
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			item, err := resolveDownloadTarget(context.Background(), test.cache, test.target, test.fromCache)
			if test.expErr != nil {
				assert.True(t, errors.Is(err, test.expErr), err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expItem, item)
		})
	}
}

func TestRootCommandLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("backend:\n  url: http://from-file:1\ntasks:\n  download:\n    interval: 5s\n"), 0o644))

	tests := map[string]struct {
		root     RootCommand
		explicit bool
		exp      func(t *testing.T, cfg model.AppConfig)
		expErr   bool
	}{
		"The file values should be loaded.": {
			root: RootCommand{ConfigPath: cfgPath},
			exp: func(t *testing.T, cfg model.AppConfig) {
				assert.Equal(t, "http://from-file:1", cfg.Backend.URL)
				assert.Equal(t, 5*time.Second, cfg.Download.Interval)
				assert.NotEmpty(t, cfg.DBPath)
			},
		},
		"Flags should override the file.": {
			root: RootCommand{ConfigPath: cfgPath, Backend: model.BackendKindFake, BackendURL: "http://flag:2", DBPath: "/tmp/x.db"},
			exp: func(t *testing.T, cfg model.AppConfig) {
				assert.Equal(t, model.BackendKindFake, cfg.Backend.Kind)
				assert.Equal(t, "http://flag:2", cfg.Backend.URL)
				assert.Equal(t, "/tmp/x.db", cfg.DBPath)
			},
		},
		"A missing default file should use the defaults.": {
			root: RootCommand{ConfigPath: filepath.Join(dir, "missing.yaml")},
			exp: func(t *testing.T, cfg model.AppConfig) {
				assert.Equal(t, model.DefaultAppConfig().Backend, cfg.Backend)
			},
		},
		"A missing explicit file should fail.": {
			root:     RootCommand{ConfigPath: filepath.Join(dir, "missing.yaml")},
			explicit: true,
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test.root.Logger = log.Noop
			cfg, err := test.root.loadConfig(context.Background(), test.explicit)
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			test.exp(t, cfg)
		})
	}
}
