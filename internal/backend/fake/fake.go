// Package fake is an in-process simulation of the fy-novel backend.
//
// Operations advance a step tracker on a timer, the same way the real backend reports
// the progress of the runtime initialization, the model pulls and the book crawls.
package fake

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fynovel/fyctl/internal/backend"
	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
)

const (
	initTaskKey     = "ollama-init-task"
	setModelTaskKey = "ollama-set-model-task"
)

// Step weights of the simulated operations.
var (
	initSteps     = []int{1, 1, 2, 2} // Pull image, create container, pull model, end.
	setModelSteps = []int{3, 2, 1}    // Pull model, settings, end.
)

// DefaultModels are the models the fake runtime can serve.
var DefaultModels = []string{"llama3.2", "llama3.2:1b", "llama3.1", "gemma2:2b", "gemma2", "phi3", "mistral", "qwen2.5:7b"}

// Config is the configuration of the fake backend.
type Config struct {
	// StepDelay is the duration of each simulated step.
	StepDelay time.Duration
	// Initialized starts the fake with the runtime container already present.
	Initialized  bool
	Models       []string
	CurrentModel string
	// Chapters is the number of chapters of every simulated book.
	Chapters  int
	OutputDir string
	Logger    log.Logger
}

func (c *Config) defaults() error {
	if c.StepDelay <= 0 {
		c.StepDelay = 300 * time.Millisecond
	}

	if len(c.Models) == 0 {
		c.Models = DefaultModels
	}

	if c.CurrentModel == "" {
		c.CurrentModel = c.Models[0]
	}

	if c.Chapters <= 0 {
		c.Chapters = 20
	}

	if c.OutputDir == "" {
		c.OutputDir = "downloads"
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.Fake"})

	return nil
}

// Backend is a simulated backend.Backend.
type Backend struct {
	cfg     Config
	tracker *tracker
	logger  log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	container bool
	current   string
}

var _ backend.Backend = &Backend{}

// New returns a new fake backend.
func New(cfg Config) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Backend{
		cfg:       cfg,
		tracker:   newTracker(),
		logger:    cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
		container: cfg.Initialized,
		current:   cfg.CurrentModel,
	}, nil
}

// Close stops the simulated background operations.
func (b *Backend) Close() error {
	b.cancel()
	b.wg.Wait()
	return nil
}

// TriggerInit satisfies backend.Backend.
func (b *Backend) TriggerInit(ctx context.Context) (model.TriggerResult, error) {
	if b.tracker.running(initTaskKey) {
		b.logger.Debugf("Initialization already running")
		return model.TriggerResult{}, nil
	}

	b.tracker.init(initTaskKey, sum(initSteps))
	b.background(initTaskKey, initSteps, func() {
		b.mu.Lock()
		b.container = true
		b.mu.Unlock()
		b.logger.Infof("Runtime initialized")
	})

	return model.TriggerResult{}, nil
}

// PollInitProgress satisfies backend.Backend.
func (b *Backend) PollInitProgress(ctx context.Context) (model.ProgressSample, error) {
	return b.sample(initTaskKey), nil
}

// HasInit satisfies backend.Backend.
func (b *Backend) HasInit(ctx context.Context) (model.ContainerStatus, error) {
	b.mu.Lock()
	present := b.container
	b.mu.Unlock()

	return model.ContainerStatus{
		ContainerPresent: present,
		IsInitializing:   b.tracker.running(initTaskKey),
		IsChangingModel:  b.tracker.running(setModelTaskKey),
	}, nil
}

// GetCurrentModel satisfies backend.Backend.
func (b *Backend) GetCurrentModel(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, nil
}

// GetModelList satisfies backend.Backend.
func (b *Backend) GetModelList(ctx context.Context) ([]string, error) {
	return append([]string{}, b.cfg.Models...), nil
}

// ResetModelChangeTask satisfies backend.Backend.
func (b *Backend) ResetModelChangeTask(ctx context.Context) error {
	if b.tracker.running(setModelTaskKey) {
		return fmt.Errorf("model change in progress: %w", model.ErrBusy)
	}
	b.tracker.remove(setModelTaskKey)
	return nil
}

// TriggerModelChange satisfies backend.Backend.
func (b *Backend) TriggerModelChange(ctx context.Context, target string) (model.TriggerResult, error) {
	b.mu.Lock()
	present := b.container
	b.mu.Unlock()

	switch {
	case !present:
		return model.TriggerResult{ErrorMessage: "model runtime is not initialized"}, nil
	case !b.knownModel(target):
		return model.TriggerResult{ErrorMessage: fmt.Sprintf("unknown model %q", target)}, nil
	case b.tracker.running(setModelTaskKey):
		return model.TriggerResult{ErrorMessage: "a model change is already running"}, nil
	}

	b.tracker.init(setModelTaskKey, sum(setModelSteps))
	b.background(setModelTaskKey, setModelSteps, func() {
		b.mu.Lock()
		b.current = target
		b.mu.Unlock()
		b.logger.Infof("Model set to %s", target)
	})

	return model.TriggerResult{}, nil
}

// PollModelChangeProgress satisfies backend.Backend.
func (b *Backend) PollModelChangeProgress(ctx context.Context) (model.ProgressSample, error) {
	return b.sample(setModelTaskKey), nil
}

// Search satisfies backend.Backend. The results are derived from the name.
func (b *Backend) Search(ctx context.Context, name string) ([]model.SearchResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("search name is required: %w", model.ErrNotValid)
	}

	slug := slugify(name)
	results := make([]model.SearchResult, 0, 3)
	for i := 1; i <= 3; i++ {
		results = append(results, model.SearchResult{
			URL:           fmt.Sprintf("https://books.fake/%s/%d", slug, i),
			BookName:      fmt.Sprintf("%s %d", name, i),
			Author:        fmt.Sprintf("Author %d", i),
			Intro:         fmt.Sprintf("A simulated book about %s.", name),
			LatestChapter: fmt.Sprintf("Chapter %d", b.cfg.Chapters),
			LatestUpdate:  "2026-01-01",
		})
	}

	return results, nil
}

// TriggerDownload satisfies backend.Backend. It blocks until every chapter has been
// crawled and the book merged.
func (b *Backend) TriggerDownload(ctx context.Context, item model.SearchResult) (model.CrawlResult, error) {
	if err := item.Validate(); err != nil {
		return model.CrawlResult{}, fmt.Errorf("invalid item: %w", err)
	}
	if b.tracker.running(item.URL) {
		return model.CrawlResult{}, fmt.Errorf("%s is already downloading: %w", item.URL, model.ErrBusy)
	}

	start := time.Now()
	// One step per chapter plus the merge.
	b.tracker.init(item.URL, b.cfg.Chapters+1)
	for i := 0; i < b.cfg.Chapters+1; i++ {
		if err := b.wait(ctx); err != nil {
			b.tracker.remove(item.URL)
			return model.CrawlResult{}, fmt.Errorf("download interrupted: %w", err)
		}
		b.tracker.add(item.URL, 1)
	}

	return model.CrawlResult{
		OutputPath:     filepath.Join(b.cfg.OutputDir, slugify(item.Title())+".epub"),
		ElapsedSeconds: time.Since(start).Seconds(),
	}, nil
}

// PollDownloadProgress satisfies backend.Backend.
func (b *Backend) PollDownloadProgress(ctx context.Context, item model.SearchResult) (model.ProgressSample, error) {
	return b.sample(item.URL), nil
}

func (b *Backend) sample(key string) model.ProgressSample {
	c, total, ok := b.tracker.get(key)
	return model.ProgressSample{Exists: ok, Completed: c, Total: total}
}

// background advances the steps of a fire-and-forget task.
func (b *Backend) background(key string, steps []int, onDone func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for i, n := range steps {
			if err := b.wait(b.ctx); err != nil {
				return
			}
			// The runtime is usable right before the last step is reported.
			if i == len(steps)-1 {
				onDone()
			}
			b.tracker.add(key, n)
		}
	}()
}

func (b *Backend) wait(ctx context.Context) error {
	t := time.NewTimer(b.cfg.StepDelay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.ctx.Done():
		return b.ctx.Err()
	case <-t.C:
		return nil
	}
}

func (b *Backend) knownModel(name string) bool {
	for _, m := range b.cfg.Models {
		if m == name {
			return true
		}
	}
	return false
}

func sum(steps []int) int {
	n := 0
	for _, s := range steps {
		n += s
	}
	return n
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = nonSlug.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "book"
	}
	return s
}
