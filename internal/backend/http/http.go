// Package http implements backend.Backend as JSON RPC calls over HTTP.
//
// Every operation is a `POST <base>/api/<Operation>` with a JSON body. Responses can carry
// an `errorMessage` field with an application level error.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/fynovel/fyctl/internal/backend"
	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
)

// Operation names of the backend API.
const (
	OpInitOllama                = "InitOllama"
	OpGetInitOllamaProgress     = "GetInitOllamaProgress"
	OpHasInitOllama             = "HasInitOllama"
	OpGetCurrentUseModel        = "GetCurrentUseModel"
	OpGetSelectModelList        = "GetSelectModelList"
	OpInitSetOllamaModelTask    = "InitSetOllamaModelTask"
	OpSetOllamaModel            = "SetOllamaModel"
	OpGetSetOllamaModelProgress = "GetSetOllamaModelProgress"
	OpSearchNovel               = "SearchNovel"
	OpDownloadNovel             = "DownloadNovel"
	OpGetDownloadProgress       = "GetDownloadProgress"
)

const maxErrorBody = 512

// ClientConfig is the configuration of the HTTP backend client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *nethttp.Client
	// RequestTimeout bounds every request except the download, that lasts until the book is done.
	RequestTimeout time.Duration
	Logger         log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.HTTPClient == nil {
		c.HTTPClient = nethttp.DefaultClient
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.HTTP"})

	return nil
}

// Client is a backend.Backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *nethttp.Client
	timeout    time.Duration
	logger     log.Logger
}

var _ backend.Backend = &Client{}

// NewClient returns a new HTTP backend client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		timeout:    cfg.RequestTimeout,
		logger:     cfg.Logger,
	}, nil
}

type errorJSON struct {
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type progressJSON struct {
	errorJSON
	Exists    bool `json:"exists"`
	Completed int  `json:"completed"`
	Total     int  `json:"total"`
}

func (p progressJSON) toModel() model.ProgressSample {
	return model.ProgressSample{Exists: p.Exists, Completed: p.Completed, Total: p.Total}
}

type hasInitJSON struct {
	errorJSON
	Has        bool `json:"has"`
	IsInit     bool `json:"isInit"`
	IsSetModel bool `json:"isSetModel"`
}

type currentModelJSON struct {
	errorJSON
	Model string `json:"model"`
}

type modelListJSON struct {
	errorJSON
	Models []string `json:"models"`
}

type setModelRequestJSON struct {
	Model string `json:"model"`
}

type searchRequestJSON struct {
	Name string `json:"name"`
}

type searchResultJSON struct {
	URL           string `json:"url"`
	BookName      string `json:"bookName"`
	Author        string `json:"author"`
	Intro         string `json:"intro"`
	LatestChapter string `json:"latestChapter"`
	LatestUpdate  string `json:"latestUpdate"`
}

func searchResultFromModel(s model.SearchResult) searchResultJSON {
	return searchResultJSON{
		URL:           s.URL,
		BookName:      s.BookName,
		Author:        s.Author,
		Intro:         s.Intro,
		LatestChapter: s.LatestChapter,
		LatestUpdate:  s.LatestUpdate,
	}
}

func (s searchResultJSON) toModel() model.SearchResult {
	return model.SearchResult{
		URL:           s.URL,
		BookName:      s.BookName,
		Author:        s.Author,
		Intro:         s.Intro,
		LatestChapter: s.LatestChapter,
		LatestUpdate:  s.LatestUpdate,
	}
}

type searchJSON struct {
	errorJSON
	Results []searchResultJSON `json:"results"`
}

type crawlJSON struct {
	errorJSON
	OutputPath string  `json:"outputPath"`
	TakeTime   float64 `json:"takeTime"`
}

// TriggerInit satisfies backend.Backend.
func (c *Client) TriggerInit(ctx context.Context) (model.TriggerResult, error) {
	var resp errorJSON
	if err := c.call(ctx, OpInitOllama, nil, &resp, true); err != nil {
		return model.TriggerResult{}, err
	}
	return model.TriggerResult{ErrorMessage: resp.ErrorMessage}, nil
}

// PollInitProgress satisfies backend.Backend.
func (c *Client) PollInitProgress(ctx context.Context) (model.ProgressSample, error) {
	return c.progress(ctx, OpGetInitOllamaProgress, nil)
}

// HasInit satisfies backend.Backend.
func (c *Client) HasInit(ctx context.Context) (model.ContainerStatus, error) {
	var resp hasInitJSON
	if err := c.call(ctx, OpHasInitOllama, nil, &resp, true); err != nil {
		return model.ContainerStatus{}, err
	}
	if err := appError(OpHasInitOllama, resp.errorJSON); err != nil {
		return model.ContainerStatus{}, err
	}

	return model.ContainerStatus{
		ContainerPresent: resp.Has,
		IsInitializing:   resp.IsInit,
		IsChangingModel:  resp.IsSetModel,
	}, nil
}

// GetCurrentModel satisfies backend.Backend.
func (c *Client) GetCurrentModel(ctx context.Context) (string, error) {
	var resp currentModelJSON
	if err := c.call(ctx, OpGetCurrentUseModel, nil, &resp, true); err != nil {
		return "", err
	}
	if err := appError(OpGetCurrentUseModel, resp.errorJSON); err != nil {
		return "", err
	}
	return resp.Model, nil
}

// GetModelList satisfies backend.Backend.
func (c *Client) GetModelList(ctx context.Context) ([]string, error) {
	var resp modelListJSON
	if err := c.call(ctx, OpGetSelectModelList, nil, &resp, true); err != nil {
		return nil, err
	}
	if err := appError(OpGetSelectModelList, resp.errorJSON); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// ResetModelChangeTask satisfies backend.Backend.
func (c *Client) ResetModelChangeTask(ctx context.Context) error {
	var resp errorJSON
	if err := c.call(ctx, OpInitSetOllamaModelTask, nil, &resp, true); err != nil {
		return err
	}
	return appError(OpInitSetOllamaModelTask, resp)
}

// TriggerModelChange satisfies backend.Backend.
func (c *Client) TriggerModelChange(ctx context.Context, target string) (model.TriggerResult, error) {
	var resp errorJSON
	if err := c.call(ctx, OpSetOllamaModel, setModelRequestJSON{Model: target}, &resp, true); err != nil {
		return model.TriggerResult{}, err
	}
	return model.TriggerResult{ErrorMessage: resp.ErrorMessage}, nil
}

// PollModelChangeProgress satisfies backend.Backend.
func (c *Client) PollModelChangeProgress(ctx context.Context) (model.ProgressSample, error) {
	return c.progress(ctx, OpGetSetOllamaModelProgress, nil)
}

// Search satisfies backend.Backend.
func (c *Client) Search(ctx context.Context, name string) ([]model.SearchResult, error) {
	var resp searchJSON
	if err := c.call(ctx, OpSearchNovel, searchRequestJSON{Name: name}, &resp, true); err != nil {
		return nil, err
	}
	if err := appError(OpSearchNovel, resp.errorJSON); err != nil {
		return nil, err
	}

	results := make([]model.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, r.toModel())
	}
	return results, nil
}

// TriggerDownload satisfies backend.Backend. An application error is returned
// wrapping model.ErrTriggerRejected.
func (c *Client) TriggerDownload(ctx context.Context, item model.SearchResult) (model.CrawlResult, error) {
	var resp crawlJSON
	if err := c.call(ctx, OpDownloadNovel, searchResultFromModel(item), &resp, false); err != nil {
		return model.CrawlResult{}, err
	}
	if resp.ErrorMessage != "" {
		return model.CrawlResult{}, fmt.Errorf("%s: %w", resp.ErrorMessage, model.ErrTriggerRejected)
	}

	return model.CrawlResult{OutputPath: resp.OutputPath, ElapsedSeconds: resp.TakeTime}, nil
}

// PollDownloadProgress satisfies backend.Backend.
func (c *Client) PollDownloadProgress(ctx context.Context, item model.SearchResult) (model.ProgressSample, error) {
	return c.progress(ctx, OpGetDownloadProgress, searchResultFromModel(item))
}

func (c *Client) progress(ctx context.Context, op string, req any) (model.ProgressSample, error) {
	var resp progressJSON
	if err := c.call(ctx, op, req, &resp, true); err != nil {
		return model.ProgressSample{}, err
	}
	if err := appError(op, resp.errorJSON); err != nil {
		return model.ProgressSample{}, err
	}
	return resp.toModel(), nil
}

func (c *Client) call(ctx context.Context, op string, req, resp any, bounded bool) error {
	if bounded {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader = nethttp.NoBody
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("could not marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	url := c.baseURL + "/api/" + op
	r, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("could not create %s request: %w", op, err)
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(r)
	if err != nil {
		return fmt.Errorf("could not call %s: %w", op, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return fmt.Errorf("%s returned status %d: %s", op, res.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(res.Body).Decode(resp); err != nil {
		return fmt.Errorf("could not decode %s response: %w", op, err)
	}
	c.logger.Debugf("Called %s", op)

	return nil
}

func appError(op string, e errorJSON) error {
	if e.ErrorMessage == "" {
		return nil
	}
	return fmt.Errorf("%s failed: %s", op, e.ErrorMessage)
}
