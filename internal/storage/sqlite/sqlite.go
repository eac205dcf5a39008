package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/storage"
	"github.com/fynovel/fyctl/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	schema *migrations.Schema
	logger log.Logger
}

var _ storage.Repository = &Repository{}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	schema, err := migrations.NewSchema(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create schema migrator: %w", err)
	}
	if _, err := schema.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, schema: schema, logger: cfg.Logger}, nil
}

// SchemaVersion returns the applied schema version.
func (r *Repository) SchemaVersion(ctx context.Context) (uint, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, dirty, err := r.schema.Version()
	if err != nil {
		return 0, fmt.Errorf("could not get schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// CreateTaskRun stores a finished task session.
func (r *Repository) CreateTaskRun(ctx context.Context, run model.TaskRun) error {
	if run.ID == "" {
		return fmt.Errorf("task run id is required: %w", model.ErrNotValid)
	}
	if err := run.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid task run kind %q: %w", run.Kind, err)
	}

	query := `
		INSERT INTO task_runs (id, kind, subject, state, percent, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Kind,
		run.Subject,
		run.State,
		run.Percent,
		run.Error,
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: task_runs.") {
			return fmt.Errorf("task run %s: %w", run.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert task run: %w", err)
	}

	r.logger.Debugf("Created task run in repository: %s", run.ID)
	return nil
}

// GetTaskRun retrieves a task run by ID.
func (r *Repository) GetTaskRun(ctx context.Context, id string) (*model.TaskRun, error) {
	query := `
		SELECT id, kind, subject, state, percent, error, started_at, finished_at
		FROM task_runs
		WHERE id = ?
	`

	run, err := scanTaskRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task run %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task run: %w", err)
	}

	return &run, nil
}

// ListTaskRuns returns the task runs from the most recent.
func (r *Repository) ListTaskRuns(ctx context.Context, filter storage.TaskRunFilter) ([]model.TaskRun, error) {
	query := `
		SELECT id, kind, subject, state, percent, error, started_at, finished_at
		FROM task_runs
	`
	args := []any{}
	if filter.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, filter.Kind)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query task runs: %w", err)
	}
	defer rows.Close()

	runs := []model.TaskRun{}
	for rows.Next() {
		run, err := scanTaskRun(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

// SaveSearchResults replaces the cached search results.
func (r *Repository) SaveSearchResults(ctx context.Context, query string, results []model.SearchResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearSearch(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO search_queries (id, query, created_at) VALUES (1, ?, ?)`, query, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("could not insert search query: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO search_results (position, url, book_name, author, intro, latest_chapter, latest_update)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("could not prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, s := range results {
		_, err := stmt.ExecContext(ctx, i, s.URL, s.BookName, s.Author, s.Intro, s.LatestChapter, s.LatestUpdate)
		if err != nil {
			return fmt.Errorf("could not insert search result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Cached %d search results for %q", len(results), query)
	return nil
}

// GetSearchResults returns the cached search results.
func (r *Repository) GetSearchResults(ctx context.Context) (string, []model.SearchResult, error) {
	var query string
	err := r.db.QueryRowContext(ctx, `SELECT query FROM search_queries WHERE id = 1`).Scan(&query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, fmt.Errorf("search results: %w", model.ErrNotFound)
		}
		return "", nil, fmt.Errorf("could not query search query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT url, book_name, author, intro, latest_chapter, latest_update
		FROM search_results
		ORDER BY position ASC
	`)
	if err != nil {
		return "", nil, fmt.Errorf("could not query search results: %w", err)
	}
	defer rows.Close()

	results := []model.SearchResult{}
	for rows.Next() {
		var s model.SearchResult
		if err := rows.Scan(&s.URL, &s.BookName, &s.Author, &s.Intro, &s.LatestChapter, &s.LatestUpdate); err != nil {
			return "", nil, fmt.Errorf("could not scan row: %w", err)
		}
		results = append(results, s)
	}

	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return query, results, nil
}

// ClearSearchResults removes the cached search results.
func (r *Repository) ClearSearchResults(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearSearch(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

func clearSearch(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM search_results`); err != nil {
		return fmt.Errorf("could not delete search results: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM search_queries`); err != nil {
		return fmt.Errorf("could not delete search query: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTaskRun(s scanner) (model.TaskRun, error) {
	var run model.TaskRun
	var startedAt, finishedAt int64

	err := s.Scan(
		&run.ID,
		&run.Kind,
		&run.Subject,
		&run.State,
		&run.Percent,
		&run.Error,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return model.TaskRun{}, err
	}

	run.StartedAt = timeFromUnixMilli(startedAt)
	run.FinishedAt = timeFromUnixMilli(finishedAt)

	return run, nil
}

func timeFromUnixMilli(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
