package model

import "fmt"

// SearchResult is a novel found on the configured book source, it's the download item.
type SearchResult struct {
	URL           string
	BookName      string
	Author        string
	Intro         string
	LatestChapter string
	LatestUpdate  string
}

// Validate validates the search result can be used as a download item.
func (s SearchResult) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("url is required: %w", ErrNotValid)
	}
	return nil
}

// Title returns a displayable name for the item.
func (s SearchResult) Title() string {
	if s.BookName != "" {
		return s.BookName
	}
	return s.URL
}

// CrawlResult is the outcome of a finished download.
type CrawlResult struct {
	OutputPath     string
	ElapsedSeconds float64
}
