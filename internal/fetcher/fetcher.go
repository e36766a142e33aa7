// Package fetcher downloads syndication feeds and aggregates them into offers.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/mmcdole/gofeed"

	"freegames_bot/internal/model"
)

// ErrFetch marks a failure to download or parse one feed source.
var ErrFetch = errors.New("fetch feed")

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FeedSource returns the raw entries published at a feed URL.
type FeedSource interface {
	Fetch(ctx context.Context, url string) ([]model.RawEntry, error)
}

// Fetcher downloads and parses RSS and Atom feeds.
type Fetcher struct {
	client HTTPClient
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{client: client}
}

// NewHTTPClient returns the client used for feed downloads. When safe is set,
// requests to private, loopback and link-local addresses are refused.
func NewHTTPClient(safe bool, timeout time.Duration) *http.Client {
	if !safe {
		return &http.Client{Timeout: timeout}
	}
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// Fetch downloads the feed at url and returns its entries in feed order.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]model.RawEntry, error) {
	feed, err := f.fetchFeed(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrFetch, url, err)
	}

	entries := make([]model.RawEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, model.RawEntry{
			GUID:  item.GUID,
			Title: item.Title,
			Link:  item.Link,
		})
	}
	return entries, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "FreeGamesBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("feed too large: over %d bytes", maxBodySize)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}
