package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"freegames_bot/internal/classifier"
	"freegames_bot/internal/model"
)

// DefaultEntryLimit is the number of entries consumed per source and cycle.
const DefaultEntryLimit = 50

const maxParallelFetches = 4

// FailureRecorder receives per-source fetch outcomes.
type FailureRecorder interface {
	RecordFetch(url string, err error)
}

// Aggregator fetches all configured sources and turns their entries into offers.
type Aggregator struct {
	source     FeedSource
	classifier *classifier.Classifier
	limit      int
	log        *slog.Logger
	recorder   FailureRecorder
}

// NewAggregator creates an Aggregator. A limit below DefaultEntryLimit is raised to it.
func NewAggregator(source FeedSource, c *classifier.Classifier, limit int, log *slog.Logger) *Aggregator {
	if limit < DefaultEntryLimit {
		limit = DefaultEntryLimit
	}
	return &Aggregator{
		source:     source,
		classifier: c,
		limit:      limit,
		log:        log,
	}
}

// SetRecorder attaches a recorder for fetch outcomes.
func (a *Aggregator) SetRecorder(r FailureRecorder) {
	a.recorder = r
}

// Aggregate fetches every url and returns the classified offers in source
// order, then entry order. Entries sharing a key are all kept. A failing
// source contributes no offers; its error is returned as a warning and never
// stops the other sources.
func (a *Aggregator) Aggregate(ctx context.Context, urls []string) ([]model.Offer, []error) {
	perSource := make([][]model.Offer, len(urls))
	errs := make([]error, len(urls))

	var g errgroup.Group
	g.SetLimit(maxParallelFetches)
	for i, url := range urls {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					perSource[i] = nil
					errs[i] = fmt.Errorf("%w %s: panic: %v", ErrFetch, url, r)
					a.log.Error("panic fetching feed source", "url", url, "panic", r, "stack", string(debug.Stack()))
				}
			}()
			offers, err := a.fetchSource(ctx, url)
			perSource[i], errs[i] = offers, err
			return nil
		})
	}
	_ = g.Wait()

	var offers []model.Offer
	var warnings []error
	for i, url := range urls {
		if a.recorder != nil {
			a.recorder.RecordFetch(url, errs[i])
		}
		if errs[i] != nil {
			a.log.Warn("feed source failed", "url", url, "error", errs[i])
			warnings = append(warnings, errs[i])
			continue
		}
		offers = append(offers, perSource[i]...)
	}
	return offers, warnings
}

func (a *Aggregator) fetchSource(ctx context.Context, url string) ([]model.Offer, error) {
	entries, err := a.source.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(entries) > a.limit {
		entries = entries[:a.limit]
	}

	offers := make([]model.Offer, 0, len(entries))
	for _, e := range entries {
		o, ok := a.classifier.Classify(e)
		if !ok {
			continue
		}
		offers = append(offers, o)
	}
	a.log.Debug("feed source fetched", "url", url, "entries", len(entries), "offers", len(offers))
	return offers, nil
}
