// Package delivery decides which subscribers receive which offers and records
// the outcome.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"freegames_bot/internal/model"
	"freegames_bot/internal/storage"
)

// Defaults applied by New when Options leave a field unset.
const (
	DefaultViewLimit     = 15
	DefaultSendRate      = 20
	DefaultParallelSends = 8
)

// Notifier delivers a single offer to a single recipient.
type Notifier interface {
	Notify(ctx context.Context, recipientID int64, offer model.Offer) error
}

// Options tunes an Engine.
type Options struct {
	// Defaults are the interests given to subscribers on first contact.
	Defaults model.SourceSet
	// ViewLimit caps the number of offers returned by Available.
	ViewLimit int
	// SendRate is the maximum number of outbound messages per second.
	SendRate float64
	// ParallelSends bounds concurrent sends for one offer.
	ParallelSends int
}

// Engine runs the Broadcast, SingleTarget and read-only view passes.
type Engine struct {
	store     storage.Storage
	notifier  Notifier
	limiter   *rate.Limiter
	defaults  model.SourceSet
	viewLimit int
	parallel  int
	now       func() time.Time
	log       *slog.Logger
}

// TargetResult is the outcome of a SingleTarget pass.
type TargetResult struct {
	Report model.DeliveryReport
	// Muted is set when the subscriber was muted and nothing was attempted.
	Muted bool
}

// New creates an Engine.
func New(store storage.Storage, notifier Notifier, opts Options, log *slog.Logger) *Engine {
	if opts.ViewLimit <= 0 {
		opts.ViewLimit = DefaultViewLimit
	}
	if opts.SendRate <= 0 {
		opts.SendRate = DefaultSendRate
	}
	if opts.ParallelSends <= 0 {
		opts.ParallelSends = DefaultParallelSends
	}
	if opts.Defaults == nil {
		opts.Defaults = model.NewSourceSet(model.SourceEpic, model.SourceSteam)
	}

	return &Engine{
		store:     store,
		notifier:  notifier,
		limiter:   rate.NewLimiter(rate.Limit(opts.SendRate), 1),
		defaults:  opts.Defaults,
		viewLimit: opts.ViewLimit,
		parallel:  opts.ParallelSends,
		now:       time.Now,
		log:       log,
	}
}

// SetClock overrides the time source used for mute checks and records.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Defaults returns the interests assigned to new subscribers.
func (e *Engine) Defaults() model.SourceSet {
	return e.defaults
}

// ViewLimit returns the cap applied by Available.
func (e *Engine) ViewLimit() int {
	return e.viewLimit
}

// Broadcast delivers offers to every eligible subscriber. The subscriber list
// is read once at the start of the pass. A store error aborts the pass and is
// returned together with the counters gathered so far.
func (e *Engine) Broadcast(ctx context.Context, offers []model.Offer) (model.DeliveryReport, error) {
	var report model.DeliveryReport

	subs, err := e.store.ListAll(ctx)
	if err != nil {
		return report, fmt.Errorf("list subscribers: %w", err)
	}

	handled := make(map[string]struct{}, len(offers))
	for _, offer := range offers {
		r, err := e.deliverOffer(ctx, offer, subs, handled)
		report.Add(r)
		if err != nil {
			return report, err
		}
	}

	e.log.Info("broadcast finished",
		"offers", len(offers),
		"subscribers", len(subs),
		"delivered", report.Delivered,
		"skipped_dedup", report.SkippedDedup,
		"skipped_preference", report.SkippedPreference,
		"failed", report.Failed,
	)
	return report, nil
}

// DeliverTo runs the same matching and dedup rules against a single
// subscriber, creating it with default interests when absent.
func (e *Engine) DeliverTo(ctx context.Context, offers []model.Offer, id int64) (TargetResult, error) {
	sub, err := e.store.GetOrCreate(ctx, id, e.defaults)
	if err != nil {
		return TargetResult{}, fmt.Errorf("load subscriber: %w", err)
	}
	if sub.IsMuted(e.now()) {
		return TargetResult{Muted: true}, nil
	}

	var res TargetResult
	subs := []model.Subscriber{*sub}
	handled := make(map[string]struct{}, len(offers))
	for _, offer := range offers {
		r, err := e.deliverOffer(ctx, offer, subs, handled)
		res.Report.Add(r)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// Available lists the offers matching the subscriber's interests. Mute state
// and delivery records are ignored and never written.
func (e *Engine) Available(ctx context.Context, offers []model.Offer, id int64) (model.View, error) {
	sub, err := e.store.GetOrCreate(ctx, id, e.defaults)
	if err != nil {
		return model.View{}, fmt.Errorf("load subscriber: %w", err)
	}

	var view model.View
	for _, offer := range offers {
		if !sub.Wants(offer.Source) {
			continue
		}
		if len(view.Offers) == e.viewLimit {
			view.Truncated = true
			break
		}
		view.Offers = append(view.Offers, offer)
	}
	return view, nil
}

// deliverOffer evaluates one offer against subs. Dedup and preference skips
// are counted once per offer and once per subscriber respectively.
func (e *Engine) deliverOffer(ctx context.Context, offer model.Offer, subs []model.Subscriber, handled map[string]struct{}) (model.DeliveryReport, error) {
	var report model.DeliveryReport

	// A key repeated within one pass is decided by its first occurrence.
	if _, ok := handled[offer.Key]; ok {
		report.SkippedDedup++
		return report, nil
	}
	handled[offer.Key] = struct{}{}

	delivered, err := e.store.WasDelivered(ctx, offer.Key)
	if err != nil {
		return report, fmt.Errorf("check delivered %q: %w", offer.Key, err)
	}
	if delivered {
		report.SkippedDedup++
		return report, nil
	}

	now := e.now()
	targets := make([]int64, 0, len(subs))
	for _, sub := range subs {
		if sub.IsMuted(now) || !sub.Wants(offer.Source) {
			report.SkippedPreference++
			continue
		}
		targets = append(targets, sub.ID)
	}
	if len(targets) == 0 {
		return report, nil
	}

	sent, failed := e.send(ctx, offer, targets)
	report.Delivered += sent
	report.Failed += failed

	if sent == 0 {
		e.log.Debug("offer not delivered, will retry", "key", offer.Key, "failed", failed)
		return report, nil
	}
	if err := e.store.MarkDelivered(ctx, offer.Key, e.now()); err != nil {
		return report, fmt.Errorf("mark delivered %q: %w", offer.Key, err)
	}
	return report, nil
}

// send notifies every recipient independently and returns the number of
// successful and failed sends.
func (e *Engine) send(ctx context.Context, offer model.Offer, recipients []int64) (int, int) {
	var sent, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(e.parallel)
	for _, id := range recipients {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					e.log.Error("panic delivering offer", "chat_id", id, "key", offer.Key, "panic", r, "stack", string(debug.Stack()))
				}
			}()
			if err := e.limiter.Wait(ctx); err != nil {
				failed.Add(1)
				e.log.Warn("rate limiter", "chat_id", id, "key", offer.Key, "error", err)
				return nil
			}
			if err := e.notifier.Notify(ctx, id, offer); err != nil {
				failed.Add(1)
				e.log.Warn("deliver offer", "chat_id", id, "key", offer.Key, "error", err)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(sent.Load()), int(failed.Load())
}
