// Package scheduler drives the fetch, decide and deliver cycle.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"freegames_bot/internal/model"
)

// State is the scheduler's externally visible state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Aggregator collects offers from the configured feed sources.
type Aggregator interface {
	Aggregate(ctx context.Context, urls []string) ([]model.Offer, []error)
}

// Broadcaster delivers offers to every eligible subscriber.
type Broadcaster interface {
	Broadcast(ctx context.Context, offers []model.Offer) (model.DeliveryReport, error)
}

// CycleRecorder receives the outcome of every cycle.
type CycleRecorder interface {
	RecordCycle(report model.DeliveryReport, took time.Duration, err error)
}

// Clock abstracts time so cycle boundaries can be driven by tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type nopRecorder struct{}

func (nopRecorder) RecordCycle(model.DeliveryReport, time.Duration, error) {}

// Scheduler periodically aggregates feeds and broadcasts new offers.
type Scheduler struct {
	agg      Aggregator
	engine   Broadcaster
	urls     []string
	interval time.Duration
	clock    Clock
	recorder CycleRecorder
	log      *slog.Logger

	running atomic.Int32
	trigger chan struct{}
}

// New creates a Scheduler polling urls every interval.
func New(agg Aggregator, engine Broadcaster, urls []string, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		agg:      agg,
		engine:   engine,
		urls:     urls,
		interval: interval,
		clock:    realClock{},
		recorder: nopRecorder{},
		log:      log,
		trigger:  make(chan struct{}, 1),
	}
}

// SetClock replaces the real clock (useful for testing).
func (s *Scheduler) SetClock(c Clock) {
	s.clock = c
}

// SetRecorder attaches a recorder for cycle outcomes.
func (s *Scheduler) SetRecorder(r CycleRecorder) {
	s.recorder = r
}

// Interval returns the poll interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// State reports Running while at least one cycle is executing.
func (s *Scheduler) State() State {
	if s.running.Load() > 0 {
		return Running
	}
	return Idle
}

// Trigger requests an immediate cycle from the Run loop. It never blocks;
// requests made while one is already pending are merged.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run executes a cycle immediately and then one per interval or trigger,
// blocking until ctx is cancelled. Cycle errors are logged and never stop
// the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", "interval", s.interval, "sources", len(s.urls))

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-s.clock.After(s.interval):
		case <-s.trigger:
			s.log.Debug("manual trigger")
		}
	}
}

// RunOnce executes a single cycle. A panic inside the cycle is recovered and
// returned as an error. RunOnce may be called concurrently with Run.
func (s *Scheduler) RunOnce(ctx context.Context) (report model.DeliveryReport, err error) {
	s.running.Add(1)
	defer s.running.Add(-1)

	log := s.log.With("cycle_id", uuid.NewString())
	start := s.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
		took := s.clock.Now().Sub(start)
		s.recorder.RecordCycle(report, took, err)
		if err == nil {
			log.Debug("cycle finished", "took", took, "delivered", report.Delivered)
		}
	}()

	offers, warnings := s.agg.Aggregate(ctx, s.urls)
	if len(s.urls) > 0 && len(warnings) == len(s.urls) {
		log.Warn("all feed sources failed", "sources", len(s.urls))
	}

	report, err = s.engine.Broadcast(ctx, offers)
	if err != nil {
		return report, fmt.Errorf("broadcast: %w", err)
	}
	return report, nil
}
