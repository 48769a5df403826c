package analytics

import (
	"SnapLink-Backend/internal/repository"
	"context"
	"time"

	"go.uber.org/zap"
)

// Aggregator periodically folds raw click events into per-day summaries.
// The store-side upsert is keyed by (link_id, date) and recomputes full
// totals, so overlapping runs over the same window converge to the same
// rows; the trailing window only bounds how much history each run rescans.
type Aggregator struct {
	storage  repository.Storage
	interval time.Duration
	window   time.Duration
	log      *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewAggregator creates an Aggregator running every interval over the
// trailing window.
func NewAggregator(storage repository.Storage, interval, window time.Duration, log *zap.Logger) *Aggregator {
	return &Aggregator{
		storage:  storage,
		interval: interval,
		window:   window,
		log:      log,
	}
}

// Start launches the aggregation loop.
func (a *Aggregator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.run(ctx)
	a.log.Info("daily summary aggregator started",
		zap.Duration("interval", a.interval),
		zap.Duration("window", a.window))
}

// Stop terminates the loop and waits for it to exit.
func (a *Aggregator) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
	a.log.Info("daily summary aggregator stopped")
}

// RunOnce aggregates the trailing window immediately. Safe to call at any
// time; repeated runs are idempotent.
func (a *Aggregator) RunOnce(ctx context.Context) error {
	since := time.Now().Add(-a.window)

	affected, err := a.storage.AggregateDailySummaries(ctx, since)
	if err != nil {
		a.log.Error("daily summary aggregation failed", zap.Error(err))
		return err
	}

	a.log.Info("aggregated daily summaries",
		zap.Int64("rows", affected),
		zap.Time("since", since))
	return nil
}

func (a *Aggregator) run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			// Failures are logged inside; the next tick retries. Analytics
			// health never propagates to request handling.
			_ = a.RunOnce(runCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
