package service

import (
	"SnapLink-Backend/internal/repository"
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically purges expired links from the store. Keeping GC out
// of the resolve path means redirects never pay for cleanup; an expired
// link that has not been swept yet is still refused by the Resolver.
type Sweeper struct {
	storage  repository.Storage
	interval time.Duration
	log      *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper creates a Sweeper running at the given interval.
func NewSweeper(storage repository.Storage, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		storage:  storage,
		interval: interval,
		log:      log,
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	s.log.Info("expired-link sweeper started", zap.Duration("interval", s.interval))
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info("expired-link sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	count, err := s.storage.PurgeExpired(sweepCtx)
	if err != nil {
		s.log.Error("expired-link sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.log.Info("swept expired links", zap.Int64("purged", count))
	}
}
