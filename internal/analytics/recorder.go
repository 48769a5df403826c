package analytics

import (
	"SnapLink-Backend/internal/domain"
	"SnapLink-Backend/internal/metrics"
	"SnapLink-Backend/internal/repository"
	"SnapLink-Backend/pkg/classifier"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Click is a raw click handed over by the redirect path. Classification and
// IP hashing happen on the worker side so the redirect never pays for them.
type Click struct {
	LinkID    uuid.UUID
	ClickedAt time.Time
	IP        string
	UserAgent string
	Referrer  string
}

// Config holds configuration for the click recorder.
type Config struct {
	WorkerCount     int           // Number of worker goroutines
	BufferSize      int           // Size of the bounded click queue
	MaxBatchSize    int           // Maximum events per insert
	BatchTimeout    time.Duration // Maximum time a partial batch may wait
	ShutdownTimeout time.Duration // Time to wait for the drain on Stop
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		WorkerCount:     3,
		BufferSize:      1000,
		MaxBatchSize:    50,
		BatchTimeout:    5 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Recorder persists click events asynchronously. Producers enqueue into a
// single bounded channel; a small worker pool drains it and writes batched
// inserts. When the queue is full the newest click is dropped and counted —
// the detail row is best-effort, the link's click_count (owned by the
// Resolver) is not affected.
type Recorder struct {
	cfg        Config
	storage    repository.Storage
	classifier *classifier.Classifier
	log        *zap.Logger
	queue      chan *Click
	wg         sync.WaitGroup
	dropped    atomic.Int64
	started    bool
	mu         sync.RWMutex
}

// NewRecorder creates a click recorder.
func NewRecorder(storage repository.Storage, cls *classifier.Classifier, log *zap.Logger, cfg Config) *Recorder {
	return &Recorder{
		cfg:        cfg,
		storage:    storage,
		classifier: cls,
		log:        log,
		queue:      make(chan *Click, cfg.BufferSize),
	}
}

// Start launches the worker pool.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("recorder already started")
	}

	r.log.Info("starting click recorder",
		zap.Int("workers", r.cfg.WorkerCount),
		zap.Int("buffer_size", r.cfg.BufferSize),
		zap.Int("max_batch_size", r.cfg.MaxBatchSize))

	for i := 0; i < r.cfg.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.started = true
	return nil
}

// Stop closes the queue and waits for the workers to drain pending clicks
// and flush their batches. Clicks still in the queue at shutdown are
// persisted, not lost, as long as the drain finishes within the timeout.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return fmt.Errorf("recorder not started")
	}
	r.started = false
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("click recorder stopped", zap.Int64("total_dropped", r.dropped.Load()))
		return nil
	case <-time.After(r.cfg.ShutdownTimeout):
		r.log.Warn("click recorder shutdown timeout reached")
		return fmt.Errorf("shutdown timeout reached")
	}
}

// Record enqueues a click without blocking. A full queue drops the click
// and increments the drop counter; callers never see an error because
// redirect integrity must not depend on analytics health.
func (r *Recorder) Record(click *Click) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.started {
		r.dropped.Add(1)
		metrics.AnalyticsDropped.Inc()
		return
	}

	select {
	case r.queue <- click:
	default:
		r.dropped.Add(1)
		metrics.AnalyticsDropped.Inc()
		r.log.Debug("analytics queue full, dropping click",
			zap.String("link_id", click.LinkID.String()),
			zap.Int("queue_size", len(r.queue)))
	}
}

// Dropped returns how many clicks have been dropped since start.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// QueueDepth returns the current queue length, for observability.
func (r *Recorder) QueueDepth() int {
	return len(r.queue)
}

// worker drains the queue into batched inserts. A batch is flushed when it
// reaches MaxBatchSize or when BatchTimeout elapses with events pending.
func (r *Recorder) worker(workerID int) {
	defer r.wg.Done()

	log := r.log.With(zap.Int("worker_id", workerID))
	log.Info("analytics worker started")

	batch := make([]*domain.ClickEvent, 0, r.cfg.MaxBatchSize)
	ticker := time.NewTicker(r.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case click, ok := <-r.queue:
			if !ok {
				r.flush(log, batch)
				log.Info("analytics worker stopped")
				return
			}
			batch = append(batch, r.toEvent(click))
			if len(batch) >= r.cfg.MaxBatchSize {
				r.flush(log, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(log, batch)
				batch = batch[:0]
			}
		}
	}
}

// flush inserts a batch. Failures are logged and the batch is abandoned;
// this path is best-effort by contract.
func (r *Recorder) flush(log *zap.Logger, batch []*domain.ClickEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.storage.InsertClickEvents(ctx, batch); err != nil {
		log.Error("failed to insert click event batch",
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
		return
	}

	metrics.AnalyticsInserted.Add(float64(len(batch)))
	log.Debug("inserted click event batch", zap.Int("batch_size", len(batch)))
}

// toEvent classifies the user agent, hashes the IP and builds the durable
// event row. The raw IP never leaves this function.
func (r *Recorder) toEvent(click *Click) *domain.ClickEvent {
	event := &domain.ClickEvent{
		LinkID:    click.LinkID,
		ClickedAt: click.ClickedAt,
	}
	if event.ClickedAt.IsZero() {
		event.ClickedAt = time.Now()
	}

	if click.Referrer != "" {
		referrer := click.Referrer
		event.Referrer = &referrer
	}
	if click.IP != "" {
		hash := classifier.HashIP(click.IP)
		event.IPHash = &hash
	}
	if click.UserAgent != "" {
		ua := click.UserAgent
		event.UserAgent = &ua

		info := r.classifier.Classify(click.UserAgent)
		event.Browser = &info.Browser
		event.OS = &info.OS
		event.DeviceType = &info.DeviceType
	}

	return event
}
