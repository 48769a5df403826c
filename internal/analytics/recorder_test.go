package analytics

import (
	"SnapLink-Backend/internal/domain"
	"SnapLink-Backend/internal/repository/memory"
	"SnapLink-Backend/pkg/classifier"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		WorkerCount:     2,
		BufferSize:      100,
		MaxBatchSize:    10,
		BatchTimeout:    20 * time.Millisecond,
		ShutdownTimeout: 5 * time.Second,
	}
}

func newTestRecorder(storage *memory.MemStorage, cfg Config) *Recorder {
	log := zap.NewNop()
	return NewRecorder(storage, classifier.New("", log), log, cfg)
}

func TestRecorder_BatchesIntoStorage(t *testing.T) {
	storage := memory.New()
	recorder := newTestRecorder(storage, testConfig())
	require.NoError(t, recorder.Start())
	defer func() { _ = recorder.Stop() }()

	linkID := uuid.New()
	for i := 0; i < 25; i++ {
		recorder.Record(&Click{LinkID: linkID, ClickedAt: time.Now(), IP: "203.0.113.7"})
	}

	require.Eventually(t, func() bool {
		return storage.EventCount() == 25
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(0), recorder.Dropped())
}

func TestRecorder_StopDrainsQueue(t *testing.T) {
	storage := memory.New()
	recorder := newTestRecorder(storage, Config{
		WorkerCount:     1,
		BufferSize:      100,
		MaxBatchSize:    10,
		BatchTimeout:    time.Hour, // only the shutdown flush may fire
		ShutdownTimeout: 5 * time.Second,
	})
	require.NoError(t, recorder.Start())

	linkID := uuid.New()
	for i := 0; i < 20; i++ {
		recorder.Record(&Click{LinkID: linkID, ClickedAt: time.Now()})
	}

	require.NoError(t, recorder.Stop())
	assert.Equal(t, 20, storage.EventCount())
}

// blockingStorage parks InsertClickEvents until released so a test can hold
// the worker busy and fill the queue behind it.
type blockingStorage struct {
	*memory.MemStorage
	release chan struct{}
}

func (b *blockingStorage) InsertClickEvents(ctx context.Context, events []*domain.ClickEvent) error {
	<-b.release
	return b.MemStorage.InsertClickEvents(ctx, events)
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	storage := &blockingStorage{MemStorage: memory.New(), release: make(chan struct{})}
	log := zap.NewNop()
	recorder := NewRecorder(storage, classifier.New("", log), log, Config{
		WorkerCount:     1,
		BufferSize:      2,
		MaxBatchSize:    1,
		BatchTimeout:    time.Millisecond,
		ShutdownTimeout: 5 * time.Second,
	})
	require.NoError(t, recorder.Start())

	linkID := uuid.New()

	// First click occupies the worker inside the blocked insert; give it a
	// moment to be picked up, then fill the queue and overflow it.
	recorder.Record(&Click{LinkID: linkID})
	require.Eventually(t, func() bool {
		return recorder.QueueDepth() == 0
	}, time.Second, time.Millisecond)

	for i := 0; i < 10; i++ {
		recorder.Record(&Click{LinkID: linkID})
	}

	assert.Greater(t, recorder.Dropped(), int64(0))

	close(storage.release)
	require.NoError(t, recorder.Stop())
}

func TestRecorder_RecordAfterStopDrops(t *testing.T) {
	storage := memory.New()
	recorder := newTestRecorder(storage, testConfig())
	require.NoError(t, recorder.Start())
	require.NoError(t, recorder.Stop())

	recorder.Record(&Click{LinkID: uuid.New()})
	assert.Equal(t, int64(1), recorder.Dropped())
}

func TestRecorder_ClassifiesAndHashesIP(t *testing.T) {
	storage := memory.New()
	log := zap.NewNop()
	recorder := NewRecorder(storage, classifier.New("", log), log, testConfig())

	click := &Click{
		LinkID:    uuid.New(),
		ClickedAt: time.Now(),
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Referrer:  "https://news.ycombinator.com/item?id=1",
	}
	event := recorder.toEvent(click)

	require.NotNil(t, event.IPHash)
	assert.Len(t, *event.IPHash, 64)
	assert.NotContains(t, *event.IPHash, "203.0.113.7")

	require.NotNil(t, event.Browser)
	assert.Equal(t, "Chrome", *event.Browser)
	require.NotNil(t, event.OS)
	assert.Equal(t, "Windows", *event.OS)
	require.NotNil(t, event.DeviceType)
	assert.Equal(t, "desktop", *event.DeviceType)
	require.NotNil(t, event.Referrer)
}

func TestAggregator_Idempotent(t *testing.T) {
	storage := memory.New()
	ctx := context.Background()
	linkID := uuid.New()

	now := time.Now()
	hashA := classifier.HashIP("203.0.113.7")
	hashB := classifier.HashIP("203.0.113.8")
	require.NoError(t, storage.InsertClickEvents(ctx, []*domain.ClickEvent{
		{LinkID: linkID, ClickedAt: now, IPHash: &hashA},
		{LinkID: linkID, ClickedAt: now, IPHash: &hashA},
		{LinkID: linkID, ClickedAt: now, IPHash: &hashB},
	}))

	aggregator := NewAggregator(storage, time.Hour, 48*time.Hour, zap.NewNop())
	require.NoError(t, aggregator.RunOnce(ctx))

	first, err := storage.GetDailySummaries(ctx, linkID, 7)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, int64(3), first[0].TotalClicks)
	assert.Equal(t, int64(2), first[0].UniqueVisitors)

	// A second run over the same window must not double-count.
	require.NoError(t, aggregator.RunOnce(ctx))

	second, err := storage.GetDailySummaries(ctx, linkID, 7)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].TotalClicks, second[0].TotalClicks)
	assert.Equal(t, first[0].UniqueVisitors, second[0].UniqueVisitors)
}
