package service

import (
	"SnapLink-Backend/internal/analytics"
	"SnapLink-Backend/internal/cache"
	"SnapLink-Backend/internal/config"
	"SnapLink-Backend/internal/domain"
	"SnapLink-Backend/internal/repository"
	"SnapLink-Backend/internal/repository/memory"
	"SnapLink-Backend/pkg/keygen"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorderStub captures recorded clicks without any queueing.
type recorderStub struct {
	mu     sync.Mutex
	clicks []*analytics.Click
}

func (r *recorderStub) Record(click *analytics.Click) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clicks = append(r.clicks, click)
}

func (r *recorderStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clicks)
}

// MockStorage is a testify mock of repository.Storage for failure-path
// tests; the happy paths run on the real in-memory storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateLink(ctx context.Context, link *domain.Link) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockStorage) GetLink(ctx context.Context, key string) (*domain.Link, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockStorage) IncrementClickCount(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorage) DeleteLink(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorage) ListLinks(ctx context.Context, limit, offset int, ownerID *uuid.UUID) ([]*domain.Link, error) {
	args := m.Called(ctx, limit, offset, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Link), args.Error(1)
}

func (m *MockStorage) PurgeExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) InsertClickEvents(ctx context.Context, events []*domain.ClickEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockStorage) AggregateDailySummaries(ctx context.Context, since time.Time) (int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) GetDailySummaries(ctx context.Context, linkID uuid.UUID, days int) ([]*domain.DailySummary, error) {
	args := m.Called(ctx, linkID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DailySummary), args.Error(1)
}

func (m *MockStorage) GetClickBreakdown(ctx context.Context, linkID uuid.UUID, days int) (*domain.ClickBreakdown, error) {
	args := m.Called(ctx, linkID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClickBreakdown), args.Error(1)
}

func (m *MockStorage) ListClickEvents(ctx context.Context, linkID uuid.UUID, limit int) ([]*domain.ClickEvent, error) {
	args := m.Called(ctx, linkID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ClickEvent), args.Error(1)
}

func (m *MockStorage) GetOwnerByAPIKey(ctx context.Context, key string) (uuid.UUID, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func newTestResolver(t *testing.T, storage repository.Storage) (*Resolver, *cache.LinkCache, *recorderStub) {
	t.Helper()

	linkCache := cache.New(100, time.Minute, zap.NewNop())
	gen, err := keygen.New(7)
	require.NoError(t, err)
	recorder := &recorderStub{}

	cfg := &config.Resolver{
		BaseURL:      "http://localhost:8080",
		KeyLength:    7,
		MaxListLimit: 100,
	}

	return NewResolver(storage, linkCache, gen, recorder, cfg, zap.NewNop()), linkCache, recorder
}

func TestCreateThenResolve_ReturnsOriginalURL(t *testing.T) {
	storage := memory.New()
	resolver, _, recorder := newTestResolver(t, storage)
	ctx := context.Background()

	link, err := resolver.Create(ctx, "https://example.com/a", "", nil, nil)
	require.NoError(t, err)
	require.Len(t, link.Key, 7)

	got, err := resolver.Resolve(ctx, link.Key, ClickMeta{IP: "203.0.113.7", UserAgent: "test"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", got)

	stored, err := storage.GetLink(ctx, link.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ClickCount)
	assert.Equal(t, 1, recorder.count())
}

func TestCreate_InvalidURL(t *testing.T) {
	resolver, _, _ := newTestResolver(t, memory.New())
	ctx := context.Background()

	for _, raw := range []string{"", "notaurl", "ftp://example.com/file", "http://"} {
		_, err := resolver.Create(ctx, raw, "", nil, nil)
		assert.ErrorIs(t, err, ErrInvalidURL, "url %q should be rejected", raw)
	}
}

func TestCreate_InvalidAlias(t *testing.T) {
	resolver, _, _ := newTestResolver(t, memory.New())

	_, err := resolver.Create(context.Background(), "https://example.com", "has space", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAlias)

	_, err = resolver.Create(context.Background(), "https://example.com", "waytoolongalias", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAlias)
}

func TestCreate_CustomAliasTaken(t *testing.T) {
	resolver, _, _ := newTestResolver(t, memory.New())
	ctx := context.Background()

	_, err := resolver.Create(ctx, "https://example.com/a", "mylink", nil, nil)
	require.NoError(t, err)

	_, err = resolver.Create(ctx, "https://example.com/b", "mylink", nil, nil)
	assert.ErrorIs(t, err, ErrAliasTaken)
}

func TestCreate_ConcurrentSameAlias_ExactlyOneWins(t *testing.T) {
	resolver, _, _ := newTestResolver(t, memory.New())
	ctx := context.Background()

	const attempts = 10
	results := make(chan error, attempts)

	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			_, err := resolver.Create(ctx, "https://example.com", "contested", nil, nil)
			results <- err
		}()
	}
	start.Done()

	var wins, conflicts int
	for i := 0; i < attempts; i++ {
		err := <-results
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAliasTaken):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, conflicts)
}

func TestCreate_ConcurrentGeneratedKeysAreDistinct(t *testing.T) {
	resolver, _, _ := newTestResolver(t, memory.New())
	ctx := context.Background()

	const n = 50
	keys := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			link, err := resolver.Create(ctx, "https://example.com", "", nil, nil)
			require.NoError(t, err)
			keys <- link.Key
		}()
	}
	wg.Wait()
	close(keys)

	seen := make(map[string]struct{})
	for key := range keys {
		_, dup := seen[key]
		assert.False(t, dup, "duplicate key %s", key)
		seen[key] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestCreate_GenerationExhausted(t *testing.T) {
	mockStorage := &MockStorage{}
	mockStorage.On("CreateLink", mock.Anything, mock.Anything).Return(repository.ErrKeyExists)

	resolver, _, _ := newTestResolver(t, mockStorage)

	_, err := resolver.Create(context.Background(), "https://example.com", "", nil, nil)
	assert.ErrorIs(t, err, ErrGenerationExhausted)
	mockStorage.AssertNumberOfCalls(t, "CreateLink", 5)
}

func TestResolve_NotFound(t *testing.T) {
	resolver, _, _ := newTestResolver(t, memory.New())

	_, err := resolver.Resolve(context.Background(), "missing", ClickMeta{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_ExpiredLink(t *testing.T) {
	storage := memory.New()
	resolver, linkCache, recorder := newTestResolver(t, storage)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	link := &domain.Link{Key: "expired", OriginalURL: "https://example.com", ExpiresAt: &past}
	require.NoError(t, storage.CreateLink(ctx, link))

	// Simulate a snapshot cached before the link expired.
	linkCache.Put("expired", link)

	_, err := resolver.Resolve(ctx, "expired", ClickMeta{})
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, 0, recorder.count(), "no click should be recorded for an expired link")

	// Stats stay readable after expiry; only redirection is blocked.
	stats, err := resolver.GetStats(ctx, "expired")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", stats.OriginalURL)
	assert.True(t, stats.IsExpired())
}

func TestResolve_ConcurrentClickCounting(t *testing.T) {
	storage := memory.New()
	resolver, _, recorder := newTestResolver(t, storage)
	ctx := context.Background()

	link, err := resolver.Create(ctx, "https://example.com", "", nil, nil)
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := resolver.Resolve(ctx, link.Key, ClickMeta{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := storage.GetLink(ctx, link.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stored.ClickCount)
	assert.Equal(t, n, recorder.count())
}

func TestResolve_RepopulatesCacheOnMiss(t *testing.T) {
	storage := memory.New()
	resolver, linkCache, _ := newTestResolver(t, storage)
	ctx := context.Background()

	link, err := resolver.Create(ctx, "https://example.com", "", nil, nil)
	require.NoError(t, err)

	// Simulate eviction, then a resolve should reload from the store and
	// put the entry back.
	linkCache.Invalidate(link.Key)
	_, ok := linkCache.Get(link.Key)
	require.False(t, ok)

	_, err = resolver.Resolve(ctx, link.Key, ClickMeta{})
	require.NoError(t, err)

	_, ok = linkCache.Get(link.Key)
	assert.True(t, ok)
}

func TestResolve_RetriesTransientReadFailure(t *testing.T) {
	mockStorage := &MockStorage{}
	link := &domain.Link{ID: uuid.New(), Key: "abc123", OriginalURL: "https://example.com"}
	mockStorage.On("GetLink", mock.Anything, "abc123").Return(nil, errors.New("connection reset")).Once()
	mockStorage.On("GetLink", mock.Anything, "abc123").Return(link, nil).Once()
	mockStorage.On("IncrementClickCount", mock.Anything, "abc123").Return(nil)

	resolver, _, _ := newTestResolver(t, mockStorage)

	got, err := resolver.Resolve(context.Background(), "abc123", ClickMeta{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got)
	mockStorage.AssertExpectations(t)
}

func TestDelete_Idempotent(t *testing.T) {
	storage := memory.New()
	resolver, linkCache, _ := newTestResolver(t, storage)
	ctx := context.Background()

	link, err := resolver.Create(ctx, "https://example.com", "", nil, nil)
	require.NoError(t, err)

	require.NoError(t, resolver.Delete(ctx, link.Key, nil))

	_, ok := linkCache.Get(link.Key)
	assert.False(t, ok, "cache entry should be invalidated on delete")

	err = resolver.Delete(ctx, link.Key, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = resolver.Resolve(ctx, link.Key, ClickMeta{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_OwnedLinkRequiresMatchingOwner(t *testing.T) {
	storage := memory.New()
	resolver, _, _ := newTestResolver(t, storage)
	ctx := context.Background()
	owner := uuid.New()
	stranger := uuid.New()

	link, err := resolver.Create(ctx, "https://example.com", "", nil, &owner)
	require.NoError(t, err)

	err = resolver.Delete(ctx, link.Key, nil)
	assert.ErrorIs(t, err, ErrNotFound, "anonymous caller must not delete an owned link")

	err = resolver.Delete(ctx, link.Key, &stranger)
	assert.ErrorIs(t, err, ErrNotFound, "another owner must not delete a foreign link")

	_, err = storage.GetLink(ctx, link.Key)
	require.NoError(t, err, "link must survive refused deletes")

	require.NoError(t, resolver.Delete(ctx, link.Key, &owner))
	_, err = storage.GetLink(ctx, link.Key)
	assert.ErrorIs(t, err, repository.ErrKeyNotFound)
}

func TestBreakdown_FoldsReferrersByDomain(t *testing.T) {
	storage := memory.New()
	resolver, _, _ := newTestResolver(t, storage)
	ctx := context.Background()

	link, err := resolver.Create(ctx, "https://example.com", "", nil, nil)
	require.NoError(t, err)

	ref := func(s string) *string { return &s }
	require.NoError(t, storage.InsertClickEvents(ctx, []*domain.ClickEvent{
		{LinkID: link.ID, ClickedAt: time.Now(), Referrer: ref("https://www.google.com/search?q=a"), Browser: ref("Chrome"), DeviceType: ref("desktop")},
		{LinkID: link.ID, ClickedAt: time.Now(), Referrer: ref("https://www.google.com/search?q=b"), Browser: ref("Chrome"), DeviceType: ref("mobile")},
		{LinkID: link.ID, ClickedAt: time.Now(), Referrer: ref("https://news.ycombinator.com/item?id=1"), Browser: ref("Firefox"), DeviceType: ref("desktop")},
	}))

	breakdown, err := resolver.Breakdown(ctx, link.Key, 7)
	require.NoError(t, err)

	require.Len(t, breakdown.Referrers, 2, "referrers sharing a domain should merge")
	assert.Equal(t, domain.BreakdownItem{Value: "www.google.com", Count: 2}, breakdown.Referrers[0])
	assert.Equal(t, domain.BreakdownItem{Value: "news.ycombinator.com", Count: 1}, breakdown.Referrers[1])

	require.Len(t, breakdown.Browsers, 2)
	assert.Equal(t, domain.BreakdownItem{Value: "Chrome", Count: 2}, breakdown.Browsers[0])
	require.Len(t, breakdown.Devices, 2)
	assert.Equal(t, domain.BreakdownItem{Value: "desktop", Count: 2}, breakdown.Devices[0])
}

func TestEvents_ClampsLimit(t *testing.T) {
	storage := memory.New()
	resolver, _, _ := newTestResolver(t, storage)
	resolver.cfg = &config.Resolver{MaxListLimit: 2}
	ctx := context.Background()

	link, err := resolver.Create(ctx, "https://example.com", "", nil, nil)
	require.NoError(t, err)

	var events []*domain.ClickEvent
	for i := 0; i < 5; i++ {
		events = append(events, &domain.ClickEvent{LinkID: link.ID, ClickedAt: time.Now().Add(time.Duration(i) * time.Second)})
	}
	require.NoError(t, storage.InsertClickEvents(ctx, events))

	got, err := resolver.Events(ctx, link.Key, 1000)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestList_ClampsLimit(t *testing.T) {
	storage := memory.New()
	resolver, _, _ := newTestResolver(t, storage)
	resolver.cfg = &config.Resolver{MaxListLimit: 2}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := resolver.Create(ctx, "https://example.com", "", nil, nil)
		require.NoError(t, err)
	}

	links, err := resolver.List(ctx, 1000, 0, nil)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestCreate_TTLSetsExpiry(t *testing.T) {
	resolver, _, _ := newTestResolver(t, memory.New())
	ctx := context.Background()

	ttl := int64(60)
	link, err := resolver.Create(ctx, "https://example.com/a", "", &ttl, nil)
	require.NoError(t, err)
	require.NotNil(t, link.ExpiresAt)

	remaining := time.Until(*link.ExpiresAt)
	assert.Greater(t, remaining, 50*time.Second)
	assert.LessOrEqual(t, remaining, 60*time.Second)

	got, err := resolver.Resolve(ctx, link.Key, ClickMeta{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", got)
}
