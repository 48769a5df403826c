package memory

import (
	"SnapLink-Backend/internal/domain"
	"SnapLink-Backend/internal/repository"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStorage is an in-memory Storage implementation. It backs unit tests
// and small deployments that do not need durability.
type MemStorage struct {
	mu        sync.RWMutex
	links     map[string]*domain.Link
	events    []*domain.ClickEvent
	summaries map[summaryKey]*domain.DailySummary
	apiKeys   map[string]*domain.APIKey
}

type summaryKey struct {
	linkID uuid.UUID
	date   string // YYYY-MM-DD
}

func New() *MemStorage {
	return &MemStorage{
		links:     make(map[string]*domain.Link),
		summaries: make(map[summaryKey]*domain.DailySummary),
		apiKeys:   make(map[string]*domain.APIKey),
	}
}

// --- Link Methods ---

func (s *MemStorage) CreateLink(_ context.Context, link *domain.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.Key]; exists {
		return repository.ErrKeyExists
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}

	stored := *link
	s.links[link.Key] = &stored
	return nil
}

func (s *MemStorage) GetLink(_ context.Context, key string) (*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[key]
	if !ok {
		return nil, repository.ErrKeyNotFound
	}
	copied := *link
	return &copied, nil
}

func (s *MemStorage) IncrementClickCount(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[key]
	if !ok {
		return repository.ErrKeyNotFound
	}
	link.ClickCount++
	return nil
}

func (s *MemStorage) DeleteLink(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[key]
	if !ok {
		return repository.ErrKeyNotFound
	}
	delete(s.links, key)
	s.dropLinkData(link.ID)
	return nil
}

func (s *MemStorage) ListLinks(_ context.Context, limit, offset int, ownerID *uuid.UUID) ([]*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var links []*domain.Link
	for _, link := range s.links {
		if ownerID != nil && (link.OwnerID == nil || *link.OwnerID != *ownerID) {
			continue
		}
		copied := *link
		links = append(links, &copied)
	}

	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})

	if offset >= len(links) {
		return nil, nil
	}
	links = links[offset:]
	if limit > 0 && limit < len(links) {
		links = links[:limit]
	}
	return links, nil
}

func (s *MemStorage) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var purged int64
	for key, link := range s.links {
		if link.ExpiredAt(now) {
			delete(s.links, key)
			s.dropLinkData(link.ID)
			purged++
		}
	}
	return purged, nil
}

// --- Analytics Methods ---

func (s *MemStorage) InsertClickEvents(_ context.Context, events []*domain.ClickEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range events {
		stored := *event
		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
		}
		if stored.ClickedAt.IsZero() {
			stored.ClickedAt = time.Now()
		}
		s.events = append(s.events, &stored)
	}
	return nil
}

func (s *MemStorage) AggregateDailySummaries(_ context.Context, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type bucket struct {
		total   int64
		uniques map[string]struct{}
	}
	buckets := make(map[summaryKey]*bucket)

	for _, event := range s.events {
		if event.ClickedAt.Before(since) {
			continue
		}
		k := summaryKey{linkID: event.LinkID, date: event.ClickedAt.Format("2006-01-02")}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{uniques: make(map[string]struct{})}
			buckets[k] = b
		}
		b.total++
		if event.IPHash != nil {
			b.uniques[*event.IPHash] = struct{}{}
		}
	}

	var affected int64
	for k, b := range buckets {
		date, _ := time.Parse("2006-01-02", k.date)
		s.summaries[k] = &domain.DailySummary{
			LinkID:         k.linkID,
			Date:           date,
			TotalClicks:    b.total,
			UniqueVisitors: int64(len(b.uniques)),
		}
		affected++
	}
	return affected, nil
}

func (s *MemStorage) GetDailySummaries(_ context.Context, linkID uuid.UUID, days int) ([]*domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	var summaries []*domain.DailySummary
	for k, summary := range s.summaries {
		if k.linkID != linkID || summary.Date.Before(cutoff) {
			continue
		}
		copied := *summary
		summaries = append(summaries, &copied)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Date.After(summaries[j].Date)
	})
	return summaries, nil
}

func (s *MemStorage) GetClickBreakdown(_ context.Context, linkID uuid.UUID, days int) (*domain.ClickBreakdown, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	referrers := make(map[string]int64)
	devices := make(map[string]int64)
	browsers := make(map[string]int64)
	countries := make(map[string]int64)

	for _, event := range s.events {
		if event.LinkID != linkID || event.ClickedAt.Before(cutoff) {
			continue
		}
		bump(referrers, event.Referrer)
		bump(devices, event.DeviceType)
		bump(browsers, event.Browser)
		bump(countries, event.CountryCode)
	}

	return &domain.ClickBreakdown{
		Referrers: toBreakdownItems(referrers),
		Devices:   toBreakdownItems(devices),
		Browsers:  toBreakdownItems(browsers),
		Countries: toBreakdownItems(countries),
	}, nil
}

func (s *MemStorage) ListClickEvents(_ context.Context, linkID uuid.UUID, limit int) ([]*domain.ClickEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*domain.ClickEvent
	for _, event := range s.events {
		if event.LinkID != linkID {
			continue
		}
		copied := *event
		events = append(events, &copied)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].ClickedAt.After(events[j].ClickedAt)
	})
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}

func bump(counts map[string]int64, value *string) {
	if value != nil {
		counts[*value]++
	}
}

func toBreakdownItems(counts map[string]int64) []domain.BreakdownItem {
	items := make([]domain.BreakdownItem, 0, len(counts))
	for value, count := range counts {
		items = append(items, domain.BreakdownItem{Value: value, Count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Value < items[j].Value
	})
	return items
}

// --- Capability Check ---

func (s *MemStorage) GetOwnerByAPIKey(_ context.Context, key string) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apiKey, ok := s.apiKeys[key]
	if !ok || !apiKey.IsValid(time.Now()) {
		return uuid.Nil, repository.ErrAPIKeyInvalid
	}
	return apiKey.OwnerID, nil
}

// AddAPIKey registers an API key. Test helper; the postgres storage gets
// keys through provisioning instead.
func (s *MemStorage) AddAPIKey(apiKey *domain.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *apiKey
	s.apiKeys[apiKey.Key] = &stored
}

// EventCount returns the number of stored click events. Test helper.
func (s *MemStorage) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// dropLinkData cascades a link deletion to its events and summaries.
// Caller must hold the write lock.
func (s *MemStorage) dropLinkData(linkID uuid.UUID) {
	kept := s.events[:0]
	for _, event := range s.events {
		if event.LinkID != linkID {
			kept = append(kept, event)
		}
	}
	s.events = kept

	for k := range s.summaries {
		if k.linkID == linkID {
			delete(s.summaries, k)
		}
	}
}
