package service

import (
	"SnapLink-Backend/internal/analytics"
	"SnapLink-Backend/internal/cache"
	"SnapLink-Backend/internal/config"
	"SnapLink-Backend/internal/domain"
	"SnapLink-Backend/internal/metrics"
	"SnapLink-Backend/internal/repository"
	"SnapLink-Backend/pkg/classifier"
	"SnapLink-Backend/pkg/keygen"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// maxKeyAttempts bounds the optimistic generate-insert-retry loop.
	maxKeyAttempts = 5

	// readRetries is how many extra attempts pure reads get on a store
	// failure. Writes are never retried, so a flaky store cannot create a
	// link (or charge a click) twice.
	readRetries = 1

	maxURLLength = 2048

	defaultListLimit  = 20
	maxSummaryDays    = 90
	maxBreakdownItems = 10
)

var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrInvalidAlias        = errors.New("invalid custom alias")
	ErrAliasTaken          = errors.New("custom alias already taken")
	ErrGenerationExhausted = errors.New("could not generate a free key")
	ErrNotFound            = errors.New("link not found")
	ErrExpired             = errors.New("link expired")
	ErrUnavailable         = errors.New("store unavailable")
)

// KeyGenerator produces random key candidates and is deliberately unaware
// of uniqueness; the store's unique constraint arbitrates.
type KeyGenerator interface {
	Generate() (string, error)
}

// ClickRecorder accepts click events without blocking. Implementations may
// drop under load; the Resolver never depends on their health.
type ClickRecorder interface {
	Record(click *analytics.Click)
}

// ClickMeta carries the raw request attributes a redirect hands to the
// analytics pipeline.
type ClickMeta struct {
	IP        string
	UserAgent string
	Referrer  string
}

// Resolver orchestrates link creation, resolution and deletion over the
// generator, cache, store and analytics recorder. It is the sole writer of
// link lifecycle state and click counts.
type Resolver struct {
	storage  repository.Storage
	cache    *cache.LinkCache
	keygen   KeyGenerator
	recorder ClickRecorder
	cfg      *config.Resolver
	log      *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(
	storage repository.Storage,
	linkCache *cache.LinkCache,
	keygen KeyGenerator,
	recorder ClickRecorder,
	cfg *config.Resolver,
	log *zap.Logger,
) *Resolver {
	return &Resolver{
		storage:  storage,
		cache:    linkCache,
		keygen:   keygen,
		recorder: recorder,
		cfg:      cfg,
		log:      log,
	}
}

// Create validates the URL, obtains a key (generated or custom), persists
// the link and populates the cache.
//
// Custom aliases go through the same atomic insert path as generated keys;
// a conflict surfaces as ErrAliasTaken instead of being retried. Generated
// keys retry up to maxKeyAttempts before giving up with
// ErrGenerationExhausted.
func (r *Resolver) Create(ctx context.Context, originalURL, customAlias string, ttlSeconds *int64, ownerID *uuid.UUID) (*domain.Link, error) {
	if err := validateURL(originalURL); err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if ttlSeconds != nil && *ttlSeconds > 0 {
		t := time.Now().Add(time.Duration(*ttlSeconds) * time.Second)
		expiresAt = &t
	}

	link := &domain.Link{
		OriginalURL: originalURL,
		ExpiresAt:   expiresAt,
		OwnerID:     ownerID,
	}

	if customAlias != "" {
		if err := validateAlias(customAlias); err != nil {
			return nil, err
		}
		link.Key = customAlias
		if err := r.storage.CreateLink(ctx, link); err != nil {
			if errors.Is(err, repository.ErrKeyExists) {
				return nil, ErrAliasTaken
			}
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	} else {
		if err := r.createWithGeneratedKey(ctx, link); err != nil {
			return nil, err
		}
	}

	r.cache.Put(link.Key, link)
	r.log.Info("created link",
		zap.String("key", link.Key),
		zap.Bool("custom_alias", customAlias != ""))

	return link, nil
}

// createWithGeneratedKey runs the optimistic insert loop: generate a
// candidate, attempt the insert, and on a uniqueness violation try again
// with a fresh one. No lock serializes creators; the unique index decides.
func (r *Resolver) createWithGeneratedKey(ctx context.Context, link *domain.Link) error {
	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key, err := r.keygen.Generate()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}

		link.Key = key
		err = r.storage.CreateLink(ctx, link)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrKeyExists) {
			r.log.Debug("generated key collided, retrying",
				zap.String("key", key),
				zap.Int("attempt", attempt))
			link.ID = uuid.Nil // let the store assign a fresh id on retry
			continue
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	r.log.Warn("key generation exhausted", zap.Int("attempts", maxKeyAttempts))
	return ErrGenerationExhausted
}

// Resolve returns the original URL for a key, counts the click and hands
// the event to the analytics pipeline.
//
// The cache is the fast path; a miss loads from the store and repopulates.
// Expired links fail with ErrExpired and are dropped from the cache. The
// analytics enqueue is fire-and-forget: a full queue drops the event and
// bumps a counter, never the redirect.
func (r *Resolver) Resolve(ctx context.Context, key string, meta ClickMeta) (string, error) {
	link, err := r.lookup(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.Redirects.WithLabelValues("not_found").Inc()
		} else {
			metrics.Redirects.WithLabelValues("error").Inc()
		}
		return "", err
	}

	if link.IsExpired() {
		r.cache.Invalidate(key)
		metrics.Redirects.WithLabelValues("expired").Inc()
		r.log.Debug("refused expired link", zap.String("key", key))
		return "", ErrExpired
	}

	// The increment goes through the store, not the cache: click_count is
	// strongly consistent, the cached snapshot is not.
	if err := r.storage.IncrementClickCount(ctx, key); err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			// Deleted between lookup and increment.
			r.cache.Invalidate(key)
			metrics.Redirects.WithLabelValues("not_found").Inc()
			return "", ErrNotFound
		}
		metrics.Redirects.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	r.recorder.Record(&analytics.Click{
		LinkID:    link.ID,
		ClickedAt: time.Now(),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Referrer:  meta.Referrer,
	})

	metrics.Redirects.WithLabelValues("ok").Inc()
	return link.OriginalURL, nil
}

// GetStats returns the link including its click count. It bypasses the
// cache: a cached snapshot's click_count lags behind the store, and stats
// are not on the hot path. No click is recorded, and expired links stay
// readable: only redirection is blocked after expiry, not reporting.
func (r *Resolver) GetStats(ctx context.Context, key string) (*domain.Link, error) {
	return r.loadLink(ctx, key)
}

// Summaries returns per-day click totals for a link over the last days
// days (clamped to a sane window).
func (r *Resolver) Summaries(ctx context.Context, key string, days int) ([]*domain.DailySummary, error) {
	link, err := r.GetStats(ctx, key)
	if err != nil {
		return nil, err
	}

	summaries, err := r.storage.GetDailySummaries(ctx, link.ID, clampDays(days))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return summaries, nil
}

// Breakdown returns a link's clicks grouped by referrer, device, browser
// and country over the last days days. Referrers are folded to their domain
// so query strings do not split one source across rows, then truncated to
// the top entries.
func (r *Resolver) Breakdown(ctx context.Context, key string, days int) (*domain.ClickBreakdown, error) {
	link, err := r.GetStats(ctx, key)
	if err != nil {
		return nil, err
	}

	breakdown, err := r.storage.GetClickBreakdown(ctx, link.ID, clampDays(days))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	breakdown.Referrers = foldReferrers(breakdown.Referrers)
	return breakdown, nil
}

// Events returns the most recent classified click events for a link. Raw
// user agents and IP hashes are in the rows but the HTTP layer does not
// expose them.
func (r *Resolver) Events(ctx context.Context, key string, limit int) ([]*domain.ClickEvent, error) {
	link, err := r.GetStats(ctx, key)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > r.cfg.MaxListLimit {
		limit = r.cfg.MaxListLimit
	}

	events, err := r.storage.ListClickEvents(ctx, link.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return events, nil
}

// foldReferrers merges referrer rows that share a domain and keeps the
// largest sources.
func foldReferrers(items []domain.BreakdownItem) []domain.BreakdownItem {
	if len(items) == 0 {
		return items
	}

	totals := make(map[string]int64, len(items))
	for _, item := range items {
		totals[classifier.ReferrerDomain(item.Value)] += item.Count
	}

	folded := make([]domain.BreakdownItem, 0, len(totals))
	for value, count := range totals {
		folded = append(folded, domain.BreakdownItem{Value: value, Count: count})
	}
	sort.Slice(folded, func(i, j int) bool {
		if folded[i].Count != folded[j].Count {
			return folded[i].Count > folded[j].Count
		}
		return folded[i].Value < folded[j].Value
	})

	if len(folded) > maxBreakdownItems {
		folded = folded[:maxBreakdownItems]
	}
	return folded
}

func clampDays(days int) int {
	if days <= 0 {
		return 7
	}
	if days > maxSummaryDays {
		return maxSummaryDays
	}
	return days
}

// Delete removes the link and its cache entry. A link with an owner is
// deletable only by that owner; a mismatch (including an anonymous caller)
// is reported as ErrNotFound so callers cannot probe for foreign keys.
// Deleting an absent key also returns ErrNotFound; callers treat that as an
// idempotent no-op, not a failure.
func (r *Resolver) Delete(ctx context.Context, key string, ownerID *uuid.UUID) error {
	link, err := r.loadLink(ctx, key)
	if err != nil {
		return err
	}
	if link.OwnerID != nil && (ownerID == nil || *ownerID != *link.OwnerID) {
		r.log.Debug("refused delete of foreign link", zap.String("key", key))
		return ErrNotFound
	}

	err = r.storage.DeleteLink(ctx, key)
	r.cache.Invalidate(key)
	if errors.Is(err, repository.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	r.log.Info("deleted link", zap.String("key", key))
	return nil
}

// List returns links newest first, clamping limit to the configured
// maximum so a caller cannot force an unbounded scan.
func (r *Resolver) List(ctx context.Context, limit, offset int, ownerID *uuid.UUID) ([]*domain.Link, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > r.cfg.MaxListLimit {
		limit = r.cfg.MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	links, err := r.storage.ListLinks(ctx, limit, offset, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return links, nil
}

// lookup serves the read path: cache first, store on miss, repopulate on
// success. Expiry is checked by the caller so Resolve and GetStats can
// treat it differently.
func (r *Resolver) lookup(ctx context.Context, key string) (*domain.Link, error) {
	if link, ok := r.cache.Get(key); ok {
		return link, nil
	}

	link, err := r.loadLink(ctx, key)
	if err != nil {
		return nil, err
	}

	if !link.IsExpired() {
		r.cache.Put(key, link)
	}
	return link, nil
}

// loadLink reads from the store with a bounded retry for transient
// failures. Only reads are retried.
func (r *Resolver) loadLink(ctx context.Context, key string) (*domain.Link, error) {
	var lastErr error
	for attempt := 0; attempt <= readRetries; attempt++ {
		link, err := r.storage.GetLink(ctx, key)
		if err == nil {
			return link, nil
		}
		if errors.Is(err, repository.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

func validateAlias(alias string) error {
	if err := keygen.ValidateAlias(alias); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAlias, err)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: url is empty", ErrInvalidURL)
	}
	if len(raw) > maxURLLength {
		return fmt.Errorf("%w: url exceeds %d characters", ErrInvalidURL, maxURLLength)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidURL)
	}
	return nil
}
