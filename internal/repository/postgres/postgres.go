package postgres

import (
	"SnapLink-Backend/internal/domain"
	"SnapLink-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations; it is the arbiter for concurrent key claims.
const uniqueViolation = "23505"

// PostgresStorage implements the Storage interface for PostgreSQL.
type PostgresStorage struct {
	db  *gorm.DB
	log *zap.Logger
}

// New creates a new PostgreSQL storage instance.
func New(db *gorm.DB, log *zap.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:  db,
		log: log,
	}
}

// --- Link Methods ---

// CreateLink inserts a link. No check-then-insert: the unique index on key
// detects concurrent claims and the caller retries with a new candidate.
func (s *PostgresStorage) CreateLink(ctx context.Context, link *domain.Link) error {
	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		if isDuplicateKey(err) {
			return repository.ErrKeyExists
		}
		s.log.Error("failed to create link", zap.String("key", link.Key), zap.Error(err))
		return fmt.Errorf("failed to create link: %w", err)
	}

	s.log.Info("created link", zap.String("key", link.Key), zap.String("url", link.OriginalURL))
	return nil
}

// GetLink returns a link by its key. Expired links are still returned; the
// caller decides whether expiry matters for its operation.
func (s *PostgresStorage) GetLink(ctx context.Context, key string) (*domain.Link, error) {
	var link domain.Link

	err := s.db.WithContext(ctx).Where("key = ?", key).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrKeyNotFound
	}
	if err != nil {
		s.log.Error("failed to get link", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return &link, nil
}

// IncrementClickCount bumps click_count with a row-level atomic update so
// concurrent redirects never lose increments.
func (s *PostgresStorage) IncrementClickCount(ctx context.Context, key string) error {
	result := s.db.WithContext(ctx).Model(&domain.Link{}).
		Where("key = ?", key).
		UpdateColumn("click_count", gorm.Expr("click_count + 1"))
	if result.Error != nil {
		s.log.Error("failed to increment click count", zap.String("key", key), zap.Error(result.Error))
		return fmt.Errorf("failed to increment click count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrKeyNotFound
	}

	return nil
}

// DeleteLink removes a link; click events go with it via the cascade.
func (s *PostgresStorage) DeleteLink(ctx context.Context, key string) error {
	result := s.db.WithContext(ctx).Where("key = ?", key).Delete(&domain.Link{})
	if result.Error != nil {
		s.log.Error("failed to delete link", zap.String("key", key), zap.Error(result.Error))
		return fmt.Errorf("failed to delete link: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrKeyNotFound
	}

	s.log.Info("deleted link", zap.String("key", key))
	return nil
}

// ListLinks returns links ordered by creation time descending, optionally
// scoped to an owner.
func (s *PostgresStorage) ListLinks(ctx context.Context, limit, offset int, ownerID *uuid.UUID) ([]*domain.Link, error) {
	var links []*domain.Link

	query := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset)
	if ownerID != nil {
		query = query.Where("owner_id = ?", *ownerID)
	}

	if err := query.Find(&links).Error; err != nil {
		s.log.Error("failed to list links", zap.Error(err))
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	return links, nil
}

// PurgeExpired deletes links whose expiry has passed. Runs from the
// background sweep only; the read path never pays for it.
func (s *PostgresStorage) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Delete(&domain.Link{})
	if result.Error != nil {
		s.log.Error("failed to purge expired links", zap.Error(result.Error))
		return 0, fmt.Errorf("failed to purge expired links: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.Info("purged expired links", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// --- Analytics Methods ---

// InsertClickEvents persists a batch of click events in one insert.
func (s *PostgresStorage) InsertClickEvents(ctx context.Context, events []*domain.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Create(&events).Error; err != nil {
		s.log.Error("failed to insert click events", zap.Int("batch_size", len(events)), zap.Error(err))
		return fmt.Errorf("failed to insert click events: %w", err)
	}

	return nil
}

// AggregateDailySummaries folds click events at or after since into
// daily_summaries. The upsert recomputes full per-day totals, so rerunning
// over the same window converges to the same rows.
func (s *PostgresStorage) AggregateDailySummaries(ctx context.Context, since time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Exec(`
		INSERT INTO daily_summaries (link_id, date, total_clicks, unique_visitors)
		SELECT ce.link_id, DATE(ce.clicked_at), COUNT(*), COUNT(DISTINCT ce.ip_hash)
		FROM click_events ce
		WHERE ce.clicked_at >= ?
		GROUP BY ce.link_id, DATE(ce.clicked_at)
		ON CONFLICT (link_id, date) DO UPDATE
		SET total_clicks = EXCLUDED.total_clicks,
		    unique_visitors = EXCLUDED.unique_visitors`, since)
	if result.Error != nil {
		s.log.Error("failed to aggregate daily summaries", zap.Error(result.Error))
		return 0, fmt.Errorf("failed to aggregate daily summaries: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// GetDailySummaries returns up to days of per-day totals for a link, newest
// first.
func (s *PostgresStorage) GetDailySummaries(ctx context.Context, linkID uuid.UUID, days int) ([]*domain.DailySummary, error) {
	var summaries []*domain.DailySummary

	cutoff := time.Now().AddDate(0, 0, -days)
	err := s.db.WithContext(ctx).
		Where("link_id = ? AND date >= ?", linkID, cutoff).
		Order("date DESC").
		Find(&summaries).Error
	if err != nil {
		s.log.Error("failed to get daily summaries", zap.String("link_id", linkID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get daily summaries: %w", err)
	}

	return summaries, nil
}

// GetClickBreakdown groups a link's click events by referrer, device type,
// browser and country over the last days days. NULL dimension values are
// skipped; referrer folding to domains happens in the service layer.
func (s *PostgresStorage) GetClickBreakdown(ctx context.Context, linkID uuid.UUID, days int) (*domain.ClickBreakdown, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	breakdown := &domain.ClickBreakdown{}

	groups := []struct {
		column string
		dest   *[]domain.BreakdownItem
	}{
		{"referrer", &breakdown.Referrers},
		{"device_type", &breakdown.Devices},
		{"browser", &breakdown.Browsers},
		{"country_code", &breakdown.Countries},
	}

	for _, g := range groups {
		var items []domain.BreakdownItem
		err := s.db.WithContext(ctx).Model(&domain.ClickEvent{}).
			Select(g.column + " AS value, COUNT(*) AS count").
			Where("link_id = ? AND clicked_at >= ?", linkID, cutoff).
			Where(g.column + " IS NOT NULL").
			Group(g.column).
			Order("count DESC, value ASC").
			Scan(&items).Error
		if err != nil {
			s.log.Error("failed to group click events",
				zap.String("column", g.column),
				zap.String("link_id", linkID.String()),
				zap.Error(err))
			return nil, fmt.Errorf("failed to group click events by %s: %w", g.column, err)
		}
		*g.dest = items
	}

	return breakdown, nil
}

// ListClickEvents returns the most recent click events for a link.
func (s *PostgresStorage) ListClickEvents(ctx context.Context, linkID uuid.UUID, limit int) ([]*domain.ClickEvent, error) {
	var events []*domain.ClickEvent

	err := s.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Order("clicked_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		s.log.Error("failed to list click events", zap.String("link_id", linkID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list click events: %w", err)
	}

	return events, nil
}

// --- Capability Check ---

// GetOwnerByAPIKey maps a presented API key to its owner. Unknown, inactive
// and expired keys all collapse to ErrAPIKeyInvalid; callers never learn
// which.
func (s *PostgresStorage) GetOwnerByAPIKey(ctx context.Context, key string) (uuid.UUID, error) {
	var apiKey domain.APIKey

	err := s.db.WithContext(ctx).Where("key = ?", key).First(&apiKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, repository.ErrAPIKeyInvalid
	}
	if err != nil {
		s.log.Error("failed to look up api key", zap.Error(err))
		return uuid.Nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	if !apiKey.IsValid(time.Now()) {
		return uuid.Nil, repository.ErrAPIKeyInvalid
	}

	return apiKey.OwnerID, nil
}

// isDuplicateKey reports whether err is a unique constraint violation.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
