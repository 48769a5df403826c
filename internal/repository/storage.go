package repository

import (
	"SnapLink-Backend/internal/domain"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrKeyNotFound   = errors.New("link key not found")
	ErrKeyExists     = errors.New("link key already exists")
	ErrAPIKeyInvalid = errors.New("api key invalid")
)

type Storage interface {
	// Link methods
	CreateLink(ctx context.Context, link *domain.Link) error
	GetLink(ctx context.Context, key string) (*domain.Link, error)
	IncrementClickCount(ctx context.Context, key string) error
	DeleteLink(ctx context.Context, key string) error
	ListLinks(ctx context.Context, limit, offset int, ownerID *uuid.UUID) ([]*domain.Link, error)
	PurgeExpired(ctx context.Context) (int64, error)

	// Analytics methods
	InsertClickEvents(ctx context.Context, events []*domain.ClickEvent) error
	AggregateDailySummaries(ctx context.Context, since time.Time) (int64, error)
	GetDailySummaries(ctx context.Context, linkID uuid.UUID, days int) ([]*domain.DailySummary, error)
	GetClickBreakdown(ctx context.Context, linkID uuid.UUID, days int) (*domain.ClickBreakdown, error)
	ListClickEvents(ctx context.Context, linkID uuid.UUID, limit int) ([]*domain.ClickEvent, error)

	// Capability check
	GetOwnerByAPIKey(ctx context.Context, key string) (uuid.UUID, error)
}
