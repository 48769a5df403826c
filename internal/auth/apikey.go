// Package auth implements the API-key capability check. The core treats a
// presented key as exactly one question: valid owner id, or rejected.
package auth

import (
	"SnapLink-Backend/internal/repository"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const ownerIDKey contextKey = "owner_id"

// HeaderAPIKey is the header carrying the API key.
const HeaderAPIKey = "X-API-Key"

// Middleware resolves API keys to owner ids and attaches them to the
// request context.
type Middleware struct {
	storage repository.Storage
	log     *zap.Logger
}

// NewMiddleware creates the API-key middleware.
func NewMiddleware(storage repository.Storage, log *zap.Logger) *Middleware {
	return &Middleware{
		storage: storage,
		log:     log,
	}
}

// WithOwner authenticates when a key is presented and passes anonymous
// requests through. A presented but invalid key is rejected with 401; links
// created anonymously simply have no owner.
func (m *Middleware) WithOwner(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := extractKey(r)
		if key == "" {
			next(w, r)
			return
		}

		ownerID, err := m.storage.GetOwnerByAPIKey(r.Context(), key)
		if err != nil {
			if errors.Is(err, repository.ErrAPIKeyInvalid) {
				m.log.Debug("rejected invalid api key")
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}
			m.log.Error("api key lookup failed", zap.Error(err))
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ownerIDKey, ownerID)))
	}
}

// OwnerFromContext returns the authenticated owner id, if any.
func OwnerFromContext(ctx context.Context) (uuid.UUID, bool) {
	ownerID, ok := ctx.Value(ownerIDKey).(uuid.UUID)
	return ownerID, ok
}

// extractKey reads the API key from the X-API-Key header, falling back to
// a bearer token.
func extractKey(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return ""
}
