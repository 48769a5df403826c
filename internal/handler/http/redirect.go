package http

import (
	"SnapLink-Backend/internal/service"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// RedirectHandler serves the redirect hot path.
type RedirectHandler struct {
	resolver     *service.Resolver
	log          *zap.Logger
	redirectCode int
}

// NewRedirectHandler creates a new redirect handler.
func NewRedirectHandler(resolver *service.Resolver, log *zap.Logger, redirectCode int) *RedirectHandler {
	if redirectCode != http.StatusMovedPermanently {
		redirectCode = http.StatusFound
	}
	return &RedirectHandler{
		resolver:     resolver,
		log:          log,
		redirectCode: redirectCode,
	}
}

// HandleRedirect resolves a key and redirects. Expired links are
// indistinguishable from missing ones at this boundary; the distinction
// lives in logs and metrics.
func (h *RedirectHandler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	if key == "" || strings.Contains(key, "/") || isSystemPath(r.URL.Path) {
		http.NotFound(w, r)
		return
	}

	meta := service.ClickMeta{
		IP:        extractIPAddress(r),
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
	}

	originalURL, err := h.resolver.Resolve(r.Context(), key, meta)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, service.ErrExpired):
			h.log.Debug("redirect refused for expired link", zap.String("key", key))
			http.NotFound(w, r)
		case errors.Is(err, service.ErrUnavailable):
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		default:
			h.log.Error("failed to process redirect", zap.String("key", key), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.log.Debug("successful redirect",
		zap.String("key", key),
		zap.String("original_url", originalURL))

	http.Redirect(w, r, originalURL, h.redirectCode)
}

// isSystemPath keeps reserved prefixes out of the redirect namespace.
func isSystemPath(path string) bool {
	systemPaths := []string{
		"/api/",
		"/health",
		"/ready",
		"/metrics",
	}

	for _, systemPath := range systemPaths {
		if strings.HasPrefix(path, systemPath) {
			return true
		}
	}
	return false
}

// extractIPAddress extracts the client IP, honoring proxy headers.
func extractIPAddress(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		// X-Forwarded-For may carry a comma-separated chain
		ips := strings.Split(ip, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
