package http

import (
	"SnapLink-Backend/internal/auth"
	"SnapLink-Backend/internal/domain"
	"SnapLink-Backend/internal/service"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LinksHandler serves the link management API.
type LinksHandler struct {
	resolver *service.Resolver
	log      *zap.Logger
	baseURL  string
}

// NewLinksHandler creates a new links handler.
func NewLinksHandler(resolver *service.Resolver, log *zap.Logger, baseURL string) *LinksHandler {
	return &LinksHandler{
		resolver: resolver,
		log:      log,
		baseURL:  baseURL,
	}
}

// CreateLinkRequest is the link creation request body.
type CreateLinkRequest struct {
	URL         string `json:"url"`
	CustomAlias string `json:"custom_alias,omitempty"`
	TTLSeconds  *int64 `json:"ttl_seconds,omitempty"`
}

// LinkView is the API representation of a link.
type LinkView struct {
	Key         string     `json:"key"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	ClickCount  int64      `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ListLinksResponse is the list endpoint response body.
type ListLinksResponse struct {
	Links []LinkView `json:"links"`
}

// DailySummaryView is one day of aggregated clicks.
type DailySummaryView struct {
	Date           string `json:"date"`
	TotalClicks    int64  `json:"total_clicks"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// BreakdownView is one grouped dimension value with its click count.
type BreakdownView struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// StatsResponse is the stats endpoint response body.
type StatsResponse struct {
	LinkView
	Expired   bool               `json:"expired"`
	Daily     []DailySummaryView `json:"daily,omitempty"`
	Referrers []BreakdownView    `json:"referrers,omitempty"`
	Devices   []BreakdownView    `json:"devices,omitempty"`
	Browsers  []BreakdownView    `json:"browsers,omitempty"`
	Countries []BreakdownView    `json:"countries,omitempty"`
}

// ClickEventView is one recorded click as served by the events listing.
// User agents and IP hashes stay server-side.
type ClickEventView struct {
	ClickedAt   time.Time `json:"clicked_at"`
	Referrer    *string   `json:"referrer,omitempty"`
	Browser     *string   `json:"browser,omitempty"`
	OS          *string   `json:"os,omitempty"`
	DeviceType  *string   `json:"device_type,omitempty"`
	CountryCode *string   `json:"country_code,omitempty"`
}

// ClickEventsResponse is the events listing response body.
type ClickEventsResponse struct {
	Events []ClickEventView `json:"events"`
}

// CreateLink creates a new short link.
func (h *LinksHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid create link request", zap.Error(err))
		h.writeError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	var ownerID *uuid.UUID
	if id, ok := auth.OwnerFromContext(r.Context()); ok {
		ownerID = &id
	}

	link, err := h.resolver.Create(r.Context(), req.URL, req.CustomAlias, req.TTLSeconds, ownerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, h.toView(link))
}

// ListLinks returns links, scoped to the authenticated owner when an API
// key was presented.
func (h *LinksHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var ownerID *uuid.UUID
	if id, ok := auth.OwnerFromContext(r.Context()); ok {
		ownerID = &id
	}

	links, err := h.resolver.List(r.Context(), limit, offset, ownerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := ListLinksResponse{Links: make([]LinkView, 0, len(links))}
	for _, link := range links {
		resp.Links = append(resp.Links, h.toView(link))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetStats returns a link's click count and optional daily summaries.
// Stats stay readable after the link expires; only redirection is blocked.
func (h *LinksHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/stats/")
	if key == "" || strings.Contains(key, "/") {
		http.NotFound(w, r)
		return
	}

	link, err := h.resolver.GetStats(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := StatsResponse{
		LinkView: h.toView(link),
		Expired:  link.IsExpired(),
	}

	if daysParam := r.URL.Query().Get("days"); daysParam != "" {
		days, err := strconv.Atoi(daysParam)
		if err != nil {
			h.writeError(w, "Invalid days parameter", http.StatusBadRequest)
			return
		}
		summaries, err := h.resolver.Summaries(r.Context(), key, days)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		for _, s := range summaries {
			resp.Daily = append(resp.Daily, DailySummaryView{
				Date:           s.Date.Format("2006-01-02"),
				TotalClicks:    s.TotalClicks,
				UniqueVisitors: s.UniqueVisitors,
			})
		}

		breakdown, err := h.resolver.Breakdown(r.Context(), key, days)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		resp.Referrers = toBreakdownViews(breakdown.Referrers)
		resp.Devices = toBreakdownViews(breakdown.Devices)
		resp.Browsers = toBreakdownViews(breakdown.Browsers)
		resp.Countries = toBreakdownViews(breakdown.Countries)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ListClickEvents serves the recent-events listing for a link.
func (h *LinksHandler) ListClickEvents(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/stats/"), "/events")
	if key == "" || strings.Contains(key, "/") {
		http.NotFound(w, r)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.resolver.Events(r.Context(), key, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := ClickEventsResponse{Events: make([]ClickEventView, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, ClickEventView{
			ClickedAt:   e.ClickedAt,
			Referrer:    e.Referrer,
			Browser:     e.Browser,
			OS:          e.OS,
			DeviceType:  e.DeviceType,
			CountryCode: e.CountryCode,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func toBreakdownViews(items []domain.BreakdownItem) []BreakdownView {
	views := make([]BreakdownView, 0, len(items))
	for _, item := range items {
		views = append(views, BreakdownView{Value: item.Value, Count: item.Count})
	}
	return views
}

// DeleteLink removes a link. Deleting an absent key yields 404, which
// callers may treat as success for idempotent cleanup.
func (h *LinksHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/api/links/")
	if key == "" || strings.Contains(key, "/") {
		http.NotFound(w, r)
		return
	}

	var ownerID *uuid.UUID
	if id, ok := auth.OwnerFromContext(r.Context()); ok {
		ownerID = &id
	}

	if err := h.resolver.Delete(r.Context(), key, ownerID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *LinksHandler) toView(link *domain.Link) LinkView {
	return LinkView{
		Key:         link.Key,
		ShortURL:    fmt.Sprintf("%s/%s", h.baseURL, link.Key),
		OriginalURL: link.OriginalURL,
		ClickCount:  link.ClickCount,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
	}
}

// writeServiceError maps service errors to HTTP status codes.
func (h *LinksHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL), errors.Is(err, service.ErrInvalidAlias):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrAliasTaken):
		h.writeError(w, "Alias already taken", http.StatusConflict)
	case errors.Is(err, service.ErrGenerationExhausted):
		h.writeError(w, "Could not allocate a key, try again", http.StatusConflict)
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrExpired):
		h.writeError(w, "Link not found", http.StatusNotFound)
	case errors.Is(err, service.ErrUnavailable):
		h.writeError(w, "Service unavailable", http.StatusServiceUnavailable)
	default:
		h.log.Error("unexpected service error", zap.Error(err))
		h.writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *LinksHandler) writeError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *LinksHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("failed to encode response", zap.Error(err))
	}
}
