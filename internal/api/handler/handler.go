// Package handler provides HTTP handlers for all API endpoints.
// Handlers call the store directly; there is no service layer beyond the
// notification checker, the reminder matcher, and the voice services.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/medminder/internal/api/respond"
	"github.com/albapepper/medminder/internal/auth"
	"github.com/albapepper/medminder/internal/cache"
	"github.com/albapepper/medminder/internal/config"
	"github.com/albapepper/medminder/internal/email"
	"github.com/albapepper/medminder/internal/llm"
	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/notifications"
	"github.com/albapepper/medminder/internal/reminder"
	"github.com/albapepper/medminder/internal/store"
	"github.com/albapepper/medminder/internal/voice"
)

// maxBodyBytes caps JSON request bodies other than voice uploads.
const maxBodyBytes = 1 << 20

// Deps are the collaborators shared by all handlers. Voice and Parser may
// be disabled services; Sender defaults to SMTP.
type Deps struct {
	Store   store.Store
	Cache   *cache.Cache
	Config  *config.Config
	Auth    *auth.Authenticator
	Sender  email.Sender
	Voice   *voice.Service
	Parser  *llm.Parser
	Logger  *slog.Logger
	Matcher *reminder.Matcher
	// Now overrides the wall clock; defaults to Config.Now.
	Now     func() time.Time
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	store   store.Store
	cache   *cache.Cache
	cfg     *config.Config
	auth    *auth.Authenticator
	sender  email.Sender
	checker *notifications.Checker
	matcher *reminder.Matcher
	voice   *voice.Service
	parser  *llm.Parser
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	if d.Sender == nil {
		d.Sender = email.NewSMTPSender()
	}
	if d.Matcher == nil {
		d.Matcher = reminder.NewMatcher(d.Config.ReminderWindow)
	}
	if d.Voice == nil {
		d.Voice = voice.NewService(nil, d.Config.VoiceMaxBytes, d.Logger)
	}
	if d.Parser == nil {
		d.Parser = llm.NewParser(nil, d.Cache)
	}
	if d.Now == nil {
		d.Now = d.Config.Now
	}
	return &Handler{
		store:   d.Store,
		cache:   d.Cache,
		cfg:     d.Config,
		auth:    d.Auth,
		sender:  d.Sender,
		checker: notifications.NewChecker(d.Store, d.Sender, d.Config.LowStockDays, d.Config.Location, d.Logger),
		matcher: d.Matcher,
		voice:   d.Voice,
		parser:  d.Parser,
		logger:  d.Logger,
		now:     d.Now,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status, and enabled features.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "medminder API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
		"features": map[string]bool{
			"voice_transcribe": h.voice.Enabled(),
			"voice_parse":      h.parser.Enabled(),
			"response_cache":   h.cfg.CacheEnabled,
		},
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies storage connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"driver":    h.cfg.StoreDriver,
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"driver":    h.cfg.StoreDriver,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// --------------------------------------------------------------------------
// Shared helpers
// --------------------------------------------------------------------------

// decode reads a JSON body into v, writing a 400 and returning false on
// malformed input.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err.Error())
		return false
	}
	return true
}

// pathID parses the {id} URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// writeErr maps domain and store errors onto HTTP responses.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error, what string) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "VALIDATION_FAILED", verr.Message, verr.Field)
	case errors.Is(err, store.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", what+" not found")
	case errors.Is(err, store.ErrContactLimit):
		respond.WriteError(w, http.StatusBadRequest, "CONTACT_LIMIT",
			"A maximum of "+strconv.Itoa(model.MaxFamilyContacts)+" family contacts can be added")
	case errors.Is(err, store.ErrInsufficientStock):
		respond.WriteError(w, http.StatusBadRequest, "INSUFFICIENT_STOCK", "Not enough remaining quantity")
	case errors.Is(err, store.ErrDuplicate):
		respond.WriteError(w, http.StatusBadRequest, "DUPLICATE", what+" already exists")
	default:
		h.logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process request")
	}
}

// invalidate drops every cached medication view of userID.
func (h *Handler) invalidate(userID int64) {
	h.cache.DeletePrefix(cache.MedicationsPrefix(userID))
}

// serveCached writes a cached JSON body for key, or builds, caches, and
// writes it. Honors If-None-Match.
func (h *Handler) serveCached(w http.ResponseWriter, r *http.Request, key string, build func() (any, error), what string) {
	if data, etag, ok := h.cache.Get(key); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, true)
		return
	}

	v, err := build()
	if err != nil {
		h.writeErr(w, r, err, what)
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		h.writeErr(w, r, err, what)
		return
	}
	etag := h.cache.Set(key, data, cache.TTLMedications)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, false)
}

// orEmpty keeps empty lists encoding as [] rather than null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
