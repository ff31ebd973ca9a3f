// Package httptransport exposes the ledger projection, the detector facts
// input and the producer ingress over HTTP.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"achievements/internal/achievement"
	"achievements/internal/detector"
	"achievements/internal/eventbus"
	"achievements/pkg/platform/httputil"
	authmw "achievements/pkg/platform/middleware/auth"
	request "achievements/pkg/platform/middleware/request"
	"achievements/pkg/platform/middleware/requesttime"
	"achievements/pkg/platform/sentinel"
	"achievements/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// LedgerReader is the read side of the ledger.
type LedgerReader interface {
	Snapshot() []achievement.Achievement
	Get(key string) (achievement.Achievement, bool)
}

// FactsSetter accepts a new detector facts snapshot.
type FactsSetter interface {
	Set(f detector.Facts) error
}

// HealthChecker reports whether the durable store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler serves the HTTP surface of one instance.
type Handler struct {
	ledger    LedgerReader
	facts     FactsSetter
	publisher eventbus.Publisher
	health    HealthChecker
	tokens    authmw.TokenValidator
	metrics   http.Handler
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithTokenValidator requires a bearer token on POST /events.
func WithTokenValidator(v authmw.TokenValidator) Option {
	return func(h *Handler) {
		h.tokens = v
	}
}

// WithHealthChecker adds the store to /healthz.
func WithHealthChecker(c HealthChecker) Option {
	return func(h *Handler) {
		h.health = c
	}
}

// WithMetricsHandler mounts a Prometheus handler on /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func New(ledger LedgerReader, facts FactsSetter, publisher eventbus.Publisher, opts ...Option) *Handler {
	h := &Handler{
		ledger:    ledger,
		facts:     facts,
		publisher: publisher,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(request.Recovery(h.logger))
	api.Use(request.RequestID)
	api.Use(requesttime.Middleware)
	api.Use(request.Logger(h.logger))

	api.Get("/achievements", h.handleList)
	api.Get("/achievements/{key}", h.handleGet)
	api.Put("/facts", h.handleSetFacts)
	api.With(authmw.RequireBearer(h.tokens, h.logger)).Post("/events", h.handlePublish)
	api.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		api.Method(http.MethodGet, "/metrics", h.metrics)
	}
	r.Mount("/", api)
}

// Router returns a chi router with every route registered.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// AchievementResponse is the display projection of one ledger entry.
type AchievementResponse struct {
	Key         string    `json:"key"`
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	GrantedOn   time.Time `json:"granted_on"`
}

// ListResponse carries the achievement count alongside the entries.
type ListResponse struct {
	Count        int                   `json:"count"`
	Achievements []AchievementResponse `json:"achievements"`
}

func toResponse(a achievement.Achievement) AchievementResponse {
	return AchievementResponse{
		Key:         a.Key,
		ID:          a.ID,
		Source:      a.Source,
		Title:       a.Title,
		Description: a.Description,
		GrantedOn:   a.GrantedOn.UTC(),
	}
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	entries := h.ledger.Snapshot()
	resp := ListResponse{
		Count:        len(entries),
		Achievements: make([]AchievementResponse, 0, len(entries)),
	}
	for _, a := range entries {
		resp.Achievements = append(resp.Achievements, toResponse(a))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	a, ok := h.ledger.Get(key)
	if !ok {
		httputil.WriteError(w, httputil.CodeNotFound, "achievement not granted")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) handleSetFacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var facts detector.Facts
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&facts); err != nil {
		h.logger.WarnContext(ctx, "invalid facts request",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, httputil.CodeBadRequest, "invalid request body")
		return
	}
	if err := h.facts.Set(facts); err != nil {
		httputil.WriteError(w, httputil.CodeBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublishResponse acknowledges an accepted envelope.
type PublishResponse struct {
	Key string `json:"key"`
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	var env achievement.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&env); err != nil {
		h.logger.WarnContext(ctx, "invalid event request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, httputil.CodeBadRequest, "invalid request body")
		return
	}
	if env.MajorVersion != achievement.SchemaMajor {
		httputil.WriteError(w, httputil.CodeBadRequest, "unsupported schema version")
		return
	}
	if err := env.Achievement.Validate(); err != nil {
		httputil.WriteError(w, httputil.CodeBadRequest, err.Error())
		return
	}

	if err := h.publisher.Publish(ctx, env); err != nil {
		h.logger.ErrorContext(ctx, "failed to publish event",
			"request_id", requestID,
			"producer", requestcontext.Producer(ctx),
			"error", err,
		)
		switch {
		case errors.Is(err, eventbus.ErrClosed):
			httputil.WriteError(w, httputil.CodeUnavailable, "event bus closed")
			return
		case errors.Is(err, sentinel.ErrUnavailable):
			httputil.WriteError(w, httputil.CodeUnavailable, "event bus unavailable")
			return
		}
		httputil.WriteError(w, httputil.CodeInternal, "")
		return
	}

	h.logger.InfoContext(ctx, "event accepted",
		"request_id", requestID,
		"producer", requestcontext.Producer(ctx),
		"key", env.Achievement.IdentityKey(),
		"received_at", requestcontext.Now(ctx),
	)
	httputil.WriteJSON(w, http.StatusAccepted, PublishResponse{Key: env.Achievement.IdentityKey()})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Health(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
