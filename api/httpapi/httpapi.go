package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	wsadapter "signwise/adapters/websocket"
	"signwise/analytics"
	"signwise/core"
	"signwise/engine"
	"signwise/leaderboard"
	"signwise/notify"
	"signwise/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

// Deps are the components the API serves. Registry is required; the rest
// disable their routes when nil.
type Deps struct {
	Registry *engine.Registry
	Hub      *realtime.Hub
	Board    leaderboard.Board
	Metrics  *analytics.Metrics
	// Clock resolves the default day for stats.
	Clock engine.Clock
	// Dispatcher, when set, adds delivery counts to the health report.
	Dispatcher *notify.Dispatcher
}

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// DeviceResponse is returned by every device route.
type DeviceResponse struct {
	Snapshot engine.Snapshot `json:"snapshot"`
	Events   []core.Event    `json:"events,omitempty"`
	// Warning is set when the operation succeeded in memory but could not
	// be persisted.
	Warning string `json:"warning,omitempty"`
}

// StatsResponse is returned by the stats route.
type StatsResponse struct {
	analytics.DayStats
	WeeklyLearners int                      `json:"weekly_learners"`
	Totals         map[core.EventKind]int64 `json:"totals"`
	BestStreak     int                      `json:"best_streak"`
	ActiveDays     []core.Day               `json:"active_days"`
}

// NewMux builds an http.Handler exposing the streak REST API and WebSocket stream.
// Routes:
//   - POST   {prefix}/devices/{id}/learn
//   - POST   {prefix}/devices/{id}/check
//   - GET    {prefix}/devices/{id}
//   - DELETE {prefix}/devices/{id}
//   - GET    {prefix}/leaderboard?limit=N
//   - GET    {prefix}/stats?day=YYYY-MM-DD
//   - GET    {prefix}/healthz
//   - WS     {prefix}/ws?device=ID
func NewMux(deps Deps, opts Options) http.Handler {
	if deps.Registry == nil {
		panic("httpapi.NewMux requires a registry")
	}
	if deps.Clock == nil {
		deps.Clock = engine.SystemClock{}
	}
	h := &handlers{deps: deps}
	mux := http.NewServeMux()
	route := func(method, path string, fn http.HandlerFunc) {
		mux.HandleFunc(method+" "+withPrefix(opts.PathPrefix, path), fn)
	}

	route(http.MethodGet, "/healthz", h.health)
	route(http.MethodPost, "/devices/{id}/learn", h.learn)
	route(http.MethodPost, "/devices/{id}/check", h.check)
	route(http.MethodGet, "/devices/{id}", h.get)
	route(http.MethodDelete, "/devices/{id}", h.reset)
	if deps.Board != nil {
		route(http.MethodGet, "/leaderboard", h.leaderboard)
	}
	if deps.Metrics != nil {
		route(http.MethodGet, "/stats", h.stats)
	}
	if deps.Hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(deps.Hub))
	}

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys, withPrefix(opts.PathPrefix, "/healthz"))
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

type handlers struct {
	deps Deps
}

func (h *handlers) learn(w http.ResponseWriter, r *http.Request) {
	device := core.DeviceID(r.PathValue("id"))
	res, err := h.deps.Registry.RecordLearning(r.Context(), device)
	warning, ok := softError(w, err)
	if !ok {
		return
	}
	snap, _ := h.deps.Registry.Snapshot(r.Context(), device)
	writeJSON(w, DeviceResponse{Snapshot: snap, Events: res.Events, Warning: warning})
}

func (h *handlers) check(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Registry.CheckStatus(r.Context(), core.DeviceID(r.PathValue("id")))
	warning, ok := softError(w, err)
	if !ok {
		return
	}
	writeJSON(w, DeviceResponse{Snapshot: snap, Warning: warning})
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Registry.Snapshot(r.Context(), core.DeviceID(r.PathValue("id")))
	warning, ok := softError(w, err)
	if !ok {
		return
	}
	writeJSON(w, DeviceResponse{Snapshot: snap, Warning: warning})
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	device := core.DeviceID(r.PathValue("id"))
	err := h.deps.Registry.Reset(r.Context(), device)
	warning, ok := softError(w, err)
	if !ok {
		return
	}
	snap, _ := h.deps.Registry.Snapshot(r.Context(), device)
	writeJSON(w, DeviceResponse{Snapshot: snap, Warning: warning})
}

func (h *handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}
	writeJSON(w, map[string]any{"entries": h.deps.Board.TopN(limit), "total": h.deps.Board.Len()})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	day := h.deps.Clock.Today()
	if raw := r.URL.Query().Get("day"); raw != "" {
		d, err := core.ParseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_day", "day must be YYYY-MM-DD", nil)
			return
		}
		day = d
	}
	m := h.deps.Metrics
	writeJSON(w, StatsResponse{
		DayStats:       m.Day(day),
		WeeklyLearners: m.WeeklyLearners(day),
		Totals:         m.Totals(),
		BestStreak:     m.BestStreak(),
		ActiveDays:     m.ActiveDays(),
	})
}

// health verifies the store answers a read.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]any{"storage": "ok"}
	status := map[string]any{"status": "healthy", "checks": checks}
	if d := h.deps.Dispatcher; d != nil {
		delivered, failed := d.Stats()
		checks["notifications"] = map[string]int64{"delivered": delivered, "failed": failed}
	}
	if err := h.deps.Registry.Ping(r.Context()); err != nil {
		status["status"] = "unhealthy"
		checks["storage"] = "failed"
		writeJSONStatus(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, status)
}

// softError maps an engine error to a response. Storage failures still
// succeed with a warning; anything else is a bad request.
func softError(w http.ResponseWriter, err error) (string, bool) {
	switch {
	case err == nil:
		return "", true
	case errors.Is(err, engine.ErrStorageUnavailable):
		return "storage unavailable: progress is kept in memory only", true
	default:
		writeError(w, http.StatusBadRequest, "invalid_device", err.Error(), nil)
		return "", false
	}
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}
