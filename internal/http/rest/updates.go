package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/updaterd/internal/logctx"
	"github.com/italolelis/updaterd/internal/storage"
	"github.com/italolelis/updaterd/internal/update"
)

const maxHistoryLimit = 100

// Updater is the set of operations exposed over HTTP.
type Updater interface {
	CheckForUpdates(ctx context.Context) update.CheckResult
	DownloadUpdate(ctx context.Context) (bool, error)
	InstallUpdate(ctx context.Context) error
	Version() string
	LastCheckTime() (time.Time, bool)
	Status() update.Status
}

type VersionResponse struct {
	Version string `json:"version"`
}

type LastCheckResponse struct {
	LastCheck *string `json:"lastCheck"`
}

type StatusResponse struct {
	Status update.Status `json:"status"`
}

type DownloadResponse struct {
	Downloaded bool `json:"downloaded"`
}

type ErrorResponse struct {
	Error       string `json:"error"`
	Recoverable bool   `json:"recoverable"`
}

type UpdatesHandler struct {
	updater  Updater
	history  storage.CheckReadRepository
	events   http.Handler
	username string
	password string
}

// NewUpdatesHandler creates the handler. history and events may be nil; their
// routes then answer 404. Basic auth is enforced when username is set.
func NewUpdatesHandler(u Updater, history storage.CheckReadRepository, events http.Handler, username, password string) *UpdatesHandler {
	return &UpdatesHandler{
		updater:  u,
		history:  history,
		events:   events,
		username: username,
		password: password,
	}
}

func (h *UpdatesHandler) Routes() http.Handler {
	r := chi.NewRouter()

	if h.username != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Get("/version", h.HandleVersion)

	r.Route("/updates", func(r chi.Router) {
		r.Post("/check", h.HandleCheck)
		r.Post("/download", h.HandleDownload)
		r.Post("/install", h.HandleInstall)
		r.Get("/last-check", h.HandleLastCheck)
		r.Get("/status", h.HandleStatus)
		r.Get("/history", h.HandleHistory)
		r.Get("/events", h.HandleEvents)
	})

	return r
}

func (h *UpdatesHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, VersionResponse{Version: h.updater.Version()})
}

func (h *UpdatesHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	result := h.updater.CheckForUpdates(r.Context())

	writeJSON(r.Context(), w, http.StatusOK, result)
}

func (h *UpdatesHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	ok, err := h.updater.DownloadUpdate(ctx)
	if err != nil {
		status := downloadStatus(err)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "download failed", "err", err)
		}

		writeJSON(ctx, w, status, ErrorResponse{Error: err.Error(), Recoverable: update.Recoverable(err)})

		return
	}

	writeJSON(ctx, w, http.StatusOK, DownloadResponse{Downloaded: ok})
}

func downloadStatus(err error) int {
	var (
		dlErr    *update.DownloadFailedError
		checkErr *update.CheckFailedError
		gwErr    *update.GatewayUnavailableError
	)

	switch {
	case errors.Is(err, update.ErrNoUpdateAvailable):
		return http.StatusNotFound
	case errors.Is(err, update.ErrDownloadInProgress):
		return http.StatusConflict
	case errors.As(err, &dlErr), errors.As(err, &checkErr), errors.As(err, &gwErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleInstall answers before restarting, since a successful restart never returns.
func (h *UpdatesHandler) HandleInstall(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	logger := logctx.LoggerFromContext(ctx)

	w.WriteHeader(http.StatusAccepted)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	go func() {
		if err := h.updater.InstallUpdate(ctx); err != nil {
			logger.ErrorContext(ctx, "install failed", "err", err)
		}
	}()
}

func (h *UpdatesHandler) HandleLastCheck(w http.ResponseWriter, r *http.Request) {
	var resp LastCheckResponse

	if at, ok := h.updater.LastCheckTime(); ok {
		formatted := at.UTC().Format(time.RFC3339)
		resp.LastCheck = &formatted
	}

	writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *UpdatesHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, StatusResponse{Status: h.updater.Status()})
}

func (h *UpdatesHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.history == nil {
		http.NotFound(w, r)

		return
	}

	limit := 20

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)

			return
		}

		limit = min(n, maxHistoryLimit)
	}

	records, err := h.history.RecentChecks(ctx, limit)
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to load check history", "err", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)

		return
	}

	if records == nil {
		records = []storage.CheckRecord{}
	}

	writeJSON(ctx, w, http.StatusOK, records)
}

func (h *UpdatesHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		http.NotFound(w, r)

		return
	}

	h.events.ServeHTTP(w, r)
}

func (h *UpdatesHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="updaterd"`)
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) == 1

		if !userOK || !passOK {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "err", err)
	}
}
