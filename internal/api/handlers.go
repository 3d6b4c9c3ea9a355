package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"

	"github.com/ananyabot/ananya/internal/auth"
	"github.com/ananyabot/ananya/internal/core"
	"github.com/ananyabot/ananya/internal/metrics"
	"github.com/ananyabot/ananya/internal/store"
	"github.com/ananyabot/ananya/internal/telegram"
)

type contextKey string

const subjectKey contextKey = "subject"

// recentUpdates is how many update ids are remembered to drop redeliveries.
const recentUpdates = 4096

// BotApp is the connected bot as seen by the HTTP surface.
type BotApp interface {
	Handle(ctx context.Context, u tgbotapi.Update)
	SetWebhook(ctx context.Context, webhookURL, secretToken string, adminID int64) error
	DeleteWebhook(ctx context.Context) error
}

type StatsReader interface {
	Stats(ctx context.Context) (store.Stats, error)
}

type UserReader interface {
	GetUser(ctx context.Context, id int64) (*store.User, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	// App returns the bot, building it on first use.
	App           func() (BotApp, error)
	Availability  *core.AvailabilitySwitch
	Personalities *core.PersonalityRegistry
	Stats         StatsReader
	Users         UserReader
	DB            Pinger
	Metrics       *metrics.Metrics

	PasswordHash string
	JWTSecret    string
	PublicURL    string
	AdminID      int64
	Workers      int64

	// WebhookSecret must match the secret token header on every update.
	WebhookSecret string
}

type APIHandler struct {
	deps    Deps
	workers *semaphore.Weighted
	recent  *lru.Cache[int, struct{}]
}

func NewAPIHandler(deps Deps) *APIHandler {
	if deps.Workers < 1 {
		deps.Workers = 1
	}
	// New only fails for a non-positive size.
	recent, _ := lru.New[int, struct{}](recentUpdates)
	return &APIHandler{deps: deps, workers: semaphore.NewWeighted(deps.Workers), recent: recent}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *APIHandler) app() (BotApp, error) {
	if h.deps.App == nil {
		return nil, core.ErrNotConfigured
	}
	app, err := h.deps.App()
	if err != nil {
		return nil, err
	}
	return app, nil
}

// WebhookHandler processes one Telegram update to completion. Only requests
// carrying the webhook secret are accepted; the worker pool bounds how many
// updates run at once and a redelivered update id is acknowledged unprocessed.
func (h *APIHandler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	app, err := h.app()
	if err != nil {
		slog.Error("webhook called but the bot is not available", "error", err)
		http.Error(w, "error: application not configured", http.StatusInternalServerError)
		return
	}

	if !h.validSecret(r.Header.Get(telegram.SecretHeader)) {
		slog.Warn("rejected webhook call with a bad secret token", "remote_addr", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid update: "+err.Error(), http.StatusBadRequest)
		return
	}

	logger := slog.With("update_id", update.UpdateID, "trace_id", uuid.NewString())
	if seen, _ := h.recent.ContainsOrAdd(update.UpdateID, struct{}{}); seen {
		logger.Info("dropping redelivered update")
		writeOK(w)
		return
	}

	if err := h.workers.Acquire(r.Context(), 1); err != nil {
		// Not processed, so a redelivery must run.
		h.recent.Remove(update.UpdateID)
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}
	defer h.workers.Release(1)

	// A broadcast or a slow model call can outlast the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn("failed to clear write deadline", "error", err)
	}

	// Once started, an update runs to completion even if Telegram hangs up.
	ctx := context.WithoutCancel(r.Context())
	logger.Debug("processing update")
	start := time.Now()
	app.Handle(ctx, update)
	logger.Debug("update processed", "duration", time.Since(start))

	writeOK(w)
}

func (h *APIHandler) validSecret(got string) bool {
	want := h.deps.WebhookSecret
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		subject, err := auth.ValidateJWT(h.deps.JWTSecret, tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type LoginRequest struct {
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		http.Error(w, "Password is required", http.StatusBadRequest)
		return
	}

	if !auth.CheckPasswordHash(req.Password, h.deps.PasswordHash) {
		slog.Warn("failed admin login", "remote_addr", r.RemoteAddr)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(h.deps.JWTSecret, "admin")
	if err != nil {
		slog.Error("error generating JWT", "error", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB != nil {
		if err := h.deps.DB.Ping(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type StatusRequest struct {
	Status *bool `json:"status"`
}

func (h *APIHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"status": h.deps.Availability.Get(r.Context())})
}

func (h *APIHandler) SetStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Status == nil {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}

	if err := h.deps.Availability.Set(r.Context(), *req.Status); err != nil {
		slog.Error("error setting bot status", "error", err)
		http.Error(w, "Failed to set status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"status": *req.Status})
}

func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Stats.Stats(r.Context())
	if err != nil {
		slog.Error("error fetching stats", "error", err)
		http.Error(w, "Failed to fetch stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}
	user, err := h.deps.Users.GetUser(r.Context(), id)
	if err != nil {
		slog.Error("error fetching user", "user_id", id, "error", err)
		http.Error(w, "Failed to fetch user", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) ListPromptsHandler(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.deps.Personalities.List(r.Context())
	if err != nil {
		slog.Error("error listing prompts", "error", err)
		http.Error(w, "Failed to list prompts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, prompts)
}

type PromptRequest struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

func (h *APIHandler) SavePromptHandler(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	name := core.NormalizeName(req.Name)
	if err := h.deps.Personalities.SetPrompt(r.Context(), name, req.Prompt); err != nil {
		if errors.Is(err, core.ErrInvalidArgument) {
			http.Error(w, "Name and prompt are required", http.StatusBadRequest)
			return
		}
		slog.Error("error saving prompt", "name", name, "error", err)
		http.Error(w, "Failed to save prompt", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, core.PromptEntry{Name: name, Prompt: req.Prompt})
}

func (h *APIHandler) DeletePromptHandler(w http.ResponseWriter, r *http.Request) {
	name := core.NormalizeName(chi.URLParam(r, "name"))

	existed, err := h.deps.Personalities.DeletePrompt(r.Context(), name)
	switch {
	case errors.Is(err, core.ErrProtectedResource):
		http.Error(w, "Cannot delete a core personality", http.StatusBadRequest)
	case errors.Is(err, core.ErrInvalidArgument):
		http.Error(w, "Name is required", http.StatusBadRequest)
	case err != nil:
		slog.Error("error deleting prompt", "name", name, "error", err)
		http.Error(w, "Failed to delete prompt", http.StatusInternalServerError)
	case !existed:
		http.Error(w, "Prompt not found", http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *APIHandler) SetWebhookHandler(w http.ResponseWriter, r *http.Request) {
	webhookURL, err := telegram.WebhookURL(h.deps.PublicURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	app, err := h.app()
	if err != nil {
		http.Error(w, "error: application not configured", http.StatusInternalServerError)
		return
	}

	if err := app.SetWebhook(r.Context(), webhookURL, h.deps.WebhookSecret, h.deps.AdminID); err != nil {
		slog.Error("error setting webhook", "url", webhookURL, "error", err)
		http.Error(w, "Failed to set webhook", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": webhookURL})
}

func (h *APIHandler) DeleteWebhookHandler(w http.ResponseWriter, r *http.Request) {
	app, err := h.app()
	if err != nil {
		http.Error(w, "error: application not configured", http.StatusInternalServerError)
		return
	}
	if err := app.DeleteWebhook(r.Context()); err != nil {
		slog.Error("error deleting webhook", "error", err)
		http.Error(w, "Failed to delete webhook", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
