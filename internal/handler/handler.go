package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/results/internal/handler/views"
	appI18n "github.com/pavelanni/results/internal/i18n"
	"github.com/pavelanni/results/internal/metrics"
	"github.com/pavelanni/results/internal/model"
	"github.com/pavelanni/results/internal/photo"
	"github.com/pavelanni/results/internal/results"
	"github.com/pavelanni/results/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	svc     *results.Service
	auth    *results.Authenticator
	metrics *metrics.Metrics
	config  model.ServerConfig
	now     func() time.Time
}

// New creates a new Handler.
func New(s *store.Store, svc *results.Service, auth *results.Authenticator, m *metrics.Metrics, cfg model.ServerConfig) (*Handler, error) {
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret is required")
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 16 << 20
	}
	return &Handler{store: s, svc: svc, auth: auth, metrics: m, config: cfg, now: time.Now}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", h.metrics.Handler())
	r.Get(results.PhotoPath+"{filename}", h.handlePhoto)

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/admin/login", h.handleLoginPage)
		r.Post("/admin/login", h.handleLogin)
	})
	r.Get("/admin/logout", h.handleLogout)
	r.With(h.requireAuth).Get("/admin", h.handleDashboard)

	r.Route("/api", func(r chi.Router) {
		r.Get("/result", h.handleResultQuery)
		r.Get("/result/{examNumber}", h.handleResult)
		r.Post("/admin/login", h.handleAPILogin)
		r.Post("/admin/logout", h.handleAPILogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/admin/info", h.handleAdminInfo)
			r.Put("/admin/password", h.handleChangePassword)

			r.Get("/students", h.handleListStudents)
			r.Post("/students/add", h.handleAddStudent)
			r.Get("/students/export", h.handleExport)
			r.Get("/students/{id}/qr", h.handleStudentQR)
			r.Get("/students/{id}/qr-download", h.handleStudentQRDownload)
			r.Put("/students/{id}", h.handleUpdateStudent)
			r.Delete("/students/{id}", h.handleDeleteStudent)
		})
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := views.IndexData{ExamNumber: strings.TrimSpace(r.URL.Query().Get("exam"))}
	status := http.StatusOK

	if data.ExamNumber != "" {
		st, err := h.svc.Resolve(r.Context(), data.ExamNumber, h.baseURL(r))
		switch {
		case err == nil:
			h.metrics.Lookup(metrics.OutcomeFound)
			data.Student = &st
		case errors.Is(err, results.ErrNotFound):
			h.metrics.Lookup(metrics.OutcomeNotFound)
			data.Error = appI18n.Td(r.Context(), "ResultNotFound", map[string]any{"ExamNumber": data.ExamNumber})
			status = http.StatusNotFound
		default:
			h.metrics.Lookup(metrics.OutcomeError)
			slog.Error("lookup failed", "exam_number", data.ExamNumber, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.IndexPage(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handlePhoto(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if photo.SafeName(name) != name {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.config.UploadDir, name))
}

func (h *Handler) handleResultQuery(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, r.URL.Query().Get("exam"))
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, chi.URLParam(r, "examNumber"))
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, examNumber string) {
	st, err := h.svc.Resolve(r.Context(), examNumber, h.baseURL(r))
	if err != nil {
		switch {
		case errors.Is(err, results.ErrValidation):
			h.metrics.Lookup(metrics.OutcomeInvalid)
		case errors.Is(err, results.ErrNotFound):
			h.metrics.Lookup(metrics.OutcomeNotFound)
		default:
			h.metrics.Lookup(metrics.OutcomeError)
		}
		writeServiceError(w, err)
		return
	}
	h.metrics.Lookup(metrics.OutcomeFound)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "student": st})
}

// baseURL is the origin used in lookup links and photo URLs.
func (h *Handler) baseURL(r *http.Request) string {
	if h.config.PublicURL != "" {
		return strings.TrimRight(h.config.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *results.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Message)
	case errors.Is(err, results.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, results.ErrDuplicateExamNumber):
		writeError(w, http.StatusBadRequest, "Exam number already exists")
	case errors.Is(err, results.ErrNotFound):
		writeError(w, http.StatusNotFound, "Student not found")
	case errors.Is(err, results.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func studentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid student ID: %w", err)
	}
	return id, nil
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
