package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/results/internal/handler/views"
	"github.com/pavelanni/results/internal/model"
	"github.com/pavelanni/results/internal/results"
)

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	students, err := h.svc.List(r.Context())
	if err != nil {
		slog.Error("failed to list students", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.DashboardPage(model.AdminFromContext(r.Context()), students).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleAdminInfo(w http.ResponseWriter, r *http.Request) {
	admin := model.AdminFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"admin": map[string]any{
			"id":         admin.ID,
			"username":   admin.Username,
			"created_at": admin.CreatedAt.Format(model.TimestampLayout),
		},
	})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in results.PasswordChange
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	admin := model.AdminFromContext(r.Context())
	if err := h.auth.ChangePassword(admin, in); err != nil {
		if errors.Is(err, results.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		writeServiceError(w, err)
		return
	}
	slog.Info("admin password changed", "username", admin.Username)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated successfully"})
}
