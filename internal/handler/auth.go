package handler

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/results/internal/handler/views"
	appI18n "github.com/pavelanni/results/internal/i18n"
	"github.com/pavelanni/results/internal/model"
	"github.com/pavelanni/results/internal/results"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
	loginPath         = "/admin/login"
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return r, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return r.WithContext(model.ContextWithCSRFToken(r.Context(), token)), true
}

// csrfMiddleware guards browser form posts with a double-submit cookie.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				slog.Warn("CSRF cookie missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			formToken := r.FormValue("csrf_token")
			if formToken == "" {
				slog.Warn("CSRF form token missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			if subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
				slog.Warn("CSRF token mismatch")
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}

		r, ok := h.setCSRFCookie(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// signToken appends an HMAC of the session token so forged cookies are
// rejected before the store is consulted.
func (h *Handler) signToken(token string) string {
	mac := hmac.New(sha256.New, []byte(h.config.SessionSecret))
	mac.Write([]byte(token))
	return token + "." + hex.EncodeToString(mac.Sum(nil))
}

func (h *Handler) verifyCookie(value string) (string, bool) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 {
		return "", false
	}
	token := value[:i]
	if !hmac.Equal([]byte(h.signToken(token)), []byte(value)) {
		return "", false
	}
	return token, true
}

// authenticate resolves the request's session cookie to an administrator.
func (h *Handler) authenticate(r *http.Request) *model.Admin {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	token, ok := h.verifyCookie(cookie.Value)
	if !ok {
		slog.Warn("session cookie signature mismatch")
		return nil
	}

	authSess, err := h.store.GetAuthSession(token)
	if err != nil {
		slog.Error("failed to get auth session", "error", err)
		return nil
	}
	if authSess == nil {
		return nil
	}

	admin, err := h.store.GetAdminByID(authSess.AdminID)
	if err != nil {
		slog.Error("failed to get admin", "id", authSess.AdminID, "error", err)
		return nil
	}
	return admin
}

// requireAuth rejects unauthenticated requests: API calls get 401 JSON,
// browser pages are redirected to the login form.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin := h.authenticate(r)
		if admin == nil {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}
		ctx := model.ContextWithAdmin(r.Context(), admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// startSession records a session for admin and sets the signed cookie.
func (h *Handler) startSession(w http.ResponseWriter, admin *model.Admin) error {
	token, err := h.store.CreateAuthSession(admin.ID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    h.signToken(token),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	return nil
}

// endSession removes the server-side session if any and expires the cookie.
func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if token, ok := h.verifyCookie(cookie.Value); ok {
			if err := h.store.DeleteAuthSession(token); err != nil {
				slog.Error("failed to delete auth session", "error", err)
			}
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.authenticate(r) != nil {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.LoginPage("").Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	admin, err := h.auth.Login(r.FormValue("username"), r.FormValue("password"))
	h.metrics.Login(err == nil)
	if err != nil {
		if !errors.Is(err, results.ErrInvalidCredentials) {
			slog.Error("login failed", "error", err)
		}
		h.renderLoginError(w, r)
		return
	}

	if err := h.startSession(w, admin); err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("admin logged in", "username", admin.Username)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.endSession(w, r)
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) renderLoginError(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	if err := views.LoginPage(appI18n.T(r.Context(), "LoginError")).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	admin, err := h.auth.Login(req.Username, req.Password)
	h.metrics.Login(err == nil)
	if errors.Is(err, results.ErrInvalidCredentials) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid credentials"})
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.startSession(w, admin); err != nil {
		writeServiceError(w, err)
		return
	}
	slog.Info("admin logged in", "username", admin.Username)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Login successful",
		"username": admin.Username,
	})
}

func (h *Handler) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	h.endSession(w, r)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}
