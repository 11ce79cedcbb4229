package i18n

import (
	"net/http"
	"slices"
)

// LangCookie overrides the Accept-Language header when set.
const LangCookie = "lang"

// Middleware injects a localizer chosen from the lang query parameter, the
// lang cookie and the Accept-Language header, in that order. A supported
// lang query parameter is remembered in the cookie.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var prefs []string
			if q := r.URL.Query().Get("lang"); q != "" {
				prefs = append(prefs, q)
				if slices.Contains(Languages(), q) {
					http.SetCookie(w, &http.Cookie{
						Name:     LangCookie,
						Value:    q,
						Path:     "/",
						MaxAge:   365 * 24 * 60 * 60,
						SameSite: http.SameSiteLaxMode,
					})
				}
			}
			if c, err := r.Cookie(LangCookie); err == nil && c.Value != "" {
				prefs = append(prefs, c.Value)
			}
			if al := r.Header.Get("Accept-Language"); al != "" {
				prefs = append(prefs, al)
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(prefs...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
