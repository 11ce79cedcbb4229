package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "Exam Results" {
		t.Errorf("T(AppTitle) = %q, want 'Exam Results'", got)
	}
	if got := T(ctx, "SignIn"); got != "Sign in" {
		t.Errorf("T(SignIn) = %q, want 'Sign in'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "AppTitle"); got != "Результаты экзаменов" {
		t.Errorf("T(AppTitle) = %q, want 'Результаты экзаменов'", got)
	}
	if got := T(ctx, "Logout"); got != "Выйти" {
		t.Errorf("T(Logout) = %q, want 'Выйти'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "StudentCount", 1); got != "1 student" {
		t.Errorf("Tp(StudentCount, 1) = %q, want '1 student'", got)
	}
	if got := Tp(ctx, "StudentCount", 5); got != "5 students" {
		t.Errorf("Tp(StudentCount, 5) = %q, want '5 students'", got)
	}
}

func TestRussianPlural(t *testing.T) {
	ctx := initLang(t, "ru")

	tests := []struct {
		count int
		want  string
	}{
		{1, "1 студент"},
		{3, "3 студента"},
		{5, "5 студентов"},
		{21, "21 студент"},
	}
	for _, tt := range tests {
		if got := Tp(ctx, "StudentCount", tt.count); got != tt.want {
			t.Errorf("Tp(StudentCount, %d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ResultNotFound", map[string]any{"ExamNumber": "EX-2026-001"})
	if got != "No result found for exam number EX-2026-001." {
		t.Errorf("Td(ResultNotFound) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")

	got := map[string]bool{}
	for _, l := range Languages() {
		got[l] = true
	}
	if !got["en"] || !got["ru"] {
		t.Errorf("Languages() = %v, want en and ru", Languages())
	}
}

func TestMiddlewarePrefersQueryThenHeader(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var title string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = T(r.Context(), "AppTitle")
	}))

	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"default", "/", "", "Exam Results"},
		{"accept-language", "/", "ru-RU,ru;q=0.9", "Результаты экзаменов"},
		{"query wins", "/?lang=en", "ru", "Exam Results"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if title != tt.want {
				t.Errorf("title = %q, want %q", title, tt.want)
			}
		})
	}
}

func TestMiddlewareRemembersChosenLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	h := Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/?lang=ru", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != LangCookie || cookies[0].Value != "ru" {
		t.Fatalf("expected lang=ru cookie, got %v", cookies)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/?lang=xx", nil))
	if got := rec.Result().Cookies(); len(got) != 0 {
		t.Errorf("unsupported language must not be remembered, got %v", got)
	}
}
