package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appI18n "github.com/pavelanni/results/internal/i18n"
	"github.com/pavelanni/results/internal/metrics"
	"github.com/pavelanni/results/internal/model"
	"github.com/pavelanni/results/internal/photo"
	"github.com/pavelanni/results/internal/results"
	"github.com/pavelanni/results/internal/store"
)

type testEnv struct {
	router    http.Handler
	store     *store.Store
	uploadDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	require.NoError(t, appI18n.Init("en"))

	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	hash, err := results.HashPassword("admin123")
	require.NoError(t, err)
	_, err = s.CreateAdmin(model.Admin{Username: "admin", PasswordHash: hash})
	require.NoError(t, err)

	uploadDir := filepath.Join(t.TempDir(), "photos")
	photos, err := photo.NewSaver(uploadDir, nil)
	require.NoError(t, err)

	svc := results.NewService(s, photos)
	h, err := New(s, svc, results.NewAuthenticator(s, svc), metrics.New(), model.ServerConfig{
		PublicURL:     "http://results.test",
		UploadDir:     uploadDir,
		MaxUploadSize: 1 << 20,
		SessionSecret: "test-secret",
	})
	require.NoError(t, err)
	h.now = func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	h.Routes(r)
	return &testEnv{router: r, store: s, uploadDir: uploadDir}
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return e.do(req, cookies...)
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.doJSON("POST", "/api/admin/login", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := findCookie(rec, sessionCookieName)
	require.NotNil(t, c)
	return c
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) addAlice(t *testing.T, session *http.Cookie) map[string]any {
	t.Helper()
	rec := e.doJSON("POST", "/api/students/add", map[string]any{
		"student_name": "Alice",
		"id_number":    "S1",
		"subjects": []map[string]any{
			{"name": "Math", "mark": 95},
			{"name": "Sci", "mark": "85"},
		},
	}, session)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(t, rec)["student"].(map[string]any)
}

func TestAPILogin(t *testing.T) {
	e := newTestEnv(t)

	rec := e.doJSON("POST", "/api/admin/login", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "admin", body["username"])

	c := findCookie(rec, sessionCookieName)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Contains(t, c.Value, ".")
}

func TestAPILoginRejectsBadCredentials(t *testing.T) {
	e := newTestEnv(t)

	for _, creds := range []map[string]string{
		{"username": "admin", "password": "wrong"},
		{"username": "nobody", "password": "admin123"},
	} {
		rec := e.doJSON("POST", "/api/admin/login", creds)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Invalid credentials", body["message"])
		assert.Nil(t, findCookie(rec, sessionCookieName))
	}
}

func TestRequireAuth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.doJSON("GET", "/api/students", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])

	rec = e.do(httptest.NewRequest("GET", "/admin", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/login", rec.Header().Get("Location"))
}

func TestForgedCookieRejected(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)

	token := session.Value[:strings.LastIndexByte(session.Value, '.')]
	forged := &http.Cookie{Name: sessionCookieName, Value: token + ".deadbeef"}
	rec := e.doJSON("GET", "/api/students", nil, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	unsigned := &http.Cookie{Name: sessionCookieName, Value: token}
	rec = e.doJSON("GET", "/api/students", nil, unsigned)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)

	rec := e.doJSON("GET", "/api/students", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(httptest.NewRequest("GET", "/admin/logout", nil), session)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/login", rec.Header().Get("Location"))

	rec = e.doJSON("GET", "/api/students", nil, session)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBrowserLoginFlow(t *testing.T) {
	e := newTestEnv(t)

	page := e.do(httptest.NewRequest("GET", "/admin/login", nil))
	require.Equal(t, http.StatusOK, page.Code)
	csrf := findCookie(page, csrfCookieName)
	require.NotNil(t, csrf)
	assert.Contains(t, page.Body.String(), csrf.Value)

	form := url.Values{"username": {"admin"}, "password": {"admin123"}, "csrf_token": {csrf.Value}}
	req := httptest.NewRequest("POST", "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := e.do(req, csrf)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))
	session := findCookie(rec, sessionCookieName)
	require.NotNil(t, session)

	dash := e.do(httptest.NewRequest("GET", "/admin", nil), session)
	assert.Equal(t, http.StatusOK, dash.Code)
	assert.Contains(t, dash.Body.String(), "Signed in as admin")
}

func TestBrowserLoginRequiresCSRF(t *testing.T) {
	e := newTestEnv(t)

	form := url.Values{"username": {"admin"}, "password": {"admin123"}}
	req := httptest.NewRequest("POST", "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := e.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBrowserLoginWrongPassword(t *testing.T) {
	e := newTestEnv(t)

	page := e.do(httptest.NewRequest("GET", "/admin/login", nil))
	csrf := findCookie(page, csrfCookieName)
	require.NotNil(t, csrf)

	form := url.Values{"username": {"admin"}, "password": {"nope"}, "csrf_token": {csrf.Value}}
	req := httptest.NewRequest("POST", "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := e.do(req, csrf)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password.")
}

func TestAddAndLookup(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)

	st := e.addAlice(t, session)
	examNumber := st["exam_number"].(string)
	assert.True(t, strings.HasPrefix(examNumber, "EX-"), examNumber)
	assert.Equal(t, 180.0, st["total_marks"])
	assert.Equal(t, "A", st["grade"])
	assert.Equal(t, model.PlaceholderPhotoURL, st["photo_url"])
	assert.Equal(t, "http://results.test/?exam="+examNumber, st["qr_url"])
	assert.True(t, strings.HasPrefix(st["qr_code_data"].(string), "data:image/png;base64,"))

	rec := e.doJSON("GET", "/api/result/"+examNumber, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)["student"].(map[string]any)
	assert.Equal(t, "Alice", got["student_name"])

	rec = e.doJSON("GET", "/api/result?exam=+"+examNumber+"+", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.doJSON("GET", "/api/result/"+strings.ToLower(examNumber), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Student not found", decode(t, rec)["error"])

	rec = e.doJSON("GET", "/api/result?exam=", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Exam number required", decode(t, rec)["error"])
}

func TestAddValidation(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"missing name", map[string]any{"id_number": "S1", "subjects": []map[string]any{{"name": "M", "mark": 1}}}, "Name and ID are required"},
		{"no subjects", map[string]any{"student_name": "A", "id_number": "S1", "subjects": []any{}}, "At least one subject is required"},
		{"bad date", map[string]any{"student_name": "A", "id_number": "S1", "exam_date": "14/10/2026", "subjects": []map[string]any{{"name": "M", "mark": 1}}}, "Invalid exam date, expected YYYY-MM-DD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.doJSON("POST", "/api/students/add", tt.body, session)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode(t, rec)["error"])
		})
	}

	count, err := e.store.StudentCount(t.Context())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAddDuplicateExamNumber(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)

	body := map[string]any{
		"student_name": "Alice", "id_number": "S1", "exam_number": "EX-2026-050",
		"subjects": []map[string]any{{"name": "Math", "mark": 50}},
	}
	rec := e.doJSON("POST", "/api/students/add", body, session)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.doJSON("POST", "/api/students/add", body, session)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Exam number already exists", decode(t, rec)["error"])
}

func TestAddMultipartWithPhoto(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("student_name", "Bob")
	_ = mw.WriteField("id_number", "S2")
	_ = mw.WriteField("subjects", `[{"name":"Math","mark":70}]`)
	fw, err := mw.CreateFormFile("photo", "me.JPG")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("fake image"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/students/add", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := e.do(req, session)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	st := decode(t, rec)["student"].(map[string]any)
	photoURL := st["photo_url"].(string)
	require.True(t, strings.HasPrefix(photoURL, "http://results.test/uploads/photos/S2_"), photoURL)
	assert.True(t, strings.HasSuffix(photoURL, ".jpg"), photoURL)
	assert.Equal(t, "C", st["grade"])

	name := filepath.Base(photoURL)
	data, err := os.ReadFile(filepath.Join(e.uploadDir, name))
	require.NoError(t, err)
	assert.Equal(t, "fake image", string(data))

	served := e.do(httptest.NewRequest("GET", "/uploads/photos/"+name, nil))
	assert.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, "fake image", served.Body.String())
}

func TestAddMultipartBadSubjects(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("student_name", "Bob")
	_ = mw.WriteField("id_number", "S2")
	_ = mw.WriteField("subjects", `not json`)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/students/add", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := e.do(req, session)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid subjects data", decode(t, rec)["error"])
}

func TestUpdateStudent(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)
	st := e.addAlice(t, session)
	id := int64(st["id"].(float64))
	target := "/api/students/" + jsonID(id)

	rec := e.doJSON("PUT", target, map[string]any{
		"subjects":    []map[string]any{{"name": "Math", "mark": 50}, {"name": "Sci", "mark": 50}},
		"exam_number": "EX-HACKED",
	}, session)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)["student"].(map[string]any)
	assert.Equal(t, 100.0, updated["total_marks"])
	assert.Equal(t, "F", updated["grade"])
	assert.Equal(t, st["exam_number"], updated["exam_number"])

	rec = e.doJSON("PUT", target, map[string]any{"student_name": "Alicia", "subjects": []any{}}, session)
	require.Equal(t, http.StatusOK, rec.Code)
	updated = decode(t, rec)["student"].(map[string]any)
	assert.Equal(t, "Alicia", updated["student_name"])
	assert.Equal(t, "F", updated["grade"])

	rec = e.doJSON("PUT", "/api/students/9999", map[string]any{"student_name": "X"}, session)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.doJSON("PUT", "/api/students/abc", map[string]any{"student_name": "X"}, session)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteStudent(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)
	st := e.addAlice(t, session)
	target := "/api/students/" + jsonID(int64(st["id"].(float64)))

	rec := e.doJSON("DELETE", target, nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = e.doJSON("GET", "/api/result/"+st["exam_number"].(string), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.doJSON("DELETE", target, nil, session)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListStudentsNewestFirst(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)
	first := e.addAlice(t, session)

	rec := e.doJSON("POST", "/api/students/add", map[string]any{
		"student_name": "Bob", "id_number": "S2",
		"subjects": []map[string]any{{"name": "Art", "mark": 60}},
	}, session)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.doJSON("GET", "/api/students", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "Bob", list[0]["student_name"])
	assert.Equal(t, first["exam_number"], list[1]["exam_number"])
}

func TestExportCSV(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)
	e.addAlice(t, session)

	rec := e.doJSON("GET", "/api/students/export", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=students_export_20261014.csv", rec.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID Number,Exam Number,Name,Exam Type,Subjects,Total Marks,Grade,Exam Date", strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], `"Math: 95, Sci: 85"`)
}

func TestStudentQR(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)
	st := e.addAlice(t, session)
	id := jsonID(int64(st["id"].(float64)))

	rec := e.doJSON("GET", "/api/students/"+id+"/qr", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, st["qr_url"], body["qr_url"])
	assert.True(t, strings.HasPrefix(body["qr_code_data"].(string), "data:image/png;base64,"))

	rec = e.doJSON("GET", "/api/students/"+id+"/qr-download", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), st["exam_number"].(string)+".png")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = e.doJSON("GET", "/api/students/9999/qr", nil, session)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminInfoAndPassword(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)

	rec := e.doJSON("GET", "/api/admin/info", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	admin := decode(t, rec)["admin"].(map[string]any)
	assert.Equal(t, "admin", admin["username"])

	rec = e.doJSON("PUT", "/api/admin/password", map[string]string{"current_password": "wrong", "new_password": "secret99"}, session)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.doJSON("PUT", "/api/admin/password", map[string]string{"current_password": "admin123", "new_password": "abc"}, session)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "New password must be at least 6 characters long", decode(t, rec)["error"])

	rec = e.doJSON("PUT", "/api/admin/password", map[string]string{"current_password": "admin123", "new_password": "secret99"}, session)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.doJSON("POST", "/api/admin/login", map[string]string{"username": "admin", "password": "admin123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = e.doJSON("POST", "/api/admin/login", map[string]string{"username": "admin", "password": "secret99"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIndexPage(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t)
	st := e.addAlice(t, session)

	rec := e.do(httptest.NewRequest("GET", "/?exam="+st["exam_number"].(string), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Alice")

	rec = e.do(httptest.NewRequest("GET", "/?exam=EX-0000-000", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No result found for exam number EX-0000-000.")

	rec = e.do(httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.doJSON("GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2026-10-14T12:00:00Z", body["timestamp"])
}

func TestPhotoPathTraversal(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest("GET", "/uploads/photos/..%2Fsecret", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
