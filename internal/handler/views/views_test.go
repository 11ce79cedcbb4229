package views

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/results/internal/i18n"
	"github.com/pavelanni/results/internal/model"
)

func renderString(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func englishCtx(t *testing.T) context.Context {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	return appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer("en"))
}

func TestIndexPageShowsResult(t *testing.T) {
	ctx := englishCtx(t)
	date := "2026-10-14"
	out := renderString(t, ctx, IndexPage(IndexData{
		ExamNumber: "EX-2026-001",
		Student: &model.StudentView{
			ExamNumber:  "EX-2026-001",
			StudentName: "Alice <b>",
			PhotoURL:    model.PlaceholderPhotoURL,
			ExamType:    "Both",
			Subjects:    []model.Subject{{Name: "Math", Mark: 95}},
			TotalMarks:  95,
			Grade:       "A",
			ExamDate:    &date,
			QRCodeData:  "data:image/png;base64,AAAA",
		},
	}))

	for _, want := range []string{"Exam Results", "Alice &lt;b&gt;", "Math", "2026-10-14", `src="data:image/png;base64,AAAA"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestIndexPageError(t *testing.T) {
	ctx := englishCtx(t)
	out := renderString(t, ctx, IndexPage(IndexData{ExamNumber: "EX-X", Error: "not here"}))
	if !strings.Contains(out, `class="error">not here`) {
		t.Errorf("error message not rendered:\n%s", out)
	}
}

func TestLoginPageCarriesCSRFToken(t *testing.T) {
	ctx := model.ContextWithCSRFToken(englishCtx(t), "tok123")
	out := renderString(t, ctx, LoginPage("Invalid username or password."))
	if !strings.Contains(out, `name="csrf_token" value="tok123"`) {
		t.Errorf("csrf token not rendered:\n%s", out)
	}
	if !strings.Contains(out, "Invalid username or password.") {
		t.Error("login error not rendered")
	}
}

func TestDashboardPage(t *testing.T) {
	ctx := englishCtx(t)
	out := renderString(t, ctx, DashboardPage(&model.Admin{Username: "admin"}, []model.StudentView{
		{ExamNumber: "EX-2026-001", StudentName: "Alice"},
		{ExamNumber: "EX-2026-002", StudentName: "Bob"},
	}))
	for _, want := range []string{"Signed in as admin", "2 students", "EX-2026-002"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestLayoutOffersLanguageSwitch(t *testing.T) {
	ctx := englishCtx(t)
	out := renderString(t, ctx, IndexPage(IndexData{}))
	for _, want := range []string{"Language:", `href="?lang=en">EN</a>`, `href="?lang=ru">RU</a>`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestDashboardLinksEscapeExamNumber(t *testing.T) {
	ctx := englishCtx(t)
	out := renderString(t, ctx, DashboardPage(&model.Admin{Username: "admin"}, []model.StudentView{
		{ExamNumber: "EX 1&2", StudentName: "Alice", TotalMarks: 87.5},
	}))
	if !strings.Contains(out, `href="/?exam=EX+1%262"`) {
		t.Errorf("lookup link not query-escaped:\n%s", out)
	}
	if !strings.Contains(out, "<td>87.5</td>") {
		t.Errorf("total marks not rendered:\n%s", out)
	}
}

func TestDashboardPageEmpty(t *testing.T) {
	ctx := englishCtx(t)
	out := renderString(t, ctx, DashboardPage(&model.Admin{Username: "admin"}, nil))
	if strings.Contains(out, "<table>") {
		t.Error("expected no table without students")
	}
	if !strings.Contains(out, appI18n.T(ctx, "NoStudents")) {
		t.Error("expected the empty-list message")
	}
}
