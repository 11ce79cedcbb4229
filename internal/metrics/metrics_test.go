package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Lookup(OutcomeFound)
	m.Lookup(OutcomeFound)
	m.Lookup(OutcomeNotFound)
	m.Mutation("add")
	m.Login(false)

	if got := testutil.ToFloat64(m.lookups.WithLabelValues(OutcomeFound)); got != 2 {
		t.Errorf("found lookups = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lookups.WithLabelValues(OutcomeNotFound)); got != 1 {
		t.Errorf("not_found lookups = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed logins = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.Mutation("delete")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `results_student_mutations_total{op="delete"} 1`) {
		t.Errorf("expected mutation counter in output, got:\n%s", body)
	}
}
