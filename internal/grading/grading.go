// Package grading turns a list of subject marks into a total and a letter grade.
package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pavelanni/results/internal/model"
)

// MaxMarkPerSubject is the mark a single subject is graded out of.
const MaxMarkPerSubject = 100

// ErrInvalidSubjectData is returned when a mark cannot be read as a number.
var ErrInvalidSubjectData = errors.New("invalid subject data")

// Result is the outcome of grading a set of subjects.
type Result struct {
	Total      float64
	Max        float64
	Percentage float64
	Letter     string
}

var thresholds = []struct {
	min    float64
	letter string
}{
	{90, "A"},
	{80, "B"},
	{70, "C"},
	{60, "D"},
}

// Grade sums the marks and maps the percentage of the maximum to a letter.
// Thresholds are inclusive; an empty list grades as "F".
func Grade(subjects []model.Subject) Result {
	var r Result
	for _, s := range subjects {
		r.Total += s.Mark
	}
	r.Max = float64(MaxMarkPerSubject * len(subjects))
	r.Letter = "F"
	if r.Max == 0 {
		return r
	}
	r.Percentage = r.Total * 100 / r.Max
	for _, t := range thresholds {
		if r.Percentage >= t.min {
			r.Letter = t.letter
			break
		}
	}
	return r
}

// ParseMark coerces a decoded JSON value or form string to a mark.
// Absent, null and blank values count as 0; NaN and infinities are rejected.
func ParseMark(v any) (float64, error) {
	f, err := parseMark(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: mark %v is not a finite number", ErrInvalidSubjectData, v)
	}
	return f, nil
}

func parseMark(v any) (float64, error) {
	switch m := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return m, nil
	case int:
		return float64(m), nil
	case int64:
		return float64(m), nil
	case json.Number:
		f, err := m.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: mark %q is not a number", ErrInvalidSubjectData, m.String())
		}
		return f, nil
	case string:
		s := strings.TrimSpace(m)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: mark %q is not a number", ErrInvalidSubjectData, m)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: mark of type %T is not a number", ErrInvalidSubjectData, v)
	}
}
