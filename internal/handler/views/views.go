// Package views renders the browser pages as templ components.
//
// Edit the .templ sources and regenerate with `templ generate`.
package views

import (
	"net/url"

	"github.com/a-h/templ"

	"github.com/pavelanni/results/internal/model"
)

// IndexData is the public lookup page state.
type IndexData struct {
	ExamNumber string
	Student    *model.StudentView
	Error      string
}

func lookupURL(examNumber string) templ.SafeURL {
	return templ.URL("/?exam=" + url.QueryEscape(examNumber))
}

func dateText(d *string) string {
	if d == nil {
		return ""
	}
	return *d
}
