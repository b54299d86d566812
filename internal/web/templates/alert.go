// Package templates holds the HTML fragments returned to HTMX clients.
package templates

import (
	"context"
	"html/template"
	"io"

	"github.com/a-h/templ"
)

var alertTmpl = template.Must(template.New("alert").Parse(
	`<div class="alert alert-error" role="alert" data-code="{{.Code}}">` +
		`<p class="alert-message">{{.Message}}</p>` +
		`{{if .Action}}<p class="alert-action">{{.Action}}</p>{{end}}` +
		`<p class="alert-code">Error code: {{.Code}}</p>` +
		`</div>`))

// ErrorAlert renders a user-facing error with its suggested action and
// support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return alertTmpl.Execute(w, struct{ Message, Action, Code string }{message, action, code})
	})
}

var jobTmpl = template.Must(template.New("job").Parse(
	`<div class="job-progress" data-status="{{.Status}}">` +
		`<progress max="100" value="{{.Percent}}"></progress>` +
		`<span>{{.Processed}} / {{.Total}} rows ({{.Status}})</span>` +
		`</div>`))

// JobProgress renders a progress bar for a background import.
func JobProgress(status string, processed, total, percent int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return jobTmpl.Execute(w, struct {
			Status                    string
			Processed, Total, Percent int
		}{status, processed, total, percent})
	})
}
