package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
)

const layoutHTML = `{{define "layout"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} · ticktack</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
header { display: flex; justify-content: space-between; align-items: baseline; }
.muted { color: #777; }
.error { color: #b00020; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; padding: .25rem .5rem; border-bottom: 1px solid #eee; }
pre { background: #f6f6f6; padding: 1rem; white-space: pre-wrap; }
</style>
</head>
<body>
<header><h1>{{.Title}}</h1><span class="muted">ticktack {{.Version}}</span></header>
{{template "content" .}}
</body>
</html>{{end}}`

const reportHTML = `{{define "content"}}
<p class="muted">{{.Total}} across {{len .Rows}} tickets{{if .Query}} · filters: {{.Query}}{{end}}</p>
{{range .Warnings}}<p class="error">{{.}}</p>{{end}}
{{if .Rows}}
<table>
<tr><th>Ticket</th><th>Duration</th><th>Sessions</th><th></th></tr>
{{range .Rows}}<tr><td>{{.TicketID}}</td><td>{{.Duration}}</td><td>{{.Sessions}}</td><td>{{if .Closed}}closed{{end}}</td></tr>
{{end}}</table>
<h2>Draft prompt</h2>
{{.Rendered}}
<h2>Plain text</h2>
<pre>{{.Draft}}</pre>
{{else}}
<p>No finished sessions match these filters.</p>
{{end}}
{{end}}`

const errorHTML = `{{define "content"}}
<p class="error">{{.Message}}</p>
{{end}}`

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
}

type reportRow struct {
	TicketID string
	Duration string
	Sessions int
	Closed   bool
}

// ReportPageData is the template data for the report preview.
type ReportPageData struct {
	PageData
	Query    string
	Total    string
	Rows     []reportRow
	Draft    string
	Rendered template.HTML
	Warnings []string
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	log       *slog.Logger
}

// NewRenderer parses the page templates.
func NewRenderer(version string) *Renderer {
	layout := template.Must(template.New("layout").Parse(layoutHTML))

	pages := map[string]string{
		"report": reportHTML,
		"error":  errorHTML,
	}
	templates := make(map[string]*template.Template, len(pages))
	for name, src := range pages {
		t := template.Must(layout.Clone())
		template.Must(t.Parse(src))
		templates[name] = t
	}

	return &Renderer{templates: templates, version: version, log: slog.Default()}
}

// renderPage renders a named page template with the given HTTP status.
func (r *Renderer) renderPage(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.log.Error("template not found", "name", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.log.Error("template execution failed", "name", name, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation. API
// routes always get JSON.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var tErr *errors.TrackerError
	if !stderrors.As(err, &tErr) {
		tErr = errors.NewInternal(err)
	}
	status := statusFor(tErr.Code)
	message := errors.UserMessage(tErr)

	if strings.HasPrefix(req.URL.Path, "/api/") || strings.Contains(req.Header.Get("Accept"), "application/json") {
		renderAPIError(w, status, string(tErr.Code), message)
		return
	}

	r.renderPage(w, status, "error", ErrorPageData{
		PageData:   PageData{Title: fmt.Sprintf("Error %d", status), Version: r.version},
		StatusCode: status,
		Message:    message,
	})
}

// statusFor maps an error code to its HTTP status.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrEmptyTicket, errors.ErrInvalidStartTime, errors.ErrDurationOutOfRange,
		errors.ErrInvalidTransition, errors.ErrInvalidRequest:
		return http.StatusBadRequest
	case errors.ErrAuth:
		return http.StatusUnauthorized
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrTicketClosed, errors.ErrActiveSessionExists, errors.ErrBusy:
		return http.StatusConflict
	case errors.ErrSubscription, errors.ErrWrite, errors.ErrPartialFailure:
		return http.StatusServiceUnavailable
	case errors.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// renderAPIError writes the JSON error envelope used by every /api/ route.
func renderAPIError(w http.ResponseWriter, status int, code, message string) {
	renderJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the source is not passed through.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
