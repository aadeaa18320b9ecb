package export

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/logs"
)

// Profile parameterizes the report prompt.
type Profile struct {
	Title string // the user's job title
	Role  string // who the summary is written for
}

const (
	DefaultTitle = "software engineer"
	DefaultRole  = "project manager"
)

const draftText = `I am a {{.Title}}. Write a concise work summary for my {{.Role}} based on the notes below.
Group the summary by ticket, use plain language, and keep each ticket to one or two sentences.

Tickets: {{join .Tickets ", "}}
Total time: {{.Total}}

Notes:
{{- range .Notes}}
- {{.Ticket}}: {{.Text}}
{{- else}}
(no notes recorded)
{{- end}}
`

var draftTemplate = template.Must(template.New("draft").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(draftText))

type draftNote struct {
	Ticket string
	Text   string
}

type draftData struct {
	Title   string
	Role    string
	Tickets []string
	Total   string
	Notes   []draftNote
}

// Draft builds the report prompt for groups, in their display order.
func Draft(groups []logs.Group, p Profile) (string, error) {
	data := draftData{
		Title:   strings.TrimSpace(p.Title),
		Role:    strings.TrimSpace(p.Role),
		Tickets: logs.Tickets(groups),
	}
	if data.Title == "" {
		data.Title = DefaultTitle
	}
	if data.Role == "" {
		data.Role = DefaultRole
	}

	var total int64
	for _, g := range groups {
		total += g.TotalMs
		for _, s := range g.Sessions {
			note := strings.TrimSpace(s.Note)
			if note == "" {
				continue
			}
			data.Notes = append(data.Notes, draftNote{Ticket: g.TicketID, Text: note})
		}
	}
	data.Total = format.Duration(total)

	var b strings.Builder
	if err := draftTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render report draft: %w", err)
	}
	return b.String(), nil
}
