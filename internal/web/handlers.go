package web

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/export"
	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/logs"
	"github.com/Timborini/ticktacktoto-sub000/internal/sanitize"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
	"github.com/Timborini/ticktacktoto-sub000/internal/timer"
	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
	"github.com/Timborini/ticktacktoto-sub000/internal/viewstate"
)

// maxBodyBytes caps timer action request bodies.
const maxBodyBytes = 64 << 10

// Handlers contains HTTP route handlers.
type Handlers struct {
	tr       *tracker.Tracker
	log      *slog.Logger
	profile  func() export.Profile
	renderer *Renderer
}

type sessionJSON struct {
	ID             string `json:"id"`
	TicketID       string `json:"ticketId"`
	DurationMs     int64  `json:"durationMs"`
	Duration       string `json:"duration"`
	Note           string `json:"note"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
	EndTime        string `json:"endTime,omitempty"`
	SubmissionDate string `json:"submissionDate,omitempty"`
}

type groupJSON struct {
	TicketID     string        `json:"ticketId"`
	TotalMs      int64         `json:"totalMs"`
	Total        string        `json:"total"`
	Closed       bool          `json:"closed"`
	AllSubmitted bool          `json:"allSubmitted"`
	Sessions     []sessionJSON `json:"sessions"`
}

type viewJSON struct {
	Query    string      `json:"query"`
	TotalMs  int64       `json:"totalMs"`
	Total    string      `json:"total"`
	Groups   []groupJSON `json:"groups"`
	Warnings []string    `json:"warnings,omitempty"`
}

type timerJSON struct {
	State     string `json:"state"`
	SessionID string `json:"sessionId,omitempty"`
	TicketID  string `json:"ticketId,omitempty"`
	Note      string `json:"note,omitempty"`
	ElapsedMs int64  `json:"elapsedMs"`
	Elapsed   string `json:"elapsed"`
}

type eventJSON struct {
	Timer    timerJSON `json:"timer"`
	Sessions int       `json:"sessions"`
	Notices  []string  `json:"notices,omitempty"`
	Banner   string    `json:"banner,omitempty"`
}

func newSessionJSON(s store.Session) sessionJSON {
	out := sessionJSON{
		ID:         s.ID,
		TicketID:   s.TicketID,
		DurationMs: s.AccumulatedMs,
		Duration:   format.Duration(s.AccumulatedMs),
		Note:       s.Note,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
	if s.EndTime != nil {
		out.EndTime = s.EndTime.Format(time.RFC3339)
	}
	if s.SubmissionDate != nil {
		out.SubmissionDate = s.SubmissionDate.Format(time.RFC3339)
	}
	return out
}

func newTimerJSON(st timer.Status) timerJSON {
	out := timerJSON{
		State:     st.State.String(),
		ElapsedMs: st.Elapsed.Milliseconds(),
		Elapsed:   format.Duration(st.Elapsed.Milliseconds()),
	}
	if st.Session != nil {
		out.SessionID = st.Session.ID
		out.TicketID = st.Session.TicketID
		out.Note = st.Session.Note
	}
	return out
}

// parseView reads the view state from the query. Invalid filters are
// dropped and returned as warnings; a share id other than the served one is
// an error.
func (h *Handlers) parseView(q url.Values) (viewstate.State, []string, error) {
	vs, errs := viewstate.Parse(q)
	if vs.ShareID != "" {
		scope := h.tr.Scope()
		if !scope.Shared() || scope.ID != vs.ShareID {
			return vs, nil, errors.NewNotFound("shared log", vs.ShareID)
		}
	}
	warnings := make([]string, 0, len(errs))
	for _, err := range errs {
		warnings = append(warnings, errors.UserMessage(err))
	}
	return vs, warnings, nil
}

// HandleView handles GET /api/view — the log pipeline for the URL view state.
func (h *Handlers) HandleView(w http.ResponseWriter, r *http.Request) {
	vs, warnings, err := h.parseView(r.URL.Query())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result := h.tr.View(vs.Criteria(h.tr.Location()))
	out := viewJSON{
		Query:    vs.Encode().Encode(),
		TotalMs:  result.TotalMs,
		Total:    format.Duration(result.TotalMs),
		Groups:   make([]groupJSON, 0, len(result.Groups)),
		Warnings: warnings,
	}
	for _, g := range result.Groups {
		gj := groupJSON{
			TicketID:     g.TicketID,
			TotalMs:      g.TotalMs,
			Total:        format.Duration(g.TotalMs),
			Closed:       g.Closed,
			AllSubmitted: g.AllSubmitted(),
			Sessions:     make([]sessionJSON, 0, len(g.Sessions)),
		}
		for _, s := range g.Sessions {
			gj.Sessions = append(gj.Sessions, newSessionJSON(s))
		}
		out.Groups = append(out.Groups, gj)
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleTimer handles GET /api/timer.
func (h *Handlers) HandleTimer(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, newTimerJSON(h.tr.Status()))
}

type timerRequest struct {
	TicketID string `json:"ticketId"`
	Note     string `json:"note"`
}

// awaitTimeout bounds the wait for a timer action's own snapshot.
const awaitTimeout = 2 * time.Second

// HandleTimerAction handles POST /api/timer/{action} for start, pause,
// resume and stop. The returned timer reflects the action.
func (h *Handlers) HandleTimerAction(w http.ResponseWriter, r *http.Request) {
	var req timerRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	ctx := r.Context()
	before := h.tr.Snapshot().Version
	var (
		id  string
		err error
	)
	switch action := r.PathValue("action"); action {
	case "start":
		id, err = h.tr.Start(ctx, req.TicketID, req.Note)
	case "pause":
		err = h.tr.Pause(ctx, req.Note)
	case "resume":
		id, err = h.tr.Resume(ctx, req.TicketID, req.Note)
	case "stop":
		id, err = h.tr.Stop(ctx, req.Note)
	default:
		err = errors.NewNotFound("timer action", action)
	}
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// Stop on an idle timer writes nothing, so there is no snapshot to wait for.
	st := h.tr.Status()
	if id != "" || r.PathValue("action") == "pause" {
		actx, cancel := context.WithTimeout(ctx, awaitTimeout)
		defer cancel()
		if st, err = h.tr.Await(actx, before); err != nil {
			h.log.Warn("timer state not refreshed", "err", err)
		}
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"sessionId": id,
		"timer":     newTimerJSON(st),
	})
}

// decodeBody reads an optional JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.NewInvalidRequest("invalid JSON body")
	}
	return nil
}

// planExport builds the export plan named by the query: the view filters,
// scope, format and selection.
func (h *Handlers) planExport(q url.Values) (export.Plan, error) {
	vs, _, err := h.parseView(q)
	if err != nil {
		return export.Plan{}, err
	}

	scope, f := export.ScopeFiltered, export.FormatCSV
	if raw := q.Get("scope"); raw != "" {
		if scope, err = export.ParseScope(raw); err != nil {
			return export.Plan{}, err
		}
	}
	if raw := q.Get("format"); raw != "" {
		if f, err = export.ParseFormat(raw); err != nil {
			return export.Plan{}, err
		}
	}

	sel := export.Selection{Tickets: splitSet(q.Get("tickets")), Sessions: splitSet(q.Get("sessions"))}
	if scope == export.ScopeSelected && sel.Empty() {
		return export.Plan{}, errors.NewInvalidRequest("nothing selected; pass tickets or sessions")
	}

	plan := h.tr.PlanExport(scope, f, vs.Criteria(h.tr.Location()), sel)
	if len(plan.Sessions) == 0 {
		return export.Plan{}, errors.NewInvalidRequest("no finished sessions to export")
	}
	return plan, nil
}

// HandleExport handles GET /api/export, a download of the chosen scope.
// Only the export and cancel decisions are accepted here; submitting goes
// through POST. When unsubmitted sessions are included and no decision was
// given, it answers 409 with the choices.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, ok, err := parseDecision(q.Get("decision"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if d == export.ExportAndSubmit {
		w.Header().Set("Allow", "POST")
		renderAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Export and submit must be sent as POST")
		return
	}
	h.export(w, r, q, d, ok)
}

type exportRequest struct {
	Decision string `json:"decision"`
}

// HandleExportSubmit handles POST /api/export. The query names the plan as
// for GET; the JSON body carries the decision.
func (h *Handlers) HandleExportSubmit(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	d, ok, err := parseDecision(req.Decision)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.export(w, r, r.URL.Query(), d, ok)
}

func parseDecision(raw string) (export.Decision, bool, error) {
	if raw == "" {
		return export.ExportOnly, false, nil
	}
	d, err := export.ParseDecision(raw)
	if err != nil {
		return "", false, err
	}
	return d, true, nil
}

func (h *Handlers) export(w http.ResponseWriter, r *http.Request, q url.Values, d export.Decision, decided bool) {
	plan, err := h.planExport(q)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if !decided && plan.NeedsConfirmation() {
		choices := make([]string, len(export.Decisions))
		for i, c := range export.Decisions {
			choices[i] = string(c)
		}
		renderJSON(w, http.StatusConflict, map[string]any{
			"error": map[string]any{
				"code":    "CONFIRMATION_REQUIRED",
				"message": fmt.Sprintf("%d of %d sessions are not submitted", plan.Unsubmitted(), len(plan.Sessions)),
				"status":  http.StatusConflict,
			},
			"unsubmitted": plan.Unsubmitted(),
			"total":       len(plan.Sessions),
			"choices":     choices,
		})
		return
	}
	if d == export.Cancel {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var buf bytes.Buffer
	if err := h.tr.Export(r.Context(), plan, d, &buf); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	filename := plan.Filename(time.Now(), h.tr.Location())
	w.Header().Set("Content-Type", plan.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// HandleEvents handles GET /api/events — a server-sent event per tracker
// update until the client goes away.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.renderer.renderError(w, r, errors.NewInternal(fmt.Errorf("streaming unsupported")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for u := range h.tr.Watch(r.Context()) {
		data, err := json.Marshal(eventJSON{
			Timer:    newTimerJSON(u.Timer),
			Sessions: len(u.Snapshot.Sessions),
			Notices:  u.Notices,
			Banner:   u.Banner,
		})
		if err != nil {
			h.log.Error("encode event", "err", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: update\ndata: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

// HandleReport handles GET /report — the report draft for the URL view
// state, rendered with goldmark.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vs, warnings, err := h.parseView(q)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	profile := h.profile()
	if t := sanitize.Title(q.Get("title")); t != "" {
		profile.Title = t
	}
	if role := sanitize.Title(q.Get("role")); role != "" {
		profile.Role = role
	}

	criteria := vs.Criteria(h.tr.Location())
	tickets := splitList(q.Get("tickets"))
	draft, err := h.tr.Report(criteria, tickets, profile)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data := ReportPageData{
		PageData: PageData{Title: "Report", Version: h.renderer.version},
		Query:    vs.Encode().Encode(),
		Draft:    draft,
		Rendered: renderMarkdown(draft),
		Warnings: warnings,
	}
	var totalMs int64
	for _, g := range filterGroups(h.tr.View(criteria).Groups, tickets) {
		totalMs += g.TotalMs
		data.Rows = append(data.Rows, reportRow{
			TicketID: g.TicketID,
			Duration: format.Duration(g.TotalMs),
			Sessions: len(g.Sessions),
			Closed:   g.Closed,
		})
	}
	data.Total = format.Duration(totalMs)

	h.renderer.renderPage(w, http.StatusOK, "report", data)
}

func filterGroups(groups []logs.Group, tickets []string) []logs.Group {
	if len(tickets) == 0 {
		return groups
	}
	want := make(map[string]bool, len(tickets))
	for _, t := range tickets {
		want[t] = true
	}
	var out []logs.Group
	for _, g := range groups {
		if want[g.TicketID] {
			out = append(out, g)
		}
	}
	return out
}

// splitList parses a comma-separated query value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := sanitize.TicketID(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func splitSet(s string) map[string]bool {
	list := splitList(s)
	if len(list) == 0 {
		return nil
	}
	set := make(map[string]bool, len(list))
	for _, v := range list {
		set[v] = true
	}
	return set
}
