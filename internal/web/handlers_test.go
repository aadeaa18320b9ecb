package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/export"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
	"github.com/Timborini/ticktacktoto-sub000/internal/timer"
	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
)

var testScope = store.UserScope("app", "u1")

type testEnv struct {
	store *store.Store
	tr    *tracker.Tracker
	srv   *http.Server
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("store.NewMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &testEnv{store: s}
}

// open starts the tracker after the store has been seeded.
func (e *testEnv) open(t *testing.T) {
	t.Helper()
	tr, err := tracker.Open(context.Background(), e.store, testScope, tracker.Options{
		Location:     time.UTC,
		TickInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("tracker.Open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		tr.Close()
	})

	e.tr = tr
	e.srv = NewServer(tr, Options{
		Addr:    "127.0.0.1:0",
		Version: "test",
		Profile: func() export.Profile { return export.Profile{Title: "engineer", Role: "manager"} },
	})
}

func (e *testEnv) seed(t *testing.T, ticket, note string, end time.Time, d time.Duration) string {
	t.Helper()
	id, err := e.store.CreateSession(context.Background(), testScope, store.Session{
		TicketID:      ticket,
		EndTime:       &end,
		AccumulatedMs: d.Milliseconds(),
		Note:          note,
		Status:        store.StatusUnsubmitted,
		CreatedAt:     end.Add(-d),
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return id
}

// do sends a request the way the served page does: POST bodies are JSON.
func (e *testEnv) do(method, target string, body string) *httptest.ResponseRecorder {
	req := newRequest(method, target, body)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req)
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func newRequest(method, target, body string) *http.Request {
	if body != "" {
		return httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return httptest.NewRequest(method, target, nil)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error.Code
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var day = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

// --- Server ---

func TestSecurityHeaders(t *testing.T) {
	e := setupTest(t)
	e.open(t)

	rec := e.do("GET", "/api/timer", "")
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy")
	}
}

func TestRootRedirects(t *testing.T) {
	e := setupTest(t)
	e.open(t)

	rec := e.do("GET", "/", "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/report" {
		t.Fatalf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

// --- HandleView ---

func TestHandleView_Default(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.seed(t, "OPS-2", "b", day.Add(-time.Hour), 30*time.Minute)
	e.open(t)

	rec := e.do("GET", "/api/view", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out viewJSON
	decode(t, rec, &out)
	if len(out.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(out.Groups))
	}
	if out.Groups[0].TicketID != "PROJ-1" || out.Total != "01:30:00" {
		t.Errorf("first = %s, total = %s", out.Groups[0].TicketID, out.Total)
	}
	if out.Query != "" {
		t.Errorf("unfiltered view should encode to an empty query, got %q", out.Query)
	}
}

func TestHandleView_FiltersAndWarnings(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.seed(t, "OPS-2", "b", day, time.Hour)
	e.open(t)

	rec := e.do("GET", "/api/view?search=proj&status=bogus&dateStart=2024-13-01", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out viewJSON
	decode(t, rec, &out)
	if len(out.Groups) != 1 || out.Groups[0].TicketID != "PROJ-1" {
		t.Fatalf("groups = %+v", out.Groups)
	}
	if len(out.Warnings) != 2 {
		t.Errorf("warnings = %v, want 2", out.Warnings)
	}
	if out.Query != "search=proj" {
		t.Errorf("query = %q", out.Query)
	}
}

func TestHandleView_UnknownShare(t *testing.T) {
	e := setupTest(t)
	e.open(t)

	rec := e.do("GET", "/api/view?shareId=someone-else", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if code := errorCode(t, rec); code != string(errors.ErrNotFound) {
		t.Errorf("code = %s", code)
	}
}

// --- Timer ---

func TestHandleTimer_StartStop(t *testing.T) {
	e := setupTest(t)
	e.open(t)

	rec := e.do("POST", "/api/timer/start", `{"ticketId":" PROJ-9 ","note":"kickoff"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	var started struct {
		SessionID string    `json:"sessionId"`
		Timer     timerJSON `json:"timer"`
	}
	decode(t, rec, &started)
	if started.Timer.State != "running" || started.Timer.SessionID != started.SessionID {
		t.Fatalf("start response = %+v", started)
	}

	rec = e.do("GET", "/api/timer", "")
	var st timerJSON
	decode(t, rec, &st)
	if st.State != "running" || st.TicketID != "PROJ-9" {
		t.Fatalf("timer = %+v", st)
	}

	rec = e.do("POST", "/api/timer/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", rec.Code, rec.Body.String())
	}
	var stopped struct {
		Timer timerJSON `json:"timer"`
	}
	decode(t, rec, &stopped)
	if stopped.Timer.State != "idle" {
		t.Fatalf("stop response timer = %+v", stopped.Timer)
	}
	if e.tr.Status().State != timer.Idle {
		t.Fatal("tracker should be idle after stop")
	}

	start := time.Now()
	rec = e.do("POST", "/api/timer/stop", "")
	if rec.Code != http.StatusOK || time.Since(start) > time.Second {
		t.Fatalf("idle stop: status = %d after %s", rec.Code, time.Since(start))
	}
}

func TestHandleTimer_Errors(t *testing.T) {
	e := setupTest(t)
	e.open(t)

	rec := e.do("POST", "/api/timer/start", `{"ticketId":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != string(errors.ErrEmptyTicket) {
		t.Errorf("code = %s", code)
	}

	rec = e.do("POST", "/api/timer/start", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d, want 400", rec.Code)
	}

	rec = e.do("POST", "/api/timer/rewind", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown action status = %d, want 404", rec.Code)
	}
}

// --- Export ---

func TestHandleExport_NeedsConfirmation(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.open(t)

	rec := e.do("GET", "/api/export?scope=all&format=json", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var body struct {
		Choices     []string `json:"choices"`
		Unsubmitted int      `json:"unsubmitted"`
	}
	decode(t, rec, &body)
	if len(body.Choices) != 3 || body.Unsubmitted != 1 {
		t.Fatalf("body = %+v", body)
	}
}

func TestHandleExport_ExportOnly(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.open(t)

	rec := e.do("GET", "/api/export?scope=filtered&format=csv&decision=export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "filtered-logs-") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "PROJ-1") {
		t.Error("expected the session in the export")
	}
	if e.tr.Snapshot().Sessions[0].Submitted() {
		t.Error("export only must not submit")
	}
}

func TestHandleExport_AndSubmit(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.open(t)

	rec := e.do("POST", "/api/export?scope=selected&tickets=PROJ-1", `{"decision":"submit"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	waitFor(t, func() bool {
		sessions := e.tr.Snapshot().Sessions
		return len(sessions) == 1 && sessions[0].Submitted()
	})

	rec = e.do("GET", "/api/export?scope=all", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("submitted sessions should export without confirmation, status = %d", rec.Code)
	}
}

func TestHandleExport_Cancel(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.open(t)

	rec := e.do("GET", "/api/export?decision=cancel", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestHandleExport_BadRequests(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.open(t)

	for _, target := range []string{
		"/api/export?scope=mine",
		"/api/export?format=xlsx",
		"/api/export?scope=selected",
		"/api/export?decision=maybe",
		"/api/export?search=nothing-matches",
	} {
		rec := e.do("GET", target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestHandleExport_SubmitNeedsPost(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.open(t)

	rec := e.do("GET", "/api/export?scope=all&decision=submit", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if rec.Header().Get("Allow") != "POST" {
		t.Errorf("Allow = %q", rec.Header().Get("Allow"))
	}
	if e.tr.Snapshot().Sessions[0].Submitted() {
		t.Fatal("GET must not submit sessions")
	}
}

func TestHandleExport_PostWithoutDecision(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.open(t)

	rec := e.do("POST", "/api/export?scope=all", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

// --- Request guards ---

func TestCrossOriginWritesRejected(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.open(t)

	cases := []struct {
		name, target, body string
		header             map[string]string
	}{
		{"timer fetch metadata", "/api/timer/start", `{"ticketId":"EVIL-1"}`,
			map[string]string{"Sec-Fetch-Site": "cross-site", "Origin": "https://evil.example"}},
		{"timer origin only", "/api/timer/start", `{"ticketId":"EVIL-1"}`,
			map[string]string{"Origin": "https://evil.example"}},
		{"export submit", "/api/export?scope=all", `{"decision":"submit"}`,
			map[string]string{"Sec-Fetch-Site": "cross-site"}},
	}
	for _, tc := range cases {
		req := newRequest("POST", tc.target, tc.body)
		req.Header.Set("Content-Type", "application/json")
		for k, v := range tc.header {
			req.Header.Set(k, v)
		}
		rec := e.serve(req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403", tc.name, rec.Code)
			continue
		}
		if code := errorCode(t, rec); code != "CROSS_ORIGIN" {
			t.Errorf("%s: code = %s", tc.name, code)
		}
	}

	if st := e.tr.Status(); st.State != timer.Idle {
		t.Fatalf("timer state = %s, want idle", st.State)
	}
	sessions, err := e.store.ListSessions(context.Background(), testScope)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Submitted() {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestSameOriginWritesAllowed(t *testing.T) {
	e := setupTest(t)
	e.open(t)

	req := newRequest("POST", "/api/timer/start", `{"ticketId":"PROJ-1"}`)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Origin", "http://"+req.Host)
	if rec := e.serve(req); rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWritesRequireJSON(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.open(t)

	for _, tc := range []struct{ target, body, contentType string }{
		{"/api/timer/start", `{"ticketId":"EVIL-1"}`, "text/plain"},
		{"/api/timer/start", `{"ticketId":"EVIL-1"}`, ""},
		{"/api/export?scope=all", `{"decision":"submit"}`, "application/x-www-form-urlencoded"},
	} {
		req := newRequest("POST", tc.target, tc.body)
		if tc.contentType != "" {
			req.Header.Set("Content-Type", tc.contentType)
		}
		rec := e.serve(req)
		if rec.Code != http.StatusUnsupportedMediaType {
			t.Errorf("%s as %q: status = %d, want 415", tc.target, tc.contentType, rec.Code)
		}
	}

	rec := e.do("POST", "/api/timer/start", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty JSON start: status = %d, want 400", rec.Code)
	}
	if e.tr.Status().State != timer.Idle || e.tr.Snapshot().Sessions[0].Submitted() {
		t.Fatal("rejected writes must not change the log")
	}
}

// --- Report ---

func TestHandleReport(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "fixed the login bug", day, time.Hour)
	e.seed(t, "OPS-2", "rotated keys", day, time.Hour)
	e.open(t)

	rec := e.do("GET", "/report?title=designer&tickets=PROJ-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"PROJ-1", "designer", "manager", "<li>", "fixed the login bug"} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(body, "rotated keys") {
		t.Error("report should be limited to the requested tickets")
	}
}

func TestHandleReport_HTMLErrorPage(t *testing.T) {
	e := setupTest(t)
	e.open(t)

	rec := e.do("GET", "/report?shareId=nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

// --- Events ---

func TestHandleEvents(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "PROJ-1", "a", day, time.Hour)
	e.open(t)

	ts := httptest.NewServer(e.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "event: update\n" {
		t.Fatalf("first line = %q", line)
	}
	data, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	var ev eventJSON
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(data), "data: ")), &ev); err != nil {
		t.Fatalf("decode event %q: %v", data, err)
	}
	if ev.Sessions != 1 || ev.Timer.State != "idle" {
		t.Fatalf("event = %+v", ev)
	}
}

// --- Helpers ---

func TestStatusFor(t *testing.T) {
	cases := map[errors.ErrorCode]int{
		errors.ErrEmptyTicket:         http.StatusBadRequest,
		errors.ErrNotFound:            http.StatusNotFound,
		errors.ErrBusy:                http.StatusConflict,
		errors.ErrActiveSessionExists: http.StatusConflict,
		errors.ErrWrite:               http.StatusServiceUnavailable,
		errors.ErrTimeout:             http.StatusGatewayTimeout,
		errors.ErrInternal:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := statusFor(code); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", code, got, want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" A-1, ,B-2,")
	if len(got) != 2 || got[0] != "A-1" || got[1] != "B-2" {
		t.Fatalf("splitList = %v", got)
	}
	if splitSet("") != nil {
		t.Fatal("empty input should give a nil set")
	}
}
