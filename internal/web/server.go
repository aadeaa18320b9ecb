// Package web serves the tracker over HTTP: the URL-encoded log view, timer
// control, export downloads, a live update stream and the report preview.
package web

import (
	"context"
	stderrors "errors"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/export"
	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
)

// shutdownTimeout bounds the drain of open requests on shutdown.
const shutdownTimeout = 5 * time.Second

// Options configure the server.
type Options struct {
	Addr    string
	Version string
	Logger  *slog.Logger
	// Profile supplies the report profile when the request names none.
	Profile func() export.Profile
}

// NewServer creates and configures the HTTP server for tr.
func NewServer(tr *tracker.Tracker, opts Options) *http.Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Profile == nil {
		opts.Profile = func() export.Profile {
			return export.Profile{Title: export.DefaultTitle, Role: export.DefaultRole}
		}
	}

	h := &Handlers{
		tr:       tr,
		log:      opts.Logger,
		profile:  opts.Profile,
		renderer: NewRenderer(opts.Version),
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/report", http.StatusFound)
	})
	mux.HandleFunc("GET /api/view", h.HandleView)
	mux.HandleFunc("GET /api/timer", h.HandleTimer)
	mux.Handle("POST /api/timer/{action}", requireJSON(http.HandlerFunc(h.HandleTimerAction)))
	mux.HandleFunc("GET /api/export", h.HandleExport)
	mux.Handle("POST /api/export", requireJSON(http.HandlerFunc(h.HandleExportSubmit)))
	mux.HandleFunc("GET /api/events", h.HandleEvents)
	mux.HandleFunc("GET /report", h.HandleReport)

	// Browsers tag cross-site requests with Sec-Fetch-Site or Origin; state
	// changes are only accepted from the page this server serves.
	cop := http.NewCrossOriginProtection()
	cop.SetDenyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderAPIError(w, http.StatusForbidden, "CROSS_ORIGIN", "Cross-origin requests cannot change the log")
	}))

	return &http.Server{
		Addr:              opts.Addr,
		Handler:           securityHeaders(cop.Handler(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// requireJSON rejects request bodies that are not declared as JSON. Forms
// and text/plain posts are what other sites can send without a preflight.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			renderAPIError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx ends, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	// Request contexts end with the server so event streams let go.
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv.BaseContext = func(net.Listener) context.Context { return base }

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("web server running", "url", "http://"+srv.Addr)
	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.HasPrefix(srv.Addr, "[::]") || strings.HasPrefix(srv.Addr, ":") {
		log.Warn("server is binding to all interfaces and may be reachable from the network", "addr", srv.Addr)
	}

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		cancelBase()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}
