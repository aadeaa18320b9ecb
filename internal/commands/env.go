package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Timborini/ticktacktoto-sub000/internal/config"
	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/export"
	"github.com/Timborini/ticktacktoto-sub000/internal/identity"
	"github.com/Timborini/ticktacktoto-sub000/internal/prefs"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
	"github.com/Timborini/ticktacktoto-sub000/internal/tui"
)

type envOptions struct {
	// tui sends logs to a file so the alternate screen stays clean.
	tui bool
	// tolerant keeps going when the first snapshot failed or timed out;
	// the error is shown as the tracker banner instead.
	tolerant bool
}

// env is everything a command needs: configuration, preferences and a
// running tracker over the store.
type env struct {
	dir   string
	cfg   *config.Config
	prefs *profilePrefs
	store *store.Store
	tr    *tracker.Tracker
	log   *slog.Logger

	closers []func()
}

// profilePrefs falls back to the configured report role when the user has
// not picked one.
type profilePrefs struct {
	*prefs.Prefs
	role string
}

func (p *profilePrefs) ProfileRole() string {
	if r := p.Prefs.ProfileRole(); r != "" {
		return r
	}
	return p.role
}

// Profile is the report profile with defaults filled in.
func (p *profilePrefs) Profile() export.Profile {
	prof := export.Profile{Title: p.ProfileTitle(), Role: p.ProfileRole()}
	if prof.Title == "" {
		prof.Title = export.DefaultTitle
	}
	if prof.Role == "" {
		prof.Role = export.DefaultRole
	}
	return prof
}

func openEnv(cmd *cobra.Command, o *options, eo envOptions) (*env, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e := &env{dir: o.configDir}
	if e.dir == "" {
		dir, err := config.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		e.dir = dir
	}

	cfg, err := config.Load(e.dir, o.envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e.cfg = cfg

	if err := e.setupLogging(cmd, eo.tui); err != nil {
		return nil, err
	}

	p, err := prefs.Load(prefs.DefaultPath(e.dir))
	if err != nil {
		e.Close()
		return nil, err
	}
	e.prefs = &profilePrefs{Prefs: p, role: cfg.ReportRole}

	scope, signIn, err := e.resolveScope(ctx, o.shareID)
	if err != nil {
		e.Close()
		return nil, err
	}
	var banner string
	if signIn != nil {
		banner = errors.UserMessage(signIn) + ". Using the anonymous log."
		if !eo.tui {
			fmt.Fprintln(cmd.ErrOrStderr(), "Warning: "+banner)
		}
	}

	dbPath := cfg.DBPath
	switch {
	case dbPath != "":
	case o.configDir != "":
		dbPath = filepath.Join(e.dir, "ticktack.db")
	default:
		if dbPath, err = store.DefaultDBPath(); err != nil {
			e.Close()
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	st, err := store.New(dbPath)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	st.SetBatchLimit(cfg.BatchLimit)
	e.store = st
	e.closers = append(e.closers, func() { st.Close() })

	loc, err := cfg.Location()
	if err != nil {
		e.Close()
		return nil, err
	}

	tr, err := tracker.Open(ctx, st, scope, tracker.Options{
		StartupTimeout: cfg.StartupTimeout(),
		MaxSegment:     cfg.MaxSegment(),
		Location:       loc,
		Logger:         e.log,
		Recents:        e.prefs,
		Banner:         banner,
	})
	e.tr = tr
	e.closers = append(e.closers, tr.Close)
	if err != nil && !eo.tolerant {
		e.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Run(runCtx)
	}()
	e.closers = append(e.closers, func() {
		cancel()
		<-done
	})
	return e, nil
}

func (e *env) setupLogging(cmd *cobra.Command, toFile bool) error {
	opts := &slog.HandlerOptions{Level: e.cfg.Level()}
	if !toFile {
		e.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), opts))
		return nil
	}
	f, err := tui.OpenLog(filepath.Join(e.dir, "ticktack.log"))
	if err != nil {
		return err
	}
	e.closers = append(e.closers, func() { f.Close() })
	e.log = slog.New(slog.NewTextHandler(f, opts))
	slog.SetDefault(e.log)
	return nil
}

// resolveScope signs in and picks the user's own log, or the shared log
// named by shareID. signIn is the first provider failure that was fallen
// back from, if any.
func (e *env) resolveScope(ctx context.Context, shareID string) (scope store.Scope, signIn error, err error) {
	var providers []identity.Provider
	if e.cfg.UserID != "" {
		providers = append(providers, identity.Federated{UserID: e.cfg.UserID, Token: e.cfg.AuthToken})
	}
	providers = append(providers, identity.Anonymous{Store: e.prefs})

	id, failed, err := identity.Resolve(ctx, providers...)
	for _, f := range failed {
		e.log.Warn("sign-in failed, falling back", "err", f)
	}
	if err != nil {
		return store.Scope{}, nil, err
	}
	if len(failed) > 0 {
		signIn = failed[0]
	}
	e.log.Debug("signed in", "provider", id.Provider, "anonymous", id.Anonymous)

	scope = store.UserScope(e.cfg.AppID, id.UserID)
	if shareID != "" {
		scope = store.ShareScope(e.cfg.AppID, shareID)
	}
	if err := scope.Validate(); err != nil {
		return store.Scope{}, nil, fmt.Errorf("invalid log scope: %w", err)
	}
	return scope, signIn, nil
}

func (e *env) exportDir() string {
	if e.cfg.ExportDir != "" {
		return e.cfg.ExportDir
	}
	return "."
}

// Close releases everything in reverse order of acquisition.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}
