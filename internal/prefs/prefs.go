// Package prefs keeps device-local preferences in a small JSON file next to
// the config.
package prefs

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Timborini/ticktacktoto-sub000/internal/sanitize"
)

// MaxRecent caps the recent ticket list.
const MaxRecent = 5

type data struct {
	ProfileTitle  string   `json:"profile_title,omitempty"`
	ProfileRole   string   `json:"profile_role,omitempty"`
	RecentTickets []string `json:"recent_tickets,omitempty"`
	Visited       bool     `json:"visited,omitempty"`
	AnonymousID   string   `json:"anonymous_id,omitempty"`
}

// Prefs is a file-backed preference set. Every setter saves immediately.
type Prefs struct {
	path string

	mu sync.Mutex
	d  data
}

// Load reads path. A missing file yields empty preferences.
func Load(path string) (*Prefs, error) {
	p := &Prefs{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if err := json.Unmarshal(raw, &p.d); err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", path, err)
	}
	return p, nil
}

// DefaultPath returns prefs.json inside dir.
func DefaultPath(dir string) string {
	return filepath.Join(dir, "prefs.json")
}

func (p *Prefs) ProfileTitle() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.d.ProfileTitle
}

func (p *Prefs) ProfileRole() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.d.ProfileRole
}

// SetProfile stores the title and role used by the report draft.
func (p *Prefs) SetProfile(title, role string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.d.ProfileTitle = sanitize.Title(title)
	p.d.ProfileRole = sanitize.Title(role)
	return p.saveLocked()
}

// RecentTickets returns the most recently used tickets, newest first.
func (p *Prefs) RecentTickets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.d.RecentTickets...)
}

// AddRecent moves ticketID to the front of the recent list.
func (p *Prefs) AddRecent(ticketID string) error {
	ticketID = sanitize.TicketID(ticketID)
	if ticketID == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	recent := []string{ticketID}
	for _, t := range p.d.RecentTickets {
		if !strings.EqualFold(t, ticketID) {
			recent = append(recent, t)
		}
	}
	if len(recent) > MaxRecent {
		recent = recent[:MaxRecent]
	}
	p.d.RecentTickets = recent
	return p.saveLocked()
}

// Visited reports whether the first-visit help was already shown.
func (p *Prefs) Visited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.d.Visited
}

func (p *Prefs) MarkVisited() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.d.Visited {
		return nil
	}
	p.d.Visited = true
	return p.saveLocked()
}

// AnonymousID returns the stored anonymous identity, or "".
func (p *Prefs) AnonymousID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.d.AnonymousID
}

func (p *Prefs) SetAnonymousID(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.d.AnonymousID = id
	return p.saveLocked()
}

func (p *Prefs) saveLocked() error {
	if p.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create prefs directory: %w", err)
	}
	raw, err := json.MarshalIndent(p.d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}
