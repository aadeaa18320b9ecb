package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
)

// viewState represents the currently active view.
type viewState int

const (
	viewTimer viewState = iota
	viewLogs
	viewReports
	viewSettings
)

var viewNames = []string{"Timer", "Logs", "Reports", "Settings"}

// toastTTL is how long a threshold or action notice stays in the footer.
const toastTTL = 6 * time.Second

// --- Messages ---

// updateMsg carries a tracker update into the program loop.
type updateMsg tracker.Update

// watchClosedMsg is sent once the tracker stops publishing.
type watchClosedMsg struct{}

// actionMsg reports the outcome of a tracker action.
type actionMsg struct {
	text           string
	err            error
	clearSelection bool
}

type statusMsg struct {
	text    string
	isError bool
}

type clearToastMsg struct {
	id int
}

type exportDoneMsg struct {
	path string
}

type reportReadyMsg struct {
	text string
	err  error
}

// --- Commands ---

// waitForUpdate blocks on the tracker's update stream.
func waitForUpdate(ch <-chan tracker.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return watchClosedMsg{}
		}
		return updateMsg(u)
	}
}

// runAction runs fn off the program loop and reports ok on success.
func runAction(ok string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(context.Background()); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{text: ok}
	}
}

func clearToastAfter(id int) tea.Cmd {
	return tea.Tick(toastTTL, func(time.Time) tea.Msg {
		return clearToastMsg{id: id}
	})
}

// --- Helpers ---

func formatDuration(d time.Duration) string {
	return format.Duration(d.Milliseconds())
}

func errorText(err error) string {
	return errors.UserMessage(err)
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
