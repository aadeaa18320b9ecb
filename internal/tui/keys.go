package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Start    key.Binding
	Stop     key.Binding
	Pause    key.Binding
	Note     key.Binding
	Edit     key.Binding
	Rename   key.Binding
	Delete   key.Binding
	Select   key.Binding
	Submit   key.Binding
	Unsubmit key.Binding
	Close    key.Binding
	Search   key.Binding
	Status   key.Binding
	Dates    key.Binding
	Clear    key.Binding
	Export   key.Binding
	Copy     key.Binding
	Tab1     key.Binding
	Tab2     key.Binding
	Tab3     key.Binding
	Tab4     key.Binding
	Tab      key.Binding
	Help     key.Binding
	Enter    key.Binding
	Back     key.Binding
	Up       key.Binding
	Down     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Start: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start"),
	),
	Stop: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "stop"),
	),
	Pause: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "pause/resume"),
	),
	Note: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "edit note"),
	),
	Edit: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "edit"),
	),
	Rename: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "rename ticket"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "delete"),
	),
	Select: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "select"),
	),
	Submit: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "mark submitted"),
	),
	Unsubmit: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "unsubmit"),
	),
	Close: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "close/reopen"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Status: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "status filter"),
	),
	Dates: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "date range"),
	),
	Clear: key.NewBinding(
		key.WithKeys("z"),
		key.WithHelp("z", "clear filters"),
	),
	Export: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "export"),
	),
	Copy: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "copy draft"),
	),
	Tab1: key.NewBinding(
		key.WithKeys("1"),
		key.WithHelp("1", "timer"),
	),
	Tab2: key.NewBinding(
		key.WithKeys("2"),
		key.WithHelp("2", "logs"),
	),
	Tab3: key.NewBinding(
		key.WithKeys("3"),
		key.WithHelp("3", "reports"),
	),
	Tab4: key.NewBinding(
		key.WithKeys("4"),
		key.WithHelp("4", "settings"),
	),
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Pause, k.Stop, k.Export, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Pause, k.Stop, k.Note},
		{k.Select, k.Submit, k.Unsubmit, k.Delete},
		{k.Edit, k.Rename, k.Close, k.Export},
		{k.Search, k.Status, k.Dates, k.Clear},
		{k.Tab1, k.Tab2, k.Tab3, k.Tab4, k.Copy},
		{k.Up, k.Down, k.Enter, k.Back, k.Quit},
	}
}
