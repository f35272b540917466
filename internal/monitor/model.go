package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"hotfolder/internal/models"
)

// Source is the read side of the job ledger.
type Source interface {
	Load(ctx context.Context) ([]models.JobRecord, error)
	Path() string
}

type keyMap struct {
	Refresh key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Refresh, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var defaultKeys = keyMap{
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

type snapshotMsg struct {
	jobs []models.JobRecord
	err  error
}

type tickMsg time.Time

// Model is the bubbletea model of the live monitor.
type Model struct {
	source   Source
	interval time.Duration
	now      func() time.Time

	jobs   []models.JobRecord
	err    error
	loaded bool

	keys keyMap
	help help.Model
}

// New creates a monitor re-reading source every interval.
func New(source Source, interval time.Duration) Model {
	return Model{
		source:   source,
		interval: interval,
		now:      time.Now,
		keys:     defaultKeys,
		help:     help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.tick())
}

func (m Model) load() tea.Cmd {
	return func() tea.Msg {
		jobs, err := m.source.Load(context.Background())
		return snapshotMsg{jobs: jobs, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.load()
		}
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	case snapshotMsg:
		m.jobs, m.err, m.loaded = msg.jobs, msg.err, true
	case tickMsg:
		return m, tea.Batch(m.load(), m.tick())
	}
	return m, nil
}

func (m Model) View() string {
	if !m.loaded {
		return "\n  Loading...\n"
	}
	return Render(m.snapshot()) + "\n  " + m.help.View(m.keys) + "\n"
}

func (m Model) snapshot() Snapshot {
	return Snapshot{
		Jobs:      m.jobs,
		Err:       m.err,
		StatePath: m.source.Path(),
		Interval:  m.interval,
		Now:       m.now(),
	}
}

// Once renders a single frame without starting the program loop.
func Once(ctx context.Context, source Source, interval time.Duration) string {
	jobs, err := source.Load(ctx)
	return Render(Snapshot{Jobs: jobs, Err: err, StatePath: source.Path(), Interval: interval, Now: time.Now()})
}
