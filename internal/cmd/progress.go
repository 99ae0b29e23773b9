package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"github.com/runger/snapc/internal/snapd"
)

// progressView renders change snapshots while an async request runs.
// update is called on the client's event loop and must not block.
type progressView interface {
	update(*snapd.Change)
	finish()
}

// newProgressView picks a renderer for mode: auto, bar, plain or none.
// auto uses the bar when out is a terminal.
func newProgressView(mode string, out *os.File) progressView {
	if mode == "auto" {
		mode = "plain"
		if isTerminal(out) {
			mode = "bar"
		}
	}
	switch mode {
	case "bar":
		return newBarView(out)
	case "plain":
		return &plainView{out: out, seen: make(map[string]string)}
	default:
		return noView{}
	}
}

type noView struct{}

func (noView) update(*snapd.Change) {}
func (noView) finish()              {}

// plainView prints one line per task status transition.
type plainView struct {
	out  io.Writer
	mu   sync.Mutex
	seen map[string]string
}

func (v *plainView) update(c *snapd.Change) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, t := range c.Tasks {
		if v.seen[t.ID] == t.Status {
			continue
		}
		v.seen[t.ID] = t.Status
		fmt.Fprintf(v.out, "%-7s %s\n", t.Status, t.Summary)
	}
}

func (v *plainView) finish() {}

// changeMsg carries the latest change snapshot into the bar program.
type changeMsg struct{ change *snapd.Change }

type finishMsg struct{}

// barView runs a Bubble Tea program drawing one progress bar. Snapshots go
// through a one-slot mailbox so the event loop never waits on rendering.
type barView struct {
	program *tea.Program
	mailbox chan *snapd.Change
	relayed chan struct{}
	exited  chan struct{}
}

func newBarView(out *os.File) *barView {
	lipgloss.SetColorProfile(termenv.NewOutput(out).ColorProfile())

	v := &barView{
		mailbox: make(chan *snapd.Change, 1),
		relayed: make(chan struct{}),
		exited:  make(chan struct{}),
	}
	v.program = tea.NewProgram(newBarModel(termWidth(out)),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	go func() {
		defer close(v.exited)
		_, _ = v.program.Run()
	}()
	go func() {
		defer close(v.relayed)
		for c := range v.mailbox {
			v.program.Send(changeMsg{c})
		}
	}()
	return v
}

func (v *barView) update(c *snapd.Change) {
	for {
		select {
		case v.mailbox <- c:
			return
		default:
		}
		// Drop the stale snapshot and retry.
		select {
		case <-v.mailbox:
		default:
		}
	}
}

// finish must be called after the request completed, when no further
// update can arrive.
func (v *barView) finish() {
	close(v.mailbox)
	<-v.relayed
	v.program.Send(finishMsg{})
	<-v.exited
}

type barModel struct {
	bar    progress.Model
	width  int
	label  string
	pct    float64
	status string
	done   bool
}

func newBarModel(width int) barModel {
	if width <= 0 {
		width = 80
	}
	m := barModel{width: width, bar: progress.New(progress.WithDefaultGradient())}
	m.resize()
	return m
}

func (m *barModel) resize() {
	m.bar.Width = min(max(m.width/3, 10), 40)
}

func (m barModel) Init() tea.Cmd { return nil }

func (m barModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.resize()
	case changeMsg:
		m.label, m.pct = changeProgress(msg.change)
		m.status = msg.change.Status
	case finishMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m barModel) View() string {
	if m.done || m.label == "" {
		return ""
	}
	pct := fmt.Sprintf(" %3.0f%%", m.pct*100)
	room := m.width - m.bar.Width - runewidth.StringWidth(pct) - 2
	label := runewidth.Truncate(m.label, max(room, 1), "…")
	label = runewidth.FillRight(label, max(room, 1))
	return label + " " + m.bar.ViewAs(m.pct) + dimStyle.Render(pct)
}

// changeProgress returns what to show for c: the running task with a known
// total, or the share of finished tasks.
func changeProgress(c *snapd.Change) (string, float64) {
	if c == nil {
		return "", 0
	}
	for _, t := range c.Tasks {
		if t.Status == "Doing" && t.Progress.Total > 0 {
			return t.Summary, t.Progress.Fraction()
		}
	}
	if len(c.Tasks) == 0 {
		return c.Summary, 0
	}
	done := 0
	label := c.Summary
	for _, t := range c.Tasks {
		switch t.Status {
		case "Done", "Undone", "Hold", "Error":
			done++
		case "Doing":
			label = t.Summary
		}
	}
	return strings.TrimSpace(label), float64(done) / float64(len(c.Tasks))
}
