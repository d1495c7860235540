// Package ui presents frames on the terminal and reads playback keys.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NekoSaan/h264Player/internal/input"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/player"
	"github.com/NekoSaan/h264Player/internal/transport"
)

// Messages
type statusMsg player.Status
type frameMsg media.Frame

// Model is the bubbletea model of the player screen.
type Model struct {
	title  string
	sink   EventSink
	status player.Status
	frame  *media.Frame
	width  int
	notice string
}

// NewModel creates the screen model. title is shown in the header and as
// the terminal window title.
func NewModel(title string, sink EventSink) *Model {
	return &Model{title: title, sink: sink, width: 80}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.SetWindowTitle(m.title)
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		ev := KeyEvent(msg.String())
		if ev == transport.Other || m.sink == nil {
			return m, nil
		}
		if err := m.sink.Push(ev, input.OriginKeyboard); err != nil {
			m.notice = err.Error()
		} else {
			m.notice = ""
		}

	case statusMsg:
		m.status = player.Status(msg)

	case frameMsg:
		f := media.Frame(msg)
		m.frame = &f
	}
	return m, nil
}

// View implements tea.Model
func (m *Model) View() string {
	width := m.width
	if width < 40 {
		width = 40
	}

	header := HeaderStyle.Width(width - 2).Render(m.title)

	status := fmt.Sprintf("%s  %s %s / %s  %s %s",
		StateBadge(m.status.State),
		LabelStyle.Render("time"),
		ValueStyle.Render(formatClock(m.status.Position)),
		ValueStyle.Render(formatClock(m.status.Duration)),
		LabelStyle.Render("rate"),
		ValueStyle.Render(fmt.Sprintf("%.2gx", rateOrOne(m.status.Rate))),
	)

	lines := []string{status, progressBar(m.status.Progress(), width-6)}
	if f := m.frame; f != nil {
		kind := ValueStyle.Render(f.Type.String())
		if f.Keyframe {
			kind = KeyframeStyle.Render(f.Type.String() + " key")
		}
		lines = append(lines, fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
			LabelStyle.Render("frame"), ValueStyle.Render(fmt.Sprint(f.Index)),
			LabelStyle.Render("type"), kind,
			LabelStyle.Render("size"), ValueStyle.Render(fmt.Sprintf("%dx%d", f.Width, f.Height)),
			LabelStyle.Render("bytes"), ValueStyle.Render(fmt.Sprint(f.Size)),
		))
	} else {
		lines = append(lines, MutedStyle.Render("waiting for the first frame"))
	}
	if m.status.Skipped > 0 {
		lines = append(lines, ErrorStyle.Render(fmt.Sprintf("%d packets skipped", m.status.Skipped)))
	}
	if m.notice != "" {
		lines = append(lines, ErrorStyle.Render(m.notice))
	}

	panel := PanelStyle.Width(width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	return lipgloss.JoinVertical(lipgloss.Left, header, panel, MutedStyle.Render(helpLine))
}

func rateOrOne(r float64) float64 {
	if r <= 0 {
		return 1
	}
	return r
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func progressBar(fraction float64, width int) string {
	if width < 1 {
		width = 1
	}
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	return PlayingStyle.Render(strings.Repeat("█", filled)) + MutedStyle.Render(strings.Repeat("░", width-filled))
}

// TUI is a full-screen terminal renderer. Keys are pushed to the sink it
// was created with.
type TUI struct {
	program *tea.Program
	done    chan struct{}
	err     error
}

var (
	_ media.Renderer  = (*TUI)(nil)
	_ player.Observer = (*TUI)(nil)
)

// NewTUI starts the terminal program. opts are passed to bubbletea.
func NewTUI(title string, sink EventSink, opts ...tea.ProgramOption) *TUI {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	t := &TUI{
		program: tea.NewProgram(NewModel(title, sink), opts...),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		_, t.err = t.program.Run()
	}()
	return t
}

// Present implements media.Renderer.
func (t *TUI) Present(ctx context.Context, f *media.Frame) error {
	select {
	case <-t.done:
		if t.err != nil {
			return fmt.Errorf("terminal closed: %w", t.err)
		}
		return fmt.Errorf("terminal closed")
	default:
	}
	t.program.Send(frameMsg(*f))
	return nil
}

// ObserveStatus implements player.Observer.
func (t *TUI) ObserveStatus(s player.Status) {
	t.program.Send(statusMsg(s))
}

// Close stops the program and restores the terminal.
func (t *TUI) Close() error {
	t.program.Quit()
	<-t.done
	return t.err
}
