package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tailored-agentic-units/opstate/controller"
	"github.com/tailored-agentic-units/opstate/state"
)

// uiOptions wires a controller to the terminal UI. The model itself never
// touches the controller beyond the callbacks and the watch subscription.
type uiOptions[T any] struct {
	Title   string
	Initial state.State[T]
	Sub     *controller.Subscription[T]
	Reload  func(useCached bool)
	SetIdle func(useCached bool)
	Render  func(T) string
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	staleStyle   = lipgloss.NewStyle().Faint(true)
)

// stateMsg delivers one accepted transition from the watch subscription.
type stateMsg[T any] struct {
	state state.State[T]
	ok    bool
}

type model[T any] struct {
	opts        uiOptions[T]
	spin        spinner.Model
	st          state.State[T]
	transitions int
	width       int
}

func newModel[T any](opts uiOptions[T]) model[T] {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle
	return model[T]{opts: opts, spin: sp, st: opts.Initial}
}

// Init implements tea.Model.
func (m model[T]) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForState(m.opts.Sub))
}

// waitForState blocks on the subscription channel and converts the next
// transition into a message. Re-issued after every delivery.
func waitForState[T any](sub *controller.Subscription[T]) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-sub.States()
		return stateMsg[T]{state: st, ok: ok}
	}
}

// Update implements tea.Model.
func (m model[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.opts.Reload(true)
		case "R":
			m.opts.Reload(false)
		case "i":
			m.opts.SetIdle(true)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case stateMsg[T]:
		if !msg.ok {
			// Controller closed; nothing further will arrive.
			return m, tea.Quit
		}
		m.st = msg.state
		m.transitions++
		return m, waitForState(m.opts.Sub)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m model[T]) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("statewatch"))
	b.WriteString("  ")
	b.WriteString(mutedStyle.Render(m.opts.Title))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus())
	b.WriteString("\n")

	if body := m.renderPayload(); body != "" {
		b.WriteString("\n")
		b.WriteString(body)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("r reload · R reload fresh · i idle · q quit · %d transitions", m.transitions)))
	b.WriteString("\n")
	return b.String()
}

func (m model[T]) renderStatus() string {
	switch {
	case m.st.IsLoading():
		line := m.spin.View() + "loading"
		if m.st.HasData() {
			line += mutedStyle.Render("  (showing stale data)")
		}
		return line
	case m.st.IsError():
		line := errorStyle.Render("✗ " + m.st.Message())
		if m.st.Trace() != "" {
			line += mutedStyle.Render("  (trace logged)")
		}
		if m.st.HasData() {
			line += mutedStyle.Render("  (showing stale data)")
		}
		return line
	case m.st.IsEmpty():
		return successStyle.Render("✓ done") + mutedStyle.Render("  (no value)")
	case m.st.IsSuccess():
		return successStyle.Render("✓ up to date")
	default:
		return mutedStyle.Render("· idle")
	}
}

func (m model[T]) renderPayload() string {
	v, ok := m.st.Data()
	if !ok {
		return ""
	}
	body := m.opts.Render(v)
	if !m.st.IsSuccess() {
		body = staleStyle.Render(body)
	}
	return body
}

// runUI starts the Bubble Tea program and blocks until the user quits or
// ctx is cancelled.
func runUI[T any](ctx context.Context, opts uiOptions[T]) error {
	p := tea.NewProgram(newModel(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
