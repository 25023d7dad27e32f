package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/envboot/envboot"
	"github.com/sokinpui/envboot/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))           // Orange
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type errorMsg struct {
	summary model.Summary
	err     error
}

func (e errorMsg) Error() string { return e.err.Error() }

type progressMsg struct {
	step           string
	current, total int
}

// --- Model ---
type Model struct {
	app     *envboot.App
	ctx     context.Context
	cancel  context.CancelFunc
	spinner spinner.Model
	state   state
	summary model.Summary
	err     error

	step           string
	current, total int
}

type state int

const (
	stateProcessing state = iota
	stateCancelling
	stateSummary
	stateError
)

func New(ctx context.Context, app *envboot.App) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		app:     app,
		ctx:     ctx,
		cancel:  cancel,
		spinner: s,
		state:   stateProcessing,
	}
}

// SetProgram routes the app's progress updates into p.
func (m *Model) SetProgram(p *tea.Program) {
	m.app.SetProgressCallback(func(step string, current, total int) {
		p.Send(progressMsg{step: step, current: current, total: total})
	})
}

// Err returns the error the run ended with, if any.
func (m *Model) Err() error {
	return m.err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			switch m.state {
			case stateProcessing:
				// Execute may be mid-write; wait for runApp to report back.
				m.state = stateCancelling
				return m, nil
			case stateCancelling:
				return m, nil
			}
			return m, tea.Quit
		}

	case progressMsg:
		m.step, m.current, m.total = msg.step, msg.current, msg.total
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg.Summary
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.summary = msg.summary
		m.err = msg.err
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing || m.state == stateCancelling {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m *Model) View() string {
	switch m.state {
	case stateProcessing:
		return fmt.Sprintf("%s %s", m.spinner.View(), m.progressText())
	case stateCancelling:
		return fmt.Sprintf("%s %s", m.spinner.View(), warningStyle.Render("Cancelling..."))
	case stateError:
		return m.renderSummary() + errorStyle.Render("Error: "+m.err.Error()) + "\n"
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) progressText() string {
	switch {
	case m.step == "":
		return "Processing..."
	case m.step == envboot.StepDownload && m.total > 0:
		return fmt.Sprintf("Downloading SDK installer... %d%%", m.current*100/m.total)
	case m.step == envboot.StepDownload:
		return fmt.Sprintf("Downloading SDK installer... %d KiB", m.current/1024)
	default:
		return fmt.Sprintf("Checking %s (%d/%d)...", m.step, m.current+1, m.total)
	}
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	if m.summary.Message != "" {
		b.WriteString(headerStyle.Render(m.summary.Message))
		b.WriteString("\n\n")
	}

	for _, step := range m.summary.Steps {
		line := fmt.Sprintf("%-10s %s", step.Name, step.Status)
		if step.Detail != "" {
			line += ": " + step.Detail
		}
		b.WriteString("  ")
		b.WriteString(statusStyle(step.Status).Render(line))
		b.WriteString("\n")
	}

	if len(m.summary.Modified) > 0 {
		b.WriteString(successStyle.Render("Modified:"))
		b.WriteString("\n")
		for _, f := range m.summary.Modified {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	if len(m.summary.Failed) > 0 {
		b.WriteString(errorStyle.Render("Failed:"))
		b.WriteString("\n")
		for _, f := range m.summary.Failed {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}

	if b.Len() == 0 && m.state == stateSummary {
		b.WriteString(faintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}

	return b.String()
}

func statusStyle(status model.StepStatus) lipgloss.Style {
	switch status {
	case model.StepOK:
		return successStyle
	case model.StepWarning:
		return warningStyle
	case model.StepSkipped:
		return faintStyle
	default:
		return errorStyle
	}
}

func (m *Model) runApp() tea.Msg {
	summary, err := m.app.Execute(m.ctx)
	if err != nil {
		// Check for detailed error to print stack
		var detailed *envboot.DetailedError
		if errors.As(err, &detailed) {
			// The TUI will exit, so we can print to stderr here for the stack trace.
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		return errorMsg{summary: summary, err: err}
	}
	return summaryMsg{
		Summary: summary,
	}
}
