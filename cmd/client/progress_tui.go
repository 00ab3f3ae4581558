package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/vcscompare/internal/compare"
)

type progressMsg struct {
	step     string
	fraction float64
}

type progressDoneMsg struct{ err error }

type progressModel struct {
	spinner  spinner.Model
	bar      progress.Model
	title    string
	step     string
	fraction float64
	cancel   context.CancelFunc
	done     bool
	err      error
}

func newProgressModel(title string, cancel context.CancelFunc) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	return progressModel{
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		title:   title,
		step:    "connect",
		cancel:  cancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// the run reports back through progressDoneMsg once it sees the cancellation
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			m.cancel()
			m.step = "canceling"
		}
	case progressMsg:
		m.step = msg.step
		m.fraction = msg.fraction
	case progressDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s %s %s\n", m.spinner.View(), m.title, m.bar.ViewAs(m.fraction), gray.Render(m.step))
}

// runWithProgress runs fn while rendering its progress on stderr
func runWithProgress(ctx context.Context, title string, fn func(ctx context.Context, progress compare.ProgressFunc) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(title, cancel), tea.WithOutput(os.Stderr))

	go func() {
		err := fn(ctx, func(step string, fraction float64) {
			p.Send(progressMsg{step: step, fraction: fraction})
		})
		p.Send(progressDoneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress display: %w", err)
	}
	if fm, ok := final.(progressModel); ok {
		return fm.err
	}
	return nil
}
