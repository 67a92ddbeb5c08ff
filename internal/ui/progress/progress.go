// Package progress shows a spinner for a long step on an interactive
// terminal, and a plain line everywhere else (cron, pipes, log files).
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/nhle/polly-merge/internal/theme"
)

// Indicator tracks one step started with Start.
type Indicator struct {
	program *tea.Program
	done    chan struct{}
	stopped bool
}

// finishMsg tells the spinner model the step has ended.
type finishMsg struct {
	ok bool
}

// model is the bubbletea model behind the spinner.
type model struct {
	spinner  spinner.Model
	renderer *lipgloss.Renderer
	text     string
	finished bool
	ok       bool
}

func newModel(r *lipgloss.Renderer, text string) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.SpinnerStyle(r)

	return model{spinner: sp, renderer: r, text: text}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case finishMsg:
		m.finished = true
		m.ok = msg.ok
		return m, tea.Quit

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	if m.finished {
		mark := theme.DoneMark(m.renderer)
		if !m.ok {
			mark = theme.FailMark(m.renderer)
		}
		return fmt.Sprintf("%s %s\n", mark, m.text)
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.text)
}

// Start begins a step labelled text on w. On a terminal a spinner runs
// until Succeed or Fail; otherwise text is written once as a line.
func Start(w io.Writer, text string) *Indicator {
	if !isTerminal(w) {
		fmt.Fprintln(w, text)
		return &Indicator{}
	}

	p := tea.NewProgram(
		newModel(lipgloss.NewRenderer(w), text),
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	ind := &Indicator{program: p, done: make(chan struct{})}
	go func() {
		defer close(ind.done)
		_, _ = p.Run()
	}()
	return ind
}

// Succeed ends the step with a success mark.
func (i *Indicator) Succeed() {
	i.stop(true)
}

// Fail ends the step with a failure mark.
func (i *Indicator) Fail() {
	i.stop(false)
}

func (i *Indicator) stop(ok bool) {
	if i.program == nil || i.stopped {
		return
	}
	i.stopped = true
	i.program.Send(finishMsg{ok: ok})
	<-i.done
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
