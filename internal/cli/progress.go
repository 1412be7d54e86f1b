package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/escalate-go/internal/service"
)

const pollInterval = 200 * time.Millisecond

// styles holds the terminal styles shared by the progress view and reports.
type styles struct {
	title   lipgloss.Style
	running lipgloss.Style
	done    lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
	border  lipgloss.Style
}

func newStyles() styles {
	muted := lipgloss.Color("#6C6C6C")
	return styles{
		title:   lipgloss.NewStyle().Foreground(lipgloss.Color("#AF87FF")).Bold(true),
		running: lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7")),
		done:    lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787")).Bold(true),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")),
		fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF005F")).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(muted).Italic(true),
		border:  lipgloss.NewStyle().Foreground(muted),
	}
}

var style = newStyles()

// pollMsg asks the view to re-read the run state.
type pollMsg time.Time

func poll() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return pollMsg(t) })
}

// runView renders a run's stages while the pipeline executes in another
// goroutine. It only reads the run.
type runView struct {
	run    *service.Run
	state  service.RunState
	cancel context.CancelFunc
	bar    progress.Model
	since  time.Time

	finished  bool
	cancelled bool
	failure   error
}

func newRunView(run *service.Run, cancel context.CancelFunc) runView {
	return runView{
		run:    run,
		state:  run.Snapshot(),
		cancel: cancel,
		bar:    progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
		since:  time.Now(),
	}
}

func (v runView) Init() tea.Cmd {
	return tea.Batch(poll(), v.bar.Init())
}

func (v runView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		if k := msg.String(); k == "ctrl+c" || k == "q" {
			v.cancelled = true
			v.cancel()
			return v, tea.Quit
		}
		return v, nil

	case pollMsg:
		v.state = v.run.Snapshot()
		if v.state.Status == service.RunStatusFailed {
			v.failure = errors.New(v.state.Error)
		}
		if v.run.Done() {
			v.finished = true
			return v, tea.Quit
		}
		return v, poll()

	case progress.FrameMsg:
		var cmd tea.Cmd
		v.bar, cmd = v.bar.Update(msg)
		return v, cmd
	}
	return v, nil
}

func (v runView) View() tea.View {
	switch {
	case v.cancelled:
		return tea.NewView(style.muted.Render(fmt.Sprintf("\nRun %s cancelled.\n", v.state.ID)))
	case v.failure != nil:
		return tea.NewView(style.fail.Render(fmt.Sprintf("\n✗ Run %s failed: %s\n", v.state.ID, v.failure)))
	case v.finished:
		return tea.NewView(style.done.Render(fmt.Sprintf("✓ Run %s completed\n", v.state.ID)))
	}
	return tea.NewView(v.body())
}

func (v runView) body() string {
	total := len(v.state.Stages)
	var frac float64
	if total > 0 {
		frac = float64(v.state.Completed) / float64(total)
	}

	current := v.state.Stage
	if current == "" {
		current = string(v.state.Status)
	}

	marks := make([]string, 0, total)
	for i, name := range v.state.Stages {
		switch {
		case i < v.state.Completed:
			marks = append(marks, style.done.Render("✓ "+name))
		case name == v.state.Stage:
			marks = append(marks, style.running.Render("… "+name))
		default:
			marks = append(marks, style.muted.Render("· "+name))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %d/%d stages %s\n",
		style.running.Render("["+current+"]"),
		v.bar.ViewAs(frac),
		v.state.Completed, total,
		time.Since(v.since).Round(100*time.Millisecond))
	b.WriteString(strings.Join(marks, "  "))
	b.WriteString("\n")
	b.WriteString(style.muted.Render("Press Ctrl+C to cancel"))
	b.WriteString("\n")
	return b.String()
}

// RunProgress shows the progress view until run finishes. Ctrl+C or q
// cancels the run through cancel.
func RunProgress(run *service.Run, cancel context.CancelFunc) error {
	final, err := tea.NewProgram(newRunView(run, cancel)).Run()
	if err != nil {
		return fmt.Errorf("progress view: %w", err)
	}
	v, ok := final.(runView)
	switch {
	case !ok:
		return nil
	case v.cancelled:
		return context.Canceled
	default:
		return v.failure
	}
}
