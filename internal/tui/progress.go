package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const (
	barWidth   = 40
	recentRuns = 6
)

// CellMsg reports one finished run of a sweep.
type CellMsg struct {
	Done, Total int
	Condition   string
	Label       string
	RMSE        float64
	Err         string
}

// DoneMsg ends the progress view.
type DoneMsg struct{ Err error }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Progress is the bubbletea model of a running sweep.
type Progress struct {
	total   int
	done    int
	failed  int
	recent  []CellMsg
	start   time.Time
	elapsed time.Duration

	finished bool
	aborted  bool
	err      error
}

func NewProgress(total int) Progress {
	return Progress{total: total, start: time.Now()}
}

// Aborted reports whether the user quit before the sweep finished.
func (m Progress) Aborted() bool { return m.aborted }

func (m Progress) Init() tea.Cmd { return tick() }

func (m Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.aborted = !m.finished
			return m, tea.Quit
		}
	case CellMsg:
		m.done = msg.Done
		if msg.Total > 0 {
			m.total = msg.Total
		}
		if msg.Err != "" {
			m.failed++
		}
		m.recent = append(m.recent, msg)
		if len(m.recent) > recentRuns {
			m.recent = m.recent[1:]
		}
	case DoneMsg:
		m.finished = true
		m.err = msg.Err
		m.elapsed = time.Since(m.start)
		return m, tea.Quit
	case tickMsg:
		if m.finished {
			return m, nil
		}
		m.elapsed = time.Since(m.start)
		return m, tick()
	}
	return m, nil
}

func (m Progress) View() string {
	var sb strings.Builder

	frac := 0.0
	if m.total > 0 {
		frac = float64(m.done) / float64(m.total)
	}
	filled := int(math.Round(frac * barWidth))
	sb.WriteString(cyan.Render("sweep "))
	sb.WriteString(green.Render(strings.Repeat("█", filled)))
	sb.WriteString(dim.Render(strings.Repeat("░", barWidth-filled)))
	sb.WriteString(white.Render(fmt.Sprintf(" %d/%d", m.done, m.total)))
	sb.WriteString(dim.Render(fmt.Sprintf("  %s", m.elapsed.Round(time.Second))))
	if m.failed > 0 {
		sb.WriteString(red.Render(fmt.Sprintf("  %d failed", m.failed)))
	}
	sb.WriteString("\n\n")

	for _, c := range m.recent {
		line := fmt.Sprintf("  %-8s %-36s ", c.Condition, c.Label)
		if c.Err != "" {
			sb.WriteString(dim.Render(line) + red.Render("failed") + "\n")
			continue
		}
		sb.WriteString(dim.Render(line) + yellow.Render(fmt.Sprintf("rmse_a %.4f", c.RMSE)) + "\n")
	}

	if !m.finished {
		sb.WriteString(dim.Render("\n  q to abort\n"))
	}
	return sb.String()
}

// RunProgress shows the progress view while work runs. work reports each
// finished run through report; quitting the view calls cancel and waits for
// work to return.
func RunProgress(total int, cancel context.CancelFunc, work func(report func(CellMsg)) error) error {
	p := tea.NewProgram(NewProgress(total))
	errc := make(chan error, 1)
	go func() {
		err := work(func(c CellMsg) { p.Send(c) })
		errc <- err
		p.Send(DoneMsg{Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		<-errc
		return err
	}
	if m, ok := final.(Progress); ok && m.Aborted() {
		cancel()
	}
	return <-errc
}
