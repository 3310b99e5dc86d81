// Package tui renders a live view of the sampler: one row per chain with
// progress, step size, acceptance rate, divergences, and a trace sparkline of
// the politeness coefficient.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/prosodylab/politef0/internal/mcmc"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type ProgressMsg mcmc.Progress

type DoneMsg struct{ Err error }

type chainState struct {
	iter        int
	total       int
	warmup      bool
	stepSize    float64
	accept      float64
	divergences int
	trace       []float64
}

type monitor struct {
	chains []chainState
	done   bool
	err    error
}

func newMonitor(chains int) monitor {
	return monitor{chains: make([]chainState, chains)}
}

func (m monitor) Init() tea.Cmd { return nil }

func (m monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case ProgressMsg:
		if msg.Chain < 0 || msg.Chain >= len(m.chains) {
			return m, nil
		}
		c := &m.chains[msg.Chain]
		c.iter = msg.Iter
		c.total = msg.Total
		c.warmup = msg.Warmup
		c.stepSize = msg.StepSize
		c.accept = msg.AcceptRate
		c.divergences = msg.Divergences
		c.trace = append(c.trace, msg.Value)
		if len(c.trace) > 120 {
			c.trace = c.trace[1:]
		}
		return m, nil
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m monitor) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(dimmer.Render("   ╺━━━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("        " + cyan.Render("p o l i t e f 0") + "  " + dim.Render("sampling") + "\n")
	b.WriteString(dimmer.Render("   ╺━━━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n\n")

	for i, c := range m.chains {
		progress := 0.0
		if c.total > 0 {
			progress = float64(c.iter) / float64(c.total)
		}
		barWidth := 28
		filled := int(progress * float64(barWidth))
		if filled > barWidth {
			filled = barWidth
		}
		bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))

		phase := green.Render("sampling")
		if c.warmup {
			phase = yellow.Render("warmup  ")
		}

		div := dim.Render("div 0")
		if c.divergences > 0 {
			div = red.Render(fmt.Sprintf("div %d", c.divergences))
		}

		b.WriteString(fmt.Sprintf("   %s %s %s %s %s %s\n",
			white.Render(fmt.Sprintf("chain %d", i)),
			bar,
			phase,
			dim.Render(fmt.Sprintf("ε=%.4f", c.stepSize)),
			dim.Render(fmt.Sprintf("acc=%.2f", c.accept)),
			div))

		if len(c.trace) > 1 {
			b.WriteString("           " + dim.Render("β ") + cyan.Render(sparkline(c.trace, 40)) + "\n")
		}
	}

	b.WriteString("\n" + dim.Render("   q abort") + "\n")
	return b.String()
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	step := len(data) / width
	if step < 1 {
		step = 1
	}
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		v := data[i*step]
		idx := int((v - minVal) / rang * 7)
		if idx > 7 {
			idx = 7
		}
		if idx < 0 {
			idx = 0
		}
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}

// RunLive runs sample while rendering the monitor. The callback passed to
// sample is safe to call from the chain goroutines. When the monitor exits
// before sampling completes (q or ctrl+c), the context handed to sample is
// canceled and the sampling error is returned; the chains never outlive the
// monitor.
func RunLive(chains int, sample func(ctx context.Context, onProgress func(mcmc.Progress)) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(newMonitor(chains))

	done := make(chan error, 1)
	go func() {
		err := sample(ctx, func(pr mcmc.Progress) { p.Send(ProgressMsg(pr)) })
		done <- err
		p.Send(DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return err
	}
	cancel()
	return <-done
}
