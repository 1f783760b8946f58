package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tturner/echoclient/internal/metrics"
)

const historyLen = 240

// Model is the live echo session dashboard.
type Model struct {
	styles Styles
	sink   *Sink
	stop   func()

	target string
	count  int
	start  time.Time
	now    func() time.Time
	width  int

	history  []float64
	received int
	lastSeq  int
	lastRTT  float64
	minRTT   float64
	maxRTT   float64
	sumRTT   float64

	summary  *metrics.SessionSummary
	stopping bool
}

// NewModel creates a dashboard for target. stop is called when the user
// asks to quit; the model exits once the session has finalized.
func NewModel(target string, count int, sink *Sink, stop func()) *Model {
	return &Model{
		styles: DefaultStyles,
		sink:   sink,
		stop:   stop,
		target: target,
		count:  count,
		start:  time.Now(),
		now:    time.Now,
		width:  80,
	}
}

// Summary returns the final summary once the session has ended.
func (m *Model) Summary() *metrics.SessionSummary {
	return m.summary
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tickCmd()
}

// tickMsg is sent periodically.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m.handleTick()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !m.stopping {
				m.stopping = true
				if m.stop != nil {
					m.stop()
				}
			}
			if m.summary != nil {
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m *Model) handleTick() (tea.Model, tea.Cmd) {
	m.drain()

	select {
	case summary := <-m.sink.done:
		// Pick up anything recorded just before finalize.
		m.drain()
		m.summary = &summary
		return m, tea.Quit
	default:
	}
	return m, tickCmd()
}

func (m *Model) drain() {
	for {
		select {
		case rec := <-m.sink.records:
			m.observe(rec)
		default:
			return
		}
	}
}

func (m *Model) observe(rec metrics.PacketRecord) {
	if m.received == 0 || rec.RTTUs < m.minRTT {
		m.minRTT = rec.RTTUs
	}
	if rec.RTTUs > m.maxRTT {
		m.maxRTT = rec.RTTUs
	}
	m.received++
	m.sumRTT += rec.RTTUs
	m.lastSeq = rec.Seq
	m.lastRTT = rec.RTTUs

	m.history = append(m.history, rec.RTTUs)
	if len(m.history) > historyLen {
		m.history = m.history[len(m.history)-historyLen:]
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	s := m.styles
	width := m.width
	if width < 40 {
		width = 40
	}
	inner := width - 4

	reason := ""
	if m.summary != nil {
		reason = m.summary.Reason
	}
	title := fmt.Sprintf("%s %s %s", StatusIcon(reason, s), s.Title.Render("echoclient"), s.Dim.Render(m.target))

	progress := fmt.Sprintf("%d", m.lastSeq)
	if m.count > 0 {
		progress = fmt.Sprintf("%d/%d", m.lastSeq, m.count)
	}

	var lines []string
	lines = append(lines, title, "")
	lines = append(lines, m.row("Packet", progress))
	lines = append(lines, m.row("Elapsed", m.now().Sub(m.start).Truncate(time.Second).String()))
	if m.received > 0 {
		lines = append(lines, m.row("Last", formatMicros(m.lastRTT)))
		lines = append(lines, m.row("Min/Avg", fmt.Sprintf("%s / %s", formatMicros(m.minRTT), formatMicros(m.sumRTT/float64(m.received)))))
		lines = append(lines, m.row("Max", formatMicros(m.maxRTT)))
		lines = append(lines, "", Sparkline(m.history, inner, s))
	} else {
		lines = append(lines, m.row("RTT", s.Dim.Render("waiting for first echo")))
	}

	if m.summary != nil {
		lines = append(lines, "", s.Header.Render("Summary"))
		lines = append(lines, m.row("Loss", LossGauge(m.summary.LossPercent, inner-12, s)))
		for _, line := range metrics.SummaryLines(*m.summary)[1:] {
			lines = append(lines, s.Base.Render(line))
		}
		lines = append(lines, m.row("Stopped", m.summary.Reason))
	} else if m.stopping {
		lines = append(lines, "", s.Warning.Render("stopping..."))
	}

	if skipped := m.sink.Skipped(); skipped > 0 {
		lines = append(lines, s.Muted.Render(fmt.Sprintf("%d records not shown", skipped)))
	}

	box := s.Box.Width(width - 2).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, box, s.KeyHint.Render(" q: stop"))
}

func (m *Model) row(label, value string) string {
	return m.styles.Label.Render(label) + " " + m.styles.Base.Render(value)
}
