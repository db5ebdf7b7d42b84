package dashboard

import (
	"fmt"
	"os"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/makerbot/gomaker/internal/domain"
	"github.com/makerbot/gomaker/internal/events"
	"github.com/makerbot/gomaker/internal/maker"
)

type tickMsg time.Time

type eventMsg events.Event

const maxRecentEvents = 12

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	quotingOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	pausedWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	stoppedBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type model struct {
	stateFn func() maker.StateSnapshot
	eventCh <-chan events.Event

	snapshot maker.StateSnapshot
	recent   []string
	width    int
}

func newModel(stateFn func() maker.StateSnapshot, eventCh <-chan events.Event) model {
	return model{
		stateFn: stateFn,
		eventCh: eventCh,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.waitForEvent())
}

func (m model) tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) waitForEvent() tea.Cmd {
	if m.eventCh == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.eventCh
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Bubble Tea 会拦截 Ctrl+C，主动补发 SIGINT 让主程序走统一退出链路
			_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		m.snapshot = m.stateFn()
		return m, m.tick()
	case eventMsg:
		line := fmt.Sprintf("%s  %s", msg.Timestamp.Format("15:04:05"), msg.Type)
		if msg.Reason != "" {
			line += "  " + msg.Reason
		}
		m.recent = append(m.recent, line)
		if len(m.recent) > maxRecentEvents {
			m.recent = m.recent[len(m.recent)-maxRecentEvents:]
		}
		return m, m.waitForEvent()
	}
	return m, nil
}

func (m model) View() string {
	s := m.snapshot

	header := titleStyle.Render(fmt.Sprintf("Maker Control Loop | %s | %s",
		m.phaseText(s.Phase), time.Now().Format("15:04:05")))

	rows := []string{
		m.row("Mark Price", s.MarkPrice.String()),
		m.row("Position", s.Position.String()),
		m.row("Buy Order", m.orderText(s.BuyOrder)),
		m.row("Sell Order", m.orderText(s.SellOrder)),
		m.row("Placed / Canceled / Filled", fmt.Sprintf("%d / %d / %d",
			s.Counters.Placed, s.Counters.Canceled, s.Counters.Filled)),
	}
	state := borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	eventLines := "(no events yet)"
	if len(m.recent) > 0 {
		eventLines = lipgloss.JoinVertical(lipgloss.Left, m.recent...)
	}
	eventsBox := borderStyle.Render(eventLines)

	help := labelStyle.Render("q: quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, state, eventsBox, help)
}

func (m model) phaseText(p maker.Phase) string {
	switch p {
	case maker.PhaseQuoting:
		return quotingOK.Render(string(p))
	case maker.PhasePausedVolatility:
		return pausedWarn.Render(string(p))
	case maker.PhaseStopped:
		return stoppedBad.Render(string(p))
	default:
		return valueStyle.Render(string(p))
	}
}

func (m model) row(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-28s", label)) + valueStyle.Render(value)
}

func (m model) orderText(o *domain.Order) string {
	if o == nil {
		return "-"
	}
	return fmt.Sprintf("%s %s @ %s (%s)", o.Side, o.Quantity, o.Price, o.Status)
}
