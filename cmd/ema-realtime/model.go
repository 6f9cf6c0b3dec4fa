package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	realtime "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/endpoints"
	"github.com/koscakluka/ema-realtime/core/messages"
	"github.com/muesli/reflow/wordwrap"
)

const (
	maxTranscripts = 50
	maxNotices     = 5
	defaultWidth   = 80
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	badgeStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("0"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))

	stateColors = map[realtime.ConnectionState]lipgloss.Color{
		realtime.StateDisconnected: lipgloss.Color("245"),
		realtime.StateConnecting:   lipgloss.Color("220"),
		realtime.StateConnected:    lipgloss.Color("42"),
		realtime.StateReconnecting: lipgloss.Color("214"),
		realtime.StateFallback:     lipgloss.Color("203"),
	}
)

type model struct {
	manager *realtime.Manager
	prefs   messages.Preferences

	spinner spinner.Model
	input   textinput.Model
	editing bool
	width   int

	state      realtime.ConnectionState
	endpoint   endpoints.Endpoint
	attempt    uint
	confidence *float64

	transcripts []string
	notices     []string
	lastErr     string
}

func newModel(manager *realtime.Manager, prefs messages.Preferences) model {
	input := textinput.New()
	input.Placeholder = "corrected transcript"
	input.CharLimit = 500

	return model{
		manager: manager,
		prefs:   prefs,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		input:   input,
		width:   defaultWidth,
		state:   manager.ConnectionState(),
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.state = msg.To
		if msg.To == realtime.StateReconnecting {
			m.attempt = msg.Attempt
		}
		if msg.Endpoint.Address != "" {
			m.endpoint = msg.Endpoint
		}
		return m, nil

	case connectedMsg:
		m.endpoint = endpoints.Endpoint(msg)
		m.lastErr = ""
		return m, nil

	case transcriptMsg:
		m.transcripts = appendCapped(m.transcripts, msg.Text, maxTranscripts)
		if msg.Confidence > 0 {
			confidence := msg.Confidence
			m.confidence = &confidence
		}
		return m, nil

	case confidenceMsg:
		value := msg.Value
		m.confidence = &value
		return m, nil

	case inboundMsg:
		m.notices = appendCapped(m.notices, describe(msg.msg), maxNotices)
		return m, nil

	case errorMsg:
		m.lastErr = msg.err.Error()
		return m, nil

	case disconnectMsg:
		m.notices = appendCapped(m.notices, describeDisconnect(realtime.DisconnectEvent(msg)), maxNotices)
		return m, nil

	case fallbackMsg:
		m.notices = appendCapped(m.notices, fmt.Sprintf("fallback mode: %v", msg.Reason), maxNotices)
		return m, nil

	case sendResultMsg:
		if !msg.ok {
			m.notices = appendCapped(m.notices, fmt.Sprintf("%s was not delivered", msg.action), maxNotices)
		}
		return m, nil

	case connectResultMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
		return m, nil
	}

	return m, nil
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "c":
		return m, connect(m.manager)
	case "d":
		return m, disconnect(m.manager)
	case "s":
		return m, sendCommand(m.manager, messages.NewStart(m.prefs))
	case "x":
		return m, sendCommand(m.manager, messages.Stop{})
	case "p":
		return m, sendCommand(m.manager, messages.Pause{})
	case "r":
		return m, sendCommand(m.manager, messages.Resume{})
	case "u":
		m.editing = true
		if n := len(m.transcripts); n > 0 {
			m.input.SetValue(m.transcripts[n-1])
		}
		return m, m.input.Focus()
	}
	return m, nil
}

func (m model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		m.input.Reset()
		return m, nil
	case tea.KeyEnter:
		text := m.input.Value()
		m.editing = false
		m.input.Blur()
		m.input.Reset()
		return m, sendCommand(m.manager, messages.UpdateTranscript{Text: text})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ema realtime"))
	b.WriteString("  ")
	b.WriteString(m.stateBadge())
	b.WriteString("\n")

	if m.endpoint.Address != "" {
		b.WriteString(mutedStyle.Render("endpoint: " + m.endpoint.String()))
		b.WriteString("\n")
	}
	stats := m.manager.Stats()
	if stats.SessionID != "" {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("session: %s  reconnects: %d", stats.SessionID, stats.ReconnectAttempts)))
		b.WriteString("\n")
	}
	if m.confidence != nil {
		b.WriteString(fmt.Sprintf("confidence: %.2f\n", *m.confidence))
	}
	b.WriteString("\n")

	wrap := max(m.width-2, 10)
	for _, transcript := range m.transcripts {
		b.WriteString(wordwrap.String(transcript, wrap))
		b.WriteString("\n")
	}

	if len(m.notices) > 0 {
		b.WriteString("\n")
		for _, notice := range m.notices {
			b.WriteString(noticeStyle.Render(notice))
			b.WriteString("\n")
		}
	}
	if m.lastErr != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(wordwrap.String("error: "+m.lastErr, wrap)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.editing {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("enter send • esc cancel"))
	} else {
		b.WriteString(mutedStyle.Render("s start • x stop • p pause • r resume • u update • c connect • d disconnect • q quit"))
	}
	b.WriteString("\n")

	return b.String()
}

func (m model) stateBadge() string {
	label := m.state.String()
	if m.state == realtime.StateReconnecting && m.attempt > 0 {
		label = fmt.Sprintf("%s #%d", label, m.attempt)
	}
	if m.state == realtime.StateConnecting || m.state == realtime.StateReconnecting {
		label = m.spinner.View() + " " + label
	}
	return badgeStyle.Background(stateColors[m.state]).Render(label)
}

func describe(msg messages.Inbound) string {
	switch msg := msg.(type) {
	case messages.Status:
		if msg.IsFallback() {
			return "status (fallback): " + msg.Text
		}
		return "status: " + msg.Text
	case messages.Unknown:
		return "unhandled message: " + msg.Type
	default:
		return "message: " + string(msg.Kind())
	}
}

func describeDisconnect(event realtime.DisconnectEvent) string {
	text := fmt.Sprintf("disconnected (code %d)", event.Code)
	if event.Reason != "" {
		text += ": " + event.Reason
	}
	if event.Reconnecting {
		text += ", reconnecting"
	}
	return text
}

func appendCapped(list []string, item string, limit int) []string {
	list = append(list, item)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}
