package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	realtime "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/endpoints"
	"github.com/koscakluka/ema-realtime/core/messages"
)

type (
	stateMsg      realtime.StateChange
	connectedMsg  endpoints.Endpoint
	disconnectMsg realtime.DisconnectEvent
	transcriptMsg messages.Transcript
	confidenceMsg messages.Confidence
	inboundMsg    struct{ msg messages.Inbound }
	errorMsg      struct{ err error }
	fallbackMsg   realtime.FallbackEvent
	sendResultMsg struct {
		action messages.Action
		ok     bool
	}
	connectResultMsg struct {
		result realtime.ConnectResult
		err    error
	}
)

// bridge forwards manager callbacks into the program's update loop.
func bridge(m *realtime.Manager, send func(tea.Msg)) {
	m.OnStateChange(func(change realtime.StateChange) { send(stateMsg(change)) })
	m.OnConnect(func(endpoint endpoints.Endpoint) { send(connectedMsg(endpoint)) })
	m.OnDisconnect(func(event realtime.DisconnectEvent) { send(disconnectMsg(event)) })
	m.OnTranscript(func(transcript messages.Transcript) { send(transcriptMsg(transcript)) })
	m.OnConfidence(func(confidence messages.Confidence) { send(confidenceMsg(confidence)) })
	m.OnMessage(func(msg messages.Inbound) { send(inboundMsg{msg: msg}) })
	m.OnError(func(err error) { send(errorMsg{err: err}) })
	m.OnFallback(func(event realtime.FallbackEvent) { send(fallbackMsg(event)) })
}

func sendCommand(m *realtime.Manager, cmd messages.Command) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{action: cmd.Action(), ok: m.Send(context.Background(), cmd)}
	}
}

func connect(m *realtime.Manager) tea.Cmd {
	return func() tea.Msg {
		result, err := m.Connect(context.Background())
		return connectResultMsg{result: result, err: err}
	}
}

func disconnect(m *realtime.Manager) tea.Cmd {
	return func() tea.Msg {
		m.Disconnect()
		return nil
	}
}
