package realtime

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-realtime/core/messages"
)

// Send delivers a command to the backend. When no session is running it
// connects first. In fallback mode start and stop are answered locally
// with a simulated status message. It reports whether the command was
// handled; failures are logged and never change the connection state.
func (m *Manager) Send(ctx context.Context, cmd messages.Command) bool {
	if cmd == nil {
		logger.Warn("refusing to send nil command")
		return false
	}

	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	if state != StateConnected && state != StateFallback {
		if _, err := m.Connect(ctx); err != nil {
			logger.Warn("failed to connect before sending", "action", string(cmd.Action()), "error", err)
			return false
		}
	}

	m.mu.Lock()
	state, handle, gen := m.state, m.handle, m.generation
	m.mu.Unlock()

	switch state {
	case StateConnected:
		data, err := messages.Encode(cmd)
		if err != nil {
			logger.Warn("failed to encode command", "action", string(cmd.Action()), "error", err)
			return false
		}
		if err := handle.Send(data); err != nil {
			logger.Warn("failed to transmit command",
				"action", string(cmd.Action()),
				"error", fmt.Errorf("%w: %w", ErrSendFailure, err))
			return false
		}
		return true
	case StateFallback:
		m.fallback.simulate(gen, cmd)
		return true
	default:
		logger.Warn("dropping command, no connection", "action", string(cmd.Action()), "state", state.String())
		return false
	}
}
