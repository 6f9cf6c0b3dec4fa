package realtime

import "github.com/koscakluka/ema-realtime/core/endpoints"

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFallback
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// settled reports whether a state is the outcome of a connection cycle, as
// opposed to one that is still working towards an outcome.
func (s ConnectionState) settled() bool {
	return s == StateDisconnected || s == StateConnected || s == StateFallback
}

// StateChange describes one transition of the connection state machine.
// Retrying the next endpoint or another reconnection try is reported as a
// transition into the same state.
type StateChange struct {
	From     ConnectionState
	To       ConnectionState
	Endpoint endpoints.Endpoint
	// Attempt is the reconnection try number, zero outside reconnection.
	Attempt uint
}

// SessionStats is a snapshot of the counters of the current session.
type SessionStats struct {
	SessionID            string
	ReconnectAttempts    uint
	CurrentEndpointIndex int
	LastError            *ErrorInfo
}

type ConnectResult struct {
	State     ConnectionState
	Endpoint  endpoints.Endpoint
	SessionID string
}

type DisconnectEvent struct {
	Code   int
	Reason string
	// Reconnecting is set when the connection was lost and the manager is
	// about to try to restore it.
	Reconnecting bool
	Err          error
}

type FallbackEvent struct {
	Reason error
}
