// Package realtime keeps a speech session connected to the backend. It
// cascades through the configured endpoints, restores dropped connections
// with exponential backoff and degrades to a local fallback mode when the
// backend cannot be reached.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-realtime/core/backoff"
	"github.com/koscakluka/ema-realtime/core/endpoints"
	"github.com/koscakluka/ema-realtime/core/transport"
	"github.com/koscakluka/ema-realtime/core/transport/websocket"
)

type Manager struct {
	catalog   *endpoints.Catalog
	transport transport.Transport
	backoff   backoff.Controller
	config    managerConfig

	callbacks callbacks
	fallback  *fallbackEngine

	mu         sync.Mutex
	state      ConnectionState
	stats      SessionStats
	generation uint64
	session    *session
	handle     transport.Handle
	endpoint   endpoints.Endpoint
	closed     bool
	// settled is closed and replaced every time the state machine lands in
	// a settled state, waking up Connect callers.
	settled chan struct{}
	// inflight holds the handlers currently running. idle is signalled on
	// m.mu whenever one returns.
	inflight map[*dispatch]struct{}
	idle     *sync.Cond
}

// session is one connection cycle, from Connect until Disconnect or a
// normal closure.
type session struct {
	id     string
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		backoff:  backoff.New(backoff.DefaultBase),
		config:   defaultManagerConfig(),
		state:    StateDisconnected,
		stats:    SessionStats{CurrentEndpointIndex: -1},
		settled:  make(chan struct{}),
		inflight: make(map[*dispatch]struct{}),
	}
	m.idle = sync.NewCond(&m.mu)

	for _, opt := range opts {
		opt(m)
	}

	if m.catalog == nil {
		m.catalog = endpoints.FromEnvironment()
	}
	if m.transport == nil {
		m.transport = websocket.NewDialer()
	}
	m.fallback = newFallbackEngine(m.config.fallbackDelay, m.emitMessage)

	return m
}

// Connect starts a session if none is running and blocks until it is
// either connected or in fallback mode. Concurrent callers join the
// attempt already in flight. ctx only bounds the wait, the session keeps
// running when it is done.
//
// In fallback mode Connect reports the fallback state, Disconnect has to
// be called before the backend is tried again.
func (m *Manager) Connect(ctx context.Context) (ConnectResult, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ConnectResult{State: StateDisconnected}, ErrClosed
	}
	if m.state == StateDisconnected {
		m.startSessionLocked()
	}
	sess := m.session

	for {
		if m.state == StateConnected || m.state == StateFallback {
			result := ConnectResult{State: m.state, Endpoint: m.endpoint, SessionID: m.stats.SessionID}
			if m.state == StateFallback {
				result.Endpoint = endpoints.Endpoint{}
			}
			m.mu.Unlock()
			return result, nil
		}
		if m.session != sess || m.state == StateDisconnected {
			m.mu.Unlock()
			return ConnectResult{State: StateDisconnected}, ErrDisconnected
		}

		settled := m.settled
		m.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return ConnectResult{State: m.ConnectionState()}, fmt.Errorf("failed to wait for connection: %w", ctx.Err())
		}

		m.mu.Lock()
	}
}

func (m *Manager) startSessionLocked() {
	m.generation++
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:     uuid.NewString(),
		gen:    m.generation,
		ctx:    ctx,
		cancel: cancel,
	}
	m.session = sess
	m.endpoint = endpoints.Endpoint{}
	m.stats = SessionStats{SessionID: sess.id, CurrentEndpointIndex: -1}
	change := m.setStateLocked(StateConnecting)
	change.Endpoint, _ = m.catalog.At(0)

	logger.Info("starting realtime session", "session_id", sess.id, "endpoints", m.catalog.Len())
	go m.run(sess, change)
}

// Disconnect ends the session from any state. It closes the connection
// with a normal closure, abandons attempts and backoff waits in progress
// and cancels pending fallback messages. Handlers of the ended session that
// are still running are waited for, so none of them runs after Disconnect
// returns. A handler calling Disconnect is not waited for itself. Calling
// it while disconnected does nothing.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}

	sess, handle := m.session, m.handle
	m.session, m.handle = nil, nil
	m.generation++
	gen := m.generation
	if sess != nil {
		sess.cancel()
	}
	change := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.fallback.cancelAll()
	if handle != nil {
		if err := handle.Close(transport.CloseNormal, "client disconnect"); err != nil {
			logger.Debug("failed to close connection", "error", err)
		}
	}

	m.mu.Lock()
	m.awaitHandlersLocked(gen)
	m.mu.Unlock()
	logger.Info("realtime session disconnected", "from", change.From.String())

	m.emitStateChange(gen, change)
	m.emitDisconnect(gen, DisconnectEvent{Code: transport.CloseNormal, Reason: "client disconnect"})
}

// Close disconnects and makes the manager unusable. Registered handlers are
// dropped.
func (m *Manager) Close() {
	m.Disconnect()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.callbacks.clear()
}

// IsReady reports whether commands are currently handled, either by the
// backend or by the fallback mode.
func (m *Manager) IsReady() bool {
	state := m.ConnectionState()
	return state == StateConnected || state == StateFallback
}

func (m *Manager) ConnectionState() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Stats() SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	if stats.LastError != nil {
		info := *stats.LastError
		stats.LastError = &info
	}
	return stats
}

// setStateLocked moves the state machine and wakes up Connect callers when
// the new state is settled. The returned change is meant to be emitted
// once the lock is released.
func (m *Manager) setStateLocked(to ConnectionState) StateChange {
	change := StateChange{From: m.state, To: to, Endpoint: m.endpoint}
	if to == StateReconnecting {
		change.Attempt = m.stats.ReconnectAttempts + 1
	}
	m.state = to

	if to.settled() {
		close(m.settled)
		m.settled = make(chan struct{})
	}
	return change
}

func (m *Manager) isCurrent(sess *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sess.gen == m.generation
}
