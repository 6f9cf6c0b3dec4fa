package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-realtime/core/endpoints"
	"github.com/koscakluka/ema-realtime/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// run drives one session: the initial cascade, reading frames and
// restoring the connection until the session settles for good.
func (m *Manager) run(sess *session, start StateChange) {
	m.emitStateChange(sess.gen, start)

	handle, ok := m.cascade(sess)
	if !ok {
		return
	}

	for {
		closeErr := m.serve(sess, handle)
		if closeErr == nil {
			return
		}
		if closeErr.IsNormal() {
			m.closedNormally(sess, handle, closeErr)
			return
		}

		if handle, ok = m.reconnect(sess, handle, closeErr); !ok {
			return
		}
	}
}

// cascade tries every endpoint of the catalog once, in order, and stops at
// the first one that accepts the connection. When none does the session
// enters fallback mode.
func (m *Manager) cascade(sess *session) (transport.Handle, bool) {
	if m.catalog.Len() == 0 {
		m.enterFallback(sess, ErrNoEndpoints)
		return nil, false
	}

	var lastErr error
	for index := 0; ; index++ {
		endpoint, ok := m.catalog.At(index)
		if !ok {
			break
		}

		handle, err := m.attempt(sess, endpoint, index, 0)
		if err == nil {
			return handle, m.connected(sess, handle, endpoint, index)
		}
		if sess.ctx.Err() != nil {
			return nil, false
		}

		lastErr = err
		logger.Warn("connection attempt failed", "endpoint", endpoint.String(), "index", index, "error", err)

		next, more := m.catalog.At(index + 1)
		m.mu.Lock()
		if sess.gen != m.generation {
			m.mu.Unlock()
			return nil, false
		}
		m.stats.LastError = newErrorInfo(err, endpoint)
		var change StateChange
		if more {
			change = m.setStateLocked(StateConnecting)
			change.Endpoint = next
		}
		m.mu.Unlock()

		m.emitError(sess.gen, err)
		if more {
			m.emitStateChange(sess.gen, change)
		}
	}

	m.enterFallback(sess, fmt.Errorf("%w: %w", ErrEndpointsExhausted, lastErr))
	return nil, false
}

type openResult struct {
	handle transport.Handle
	err    error
}

// attempt opens a single connection, bounded by the attempt timeout even
// when the transport ignores its context. reconnectAttempt is zero for the
// initial cascade.
func (m *Manager) attempt(sess *session, endpoint endpoints.Endpoint, index int, reconnectAttempt uint) (transport.Handle, error) {
	ctx, span := tracer.Start(sess.ctx, "connect endpoint", trace.WithAttributes(
		attribute.String("session.id", sess.id),
		attribute.String("endpoint.address", endpoint.Address),
		attribute.String("endpoint.origin", string(endpoint.Origin)),
		attribute.Int("endpoint.index", index),
		attribute.Int("reconnect.attempt", int(reconnectAttempt)),
	))
	defer span.End()

	connectAttemptCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint.origin", string(endpoint.Origin)),
		attribute.Bool("reconnect", reconnectAttempt > 0),
	))

	attemptCtx, cancel := context.WithTimeout(ctx, m.config.attemptTimeout)
	defer cancel()

	results := make(chan openResult, 1)
	go func() {
		handle, err := m.transport.Open(attemptCtx, endpoint.Address)
		results <- openResult{handle: handle, err: err}
	}()

	var err error
	select {
	case res := <-results:
		if res.err == nil {
			if res.handle == nil {
				err = fmt.Errorf("%w: transport returned no connection", ErrConnectionRefused)
				break
			}
			span.SetAttributes(attribute.Bool("connected", true))
			return res.handle, nil
		}
		err = m.classifyOpenError(sess, attemptCtx, endpoint, res.err)
	case <-attemptCtx.Done():
		go abandon(results)
		err = m.classifyOpenError(sess, attemptCtx, endpoint, attemptCtx.Err())
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

func (m *Manager) classifyOpenError(sess *session, attemptCtx context.Context, endpoint endpoints.Endpoint, err error) error {
	switch {
	case sess.ctx.Err() != nil:
		return fmt.Errorf("connection attempt to %s abandoned: %w", endpoint.Address, sess.ctx.Err())
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s did not answer within %s", ErrConnectionTimeout, endpoint.Address, m.config.attemptTimeout)
	default:
		return fmt.Errorf("%w: %s: %w", ErrConnectionRefused, endpoint.Address, err)
	}
}

// abandon closes a connection that arrives after its attempt timed out.
func abandon(results <-chan openResult) {
	res := <-results
	if res.handle != nil {
		if err := res.handle.Close(transport.CloseNormal, "connection attempt abandoned"); err != nil {
			logger.Debug("failed to close abandoned connection", "error", err)
		}
	}
}

// release closes a connection the backend already ended, so its socket and
// keep-alive are let go. Closing twice is harmless.
func release(handle transport.Handle, closeErr *transport.CloseError) {
	if err := handle.Close(closeErr.Code, closeErr.Reason); err != nil {
		logger.Debug("failed to release closed connection", "error", err)
	}
}

// connected records a freshly opened connection. It reports false, after
// closing the connection, when the session ended while it was being opened.
func (m *Manager) connected(sess *session, handle transport.Handle, endpoint endpoints.Endpoint, index int) bool {
	m.mu.Lock()
	if sess.gen != m.generation {
		m.mu.Unlock()
		_ = handle.Close(transport.CloseNormal, "session ended")
		return false
	}
	m.handle = handle
	m.endpoint = endpoint
	m.stats.CurrentEndpointIndex = index
	change := m.setStateLocked(StateConnected)
	m.mu.Unlock()

	logger.Info("connected to backend", "endpoint", endpoint.String(), "index", index, "session_id", sess.id)
	m.emitStateChange(sess.gen, change)
	m.emitConnect(sess.gen, endpoint)
	return true
}

// serve reads frames until the connection ends. It returns nil when the
// session was ended locally.
func (m *Manager) serve(sess *session, handle transport.Handle) *transport.CloseError {
	errorFrames := 0
	for {
		frame, err := handle.Receive()
		if err != nil {
			if !m.isCurrent(sess) {
				return nil
			}
			return transport.AsCloseError(err)
		}

		if m.route(sess, frame) {
			errorFrames++
		} else {
			errorFrames = 0
		}

		if threshold := m.config.errorFrameThreshold; threshold > 0 && errorFrames >= threshold {
			closeErr := &transport.CloseError{
				Code:   transport.CloseInternalError,
				Reason: fmt.Sprintf("%d consecutive error frames", errorFrames),
			}
			logger.Warn("dropping connection after repeated error frames", "count", errorFrames)
			_ = handle.Close(closeErr.Code, closeErr.Reason)
			if !m.isCurrent(sess) {
				return nil
			}
			return closeErr
		}
	}
}

func (m *Manager) closedNormally(sess *session, handle transport.Handle, closeErr *transport.CloseError) {
	m.mu.Lock()
	if sess.gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	m.session = nil
	sess.cancel()
	change := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	release(handle, closeErr)

	logger.Info("backend closed the connection", "code", closeErr.Code, "reason", closeErr.Reason)
	m.emitStateChange(sess.gen, change)
	m.emitDisconnect(sess.gen, DisconnectEvent{Code: closeErr.Code, Reason: closeErr.Reason})
}

// reconnect restores a connection lost to an abnormal closure. Every try
// waits for the backoff delay and targets the endpoint that was connected.
// Once the attempt budget of the session is spent it enters fallback mode.
func (m *Manager) reconnect(sess *session, lostHandle transport.Handle, closeErr *transport.CloseError) (transport.Handle, bool) {
	lost := fmt.Errorf("%w: %w", ErrAbnormalClosure, closeErr)

	m.mu.Lock()
	if sess.gen != m.generation {
		m.mu.Unlock()
		return nil, false
	}
	m.handle = nil
	endpoint, index := m.endpoint, m.stats.CurrentEndpointIndex
	m.stats.LastError = newErrorInfo(lost, endpoint)
	change := m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	release(lostHandle, closeErr)

	logger.Warn("connection lost", "endpoint", endpoint.String(), "code", closeErr.Code, "reason", closeErr.Reason)
	m.emitStateChange(sess.gen, change)
	m.emitDisconnect(sess.gen, DisconnectEvent{
		Code:         closeErr.Code,
		Reason:       closeErr.Reason,
		Reconnecting: true,
		Err:          lost,
	})
	m.emitError(sess.gen, lost)

	for {
		m.mu.Lock()
		if sess.gen != m.generation {
			m.mu.Unlock()
			return nil, false
		}
		attempts := m.stats.ReconnectAttempts
		if attempts >= m.config.maxReconnectAttempts {
			m.mu.Unlock()
			m.enterFallback(sess, fmt.Errorf("%w after %d tries: %w", ErrReconnectLimit, attempts, m.lastError(lost)))
			return nil, false
		}
		m.stats.ReconnectAttempts++
		attempt := m.stats.ReconnectAttempts
		m.mu.Unlock()

		reconnectAttemptCounter.Add(sess.ctx, 1)
		logger.Info("reconnecting", "endpoint", endpoint.String(), "attempt", attempt, "delay", m.backoff.DelayFor(attempt))
		if err := m.backoff.Wait(sess.ctx, attempt); err != nil {
			return nil, false
		}

		handle, err := m.attempt(sess, endpoint, index, attempt)
		if err == nil {
			return handle, m.connected(sess, handle, endpoint, index)
		}
		if sess.ctx.Err() != nil {
			return nil, false
		}

		logger.Warn("reconnection attempt failed", "endpoint", endpoint.String(), "attempt", attempt, "error", err)
		m.mu.Lock()
		if sess.gen != m.generation {
			m.mu.Unlock()
			return nil, false
		}
		m.stats.LastError = newErrorInfo(err, endpoint)
		retry := m.stats.ReconnectAttempts < m.config.maxReconnectAttempts
		var change StateChange
		if retry {
			change = m.setStateLocked(StateReconnecting)
		}
		m.mu.Unlock()

		m.emitError(sess.gen, err)
		if retry {
			m.emitStateChange(sess.gen, change)
		}
	}
}

func (m *Manager) lastError(fallback error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats.LastError != nil {
		return m.stats.LastError.Err
	}
	return fallback
}

// enterFallback degrades the session to local fallback mode. The session
// stays alive so pending simulated messages can be cancelled by Disconnect.
func (m *Manager) enterFallback(sess *session, reason error) {
	m.mu.Lock()
	if sess.gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	m.endpoint = endpoints.Endpoint{}
	change := m.setStateLocked(StateFallback)
	m.mu.Unlock()

	fallbackCounter.Add(sess.ctx, 1)
	logger.Warn("backend unreachable, entering fallback mode", "session_id", sess.id, "reason", reason)
	m.emitStateChange(sess.gen, change)
	m.emitFallback(sess.gen, FallbackEvent{Reason: reason})
}
