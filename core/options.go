package realtime

import (
	"time"

	"github.com/koscakluka/ema-realtime/core/backoff"
	"github.com/koscakluka/ema-realtime/core/endpoints"
	"github.com/koscakluka/ema-realtime/core/transport"
)

const (
	DefaultAttemptTimeout       = 10 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultFallbackDelay        = 500 * time.Millisecond
)

type ManagerOption func(*Manager)

// WithCatalog sets the ordered endpoints the manager cascades through. When
// not set the catalog is built from the environment.
func WithCatalog(catalog *endpoints.Catalog) ManagerOption {
	return func(m *Manager) {
		m.catalog = catalog
	}
}

func WithEndpoints(list ...endpoints.Endpoint) ManagerOption {
	return WithCatalog(endpoints.NewCatalog(list...))
}

// WithTransport replaces the websocket transport, mostly useful in tests.
func WithTransport(t transport.Transport) ManagerOption {
	return func(m *Manager) {
		m.transport = t
	}
}

// WithAttemptTimeout bounds every single connection attempt.
func WithAttemptTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.config.attemptTimeout = timeout
		}
	}
}

// WithMaxReconnectAttempts caps how many times a lost connection is retried
// per session before the manager degrades to fallback mode. Zero means a
// lost connection goes straight to fallback.
func WithMaxReconnectAttempts(attempts uint) ManagerOption {
	return func(m *Manager) {
		m.config.maxReconnectAttempts = attempts
	}
}

func WithBackoffBase(base time.Duration) ManagerOption {
	return func(m *Manager) {
		m.backoff = backoff.New(base)
	}
}

// WithFallbackDelay sets how long simulated fallback status messages take
// to arrive.
func WithFallbackDelay(delay time.Duration) ManagerOption {
	return func(m *Manager) {
		if delay >= 0 {
			m.config.fallbackDelay = delay
		}
	}
}

// WithErrorFrameThreshold makes the manager drop and re-establish the
// connection after n consecutive error or malformed frames. Zero disables
// the check.
func WithErrorFrameThreshold(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 0 {
			m.config.errorFrameThreshold = n
		}
	}
}

type managerConfig struct {
	attemptTimeout       time.Duration
	maxReconnectAttempts uint
	fallbackDelay        time.Duration
	errorFrameThreshold  int
}

func defaultManagerConfig() managerConfig {
	return managerConfig{
		attemptTimeout:       DefaultAttemptTimeout,
		maxReconnectAttempts: DefaultMaxReconnectAttempts,
		fallbackDelay:        DefaultFallbackDelay,
	}
}
