package realtime

import (
	"testing"
	"time"
)

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(WithEndpoints())

	if m.config.attemptTimeout != 10*time.Second {
		t.Fatalf("expected 10s attempt timeout, got %s", m.config.attemptTimeout)
	}
	if m.config.maxReconnectAttempts != 5 {
		t.Fatalf("expected 5 reconnect attempts, got %d", m.config.maxReconnectAttempts)
	}
	if m.backoff.Base() != time.Second {
		t.Fatalf("expected 1s backoff base, got %s", m.backoff.Base())
	}
	if m.config.errorFrameThreshold != 0 {
		t.Fatalf("expected error frame escalation to be disabled, got %d", m.config.errorFrameThreshold)
	}
	if m.transport == nil {
		t.Fatalf("expected websocket transport by default")
	}
	if state := m.ConnectionState(); state != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", state)
	}
}

func TestWithCatalogNilUsesEnvironment(t *testing.T) {
	t.Setenv("EMA_REALTIME_URL", "ws://override/ws/voice")
	t.Setenv("EMA_REALTIME_DEFAULT_URL", "")

	m := NewManager(WithCatalog(nil))

	all := m.catalog.All()
	if len(all) != 2 || all[0].Address != "ws://override/ws/voice" {
		t.Fatalf("expected override and local endpoints, got %v", all)
	}
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	m := NewManager(
		WithEndpoints(),
		WithAttemptTimeout(-time.Second),
		WithFallbackDelay(-time.Second),
		WithErrorFrameThreshold(-1),
	)

	if m.config.attemptTimeout != DefaultAttemptTimeout {
		t.Fatalf("expected default attempt timeout to be kept, got %s", m.config.attemptTimeout)
	}
	if m.config.fallbackDelay != DefaultFallbackDelay {
		t.Fatalf("expected default fallback delay to be kept, got %s", m.config.fallbackDelay)
	}
	if m.config.errorFrameThreshold != 0 {
		t.Fatalf("expected threshold to stay disabled, got %d", m.config.errorFrameThreshold)
	}
}
