package realtime

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"

	"github.com/koscakluka/ema-realtime/core/endpoints"
	"github.com/koscakluka/ema-realtime/core/messages"
)

// callbacks holds at most one handler per category. Registering a handler
// replaces the previous one, registering nil removes it.
type callbacks struct {
	mu sync.RWMutex

	onConnect     func(endpoints.Endpoint)
	onDisconnect  func(DisconnectEvent)
	onMessage     func(messages.Inbound)
	onError       func(error)
	onTranscript  func(messages.Transcript)
	onConfidence  func(messages.Confidence)
	onFallback    func(FallbackEvent)
	onStateChange func(StateChange)
}

func replace[T any](c *callbacks, slot *func(T), handler func(T), category string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if *slot != nil && handler != nil {
		logger.Warn("replacing registered handler", "category", category)
	}
	*slot = handler
}

func load[T any](c *callbacks, slot *func(T)) func(T) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *slot
}

func (c *callbacks) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onConnect = nil
	c.onDisconnect = nil
	c.onMessage = nil
	c.onError = nil
	c.onTranscript = nil
	c.onConfidence = nil
	c.onFallback = nil
	c.onStateChange = nil
}

func (m *Manager) OnConnect(handler func(endpoint endpoints.Endpoint)) {
	replace(&m.callbacks, &m.callbacks.onConnect, handler, "connect")
}

func (m *Manager) OnDisconnect(handler func(event DisconnectEvent)) {
	replace(&m.callbacks, &m.callbacks.onDisconnect, handler, "disconnect")
}

// OnMessage receives status frames, simulated fallback statuses and frames
// of unknown type.
func (m *Manager) OnMessage(handler func(msg messages.Inbound)) {
	replace(&m.callbacks, &m.callbacks.onMessage, handler, "message")
}

func (m *Manager) OnError(handler func(err error)) {
	replace(&m.callbacks, &m.callbacks.onError, handler, "error")
}

func (m *Manager) OnTranscript(handler func(transcript messages.Transcript)) {
	replace(&m.callbacks, &m.callbacks.onTranscript, handler, "transcript")
}

func (m *Manager) OnConfidence(handler func(confidence messages.Confidence)) {
	replace(&m.callbacks, &m.callbacks.onConfidence, handler, "confidence")
}

func (m *Manager) OnFallback(handler func(event FallbackEvent)) {
	replace(&m.callbacks, &m.callbacks.onFallback, handler, "fallback")
}

func (m *Manager) OnStateChange(handler func(change StateChange)) {
	replace(&m.callbacks, &m.callbacks.onStateChange, handler, "state_change")
}

// dispatch is one handler invocation in flight.
type dispatch struct {
	goroutine uint64
	gen       uint64
}

// emit runs fire unless the session identified by gen has ended. The check
// and the bookkeeping of the running handler happen under the manager lock,
// and Disconnect waits for every handler it finds running, so nothing of a
// session runs once Disconnect has returned. fire itself runs without the
// lock, so handlers are free to call back into the manager.
func (m *Manager) emit(gen uint64, fire func()) {
	d := &dispatch{goroutine: goroutineID(), gen: gen}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.inflight[d] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inflight, d)
		m.idle.Broadcast()
		m.mu.Unlock()
	}()
	fire()
}

// awaitHandlersLocked blocks until no handler of a generation older than
// gen is running. Handlers running on the calling goroutine are skipped,
// they are the ones calling Disconnect. m.mu must be held.
func (m *Manager) awaitHandlersLocked(gen uint64) {
	self := goroutineID()
	for m.runningBefore(gen, self) {
		m.idle.Wait()
	}
}

func (m *Manager) runningBefore(gen, self uint64) bool {
	for d := range m.inflight {
		if d.gen < gen && d.goroutine != self {
			return true
		}
	}
	return false
}

// goroutineID reads the id of the calling goroutine from its stack header,
// which starts with "goroutine <id> [".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i >= 0 {
		field = field[:i]
	}
	id, _ := strconv.ParseUint(string(field), 10, 64)
	return id
}

func (m *Manager) emitStateChange(gen uint64, change StateChange) {
	m.emit(gen, func() {
		if handler := load(&m.callbacks, &m.callbacks.onStateChange); handler != nil {
			handler(change)
		}
	})
}

func (m *Manager) emitConnect(gen uint64, endpoint endpoints.Endpoint) {
	m.emit(gen, func() {
		if handler := load(&m.callbacks, &m.callbacks.onConnect); handler != nil {
			handler(endpoint)
		}
	})
}

func (m *Manager) emitDisconnect(gen uint64, event DisconnectEvent) {
	m.emit(gen, func() {
		if handler := load(&m.callbacks, &m.callbacks.onDisconnect); handler != nil {
			handler(event)
		}
	})
}

func (m *Manager) emitMessage(gen uint64, msg messages.Inbound) {
	m.emit(gen, func() {
		if handler := load(&m.callbacks, &m.callbacks.onMessage); handler != nil {
			handler(msg)
		}
	})
}

func (m *Manager) emitError(gen uint64, err error) {
	m.emit(gen, func() {
		if handler := load(&m.callbacks, &m.callbacks.onError); handler != nil {
			handler(err)
		}
	})
}

func (m *Manager) emitTranscript(gen uint64, transcript messages.Transcript) {
	m.emit(gen, func() {
		if handler := load(&m.callbacks, &m.callbacks.onTranscript); handler != nil {
			handler(transcript)
		}
	})
}

func (m *Manager) emitConfidence(gen uint64, confidence messages.Confidence) {
	m.emit(gen, func() {
		if handler := load(&m.callbacks, &m.callbacks.onConfidence); handler != nil {
			handler(confidence)
		}
	})
}

func (m *Manager) emitFallback(gen uint64, event FallbackEvent) {
	m.emit(gen, func() {
		if handler := load(&m.callbacks, &m.callbacks.onFallback); handler != nil {
			handler(event)
		}
	})
}
