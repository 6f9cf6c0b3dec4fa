package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-realtime/core/endpoints"
	"github.com/koscakluka/ema-realtime/core/messages"
	"github.com/koscakluka/ema-realtime/core/transport"
)

var errRefusedStub = errors.New("dial tcp: connection refused")

// handleStub is an in-memory connection. Frames pushed to it are returned
// by Receive until it is closed from either side.
type handleStub struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	closeErr   *transport.CloseError
	closeCalls int
	sent       [][]byte
	sendErr    error
}

func newHandleStub() *handleStub {
	return &handleStub{
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (h *handleStub) Send(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, append([]byte(nil), data...))
	return nil
}

func (h *handleStub) Receive() ([]byte, error) {
	select {
	case frame := <-h.frames:
		return frame, nil
	default:
	}

	select {
	case frame := <-h.frames:
		return frame, nil
	case <-h.closed:
		h.mu.Lock()
		defer h.mu.Unlock()
		return nil, h.closeErr
	}
}

func (h *handleStub) Close(code int, reason string) error {
	h.mu.Lock()
	h.closeCalls++
	h.mu.Unlock()

	h.closeWith(code, reason)
	return nil
}

// localCloses counts Close calls made by the manager.
func (h *handleStub) localCloses() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCalls
}

// closeWith simulates the connection ending with the given code.
func (h *handleStub) closeWith(code int, reason string) {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closeErr = &transport.CloseError{Code: code, Reason: reason}
		h.mu.Unlock()
		close(h.closed)
	})
}

func (h *handleStub) push(frame string) { h.frames <- []byte(frame) }

func (h *handleStub) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

func (h *handleStub) closeCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closeErr == nil {
		return 0
	}
	return h.closeErr.Code
}

func (h *handleStub) sentActions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	actions := make([]string, 0, len(h.sent))
	for _, data := range h.sent {
		var frame messages.CommandFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			actions = append(actions, "invalid")
			continue
		}
		actions = append(actions, string(frame.Action))
	}
	return actions
}

func (h *handleStub) setSendErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendErr = err
}

// transportStub hands out connections according to dial. The n argument
// counts Open calls starting at zero.
type transportStub struct {
	dial func(ctx context.Context, address string, n int) (transport.Handle, error)

	mu        sync.Mutex
	addresses []string
}

func (s *transportStub) Open(ctx context.Context, address string) (transport.Handle, error) {
	s.mu.Lock()
	n := len(s.addresses)
	s.addresses = append(s.addresses, address)
	s.mu.Unlock()

	return s.dial(ctx, address, n)
}

func (s *transportStub) attempts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.addresses...)
}

func refuseAll() *transportStub {
	return &transportStub{dial: func(context.Context, string, int) (transport.Handle, error) {
		return nil, errRefusedStub
	}}
}

func hangAll() *transportStub {
	return &transportStub{dial: func(ctx context.Context, _ string, _ int) (transport.Handle, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

// acceptFirst accepts the first Open call with handle and refuses the rest.
func acceptFirst(handle *handleStub) *transportStub {
	return &transportStub{dial: func(_ context.Context, _ string, n int) (transport.Handle, error) {
		if n == 0 {
			return handle, nil
		}
		return nil, errRefusedStub
	}}
}

// acceptSequence hands out handles in order and refuses once they run out.
func acceptSequence(handles ...*handleStub) *transportStub {
	return &transportStub{dial: func(_ context.Context, _ string, n int) (transport.Handle, error) {
		if n < len(handles) {
			return handles[n], nil
		}
		return nil, errRefusedStub
	}}
}

func testEndpoints(n int) []endpoints.Endpoint {
	list := make([]endpoints.Endpoint, 0, n)
	for i := range n {
		list = append(list, endpoints.Endpoint{
			Address: "ws://backend-" + string(rune('a'+i)) + "/ws/voice",
			Origin:  endpoints.OriginConfigured,
		})
	}
	return list
}

func newTestManager(stub transport.Transport, list []endpoints.Endpoint, opts ...ManagerOption) *Manager {
	base := []ManagerOption{
		WithTransport(stub),
		WithEndpoints(list...),
		WithAttemptTimeout(50 * time.Millisecond),
		WithBackoffBase(time.Millisecond),
		WithFallbackDelay(5 * time.Millisecond),
	}
	return NewManager(append(base, opts...)...)
}

type events struct {
	connects    []endpoints.Endpoint
	disconnects []DisconnectEvent
	messages    []messages.Inbound
	errors      []error
	transcripts []messages.Transcript
	confidences []messages.Confidence
	fallbacks   []FallbackEvent
	states      []StateChange
}

// recorder captures every callback the manager fires.
type recorder struct {
	mu sync.Mutex
	events
}

func record(m *Manager) *recorder {
	r := &recorder{}
	m.OnConnect(func(endpoint endpoints.Endpoint) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.connects = append(r.connects, endpoint)
	})
	m.OnDisconnect(func(event DisconnectEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.disconnects = append(r.disconnects, event)
	})
	m.OnMessage(func(msg messages.Inbound) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.messages = append(r.messages, msg)
	})
	m.OnError(func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errors = append(r.errors, err)
	})
	m.OnTranscript(func(transcript messages.Transcript) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.transcripts = append(r.transcripts, transcript)
	})
	m.OnConfidence(func(confidence messages.Confidence) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.confidences = append(r.confidences, confidence)
	})
	m.OnFallback(func(event FallbackEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.fallbacks = append(r.fallbacks, event)
	})
	m.OnStateChange(func(change StateChange) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, change)
	})
	return r
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connects) + len(r.disconnects) + len(r.messages) + len(r.errors) +
		len(r.transcripts) + len(r.confidences) + len(r.fallbacks) + len(r.states)
}

func (r *recorder) stateTargets() []ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := make([]ConnectionState, 0, len(r.states))
	for _, change := range r.states {
		targets = append(targets, change.To)
	}
	return targets
}

func (r *recorder) snapshot() events {
	r.mu.Lock()
	defer r.mu.Unlock()
	return events{
		connects:    append([]endpoints.Endpoint(nil), r.connects...),
		disconnects: append([]DisconnectEvent(nil), r.disconnects...),
		messages:    append([]messages.Inbound(nil), r.messages...),
		errors:      append([]error(nil), r.errors...),
		transcripts: append([]messages.Transcript(nil), r.transcripts...),
		confidences: append([]messages.Confidence(nil), r.confidences...),
		fallbacks:   append([]FallbackEvent(nil), r.fallbacks...),
		states:      append([]StateChange(nil), r.states...),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitForState(t *testing.T, m *Manager, want ConnectionState) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return m.ConnectionState() == want })
}

func equalStates(got, want []ConnectionState) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
