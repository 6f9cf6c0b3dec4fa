package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-realtime/core/messages"
)

type deliveries struct {
	mu   sync.Mutex
	msgs []messages.Inbound
	gens []uint64
}

func (d *deliveries) deliver(gen uint64, msg messages.Inbound) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	d.gens = append(d.gens, gen)
}

func (d *deliveries) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.msgs)
}

func TestFallbackEngineAnswersStartAndStop(t *testing.T) {
	d := &deliveries{}
	engine := newFallbackEngine(5*time.Millisecond, d.deliver)

	engine.simulate(7, messages.Start{})
	engine.simulate(7, messages.Pause{})
	engine.simulate(7, messages.Stop{})

	waitFor(t, "simulated statuses", func() bool { return d.count() == 2 })

	d.mu.Lock()
	defer d.mu.Unlock()
	for i, msg := range d.msgs {
		if status, ok := msg.(messages.Status); !ok || !status.IsFallback() {
			t.Fatalf("expected fallback status, got %+v", msg)
		}
		if d.gens[i] != 7 {
			t.Fatalf("expected generation to be passed through, got %d", d.gens[i])
		}
	}
	if engine.pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", engine.pending())
	}
}

func TestFallbackEngineCancelAll(t *testing.T) {
	d := &deliveries{}
	engine := newFallbackEngine(20*time.Millisecond, d.deliver)

	engine.simulate(1, messages.Start{})
	engine.simulate(1, messages.Stop{})
	engine.cancelAll()

	time.Sleep(50 * time.Millisecond)
	if got := d.count(); got != 0 {
		t.Fatalf("expected cancelled statuses not to be delivered, got %d", got)
	}
}
