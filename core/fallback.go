package realtime

import (
	"sync"
	"time"

	"github.com/koscakluka/ema-realtime/core/messages"
)

const (
	fallbackStartedText = "recording started (fallback mode)"
	fallbackStoppedText = "recording stopped (fallback mode)"
)

// fallbackEngine answers commands locally while the backend is
// unreachable. Answers arrive after a fixed delay, as the backend would
// send them.
type fallbackEngine struct {
	delay   time.Duration
	deliver func(gen uint64, msg messages.Inbound)

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

func newFallbackEngine(delay time.Duration, deliver func(gen uint64, msg messages.Inbound)) *fallbackEngine {
	return &fallbackEngine{
		delay:   delay,
		deliver: deliver,
		timers:  make(map[*time.Timer]struct{}),
	}
}

// simulate schedules the status message for cmd. Only start and stop get
// an answer.
func (f *fallbackEngine) simulate(gen uint64, cmd messages.Command) {
	var msg messages.Status
	switch cmd.(type) {
	case messages.Start:
		msg = messages.Status{Text: fallbackStartedText, Mode: messages.ModeFallback}
	case messages.Stop:
		msg = messages.Status{Text: fallbackStoppedText, Mode: messages.ModeFallback}
	default:
		logger.Debug("ignoring command in fallback mode", "action", string(cmd.Action()))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(f.delay, func() {
		f.mu.Lock()
		_, pending := f.timers[timer]
		delete(f.timers, timer)
		f.mu.Unlock()

		if pending {
			f.deliver(gen, msg)
		}
	})
	f.timers[timer] = struct{}{}
}

func (f *fallbackEngine) cancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for timer := range f.timers {
		timer.Stop()
	}
	clear(f.timers)
}

func (f *fallbackEngine) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}
