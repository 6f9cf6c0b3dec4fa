package realtime

import (
	"fmt"

	"github.com/koscakluka/ema-realtime/core/messages"
)

// route decodes an inbound frame and dispatches it to the matching
// handler. It reports whether the frame counts as an error frame.
func (m *Manager) route(sess *session, frame []byte) bool {
	msg, err := messages.Decode(frame)
	if err != nil {
		malformedFrameCounter.Add(sess.ctx, 1)
		err = fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		logger.Warn("dropping malformed frame", "error", err)
		m.emitError(sess.gen, err)
		return true
	}

	switch msg := msg.(type) {
	case messages.Transcript:
		m.emitTranscript(sess.gen, msg)
	case messages.Confidence:
		m.emitConfidence(sess.gen, msg)
	case messages.Status:
		logger.Debug("backend status", "text", msg.Text, "mode", msg.Mode)
		m.emitMessage(sess.gen, msg)
	case messages.Error:
		m.emitError(sess.gen, fmt.Errorf("%w: %s", ErrRemoteError, msg.Message))
		return true
	default:
		m.emitMessage(sess.gen, msg)
	}
	return false
}
