package messages

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Kind string

const (
	KindTranscript Kind = "transcript"
	KindConfidence Kind = "confidence"
	KindStatus     Kind = "status"
	KindError      Kind = "error"
)

// ModeFallback marks status messages produced locally while no backend is
// reachable.
const ModeFallback = "fallback"

var ErrMalformed = errors.New("malformed message")

// Inbound is a message received from the speech backend.
type Inbound interface {
	Kind() Kind
}

type Transcript struct {
	Text       string
	Confidence float64
}

func (Transcript) Kind() Kind { return KindTranscript }

type Confidence struct {
	Value float64
}

func (Confidence) Kind() Kind { return KindConfidence }

type Status struct {
	Text string
	Mode string
}

func (Status) Kind() Kind { return KindStatus }

// IsFallback reports whether the status was synthesized locally.
func (s Status) IsFallback() bool { return s.Mode == ModeFallback }

type Error struct {
	Message string
}

func (Error) Kind() Kind { return KindError }

// Unknown carries a message with a type tag this package does not recognise.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (u Unknown) Kind() Kind { return Kind(u.Type) }

// MessageFrame is the JSON shape of every inbound message.
type MessageFrame struct {
	Type       string   `json:"type" jsonschema:"title=Type,description=Message type tag. Unknown values are delivered to the generic message handler,enum=transcript,enum=confidence,enum=status,enum=error"`
	Text       string   `json:"text,omitempty" jsonschema:"description=Transcript or status text"`
	Confidence *float64 `json:"confidence,omitempty" jsonschema:"description=Transcript confidence"`
	Value      *float64 `json:"value,omitempty" jsonschema:"description=Confidence value"`
	Mode       string   `json:"mode,omitempty" jsonschema:"description=Set to fallback for locally simulated status messages"`
	Message    string   `json:"message,omitempty" jsonschema:"description=Error description"`
}

// Decode parses a raw frame into one of the inbound message types. Frames
// that are not JSON objects or carry no type tag yield an error wrapping
// [ErrMalformed].
func Decode(frame []byte) (Inbound, error) {
	var parsed MessageFrame
	if err := json.Unmarshal(frame, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	switch Kind(parsed.Type) {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	case KindTranscript:
		msg := Transcript{Text: parsed.Text}
		if parsed.Confidence != nil {
			msg.Confidence = *parsed.Confidence
		}
		return msg, nil
	case KindConfidence:
		if parsed.Value == nil {
			return nil, fmt.Errorf("%w: confidence without value", ErrMalformed)
		}
		return Confidence{Value: *parsed.Value}, nil
	case KindStatus:
		return Status{Text: parsed.Text, Mode: parsed.Mode}, nil
	case KindError:
		return Error{Message: parsed.Message}, nil
	default:
		raw := make(json.RawMessage, len(frame))
		copy(raw, frame)
		return Unknown{Type: parsed.Type, Raw: raw}, nil
	}
}

// EncodeMessage is the inverse of [Decode]. Backends and test servers use it
// to produce frames.
func EncodeMessage(msg Inbound) ([]byte, error) {
	var frame MessageFrame
	switch m := msg.(type) {
	case Transcript:
		frame = MessageFrame{Type: string(KindTranscript), Text: m.Text, Confidence: &m.Confidence}
	case Confidence:
		frame = MessageFrame{Type: string(KindConfidence), Value: &m.Value}
	case Status:
		frame = MessageFrame{Type: string(KindStatus), Text: m.Text, Mode: m.Mode}
	case Error:
		frame = MessageFrame{Type: string(KindError), Message: m.Message}
	case Unknown:
		if len(m.Raw) > 0 {
			return m.Raw, nil
		}
		frame = MessageFrame{Type: m.Type}
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}
