package messages

import (
	"encoding/json"
	"fmt"

	"github.com/jinzhu/copier"
)

type Action string

const (
	ActionStart            Action = "start"
	ActionStop             Action = "stop"
	ActionPause            Action = "pause"
	ActionResume           Action = "resume"
	ActionUpdateTranscript Action = "update_transcript"
)

// Command is a control command sent to the speech backend.
type Command interface {
	Action() Action
}

// Preferences are backend specific session settings sent with [Start].
type Preferences map[string]any

type Start struct {
	Preferences Preferences
}

// NewStart returns a start command holding its own copy of prefs, so later
// changes to the caller's map are not sent.
func NewStart(prefs Preferences) Start {
	if prefs == nil {
		return Start{}
	}

	var snapshot Preferences
	if err := copier.CopyWithOption(&snapshot, prefs, copier.Option{DeepCopy: true}); err != nil {
		snapshot = make(Preferences, len(prefs))
		for k, v := range prefs {
			snapshot[k] = v
		}
	}
	return Start{Preferences: snapshot}
}

func (Start) Action() Action { return ActionStart }

type Stop struct{}

func (Stop) Action() Action { return ActionStop }

type Pause struct{}

func (Pause) Action() Action { return ActionPause }

type Resume struct{}

func (Resume) Action() Action { return ActionResume }

type UpdateTranscript struct {
	Text string
}

func (UpdateTranscript) Action() Action { return ActionUpdateTranscript }

// CommandFrame is the JSON shape of every outbound command.
type CommandFrame struct {
	Action      Action      `json:"action" jsonschema:"title=Action,enum=start,enum=stop,enum=pause,enum=resume,enum=update_transcript"`
	Preferences Preferences `json:"preferences,omitempty" jsonschema:"description=Session preferences sent with start"`
	Transcript  *string     `json:"transcript,omitempty" jsonschema:"description=Replacement transcript sent with update_transcript"`
}

func Encode(cmd Command) ([]byte, error) {
	var frame CommandFrame
	switch c := cmd.(type) {
	case Start:
		frame = CommandFrame{Action: ActionStart, Preferences: c.Preferences}
	case Stop, Pause, Resume:
		frame = CommandFrame{Action: c.Action()}
	case UpdateTranscript:
		frame = CommandFrame{Action: ActionUpdateTranscript, Transcript: &c.Text}
	case nil:
		return nil, fmt.Errorf("cannot encode nil command")
	default:
		return nil, fmt.Errorf("unsupported command type %T", cmd)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s command: %w", frame.Action, err)
	}
	return data, nil
}

// DecodeCommand parses a command frame. It is used by backends receiving
// commands from the manager.
func DecodeCommand(data []byte) (Command, error) {
	var frame CommandFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	switch frame.Action {
	case ActionStart:
		return Start{Preferences: frame.Preferences}, nil
	case ActionStop:
		return Stop{}, nil
	case ActionPause:
		return Pause{}, nil
	case ActionResume:
		return Resume{}, nil
	case ActionUpdateTranscript:
		if frame.Transcript == nil {
			return nil, fmt.Errorf("%w: update_transcript without transcript", ErrMalformed)
		}
		return UpdateTranscript{Text: *frame.Transcript}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrMalformed, frame.Action)
	}
}
