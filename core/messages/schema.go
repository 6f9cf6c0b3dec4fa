package messages

import "github.com/invopop/jsonschema"

// Schemas returns the JSON schemas of the wire format keyed by direction:
// "command" for outbound frames and "message" for inbound frames.
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return map[string]*jsonschema.Schema{
		"command": reflector.Reflect(&CommandFrame{}),
		"message": reflector.Reflect(&MessageFrame{}),
	}
}
