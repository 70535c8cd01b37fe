// Package agent defines the specialized agents the reasoning engine can
// dispatch to, the registry that exposes them as model tools, and the
// invoker that shields the engine from agent failures.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"showrunner/internal/session"
)

// Response is the uniform outcome of an agent run. Status is always
// success or error; agents never surface Go errors or panics to callers.
type Response struct {
	Status  session.MsgStatus      `json:"status"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Success builds a success response.
func Success(message string, data map[string]interface{}) Response {
	return Response{Status: session.StatusSuccess, Message: message, Data: data}
}

// Errorf builds an error response.
func Errorf(format string, args ...interface{}) Response {
	return Response{Status: session.StatusError, Message: fmt.Sprintf(format, args...)}
}

// JSON renders the response for a tool-role context message.
func (r Response) JSON() string {
	encoded, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","message":"failed to encode agent response: %v"}`, err)
	}
	return string(encoded)
}

// Agent is one specialized capability. Parameters returns the JSON-schema
// object literal describing the arguments Run accepts. Agents append their
// artifacts to the output message and report the outcome in the Response.
type Agent interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Run(ctx context.Context, args json.RawMessage, out *session.OutputMessage) Response
}

// params assembles a JSON-schema object literal.
func params(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// prop is a single schema property.
func prop(propType, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        propType,
		"description": description,
	}
}
