// Package llm abstracts chat-completion vendors behind a single Provider
// interface. Providers never return transport or vendor errors to callers:
// every failure is folded into a Response with Status false so the caller
// decides what a failed completion means.
package llm

import (
	"context"
	"fmt"
)

// Message is a single conversation message in provider-neutral form.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Arguments is the
// raw JSON argument object as emitted by the vendor.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a callable tool offered to the model.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ResponseFormat requests structured output. The only supported type is
// "json_object".
type ResponseFormat struct {
	Type string `json:"type"`
}

// Request is a single completion request.
type Request struct {
	Messages       []Message
	Tools          []Tool
	ResponseFormat *ResponseFormat
}

// Finish reasons reported by providers, normalized.
const (
	FinishStop      = "stop"
	FinishEndTurn   = "end_turn"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// Response is the outcome of a completion. Status is false when the vendor
// call failed for any reason; Content then carries the error text.
type Response struct {
	Status           bool       `json:"status"`
	Content          string     `json:"content"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	FinishReason     string     `json:"finish_reason"`
	PromptTokens     int        `json:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens"`
	TotalTokens      int        `json:"total_tokens"`
}

// Done reports whether the model considers the turn complete.
func (r Response) Done() bool {
	return r.FinishReason == FinishStop || r.FinishReason == FinishEndTurn
}

// Provider completes conversations.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) Response
}

func errorResponse(err error) Response {
	return Response{
		Status:  false,
		Content: fmt.Sprintf("Error: %v", err),
	}
}
