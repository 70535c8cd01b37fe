package session

import (
	"showrunner/pkg/llm"
)

// Message roles used in the reasoning context.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ContextMessage is one entry of the reasoning context: the ordered message
// list handed to the model on every step. It round-trips through JSON
// unchanged, including tool call ids, so persisted runs resume with the
// exact conversation the model saw.
type ContextMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// ToLLM converts the context entry into the provider-neutral message shape.
func (m ContextMessage) ToLLM() llm.Message {
	return llm.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
}

// SystemMessage builds a system-role context entry.
func SystemMessage(content string) ContextMessage {
	return ContextMessage{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role context entry.
func UserMessage(content string) ContextMessage {
	return ContextMessage{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role context entry carrying any tool
// calls the model requested.
func AssistantMessage(content string, toolCalls []llm.ToolCall) ContextMessage {
	return ContextMessage{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolMessage builds a tool-role context entry answering a prior assistant
// tool call.
func ToolMessage(content, toolCallID string) ContextMessage {
	return ContextMessage{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// ToLLMMessages converts a context slice for a provider call.
func ToLLMMessages(messages []ContextMessage) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, message := range messages {
		out = append(out, message.ToLLM())
	}
	return out
}

// CurrentRunContext returns the context suffix starting at the most recent
// user message. This is the slice summarized at the end of a run.
func CurrentRunContext(messages []ContextMessage) []ContextMessage {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i:]
		}
	}
	return messages
}
