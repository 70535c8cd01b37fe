package session

import (
	"encoding/json"
	"reflect"
	"testing"

	"showrunner/pkg/llm"
)

func TestContextMessagesRoundTripThroughJSON(t *testing.T) {
	original := []ContextMessage{
		SystemMessage("orchestration rules"),
		UserMessage("make a highlight reel"),
		AssistantMessage("", []llm.ToolCall{
			{ID: "call-1", Name: "search", Arguments: `{"query":"goals"}`},
			{ID: "call-2", Name: "summary", Arguments: `{"video_id":"v-1"}`},
		}),
		ToolMessage(`{"status":"success"}`, "call-1"),
		ToolMessage(`{"status":"error","message":"timeout"}`, "call-2"),
		AssistantMessage("done", nil),
	}

	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded []ContextMessage
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round trip mismatch:\nbefore %+v\nafter  %+v", original, decoded)
	}
}

func TestCurrentRunContextStartsAtLastUserMessage(t *testing.T) {
	messages := []ContextMessage{
		SystemMessage("rules"),
		UserMessage("first request"),
		AssistantMessage("first answer", nil),
		UserMessage("second request"),
		AssistantMessage("", []llm.ToolCall{{ID: "call-1", Name: "search", Arguments: "{}"}}),
		ToolMessage("{}", "call-1"),
	}

	suffix := CurrentRunContext(messages)
	if len(suffix) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(suffix))
	}
	if suffix[0].Role != RoleUser || suffix[0].Content != "second request" {
		t.Fatalf("expected suffix to start at last user message, got %+v", suffix[0])
	}
}

func TestCurrentRunContextWithoutUserMessageReturnsAll(t *testing.T) {
	messages := []ContextMessage{SystemMessage("rules")}
	if got := CurrentRunContext(messages); len(got) != 1 {
		t.Fatalf("expected full context, got %d messages", len(got))
	}
}

func TestToLLMMessagesPreservesToolPlumbing(t *testing.T) {
	messages := ToLLMMessages([]ContextMessage{
		AssistantMessage("", []llm.ToolCall{{ID: "call-7", Name: "upload", Arguments: "{}"}}),
		ToolMessage("ok", "call-7"),
	})

	if messages[0].ToolCalls[0].ID != "call-7" {
		t.Fatalf("tool call id lost: %+v", messages[0])
	}
	if messages[1].ToolCallID != "call-7" {
		t.Fatalf("tool call pairing lost: %+v", messages[1])
	}
}
