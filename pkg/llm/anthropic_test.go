package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicCompleteMapsToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Fatalf("unexpected api key header %q", got)
		}
		if got := r.Header.Get("Anthropic-Version"); got == "" {
			t.Fatal("missing Anthropic-Version header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "Searching now."},
				{"type": "tool_use", "id": "toolu-1", "name": "search", "input": {"query": "sunset"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 20, "output_tokens": 9}
		}`))
	}))
	defer server.Close()

	provider := NewAnthropicProvider(Config{APIKey: "test-key", APIURL: server.URL})
	resp := provider.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: "system", Content: "You orchestrate video agents."},
			{Role: "user", Content: "find the sunset"},
		},
	})

	if !resp.Status {
		t.Fatalf("expected success, got %q", resp.Content)
	}
	if resp.FinishReason != FinishToolCalls {
		t.Fatalf("expected tool_calls, got %q", resp.FinishReason)
	}
	if resp.Content != "Searching now." {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "toolu-1" {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.TotalTokens != 29 {
		t.Fatalf("expected 29 total tokens, got %d", resp.TotalTokens)
	}
}

func TestAnthropicMessagesHoistSystemAndConvertToolResults(t *testing.T) {
	messages, system := anthropicMessagesFrom([]Message{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "upload this"},
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "toolu-2", Name: "upload", Arguments: `{"url":"x"}`}}},
		{Role: "tool", Content: `{"status":"success"}`, ToolCallID: "toolu-2"},
	})

	if system != "rules" {
		t.Fatalf("expected hoisted system prompt, got %q", system)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	assistant := messages[1]
	if assistant.Content[0].Type != "tool_use" || assistant.Content[0].ID != "toolu-2" {
		t.Fatalf("expected tool_use block, got %+v", assistant.Content)
	}
	if assistant.Content[0].Input["url"] != "x" {
		t.Fatalf("expected decoded input, got %+v", assistant.Content[0].Input)
	}
	result := messages[2]
	if result.Role != "user" || result.Content[0].Type != "tool_result" || result.Content[0].ToolUseID != "toolu-2" {
		t.Fatalf("expected tool_result on user turn, got %+v", result)
	}
}

func TestAnthropicFinishReasonMapping(t *testing.T) {
	cases := map[string]string{
		"tool_use":   FinishToolCalls,
		"max_tokens": FinishLength,
		"end_turn":   FinishEndTurn,
	}
	for vendor, want := range cases {
		if got := anthropicFinishReason(vendor); got != want {
			t.Fatalf("stop reason %q: expected %q, got %q", vendor, want, got)
		}
	}
}
