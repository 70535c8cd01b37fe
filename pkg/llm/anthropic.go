package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type AnthropicProvider struct {
	client    *http.Client
	apiKey    string
	apiURL    string
	model     string
	maxTokens int
}

const (
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicMaxTokens = 4096
	anthropicVersion          = "2023-06-01"
)

func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.anthropic.com"
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicProvider{
		client:    &http.Client{Timeout: timeout},
		apiKey:    cfg.APIKey,
		apiURL:    apiURL,
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) Response {
	body := anthropicRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
	}
	body.Messages, body.System = anthropicMessagesFrom(req.Messages)
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		// No native JSON mode; steer through the system prompt.
		if body.System != "" {
			body.System += "\n"
		}
		body.System += "Respond with a single valid JSON object and nothing else."
	}
	for _, tool := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errorResponse(fmt.Errorf("anthropic: marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return errorResponse(fmt.Errorf("anthropic: create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("X-API-Key", p.apiKey)
	}
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return errorResponse(fmt.Errorf("anthropic: request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResponse(fmt.Errorf("anthropic: read response: %w", err))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errorResponse(fmt.Errorf("anthropic: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return errorResponse(fmt.Errorf("anthropic: decode response: %w", err))
	}

	out := Response{
		Status:           true,
		FinishReason:     anthropicFinishReason(decoded.StopReason),
		PromptTokens:     decoded.Usage.InputTokens,
		CompletionTokens: decoded.Usage.OutputTokens,
		TotalTokens:      decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
	}
	var textParts []string
	for _, block := range decoded.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	out.Content = strings.Join(textParts, "")
	return out
}

func anthropicFinishReason(stopReason string) string {
	switch stopReason {
	case "tool_use":
		return FinishToolCalls
	case "max_tokens":
		return FinishLength
	case "end_turn", "stop_sequence":
		return FinishEndTurn
	default:
		return stopReason
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text,omitempty"`
		ID    string          `json:"id,omitempty"`
		Name  string          `json:"name,omitempty"`
		Input json.RawMessage `json:"input,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicMessagesFrom converts provider-neutral messages into the
// messages-API shape: system messages are hoisted into the system field,
// assistant tool calls become tool_use blocks and tool results become
// tool_result blocks on user turns.
func anthropicMessagesFrom(messages []Message) ([]anthropicMessage, string) {
	var systemParts []string
	out := make([]anthropicMessage, 0, len(messages))
	for _, message := range messages {
		switch message.Role {
		case "system":
			systemParts = append(systemParts, message.Content)
		case "assistant":
			var content []anthropicContent
			if message.Content != "" {
				content = append(content, anthropicContent{Type: "text", Text: message.Content})
			}
			for _, call := range message.ToolCalls {
				input := map[string]interface{}{}
				_ = json.Unmarshal([]byte(call.Arguments), &input)
				content = append(content, anthropicContent{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: input,
				})
			}
			if len(content) == 0 {
				content = append(content, anthropicContent{Type: "text", Text: ""})
			}
			out = append(out, anthropicMessage{Role: "assistant", Content: content})
		case "tool":
			out = append(out, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{{
					Type:      "tool_result",
					ToolUseID: message.ToolCallID,
					Content:   message.Content,
				}},
			})
		default:
			out = append(out, anthropicMessage{
				Role:    message.Role,
				Content: []anthropicContent{{Type: "text", Text: message.Content}},
			})
		}
	}
	return out, strings.Join(systemParts, "\n")
}
