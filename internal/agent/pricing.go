package agent

import (
	"context"
	"encoding/json"

	"showrunner/internal/session"
	"showrunner/pkg/llm"
	"showrunner/pkg/logging"
)

const pricingSystemPrompt = `You are a pricing analyst for a managed video
database platform. Pricing is usage based: storage per GB-month, indexing
per minute of media, search per thousand queries, and streaming per GB
egress. Answer cost questions with concrete estimates and show the
assumptions behind every number.`

// PricingAgent answers usage and cost questions about the platform.
type PricingAgent struct {
	provider llm.Provider
	logger   logging.Logger
}

func NewPricingAgent(provider llm.Provider, logger logging.Logger) *PricingAgent {
	return &PricingAgent{provider: provider, logger: logger}
}

func (a *PricingAgent) Name() string { return "pricing" }

func (a *PricingAgent) Description() string {
	return "Answers questions about platform pricing and estimates usage costs."
}

func (a *PricingAgent) Parameters() map[string]interface{} {
	return params(map[string]interface{}{
		"question": prop("string", "The pricing question to answer"),
	}, "question")
}

type pricingArgs struct {
	Question string `json:"question"`
}

func (a *PricingAgent) Run(ctx context.Context, rawArgs json.RawMessage, out *session.OutputMessage) Response {
	var args pricingArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return Errorf("invalid pricing arguments: %v", err)
	}
	if args.Question == "" {
		return Errorf("pricing requires a question")
	}

	resp := a.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: session.RoleSystem, Content: pricingSystemPrompt},
			{Role: session.RoleUser, Content: args.Question},
		},
	})
	if !resp.Status {
		return Errorf("failed to answer pricing question: %s", resp.Content)
	}

	content := session.NewTextContent(a.Name())
	content.Status = session.StatusSuccess
	content.StatusMessage = "Pricing estimate"
	content.Text = resp.Content
	out.AddContent(content)

	return Success("pricing question answered", map[string]interface{}{
		"answer": resp.Content,
	})
}
