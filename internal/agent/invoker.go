package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"showrunner/internal/session"
	"showrunner/pkg/logging"
)

// Invoker executes agents on behalf of the reasoning engine. It announces
// the invocation on the output message before running and converts every
// failure mode, including panics, into an error Response. It never retries.
type Invoker struct {
	logger logging.Logger
}

// NewInvoker creates an invoker.
func NewInvoker(logger logging.Logger) *Invoker {
	return &Invoker{logger: logger}
}

// Invoke runs one agent.
func (inv *Invoker) Invoke(ctx context.Context, a Agent, args json.RawMessage, out *session.OutputMessage) (resp Response) {
	out.Update(func(body *session.BaseMessage) {
		body.Actions = append(body.Actions, fmt.Sprintf("Running @%s agent", a.Name()))
		for _, existing := range body.Agents {
			if existing == a.Name() {
				return
			}
		}
		body.Agents = append(body.Agents, a.Name())
	})

	defer func() {
		if r := recover(); r != nil {
			inv.logger.WithFields(logging.Fields{
				"agent": a.Name(),
				"panic": r,
			}).Error("Agent panicked")
			resp = Errorf("agent %s failed: %v", a.Name(), r)
		}
	}()

	resp = a.Run(ctx, args, out)
	if resp.Status != session.StatusSuccess && resp.Status != session.StatusError {
		resp.Status = session.StatusError
	}
	return resp
}
