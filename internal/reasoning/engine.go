// Package reasoning runs the tool-calling loop that turns a user request
// into agent invocations and a final answer.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"showrunner/internal/agent"
	"showrunner/internal/session"
	"showrunner/internal/videodb"
	"showrunner/pkg/llm"
	"showrunner/pkg/logging"
)

// ErrCompletionFailed reports a model completion that came back with
// status false. The run aborts; there are no retries.
var ErrCompletionFailed = errors.New("model completion failed")

// ErrRunStopped reports a run aborted by a stop signal.
var ErrRunStopped = errors.New("run stopped")

// Store is the persistence surface the engine needs. Store failures are
// fatal to the run.
type Store interface {
	CreateSession(ctx context.Context, sess *session.Session) error
	GetContextMessages(ctx context.Context, sessionID string) ([]session.ContextMessage, error)
	SaveContextMessages(ctx context.Context, sessionID string, messages []session.ContextMessage) error
	SaveMessage(ctx context.Context, msg session.BaseMessage) error
}

// Inventory lists collection content for context seeding.
type Inventory interface {
	Videos(ctx context.Context, collectionID string) ([]videodb.Video, error)
	Images(ctx context.Context, collectionID string) ([]videodb.Image, error)
}

// Config tunes the engine.
type Config struct {
	// MaxIterations bounds model completions per run. Default 10.
	MaxIterations int
	// Workers bounds concurrent agent invocations per tool batch. Default 4.
	Workers int
}

// Engine owns the dependencies shared by all runs.
type Engine struct {
	provider  llm.Provider
	registry  *agent.Registry
	invoker   *agent.Invoker
	store     Store
	inventory Inventory
	sink      session.ProgressSink
	logger    logging.Logger

	maxIterations int
	workers       int
}

// NewEngine creates an engine.
func NewEngine(provider llm.Provider, registry *agent.Registry, store Store, inventory Inventory, sink session.ProgressSink, logger logging.Logger, cfg Config) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if sink == nil {
		sink = session.NoopSink{}
	}
	return &Engine{
		provider:      provider,
		registry:      registry,
		invoker:       agent.NewInvoker(logger),
		store:         store,
		inventory:     inventory,
		sink:          sink,
		logger:        logger,
		maxIterations: cfg.MaxIterations,
		workers:       cfg.Workers,
	}
}

// Request describes one reasoning run.
type Request struct {
	SessionID    string
	ConvID       string
	CollectionID string
	VideoID      string
	Message      string
	Agents       []string
}

// Run is a single in-flight reasoning run. Stop may be called from any
// goroutine; the run notices it at the next iteration boundary.
type Run struct {
	engine  *Engine
	req     Request
	out     *session.OutputMessage
	stopped atomic.Bool
}

// NewRun prepares a run for a request.
func (e *Engine) NewRun(req Request) *Run {
	return &Run{
		engine: e,
		req:    req,
		out:    session.NewOutputMessage(req.SessionID, req.ConvID, e.sink),
	}
}

// Stop requests a cooperative abort. In-flight completions and agent
// invocations finish; no new iteration starts.
func (r *Run) Stop() {
	r.stopped.Store(true)
}

// Execute drives the run to completion and returns the final output
// message. The returned error is non-nil for run-level failures:
// completion failure, persistence failure, stop, or invalid agent
// selection.
func (r *Run) Execute(ctx context.Context) (session.BaseMessage, error) {
	e := r.engine
	start := time.Now()
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	log := e.logger.WithFields(logging.Fields{
		"session_id": r.req.SessionID,
		"conv_id":    r.req.ConvID,
	})

	agents, err := e.registry.Subset(r.req.Agents)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return r.fail(fmt.Sprintf("Invalid agent selection: %v", err)), err
	}
	tools := agent.Descriptors(agents)

	if err := e.store.CreateSession(ctx, &session.Session{
		ID:           r.req.SessionID,
		CollectionID: r.req.CollectionID,
		VideoID:      r.req.VideoID,
	}); err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return r.fail("Failed to open the session"), fmt.Errorf("create session: %w", err)
	}

	messages, err := e.store.GetContextMessages(ctx, r.req.SessionID)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return r.fail("Failed to load the conversation"), fmt.Errorf("load context: %w", err)
	}

	// Seed the system message exactly once per session.
	if len(messages) == 0 {
		messages = append(messages, session.SystemMessage(e.seedSystemPrompt(ctx, r.req.CollectionID, r.req.VideoID)))
	}
	messages = append(messages, session.UserMessage(r.req.Message))

	if err := e.store.SaveMessage(ctx, session.NewInputMessage(r.req.SessionID, r.req.ConvID, r.req.Message)); err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return r.fail("Failed to record the request"), fmt.Errorf("save input message: %w", err)
	}

	steps := 0
	defer func() { stepsPerRun.Observe(float64(steps)) }()

	for iteration := 0; iteration < e.maxIterations; iteration++ {
		if r.stopped.Load() {
			runsTotal.WithLabelValues("stopped").Inc()
			snapshot := r.fail("Run stopped")
			r.persist(ctx, messages, log)
			return snapshot, ErrRunStopped
		}
		if ctx.Err() != nil {
			runsTotal.WithLabelValues("stopped").Inc()
			snapshot := r.fail("Run cancelled")
			return snapshot, ctx.Err()
		}

		resp := e.complete(ctx, llm.Request{Messages: session.ToLLMMessages(messages), Tools: tools})
		steps++
		if !resp.Status {
			log.WithField("detail", resp.Content).Error("Completion failed, aborting run")
			runsTotal.WithLabelValues("error").Inc()
			snapshot := r.fail("The model request failed. Please try again.")
			r.persist(ctx, messages, log)
			return snapshot, fmt.Errorf("%w: %s", ErrCompletionFailed, resp.Content)
		}

		lastIteration := iteration == e.maxIterations-1

		// A tool batch on the final permitted iteration is still dispatched
		// so its results land in the context; the loop then terminates.
		if len(resp.ToolCalls) > 0 {
			messages = append(messages, session.AssistantMessage(resp.Content, resp.ToolCalls))
			messages = append(messages, r.dispatch(ctx, resp.ToolCalls)...)
			if !lastIteration {
				continue
			}
		} else {
			// Termination: natural stop, or the iteration budget is spent.
			messages = append(messages, session.AssistantMessage(resp.Content, nil))
		}

		summary := resp.Content
		if !lastIteration {
			summaryResp := e.complete(ctx, llm.Request{
				Messages: append(
					[]llm.Message{{Role: session.RoleSystem, Content: summaryPrompt}},
					session.ToLLMMessages(session.CurrentRunContext(messages))...),
			})
			if !summaryResp.Status {
				log.WithField("detail", summaryResp.Content).Error("Summary completion failed, aborting run")
				runsTotal.WithLabelValues("error").Inc()
				snapshot := r.fail("The model request failed. Please try again.")
				r.persist(ctx, messages, log)
				return snapshot, fmt.Errorf("%w: %s", ErrCompletionFailed, summaryResp.Content)
			}
			steps++
			summary = summaryResp.Content
		}

		content := session.NewTextContent("")
		content.Status = session.StatusSuccess
		content.StatusMessage = summaryStatusMessage
		content.Text = summary
		r.out.AddContent(content)
		r.out.SetStatus(session.StatusSuccess)
		break
	}

	if err := r.persist(ctx, messages, log); err != nil {
		runsTotal.WithLabelValues("error").Inc()
		snapshot := r.fail("Failed to save the conversation")
		// Best effort: record the failed outcome even though the context
		// write did not land.
		if saveErr := e.store.SaveMessage(ctx, snapshot); saveErr != nil {
			log.WithError(saveErr).Error("Failed to record failed run outcome")
		}
		return snapshot, err
	}

	runsTotal.WithLabelValues("success").Inc()
	return r.out.Snapshot(), nil
}

// dispatch runs one tool batch on a bounded worker pool and returns the
// tool messages in the order the model requested them. A failing agent
// never cancels its siblings.
func (r *Run) dispatch(ctx context.Context, calls []llm.ToolCall) []session.ContextMessage {
	e := r.engine
	toolBatchSize.Observe(float64(len(calls)))

	results := make([]agent.Response, len(calls))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call llm.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// A stop signalled mid-batch short-circuits calls that have not
			// started yet; in-flight agents finish.
			if r.stopped.Load() {
				results[idx] = agent.Errorf("run stopped before agent %s started", call.Name)
				return
			}
			results[idx] = r.invokeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()

	// Fold results back in the order the model asked for them. Errors are
	// ordinary tool results; the model decides how to react.
	anyError := false
	out := make([]session.ContextMessage, 0, len(calls))
	for i, call := range calls {
		agentInvocations.WithLabelValues(call.Name, string(results[i].Status)).Inc()
		if results[i].Status == session.StatusError {
			anyError = true
		}
		out = append(out, session.ToolMessage(results[i].JSON(), call.ID))
	}
	// The aggregate status turns error as soon as any call fails; a clean
	// summarization at the end of the run still moves it back to success.
	if anyError {
		r.out.SetStatus(session.StatusError)
	}
	return out
}

func (r *Run) invokeOne(ctx context.Context, call llm.ToolCall) agent.Response {
	a, ok := r.engine.registry.Get(call.Name)
	if !ok {
		return agent.Errorf("agent %q not found", call.Name)
	}
	args := mergeSessionArgs(call.Arguments, r.req.CollectionID, r.req.VideoID)
	return r.engine.invoker.Invoke(ctx, a, args, r.out)
}

func (e *Engine) complete(ctx context.Context, req llm.Request) llm.Response {
	resp := e.provider.Complete(ctx, req)
	if resp.Status {
		completionsTotal.WithLabelValues("success").Inc()
		completionTokens.Add(float64(resp.TotalTokens))
	} else {
		completionsTotal.WithLabelValues("error").Inc()
	}
	return resp
}

// fail marks the output as errored with a user-facing explanation and
// pushes the final state.
func (r *Run) fail(message string) session.BaseMessage {
	content := session.NewTextContent("")
	content.Status = session.StatusError
	content.StatusMessage = message
	content.Text = message
	r.out.AddContent(content)
	r.out.SetStatus(session.StatusError)
	return r.out.Snapshot()
}

// persist writes the reasoning context (replace-on-write) and the output
// message.
func (r *Run) persist(ctx context.Context, messages []session.ContextMessage, log logging.Entry) error {
	if err := r.engine.store.SaveContextMessages(ctx, r.req.SessionID, messages); err != nil {
		log.WithError(err).Error("Failed to persist reasoning context")
		return fmt.Errorf("save context: %w", err)
	}
	if err := r.engine.store.SaveMessage(ctx, r.out.Snapshot()); err != nil {
		log.WithError(err).Error("Failed to persist output message")
		return fmt.Errorf("save output message: %w", err)
	}
	return nil
}

// seedSystemPrompt builds the first system message of a session, embedding
// the collection inventory. Inventory failures degrade to a bare prompt.
func (e *Engine) seedSystemPrompt(ctx context.Context, collectionID, videoID string) string {
	if e.inventory == nil || collectionID == "" {
		return systemPrompt
	}
	videos, err := e.inventory.Videos(ctx, collectionID)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to list videos for context seeding")
	}
	images, err := e.inventory.Images(ctx, collectionID)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to list images for context seeding")
	}
	return systemPrompt + inventoryPrompt(collectionID, videoID, videos, images)
}

// mergeSessionArgs fills collection_id and video_id into tool arguments
// when the model left them out, so agents inherit the session scope.
func mergeSessionArgs(rawArgs, collectionID, videoID string) json.RawMessage {
	args := map[string]interface{}{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			// Leave malformed arguments alone; the agent reports the
			// decode failure itself.
			return json.RawMessage(rawArgs)
		}
	}
	if _, ok := args["collection_id"]; !ok && collectionID != "" {
		args["collection_id"] = collectionID
	}
	if _, ok := args["video_id"]; !ok && videoID != "" {
		args["video_id"] = videoID
	}
	merged, err := json.Marshal(args)
	if err != nil {
		return json.RawMessage(rawArgs)
	}
	return merged
}
