package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"showrunner/internal/agent"
	"showrunner/internal/session"
	"showrunner/internal/videodb"
	"showrunner/pkg/llm"
	"showrunner/pkg/logging"
)

// seqProvider replays a scripted sequence of completions and records every
// request it sees.
type seqProvider struct {
	mu        sync.Mutex
	responses []llm.Response
	requests  []llm.Request
}

func (p *seqProvider) Name() string { return "seq" }

func (p *seqProvider) Complete(_ context.Context, req llm.Request) llm.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return llm.Response{Status: true, Content: "done", FinishReason: llm.FinishStop}
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp
}

func (p *seqProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// memStore is an in-memory Store with switchable failures.
type memStore struct {
	mu              sync.Mutex
	contexts        map[string][]session.ContextMessage
	messages        []session.BaseMessage
	failLoad        bool
	failSaveContext bool
	failSaveMessage bool
}

func newMemStore() *memStore {
	return &memStore{contexts: make(map[string][]session.ContextMessage)}
}

func (s *memStore) CreateSession(context.Context, *session.Session) error { return nil }

func (s *memStore) GetContextMessages(_ context.Context, sessionID string) ([]session.ContextMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad {
		return nil, errors.New("load failed")
	}
	return append([]session.ContextMessage(nil), s.contexts[sessionID]...), nil
}

func (s *memStore) SaveContextMessages(_ context.Context, sessionID string, messages []session.ContextMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaveContext {
		return errors.New("save context failed")
	}
	s.contexts[sessionID] = append([]session.ContextMessage(nil), messages...)
	return nil
}

func (s *memStore) SaveMessage(_ context.Context, msg session.BaseMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaveMessage {
		return errors.New("save message failed")
	}
	s.messages = append(s.messages, msg)
	return nil
}

type fakeInventory struct {
	videos []videodb.Video
	images []videodb.Image
}

func (f *fakeInventory) Videos(context.Context, string) ([]videodb.Video, error) {
	return f.videos, nil
}

func (f *fakeInventory) Images(context.Context, string) ([]videodb.Image, error) {
	return f.images, nil
}

// testAgent is a scriptable agent for engine tests.
type testAgent struct {
	name    string
	latency func() time.Duration
	run     func(args json.RawMessage) agent.Response

	mu    sync.Mutex
	calls []json.RawMessage
}

func (a *testAgent) Name() string        { return a.name }
func (a *testAgent) Description() string { return "test agent " + a.name }
func (a *testAgent) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"value": map[string]interface{}{"type": "string"},
		},
	}
}

func (a *testAgent) Run(_ context.Context, args json.RawMessage, _ *session.OutputMessage) agent.Response {
	a.mu.Lock()
	a.calls = append(a.calls, args)
	a.mu.Unlock()
	if a.latency != nil {
		time.Sleep(a.latency())
	}
	if a.run != nil {
		return a.run(args)
	}
	return agent.Success("ok from "+a.name, nil)
}

func (a *testAgent) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func newTestEngine(t *testing.T, provider llm.Provider, store Store, agents ...agent.Agent) *Engine {
	t.Helper()
	registry := agent.NewRegistry()
	if err := registry.Register(agents...); err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewEngine(provider, registry, store, &fakeInventory{
		videos: []videodb.Video{{ID: "v-1", Name: "Keynote", Length: 120}},
	}, nil, logging.NewLogger(), Config{MaxIterations: 10, Workers: 4})
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestRunSingleToolRoundTrip(t *testing.T) {
	provider := &seqProvider{responses: []llm.Response{
		{Status: true, FinishReason: llm.FinishToolCalls, ToolCalls: []llm.ToolCall{
			toolCall("call-1", "search", `{"value":"sunset"}`),
		}},
		{Status: true, Content: "Found one matching clip.", FinishReason: llm.FinishStop},
		{Status: true, Content: "I searched and found one clip.", FinishReason: llm.FinishStop},
	}}
	store := newMemStore()
	searcher := &testAgent{name: "search"}
	engine := newTestEngine(t, provider, store, searcher)

	run := engine.NewRun(Request{
		SessionID:    "session-1",
		ConvID:       "conv-1",
		CollectionID: "coll-1",
		Message:      "find the sunset",
	})
	out, err := run.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if out.Status != session.StatusSuccess {
		t.Fatalf("expected success, got %q", out.Status)
	}
	if searcher.callCount() != 1 {
		t.Fatalf("expected 1 agent call, got %d", searcher.callCount())
	}

	// Three completions: step with tools, terminating step, summary.
	if provider.requestCount() != 3 {
		t.Fatalf("expected 3 completions, got %d", provider.requestCount())
	}

	persisted := store.contexts["session-1"]
	roles := make([]string, 0, len(persisted))
	for _, msg := range persisted {
		roles = append(roles, msg.Role)
	}
	want := []string{"system", "user", "assistant", "tool", "assistant"}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected context roles %v", roles)
	}
	if persisted[2].ToolCalls[0].ID != "call-1" {
		t.Fatalf("assistant message lost tool call id: %+v", persisted[2])
	}
	if persisted[3].ToolCallID != "call-1" {
		t.Fatalf("tool message not paired: %+v", persisted[3])
	}

	// The summary request carries only the suffix from the user message on.
	summaryReq := provider.requests[2]
	if summaryReq.Messages[0].Role != "system" || !strings.Contains(summaryReq.Messages[0].Content, "Summarize") {
		t.Fatalf("expected summary instruction first, got %+v", summaryReq.Messages[0])
	}
	if summaryReq.Messages[1].Role != "user" || summaryReq.Messages[1].Content != "find the sunset" {
		t.Fatalf("expected suffix to start at the user message, got %+v", summaryReq.Messages[1])
	}

	final := out.Content[len(out.Content)-1]
	if final.Text != "I searched and found one clip." {
		t.Fatalf("expected summary as final text, got %q", final.Text)
	}
}

func TestDispatchPreservesRequestOrderUnderRandomLatency(t *testing.T) {
	calls := make([]llm.ToolCall, 6)
	for i := range calls {
		calls[i] = toolCall(fmt.Sprintf("call-%d", i), "echo", fmt.Sprintf(`{"value":"%d"}`, i))
	}
	provider := &seqProvider{responses: []llm.Response{
		{Status: true, FinishReason: llm.FinishToolCalls, ToolCalls: calls},
		{Status: true, Content: "all done", FinishReason: llm.FinishStop},
		{Status: true, Content: "summary", FinishReason: llm.FinishStop},
	}}
	store := newMemStore()
	echo := &testAgent{
		name:    "echo",
		latency: func() time.Duration { return time.Duration(rand.Intn(20)) * time.Millisecond },
		run: func(args json.RawMessage) agent.Response {
			var decoded struct {
				Value string `json:"value"`
			}
			_ = json.Unmarshal(args, &decoded)
			return agent.Success("echo "+decoded.Value, nil)
		},
	}
	engine := newTestEngine(t, provider, store, echo)

	run := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", Message: "echo everything"})
	if _, err := run.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	persisted := store.contexts["session-1"]
	var toolMessages []session.ContextMessage
	for _, msg := range persisted {
		if msg.Role == session.RoleTool {
			toolMessages = append(toolMessages, msg)
		}
	}
	if len(toolMessages) != 6 {
		t.Fatalf("expected 6 tool messages, got %d", len(toolMessages))
	}
	for i, msg := range toolMessages {
		wantID := fmt.Sprintf("call-%d", i)
		if msg.ToolCallID != wantID {
			t.Fatalf("position %d: expected %s, got %s", i, wantID, msg.ToolCallID)
		}
		if !strings.Contains(msg.Content, fmt.Sprintf("echo %d", i)) {
			t.Fatalf("position %d: result does not match call: %q", i, msg.Content)
		}
	}
}

func TestAgentErrorDoesNotCancelSiblings(t *testing.T) {
	provider := &seqProvider{responses: []llm.Response{
		{Status: true, FinishReason: llm.FinishToolCalls, ToolCalls: []llm.ToolCall{
			toolCall("call-0", "steady", `{}`),
			toolCall("call-1", "flaky", `{}`),
			toolCall("call-2", "steady", `{}`),
		}},
		{Status: true, Content: "partial results", FinishReason: llm.FinishStop},
		{Status: true, Content: "one step failed", FinishReason: llm.FinishStop},
	}}
	store := newMemStore()
	steady := &testAgent{name: "steady"}
	flaky := &testAgent{
		name: "flaky",
		run: func(json.RawMessage) agent.Response {
			return agent.Errorf("flaky agent failed: backend down")
		},
	}
	engine := newTestEngine(t, provider, store, steady, flaky)

	run := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", Message: "do three things"})
	out, err := run.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Status != session.StatusSuccess {
		t.Fatalf("expected run to complete despite agent error, got %q", out.Status)
	}
	if steady.callCount() != 2 {
		t.Fatalf("expected siblings to run, got %d calls", steady.callCount())
	}

	persisted := store.contexts["session-1"]
	var errorResult session.ContextMessage
	for _, msg := range persisted {
		if msg.ToolCallID == "call-1" {
			errorResult = msg
		}
	}
	if !strings.Contains(errorResult.Content, "backend down") {
		t.Fatalf("expected error folded into tool result, got %q", errorResult.Content)
	}
}

func TestPanickingAgentBecomesErrorResult(t *testing.T) {
	provider := &seqProvider{responses: []llm.Response{
		{Status: true, FinishReason: llm.FinishToolCalls, ToolCalls: []llm.ToolCall{
			toolCall("call-0", "explosive", `{}`),
		}},
		{Status: true, Content: "handled", FinishReason: llm.FinishStop},
		{Status: true, Content: "summary", FinishReason: llm.FinishStop},
	}}
	store := newMemStore()
	explosive := &testAgent{
		name: "explosive",
		run:  func(json.RawMessage) agent.Response { panic("kaboom") },
	}
	engine := newTestEngine(t, provider, store, explosive)

	run := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", Message: "try it"})
	if _, err := run.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	persisted := store.contexts["session-1"]
	found := false
	for _, msg := range persisted {
		if msg.ToolCallID == "call-0" && strings.Contains(msg.Content, "kaboom") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected panic converted into tool error result")
	}
}

func TestCompletionFailureAbortsRun(t *testing.T) {
	provider := &seqProvider{responses: []llm.Response{
		{Status: false, Content: "Error: vendor down"},
	}}
	store := newMemStore()
	engine := newTestEngine(t, provider, store, &testAgent{name: "search"})

	run := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", Message: "hello"})
	out, err := run.Execute(context.Background())
	if !errors.Is(err, ErrCompletionFailed) {
		t.Fatalf("expected ErrCompletionFailed, got %v", err)
	}
	if out.Status != session.StatusError {
		t.Fatalf("expected error status, got %q", out.Status)
	}
	if provider.requestCount() != 1 {
		t.Fatalf("expected no retry, got %d completions", provider.requestCount())
	}
	// Context up to the failure is still persisted.
	if len(store.contexts["session-1"]) == 0 {
		t.Fatal("expected context persisted on abort")
	}
}

func TestIterationBudgetExhaustionUsesDirectSummary(t *testing.T) {
	// Provider always asks for more tools; the final permitted iteration
	// must terminate with the completion content as the summary.
	looping := llm.Response{
		Status: true, FinishReason: llm.FinishToolCalls,
		ToolCalls: []llm.ToolCall{toolCall("call-x", "echo", `{}`)},
	}
	provider := &seqProvider{responses: []llm.Response{
		looping, looping,
		{Status: true, Content: "Best effort before the limit.", FinishReason: llm.FinishToolCalls,
			ToolCalls: []llm.ToolCall{toolCall("call-z", "echo", `{}`)}},
	}}
	store := newMemStore()
	echo := &testAgent{name: "echo"}

	registry := agent.NewRegistry()
	if err := registry.Register(echo); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine := NewEngine(provider, registry, store, nil, nil, logging.NewLogger(), Config{MaxIterations: 3, Workers: 2})

	run := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", Message: "loop forever"})
	out, err := run.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if provider.requestCount() != 3 {
		t.Fatalf("expected exactly 3 completions, got %d", provider.requestCount())
	}
	if echo.callCount() != 3 {
		t.Fatalf("expected every batch dispatched, including the final one, got %d", echo.callCount())
	}
	final := out.Content[len(out.Content)-1]
	if final.Text != "Best effort before the limit." {
		t.Fatalf("expected direct content as summary, got %q", final.Text)
	}
	// Every requested tool call has a paired result, including the batch
	// from the last permitted iteration.
	persisted := store.contexts["session-1"]
	answered := map[string]bool{}
	for _, msg := range persisted {
		if msg.Role == session.RoleTool {
			answered[msg.ToolCallID] = true
		}
	}
	for _, msg := range persisted {
		for _, call := range msg.ToolCalls {
			if !answered[call.ID] {
				t.Fatalf("tool call %s has no paired result", call.ID)
			}
		}
	}
	if !answered["call-z"] {
		t.Fatal("final batch result missing from the context")
	}
}

// recordSink keeps the status of every pushed snapshot.
type recordSink struct {
	mu       sync.Mutex
	statuses []session.MsgStatus
}

func (s *recordSink) Push(update session.BaseMessage) {
	s.mu.Lock()
	s.statuses = append(s.statuses, update.Status)
	s.mu.Unlock()
}

func (s *recordSink) seen(status session.MsgStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pushed := range s.statuses {
		if pushed == status {
			return true
		}
	}
	return false
}

func TestAgentErrorEscalatesRunStatus(t *testing.T) {
	provider := &seqProvider{responses: []llm.Response{
		{Status: true, FinishReason: llm.FinishToolCalls, ToolCalls: []llm.ToolCall{
			toolCall("call-0", "flaky", `{}`),
		}},
		{Status: true, Content: "the step failed", FinishReason: llm.FinishStop},
		{Status: true, Content: "one agent failed, here is what happened", FinishReason: llm.FinishStop},
	}}
	store := newMemStore()
	flaky := &testAgent{
		name: "flaky",
		run: func(json.RawMessage) agent.Response {
			return agent.Errorf("flaky agent failed: backend down")
		},
	}
	sink := &recordSink{}

	registry := agent.NewRegistry()
	if err := registry.Register(flaky); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine := NewEngine(provider, registry, store, nil, sink, logging.NewLogger(), Config{MaxIterations: 5, Workers: 2})

	run := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", Message: "try it"})
	out, err := run.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// The aggregate status turns error as soon as the batch folds in a
	// failed call, and clients see that state.
	if !sink.seen(session.StatusError) {
		t.Fatalf("expected an error-status snapshot after the failed batch, saw %v", sink.statuses)
	}
	// A clean summarization still closes the run as success.
	if out.Status != session.StatusSuccess {
		t.Fatalf("expected terminal success after summarization, got %q", out.Status)
	}
}

func TestDispatchStoppedRunSkipsUnstartedCalls(t *testing.T) {
	echo := &testAgent{name: "echo"}
	engine := newTestEngine(t, &seqProvider{}, newMemStore(), echo)
	run := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", Message: "hello"})
	run.Stop()

	calls := []llm.ToolCall{
		toolCall("call-0", "echo", `{}`),
		toolCall("call-1", "echo", `{}`),
		toolCall("call-2", "echo", `{}`),
	}
	results := run.dispatch(context.Background(), calls)

	if echo.callCount() != 0 {
		t.Fatalf("expected no agent to start after stop, got %d calls", echo.callCount())
	}
	if len(results) != len(calls) {
		t.Fatalf("expected a result per call, got %d", len(results))
	}
	for i, msg := range results {
		if msg.ToolCallID != calls[i].ID {
			t.Fatalf("position %d: result not paired with its call: %+v", i, msg)
		}
		if !strings.Contains(msg.Content, "stopped") {
			t.Fatalf("position %d: expected stopped error result, got %q", i, msg.Content)
		}
	}
}

func TestStopSignalAbortsBetweenIterations(t *testing.T) {
	provider := &seqProvider{}
	store := newMemStore()
	engine := newTestEngine(t, provider, store, &testAgent{name: "search"})

	run := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", Message: "hello"})
	run.Stop()

	out, err := run.Execute(context.Background())
	if !errors.Is(err, ErrRunStopped) {
		t.Fatalf("expected ErrRunStopped, got %v", err)
	}
	if out.Status != session.StatusError {
		t.Fatalf("expected error status, got %q", out.Status)
	}
	if provider.requestCount() != 0 {
		t.Fatalf("expected no completions after stop, got %d", provider.requestCount())
	}
}

func TestContextSeededExactlyOncePerSession(t *testing.T) {
	provider := &seqProvider{responses: []llm.Response{
		{Status: true, Content: "first answer", FinishReason: llm.FinishStop},
		{Status: true, Content: "second answer", FinishReason: llm.FinishStop},
	}}
	store := newMemStore()
	engine := newTestEngine(t, provider, store, &testAgent{name: "search"})

	first := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", CollectionID: "coll-1", Message: "hi"})
	if _, err := first.Execute(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-2", CollectionID: "coll-1", Message: "again"})
	if _, err := second.Execute(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	systemCount := 0
	for _, msg := range store.contexts["session-1"] {
		if msg.Role == session.RoleSystem {
			systemCount++
		}
	}
	if systemCount != 1 {
		t.Fatalf("expected exactly one system message, got %d", systemCount)
	}
	seed := store.contexts["session-1"][0]
	if !strings.Contains(seed.Content, "Keynote") {
		t.Fatal("expected inventory embedded in the seed message")
	}
}

func TestDirectAnswerOnFirstStepStillSummarized(t *testing.T) {
	provider := &seqProvider{responses: []llm.Response{
		{Status: true, Content: "The collection has one video.", FinishReason: llm.FinishStop},
		{Status: true, Content: "You have one video.", FinishReason: llm.FinishStop},
	}}
	store := newMemStore()
	engine := newTestEngine(t, provider, store, &testAgent{name: "search"})

	run := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", Message: "what do I have?"})
	out, err := run.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if provider.requestCount() != 2 {
		t.Fatalf("expected step + summary completions, got %d", provider.requestCount())
	}
	if out.Content[len(out.Content)-1].Text != "You have one video." {
		t.Fatalf("unexpected summary %q", out.Content[len(out.Content)-1].Text)
	}
}

func TestPersistenceFailureIsFatalToRun(t *testing.T) {
	provider := &seqProvider{responses: []llm.Response{
		{Status: true, Content: "answer", FinishReason: llm.FinishStop},
		{Status: true, Content: "summary", FinishReason: llm.FinishStop},
	}}
	store := newMemStore()
	store.failSaveContext = true
	engine := newTestEngine(t, provider, store, &testAgent{name: "search"})

	run := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", Message: "hello"})
	out, err := run.Execute(context.Background())
	if err == nil {
		t.Fatal("expected persistence failure to fail the run")
	}
	if out.Status != session.StatusError {
		t.Fatalf("expected error status, got %q", out.Status)
	}
	// The failed outcome still lands in the message log.
	if len(store.messages) == 0 {
		t.Fatal("expected the errored output message recorded")
	}
	last := store.messages[len(store.messages)-1]
	if last.MsgType != session.MsgTypeOutput || last.Status != session.StatusError {
		t.Fatalf("expected errored output message recorded, got %+v", last)
	}
}

func TestUnknownToolNameBecomesErrorResult(t *testing.T) {
	provider := &seqProvider{responses: []llm.Response{
		{Status: true, FinishReason: llm.FinishToolCalls, ToolCalls: []llm.ToolCall{
			toolCall("call-0", "nonexistent", `{}`),
		}},
		{Status: true, Content: "recovered", FinishReason: llm.FinishStop},
		{Status: true, Content: "summary", FinishReason: llm.FinishStop},
	}}
	store := newMemStore()
	engine := newTestEngine(t, provider, store, &testAgent{name: "search"})

	run := engine.NewRun(Request{SessionID: "session-1", ConvID: "conv-1", Message: "hello"})
	if _, err := run.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	persisted := store.contexts["session-1"]
	found := false
	for _, msg := range persisted {
		if msg.ToolCallID == "call-0" && strings.Contains(msg.Content, "not found") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected unknown tool converted to error result")
	}
}

func TestMergeSessionArgsFillsScope(t *testing.T) {
	merged := mergeSessionArgs(`{"query":"goals"}`, "coll-1", "v-1")
	var decoded map[string]interface{}
	if err := json.Unmarshal(merged, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["collection_id"] != "coll-1" || decoded["video_id"] != "v-1" {
		t.Fatalf("scope not injected: %+v", decoded)
	}
	if decoded["query"] != "goals" {
		t.Fatalf("original argument lost: %+v", decoded)
	}

	merged = mergeSessionArgs(`{"video_id":"explicit"}`, "coll-1", "v-1")
	if err := json.Unmarshal(merged, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["video_id"] != "explicit" {
		t.Fatalf("explicit argument overridden: %+v", decoded)
	}
}
