package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"showrunner/internal/session"
	"showrunner/internal/videodb"
	"showrunner/pkg/llm"
	"showrunner/pkg/logging"
)

// scriptedProvider answers completions from a script or a handler.
type scriptedProvider struct {
	mu      sync.Mutex
	handler func(req llm.Request) llm.Response
	calls   int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req llm.Request) llm.Response {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.handler(req)
}

type fakeClipSource struct {
	transcript   *videodb.Transcript
	indexedCalls int
	timeline     [][2]float64
}

func (f *fakeClipSource) Transcript(context.Context, string, string) (*videodb.Transcript, error) {
	if f.transcript == nil {
		return nil, fmt.Errorf("transcript not found")
	}
	return f.transcript, nil
}

func (f *fakeClipSource) IndexSpokenWords(context.Context, string, string) error {
	f.indexedCalls++
	return nil
}

func (f *fakeClipSource) GenerateStream(_ context.Context, _, _ string, timeline [][2]float64) (string, error) {
	f.timeline = timeline
	return "https://streams.example/clip.m3u8", nil
}

func wordsFor(count int) []videodb.TranscriptWord {
	words := make([]videodb.TranscriptWord, count)
	for i := range words {
		words[i] = videodb.TranscriptWord{
			Start: float64(i),
			End:   float64(i) + 1,
			Text:  fmt.Sprintf("word%d", i),
		}
	}
	return words
}

func TestSegmentTranscriptTimesSegments(t *testing.T) {
	segments := segmentTranscript(wordsFor(250), 100)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if segments[0].Start != 0 || segments[0].End != 100 {
		t.Fatalf("unexpected first segment bounds %+v", segments[0])
	}
	if segments[2].Start != 200 || segments[2].End != 250 {
		t.Fatalf("unexpected last segment bounds %+v", segments[2])
	}
	if !strings.Contains(segments[1].Text, "word150") {
		t.Fatalf("segment text missing words: %q", segments[1].Text[:40])
	}
}

func TestPromptClipCompilesMatchedSegments(t *testing.T) {
	vdb := &fakeClipSource{
		transcript: &videodb.Transcript{VideoID: "video-1", Words: wordsFor(240)},
	}
	provider := &scriptedProvider{
		handler: func(req llm.Request) llm.Response {
			if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
				t.Fatal("expected json_object response format")
			}
			// Select the first segment mentioned in each batch.
			return llm.Response{Status: true, Content: `{"segments": [0]}`, FinishReason: llm.FinishStop}
		},
	}

	a := NewPromptClipAgent(vdb, provider, logging.NewLogger())
	a.segmentWords = 80

	out := session.NewOutputMessage("session-1", "conv-1", nil)
	resp := a.Run(context.Background(), json.RawMessage(`{"prompt": "the demo", "video_id": "video-1", "collection_id": "coll-1"}`), out)

	if resp.Status != session.StatusSuccess {
		t.Fatalf("expected success, got %+v", resp)
	}
	if len(vdb.timeline) != 1 || vdb.timeline[0][0] != 0 || vdb.timeline[0][1] != 80 {
		t.Fatalf("unexpected timeline %+v", vdb.timeline)
	}
	snapshot := out.Snapshot()
	last := snapshot.Content[len(snapshot.Content)-1]
	if last.Type != session.ContentTypeVideo || last.Video == nil || last.Video.StreamURL == "" {
		t.Fatalf("expected video content with stream, got %+v", last)
	}
}

func TestPromptClipFailsWhenNothingMatches(t *testing.T) {
	vdb := &fakeClipSource{
		transcript: &videodb.Transcript{VideoID: "video-1", Words: wordsFor(100)},
	}
	provider := &scriptedProvider{
		handler: func(llm.Request) llm.Response {
			return llm.Response{Status: true, Content: `{"segments": []}`, FinishReason: llm.FinishStop}
		},
	}

	a := NewPromptClipAgent(vdb, provider, logging.NewLogger())
	out := session.NewOutputMessage("session-1", "conv-1", nil)
	resp := a.Run(context.Background(), json.RawMessage(`{"prompt": "aliens", "video_id": "video-1"}`), out)

	if resp.Status != session.StatusError {
		t.Fatalf("expected error, got %+v", resp)
	}
	snapshot := out.Snapshot()
	if snapshot.Content[len(snapshot.Content)-1].Status != session.StatusError {
		t.Fatal("expected content block marked as error")
	}
}

func TestPromptClipSurfacesProviderFailure(t *testing.T) {
	vdb := &fakeClipSource{
		transcript: &videodb.Transcript{VideoID: "video-1", Words: wordsFor(100)},
	}
	provider := &scriptedProvider{
		handler: func(llm.Request) llm.Response {
			return llm.Response{Status: false, Content: "Error: rate limited"}
		},
	}

	a := NewPromptClipAgent(vdb, provider, logging.NewLogger())
	out := session.NewOutputMessage("session-1", "conv-1", nil)
	resp := a.Run(context.Background(), json.RawMessage(`{"prompt": "goals", "video_id": "video-1"}`), out)

	if resp.Status != session.StatusError {
		t.Fatalf("expected error, got %+v", resp)
	}
	if !strings.Contains(resp.Message, "rate limited") {
		t.Fatalf("expected provider error in message, got %q", resp.Message)
	}
}
