package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"showrunner/internal/session"
	"showrunner/internal/videodb"
	"showrunner/pkg/llm"
	"showrunner/pkg/logging"
)

type clipSource interface {
	Transcript(ctx context.Context, collectionID, videoID string) (*videodb.Transcript, error)
	IndexSpokenWords(ctx context.Context, collectionID, videoID string) error
	GenerateStream(ctx context.Context, collectionID, videoID string, timeline [][2]float64) (string, error)
}

// PromptClipAgent cuts a clip from a video by asking the model which
// transcript segments match a user prompt. The transcript is split into
// timed segments, each batch is scored by the model concurrently, and the
// selected segments are compiled into a stream.
type PromptClipAgent struct {
	vdb      clipSource
	provider llm.Provider
	logger   logging.Logger

	segmentWords int
	batchSize    int
	concurrency  int
}

func NewPromptClipAgent(vdb clipSource, provider llm.Provider, logger logging.Logger) *PromptClipAgent {
	return &PromptClipAgent{
		vdb:          vdb,
		provider:     provider,
		logger:       logger,
		segmentWords: 120,
		batchSize:    20,
		concurrency:  4,
	}
}

func (a *PromptClipAgent) Name() string { return "prompt_clip" }

func (a *PromptClipAgent) Description() string {
	return "Creates a clip of the moments in a video that match a natural language prompt."
}

func (a *PromptClipAgent) Parameters() map[string]interface{} {
	return params(map[string]interface{}{
		"prompt":        prop("string", "What the clip should show, e.g. 'every time the demo crashes'"),
		"video_id":      prop("string", "Video to clip from"),
		"collection_id": prop("string", "Collection containing the video"),
	}, "prompt", "video_id")
}

type promptClipArgs struct {
	Prompt       string `json:"prompt"`
	VideoID      string `json:"video_id"`
	CollectionID string `json:"collection_id"`
}

type clipSegment struct {
	Index int
	Start float64
	End   float64
	Text  string
}

func (a *PromptClipAgent) Run(ctx context.Context, rawArgs json.RawMessage, out *session.OutputMessage) Response {
	var args promptClipArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return Errorf("invalid prompt_clip arguments: %v", err)
	}
	if args.Prompt == "" || args.VideoID == "" {
		return Errorf("prompt_clip requires a prompt and a video_id")
	}

	content := session.NewVideoContent(a.Name())
	content.StatusMessage = "Finding matching moments"
	out.AddContent(content)

	fail := func(format string, failArgs ...interface{}) Response {
		out.Update(func(body *session.BaseMessage) {
			last := &body.Content[len(body.Content)-1]
			last.Status = session.StatusError
			last.StatusMessage = "Clip generation failed"
		})
		return Errorf(format, failArgs...)
	}

	transcript, err := a.fetchTranscript(ctx, args.CollectionID, args.VideoID)
	if err != nil {
		return fail("failed to get transcript for %s: %v", args.VideoID, err)
	}
	segments := segmentTranscript(transcript.Words, a.segmentWords)
	if len(segments) == 0 {
		return fail("video %s has no spoken content to clip", args.VideoID)
	}

	matched, err := a.matchSegments(ctx, args.Prompt, segments)
	if err != nil {
		return fail("failed to match segments: %v", err)
	}
	if len(matched) == 0 {
		return fail("no moments matched %q", args.Prompt)
	}

	timeline := make([][2]float64, 0, len(matched))
	for _, seg := range matched {
		timeline = append(timeline, [2]float64{seg.Start, seg.End})
	}
	streamURL, err := a.vdb.GenerateStream(ctx, args.CollectionID, args.VideoID, timeline)
	if err != nil {
		return fail("failed to compile clip: %v", err)
	}

	out.Update(func(body *session.BaseMessage) {
		last := &body.Content[len(body.Content)-1]
		last.Status = session.StatusSuccess
		last.StatusMessage = "Here is your clip"
		last.Video = &session.VideoData{
			ID:           args.VideoID,
			CollectionID: args.CollectionID,
			StreamURL:    streamURL,
		}
	})

	return Success("clip generated", map[string]interface{}{
		"video_id":      args.VideoID,
		"stream_url":    streamURL,
		"segment_count": len(matched),
	})
}

func (a *PromptClipAgent) fetchTranscript(ctx context.Context, collectionID, videoID string) (*videodb.Transcript, error) {
	transcript, err := a.vdb.Transcript(ctx, collectionID, videoID)
	if err == nil {
		return transcript, nil
	}
	if indexErr := a.vdb.IndexSpokenWords(ctx, collectionID, videoID); indexErr != nil {
		return nil, err
	}
	return a.vdb.Transcript(ctx, collectionID, videoID)
}

// matchSegments scores segment batches against the prompt concurrently and
// returns the selected segments in timeline order.
func (a *PromptClipAgent) matchSegments(ctx context.Context, prompt string, segments []clipSegment) ([]clipSegment, error) {
	var (
		mu       sync.Mutex
		selected []clipSegment
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.concurrency)

	for start := 0; start < len(segments); start += a.batchSize {
		end := start + a.batchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch := segments[start:end]
		group.Go(func() error {
			indices, err := a.scoreBatch(groupCtx, prompt, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, idx := range indices {
				for _, seg := range batch {
					if seg.Index == idx {
						selected = append(selected, seg)
					}
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].Index < selected[j].Index })
	return selected, nil
}

func (a *PromptClipAgent) scoreBatch(ctx context.Context, prompt string, batch []clipSegment) ([]int, error) {
	var sb strings.Builder
	for _, seg := range batch {
		fmt.Fprintf(&sb, "[%d] %s\n", seg.Index, seg.Text)
	}

	resp := a.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: session.RoleSystem, Content: "You select transcript segments matching a user prompt. " +
				`Reply with a JSON object of the form {"segments": [<segment numbers>]}. ` +
				"Select only segments that clearly match; an empty list is a valid answer."},
			{Role: session.RoleUser, Content: fmt.Sprintf("Prompt: %s\n\nSegments:\n%s", prompt, sb.String())},
		},
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	})
	if !resp.Status {
		return nil, fmt.Errorf("segment scoring failed: %s", resp.Content)
	}

	var decoded struct {
		Segments []int `json:"segments"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &decoded); err != nil {
		return nil, fmt.Errorf("segment scoring returned invalid JSON: %w", err)
	}
	return decoded.Segments, nil
}

// segmentTranscript groups timed words into fixed-size segments.
func segmentTranscript(words []videodb.TranscriptWord, segmentWords int) []clipSegment {
	if segmentWords <= 0 {
		segmentWords = 120
	}
	var segments []clipSegment
	for start := 0; start < len(words); start += segmentWords {
		end := start + segmentWords
		if end > len(words) {
			end = len(words)
		}
		chunk := words[start:end]
		texts := make([]string, 0, len(chunk))
		for _, word := range chunk {
			texts = append(texts, word.Text)
		}
		segments = append(segments, clipSegment{
			Index: len(segments),
			Start: chunk[0].Start,
			End:   chunk[len(chunk)-1].End,
			Text:  strings.Join(texts, " "),
		})
	}
	return segments
}
