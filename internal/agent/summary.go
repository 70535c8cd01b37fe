package agent

import (
	"context"
	"encoding/json"

	"showrunner/internal/session"
	"showrunner/internal/videodb"
	"showrunner/pkg/llm"
	"showrunner/pkg/logging"
)

type transcriptSource interface {
	Transcript(ctx context.Context, collectionID, videoID string) (*videodb.Transcript, error)
	IndexSpokenWords(ctx context.Context, collectionID, videoID string) error
}

// SummaryAgent summarizes a video from its spoken-word transcript. Videos
// that were never indexed get indexed on the first request.
type SummaryAgent struct {
	vdb      transcriptSource
	provider llm.Provider
	logger   logging.Logger
}

func NewSummaryAgent(vdb transcriptSource, provider llm.Provider, logger logging.Logger) *SummaryAgent {
	return &SummaryAgent{vdb: vdb, provider: provider, logger: logger}
}

func (a *SummaryAgent) Name() string { return "summary" }

func (a *SummaryAgent) Description() string {
	return "Summarizes the spoken content of a video. Optionally takes a custom prompt to steer the summary."
}

func (a *SummaryAgent) Parameters() map[string]interface{} {
	return params(map[string]interface{}{
		"video_id":      prop("string", "Video to summarize"),
		"collection_id": prop("string", "Collection containing the video"),
		"prompt":        prop("string", "Optional instruction, e.g. 'focus on the product demo'"),
	}, "video_id")
}

type summaryArgs struct {
	VideoID      string `json:"video_id"`
	CollectionID string `json:"collection_id"`
	Prompt       string `json:"prompt"`
}

func (a *SummaryAgent) Run(ctx context.Context, rawArgs json.RawMessage, out *session.OutputMessage) Response {
	var args summaryArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return Errorf("invalid summary arguments: %v", err)
	}
	if args.VideoID == "" {
		return Errorf("summary requires a video_id")
	}

	transcript, err := a.fetchTranscript(ctx, args.CollectionID, args.VideoID)
	if err != nil {
		a.logger.WithError(err).WithField("video_id", args.VideoID).Error("Transcript unavailable")
		return Errorf("failed to get transcript for %s: %v", args.VideoID, err)
	}

	instruction := args.Prompt
	if instruction == "" {
		instruction = "Summarize the video concisely for someone who has not watched it."
	}

	resp := a.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: session.RoleSystem, Content: "You summarize videos from their transcripts. " + instruction},
			{Role: session.RoleUser, Content: transcript.Text},
		},
	})
	if !resp.Status {
		return Errorf("failed to summarize video: %s", resp.Content)
	}

	content := session.NewTextContent(a.Name())
	content.Status = session.StatusSuccess
	content.StatusMessage = "Here is your summary"
	content.Text = resp.Content
	out.AddContent(content)

	return Success("summary generated", map[string]interface{}{
		"video_id": args.VideoID,
		"summary":  resp.Content,
	})
}

// fetchTranscript indexes the video once if no transcript exists yet.
func (a *SummaryAgent) fetchTranscript(ctx context.Context, collectionID, videoID string) (*videodb.Transcript, error) {
	transcript, err := a.vdb.Transcript(ctx, collectionID, videoID)
	if err == nil {
		return transcript, nil
	}
	if indexErr := a.vdb.IndexSpokenWords(ctx, collectionID, videoID); indexErr != nil {
		return nil, err
	}
	return a.vdb.Transcript(ctx, collectionID, videoID)
}
