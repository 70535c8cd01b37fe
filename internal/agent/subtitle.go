package agent

import (
	"context"
	"encoding/json"

	"showrunner/internal/session"
	"showrunner/pkg/logging"
)

type subtitler interface {
	IndexSpokenWords(ctx context.Context, collectionID, videoID string) error
	AddSubtitle(ctx context.Context, collectionID, videoID string) (string, error)
}

// SubtitleAgent burns subtitles into a video.
type SubtitleAgent struct {
	vdb    subtitler
	logger logging.Logger
}

func NewSubtitleAgent(vdb subtitler, logger logging.Logger) *SubtitleAgent {
	return &SubtitleAgent{vdb: vdb, logger: logger}
}

func (a *SubtitleAgent) Name() string { return "subtitle" }

func (a *SubtitleAgent) Description() string {
	return "Adds burned-in subtitles to a video and returns the subtitled stream."
}

func (a *SubtitleAgent) Parameters() map[string]interface{} {
	return params(map[string]interface{}{
		"video_id":      prop("string", "Video to subtitle"),
		"collection_id": prop("string", "Collection containing the video"),
	}, "video_id")
}

type subtitleArgs struct {
	VideoID      string `json:"video_id"`
	CollectionID string `json:"collection_id"`
}

func (a *SubtitleAgent) Run(ctx context.Context, rawArgs json.RawMessage, out *session.OutputMessage) Response {
	var args subtitleArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return Errorf("invalid subtitle arguments: %v", err)
	}
	if args.VideoID == "" {
		return Errorf("subtitle requires a video_id")
	}

	// Subtitling depends on the spoken-word index existing.
	if err := a.vdb.IndexSpokenWords(ctx, args.CollectionID, args.VideoID); err != nil {
		a.logger.WithError(err).WithField("video_id", args.VideoID).Warn("Indexing before subtitling failed")
	}

	streamURL, err := a.vdb.AddSubtitle(ctx, args.CollectionID, args.VideoID)
	if err != nil {
		a.logger.WithError(err).WithField("video_id", args.VideoID).Error("Subtitling failed")
		return Errorf("failed to add subtitles: %v", err)
	}

	content := session.NewVideoContent(a.Name())
	content.Status = session.StatusSuccess
	content.StatusMessage = "Here is your subtitled video"
	content.Video = &session.VideoData{
		ID:           args.VideoID,
		CollectionID: args.CollectionID,
		StreamURL:    streamURL,
	}
	out.AddContent(content)

	return Success("subtitles added", map[string]interface{}{
		"video_id":   args.VideoID,
		"stream_url": streamURL,
	})
}
