package agent

import (
	"context"
	"encoding/json"

	"showrunner/internal/session"
	"showrunner/internal/videodb"
	"showrunner/pkg/logging"
)

type videoFetcher interface {
	Video(ctx context.Context, collectionID, videoID string) (*videodb.Video, error)
}

// StreamVideoAgent surfaces a playable stream for an existing video.
type StreamVideoAgent struct {
	vdb    videoFetcher
	logger logging.Logger
}

func NewStreamVideoAgent(vdb videoFetcher, logger logging.Logger) *StreamVideoAgent {
	return &StreamVideoAgent{vdb: vdb, logger: logger}
}

func (a *StreamVideoAgent) Name() string { return "stream_video" }

func (a *StreamVideoAgent) Description() string {
	return "Plays an existing video from the collection by returning its stream."
}

func (a *StreamVideoAgent) Parameters() map[string]interface{} {
	return params(map[string]interface{}{
		"video_id":      prop("string", "Video to play"),
		"collection_id": prop("string", "Collection containing the video"),
	}, "video_id")
}

type streamVideoArgs struct {
	VideoID      string `json:"video_id"`
	CollectionID string `json:"collection_id"`
}

func (a *StreamVideoAgent) Run(ctx context.Context, rawArgs json.RawMessage, out *session.OutputMessage) Response {
	var args streamVideoArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return Errorf("invalid stream_video arguments: %v", err)
	}
	if args.VideoID == "" {
		return Errorf("stream_video requires a video_id")
	}

	video, err := a.vdb.Video(ctx, args.CollectionID, args.VideoID)
	if err != nil {
		a.logger.WithError(err).WithField("video_id", args.VideoID).Error("Video lookup failed")
		return Errorf("failed to fetch video %s: %v", args.VideoID, err)
	}

	content := session.NewVideoContent(a.Name())
	content.Status = session.StatusSuccess
	content.StatusMessage = "Here is your video"
	content.Video = &session.VideoData{
		ID:           video.ID,
		CollectionID: video.CollectionID,
		Name:         video.Name,
		StreamURL:    video.StreamURL,
		PlayerURL:    video.PlayerURL,
		ThumbnailURL: video.ThumbnailURL,
		Length:       video.Length,
	}
	out.AddContent(content)

	return Success("video ready to play", map[string]interface{}{
		"video_id":   video.ID,
		"stream_url": video.StreamURL,
	})
}
