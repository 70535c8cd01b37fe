package agent

import (
	"context"
	"encoding/json"

	"showrunner/internal/session"
	"showrunner/pkg/logging"
)

type thumbnailGenerator interface {
	GenerateThumbnail(ctx context.Context, collectionID, videoID string, timestamp float64) (string, error)
}

// ThumbnailAgent renders a thumbnail frame from a video.
type ThumbnailAgent struct {
	vdb    thumbnailGenerator
	logger logging.Logger
}

func NewThumbnailAgent(vdb thumbnailGenerator, logger logging.Logger) *ThumbnailAgent {
	return &ThumbnailAgent{vdb: vdb, logger: logger}
}

func (a *ThumbnailAgent) Name() string { return "thumbnail" }

func (a *ThumbnailAgent) Description() string {
	return "Generates a thumbnail image from a video at a given timestamp."
}

func (a *ThumbnailAgent) Parameters() map[string]interface{} {
	return params(map[string]interface{}{
		"video_id":      prop("string", "Video to take the thumbnail from"),
		"collection_id": prop("string", "Collection containing the video"),
		"timestamp":     prop("number", "Timestamp in seconds. Defaults to 5."),
	}, "video_id")
}

type thumbnailArgs struct {
	VideoID      string  `json:"video_id"`
	CollectionID string  `json:"collection_id"`
	Timestamp    float64 `json:"timestamp"`
}

func (a *ThumbnailAgent) Run(ctx context.Context, rawArgs json.RawMessage, out *session.OutputMessage) Response {
	var args thumbnailArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return Errorf("invalid thumbnail arguments: %v", err)
	}
	if args.VideoID == "" {
		return Errorf("thumbnail requires a video_id")
	}
	if args.Timestamp <= 0 {
		args.Timestamp = 5
	}

	url, err := a.vdb.GenerateThumbnail(ctx, args.CollectionID, args.VideoID, args.Timestamp)
	if err != nil {
		a.logger.WithError(err).WithField("video_id", args.VideoID).Error("Thumbnail generation failed")
		return Errorf("failed to generate thumbnail: %v", err)
	}

	content := session.NewImageContent(a.Name())
	content.Status = session.StatusSuccess
	content.StatusMessage = "Here is your thumbnail"
	content.Image = &session.ImageData{
		CollectionID: args.CollectionID,
		URL:          url,
	}
	out.AddContent(content)

	return Success("thumbnail generated", map[string]interface{}{
		"thumbnail_url": url,
	})
}
