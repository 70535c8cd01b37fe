package agent

import (
	"context"
	"encoding/json"

	"showrunner/internal/session"
	"showrunner/internal/videodb"
	"showrunner/pkg/logging"
)

type timelineCompiler interface {
	CompileTimeline(ctx context.Context, collectionID string, req videodb.TimelineRequest) (string, error)
}

// BrandkitAgent wraps a video with an intro, an outro and a brand image
// overlay, compiled into a single stream.
type BrandkitAgent struct {
	vdb    timelineCompiler
	logger logging.Logger
}

func NewBrandkitAgent(vdb timelineCompiler, logger logging.Logger) *BrandkitAgent {
	return &BrandkitAgent{vdb: vdb, logger: logger}
}

func (a *BrandkitAgent) Name() string { return "brandkit" }

func (a *BrandkitAgent) Description() string {
	return "Applies a brand kit to a video: intro video, outro video and a brand image overlay."
}

func (a *BrandkitAgent) Parameters() map[string]interface{} {
	return params(map[string]interface{}{
		"video_id":       prop("string", "Main video to brand"),
		"intro_video_id": prop("string", "Video to play before the main video"),
		"outro_video_id": prop("string", "Video to play after the main video"),
		"brand_image_id": prop("string", "Image to overlay on the main video"),
		"collection_id":  prop("string", "Collection containing the assets"),
	}, "video_id")
}

type brandkitArgs struct {
	VideoID      string `json:"video_id"`
	IntroVideoID string `json:"intro_video_id"`
	OutroVideoID string `json:"outro_video_id"`
	BrandImageID string `json:"brand_image_id"`
	CollectionID string `json:"collection_id"`
}

func (a *BrandkitAgent) Run(ctx context.Context, rawArgs json.RawMessage, out *session.OutputMessage) Response {
	var args brandkitArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return Errorf("invalid brandkit arguments: %v", err)
	}
	if args.VideoID == "" {
		return Errorf("brandkit requires a video_id")
	}
	if args.IntroVideoID == "" && args.OutroVideoID == "" && args.BrandImageID == "" {
		return Errorf("brandkit requires at least one of intro_video_id, outro_video_id or brand_image_id")
	}

	var req videodb.TimelineRequest
	if args.IntroVideoID != "" {
		req.Inline = append(req.Inline, videodb.TimelineClip{VideoID: args.IntroVideoID})
	}
	req.Inline = append(req.Inline, videodb.TimelineClip{VideoID: args.VideoID})
	if args.OutroVideoID != "" {
		req.Inline = append(req.Inline, videodb.TimelineClip{VideoID: args.OutroVideoID})
	}
	if args.BrandImageID != "" {
		req.Overlays = append(req.Overlays, videodb.TimelineOverlay{ImageID: args.BrandImageID, At: 0})
	}

	streamURL, err := a.vdb.CompileTimeline(ctx, args.CollectionID, req)
	if err != nil {
		a.logger.WithError(err).WithField("video_id", args.VideoID).Error("Brandkit compilation failed")
		return Errorf("failed to apply brand kit: %v", err)
	}

	content := session.NewVideoContent(a.Name())
	content.Status = session.StatusSuccess
	content.StatusMessage = "Here is your branded video"
	content.Video = &session.VideoData{
		ID:           args.VideoID,
		CollectionID: args.CollectionID,
		StreamURL:    streamURL,
	}
	out.AddContent(content)

	return Success("brand kit applied", map[string]interface{}{
		"video_id":   args.VideoID,
		"stream_url": streamURL,
	})
}
