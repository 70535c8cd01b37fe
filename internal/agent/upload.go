package agent

import (
	"context"
	"encoding/json"

	"showrunner/internal/session"
	"showrunner/internal/videodb"
	"showrunner/pkg/logging"
)

type mediaUploader interface {
	Upload(ctx context.Context, collectionID string, req videodb.UploadRequest) (*videodb.Video, error)
}

// UploadAgent ingests media from a URL into the session's collection.
type UploadAgent struct {
	vdb    mediaUploader
	logger logging.Logger
}

func NewUploadAgent(vdb mediaUploader, logger logging.Logger) *UploadAgent {
	return &UploadAgent{vdb: vdb, logger: logger}
}

func (a *UploadAgent) Name() string { return "upload" }

func (a *UploadAgent) Description() string {
	return "Uploads media to the collection from a public URL. Supports video, audio and image files."
}

func (a *UploadAgent) Parameters() map[string]interface{} {
	return params(map[string]interface{}{
		"url":           prop("string", "Public URL of the media to upload"),
		"name":          prop("string", "Display name for the uploaded media"),
		"media_type":    prop("string", "One of video, audio or image. Defaults to video."),
		"collection_id": prop("string", "Collection to upload into"),
	}, "url")
}

type uploadArgs struct {
	URL          string `json:"url"`
	Name         string `json:"name"`
	MediaType    string `json:"media_type"`
	CollectionID string `json:"collection_id"`
}

func (a *UploadAgent) Run(ctx context.Context, rawArgs json.RawMessage, out *session.OutputMessage) Response {
	var args uploadArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return Errorf("invalid upload arguments: %v", err)
	}
	if args.URL == "" {
		return Errorf("upload requires a url")
	}
	if args.MediaType == "" {
		args.MediaType = "video"
	}

	content := session.NewVideoContent(a.Name())
	content.StatusMessage = "Uploading media"
	out.AddContent(content)

	video, err := a.vdb.Upload(ctx, args.CollectionID, videodb.UploadRequest{
		URL:       args.URL,
		Name:      args.Name,
		MediaType: args.MediaType,
	})
	if err != nil {
		a.logger.WithError(err).WithField("url", args.URL).Error("Upload failed")
		out.Update(func(body *session.BaseMessage) {
			last := &body.Content[len(body.Content)-1]
			last.Status = session.StatusError
			last.StatusMessage = "Upload failed"
		})
		return Errorf("failed to upload %s: %v", args.URL, err)
	}

	out.Update(func(body *session.BaseMessage) {
		last := &body.Content[len(body.Content)-1]
		last.Status = session.StatusSuccess
		last.StatusMessage = "Upload complete"
		last.Video = &session.VideoData{
			ID:           video.ID,
			CollectionID: video.CollectionID,
			Name:         video.Name,
			StreamURL:    video.StreamURL,
			PlayerURL:    video.PlayerURL,
			ThumbnailURL: video.ThumbnailURL,
			Length:       video.Length,
		}
	})

	return Success("media uploaded", map[string]interface{}{
		"video_id":      video.ID,
		"collection_id": video.CollectionID,
		"name":          video.Name,
	})
}
