package agent

import (
	"context"
	"encoding/json"

	"showrunner/internal/session"
	"showrunner/internal/videodb"
	"showrunner/pkg/logging"
)

type streamDownloader interface {
	Download(ctx context.Context, streamLink, name string) (*videodb.DownloadResult, error)
}

// DownloadAgent exports a generated stream as a downloadable file.
type DownloadAgent struct {
	vdb    streamDownloader
	logger logging.Logger
}

func NewDownloadAgent(vdb streamDownloader, logger logging.Logger) *DownloadAgent {
	return &DownloadAgent{vdb: vdb, logger: logger}
}

func (a *DownloadAgent) Name() string { return "download" }

func (a *DownloadAgent) Description() string {
	return "Exports a stream link as a downloadable file. Use after another agent produced a stream."
}

func (a *DownloadAgent) Parameters() map[string]interface{} {
	return params(map[string]interface{}{
		"stream_link": prop("string", "Stream URL to export"),
		"name":        prop("string", "File name for the download"),
	}, "stream_link")
}

type downloadArgs struct {
	StreamLink string `json:"stream_link"`
	Name       string `json:"name"`
}

func (a *DownloadAgent) Run(ctx context.Context, rawArgs json.RawMessage, out *session.OutputMessage) Response {
	var args downloadArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return Errorf("invalid download arguments: %v", err)
	}
	if args.StreamLink == "" {
		return Errorf("download requires a stream_link")
	}
	if args.Name == "" {
		args.Name = "showrunner-export"
	}

	result, err := a.vdb.Download(ctx, args.StreamLink, args.Name)
	if err != nil {
		a.logger.WithError(err).Error("Download failed")
		return Errorf("failed to start download: %v", err)
	}

	content := session.NewTextContent(a.Name())
	content.Status = session.StatusSuccess
	content.StatusMessage = "Download ready"
	content.Text = "Your download is ready: " + result.DownloadURL
	out.AddContent(content)

	return Success("download ready", map[string]interface{}{
		"download_url": result.DownloadURL,
		"name":         result.Name,
	})
}
