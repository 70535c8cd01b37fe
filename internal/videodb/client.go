// Package videodb is the HTTP client for the hosted video database API:
// collections, assets, indexing, semantic search and timeline compilation.
package videodb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"showrunner/pkg/clients"
	"showrunner/pkg/logging"
)

// Client talks to the video database API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   failsafe.Executor[*http.Response]
	logger     logging.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRetryConfig replaces the retry executor configuration.
func WithRetryConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(c *Client) {
		c.executor = clients.NewHTTPExecutor(cfg)
	}
}

// NewClient creates a video database client.
func NewClient(baseURL, apiKey string, logger logging.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// doRequest issues one API call and decodes the enveloped payload into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("videodb: marshal request: %w", err)
		}
	}

	resp, err := clients.ExecuteHTTP(ctx, c.executor, func() (*http.Response, error) {
		// Fresh reader per attempt so retries resend the full body.
		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}
		req, reqErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Accept", "application/json")
		if reader != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return fmt.Errorf("videodb: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("videodb: read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("videodb: %s %s returned %s: %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("videodb: decode response: %w", err)
	}
	if !envelope.Success {
		return fmt.Errorf("videodb: %s %s failed: %s", method, path, envelope.Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("videodb: decode data: %w", err)
		}
	}
	return nil
}

// Collections lists all collections.
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	var out []Collection
	if err := c.doRequest(ctx, http.MethodGet, "/collection", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Collection fetches one collection.
func (c *Client) Collection(ctx context.Context, collectionID string) (*Collection, error) {
	var out Collection
	if err := c.doRequest(ctx, http.MethodGet, "/collection/"+collectionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Videos lists videos in a collection.
func (c *Client) Videos(ctx context.Context, collectionID string) ([]Video, error) {
	var out []Video
	if err := c.doRequest(ctx, http.MethodGet, "/collection/"+collectionID+"/video", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Video fetches one video.
func (c *Client) Video(ctx context.Context, collectionID, videoID string) (*Video, error) {
	var out Video
	if err := c.doRequest(ctx, http.MethodGet, "/collection/"+collectionID+"/video/"+videoID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Images lists images in a collection.
func (c *Client) Images(ctx context.Context, collectionID string) ([]Image, error) {
	var out []Image
	if err := c.doRequest(ctx, http.MethodGet, "/collection/"+collectionID+"/image", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload ingests media from a URL into a collection.
func (c *Client) Upload(ctx context.Context, collectionID string, req UploadRequest) (*Video, error) {
	var out Video
	if err := c.doRequest(ctx, http.MethodPost, "/collection/"+collectionID+"/upload", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateThumbnail renders a thumbnail at the given timestamp and returns
// its URL.
func (c *Client) GenerateThumbnail(ctx context.Context, collectionID, videoID string, timestamp float64) (string, error) {
	var out struct {
		ThumbnailURL string `json:"thumbnail_url"`
	}
	body := map[string]float64{"time": timestamp}
	if err := c.doRequest(ctx, http.MethodPost, "/collection/"+collectionID+"/video/"+videoID+"/thumbnail", body, &out); err != nil {
		return "", err
	}
	return out.ThumbnailURL, nil
}

// Transcript fetches the spoken-word transcript of a video. The transcript
// exists only after IndexSpokenWords has run.
func (c *Client) Transcript(ctx context.Context, collectionID, videoID string) (*Transcript, error) {
	var out Transcript
	if err := c.doRequest(ctx, http.MethodGet, "/collection/"+collectionID+"/video/"+videoID+"/transcript", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IndexSpokenWords runs spoken-word indexing on a video.
func (c *Client) IndexSpokenWords(ctx context.Context, collectionID, videoID string) error {
	body := map[string]string{"index_type": "spoken_words"}
	return c.doRequest(ctx, http.MethodPost, "/collection/"+collectionID+"/video/"+videoID+"/index", body, nil)
}

// SemanticSearch searches indexed content across a collection or a single
// video.
func (c *Client) SemanticSearch(ctx context.Context, collectionID string, req SearchRequest) (*SearchResults, error) {
	if req.IndexType == "" {
		req.IndexType = "semantic"
	}
	var out SearchResults
	if err := c.doRequest(ctx, http.MethodPost, "/collection/"+collectionID+"/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download exports a stream as a downloadable file.
func (c *Client) Download(ctx context.Context, streamLink, name string) (*DownloadResult, error) {
	body := map[string]string{"stream_link": streamLink, "name": name}
	var out DownloadResult
	if err := c.doRequest(ctx, http.MethodPost, "/download", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddSubtitle burns spoken-word subtitles into a video and returns the
// subtitled stream URL.
func (c *Client) AddSubtitle(ctx context.Context, collectionID, videoID string) (string, error) {
	var out struct {
		StreamURL string `json:"stream_url"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/collection/"+collectionID+"/video/"+videoID+"/subtitle", nil, &out); err != nil {
		return "", err
	}
	return out.StreamURL, nil
}

// GenerateStream compiles the given [start, end] segments of one video into
// a stream and returns its URL.
func (c *Client) GenerateStream(ctx context.Context, collectionID, videoID string, timeline [][2]float64) (string, error) {
	var out struct {
		StreamURL string `json:"stream_url"`
	}
	body := map[string]interface{}{"timeline": timeline}
	if err := c.doRequest(ctx, http.MethodPost, "/collection/"+collectionID+"/video/"+videoID+"/stream", body, &out); err != nil {
		return "", err
	}
	return out.StreamURL, nil
}

// CompileTimeline compiles ordered clips and overlays across assets into a
// single stream and returns its URL.
func (c *Client) CompileTimeline(ctx context.Context, collectionID string, req TimelineRequest) (string, error) {
	var out struct {
		StreamURL string `json:"stream_url"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/collection/"+collectionID+"/timeline", req, &out); err != nil {
		return "", err
	}
	return out.StreamURL, nil
}
