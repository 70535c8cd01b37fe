package videodb

// Collection is a media collection in the hosted video database.
type Collection struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Video is a video asset.
type Video struct {
	ID           string  `json:"id"`
	CollectionID string  `json:"collection_id"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	StreamURL    string  `json:"stream_url,omitempty"`
	PlayerURL    string  `json:"player_url,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Length       float64 `json:"length,omitempty"`
}

// Image is an image asset.
type Image struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`
	Name         string `json:"name"`
	URL          string `json:"url,omitempty"`
}

// UploadRequest describes media to ingest from a URL.
type UploadRequest struct {
	URL       string `json:"url"`
	Name      string `json:"name,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// TranscriptWord is one timed token of a spoken-word transcript.
type TranscriptWord struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the spoken-word transcript of a video.
type Transcript struct {
	VideoID string           `json:"video_id"`
	Text    string           `json:"text"`
	Words   []TranscriptWord `json:"words,omitempty"`
}

// SearchRequest parameterizes a semantic search. An empty VideoID searches
// the whole collection.
type SearchRequest struct {
	Query           string  `json:"query"`
	VideoID         string  `json:"video_id,omitempty"`
	IndexType       string  `json:"index_type,omitempty"`
	ResultThreshold int     `json:"result_threshold,omitempty"`
	ScoreThreshold  float64 `json:"score_threshold,omitempty"`
}

// SearchShot is one matched segment.
type SearchShot struct {
	VideoID    string  `json:"video_id"`
	VideoTitle string  `json:"video_title,omitempty"`
	StreamURL  string  `json:"stream_url,omitempty"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// SearchResults carries matched shots plus an optional compiled stream of
// all matches stitched together.
type SearchResults struct {
	Shots       []SearchShot `json:"shots"`
	CompiledURL string       `json:"compiled_url,omitempty"`
	PlayerURL   string       `json:"player_url,omitempty"`
}

// DownloadResult is the outcome of exporting a stream as a file.
type DownloadResult struct {
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
	Status      string `json:"status"`
}

// TimelineClip is one inline segment of a timeline. Start/End of zero
// selects the full asset.
type TimelineClip struct {
	VideoID string  `json:"video_id,omitempty"`
	URL     string  `json:"url,omitempty"`
	Start   float64 `json:"start,omitempty"`
	End     float64 `json:"end,omitempty"`
}

// TimelineOverlay places an image on top of the timeline at a timestamp.
type TimelineOverlay struct {
	ImageID string  `json:"image_id,omitempty"`
	URL     string  `json:"url,omitempty"`
	At      float64 `json:"at"`
}

// TimelineRequest compiles ordered clips and overlays into a stream.
type TimelineRequest struct {
	Inline   []TimelineClip    `json:"inline"`
	Overlays []TimelineOverlay `json:"overlays,omitempty"`
}
