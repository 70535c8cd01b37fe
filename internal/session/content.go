// Package session defines the conversation data model: content blocks,
// input/output messages, reasoning context messages and the progress sink
// used to stream partial output to clients.
package session

// MsgStatus is the lifecycle status of a message or content block.
type MsgStatus string

const (
	StatusProgress     MsgStatus = "progress"
	StatusSuccess      MsgStatus = "success"
	StatusError        MsgStatus = "error"
	StatusNotGenerated MsgStatus = "not_generated"
)

// ContentType discriminates content blocks.
type ContentType string

const (
	ContentTypeText          ContentType = "text"
	ContentTypeVideo         ContentType = "video"
	ContentTypeImage         ContentType = "image"
	ContentTypeSearchResults ContentType = "search_results"
)

// VideoData describes a playable video artifact.
type VideoData struct {
	ID           string  `json:"id,omitempty"`
	CollectionID string  `json:"collection_id,omitempty"`
	Name         string  `json:"name,omitempty"`
	Description  string  `json:"description,omitempty"`
	StreamURL    string  `json:"stream_url,omitempty"`
	PlayerURL    string  `json:"player_url,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Length       float64 `json:"length,omitempty"`
}

// ImageData describes an image artifact.
type ImageData struct {
	ID           string `json:"id,omitempty"`
	CollectionID string `json:"collection_id,omitempty"`
	Name         string `json:"name,omitempty"`
	URL          string `json:"url,omitempty"`
}

// ShotData is a single matched segment inside a search result.
type ShotData struct {
	SearchScore float64 `json:"search_score"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Text        string  `json:"text"`
}

// SearchData groups matched shots per video.
type SearchData struct {
	VideoID      string     `json:"video_id"`
	VideoTitle   string     `json:"video_title,omitempty"`
	StreamURL    string     `json:"stream_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Shots        []ShotData `json:"shots"`
}

// Content is one block of message content. Type selects which payload
// field is populated; the rest stay empty.
type Content struct {
	Type          ContentType  `json:"type"`
	AgentName     string       `json:"agent_name,omitempty"`
	Status        MsgStatus    `json:"status"`
	StatusMessage string       `json:"status_message,omitempty"`
	Text          string       `json:"text,omitempty"`
	Video         *VideoData   `json:"video,omitempty"`
	Image         *ImageData   `json:"image,omitempty"`
	SearchResults []SearchData `json:"search_results,omitempty"`
}

// NewTextContent returns a text block in progress state.
func NewTextContent(agentName string) Content {
	return Content{Type: ContentTypeText, AgentName: agentName, Status: StatusProgress}
}

// NewVideoContent returns a video block in progress state.
func NewVideoContent(agentName string) Content {
	return Content{Type: ContentTypeVideo, AgentName: agentName, Status: StatusProgress}
}

// NewImageContent returns an image block in progress state.
func NewImageContent(agentName string) Content {
	return Content{Type: ContentTypeImage, AgentName: agentName, Status: StatusProgress}
}

// NewSearchResultsContent returns a search results block in progress state.
func NewSearchResultsContent(agentName string) Content {
	return Content{Type: ContentTypeSearchResults, AgentName: agentName, Status: StatusProgress}
}
