package session

import "time"

// Session is the durable record of a conversation scope: one collection,
// optionally one video, and the reasoning context accumulated across runs.
type Session struct {
	ID           string                 `json:"session_id"`
	VideoID      string                 `json:"video_id,omitempty"`
	CollectionID string                 `json:"collection_id"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
