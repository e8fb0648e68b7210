package model

import "time"

// PreviewObject describes bytes staged in object storage for a transient preview.
type PreviewObject struct {
	Key          string    `json:"key"`
	Bucket       string    `json:"bucket"`
	ContentType  string    `json:"content_type"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}
