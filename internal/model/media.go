package model

import (
	"mime"
	"strings"
)

type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeDocument FileType = "document"
	FileTypeArchive  FileType = "archive"
	FileTypeOther    FileType = "other"
)

// MediaItem is one stored file as the gallery sees it.
type MediaItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         FileType `json:"type"`
	URL          string   `json:"url"`
	ThumbnailURL string   `json:"thumbnailUrl"`
	Timestamp    int64    `json:"timestamp"` // unix millis
	Tags         []string `json:"tags"`
	Size         string   `json:"size,omitempty"`
	UploadedBy   string   `json:"uploadedBy,omitempty"`
}

// FileTypeFromMIME maps a declared MIME type onto the closed FileType set.
// Rules are evaluated in order and the first match wins.
func FileTypeFromMIME(contentType string) FileType {
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}

	switch {
	case strings.HasPrefix(mt, "image/"):
		return FileTypeImage
	case strings.HasPrefix(mt, "video/"):
		return FileTypeVideo
	case strings.HasPrefix(mt, "audio/"):
		return FileTypeAudio
	case mt == "application/pdf" || strings.HasPrefix(mt, "text/") || strings.Contains(mt, "document"):
		return FileTypeDocument
	case mt == "application/zip" || strings.Contains(mt, "archive"):
		return FileTypeArchive
	default:
		return FileTypeOther
	}
}

// Valid reports whether t is one of the known file types.
func (t FileType) Valid() bool {
	switch t {
	case FileTypeImage, FileTypeVideo, FileTypeAudio, FileTypeDocument, FileTypeArchive, FileTypeOther:
		return true
	}
	return false
}

// CloneItems returns a shallow copy of items that never aliases the input.
func CloneItems(items []MediaItem) []MediaItem {
	out := make([]MediaItem, len(items))
	copy(out, items)
	return out
}
