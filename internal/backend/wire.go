package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tush00nka/teledrive/internal/model"
)

// wireItem accepts both the gallery shape and the Telegram backend's native listing shape.
type wireItem struct {
	ID          model.FlexibleID `json:"id"`
	Name        string           `json:"name"`
	FileName    string           `json:"file_name"`
	Type        string           `json:"type"`
	MimeType    string           `json:"mime_type"`
	URL         string           `json:"url"`
	Placeholder string           `json:"placeholder_url"`
	Thumbnail   string           `json:"thumbnailUrl"`
	ThumbSnake  string           `json:"thumbnail_url"`
	Timestamp   json.RawMessage  `json:"timestamp"`
	Date        string           `json:"date"`
	Tags        json.RawMessage  `json:"tags"`
	Caption     string           `json:"caption"`
	Size        json.RawMessage  `json:"size"`
	UploadedBy  string           `json:"uploadedBy"`
}

func (w wireItem) toModel() (model.MediaItem, error) {
	if w.ID == "" {
		return model.MediaItem{}, fmt.Errorf("item without id")
	}

	item := model.MediaItem{
		ID:           string(w.ID),
		Name:         firstNonEmpty(w.Name, w.FileName, "Unknown"),
		URL:          firstNonEmpty(w.URL, w.Placeholder),
		ThumbnailURL: firstNonEmpty(w.Thumbnail, w.ThumbSnake),
		Tags:         parseTags(w.Tags),
		UploadedBy:   w.UploadedBy,
	}

	if t := model.FileType(strings.ToLower(w.Type)); t.Valid() {
		item.Type = t
	} else {
		item.Type = model.FileTypeFromMIME(w.MimeType)
	}

	if len(item.Tags) == 0 && w.Caption != "" {
		item.Tags = splitTags(w.Caption)
	}

	item.Timestamp = parseTimestamp(w.Timestamp, w.Date)
	item.Size = parseSize(w.Size)

	return item, nil
}

func parseTimestamp(raw json.RawMessage, date string) int64 {
	if len(raw) > 0 && string(raw) != "null" {
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			return int64(n)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
			date = firstNonEmpty(date, s)
		}
	}
	if date != "" {
		if t, err := time.Parse(time.RFC3339Nano, date); err == nil {
			return t.UnixMilli()
		}
		// datetime.isoformat() без зоны
		if t, err := time.Parse("2006-01-02T15:04:05.999999", date); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

func parseTags(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if list == nil {
			return []string{}
		}
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return splitTags(s)
	}
	return []string{}
}

func parseSize(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		return HumanSize(int64(n))
	}
	return ""
}

// HumanSize renders a byte count as "512 B", "1.2 KB", "3.4 MB".
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

func splitTags(raw string) []string {
	tags := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
