package gallery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/backend"
	"tush00nka/teledrive/internal/model"
	"tush00nka/teledrive/internal/pkg/metrics"
)

const (
	DefaultMaxUploadBytes = 5 * 1024 * 1024
	MaxFileNameLength     = 100

	// ProvisionalPrefix marks ids generated locally for uploads the remote
	// accepted without returning an item.
	ProvisionalPrefix = "local-"
)

// ValidationError is a client-side rejection raised before any remote call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UploadError carries a user-displayable message for a failed upload.
type UploadError struct {
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	return e.Message
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type UploadRequest struct {
	Content      []byte
	OriginalName string
	ContentType  string
	FileName     string
	Tags         string
}

// UploadResult is the outcome of a successful upload. A provisional item was
// not confirmed by the remote and must not be merged into the collection.
type UploadResult struct {
	Item        model.MediaItem
	Provisional bool
	Message     string
}

// Uploader submits the multipart upload to the remote service.
type Uploader interface {
	UploadFile(ctx context.Context, form backend.UploadForm) (*backend.UploadResponse, error)
}

// Journal records upload attempts. Failures never fail the upload itself.
type Journal interface {
	Begin(ctx context.Context, rec *model.UploadRecord) error
	Finish(ctx context.Context, localID string, status model.UploadStatus, remoteID, message string) error
}

// PreviewStager places uploaded bytes somewhere the browser can fetch them from
// until the remote service provides its own locator.
type PreviewStager interface {
	Stage(ctx context.Context, sessionID, fileName, contentType string, content []byte) (*model.PreviewObject, error)
}

type UploadOptions struct {
	MaxBytes     int64
	AllowedTypes []string
	Journal      Journal
	Stager       PreviewStager
}

type UploadCoordinator struct {
	sessionID string
	uploader  Uploader
	opts      UploadOptions
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewUploadCoordinator(sessionID string, uploader Uploader, opts UploadOptions, log *zap.SugaredLogger) *UploadCoordinator {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxUploadBytes
	}
	return &UploadCoordinator{
		sessionID: sessionID,
		uploader:  uploader,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// ParseTags splits a comma separated list, trimming entries and dropping
// empty ones. Order and duplicates are kept.
func ParseTags(raw string) []string {
	tags := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

func (c *UploadCoordinator) Validate(req UploadRequest) error {
	if len(req.Content) == 0 {
		return &ValidationError{Field: "file", Message: "Please select a file to upload."}
	}

	name := strings.TrimSpace(req.FileName)
	if name == "" {
		return &ValidationError{Field: "fileName", Message: "File name is required."}
	}
	if utf8.RuneCountInString(name) > MaxFileNameLength {
		return &ValidationError{
			Field:   "fileName",
			Message: fmt.Sprintf("File name must be at most %d characters.", MaxFileNameLength),
		}
	}

	if int64(len(req.Content)) > c.opts.MaxBytes {
		return &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("File is too large. Max size is %s.", backend.HumanSize(c.opts.MaxBytes)),
		}
	}

	if len(c.opts.AllowedTypes) > 0 {
		mt := baseMIME(req.ContentType)
		if !slices.Contains(c.opts.AllowedTypes, mt) {
			return &ValidationError{Field: "file", Message: fmt.Sprintf("File type %q is not allowed.", mt)}
		}
	}

	return nil
}

// Upload validates req, submits it and returns the resulting item. Errors are
// *ValidationError or *UploadError. The collection is never touched here.
func (c *UploadCoordinator) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if err := c.Validate(req); err != nil {
		metrics.Uploads.WithLabelValues("invalid").Inc()
		return UploadResult{}, err
	}

	localID := ProvisionalPrefix + uuid.NewString()
	name := strings.TrimSpace(req.FileName)
	tags := ParseTags(req.Tags)

	c.journalBegin(ctx, &model.UploadRecord{
		ProvisionalID: localID,
		SessionID:     c.sessionID,
		FileName:      name,
		ContentType:   req.ContentType,
		SizeBytes:     int64(len(req.Content)),
		Status:        model.UploadPending,
	})

	resp, err := c.uploader.UploadFile(ctx, backend.UploadForm{
		Filename:    firstNonEmpty(req.OriginalName, name),
		ContentType: firstNonEmpty(req.ContentType, "application/octet-stream"),
		Content:     req.Content,
		DisplayName: name,
		Tags:        req.Tags,
	})
	if err != nil {
		return c.fail(ctx, localID, &UploadError{
			Message: uploadFailureMessage(err),
			Err:     fmt.Errorf("upload %s: %w", name, err),
		})
	}

	if !resp.Success {
		msg := firstNonEmpty(resp.Message, "Upload failed.")
		return c.fail(ctx, localID, &UploadError{
			Message: msg,
			Err:     &backend.RemoteError{Op: "upload", StatusCode: 200, Message: msg},
		})
	}

	remote, err := resp.Item()
	if err != nil {
		return c.fail(ctx, localID, &UploadError{
			Message: "Upload failed: the server returned an invalid item.",
			Err:     err,
		})
	}

	result := UploadResult{Message: firstNonEmpty(resp.Message, "File uploaded successfully.")}
	if remote != nil {
		result.Item = *remote
	} else {
		result.Item = model.MediaItem{ID: localID}
		result.Provisional = true
	}
	c.fill(&result.Item, name, req.ContentType, tags)

	if result.Item.URL == "" || result.Item.ThumbnailURL == "" {
		c.stagePreview(ctx, &result.Item, req)
	}

	if result.Provisional {
		metrics.Uploads.WithLabelValues("provisional").Inc()
		c.journalFinish(ctx, localID, model.UploadProvisional, "", result.Message)
	} else {
		metrics.Uploads.WithLabelValues("confirmed").Inc()
		c.journalFinish(ctx, localID, model.UploadConfirmed, result.Item.ID, result.Message)
	}

	return result, nil
}

// fill completes fields the remote left out with what the user submitted.
func (c *UploadCoordinator) fill(item *model.MediaItem, name, contentType string, tags []string) {
	if item.Name == "" || item.Name == "Unknown" {
		item.Name = name
	}
	if !item.Type.Valid() || (item.Type == model.FileTypeOther && contentType != "") {
		item.Type = model.FileTypeFromMIME(contentType)
	}
	if len(item.Tags) == 0 {
		item.Tags = tags
	}
	if item.Timestamp == 0 {
		item.Timestamp = c.now().UnixMilli()
	}
}

func (c *UploadCoordinator) stagePreview(ctx context.Context, item *model.MediaItem, req UploadRequest) {
	if c.opts.Stager == nil {
		return
	}
	obj, err := c.opts.Stager.Stage(ctx, c.sessionID, firstNonEmpty(req.OriginalName, item.Name), req.ContentType, req.Content)
	if err != nil {
		c.log.Warnw("preview staging failed", "item", item.ID, "error", err)
		return
	}
	if item.URL == "" {
		item.URL = obj.URL
	}
	if item.ThumbnailURL == "" {
		item.ThumbnailURL = obj.ThumbnailURL
	}
}

func (c *UploadCoordinator) fail(ctx context.Context, localID string, err *UploadError) (UploadResult, error) {
	metrics.Uploads.WithLabelValues("failed").Inc()
	c.journalFinish(ctx, localID, model.UploadFailed, "", err.Message)
	return UploadResult{}, err
}

func (c *UploadCoordinator) journalBegin(ctx context.Context, rec *model.UploadRecord) {
	if c.opts.Journal == nil {
		return
	}
	if err := c.opts.Journal.Begin(ctx, rec); err != nil {
		c.log.Warnw("upload journal begin failed", "local_id", rec.ProvisionalID, "error", err)
	}
}

func (c *UploadCoordinator) journalFinish(ctx context.Context, localID string, status model.UploadStatus, remoteID, message string) {
	if c.opts.Journal == nil {
		return
	}
	if err := c.opts.Journal.Finish(ctx, localID, status, remoteID, message); err != nil {
		c.log.Warnw("upload journal finish failed", "local_id", localID, "error", err)
	}
}

func uploadFailureMessage(err error) string {
	var remote *backend.RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	return "An unexpected error occurred during upload."
}

func baseMIME(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
