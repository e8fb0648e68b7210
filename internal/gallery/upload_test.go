package gallery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/backend"
	"tush00nka/teledrive/internal/model"
)

func newCoordinator(up Uploader, opts UploadOptions) *UploadCoordinator {
	c := NewUploadCoordinator("sess-1", up, opts, zap.NewNop().Sugar())
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func validRequest() UploadRequest {
	return UploadRequest{
		Content:      []byte("png-bytes"),
		OriginalName: "cat.png",
		ContentType:  "image/png",
		FileName:     "  My cat  ",
		Tags:         "pets, , cute,pets",
	}
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"pets", "cute", "pets"}, ParseTags("pets, , cute,pets"))
	assert.Equal(t, []string{}, ParseTags(""))
	assert.Equal(t, []string{}, ParseTags(" , ,"))
}

func TestFileTypeFromMIME(t *testing.T) {
	tests := map[string]model.FileType{
		"image/png":                       model.FileTypeImage,
		"IMAGE/JPEG; q=1":                 model.FileTypeImage,
		"video/mp4":                       model.FileTypeVideo,
		"audio/mpeg":                      model.FileTypeAudio,
		"application/pdf":                 model.FileTypeDocument,
		"text/plain; charset=utf-8":       model.FileTypeDocument,
		"application/msword-document":     model.FileTypeDocument,
		"application/zip":                 model.FileTypeArchive,
		"application/x-something-archive": model.FileTypeArchive,
		"application/octet-stream":        model.FileTypeOther,
		"":                                model.FileTypeOther,
	}
	for mt, want := range tests {
		assert.Equal(t, want, model.FileTypeFromMIME(mt), mt)
	}
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name  string
		opts  UploadOptions
		edit  func(*UploadRequest)
		field string
	}{
		{"empty file name", UploadOptions{}, func(r *UploadRequest) { r.FileName = "" }, "fileName"},
		{"blank file name", UploadOptions{}, func(r *UploadRequest) { r.FileName = "   " }, "fileName"},
		{"long file name", UploadOptions{}, func(r *UploadRequest) { r.FileName = strings.Repeat("я", 101) }, "fileName"},
		{"no content", UploadOptions{}, func(r *UploadRequest) { r.Content = nil }, "file"},
		{"too large", UploadOptions{MaxBytes: 4}, func(r *UploadRequest) {}, "file"},
		{"type not allowed", UploadOptions{AllowedTypes: []string{"application/pdf"}}, func(r *UploadRequest) {}, "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUploader{}
			req := validRequest()
			tt.edit(&req)

			_, err := newCoordinator(up, tt.opts).Upload(context.Background(), req)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, up.calls)
		})
	}
}

func TestUploadHundredRuneNameIsAccepted(t *testing.T) {
	up := &fakeUploader{resp: &backend.UploadResponse{Success: true}}
	req := validRequest()
	req.FileName = strings.Repeat("я", 100)

	_, err := newCoordinator(up, UploadOptions{}).Upload(context.Background(), req)
	require.NoError(t, err)
}

func TestUploadConfirmedItemIsFilledFromRequest(t *testing.T) {
	raw := `{"success":true,"message":"Uploaded!","newItem":{"id":"srv-1"}}`
	var resp backend.UploadResponse
	require.NoError(t, decodeJSON(raw, &resp))

	up := &fakeUploader{resp: &resp}
	journal := &fakeJournal{}
	result, err := newCoordinator(up, UploadOptions{Journal: journal}).Upload(context.Background(), validRequest())
	require.NoError(t, err)

	assert.False(t, result.Provisional)
	assert.Equal(t, "Uploaded!", result.Message)
	assert.Equal(t, "srv-1", result.Item.ID)
	assert.Equal(t, "My cat", result.Item.Name)
	assert.Equal(t, model.FileTypeImage, result.Item.Type)
	assert.Equal(t, []string{"pets", "cute", "pets"}, result.Item.Tags)
	assert.Equal(t, int64(1700000000000), result.Item.Timestamp)

	assert.Equal(t, "cat.png", up.last.Filename)
	assert.Equal(t, "My cat", up.last.DisplayName)
	assert.Equal(t, "pets, , cute,pets", up.last.Tags)

	require.Len(t, journal.begun, 1)
	local := journal.begun[0].ProvisionalID
	assert.True(t, strings.HasPrefix(local, ProvisionalPrefix))
	assert.Equal(t, model.UploadConfirmed, journal.finished[local])
}

func TestUploadWithoutItemIsProvisional(t *testing.T) {
	up := &fakeUploader{resp: &backend.UploadResponse{Success: true, Message: "Saved"}}
	stager := &fakeStager{}
	journal := &fakeJournal{}

	result, err := newCoordinator(up, UploadOptions{Journal: journal, Stager: stager}).Upload(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, result.Provisional)
	assert.True(t, strings.HasPrefix(result.Item.ID, ProvisionalPrefix))
	assert.Equal(t, "https://s3/preview", result.Item.URL)
	assert.Equal(t, "https://s3/thumb", result.Item.ThumbnailURL)
	assert.Equal(t, 1, stager.calls)
	assert.Equal(t, model.UploadProvisional, journal.finished[result.Item.ID])
}

func TestUploadProvisionalIDsAreUnique(t *testing.T) {
	up := &fakeUploader{resp: &backend.UploadResponse{Success: true}}
	c := newCoordinator(up, UploadOptions{})

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		result, err := c.Upload(context.Background(), validRequest())
		require.NoError(t, err)
		assert.False(t, seen[result.Item.ID])
		seen[result.Item.ID] = true
	}
}

func TestUploadRemoteFailures(t *testing.T) {
	tests := []struct {
		name    string
		resp    *backend.UploadResponse
		err     error
		message string
	}{
		{
			name:    "success false",
			resp:    &backend.UploadResponse{Success: false, Message: "Quota exceeded"},
			message: "Quota exceeded",
		},
		{
			name:    "remote error",
			err:     &backend.RemoteError{Op: "upload", StatusCode: 500, Message: "Server error: 500"},
			message: "Server error: 500",
		},
		{
			name:    "network error",
			err:     &backend.NetworkError{Op: "upload", Err: errors.New("connection refused")},
			message: "An unexpected error occurred during upload.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			journal := &fakeJournal{}
			up := &fakeUploader{resp: tt.resp, err: tt.err}

			_, err := newCoordinator(up, UploadOptions{Journal: journal}).Upload(context.Background(), validRequest())

			var uerr *UploadError
			require.True(t, errors.As(err, &uerr))
			assert.Equal(t, tt.message, uerr.Message)
			require.Len(t, journal.begun, 1)
			assert.Equal(t, model.UploadFailed, journal.finished[journal.begun[0].ProvisionalID])
		})
	}
}

func TestUploadNetworkErrorIsUnwrappable(t *testing.T) {
	up := &fakeUploader{err: &backend.NetworkError{Op: "upload", Err: context.DeadlineExceeded}}

	_, err := newCoordinator(up, UploadOptions{}).Upload(context.Background(), validRequest())

	var netErr *backend.NetworkError
	assert.True(t, errors.As(err, &netErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUploadJournalFailureDoesNotFailUpload(t *testing.T) {
	up := &fakeUploader{resp: &backend.UploadResponse{Success: true}}
	journal := &fakeJournal{err: errors.New("db down")}

	_, err := newCoordinator(up, UploadOptions{Journal: journal}).Upload(context.Background(), validRequest())
	assert.NoError(t, err)
}
