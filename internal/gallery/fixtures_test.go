package gallery

import (
	"context"
	"encoding/json"
	"sync"

	"tush00nka/teledrive/internal/backend"
	"tush00nka/teledrive/internal/model"
)

func sampleItems() []model.MediaItem {
	return []model.MediaItem{
		{ID: "id1", Name: "Cat photo", Type: model.FileTypeImage, Timestamp: 1000, Tags: []string{"pets"}},
		{ID: "id2", Name: "Dog video", Type: model.FileTypeVideo, Timestamp: 2000, Tags: []string{"pets", "fun"}},
		{ID: "id3", Name: "Tax report", Type: model.FileTypeDocument, Timestamp: 1500, Tags: []string{"work"}},
	}
}

func ids(items []model.MediaItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

type fakeRanker struct {
	ids  []string
	err  error
	hook func(term string)
}

func (f *fakeRanker) Rank(ctx context.Context, term string, items []model.MediaItem) ([]string, error) {
	if f.hook != nil {
		f.hook(term)
	}
	return f.ids, f.err
}

type fakeUploader struct {
	mu    sync.Mutex
	calls int
	last  backend.UploadForm
	resp  *backend.UploadResponse
	err   error
	hook  func()
}

func (f *fakeUploader) UploadFile(ctx context.Context, form backend.UploadForm) (*backend.UploadResponse, error) {
	f.mu.Lock()
	f.calls++
	f.last = form
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.resp, f.err
}

type fakeJournal struct {
	mu       sync.Mutex
	begun    []model.UploadRecord
	finished map[string]model.UploadStatus
	err      error
}

func (j *fakeJournal) Begin(ctx context.Context, rec *model.UploadRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.begun = append(j.begun, *rec)
	return j.err
}

func (j *fakeJournal) Finish(ctx context.Context, localID string, status model.UploadStatus, remoteID, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished == nil {
		j.finished = make(map[string]model.UploadStatus)
	}
	j.finished[localID] = status
	return j.err
}

type fakeStager struct {
	calls int
}

func (s *fakeStager) Stage(ctx context.Context, sessionID, fileName, contentType string, content []byte) (*model.PreviewObject, error) {
	s.calls++
	return &model.PreviewObject{URL: "https://s3/preview", ThumbnailURL: "https://s3/thumb"}, nil
}

type fakeMediaBackend struct {
	status    model.AuthStatus
	statusErr error
	items     []model.MediaItem
	fetchErr  error
	fetchHook func()
}

func (f *fakeMediaBackend) AuthStatus(ctx context.Context) (model.AuthStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeMediaBackend) FetchMedia(ctx context.Context) ([]model.MediaItem, error) {
	if f.fetchHook != nil {
		f.fetchHook()
	}
	return f.items, f.fetchErr
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []model.Notice
}

func (n *recordingNotifier) Notify(sessionID string, notice model.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func decodeJSON(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}
