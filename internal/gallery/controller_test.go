package gallery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/backend"
	"tush00nka/teledrive/internal/model"
)

func newTestController(mb *fakeMediaBackend, up *fakeUploader, ranker Ranker) (*Controller, *recordingNotifier) {
	log := zap.NewNop().Sugar()
	if up == nil {
		up = &fakeUploader{}
	}
	notifier := &recordingNotifier{}
	ctrl := NewController(
		"sess-1",
		mb,
		NewQueryEngine(ranker, log),
		NewUploadCoordinator("sess-1", up, UploadOptions{}, log),
		notifier,
		log,
	)
	return ctrl, notifier
}

func TestMountRedirectsWhenLoggedOut(t *testing.T) {
	ctrl, _ := newTestController(&fakeMediaBackend{status: model.AuthStatus{LoggedIn: false}}, nil, nil)

	assert.Equal(t, AuthRedirecting, ctrl.Mount(context.Background()))
	assert.Equal(t, AuthRedirecting, ctrl.Snapshot().Auth)
}

func TestMountRedirectsWhenStatusFails(t *testing.T) {
	mb := &fakeMediaBackend{statusErr: &backend.NetworkError{Op: "auth_status", Err: errors.New("refused")}}
	ctrl, _ := newTestController(mb, nil, nil)

	assert.Equal(t, AuthRedirecting, ctrl.Mount(context.Background()))
}

func TestMountLoadsCollection(t *testing.T) {
	mb := &fakeMediaBackend{
		status: model.AuthStatus{LoggedIn: true, User: &model.User{FirstName: "Ann"}},
		items:  sampleItems(),
	}
	ctrl, _ := newTestController(mb, nil, nil)

	require.Equal(t, AuthAuthenticated, ctrl.Mount(context.Background()))

	snap := ctrl.Snapshot()
	assert.Equal(t, MediaIdle, snap.Media)
	assert.Equal(t, "Ann", snap.User.DisplayName())
	assert.Equal(t, 3, snap.TotalCount)
	assert.Equal(t, []string{"id2", "id3", "id1"}, ids(snap.Items))
}

func TestEnsureLoadedAfterLogin(t *testing.T) {
	fetches := 0
	mb := &fakeMediaBackend{items: sampleItems()}
	mb.fetchHook = func() { fetches++ }
	ctrl, _ := newTestController(mb, nil, nil)

	ctrl.EnsureLoaded(context.Background())
	assert.Equal(t, 0, fetches, "not logged in yet")

	ctrl.MarkAuthenticated(&model.User{FirstName: "Ann"})
	ctrl.EnsureLoaded(context.Background())
	ctrl.EnsureLoaded(context.Background())
	assert.Equal(t, 1, fetches)
	assert.Equal(t, 3, ctrl.Snapshot().TotalCount)

	ctrl.Reset()
	ctrl.MarkAuthenticated(&model.User{FirstName: "Ann"})
	ctrl.EnsureLoaded(context.Background())
	assert.Equal(t, 2, fetches)
}

func TestLoadFailureEmptiesCollection(t *testing.T) {
	mb := &fakeMediaBackend{items: sampleItems()}
	ctrl, notifier := newTestController(mb, nil, nil)
	ctrl.Load(context.Background())
	require.Equal(t, 3, ctrl.Snapshot().TotalCount)

	mb.fetchErr = &backend.NetworkError{Op: "fetch_media", Err: errors.New("connection reset")}
	require.NotPanics(t, func() { ctrl.Load(context.Background()) })

	snap := ctrl.Snapshot()
	assert.Equal(t, MediaError, snap.Media)
	assert.Empty(t, snap.Items)
	assert.Zero(t, snap.TotalCount)

	notices := ctrl.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, model.NoticeError, notices[0].Level)
	assert.Equal(t, "Error Loading Media", notices[0].Title)
	assert.Len(t, notifier.notices, 1)
	assert.Empty(t, ctrl.Notices())
}

func TestLoadRemoteErrorMessageIsShown(t *testing.T) {
	mb := &fakeMediaBackend{fetchErr: &backend.RemoteError{Op: "fetch_media", StatusCode: 420, Message: "Flood wait: try again in 5 seconds"}}
	ctrl, _ := newTestController(mb, nil, nil)
	ctrl.Load(context.Background())

	notices := ctrl.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "Flood wait: try again in 5 seconds", notices[0].Message)
}

func TestSearchThenSortScenario(t *testing.T) {
	mb := &fakeMediaBackend{items: []model.MediaItem{
		{ID: "id1", Name: "Cat", Timestamp: 1000, Tags: []string{"pets"}},
		{ID: "id2", Name: "Dog", Timestamp: 2000, Tags: []string{"pets"}},
		{ID: "id3", Name: "Invoice", Timestamp: 3000},
	}}
	ctrl, _ := newTestController(mb, nil, nil)
	ctrl.Load(context.Background())

	require.NoError(t, ctrl.SetSort(model.SortSpec{Key: model.SortByDate, Order: model.SortAsc}))
	ctrl.Search(context.Background(), "pets")
	snap := ctrl.Snapshot()
	assert.Equal(t, MediaIdle, snap.Media)
	assert.Equal(t, "pets", snap.Term)
	assert.Equal(t, []string{"id1", "id2"}, ids(snap.Items))
	assert.Equal(t, 3, snap.TotalCount)
	assert.Equal(t, 2, snap.ShownCount)

	require.NoError(t, ctrl.SetSort(model.SortSpec{Key: model.SortByDate, Order: model.SortDesc}))
	assert.Equal(t, []string{"id2", "id1"}, ids(ctrl.Snapshot().Items))
}

func TestSearchFailureFallback(t *testing.T) {
	ctrl, _ := newTestController(&fakeMediaBackend{items: sampleItems()}, nil, nil)
	ctrl.Load(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ctrl.Search(ctx, "pets")
	assert.Empty(t, ctrl.Snapshot().Items)

	ctrl.Search(ctx, "")
	assert.Len(t, ctrl.Snapshot().Items, 3)

	notices := ctrl.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, "Search Failed", notices[0].Title)
}

func TestSetSortRejectsUnknownKey(t *testing.T) {
	ctrl, _ := newTestController(&fakeMediaBackend{}, nil, nil)

	err := ctrl.SetSort(model.SortSpec{Key: "size", Order: model.SortAsc})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, model.DefaultSort(), ctrl.Snapshot().Sort)
}

func TestSearchDuringInitialLoadKeepsFetchedItems(t *testing.T) {
	mb := &fakeMediaBackend{items: sampleItems()}
	ctrl, _ := newTestController(mb, nil, nil)

	mb.fetchHook = func() {
		mb.fetchHook = nil
		ctrl.Search(context.Background(), "pets")
		assert.Equal(t, LoadingFetch, ctrl.Snapshot().Loading)
	}
	ctrl.Load(context.Background())

	snap := ctrl.Snapshot()
	assert.Equal(t, MediaIdle, snap.Media)
	assert.Equal(t, LoadingNone, snap.Loading)
	assert.Equal(t, 3, snap.TotalCount)
	assert.Equal(t, 3, snap.ShownCount)
	assert.Empty(t, snap.Term)
	assert.Empty(t, ctrl.Notices())
}

func TestSearchDuringReloadKeepsFetchedItems(t *testing.T) {
	mb := &fakeMediaBackend{status: model.AuthStatus{LoggedIn: true}, items: sampleItems()}
	ctrl, _ := newTestController(mb, nil, nil)
	require.Equal(t, AuthAuthenticated, ctrl.Mount(context.Background()))
	require.Equal(t, 3, ctrl.Snapshot().TotalCount)

	mb.items = append(sampleItems(), model.MediaItem{ID: "id4", Name: "Parrot", Timestamp: 4000, Tags: []string{"pets"}})
	mb.fetchHook = func() {
		mb.fetchHook = nil
		ctrl.Search(context.Background(), "pets")
	}
	ctrl.Load(context.Background())

	snap := ctrl.Snapshot()
	assert.Equal(t, MediaIdle, snap.Media)
	assert.Equal(t, 4, snap.TotalCount)
	assert.Equal(t, []string{"id4", "id2", "id3", "id1"}, ids(snap.Items))
}

func TestNewerSearchSupersedesOlder(t *testing.T) {
	ranker := &fakeRanker{}
	ctrl, _ := newTestController(&fakeMediaBackend{items: sampleItems()}, nil, ranker)
	ctrl.Load(context.Background())

	// второй поиск начинается, пока первый ждёт ранжирования
	ranker.hook = func(term string) {
		if term == "pets" {
			ctrl.Search(context.Background(), "report")
		}
	}
	ctrl.Search(context.Background(), "pets")

	snap := ctrl.Snapshot()
	assert.Equal(t, "report", snap.Term)
	assert.Equal(t, []string{"id3"}, ids(snap.Items))
	assert.Equal(t, MediaIdle, snap.Media)
	assert.Equal(t, LoadingNone, snap.Loading)
}

func TestUploadDuringSearchIsKept(t *testing.T) {
	up := &fakeUploader{}
	require.NoError(t, decodeJSON(`{"success":true,"message":"Done","newItem":{"id":"new","name":"Receipt","timestamp":3000}}`, &up.resp))
	ranker := &fakeRanker{}
	ctrl, _ := newTestController(&fakeMediaBackend{items: sampleItems()}, up, ranker)
	ctrl.Load(context.Background())

	ranker.hook = func(string) {
		ranker.hook = nil
		_, err := ctrl.Upload(context.Background(), validRequest())
		assert.NoError(t, err)
	}
	ctrl.Search(context.Background(), "pets")

	snap := ctrl.Snapshot()
	assert.Equal(t, 4, snap.TotalCount)
	assert.Equal(t, "pets", snap.Term)
	assert.Equal(t, []string{"id2", "id1"}, ids(snap.Items))

	_, found := ctrl.Preview("new")
	assert.True(t, found)
}

func TestUploadPrependsConfirmedItem(t *testing.T) {
	up := &fakeUploader{resp: &backend.UploadResponse{Success: true, Message: "Done"}}
	require.NoError(t, decodeJSON(`{"success":true,"message":"Done","newItem":{"id":"new","name":"Fresh","timestamp":500}}`, up.resp))

	ctrl, _ := newTestController(&fakeMediaBackend{items: sampleItems()}, up, nil)
	ctrl.Load(context.Background())
	ctrl.Search(context.Background(), "pets")

	result, err := ctrl.Upload(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "new", result.Item.ID)

	snap := ctrl.Snapshot()
	assert.Equal(t, 4, snap.TotalCount)
	// дата по убыванию: новый элемент со старой датой уходит в конец
	assert.Equal(t, []string{"id2", "id1", "new"}, ids(snap.Items))

	notices := ctrl.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "Upload Successful", notices[0].Title)
}

func TestUploadValidationLeavesStoreUnchanged(t *testing.T) {
	up := &fakeUploader{}
	ctrl, _ := newTestController(&fakeMediaBackend{items: sampleItems()}, up, nil)
	ctrl.Load(context.Background())
	before := ctrl.Snapshot()

	req := validRequest()
	req.FileName = ""
	_, err := ctrl.Upload(context.Background(), req)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Zero(t, up.calls)
	assert.Equal(t, before.Items, ctrl.Snapshot().Items)
	assert.Equal(t, "Invalid Upload", ctrl.Notices()[0].Title)
}

func TestUploadProvisionalIsNotMerged(t *testing.T) {
	up := &fakeUploader{resp: &backend.UploadResponse{Success: true, Message: "Saved."}}
	ctrl, _ := newTestController(&fakeMediaBackend{items: sampleItems()}, up, nil)
	ctrl.Load(context.Background())

	result, err := ctrl.Upload(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, result.Provisional)
	assert.Equal(t, 3, ctrl.Snapshot().TotalCount)

	_, found := ctrl.Preview(result.Item.ID)
	assert.False(t, found)
}

func TestUploadAfterResetIsDiscarded(t *testing.T) {
	up := &fakeUploader{}
	require.NoError(t, decodeJSON(`{"success":true,"newItem":{"id":"late"}}`, &up.resp))

	ctrl, _ := newTestController(&fakeMediaBackend{items: sampleItems()}, up, nil)
	ctrl.Load(context.Background())
	up.hook = ctrl.Reset

	_, err := ctrl.Upload(context.Background(), validRequest())
	require.NoError(t, err)

	snap := ctrl.Snapshot()
	assert.Equal(t, AuthUnauthenticated, snap.Auth)
	assert.Zero(t, snap.TotalCount)
	assert.Empty(t, ctrl.Notices())
}

func TestPreview(t *testing.T) {
	ctrl, _ := newTestController(&fakeMediaBackend{items: sampleItems()}, nil, nil)
	ctrl.Load(context.Background())

	item, ok := ctrl.Preview("id3")
	require.True(t, ok)
	assert.Equal(t, "Tax report", item.Name)
}

func TestResetClearsState(t *testing.T) {
	mb := &fakeMediaBackend{status: model.AuthStatus{LoggedIn: true}, items: sampleItems()}
	ctrl, _ := newTestController(mb, nil, nil)
	ctrl.Mount(context.Background())
	ctrl.Search(context.Background(), "pets")

	ctrl.Reset()
	snap := ctrl.Snapshot()
	assert.Equal(t, AuthUnauthenticated, snap.Auth)
	assert.Empty(t, snap.Items)
	assert.Empty(t, snap.Term)
}
