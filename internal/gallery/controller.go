package gallery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tush00nka/teledrive/internal/backend"
	"tush00nka/teledrive/internal/model"
	"tush00nka/teledrive/internal/pkg/metrics"
)

type AuthState string

const (
	AuthUnauthenticated AuthState = "unauthenticated"
	AuthChecking        AuthState = "checking"
	AuthAuthenticated   AuthState = "authenticated"
	AuthRedirecting     AuthState = "redirecting"
)

type MediaState string

const (
	MediaIdle    MediaState = "idle"
	MediaLoading MediaState = "loading"
	MediaError   MediaState = "error"
)

type LoadingKind string

const (
	LoadingNone   LoadingKind = ""
	LoadingFetch  LoadingKind = "load"
	LoadingSearch LoadingKind = "search"
)

const maxQueuedNotices = 50

// MediaBackend is the part of the remote service the controller drives directly.
type MediaBackend interface {
	AuthStatus(ctx context.Context) (model.AuthStatus, error)
	FetchMedia(ctx context.Context) ([]model.MediaItem, error)
}

// Notifier receives every notice as it is raised. Notify is called with the
// controller locked and must not block.
type Notifier interface {
	Notify(sessionID string, notice model.Notice)
}

// Snapshot is a consistent view of the controller state.
type Snapshot struct {
	Auth       AuthState         `json:"auth"`
	Media      MediaState        `json:"media"`
	Loading    LoadingKind       `json:"loading,omitempty"`
	User       *model.User       `json:"user,omitempty"`
	Term       string            `json:"term"`
	Sort       model.SortSpec    `json:"sort"`
	Items      []model.MediaItem `json:"items"`
	TotalCount int               `json:"totalCount"`
	ShownCount int               `json:"shownCount"`
}

// Controller is the gallery view-model of one browser session.
// The mutex is never held across a remote call.
type Controller struct {
	sessionID string
	backend   MediaBackend
	query     *QueryEngine
	uploads   *UploadCoordinator
	notifier  Notifier
	log       *zap.SugaredLogger
	now       func() time.Time

	mu      sync.Mutex
	store   Store
	auth    AuthState
	media   MediaState
	loading LoadingKind
	user    *model.User
	term    string
	sort    model.SortSpec
	notices []model.Notice
	loaded  bool // a Load finished since the last reset

	loadSeq       uint64 // newest load
	searchSeq     uint64 // newest search
	loadPending   bool
	searchPending bool
	uploadSeq     uint64
	epoch         uint64 // bumped by Reset
}

func NewController(sessionID string, mb MediaBackend, query *QueryEngine, uploads *UploadCoordinator, notifier Notifier, log *zap.SugaredLogger) *Controller {
	return &Controller{
		sessionID: sessionID,
		backend:   mb,
		query:     query,
		uploads:   uploads,
		notifier:  notifier,
		log:       log.With("session", sessionID),
		now:       time.Now,
		auth:      AuthUnauthenticated,
		media:     MediaIdle,
		sort:      model.DefaultSort(),
	}
}

// Mount checks the remote login and loads the collection when logged in.
// It returns the resulting auth state; AuthRedirecting means the caller should
// send the user to the login flow.
func (c *Controller) Mount(ctx context.Context) AuthState {
	c.mu.Lock()
	c.auth = AuthChecking
	epoch := c.epoch
	c.mu.Unlock()

	status, err := c.backend.AuthStatus(ctx)

	c.mu.Lock()
	if epoch != c.epoch {
		state := c.auth
		c.mu.Unlock()
		return state
	}
	if err != nil || !status.LoggedIn {
		if err != nil {
			c.log.Warnw("auth status check failed", "error", err)
		}
		c.auth = AuthRedirecting
		c.user = nil
		c.mu.Unlock()
		return AuthRedirecting
	}
	c.auth = AuthAuthenticated
	c.user = status.User
	c.mu.Unlock()

	c.Load(ctx)
	return AuthAuthenticated
}

// MarkAuthenticated records a login completed through the session flow.
func (c *Controller) MarkAuthenticated(user *model.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = AuthAuthenticated
	c.user = user
}

// EnsureLoaded runs the first Load after a login. Later calls do nothing.
func (c *Controller) EnsureLoaded(ctx context.Context) {
	c.mu.Lock()
	pending := !c.loaded && c.auth == AuthAuthenticated
	c.mu.Unlock()
	if pending {
		c.Load(ctx)
	}
}

// settle picks the loading indicator for whatever is still in flight.
// Must be called with mu held.
func (c *Controller) settle(done MediaState) {
	switch {
	case c.loadPending:
		c.media, c.loading = MediaLoading, LoadingFetch
	case c.searchPending:
		c.media, c.loading = MediaLoading, LoadingSearch
	default:
		c.media, c.loading = done, LoadingNone
	}
}

func (c *Controller) discard(action string, seq, latest uint64) {
	metrics.StaleResults.WithLabelValues(action).Inc()
	c.log.Debugw("discarding stale result", "action", action, "seq", seq, "latest", latest)
}

// Load replaces the collection with the remote listing. Only a newer Load or a
// Reset supersedes it. Failures leave an empty collection and an error
// notice; nothing is retried.
func (c *Controller) Load(ctx context.Context) {
	c.mu.Lock()
	c.loadSeq++
	seq, epoch := c.loadSeq, c.epoch
	c.loadPending = true
	c.settle(c.media)
	c.mu.Unlock()

	items, err := c.backend.FetchMedia(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || seq != c.loadSeq {
		c.discard("load", seq, c.loadSeq)
		return
	}

	// the term is cleared, so searches still in flight no longer apply
	c.loadPending = false
	c.searchPending = false
	c.searchSeq++
	c.term = ""
	c.loaded = true
	if err != nil {
		c.log.Errorw("fetch media failed", "error", err)
		c.store.ReplaceAll(nil)
		c.settle(MediaError)
		c.pushNotice(model.NoticeError, "Error Loading Media",
			backend.UserMessage(err, "Could not fetch media items."))
		return
	}

	c.store.ReplaceAll(items)
	c.settle(MediaIdle)
}

// Search filters the current collection. A newer Search, a completed Load or
// a Reset supersedes it. If an upload changed the collection meanwhile, the
// term is re-applied to the current items without ranking.
// On failure the displayed set falls back to empty for a non-empty term, or
// to everything otherwise.
func (c *Controller) Search(ctx context.Context, term string) {
	c.mu.Lock()
	c.searchSeq++
	seq, epoch := c.searchSeq, c.epoch
	version := c.store.Version()
	c.searchPending = true
	c.settle(c.media)
	c.term = term
	all := c.store.All()
	c.mu.Unlock()

	results, err := c.query.Search(ctx, term, all)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || seq != c.searchSeq {
		c.discard("search", seq, c.searchSeq)
		return
	}

	c.searchPending = false
	c.settle(MediaIdle)
	if err != nil {
		c.log.Warnw("search failed", "term", term, "error", err)
		if strings.TrimSpace(term) != "" {
			c.store.SetDisplayed(nil)
		} else {
			c.store.SetDisplayed(c.store.All())
		}
		c.pushNotice(model.NoticeError, "Search Failed", "Could not perform search.")
		return
	}

	if version != c.store.Version() {
		c.log.Debugw("collection changed during search, filtering again", "term", term)
		results = filter(c.store.All(), term)
	}
	c.store.SetDisplayed(results)
}

func filter(all []model.MediaItem, term string) []model.MediaItem {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return all
	}
	out := make([]model.MediaItem, 0, len(all))
	for _, it := range all {
		if Matches(it, needle) {
			out = append(out, it)
		}
	}
	return out
}

func (c *Controller) SetSort(spec model.SortSpec) error {
	if err := spec.Validate(); err != nil {
		return &ValidationError{Field: "sort", Message: err.Error()}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sort = spec
	return nil
}

// Upload submits a file. A confirmed item is prepended to the collection; a
// provisional one is returned but not merged.
func (c *Controller) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	c.mu.Lock()
	c.uploadSeq++
	seq, epoch := c.uploadSeq, c.epoch
	c.mu.Unlock()

	result, err := c.uploads.Upload(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		metrics.StaleResults.WithLabelValues("upload").Inc()
		c.log.Debugw("discarding upload result after reset", "seq", seq)
		return result, err
	}

	if err != nil {
		var verr *ValidationError
		title := "Upload Failed"
		if errors.As(err, &verr) {
			title = "Invalid Upload"
		}
		c.pushNotice(model.NoticeError, title, err.Error())
		return result, err
	}

	if result.Provisional {
		c.log.Infow("upload accepted without item, keeping it provisional", "local_id", result.Item.ID)
		c.pushNotice(model.NoticeInfo, "Upload Received",
			result.Message+" It will appear after the next refresh.")
		return result, nil
	}

	c.store.Prepend(result.Item)
	c.pushNotice(model.NoticeInfo, "Upload Successful", result.Message)
	return result, nil
}

// Preview returns the item selected for the preview dialog.
func (c *Controller) Preview(id string) (model.MediaItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Find(id)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	displayed := c.store.Displayed()
	return Snapshot{
		Auth:       c.auth,
		Media:      c.media,
		Loading:    c.loading,
		User:       c.user,
		Term:       c.term,
		Sort:       c.sort,
		Items:      Sort(displayed, c.sort),
		TotalCount: len(c.store.all),
		ShownCount: len(displayed),
	}
}

func (c *Controller) AuthState() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth
}

// Reset returns to the logged-out state. Results of requests started before
// the reset are dropped.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.store.ReplaceAll(nil)
	c.auth = AuthUnauthenticated
	c.media = MediaIdle
	c.loading = LoadingNone
	c.user = nil
	c.term = ""
	c.notices = nil
	c.loaded = false
	c.loadPending = false
	c.searchPending = false
}

// Notices drains the queued notices.
func (c *Controller) Notices() []model.Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notices
	c.notices = nil
	if out == nil {
		out = []model.Notice{}
	}
	return out
}

// pushNotice must be called with mu held.
func (c *Controller) pushNotice(level model.NoticeLevel, title, message string) {
	n := model.Notice{Level: level, Title: title, Message: message, Time: c.now()}
	c.notices = append(c.notices, n)
	if len(c.notices) > maxQueuedNotices {
		c.notices = c.notices[len(c.notices)-maxQueuedNotices:]
	}
	if c.notifier != nil {
		c.notifier.Notify(c.sessionID, n)
	}
}
