package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tush00nka/teledrive/internal/backend"
	"tush00nka/teledrive/internal/gallery"
	"tush00nka/teledrive/internal/model"
	"tush00nka/teledrive/internal/pkg/auth"
	"tush00nka/teledrive/internal/pkg/metrics"
	"tush00nka/teledrive/internal/repository"
)

var ErrRateLimited = errors.New("too many login attempts, try again later")

type SessionConfig struct {
	BackendURL         string
	BackendTimeout     time.Duration
	SessionTTL         time.Duration
	IdleTimeout        time.Duration
	LoginRatePerMinute int
	Upload             gallery.UploadOptions
}

// Session is one browser session: its persisted record, its remote client and
// its gallery controller.
type Session struct {
	Controller *gallery.Controller
	Client     *backend.Client

	limiter  *rate.Limiter
	lastSeen atomic.Time

	mu     sync.Mutex
	record model.Session
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.ID
}

func (s *Session) Phone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Phone
}

func (s *Session) Record() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

type SessionService struct {
	cfg      SessionConfig
	repo     repository.SessionRepository
	tokens   *auth.Tokens
	query    *gallery.QueryEngine
	notifier gallery.Notifier
	log      *zap.SugaredLogger
	now      func() time.Time

	mu   sync.RWMutex
	live map[string]*Session
}

func NewSessionService(cfg SessionConfig, repo repository.SessionRepository, tokens *auth.Tokens,
	query *gallery.QueryEngine, notifier gallery.Notifier, log *zap.SugaredLogger) *SessionService {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.LoginRatePerMinute <= 0 {
		cfg.LoginRatePerMinute = 5
	}
	return &SessionService{
		cfg:      cfg,
		repo:     repo,
		tokens:   tokens,
		query:    query,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		live:     make(map[string]*Session),
	}
}

// Open resolves the session behind token, or starts a new one. A non-empty
// second result is a fresh token the caller must hand to the browser.
func (svc *SessionService) Open(ctx context.Context, token string) (*Session, string, error) {
	if token != "" {
		claims, err := svc.tokens.Validate(token)
		if err == nil {
			s, err := svc.lookup(ctx, claims.SessionID)
			if err == nil {
				s.lastSeen.Store(svc.now())
				return s, "", nil
			}
			if !errors.Is(err, repository.ErrSessionNotFound) {
				return nil, "", err
			}
		} else {
			svc.log.Debugw("ignoring invalid session token", "error", err)
		}
	}

	now := svc.now()
	rec := model.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(svc.cfg.SessionTTL),
	}
	s, err := svc.attach(rec)
	if err != nil {
		return nil, "", err
	}
	if err := svc.repo.Save(ctx, &rec); err != nil {
		return nil, "", fmt.Errorf("save session: %w", err)
	}

	newToken, err := svc.tokens.Generate(rec.ID, now)
	if err != nil {
		return nil, "", fmt.Errorf("sign session token: %w", err)
	}
	return s, newToken, nil
}

func (svc *SessionService) lookup(ctx context.Context, id string) (*Session, error) {
	svc.mu.RLock()
	s, ok := svc.live[id]
	svc.mu.RUnlock()
	if ok {
		return s, nil
	}

	rec, err := svc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err = svc.attach(*rec)
	if err != nil {
		return nil, err
	}
	s.Client.SetCookies(rec.Cookies)
	if rec.User != nil {
		s.Controller.MarkAuthenticated(rec.User)
	}
	return s, nil
}

// attach builds the in-memory half of a session and registers it.
func (svc *SessionService) attach(rec model.Session) (*Session, error) {
	client, err := backend.NewClient(svc.cfg.BackendURL, svc.cfg.BackendTimeout, svc.log)
	if err != nil {
		return nil, err
	}

	uploads := gallery.NewUploadCoordinator(rec.ID, client, svc.cfg.Upload, svc.log)
	s := &Session{
		Controller: gallery.NewController(rec.ID, client, svc.query, uploads, svc.notifier, svc.log),
		Client:     client,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(svc.cfg.LoginRatePerMinute)), svc.cfg.LoginRatePerMinute),
		record:     rec,
	}
	s.lastSeen.Store(svc.now())

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if existing, ok := svc.live[rec.ID]; ok {
		return existing, nil
	}
	svc.live[rec.ID] = s
	metrics.ActiveSessions.Set(float64(len(svc.live)))
	return s, nil
}

// persist stores the record with the client's current cookies.
func (svc *SessionService) persist(ctx context.Context, s *Session, update func(*model.Session)) {
	s.mu.Lock()
	if update != nil {
		update(&s.record)
	}
	s.record.Cookies = s.Client.Cookies()
	rec := s.record
	s.mu.Unlock()

	if err := svc.repo.Save(ctx, &rec); err != nil {
		svc.log.Warnw("failed to persist session", "session", rec.ID, "error", err)
	}
}

func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return &gallery.ValidationError{Field: "phone_number", Message: "Phone number is required"}
	}
	digits := strings.TrimPrefix(phone, "+")
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return &gallery.ValidationError{Field: "phone_number", Message: "Invalid phone number format"}
	}
	return nil
}

func ValidateCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return &gallery.ValidationError{Field: "code", Message: "Verification code is required"}
	}
	if strings.Trim(code, "0123456789") != "" {
		return &gallery.ValidationError{Field: "code", Message: "Verification code must be numeric"}
	}
	return nil
}

func (svc *SessionService) StartLogin(ctx context.Context, s *Session, phone string) (string, error) {
	if err := ValidatePhone(phone); err != nil {
		return "", err
	}
	if !s.limiter.Allow() {
		return "", ErrRateLimited
	}
	phone = strings.TrimSpace(phone)

	msg, err := s.Client.StartLogin(ctx, phone)
	if err != nil {
		return "", err
	}

	svc.persist(ctx, s, func(rec *model.Session) { rec.Phone = phone })
	return firstNonEmpty(msg, "Code request sent successfully"), nil
}

func (svc *SessionService) VerifyLogin(ctx context.Context, s *Session, code string) (*model.User, string, error) {
	if err := ValidateCode(code); err != nil {
		return nil, "", err
	}
	if s.Phone() == "" {
		return nil, "", &gallery.ValidationError{
			Field:   "code",
			Message: "Phone number not found in session. Request a code first.",
		}
	}

	user, msg, err := s.Client.VerifyLogin(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, "", err
	}

	if user == nil {
		// старый бэкенд не возвращает пользователя при входе
		if status, err := s.Client.AuthStatus(ctx); err == nil && status.User != nil {
			user = status.User
		}
	}
	if user == nil {
		user = &model.User{}
	}

	svc.persist(ctx, s, func(rec *model.Session) { rec.User = user })
	s.Controller.MarkAuthenticated(user)
	svc.log.Infow("login completed", "session", s.ID(), "user", user.DisplayName())
	return user, firstNonEmpty(msg, "Signed in successfully"), nil
}

func (svc *SessionService) Status(ctx context.Context, s *Session) (model.AuthStatus, error) {
	status, err := s.Client.AuthStatus(ctx)
	if err != nil {
		return model.AuthStatus{LoggedIn: false}, err
	}
	if status.LoggedIn && status.User == nil {
		status.User = s.Record().User
	}
	return status, nil
}

// Mount runs the controller mount and persists any refreshed remote cookies.
func (svc *SessionService) Mount(ctx context.Context, s *Session) gallery.AuthState {
	state := s.Controller.Mount(ctx)
	svc.persist(ctx, s, nil)
	return state
}

func (svc *SessionService) Upload(ctx context.Context, s *Session, req gallery.UploadRequest) (gallery.UploadResult, error) {
	return s.Controller.Upload(ctx, req)
}

// Logout ends the remote login. Local state is cleared even when the remote call fails.
func (svc *SessionService) Logout(ctx context.Context, s *Session) error {
	err := s.Client.Logout(ctx)
	if err != nil {
		svc.log.Warnw("remote logout failed", "session", s.ID(), "error", err)
	}

	s.Controller.Reset()
	s.Client.ClearCookies()
	svc.persist(ctx, s, func(rec *model.Session) {
		rec.Phone = ""
		rec.User = nil
	})
	return err
}

// Run evicts idle sessions from memory until ctx is done. Records stay in the
// repository and are restored on the next request.
func (svc *SessionService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := svc.evictIdle(); n > 0 {
				svc.log.Infow("evicted idle sessions", "evicted", n, "live", svc.Live())
			}
		}
	}
}

func (svc *SessionService) evictIdle() int {
	cutoff := svc.now().Add(-svc.cfg.IdleTimeout)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	evicted := 0
	for id, s := range svc.live {
		if s.lastSeen.Load().Before(cutoff) {
			delete(svc.live, id)
			evicted++
		}
	}
	metrics.ActiveSessions.Set(float64(len(svc.live)))
	return evicted
}

// Live reports how many sessions are held in memory.
func (svc *SessionService) Live() int {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return len(svc.live)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// PhoneOf returns the phone of a live session, or "".
func (svc *SessionService) PhoneOf(sessionID string) string {
	svc.mu.RLock()
	s, ok := svc.live[sessionID]
	svc.mu.RUnlock()
	if !ok {
		return ""
	}
	return s.Phone()
}
