package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tush00nka/teledrive/internal/pkg/auth"
	"tush00nka/teledrive/internal/pkg/httputils"
	"tush00nka/teledrive/internal/service"
)

type sessionKey struct{}

// SessionMiddleware attaches the browser session to every request and issues
// the session cookie when a new session is started.
type SessionMiddleware struct {
	sessions     service.GallerySessions
	cookieTTL    time.Duration
	secureCookie bool
	log          *zap.SugaredLogger
}

func NewSessionMiddleware(sessions service.GallerySessions, cookieTTL time.Duration, secureCookie bool, log *zap.SugaredLogger) *SessionMiddleware {
	return &SessionMiddleware{
		sessions:     sessions,
		cookieTTL:    cookieTTL,
		secureCookie: secureCookie,
		log:          log,
	}
}

func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, _ := auth.FromRequest(r)
		s, newToken, err := m.sessions.Open(r.Context(), token)
		if err != nil {
			m.log.Errorw("failed to open session", "error", err)
			httputils.ResponseError(w, http.StatusInternalServerError, "Failed to open session")
			return
		}
		if newToken != "" {
			auth.SetCookie(w, newToken, m.cookieTTL, m.secureCookie)
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, s)))
	})
}

// SessionFrom returns the session attached by SessionMiddleware.
func SessionFrom(ctx context.Context) (*service.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*service.Session)
	return s, ok && s != nil
}

func mustSession(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	s, ok := SessionFrom(r.Context())
	if !ok {
		httputils.ResponseError(w, http.StatusInternalServerError, "Session is not available")
	}
	return s, ok
}
