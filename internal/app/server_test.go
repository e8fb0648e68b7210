package app

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "tush00nka/teledrive/docs"
	"tush00nka/teledrive/internal/backend/backendtest"
	"tush00nka/teledrive/internal/gallery"
	"tush00nka/teledrive/internal/handler"
	"tush00nka/teledrive/internal/pkg/auth"
	"tush00nka/teledrive/internal/repository"
	"tush00nka/teledrive/internal/service"
	"tush00nka/teledrive/internal/ws"
)

func newTestServer(t *testing.T, origins []string, accessLog io.Writer) *Server {
	t.Helper()
	log := zap.NewNop().Sugar()
	remote := backendtest.NewServer(t)
	hub := ws.NewHub(log)
	t.Cleanup(hub.Shutdown)

	sessions := service.NewSessionService(service.SessionConfig{
		BackendURL:     remote.URL,
		BackendTimeout: time.Second,
		SessionTTL:     time.Hour,
	}, repository.NewMemorySessionRepository(), auth.NewTokens("k", time.Hour), gallery.NewQueryEngine(nil, log), hub, log)

	return NewServer(ServerOptions{
		Sessions:       handler.NewSessionMiddleware(sessions, time.Hour, false, log),
		Auth:           handler.NewAuthHandler(sessions, hub),
		Media:          handler.NewMediaHandler(sessions, nil, 0),
		Notices:        handler.NewNoticeHandler(hub, origins, log),
		AllowedOrigins: origins,
		AccessLog:      accessLog,
		Log:            log,
	})
}

func TestCORSPreflightRequest(t *testing.T) {
	server := newTestServer(t, []string{"*"}, nil)

	req := httptest.NewRequest("OPTIONS", "/api/media/search", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	// For OPTIONS requests, gorilla/handlers sets the Allow-Headers based on request
	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Headers"))
	assert.Empty(t, rr.Result().Cookies(), "preflight must not start a session")
}

func TestCORSWithConfiguredOrigins(t *testing.T) {
	server := newTestServer(t, []string{"http://localhost:3000"}, nil)

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestOpsEndpoints(t *testing.T) {
	var accessLog bytes.Buffer
	server := newTestServer(t, nil, &accessLog)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/ping", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, accessLog.String(), "GET /ping")

	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "teledrive_http_request_duration_seconds")
	assert.Contains(t, rr.Body.String(), `route="/ping"`)

	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `"title": "TeleDrive"`))
}

func TestAPIRoutesStartSession(t *testing.T) {
	server := newTestServer(t, nil, nil)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/api/media", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
}
