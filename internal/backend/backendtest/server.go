// Package backendtest runs an in-process stand-in for the remote TeleDrive
// service.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"tush00nka/teledrive/internal/model"
)

const (
	CookieName = "tg_session"
	ValidCode  = "12345"
)

// Server emulates login, listing and upload. Logins are tracked per remote
// session cookie, so two clients do not share state.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	phones    map[string]string // cookie -> phone
	loggedIn  map[string]bool
	items     []model.MediaItem
	nextID    int
	failMedia bool
	uploads   []Upload
}

// Upload is one multipart request the server received.
type Upload struct {
	FileName string
	Tags     string
	Original string
	Size     int
}

func NewServer(t testing.TB, items ...model.MediaItem) *Server {
	t.Helper()
	s := &Server{
		phones:   make(map[string]string),
		loggedIn: make(map[string]bool),
		items:    items,
		nextID:   100,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/send_code_request", s.sendCode)
	mux.HandleFunc("/sign_in", s.signIn)
	mux.HandleFunc("/is_authenticated", s.status)
	mux.HandleFunc("/logout", s.logout)
	mux.HandleFunc("/get_saved_messages_media", s.media)
	mux.HandleFunc("/upload_file", s.upload)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// FailMedia makes the listing endpoint answer 500.
func (s *Server) FailMedia(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMedia = fail
}

func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) session(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) sendCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Phone number is required"})
		return
	}

	s.mu.Lock()
	id := s.session(r)
	if id == "" {
		s.nextID++
		id = fmt.Sprintf("remote-%d", s.nextID)
	}
	s.phones[id] = body.Phone
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: id, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Code sent"})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.session(r)
	if _, ok := s.phones[id]; !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Phone number not found in session. Request a code first."})
		return
	}
	if body.Code != ValidCode {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid code"})
		return
	}
	s.loggedIn[id] = true
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Signed in",
		"user":    map[string]any{"id": 42, "firstName": "Ann", "username": "ann"},
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn[s.session(r)] {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loggedIn": true,
		"user":     map[string]any{"id": 42, "firstName": "Ann", "username": "ann"},
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	id := s.session(r)
	delete(s.loggedIn, id)
	delete(s.phones, id)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) media(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn[s.session(r)] {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}
	if s.failMedia {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch media"})
		return
	}
	writeJSON(w, http.StatusOK, s.items)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Bad form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "No file part"})
		return
	}
	defer file.Close()
	content, _ := io.ReadAll(file)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn[s.session(r)] {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}

	up := Upload{
		FileName: r.FormValue("fileName"),
		Tags:     r.FormValue("tags"),
		Original: header.Filename,
		Size:     len(content),
	}
	s.uploads = append(s.uploads, up)

	s.nextID++
	item := model.MediaItem{
		ID:        fmt.Sprintf("%d", s.nextID),
		Name:      up.FileName,
		Type:      model.FileTypeFromMIME(header.Header.Get("Content-Type")),
		URL:       fmt.Sprintf("/stream_media/%d", s.nextID),
		Timestamp: 5000,
		Tags:      splitTags(up.Tags),
	}
	s.items = append([]model.MediaItem{item}, s.items...)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "File uploaded successfully",
		"newItem": item,
	})
}

func splitTags(raw string) []string {
	out := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
