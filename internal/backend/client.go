package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tush00nka/teledrive/internal/model"
	"tush00nka/teledrive/internal/pkg/metrics"
)

const maxErrorBody = 64 * 1024

// Пути удалённого сервиса
const (
	pathSendCode = "/send_code_request"
	pathSignIn   = "/sign_in"
	pathStatus   = "/is_authenticated"
	pathLogout   = "/logout"
	pathMedia    = "/get_saved_messages_media"
	pathUpload   = "/upload_file"
)

// Client talks to the remote Telegram-backed auth and media service on behalf of one
// browser session. The cookie jar carries the remote session between calls.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	log     *zap.SugaredLogger

	mu   sync.Mutex
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration, log *zap.SugaredLogger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &Client{baseURL: u, timeout: timeout, log: log}
	c.http = c.newHTTPClient()
	return c, nil
}

func (c *Client) newHTTPClient() *http.Client {
	// cookiejar.New с nil-опциями не возвращает ошибку
	jar, _ := cookiejar.New(nil)
	return &http.Client{Timeout: c.timeout, Jar: jar}
}

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.http
}

// Cookies returns the remote cookies currently held for the backend origin.
func (c *Client) Cookies() []model.SessionCookie {
	cookies := c.client().Jar.Cookies(c.baseURL)
	out := make([]model.SessionCookie, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, model.SessionCookie{Name: ck.Name, Value: ck.Value})
	}
	return out
}

// SetCookies restores cookies persisted with a session record.
func (c *Client) SetCookies(cookies []model.SessionCookie) {
	if len(cookies) == 0 {
		return
	}
	list := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		list = append(list, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	c.client().Jar.SetCookies(c.baseURL, list)
}

// ClearCookies drops the remote session.
func (c *Client) ClearCookies() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.http = c.newHTTPClient()
}

type messageResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type signInResponse struct {
	Message string      `json:"message,omitempty"`
	User    *model.User `json:"user,omitempty"`
}

type statusResponse struct {
	LoggedIn      *bool       `json:"loggedIn"`
	Authenticated *bool       `json:"authenticated"`
	User          *model.User `json:"user"`
	Error         string      `json:"error"`
}

// UploadForm is the multipart body sent to the upload endpoint.
type UploadForm struct {
	Filename    string
	ContentType string
	Content     []byte
	DisplayName string
	Tags        string
}

// UploadResponse is the remote answer to an upload.
type UploadResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	NewItem *wireItem `json:"newItem,omitempty"`
}

// Item converts the returned item, if any.
func (r *UploadResponse) Item() (*model.MediaItem, error) {
	if r.NewItem == nil {
		return nil, nil
	}
	item, err := r.NewItem.toModel()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) StartLogin(ctx context.Context, phone string) (string, error) {
	var resp messageResponse
	err := c.doJSON(ctx, "start_login", http.MethodPost, pathSendCode, map[string]string{"phone_number": phone}, &resp)
	return resp.Message, err
}

func (c *Client) VerifyLogin(ctx context.Context, code string) (*model.User, string, error) {
	var resp signInResponse
	if err := c.doJSON(ctx, "verify_login", http.MethodPost, pathSignIn, map[string]string{"code": code}, &resp); err != nil {
		return nil, "", err
	}
	return resp.User, resp.Message, nil
}

// AuthStatus accepts both {loggedIn} and the older {authenticated} field.
func (c *Client) AuthStatus(ctx context.Context) (model.AuthStatus, error) {
	var resp statusResponse
	if err := c.doJSON(ctx, "auth_status", http.MethodGet, pathStatus, nil, &resp); err != nil {
		return model.AuthStatus{}, err
	}

	status := model.AuthStatus{User: resp.User}
	switch {
	case resp.LoggedIn != nil:
		status.LoggedIn = *resp.LoggedIn
	case resp.Authenticated != nil:
		status.LoggedIn = *resp.Authenticated
	}
	if !status.LoggedIn {
		status.User = nil
	}
	return status, nil
}

func (c *Client) Logout(ctx context.Context) error {
	var resp messageResponse
	return c.doJSON(ctx, "logout", http.MethodPost, pathLogout, nil, &resp)
}

// FetchMedia returns the stored items. Entries without an id are skipped.
func (c *Client) FetchMedia(ctx context.Context) ([]model.MediaItem, error) {
	var raw []wireItem
	if err := c.doJSON(ctx, "fetch_media", http.MethodGet, pathMedia, nil, &raw); err != nil {
		return nil, err
	}

	items := make([]model.MediaItem, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, w := range raw {
		item, err := w.toModel()
		if err != nil {
			c.log.Warnw("skipping media entry", "index", i, "error", err)
			continue
		}
		if _, dup := seen[item.ID]; dup {
			c.log.Warnw("skipping duplicate media entry", "id", item.ID)
			continue
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}
	return items, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (c *Client) UploadFile(ctx context.Context, form UploadForm) (*UploadResponse, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(form.Filename)))
	h.Set("Content-Type", form.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(form.Content); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}

	fields := [][2]string{
		{"fileName", form.DisplayName},
		{"tags", form.Tags},
		// старый бэкенд читает подпись из caption
		{"caption", form.Tags},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var resp UploadResponse
	if err := c.do(ctx, "upload", http.MethodPost, pathUpload, mw.FormDataContentType(), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client().Do(req)
	metrics.BackendDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequests.WithLabelValues(op, "network_error").Inc()
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.BackendRequests.WithLabelValues(op, "remote_error").Inc()
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.BackendRequests.WithLabelValues(op, "malformed").Inc()
		if errors.Is(err, io.EOF) {
			err = errors.New("empty response body")
		}
		return &RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Malformed response from server: %v", err),
		}
	}

	metrics.BackendRequests.WithLabelValues(op, "ok").Inc()
	return nil
}

// errorMessage prefers "error", then "message", then a generic status text.
func errorMessage(resp *http.Response) string {
	var body messageResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return fmt.Sprintf("Server error: %d", resp.StatusCode)
}
