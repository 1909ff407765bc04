// Package ragapi is the client for the RAG backend's REST API. Every desk
// session gets its own Client so that each browser keeps its own backend
// cookies.
package ragapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"github.com/ragdesk/ragdesk/internal/metrics"
	"github.com/ragdesk/ragdesk/internal/models"
)

// Cookie names set by the backend.
const (
	AccessTokenCookie = "access_token_cookie"
	CSRFTokenCookie   = "csrf_access_token"
	csrfHeader        = "X-CSRF-TOKEN"
)

// Operation names used in logs and metrics.
const (
	OpLogin          = "login"
	OpRegister       = "register"
	OpLogout         = "logout"
	OpListChats      = "list_chats"
	OpChatMessages   = "chat_messages"
	OpSendQuery      = "send_query"
	OpRevalidate     = "revalidate"
	OpUpload         = "upload"
	OpDocumentStatus = "document_status"
	OpDocument       = "document"
	OpHealth         = "health"
)

type requestStartedAt struct{}

// Client talks to one RAG backend on behalf of one desk session.
type Client struct {
	http *resty.Client
	jar  http.CookieJar
	base *url.URL
	log  zerolog.Logger
}

// NewClient creates a client for the backend at baseURL (for example
// http://localhost:8000/api) with its own cookie jar.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		jar:  jar,
		base: base,
		log:  log.With().Str("component", "ragapi").Logger(),
	}

	hc := resty.New().
		SetBaseURL(base.String()).
		SetTimeout(timeout).
		SetCookieJar(jar).
		SetHeader("Accept", "application/json")

	hc.AddRequestMiddleware(func(_ *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), requestStartedAt{}, time.Now()))
		if r.Method != http.MethodGet {
			if token := c.Cookie(CSRFTokenCookie); token != "" {
				r.SetHeader(csrfHeader, token)
			}
		}
		return nil
	})
	hc.AddResponseMiddleware(func(_ *resty.Client, r *resty.Response) error {
		startedAt, _ := r.Request.Context().Value(requestStartedAt{}).(time.Time)
		ev := c.log.Debug().
			Int("status", r.StatusCode()).
			Dur("latency", time.Since(startedAt))
		if raw := r.Request.RawRequest; raw != nil {
			ev = ev.Str("method", raw.Method).Str("path", raw.URL.Path)
		}
		ev.Msg("backend request")
		return nil
	})

	c.http = hc
	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// Cookie returns the value of a backend cookie held for this session, or "".
func (c *Client) Cookie(name string) string {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// doRequest executes a request against the backend and returns the raw body
// of a 2xx response. Non-2xx responses become *APIError.
func (c *Client) doRequest(ctx context.Context, op, method, endpoint string, body any) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	return c.execute(op, req, method, endpoint)
}

func (c *Client) execute(op string, req *resty.Request, method, endpoint string) (data []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveBackend(op, err, time.Since(start)) }()

	resp, err := req.Execute(method, endpoint)
	if err != nil {
		c.log.Warn().Err(err).Str("operation", op).Msg("backend request failed")
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}
	if resp.IsError() {
		return nil, newAPIError(op, resp.StatusCode(), resp.Bytes())
	}
	return resp.Bytes(), nil
}

func decode[T any](op string, data []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", op, err)
	}
	return &out, nil
}

// Login authenticates with the backend. On success the backend's JWT cookie
// is stored in this client's jar.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	data, err := c.doRequest(ctx, OpLogin, http.MethodPost, "/auth/login", req)
	if err != nil {
		return nil, err
	}
	return decode[models.AuthResponse](OpLogin, data)
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	data, err := c.doRequest(ctx, OpRegister, http.MethodPost, "/auth/register", req)
	if err != nil {
		return nil, err
	}
	return decode[models.AuthResponse](OpRegister, data)
}

// Logout asks the backend to clear its auth cookies.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.doRequest(ctx, OpLogout, http.MethodPost, "/auth/logout", nil)
	return err
}

// ListChats returns the user's chats for the history sidebar.
func (c *Client) ListChats(ctx context.Context) (*models.ChatListResponse, error) {
	data, err := c.doRequest(ctx, OpListChats, http.MethodGet, "/history/", nil)
	if err != nil {
		return nil, err
	}
	return decode[models.ChatListResponse](OpListChats, data)
}

// ChatMessages returns the full history of one chat.
func (c *Client) ChatMessages(ctx context.Context, chatID string) (*models.ChatMessagesResponse, error) {
	data, err := c.doRequest(ctx, OpChatMessages, http.MethodGet, "/history/chat/"+url.PathEscape(chatID), nil)
	if err != nil {
		return nil, err
	}
	return decode[models.ChatMessagesResponse](OpChatMessages, data)
}

// SendQuery posts a question. The backend answers with either one message or
// a list of messages; both come back as a list.
func (c *Client) SendQuery(ctx context.Context, req models.QueryRequest) ([]models.APIMessage, error) {
	data, err := c.doRequest(ctx, OpSendQuery, http.MethodPost, "/query/", req)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var msgs []models.APIMessage
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("failed to parse %s response: %w", OpSendQuery, err)
		}
		return msgs, nil
	}
	msg, err := decode[models.APIMessage](OpSendQuery, trimmed)
	if err != nil {
		return nil, err
	}
	return []models.APIMessage{*msg}, nil
}

// Revalidate asks the backend to regenerate the answer for a message.
func (c *Client) Revalidate(ctx context.Context, messageID string) (*models.RevalidateResponse, error) {
	data, err := c.doRequest(ctx, OpRevalidate, http.MethodPost, "/revalidate/", models.RevalidateRequest{QueryID: messageID})
	if err != nil {
		return nil, err
	}
	return decode[models.RevalidateResponse](OpRevalidate, data)
}

// UploadDocument streams a file to the backend as the multipart field "file".
// progress, if set, is called with the number of bytes read so far.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader, progress func(written int64)) (*models.UploadResponse, error) {
	body := &countingReader{r: r, onRead: progress}
	req := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filename, body)

	data, err := c.execute(OpUpload, req, http.MethodPost, "/upload/document")
	if err != nil {
		return nil, err
	}
	return decode[models.UploadResponse](OpUpload, data)
}

// DocumentStatus lists the processing status of every uploaded document.
func (c *Client) DocumentStatus(ctx context.Context) (*models.DocumentStatusResponse, error) {
	data, err := c.doRequest(ctx, OpDocumentStatus, http.MethodGet, "/upload/documents/status", nil)
	if err != nil {
		return nil, err
	}
	return decode[models.DocumentStatusResponse](OpDocumentStatus, data)
}

// Document returns the processing status of one document.
func (c *Client) Document(ctx context.Context, documentID string) (*models.DocumentStatus, error) {
	endpoint := fmt.Sprintf("/upload/document/%s/status", url.PathEscape(documentID))
	data, err := c.doRequest(ctx, OpDocument, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return decode[models.DocumentStatus](OpDocument, data)
}

// Health pings the backend's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, OpHealth, http.MethodGet, "/health", nil)
	return err
}

type countingReader struct {
	r       io.Reader
	written int64
	onRead  func(int64)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.written += int64(n)
		if cr.onRead != nil {
			cr.onRead(cr.written)
		}
	}
	return n, err
}
