package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ragdesk/ragdesk/internal/models"
	"github.com/ragdesk/ragdesk/internal/transcript"
)

var errUnexpectedCall = errors.New("unexpected call")

// MockBackend is a Backend whose behaviour is set per test.
type MockBackend struct {
	LoginFunc          func(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	RegisterFunc       func(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	LogoutFunc         func(ctx context.Context) error
	ListChatsFunc      func(ctx context.Context) (*models.ChatListResponse, error)
	ChatMessagesFunc   func(ctx context.Context, chatID string) (*models.ChatMessagesResponse, error)
	SendQueryFunc      func(ctx context.Context, req models.QueryRequest) ([]models.APIMessage, error)
	RevalidateFunc     func(ctx context.Context, messageID string) (*models.RevalidateResponse, error)
	UploadDocumentFunc func(ctx context.Context, filename string, r io.Reader, progress func(int64)) (*models.UploadResponse, error)
	DocumentStatusFunc func(ctx context.Context) (*models.DocumentStatusResponse, error)
	DocumentFunc       func(ctx context.Context, documentID string) (*models.DocumentStatus, error)

	Cookies map[string]string

	mu       sync.Mutex
	restored string
	closed   bool
}

func (m *MockBackend) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return nil, errUnexpectedCall
}

func (m *MockBackend) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return nil, errUnexpectedCall
}

func (m *MockBackend) Logout(ctx context.Context) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx)
	}
	return errUnexpectedCall
}

func (m *MockBackend) ListChats(ctx context.Context) (*models.ChatListResponse, error) {
	if m.ListChatsFunc != nil {
		return m.ListChatsFunc(ctx)
	}
	return nil, errUnexpectedCall
}

func (m *MockBackend) ChatMessages(ctx context.Context, chatID string) (*models.ChatMessagesResponse, error) {
	if m.ChatMessagesFunc != nil {
		return m.ChatMessagesFunc(ctx, chatID)
	}
	return nil, errUnexpectedCall
}

func (m *MockBackend) SendQuery(ctx context.Context, req models.QueryRequest) ([]models.APIMessage, error) {
	if m.SendQueryFunc != nil {
		return m.SendQueryFunc(ctx, req)
	}
	return nil, errUnexpectedCall
}

func (m *MockBackend) Revalidate(ctx context.Context, messageID string) (*models.RevalidateResponse, error) {
	if m.RevalidateFunc != nil {
		return m.RevalidateFunc(ctx, messageID)
	}
	return nil, errUnexpectedCall
}

func (m *MockBackend) UploadDocument(ctx context.Context, filename string, r io.Reader, progress func(int64)) (*models.UploadResponse, error) {
	if m.UploadDocumentFunc != nil {
		return m.UploadDocumentFunc(ctx, filename, r, progress)
	}
	return nil, errUnexpectedCall
}

func (m *MockBackend) DocumentStatus(ctx context.Context) (*models.DocumentStatusResponse, error) {
	if m.DocumentStatusFunc != nil {
		return m.DocumentStatusFunc(ctx)
	}
	return nil, errUnexpectedCall
}

func (m *MockBackend) Document(ctx context.Context, documentID string) (*models.DocumentStatus, error) {
	if m.DocumentFunc != nil {
		return m.DocumentFunc(ctx, documentID)
	}
	return nil, errUnexpectedCall
}

func (m *MockBackend) Cookie(name string) string {
	return m.Cookies[name]
}

func (m *MockBackend) RestoreAccessToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restored = token
}

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockBackend) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type apiErr struct{ msg string }

func (e *apiErr) Error() string         { return "backend: " + e.msg }
func (e *apiErr) ServerMessage() string { return e.msg }

// recordingPublisher collects published events per view.
type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]transcript.Event
	closed []string
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(map[string][]transcript.Event)}
}

func (p *recordingPublisher) Publish(viewID string, e transcript.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[viewID] = append(p.events[viewID], e)
}

func (p *recordingPublisher) CloseView(viewID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, viewID)
}

func (p *recordingPublisher) Kinds(viewID string) []transcript.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var kinds []transcript.EventKind
	for _, e := range p.events[viewID] {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (p *recordingPublisher) Closed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.closed...)
}
