package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragdesk/ragdesk/internal/models"
)

var (
	ErrEmptyQuery         = errors.New("transcript: query is empty")
	ErrSubmitInFlight     = errors.New("transcript: a query is already being submitted")
	ErrRevalidateInFlight = errors.New("transcript: message is already being revalidated")
	ErrUnknownMessage     = errors.New("transcript: no such message")
	ErrSuperseded         = errors.New("transcript: superseded by a newer navigation")
	ErrClosed             = errors.New("transcript: thread is closed")
)

// User-facing error strings.
const (
	LoadFailedMessage   = "Failed to load chat history."
	SubmitFailedMessage = "Failed to get response."
)

// timestampLayout matches what browsers produce for Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Backend is the part of the RAG API a thread talks to.
type Backend interface {
	ChatMessages(ctx context.Context, chatID string) (*models.ChatMessagesResponse, error)
	SendQuery(ctx context.Context, req models.QueryRequest) ([]models.APIMessage, error)
	Revalidate(ctx context.Context, messageID string) (*models.RevalidateResponse, error)
}

// LoadState is the history-load status of a thread.
type LoadState string

const (
	LoadIdle    LoadState = "idle"
	LoadLoading LoadState = "loading"
	LoadReady   LoadState = "ready"
	LoadFailed  LoadState = "failed"
)

// Phase is the query submission state: Idle → Submitting → Confirmed | Failed.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseConfirmed  Phase = "confirmed"
	PhaseFailed     Phase = "failed"
)

// EventKind names a change reported to an Observer.
type EventKind string

const (
	EventLoading              EventKind = "loading"
	EventThreadLoaded         EventKind = "thread_loaded"
	EventLoadFailed           EventKind = "load_failed"
	EventMessageAppended      EventKind = "message_appended"
	EventSubmitState          EventKind = "submit_state"
	EventChatConfirmed        EventKind = "chat_confirmed"
	EventRevalidateState      EventKind = "revalidate_state"
	EventRevalidationAppended EventKind = "revalidation_appended"
)

// Event describes one change to a thread.
type Event struct {
	Kind         EventKind              `json:"kind"`
	ChatID       string                 `json:"chat_id,omitempty"`
	Message      *models.DisplayMessage `json:"message,omitempty"`
	MessageID    string                 `json:"message_id,omitempty"`
	Revalidation *models.Revalidation   `json:"revalidation,omitempty"`
	Phase        Phase                  `json:"phase,omitempty"`
	Pending      bool                   `json:"pending,omitempty"`
	Error        string                 `json:"error,omitempty"`

	// Seq increases by one per event of a thread. A Snapshot with Seq n
	// already reflects every event up to and including n.
	Seq uint64 `json:"seq"`
}

// Observer is told about every change after it has been applied.
// Observers are called without the thread's lock held, one event at a time,
// in Seq order.
type Observer interface {
	ThreadChanged(Event)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) ThreadChanged(e Event) { f(e) }

// Option configures a Thread.
type Option func(*Thread)

// WithObserver registers the observer notified of every change.
func WithObserver(o Observer) Option {
	return func(t *Thread) { t.observer = o }
}

// WithClock replaces time.Now, used for optimistic message ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Thread) { t.now = now }
}

// WithChatIDGenerator replaces the generator used when a query starts a new chat.
func WithChatIDGenerator(gen func() string) Option {
	return func(t *Thread) { t.newChatID = gen }
}

// Thread is the displayed state of one conversation. It is owned by exactly
// one view; every mutation goes through its methods. Backend calls run
// without the lock held and their results are dropped if the thread was
// navigated elsewhere or closed in the meantime.
type Thread struct {
	backend   Backend
	observer  Observer
	now       func() time.Time
	newChatID func() string

	deliverMu sync.Mutex

	mu           sync.Mutex
	gen          uint64
	seq          uint64
	outbox       []Event
	closed       bool
	chatID       string
	title        string
	isNew        bool
	load         LoadState
	loadErr      string
	messages     []models.DisplayMessage
	phase        Phase
	submitErr    string
	draft        string
	revalidating map[string]bool
}

// NewThread returns an empty thread that is not showing any chat yet.
func NewThread(backend Backend, opts ...Option) *Thread {
	t := &Thread{
		backend:      backend,
		now:          time.Now,
		newChatID:    func() string { return uuid.New().String() },
		load:         LoadIdle,
		phase:        PhaseIdle,
		revalidating: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Snapshot is a deep copy of a thread's state.
type Snapshot struct {
	ChatID       string                  `json:"chat_id"`
	Title        string                  `json:"title"`
	IsNew        bool                    `json:"is_new"`
	Load         LoadState               `json:"load"`
	LoadError    string                  `json:"load_error,omitempty"`
	Phase        Phase                   `json:"phase"`
	Typing       bool                    `json:"typing"`
	SubmitError  string                  `json:"submit_error,omitempty"`
	Draft        string                  `json:"draft"`
	Messages     []models.DisplayMessage `json:"messages"`
	Revalidating []string                `json:"revalidating"`
	Seq          uint64                  `json:"seq"`
}

// Snapshot copies the current state.
func (t *Thread) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		ChatID:       t.chatID,
		Title:        t.title,
		IsNew:        t.isNew,
		Load:         t.load,
		LoadError:    t.loadErr,
		Phase:        t.phase,
		Typing:       t.phase == PhaseSubmitting,
		SubmitError:  t.submitErr,
		Draft:        t.draft,
		Messages:     make([]models.DisplayMessage, len(t.messages)),
		Revalidating: make([]string, 0, len(t.revalidating)),
		Seq:          t.seq,
	}
	for i, m := range t.messages {
		s.Messages[i] = copyMessage(m)
	}
	// Keep message order so snapshots are stable.
	for _, m := range t.messages {
		if t.revalidating[m.ID] {
			s.Revalidating = append(s.Revalidating, m.ID)
		}
	}
	return s
}

// SetDraft replaces the input buffer.
func (t *Thread) SetDraft(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.draft = text
}

// Draft returns the input buffer.
func (t *Thread) Draft() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draft
}

// Close tears the thread down. Results of calls still in flight are discarded.
func (t *Thread) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// Navigate points the thread at chatID and loads its history. When isNew is
// set the chat has not been created on the backend yet, so nothing is fetched
// and the thread starts empty. Only the most recently issued navigation may
// update the thread; an older load finishing late returns ErrSuperseded.
func (t *Thread) Navigate(ctx context.Context, chatID string, isNew bool) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.gen++
	gen := t.gen
	t.chatID = chatID
	t.title = ""
	t.isNew = isNew
	t.messages = nil
	t.loadErr = ""
	t.phase = PhaseIdle
	t.submitErr = ""
	t.revalidating = make(map[string]bool)

	var ev Event
	switch {
	case chatID == "":
		t.load = LoadIdle
		ev = Event{Kind: EventThreadLoaded}
	case isNew:
		t.load = LoadReady
		ev = Event{Kind: EventThreadLoaded, ChatID: chatID}
	default:
		t.load = LoadLoading
		ev = Event{Kind: EventLoading, ChatID: chatID}
	}
	t.queue(ev)
	t.mu.Unlock()
	t.flush()

	if chatID == "" || isNew {
		return nil
	}

	resp, err := t.backend.ChatMessages(ctx, chatID)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if gen != t.gen {
		t.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		t.load = LoadFailed
		t.loadErr = LoadFailedMessage
		t.queue(Event{Kind: EventLoadFailed, ChatID: chatID, Error: LoadFailedMessage})
		t.mu.Unlock()
		t.flush()
		return fmt.Errorf("loading chat %s: %w", chatID, err)
	}

	messages := make([]models.DisplayMessage, 0, len(resp.Queries))
	for _, raw := range resp.Queries {
		messages = append(messages, Normalize(raw))
	}
	t.messages = messages
	t.title = resp.Title
	t.load = LoadReady
	t.queue(Event{Kind: EventThreadLoaded, ChatID: chatID})
	t.mu.Unlock()
	t.flush()
	return nil
}

// Submit sends a query and waits for the backend's answer.
func (t *Thread) Submit(ctx context.Context, text string) error {
	run, err := t.StartSubmit(text)
	if err != nil {
		return err
	}
	return run(ctx)
}

// StartSubmit performs the synchronous half of a submission: it appends the
// user's message, clears the draft and enters the Submitting phase. The
// returned function performs the network round trip and must be called
// exactly once. Empty queries and a second submission while one is in flight
// are rejected without touching the thread.
func (t *Thread) StartSubmit(text string) (func(context.Context) error, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		t.mu.Unlock()
		return nil, ErrEmptyQuery
	}
	if t.phase == PhaseSubmitting {
		t.mu.Unlock()
		return nil, ErrSubmitInFlight
	}

	now := t.now().UTC()
	rawText, _ := json.Marshal(text)
	userMsg := Normalize(models.APIMessage{
		ID:        models.FlexString(fmt.Sprintf("%d-user", now.UnixMilli())),
		Type:      models.MessageTypeQuery,
		Text:      rawText,
		CreatedAt: models.FlexString(now.Format(timestampLayout)),
	})
	t.messages = append(t.messages, userMsg)
	t.draft = ""
	t.phase = PhaseSubmitting
	t.submitErr = ""

	if t.chatID == "" {
		t.chatID = t.newChatID()
		t.isNew = true
		t.load = LoadReady
	}
	chatID := t.chatID
	gen := t.gen
	appended := copyMessage(userMsg)
	t.queue(
		Event{Kind: EventMessageAppended, ChatID: chatID, Message: &appended},
		Event{Kind: EventSubmitState, ChatID: chatID, Phase: PhaseSubmitting},
	)
	t.mu.Unlock()
	t.flush()

	return func(ctx context.Context) error {
		return t.finishSubmit(ctx, gen, chatID, text)
	}, nil
}

func (t *Thread) finishSubmit(ctx context.Context, gen uint64, chatID, text string) error {
	raws, err := t.backend.SendQuery(ctx, models.QueryRequest{Query: text, ChatID: chatID})

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if gen != t.gen {
		t.mu.Unlock()
		return ErrSuperseded
	}

	if err != nil {
		t.phase = PhaseFailed
		t.submitErr = userMessage(err, SubmitFailedMessage)
		msg := t.submitErr
		t.queue(Event{Kind: EventSubmitState, ChatID: chatID, Phase: PhaseFailed, Error: msg})
		t.mu.Unlock()
		t.flush()
		return fmt.Errorf("submitting query: %w", err)
	}

	events := make([]Event, 0, len(raws)+2)
	for _, raw := range raws {
		m := Normalize(raw)
		t.messages = append(t.messages, m)
		appended := copyMessage(m)
		events = append(events, Event{Kind: EventMessageAppended, ChatID: chatID, Message: &appended})
	}
	if len(raws) > 1 && t.isNew {
		t.isNew = false
		events = append(events, Event{Kind: EventChatConfirmed, ChatID: chatID})
	}
	t.phase = PhaseConfirmed
	events = append(events, Event{Kind: EventSubmitState, ChatID: chatID, Phase: PhaseConfirmed})
	t.queue(events...)
	t.mu.Unlock()
	t.flush()
	return nil
}

// Revalidate asks the backend to regenerate a message and waits for it.
func (t *Thread) Revalidate(ctx context.Context, messageID string) error {
	run, err := t.StartRevalidate(messageID)
	if err != nil {
		return err
	}
	return run(ctx)
}

// StartRevalidate marks messageID as regenerating and returns the function
// that performs the request. On success exactly one Revalidation is appended
// to that message. Failures leave the transcript untouched; the error is
// returned for logging only.
func (t *Thread) StartRevalidate(messageID string) (func(context.Context) error, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if t.revalidating[messageID] {
		t.mu.Unlock()
		return nil, ErrRevalidateInFlight
	}
	if t.indexOf(messageID) < 0 {
		t.mu.Unlock()
		return nil, ErrUnknownMessage
	}
	t.revalidating[messageID] = true
	gen := t.gen
	chatID := t.chatID
	t.queue(Event{Kind: EventRevalidateState, ChatID: chatID, MessageID: messageID, Pending: true})
	t.mu.Unlock()
	t.flush()

	return func(ctx context.Context) error {
		return t.finishRevalidate(ctx, gen, chatID, messageID)
	}, nil
}

func (t *Thread) finishRevalidate(ctx context.Context, gen uint64, chatID, messageID string) error {
	resp, err := t.backend.Revalidate(ctx, messageID)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if gen != t.gen {
		t.mu.Unlock()
		return ErrSuperseded
	}
	delete(t.revalidating, messageID)
	events := []Event{{Kind: EventRevalidateState, ChatID: chatID, MessageID: messageID}}

	if err != nil {
		t.queue(events...)
		t.mu.Unlock()
		t.flush()
		return fmt.Errorf("revalidating message %s: %w", messageID, err)
	}

	idx := t.indexOf(messageID)
	if idx < 0 {
		t.queue(events...)
		t.mu.Unlock()
		t.flush()
		return ErrUnknownMessage
	}
	reval := models.Revalidation{
		ID:                  fmt.Sprintf("%s-reval-v%d", messageID, resp.Version),
		Version:             resp.Version,
		RegeneratedResponse: resp.RegeneratedResponse,
		RegeneratedAt:       resp.RegeneratedAt,
	}
	t.messages[idx].Revalidations = append(t.messages[idx].Revalidations, reval)
	events = append(events, Event{Kind: EventRevalidationAppended, ChatID: chatID, MessageID: messageID, Revalidation: &reval})
	t.queue(events...)
	t.mu.Unlock()
	t.flush()
	return nil
}

func (t *Thread) indexOf(messageID string) int {
	for i := range t.messages {
		if t.messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// queue numbers events and holds them for delivery. Callers hold t.mu, so
// sequence order is the order the changes were applied in.
func (t *Thread) queue(events ...Event) {
	if t.observer == nil {
		return
	}
	for _, e := range events {
		t.seq++
		e.Seq = t.seq
		t.outbox = append(t.outbox, e)
	}
}

// flush delivers queued events in sequence order. It is called without t.mu
// held; deliverMu keeps two flushes from interleaving.
func (t *Thread) flush() {
	if t.observer == nil {
		return
	}
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()
	for {
		t.mu.Lock()
		events := t.outbox
		t.outbox = nil
		t.mu.Unlock()
		if len(events) == 0 {
			return
		}
		for _, e := range events {
			t.observer.ThreadChanged(e)
		}
	}
}

func copyMessage(m models.DisplayMessage) models.DisplayMessage {
	m.ExecutiveSummary = cloneStrings(m.ExecutiveSummary)
	m.SupportingFacts = cloneStrings(m.SupportingFacts)
	m.Sources = cloneStrings(m.Sources)
	m.Revalidations = append([]models.Revalidation{}, m.Revalidations...)
	return m
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// serverMessager is implemented by backend errors that carry a message
// meant for the user.
type serverMessager interface {
	ServerMessage() string
}

func userMessage(err error, fallback string) string {
	var sm serverMessager
	if errors.As(err, &sm) {
		if msg := sm.ServerMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}
