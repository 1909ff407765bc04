package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ragdesk/ragdesk/internal/metrics"
	"github.com/ragdesk/ragdesk/internal/transcript"
)

// Envelope types that are not transcript event kinds.
const (
	TypeSnapshot = "snapshot"
)

// Envelope is the frame sent to watchers.
type Envelope struct {
	Type    string `json:"type"`
	ViewID  string `json:"view_id"`
	Payload any    `json:"payload"`
}

// broadcastMessage is an encoded frame for every watcher of a view.
type broadcastMessage struct {
	viewID  string
	seq     uint64
	message []byte
}

// InitialFrame returns a client's first frame and the event sequence number
// it is current up to.
type InitialFrame func() (frame []byte, seq uint64, err error)

// registration adds a client. initial, if set, is evaluated inside the hub
// loop; events at or below its sequence number are not sent to the client.
type registration struct {
	client  *Client
	initial InitialFrame
}

// Hub fans thread events out to the WebSocket clients watching each view.
// All changes to the view map happen on the Run goroutine.
type Hub struct {
	// views maps viewID to the clients watching it
	views map[string]map[*Client]bool

	register   chan registration
	unregister chan *Client
	broadcast  chan broadcastMessage
	closeView  chan string
	done       chan struct{}

	// mutex for readers outside the Run goroutine
	mu  sync.RWMutex
	log zerolog.Logger
}

// NewHub creates a new Hub instance
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		views:      make(map[string]map[*Client]bool),
		register:   make(chan registration),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMessage, 256),
		closeView:  make(chan string, 16),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "websocket").Logger(),
	}
}

// Run starts the hub's main event loop and returns when ctx is done.
// Every client still connected is disconnected on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case reg := <-h.register:
			h.registerClient(reg)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToView(msg)

		case viewID := <-h.closeView:
			h.dropView(viewID)

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for viewID, clients := range h.views {
		for client := range clients {
			close(client.send)
			metrics.WatchersConnected.Dec()
		}
		delete(h.views, viewID)
	}
	h.log.Info().Msg("hub stopped")
}

// Publish sends a transcript event to every watcher of viewID.
func (h *Hub) Publish(viewID string, e transcript.Event) {
	data, err := json.Marshal(Envelope{Type: string(e.Kind), ViewID: viewID, Payload: e})
	if err != nil {
		h.log.Error().Err(err).Str("view_id", viewID).Msg("failed to encode event")
		return
	}
	select {
	case h.broadcast <- broadcastMessage{viewID: viewID, seq: e.Seq, message: data}:
	case <-h.done:
	}
}

// CloseView disconnects every watcher of viewID.
func (h *Hub) CloseView(viewID string) {
	select {
	case h.closeView <- viewID:
	case <-h.done:
	}
}

// Register adds a client. It reports false if the hub has stopped.
func (h *Hub) Register(client *Client, initial InitialFrame) bool {
	select {
	case h.register <- registration{client: client, initial: initial}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) registerClient(reg registration) {
	client := reg.client
	if reg.initial != nil {
		data, seq, err := reg.initial()
		if err != nil {
			h.log.Warn().Err(err).Str("view_id", client.ViewID).Msg("rejecting watcher")
			close(client.send)
			return
		}
		client.since = seq
		client.send <- data
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.views[client.ViewID] == nil {
		h.views[client.ViewID] = make(map[*Client]bool)
	}
	h.views[client.ViewID][client] = true
	metrics.WatchersConnected.Inc()
	h.log.Debug().
		Str("view_id", client.ViewID).
		Int("watchers", len(h.views[client.ViewID])).
		Msg("watcher joined")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.views[client.ViewID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			close(client.send)
			metrics.WatchersConnected.Dec()

			h.log.Debug().
				Str("view_id", client.ViewID).
				Int("watchers", len(clients)).
				Msg("watcher left")

			if len(clients) == 0 {
				delete(h.views, client.ViewID)
			}
		}
	}
}

func (h *Hub) broadcastToView(msg broadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.views[msg.viewID]
	for client := range clients {
		if msg.seq != 0 && msg.seq <= client.since {
			// already part of the client's snapshot
			continue
		}
		select {
		case client.send <- msg.message:
		default:
			// Slow watcher; drop it rather than stall the hub
			delete(clients, client)
			close(client.send)
			metrics.WatchersConnected.Dec()
			h.log.Warn().Str("view_id", msg.viewID).Msg("dropped slow watcher")
		}
	}
	if len(clients) == 0 {
		delete(h.views, msg.viewID)
	}
}

func (h *Hub) dropView(viewID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.views[viewID]
	if !ok {
		return
	}
	for client := range clients {
		close(client.send)
		metrics.WatchersConnected.Dec()
	}
	delete(h.views, viewID)
	h.log.Debug().Str("view_id", viewID).Int("watchers", len(clients)).Msg("view closed, watchers disconnected")
}

// WatcherCount returns the number of clients watching viewID.
func (h *Hub) WatcherCount(viewID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.views[viewID])
}
