package websocket

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ragdesk/ragdesk/internal/services"
)

// ViewSource looks up the state of a desk's view.
type ViewSource interface {
	Snapshot(desk *services.Desk, viewID string) (*services.ViewSnapshot, error)
}

// Handler upgrades watch requests for a view.
type Handler struct {
	hub      *Hub
	views    ViewSource
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. Browsers may connect from
// allowedOrigins; a "*" entry allows any origin.
func NewHandler(hub *Hub, views ViewSource, allowedOrigins []string) *Handler {
	return &Handler{
		hub:   hub,
		views: views,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// ServeWS handles WebSocket upgrade requests at /api/views/{viewID}/ws.
// The first frame is a snapshot of the view; thread events follow.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	desk, ok := services.DeskFromContext(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	viewID := chi.URLParam(r, "viewID")
	if _, err := h.views.Snapshot(desk, viewID); err != nil {
		http.Error(w, "view not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn().Err(err).Str("view_id", viewID).Msg("upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, viewID, desk.ID)
	initial := func() ([]byte, uint64, error) {
		snap, err := h.views.Snapshot(desk, viewID)
		if err != nil {
			return nil, 0, err
		}
		data, err := json.Marshal(Envelope{Type: TypeSnapshot, ViewID: viewID, Payload: snap})
		return data, snap.Seq, err
	}
	if !h.hub.Register(client, initial) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
