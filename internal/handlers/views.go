package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ragdesk/ragdesk/internal/services"
)

// OpenViewRequest is the body of POST /api/views. Both fields are optional.
type OpenViewRequest struct {
	ChatID string `json:"chat_id"`
	New    bool   `json:"new"`
}

// NavigateRequest is the body of PUT /api/views/{viewID}/chat.
type NavigateRequest struct {
	ChatID string `json:"chat_id" validate:"required"`
	New    bool   `json:"new"`
}

// DraftRequest is the body of PUT /api/views/{viewID}/draft.
type DraftRequest struct {
	Text string `json:"text"`
}

// SubmitRequest is the body of POST /api/views/{viewID}/queries.
// An empty query submits the view's draft.
type SubmitRequest struct {
	Query string `json:"query"`
}

// ViewHandler contains HTTP handlers for transcript views.
type ViewHandler struct {
	viewService *services.ViewService
}

// NewViewHandler creates a new ViewHandler instance.
func NewViewHandler(viewService *services.ViewService) *ViewHandler {
	return &ViewHandler{viewService: viewService}
}

// OpenView handles POST /api/views
// Opens a view and, if a chat is given, loads it before responding.
func (h *ViewHandler) OpenView(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	var req OpenViewRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.viewService.Open(r.Context(), desk, req.ChatID, req.New)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// GetView handles GET /api/views/{viewID}
func (h *ViewHandler) GetView(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	snap, err := h.viewService.Snapshot(desk, chi.URLParam(r, "viewID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Navigate handles PUT /api/views/{viewID}/chat
// If several navigations overlap, the last one issued decides what the view
// shows.
func (h *ViewHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	var req NavigateRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	snap, err := h.viewService.Navigate(r.Context(), desk, chi.URLParam(r, "viewID"), req.ChatID, req.New)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SetDraft handles PUT /api/views/{viewID}/draft
func (h *ViewHandler) SetDraft(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	var req DraftRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.viewService.SetDraft(desk, chi.URLParam(r, "viewID"), req.Text); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit handles POST /api/views/{viewID}/queries
// Responds as soon as the question is on the transcript; the answer is
// pushed over the view's WebSocket.
func (h *ViewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	var req SubmitRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.viewService.Submit(r.Context(), desk, chi.URLParam(r, "viewID"), req.Query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// Revalidate handles POST /api/views/{viewID}/messages/{messageID}/revalidate
func (h *ViewHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	snap, err := h.viewService.Revalidate(r.Context(), desk, chi.URLParam(r, "viewID"), chi.URLParam(r, "messageID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// CloseView handles DELETE /api/views/{viewID}
func (h *ViewHandler) CloseView(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	if err := h.viewService.Close(desk, chi.URLParam(r, "viewID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
