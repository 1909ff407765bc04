package handlers

import (
	"net/http"

	"github.com/ragdesk/ragdesk/internal/services"
)

// ChatHandler serves the chat history sidebar.
type ChatHandler struct {
	chatService *services.ChatService
}

// NewChatHandler creates a new ChatHandler instance.
func NewChatHandler(chatService *services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ListChats handles GET /api/chats
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	resp, err := h.chatService.List(r.Context(), desk)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// NewChat handles POST /api/chats
// Returns an id for a chat that will exist once its first query is sent.
func (h *ChatHandler) NewChat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.chatService.New())
}
