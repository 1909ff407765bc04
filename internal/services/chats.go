package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ragdesk/ragdesk/internal/models"
)

// NewChat is the target of a "new chat" action: a fresh id the backend has
// not seen yet.
type NewChat struct {
	ChatID string `json:"chat_id"`
	New    bool   `json:"new"`
}

// ChatService lists a user's chats and hands out ids for new ones.
type ChatService struct {
	log zerolog.Logger
}

// NewChatService creates a new ChatService instance.
func NewChatService(log zerolog.Logger) *ChatService {
	return &ChatService{log: log.With().Str("component", "chats").Logger()}
}

// List returns the chat history sidebar for the desk's user.
func (s *ChatService) List(ctx context.Context, desk *Desk) (*models.ChatListResponse, error) {
	resp, err := desk.Backend.ListChats(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("desk_id", desk.ID).Msg("failed to fetch chats")
		noteBackendError(ctx, desk, err, s.log)
		return nil, err
	}
	if resp.Chats == nil {
		resp.Chats = []models.ChatSummary{}
	}
	return resp, nil
}

// New returns the id for a chat that will be created by its first query.
func (s *ChatService) New() NewChat {
	return NewChat{ChatID: uuid.New().String(), New: true}
}
