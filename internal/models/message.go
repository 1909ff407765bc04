package models

import (
	"bytes"
	"encoding/json"
)

// Sender identifies who authored a displayed message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// MessageTypeQuery is the raw message type the backend uses for user questions.
// Every other type is treated as an AI response.
const MessageTypeQuery = "query"

// APIMessage is a chat message exactly as the RAG backend returns it.
// Text is left undecoded: the backend sends either a plain string or an object
// ({"query": ...} for questions, {"answer": ..., "sources": [...]} for answers).
type APIMessage struct {
	// ID is the backend's identifier for this message
	ID FlexString `json:"id"`

	// Type is "query" for user questions, anything else for AI responses
	Type string `json:"type"`

	// Text is the raw payload, decoded later by the transcript package
	Text json.RawMessage `json:"text,omitempty"`

	// CreatedAt is the ISO-8601 creation time
	CreatedAt FlexString `json:"created_at"`

	// Revalidations are regenerated answers already known to the backend
	Revalidations []Revalidation `json:"revalidations,omitempty"`
}

// Revalidation is a regenerated alternate answer for a previously answered query.
type Revalidation struct {
	ID                  string `json:"id"`
	Version             int    `json:"version"`
	RegeneratedResponse string `json:"regenerated_response"`
	RegeneratedAt       string `json:"regenerated_at"`
}

// DisplayMessage is the normalized, UI-ready shape of a chat message.
type DisplayMessage struct {
	ID        string `json:"id"`
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`

	// Structured fields, only ever set for AI messages
	Answer           string   `json:"answer,omitempty"`
	ExecutiveSummary []string `json:"executiveSummary,omitempty"`
	SupportingFacts  []string `json:"supportingFacts,omitempty"`
	Sources          []string `json:"sources,omitempty"`

	// Revalidations only grows, in arrival order
	Revalidations []Revalidation `json:"revalidations"`
}

// ChatSummary is one entry of the chat history sidebar.
type ChatSummary struct {
	ID    FlexString `json:"id"`
	Title string     `json:"title"`
}

// ChatListResponse is the response of GET /history.
type ChatListResponse struct {
	Chats []ChatSummary `json:"chats"`
}

// ChatMessagesResponse is the response of GET /history/chat/{chatId}.
type ChatMessagesResponse struct {
	ChatID  FlexString   `json:"chat_id"`
	Title   string       `json:"title"`
	Queries []APIMessage `json:"queries"`
}

// QueryRequest is the request body for POST /query/.
type QueryRequest struct {
	Query  string `json:"query"`
	ChatID string `json:"chat_id"`
}

// RevalidateRequest is the request body for POST /revalidate/.
type RevalidateRequest struct {
	QueryID string `json:"query_id"`
}

// RevalidateResponse is the backend's answer to a regeneration request.
type RevalidateResponse struct {
	QueryID             FlexString `json:"query_id,omitempty"`
	Version             int        `json:"version"`
	RegeneratedResponse string     `json:"regenerated_response"`
	RegeneratedAt       string     `json:"regenerated_at"`
}

// FlexString accepts a JSON string, number, or null and keeps it as a string.
// Backend identifiers are UUID strings today but integer ids and null
// timestamps show up in older rows.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

