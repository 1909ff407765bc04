// Package transcript keeps the displayed state of one chat conversation in
// sync with the RAG backend: it normalizes raw backend messages, loads
// history, appends the user's own query optimistically and grows answers with
// regenerated revisions as they arrive.
package transcript

import (
	"bytes"
	"encoding/json"

	"github.com/ragdesk/ragdesk/internal/models"
)

// Content is the decoded text payload of a raw backend message. It is either
// a QueryContent or an AnswerContent; nothing past Decode looks at the raw
// JSON again.
type Content interface {
	isContent()
}

// QueryContent is the text of a user question.
type QueryContent struct {
	Query string
}

// AnswerContent is the text of an AI response. Structured fields are empty
// when the backend did not send them.
type AnswerContent struct {
	Answer           string
	ExecutiveSummary []string
	SupportingFacts  []string
	Sources          []string

	// Fallback is the whole raw payload as a string, shown when there is no answer.
	Fallback string
}

func (QueryContent) isContent()  {}
func (AnswerContent) isContent() {}

// Decode turns a raw message payload into its Content. Messages of type
// "query" decode to QueryContent, everything else to AnswerContent.
func Decode(msgType string, raw json.RawMessage) Content {
	obj, isObject := asObject(raw)

	if msgType == models.MessageTypeQuery {
		if isObject {
			if q, ok := asString(obj["query"]); ok {
				return QueryContent{Query: q}
			}
		}
		return QueryContent{Query: Stringify(raw)}
	}

	c := AnswerContent{Fallback: Stringify(raw)}
	if !isObject {
		return c
	}
	c.Answer = Stringify(obj["answer"])
	c.ExecutiveSummary = stringList(obj["executiveSummary"])
	c.SupportingFacts = stringList(obj["supportingFacts"])
	c.Sources = stringList(obj["sources"])
	return c
}

// Normalize maps a raw backend message to its display form. It never fails:
// anything it cannot interpret is shown as its string form.
func Normalize(raw models.APIMessage) models.DisplayMessage {
	msg := models.DisplayMessage{
		ID:            raw.ID.String(),
		Timestamp:     raw.CreatedAt.String(),
		Revalidations: append([]models.Revalidation{}, raw.Revalidations...),
	}

	switch c := Decode(raw.Type, raw.Text).(type) {
	case QueryContent:
		msg.Sender = models.SenderUser
		msg.Text = c.Query
	case AnswerContent:
		msg.Sender = models.SenderAI
		msg.Answer = c.Answer
		msg.ExecutiveSummary = c.ExecutiveSummary
		msg.SupportingFacts = c.SupportingFacts
		msg.Sources = c.Sources
		msg.Text = c.Answer
		if msg.Text == "" {
			msg.Text = c.Fallback
		}
	}
	return msg
}

// Stringify is the generic string conversion for raw JSON values: strings
// yield their contents, null or absent yields "", numbers and booleans their
// literal, and objects or arrays their compact JSON text.
func Stringify(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if s, ok := asString(raw); ok {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func asString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// stringList reads a list field. Non-string items are stringified and a lone
// scalar becomes a one-item list, so the display layer only ever sees strings.
func stringList(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] != '[' {
		return []string{Stringify(raw)}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{Stringify(raw)}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, Stringify(item))
	}
	return out
}
