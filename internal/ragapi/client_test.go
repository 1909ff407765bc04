package ragapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/api", 5*time.Second, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8000", "://nope"} {
		_, err := NewClient(raw, time.Second, zerolog.Nop())
		assert.Error(t, err, raw)
	}
}

func TestLoginStoresCookies(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Bad username or password"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: AccessTokenCookie, Value: signedToken(t, exp), Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"msg": "Login successful", "username": req.Username, "user_id": 7})
	})
	c := newTestClient(t, mux)

	t.Run("bad password", func(t *testing.T) {
		_, err := c.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "nope"})

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "Bad username or password", apiErr.ServerMessage())
		assert.True(t, apiErr.Unauthorized())
	})

	t.Run("success", func(t *testing.T) {
		resp, err := c.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "pw"})
		require.NoError(t, err)

		assert.Equal(t, "alice", resp.Username)
		assert.Equal(t, "7", resp.UserID.String())

		got, err := c.AccessTokenExpiry()
		require.NoError(t, err)
		assert.True(t, exp.Equal(got), "want %v got %v", exp, got)
	})
}

func TestAccessTokenExpiryWithoutCookie(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	_, err := c.AccessTokenExpiry()
	assert.ErrorIs(t, err, ErrNoAccessToken)
}

func TestRestoreAccessToken(t *testing.T) {
	var gotCookie string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/history/", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie(AccessTokenCookie); err == nil {
			gotCookie = ck.Value
		}
		writeJSON(w, http.StatusOK, map[string]any{"chats": []any{}})
	})
	c := newTestClient(t, mux)
	token := signedToken(t, time.Now().Add(time.Hour))

	c.RestoreAccessToken(token)
	_, err := c.ListChats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, token, gotCookie)
}

func TestCSRFHeader(t *testing.T) {
	var gotHeader string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/history/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: CSRFTokenCookie, Value: "csrf-123", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"chats": []any{}})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-CSRF-TOKEN")
		writeJSON(w, http.StatusOK, map[string]string{"msg": "Logout successful"})
	})
	c := newTestClient(t, mux)

	_, err := c.ListChats(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Logout(context.Background()))

	assert.Equal(t, "csrf-123", gotHeader)
}

func TestListChatsAndHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/history/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"chats": []map[string]any{{"id": "c1", "title": "First"}, {"id": 2, "title": "Second"}}})
	})
	mux.HandleFunc("GET /api/history/chat/{chatID}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("chatID") != "c1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"msg": "Chat not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"chat_id": "c1",
			"title":   "First",
			"queries": []map[string]any{
				{"id": "q1", "type": "query", "text": map[string]string{"query": "hi"}, "created_at": "t1"},
				{"id": "r1", "type": "response", "text": map[string]any{"answer": "hello"}, "created_at": nil},
			},
		})
	})
	c := newTestClient(t, mux)

	chats, err := c.ListChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats.Chats, 2)
	assert.Equal(t, "2", chats.Chats[1].ID.String())

	hist, err := c.ChatMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, hist.Queries, 2)
	assert.Equal(t, "query", hist.Queries[0].Type)
	assert.JSONEq(t, `{"query":"hi"}`, string(hist.Queries[0].Text))
	assert.Empty(t, hist.Queries[1].CreatedAt.String())

	_, err = c.ChatMessages(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Chat not found", apiErr.Msg)
}

func TestSendQuery(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIDs []string
	}{
		{
			name:    "single object",
			body:    `{"msg":"Query created","id":"r1","chat_id":"c","text":{"answer":"a"},"type":"response","created_at":"t"}`,
			wantIDs: []string{"r1"},
		},
		{
			name:    "list",
			body:    `[{"id":"q1","type":"query","text":"hi"},{"id":"r1","type":"response","text":"yo"}]`,
			wantIDs: []string{"q1", "r1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got models.QueryRequest
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/query/", func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, tt.body)
			})
			c := newTestClient(t, mux)

			msgs, err := c.SendQuery(context.Background(), models.QueryRequest{Query: "hi", ChatID: "c"})
			require.NoError(t, err)

			assert.Equal(t, models.QueryRequest{Query: "hi", ChatID: "c"}, got)
			ids := make([]string, 0, len(msgs))
			for _, m := range msgs {
				ids = append(ids, m.ID.String())
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestRevalidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/revalidate/", func(w http.ResponseWriter, r *http.Request) {
		var req models.RevalidateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, map[string]any{
			"query_id":             req.QueryID,
			"version":              2,
			"regenerated_response": "better",
			"regenerated_at":       "t",
		})
	})
	c := newTestClient(t, mux)

	resp, err := c.Revalidate(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", resp.QueryID.String())
	assert.Equal(t, 2, resp.Version)
	assert.Equal(t, "better", resp.RegeneratedResponse)
}

func TestUploadDocument(t *testing.T) {
	content := strings.Repeat("line of text\n", 1000)
	var received string
	var filename string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload/document", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		b, err := io.ReadAll(f)
		require.NoError(t, err)
		received = string(b)
		filename = hdr.Filename
		writeJSON(w, http.StatusCreated, map[string]any{"msg": "Document uploaded successfully", "id": "d1", "status": "pending"})
	})
	c := newTestClient(t, mux)

	var last int64
	resp, err := c.UploadDocument(context.Background(), "notes.txt", strings.NewReader(content), func(n int64) { last = n })
	require.NoError(t, err)

	assert.Equal(t, content, received)
	assert.Equal(t, "notes.txt", filename)
	assert.Equal(t, int64(len(content)), last)
	assert.Equal(t, "d1", resp.ID.String())
	assert.Equal(t, "pending", resp.Status)
}

func TestDocumentStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/upload/documents/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"documents": []map[string]any{
			{"id": "d1", "status": "completed", "file_path": "uploads/a.txt"},
			{"id": "d2", "status": "failed", "error": "embedding failed", "processed_at": nil},
		}})
	})
	mux.HandleFunc("GET /api/upload/document/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("id"), "status": "pending"})
	})
	c := newTestClient(t, mux)

	all, err := c.DocumentStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, all.Documents, 2)
	assert.Equal(t, "embedding failed", all.Documents[1].Error)

	one, err := c.Document(context.Background(), "d9")
	require.NoError(t, err)
	assert.Equal(t, "d9", one.ID.String())
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, time.Second, zerolog.Nop())
	require.NoError(t, err)

	err = c.Health(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "msg string", body: `{"msg":"Query not found"}`, wantMsg: "Query not found"},
		{name: "msg number", body: `{"msg":404}`, wantMsg: "404"},
		{name: "no msg", body: `{"error":"x"}`, wantMsg: ""},
		{name: "not json", body: `<html>oops</html>`, wantMsg: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newAPIError(OpRevalidate, http.StatusInternalServerError, []byte(tt.body))
			assert.Equal(t, tt.wantMsg, e.ServerMessage())
			assert.Contains(t, e.Error(), "status 500")
		})
	}
}
