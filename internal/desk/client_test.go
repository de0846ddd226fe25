package desk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"deskrelay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Token  string
	Body   map[string]any
}

// fakeDesk is a scripted Chatwoot account API.
type fakeDesk struct {
	mu       sync.Mutex
	requests []recorded
	routes   map[string]func(w http.ResponseWriter)
}

func newFakeDesk(t *testing.T) (*fakeDesk, *Client) {
	t.Helper()
	fd := &fakeDesk{routes: map[string]func(http.ResponseWriter){}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Token: r.Header.Get("api_access_token")}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		fd.mu.Lock()
		fd.requests = append(fd.requests, rec)
		h, ok := fd.routes[r.Method+" "+r.URL.Path]
		fd.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"not found"}`)
			return
		}
		h(w)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{APIURL: srv.URL + "/", AccountID: "7", AccessToken: "tok", Logger: testLogger()})
	return fd, c
}

func (fd *fakeDesk) on(method, path string, status int, body string) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.routes[method+" /api/v1/accounts/7/"+path] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (fd *fakeDesk) calls() []recorded {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return append([]recorded(nil), fd.requests...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestClient_CreateMessage(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("POST", "conversations/42/messages", http.StatusOK, `{"id":1}`)

	require.NoError(t, c.CreateMessage(context.Background(), "42", "Olá", Outgoing))

	calls := fd.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tok", calls[0].Token)
	assert.Equal(t, "/api/v1/accounts/7/conversations/42/messages", calls[0].Path)
	assert.Equal(t, map[string]any{"content": "Olá", "message_type": "outgoing", "private": false}, calls[0].Body)
}

func TestClient_APIError(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("GET", "conversations", http.StatusUnauthorized, `{"error":"Invalid Access Token"}`)

	err := c.Ping(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Invalid Access Token")
}

func TestClient_NoContent(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("POST", "conversations/9/toggle_status", http.StatusNoContent, "")
	fd.on("POST", "conversations/9/assignments", http.StatusOK, `{}`)

	require.NoError(t, c.ToggleStatus(context.Background(), "9", "open"))
	require.NoError(t, c.Assign(context.Background(), "9", 0))

	calls := fd.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, map[string]any{"status": "open"}, calls[0].Body)
	assert.Equal(t, map[string]any{"assignee_id": float64(0)}, calls[1].Body)
}

func TestClient_SearchContact(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("GET", "contacts/search", http.StatusOK, `{"payload":[{"id":5,"name":"Ana","identifier":"123"},{"id":6}]}`)

	contact, err := c.SearchContact(context.Background(), "123")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, int64(5), contact.ID)
	assert.Equal(t, "q=123", fd.calls()[0].Query)
}

func TestClient_SearchContactNone(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("GET", "contacts/search", http.StatusOK, `{"payload":[]}`)

	contact, err := c.SearchContact(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, contact)
}

func TestClient_CreateContactPayloadShapes(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("POST", "contacts", http.StatusOK, `{"payload":{"contact":{"id":11,"name":"Ana"}}}`)

	contact, err := c.CreateContact(context.Background(), 3, "Ana", "555")
	require.NoError(t, err)
	assert.Equal(t, int64(11), contact.ID)
	assert.Equal(t, map[string]any{"inbox_id": float64(3), "name": "Ana", "identifier": "555"}, fd.calls()[0].Body)

	fd.on("POST", "contacts", http.StatusOK, `{"payload":{"id":12,"name":"Bia"}}`)
	contact, err = c.CreateContact(context.Background(), 3, "Bia", "556")
	require.NoError(t, err)
	assert.Equal(t, int64(12), contact.ID)
}

func TestGateway_FindOrCreateConversation_ReusesOpen(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("GET", "contacts/5/conversations", http.StatusOK,
		`{"payload":[{"id":1,"inbox_id":3,"status":"resolved"},{"id":2,"inbox_id":4,"status":"open"},{"id":3,"inbox_id":3,"status":"pending"}]}`)
	g := NewGateway(c, testLogger())

	conv, err := g.FindOrCreateConversation(context.Background(), &Contact{ID: 5}, 3, "555")
	require.NoError(t, err)
	assert.Equal(t, int64(3), conv.ID)
	assert.Len(t, fd.calls(), 1, "no conversation created")
}

func TestGateway_FindOrCreateConversation_CreatesWhenResolved(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("GET", "contacts/5/conversations", http.StatusOK, `{"payload":[{"id":1,"inbox_id":3,"status":"resolved"}]}`)
	fd.on("POST", "conversations", http.StatusOK, `{"id":20,"inbox_id":3,"status":"open"}`)
	g := NewGateway(c, testLogger())

	conv, err := g.FindOrCreateConversation(context.Background(), &Contact{ID: 5}, 3, "555")
	require.NoError(t, err)
	assert.Equal(t, int64(20), conv.ID)

	calls := fd.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, map[string]any{"contact_id": float64(5), "inbox_id": float64(3), "source_id": "555"}, calls[1].Body)
}

func TestGateway_GetOrCreateContact_NameFallsBackToSourceID(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("GET", "contacts/search", http.StatusOK, `{"payload":[]}`)
	fd.on("POST", "contacts", http.StatusOK, `{"payload":{"contact":{"id":8}}}`)
	g := NewGateway(c, testLogger())

	contact, err := g.GetOrCreateContact(context.Background(), 3, "", "whatsapp:+5511")
	require.NoError(t, err)
	assert.Equal(t, int64(8), contact.ID)
	assert.Equal(t, "whatsapp:+5511", fd.calls()[1].Body["name"])
}

func TestGateway_Mirror(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("GET", "contacts/search", http.StatusOK, `{"payload":[{"id":5}]}`)
	fd.on("GET", "contacts/5/conversations", http.StatusOK, `{"payload":[{"id":30,"inbox_id":3,"status":"open"}]}`)
	fd.on("POST", "conversations/30/messages", http.StatusOK, `{"id":1}`)
	g := NewGateway(c, testLogger())

	err := g.Mirror(context.Background(), 3, domain.NormalizedMessage{ConversationID: "99", Text: "oi"}, "olá")
	require.NoError(t, err)

	calls := fd.calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "oi", calls[2].Body["content"])
	assert.Equal(t, "incoming", calls[2].Body["message_type"])
	assert.Equal(t, "olá", calls[3].Body["content"])
	assert.Equal(t, "outgoing", calls[3].Body["message_type"])
}

func TestGateway_MirrorAbortsOnFailure(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("GET", "contacts/search", http.StatusInternalServerError, `boom`)
	g := NewGateway(c, testLogger())

	err := g.Mirror(context.Background(), 3, domain.NormalizedMessage{ConversationID: "99", Text: "oi"}, "olá")
	require.Error(t, err)
	assert.Len(t, fd.calls(), 1)
}

func TestGateway_Escalate(t *testing.T) {
	fd, c := newFakeDesk(t)
	fd.on("POST", "conversations/9/toggle_status", http.StatusOK, `{}`)
	fd.on("POST", "conversations/9/assignments", http.StatusOK, `{}`)
	g := NewGateway(c, testLogger())

	require.NoError(t, g.Escalate(context.Background(), "9"))
	calls := fd.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/api/v1/accounts/7/conversations/9/toggle_status", calls[0].Path)
	assert.Equal(t, "/api/v1/accounts/7/conversations/9/assignments", calls[1].Path)
}
