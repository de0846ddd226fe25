// Package desk talks to the Chatwoot account API: contacts, conversations
// and messages.
package desk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const defaultTimeout = 30 * time.Second

// Message types accepted by the messages endpoint.
const (
	Incoming = "incoming"
	Outgoing = "outgoing"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("chatwoot api: HTTP %d: %s", e.StatusCode, body)
}

// Contact is the subset of a Chatwoot contact the relay uses.
type Contact struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// Conversation is the subset of a Chatwoot conversation the relay uses.
type Conversation struct {
	ID      int64  `json:"id"`
	InboxID int64  `json:"inbox_id"`
	Status  string `json:"status"`
}

type Config struct {
	APIURL      string
	AccountID   string
	AccessToken string
	HTTPClient  *http.Client // optional
	Logger      *slog.Logger
}

// Client is a thin Chatwoot REST client scoped to one account.
type Client struct {
	base   string // {apiURL}/api/v1/accounts/{accountId}
	token  string
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   strings.TrimRight(cfg.APIURL, "/") + "/api/v1/accounts/" + url.PathEscape(cfg.AccountID),
		token:  cfg.AccessToken,
		http:   hc,
		logger: logger.With("component", "desk"),
	}
}

// do sends one request and decodes the JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+"/"+endpoint, reqBody)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, endpoint)
	}
	req.Header.Set("api_access_token", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	c.logger.Debug("chatwoot request", "method", method, "endpoint", endpoint)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return errors.WithStack(&APIError{StatusCode: resp.StatusCode, Body: string(raw)})
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, endpoint)
	}
	return nil
}

// SearchContact returns the first contact matching q, or nil when none does.
func (c *Client) SearchContact(ctx context.Context, q string) (*Contact, error) {
	var result struct {
		Payload []Contact `json:"payload"`
	}
	if err := c.do(ctx, http.MethodGet, "contacts/search?q="+url.QueryEscape(q), nil, &result); err != nil {
		return nil, errors.Wrap(err, "search contact")
	}
	if len(result.Payload) == 0 {
		return nil, nil
	}
	return &result.Payload[0], nil
}

// CreateContact creates a contact attached to inboxID.
func (c *Client) CreateContact(ctx context.Context, inboxID int64, name, sourceID string) (*Contact, error) {
	payload := map[string]any{
		"inbox_id":   inboxID,
		"name":       name,
		"identifier": sourceID,
	}
	var result struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := c.do(ctx, http.MethodPost, "contacts", payload, &result); err != nil {
		return nil, errors.Wrap(err, "create contact")
	}

	// Newer Chatwoot versions nest the contact under payload.contact.
	var nested struct {
		Contact *Contact `json:"contact"`
	}
	if err := json.Unmarshal(result.Payload, &nested); err == nil && nested.Contact != nil && nested.Contact.ID != 0 {
		return nested.Contact, nil
	}
	var flat Contact
	if err := json.Unmarshal(result.Payload, &flat); err != nil || flat.ID == 0 {
		return nil, errors.New("create contact: response has no contact id")
	}
	return &flat, nil
}

// ContactConversations lists the conversations of a contact.
func (c *Client) ContactConversations(ctx context.Context, contactID int64) ([]Conversation, error) {
	var result struct {
		Payload []Conversation `json:"payload"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("contacts/%d/conversations", contactID), nil, &result); err != nil {
		return nil, errors.Wrap(err, "list contact conversations")
	}
	return result.Payload, nil
}

// CreateConversation opens a new conversation for contactID in inboxID.
func (c *Client) CreateConversation(ctx context.Context, contactID, inboxID int64, sourceID string) (*Conversation, error) {
	payload := map[string]any{
		"contact_id": contactID,
		"inbox_id":   inboxID,
		"source_id":  sourceID,
	}
	var conv Conversation
	if err := c.do(ctx, http.MethodPost, "conversations", payload, &conv); err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	if conv.ID == 0 {
		return nil, errors.New("create conversation: response has no conversation id")
	}
	return &conv, nil
}

// CreateMessage posts a public message. messageType is Incoming or Outgoing.
func (c *Client) CreateMessage(ctx context.Context, conversationID, content, messageType string) error {
	payload := map[string]any{
		"content":      content,
		"message_type": messageType,
		"private":      false,
	}
	endpoint := "conversations/" + url.PathEscape(conversationID) + "/messages"
	return errors.Wrapf(c.do(ctx, http.MethodPost, endpoint, payload, nil), "create %s message", messageType)
}

// ToggleStatus sets the conversation status (open, resolved, pending).
func (c *Client) ToggleStatus(ctx context.Context, conversationID, status string) error {
	endpoint := "conversations/" + url.PathEscape(conversationID) + "/toggle_status"
	return errors.Wrap(c.do(ctx, http.MethodPost, endpoint, map[string]any{"status": status}, nil), "toggle status")
}

// Assign assigns the conversation to an agent. Agent id 0 removes the bot.
func (c *Client) Assign(ctx context.Context, conversationID string, assigneeID int64) error {
	endpoint := "conversations/" + url.PathEscape(conversationID) + "/assignments"
	return errors.Wrap(c.do(ctx, http.MethodPost, endpoint, map[string]any{"assignee_id": assigneeID}, nil), "assign conversation")
}

// Ping lists conversations to check the URL, account and token.
func (c *Client) Ping(ctx context.Context) error {
	return errors.Wrap(c.do(ctx, http.MethodGet, "conversations", nil, nil), "ping")
}
