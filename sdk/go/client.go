package frontdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Frontdesk HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Conversation is the API conversation model (partial).
type Conversation struct {
	ID              string            `json:"id"`
	OwnerKey        string            `json:"owner_key"`
	Phase           string            `json:"phase"`
	Intent          string            `json:"intent"`
	CollectedFields map[string]string `json:"collected_fields,omitempty"`
	AssignedTo      *string           `json:"assigned_to,omitempty"`
	ResultID        *string           `json:"result_id,omitempty"`
	UpdatedAt       string            `json:"updated_at"`
}

type Worker struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Role           string  `json:"role"`
	Status         string  `json:"status"`
	CurrentTask    *string `json:"current_task,omitempty"`
	CompletedTasks int     `json:"completed_tasks"`
	ApprovalRate   float64 `json:"approval_rate"`
}

type Task struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	AssignedTo     string `json:"assigned_to"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

type Artifact struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	CreatedBy      string `json:"created_by"`
	Status         string `json:"status"`
	Feedback       string `json:"feedback,omitempty"`
}

// IngestResult reports what one inbound message produced.
type IngestResult struct {
	ConversationID string   `json:"conversation_id"`
	Phase          string   `json:"phase"`
	Intent         string   `json:"intent"`
	Replies        []string `json:"replies,omitempty"`
}

// Event is a journal entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SendMessage posts an inbound chat message.
func (c *Client) SendMessage(ctx context.Context, ownerKey, text string) (IngestResult, error) {
	body := map[string]any{
		"owner_key": ownerKey,
		"text":      text,
	}
	var resp IngestResult
	err := c.do(ctx, http.MethodPost, "v0/messages", body, &resp)
	return resp, err
}

// Conversations lists conversations, optionally filtered by owner key.
func (c *Client) Conversations(ctx context.Context, ownerKey string) ([]Conversation, error) {
	endpoint := "v0/conversations"
	if ownerKey != "" {
		endpoint += "?owner_key=" + url.QueryEscape(ownerKey)
	}
	var resp []Conversation
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Conversation fetches one conversation by id.
func (c *Client) Conversation(ctx context.Context, id string) (Conversation, error) {
	var resp Conversation
	err := c.do(ctx, http.MethodGet, "v0/conversations/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Workers lists the worker roster.
func (c *Client) Workers(ctx context.Context) ([]Worker, error) {
	var resp []Worker
	err := c.do(ctx, http.MethodGet, "v0/workers", nil, &resp)
	return resp, err
}

// Tasks lists tasks, optionally filtered by conversation.
func (c *Client) Tasks(ctx context.Context, conversationID string) ([]Task, error) {
	endpoint := "v0/tasks"
	if conversationID != "" {
		endpoint += "?conversation_id=" + url.QueryEscape(conversationID)
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Artifacts lists artifacts, optionally filtered by status.
func (c *Client) Artifacts(ctx context.Context, status string) ([]Artifact, error) {
	endpoint := "v0/artifacts"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Artifact
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Artifact fetches one artifact by id.
func (c *Client) Artifact(ctx context.Context, id string) (Artifact, error) {
	var resp Artifact
	err := c.do(ctx, http.MethodGet, "v0/artifacts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Approve marks an artifact approved.
func (c *Client) Approve(ctx context.Context, id string) (Artifact, error) {
	var resp Artifact
	err := c.do(ctx, http.MethodPost, "v0/artifacts/"+url.PathEscape(id)+"/approve", nil, &resp)
	return resp, err
}

// Reject records review feedback on an artifact.
func (c *Client) Reject(ctx context.Context, id, feedback string) (Artifact, error) {
	body := map[string]any{"feedback": feedback}
	var resp Artifact
	err := c.do(ctx, http.MethodPost, "v0/artifacts/"+url.PathEscape(id)+"/reject", body, &resp)
	return resp, err
}

// Events returns journal events after the given cursor.
func (c *Client) Events(ctx context.Context, after int64, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("v0/events?after=%d", after)
	if limit > 0 {
		endpoint += fmt.Sprintf("&limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
