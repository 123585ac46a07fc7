// Package remote is the HTTP client for the external platform backend:
// chat completion, session close, auth, upload and the social surfaces.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Paths carries the backend endpoint paths that vary per deployment.
type Paths struct {
	Chat    string
	ChatEnd string
	Upload  string
}

// DefaultPaths matches the current backend.
func DefaultPaths() Paths {
	return Paths{Chat: "/chat", ChatEnd: "/api/chat/end", Upload: "/upload-video"}
}

// Client talks to the platform backend. A bearer token, when set, is
// attached to every request; participant-code flows run without one by
// design.
type Client struct {
	baseURL    string
	paths      Paths
	token      string
	httpClient *http.Client
}

// NewClient creates a backend client with a bounded timeout. A hung remote
// call must never leave a caller stuck in Sending.
func NewClient(baseURL string, paths Paths, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		paths:   paths,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetToken installs (or clears, with "") the bearer token.
func (c *Client) SetToken(token string) { c.token = token }

// Token returns the installed bearer token.
func (c *Client) Token() string { return c.token }

// ChatRequest is the completion request. AnxietyLevel rides only on the
// first user message of a session.
type ChatRequest struct {
	Message      string `json:"message"`
	UserID       string `json:"userId"`
	AnxietyLevel int    `json:"anxiety_level,omitempty"`
}

// ChatReply is the completion response. An empty Reply is a soft error the
// caller turns into fallback copy, not a failure of the call.
type ChatReply struct {
	Reply string `json:"reply"`
}

// Chat sends one user message and returns the virtual patient's reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	var reply ChatReply
	if err := c.postJSON(ctx, c.paths.Chat, req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// LogEntry is one archived transcript line. Message is a JSON-encoded
// {role,text} object, kept as a string because that is what the backend
// stores.
type LogEntry struct {
	UserEmail string `json:"user_email"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// EndChatRequest archives a finished session. This is the current backend
// shape; the legacy {userId, history} form is dead and deliberately not
// supported.
type EndChatRequest struct {
	UserID         string            `json:"user_id"`
	ConversationID string            `json:"conversation_id"`
	Logs           []LogEntry        `json:"logs"`
	Meta           map[string]string `json:"meta,omitempty"`
}

// EndChat submits the session archive.
func (c *Client) EndChat(ctx context.Context, req EndChatRequest) error {
	return c.postJSON(ctx, c.paths.ChatEnd, req, nil)
}

// Credentials is the login/register payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is the auth response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.postJSON(ctx, "/auth/login", creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and returns its first token.
func (c *Client) Register(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.postJSON(ctx, "/auth/register", creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout invalidates the token server-side. Best effort: callers clear
// local state regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, "/auth/logout", nil, nil)
}

// Identity is the /auth/me response.
type Identity struct {
	Email string `json:"email"`
}

// Me returns the account behind the installed token.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.getJSON(ctx, "/auth/me", &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// UploadResult is the upload-video response.
type UploadResult struct {
	OK   bool   `json:"ok"`
	Path string `json:"path,omitempty"`
}

// UploadVideo streams an already-encoded recording as multipart form data.
func (c *Client) UploadVideo(ctx context.Context, userID, filename string, video io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("userId", userID); err != nil {
		return nil, fmt.Errorf("write field: %w", err)
	}
	part, err := writer.CreateFormFile("video", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, video); err != nil {
		return nil, fmt.Errorf("copy video: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.paths.Upload, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAuth(req)

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// postJSON marshals body, posts it to path and decodes the response into
// out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)

	return c.do(req, out)
}

func (c *Client) putJSON(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	return c.do(req, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
