package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/config"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
)

const (
	jsonContentType = "application/json"
)

// APIErrorResponse is the backend's error envelope.
type APIErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client talks to the remote assistant backend. It owns session creation,
// history and metadata reads, file uploads and the streaming chat call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *zap.Logger
}

// NewClient creates a backend client from configuration.
func NewClient(cfg config.BackendConfig, log *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		log:        log,
	}
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// CreateSession asks the backend for a fresh session id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/sessions", nil)
	if err != nil {
		return "", err
	}

	var resp createSessionResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("create session: backend returned empty id")
	}
	return resp.SessionID, nil
}

type historyResponse struct {
	Messages []domain.HistoryEntry `json:"messages"`
}

// History fetches the stored transcript for a session.
func (c *Client) History(ctx context.Context, sessionID, userID string) ([]domain.HistoryEntry, error) {
	path := fmt.Sprintf("/v1/sessions/%s/history", url.PathEscape(sessionID))
	if userID != "" {
		path += "?user_id=" + url.QueryEscape(userID)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp historyResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return resp.Messages, nil
}

// SessionMetadata fetches the per-session metadata record. A missing
// record is not an error; it returns nil.
func (c *Client) SessionMetadata(ctx context.Context, sessionID string) (*domain.SessionMetadata, error) {
	path := fmt.Sprintf("/v1/sessions/%s/metadata", url.PathEscape(sessionID))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get session metadata: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("get session metadata: %w", err)
	}
	if err := handleAPIError(res, body); err != nil {
		return nil, fmt.Errorf("get session metadata: %w", err)
	}

	var meta domain.SessionMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("get session metadata: %w", err)
	}
	return &meta, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", jsonContentType)
	}
	req.Header.Set("Accept", jsonContentType)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("Failed to send backend request",
			zap.String("url", req.URL.Path), zap.Error(err))
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if err := handleAPIError(res, body); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response body: %w", err)
	}
	return nil
}

func handleAPIError(res *http.Response, body []byte) error {
	if res.StatusCode >= http.StatusOK && res.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	apiErr := APIErrorResponse{}
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("backend request failed: status code %d", res.StatusCode)
	}
	return fmt.Errorf("backend request failed: status code %d, message %s", res.StatusCode, apiErr.Message)
}
