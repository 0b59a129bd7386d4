package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adamavenir/streamsync/internal/core"
	"github.com/adamavenir/streamsync/internal/types"
	"github.com/adamavenir/streamsync/internal/wire"
)

// ErrNotFound is returned when the conversation or target message does not exist.
var ErrNotFound = errors.New("not found")

// APIError represents a non-2xx response from the message API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("api error: %s (%d): %s", e.Code, e.Status, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("api error: %s (%d)", e.Code, e.Status)
	}
	if e.Message != "" {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

type apiErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

const (
	channelMessagesPath = "/api/conversations/%s/messages"
	threadMessagesPath  = "/api/threads/%s/messages"
)

// Client fetches message pages over HTTP.
type Client struct {
	baseURL    string
	token      string
	path       string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient constructs a client for the channel message endpoints.
func NewClient(baseURL, token string, logger *slog.Logger) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: normalized,
		token:   token,
		path:    channelMessagesPath,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		log: logger,
	}, nil
}

// Threads returns a client scoped to thread replies. Conversation ids passed
// to it are parent message ids.
func (c *Client) Threads() *Client {
	clone := *c
	clone.path = threadMessagesPath
	return &clone
}

// NormalizeBaseURL normalizes a server URL and ensures it has a scheme.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("server url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	if parsed.Scheme == "" {
		return "", fmt.Errorf("server url must include scheme (https://)")
	}
	return strings.TrimRight(value, "/"), nil
}

// FetchPage loads the page older than req.Cursor, or the newest page when the
// cursor is empty.
func (c *Client) FetchPage(ctx context.Context, conversationID string, req types.PageRequest) (types.Page, error) {
	query := url.Values{}
	if req.Cursor != "" {
		query.Set("cursor", req.Cursor)
	}
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}
	page, err := c.fetch(ctx, conversationID, query)
	if err != nil {
		return types.Page{}, fmt.Errorf("fetch page %s: %w", conversationID, err)
	}
	return page, nil
}

// FetchAround loads a page ending at targetID by asking for everything older
// than the id just past it.
func (c *Client) FetchAround(ctx context.Context, conversationID, targetID string, limit int) (types.Page, error) {
	cursor, ok := core.OnePast(targetID)
	if !ok {
		return types.Page{}, fmt.Errorf("fetch around %s: invalid target id %q", conversationID, targetID)
	}
	query := url.Values{}
	query.Set("cursor", cursor)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	page, err := c.fetch(ctx, conversationID, query)
	if err != nil {
		return types.Page{}, fmt.Errorf("fetch around %s: %w", targetID, err)
	}
	return page, nil
}

func (c *Client) fetch(ctx context.Context, conversationID string, query url.Values) (types.Page, error) {
	path := fmt.Sprintf(c.path, url.PathEscape(conversationID))
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return types.Page{}, err
	}
	page, dropped := decodePage(raw)
	if dropped > 0 {
		c.log.Debug("api: dropped undecodable messages", "conversation", conversationID, "count", dropped)
	}
	return page, nil
}

// decodePage accepts {"messages": [...], "next_cursor": ...} or a bare array.
func decodePage(raw json.RawMessage) (types.Page, int) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return types.Page{}, 0
	}
	if trimmed[0] == '[' {
		msgs, dropped := wire.DecodeMessages(trimmed)
		return types.Page{Messages: msgs}, dropped
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return types.Page{}, 0
	}
	var page types.Page
	dropped := 0
	for _, key := range []string{"messages", "data", "items"} {
		if v, ok := body[key]; ok {
			page.Messages, dropped = wire.DecodeMessages(v)
			break
		}
	}
	for _, key := range []string{"next_cursor", "nextCursor", "cursor"} {
		if v, ok := body[key]; ok {
			page.NextCursor = cursorString(v)
			break
		}
	}
	return page, dropped
}

func cursorString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, respBody any) error {
	endpoint, err := c.buildURL(path, query)
	if err != nil {
		return err
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload apiErrorPayload
		if err := json.Unmarshal(respData, &payload); err == nil {
			apiErr.Code = payload.Error
			apiErr.Message = payload.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respData))
		}
		return apiErr
	}

	if respBody == nil || len(respData) == 0 {
		return nil
	}
	return json.Unmarshal(respData, respBody)
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	endpoint := base.ResolveReference(ref)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	return endpoint.String(), nil
}
