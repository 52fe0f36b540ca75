// Package remote talks to an external move-generation service over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	StatusOK       = "ok"
	StatusGameOver = "game_over"
	StatusError    = "error"

	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 64 << 10
)

// ErrUnavailable wraps transport failures, non-2xx replies and undecodable bodies
var ErrUnavailable = errors.New("remote service unavailable")

// MoveReply is the service's answer to GET /get_move
type MoveReply struct {
	Status  string `json:"status"`
	Move    string `json:"move,omitempty"` // SAN
	NewFEN  string `json:"new_fen,omitempty"`
	Result  string `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

type moveNotice struct {
	Move string `json:"move"`
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d", ErrUnavailable, method, path, resp.StatusCode)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// GetMove asks the service for its move in fen. A reply with status error is
// returned as-is; only transport-level problems produce an error.
func (c *Client) GetMove(ctx context.Context, fen string) (*MoveReply, error) {
	var reply MoveReply
	path := "/get_move?fen=" + url.QueryEscape(fen)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &reply); err != nil {
		return nil, err
	}

	switch reply.Status {
	case StatusOK, StatusGameOver, StatusError:
		return &reply, nil
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrUnavailable, reply.Status)
	}
}

// NotifyMove informs the service of a move made elsewhere
func (c *Client) NotifyMove(ctx context.Context, move string) error {
	return c.doRequest(ctx, http.MethodPost, "/move", moveNotice{Move: move}, nil)
}

// Init resets the service's game state
func (c *Client) Init(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/init", nil, nil)
}
