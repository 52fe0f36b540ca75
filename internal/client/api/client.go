// Package api is the debug client's view of the chess server: a tracing REST
// client and a websocket lobby connection.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"chessduel/internal/client/display"
	"chessduel/internal/server/core"
	"chessduel/internal/server/realtime"
)

const pollTimeout = 35 * time.Second

// APIError is a non-2xx reply decoded from the server's error body
type APIError struct {
	Status int
	core.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.ErrorResponse.Error)
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

type Client struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
	Verbose    bool
	// Out receives the request trace; nil silences it
	Out io.Writer
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: pollTimeout,
		},
		Out: os.Stdout,
	}
}

func (c *Client) SetVerbose(v bool) {
	c.Verbose = v
}

// SetBaseURL updates the API base URL for the client
func (c *Client) SetBaseURL(url string) {
	c.BaseURL = strings.TrimRight(url, "/")
}

func (c *Client) SetToken(token string) {
	c.AuthToken = token
}

func (c *Client) tracef(format string, args ...any) {
	if c.Out != nil {
		fmt.Fprintf(c.Out, format, args...)
	}
}

func (c *Client) doRequest(method, path string, body any, result any) error {
	var bodyReader io.Reader
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	c.tracef("\n%s[API] %s %s%s\n", display.Blue, method, path, display.Reset)
	if payload != nil {
		if c.Verbose {
			c.tracef("%sRequest Body:%s\n%s\n", display.Cyan, display.Reset, indentJSON(payload))
		} else {
			c.tracef("%s%s%s\n", display.Blue, payload, display.Reset)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.tracef("%s[ERROR] %s%s\n", display.Red, err.Error(), display.Reset)
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	statusColor := display.Green
	if resp.StatusCode >= 400 {
		statusColor = display.Red
	}
	c.tracef("%s[%d %s]%s\n", statusColor, resp.StatusCode, http.StatusText(resp.StatusCode), display.Reset)
	if c.Verbose && len(respBody) > 0 {
		c.tracef("%sResponse Body:%s\n%s\n", display.Cyan, display.Reset, indentJSON(respBody))
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(respBody, &apiErr.ErrorResponse) != nil {
			apiErr.ErrorResponse.Error = strings.TrimSpace(string(respBody))
		}
		// The stateless move endpoint reports failures in the move body
		if apiErr.ErrorResponse.Error == "" && result != nil {
			json.Unmarshal(respBody, result)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			c.tracef("%sResponse parse error: %s%s\n", display.Red, err.Error(), display.Reset)
			return err
		}
	}
	return nil
}

func indentJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Health

func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(http.MethodGet, "/health", nil, &resp)
	return &resp, err
}

// Sessions

func (c *Client) CreateSession(req core.CreateSessionRequest) (*core.SessionResponse, error) {
	var resp core.SessionResponse
	err := c.doRequest(http.MethodPost, "/api/v1/sessions", req, &resp)
	return &resp, err
}

func (c *Client) GetSession(id string) (*core.SessionResponse, error) {
	var resp core.SessionResponse
	err := c.doRequest(http.MethodGet, "/api/v1/sessions/"+id, nil, &resp)
	return &resp, err
}

// WaitSession long-polls until the session has moved past moveCount or the
// server gives up waiting
func (c *Client) WaitSession(id string, moveCount int) (*core.SessionResponse, error) {
	var resp core.SessionResponse
	path := fmt.Sprintf("/api/v1/sessions/%s?wait=true&moveCount=%d", id, moveCount)
	err := c.doRequest(http.MethodGet, path, nil, &resp)
	return &resp, err
}

func (c *Client) ConfigureSession(id string, req core.ConfigureSessionRequest) (*core.SessionResponse, error) {
	var resp core.SessionResponse
	err := c.doRequest(http.MethodPut, "/api/v1/sessions/"+id+"/config", req, &resp)
	return &resp, err
}

func (c *Client) DeleteSession(id string) error {
	return c.doRequest(http.MethodDelete, "/api/v1/sessions/"+id, nil, nil)
}

func (c *Client) MakeMove(id string, move core.Move) (*core.SessionResponse, error) {
	req := core.MoveRequest{From: move.From, To: move.To, Promotion: move.Promotion}
	var resp core.SessionResponse
	err := c.doRequest(http.MethodPost, "/api/v1/sessions/"+id+"/moves", req, &resp)
	return &resp, err
}

// NextMove asks the session's opponent to move
func (c *Client) NextMove(id string) (*core.SessionResponse, error) {
	var resp core.SessionResponse
	err := c.doRequest(http.MethodPost, "/api/v1/sessions/"+id+"/next", nil, &resp)
	return &resp, err
}

func (c *Client) Hint(id string) (*core.HintResponse, error) {
	var resp core.HintResponse
	err := c.doRequest(http.MethodPost, "/api/v1/sessions/"+id+"/hint", nil, &resp)
	return &resp, err
}

func (c *Client) Evaluate(id string) (*core.Evaluation, error) {
	var resp core.Evaluation
	err := c.doRequest(http.MethodGet, "/api/v1/sessions/"+id+"/evaluation", nil, &resp)
	return &resp, err
}

func (c *Client) Undo(id string, count int) (*core.SessionResponse, error) {
	var resp core.SessionResponse
	err := c.doRequest(http.MethodPost, "/api/v1/sessions/"+id+"/undo", core.UndoRequest{Count: count}, &resp)
	return &resp, err
}

func (c *Client) Board(id string) (*core.BoardResponse, error) {
	var resp core.BoardResponse
	err := c.doRequest(http.MethodGet, "/api/v1/sessions/"+id+"/board", nil, &resp)
	return &resp, err
}

// BrokerMove requests one move for an arbitrary position. On failure the
// returned response still carries the failure code.
func (c *Client) BrokerMove(req core.BrokerRequest) (*core.BrokerResponse, error) {
	var resp core.BrokerResponse
	err := c.doRequest(http.MethodPost, "/api/v1/moves", req, &resp)
	return &resp, err
}

// Accounts

func (c *Client) Register(username, password, email string) (*AuthResponse, error) {
	req := RegisterRequest{Username: username, Password: password, Email: email}
	var resp AuthResponse
	err := c.doRequest(http.MethodPost, "/api/v1/auth/register", req, &resp)
	return &resp, err
}

func (c *Client) Login(identifier, password string) (*AuthResponse, error) {
	req := LoginRequest{Identifier: identifier, Password: password}
	var resp AuthResponse
	err := c.doRequest(http.MethodPost, "/api/v1/auth/login", req, &resp)
	return &resp, err
}

func (c *Client) Logout() error {
	return c.doRequest(http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

func (c *Client) CurrentUser() (*UserResponse, error) {
	var resp UserResponse
	err := c.doRequest(http.MethodGet, "/api/v1/auth/me", nil, &resp)
	return &resp, err
}

func (c *Client) OnlineUsers() (*realtime.OnlineUsers, error) {
	var resp realtime.OnlineUsers
	err := c.doRequest(http.MethodGet, "/api/v1/users/online", nil, &resp)
	return &resp, err
}

// RawRequest sends body as JSON when it parses, otherwise as a JSON string
func (c *Client) RawRequest(method, path, body string) error {
	var data any
	if body != "" {
		if err := json.Unmarshal([]byte(body), &data); err != nil {
			data = body
		}
	}
	return c.doRequest(method, path, data, nil)
}

// LobbyURL maps the API base URL to the lobby websocket endpoint
func (c *Client) LobbyURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {c.AuthToken}}.Encode()
	return u.String(), nil
}
