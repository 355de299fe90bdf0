package daemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/agentwatch/agentwatch/internal/registry"
)

// Client talks to a running daemon's HTTP API. The CLI commands use it;
// external collaborators speak the same endpoints directly.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the daemon at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Sessions fetches the session snapshot, optionally scoped to a
// project.
func (c *Client) Sessions(project string) ([]registry.Session, error) {
	u := c.baseURL + "/v1/sessions"
	if project != "" {
		u += "?project=" + url.QueryEscape(project)
	}
	resp, err := c.http.Get(u)
	if err != nil {
		return nil, fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var body struct {
		Sessions []registry.Session `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parsing sessions response: %w", err)
	}
	return body.Sessions, nil
}

// Send injects text into a session via the daemon.
func (c *Client) Send(sessionID, text string, submit bool) error {
	return c.post("/v1/send", sendRequest{SessionID: sessionID, Text: text, Submit: submit})
}

// Focus brings a session's terminal surface to the foreground.
func (c *Client) Focus(sessionID string) error {
	return c.post("/v1/focus", focusRequest{SessionID: sessionID})
}

// NotifyEvent posts a hook event, as a terminal-config emitter would.
func (c *Client) NotifyEvent(paneID string) error {
	return c.post("/v1/event", map[string]string{"pane_id": paneID})
}

func (c *Client) post(path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}

func decodeError(resp *http.Response) error {
	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
}
