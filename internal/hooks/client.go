package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/server"
	"github.com/lazypower/hebbian/internal/store"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 5 * time.Second
)

// Client talks to a running hebbian server. It implements Backend.
type Client struct {
	http      *http.Client
	serverURL string
}

// NewClient creates a new hook HTTP client.
// Respects HEBBIAN_URL env var, falls back to http://127.0.0.1:37778.
func NewClient() *Client {
	url := os.Getenv("HEBBIAN_URL")
	if url == "" {
		url = defaultServerURL
	}
	return NewClientURL(url, nil)
}

// NewClientURL creates a client for url. A nil hc gets a client with the
// default hook timeout.
func NewClientURL(url string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: httpTimeout}
	}
	return &Client{http: hc, serverURL: url}
}

// do sends a request and decodes a JSON response into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, path, session string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode: %w", method, path, err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rd)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set(server.SessionHeader, session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response %s: %w", path, err)
		}
	}
	return nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) Record(ctx context.Context, session string, ev engine.AccessEvent) error {
	return c.do(ctx, http.MethodPost, "/api/record", session, ev, nil)
}

func (c *Client) RecordError(ctx context.Context, session, errorText, query string) (*engine.ErrorRecall, error) {
	var out engine.ErrorRecall
	req := server.ErrorRequest{ErrorText: errorText, Query: query}
	if err := c.do(ctx, http.MethodPost, "/api/errors", session, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Recall(ctx context.Context, session string, p engine.RecallParams) ([]engine.RecallResult, error) {
	var out server.RecallResponse
	if err := c.do(ctx, http.MethodPost, "/api/recall", session, p, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) Superhighways(ctx context.Context, limit int) ([]store.Neuron, error) {
	path := "/api/superhighways"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out server.NeuronsResponse
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Neurons, nil
}

func (c *Client) Decay(ctx context.Context) (*engine.DecayResult, error) {
	var out engine.DecayResult
	if err := c.do(ctx, http.MethodPost, "/api/decay", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
