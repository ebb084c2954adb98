package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// APIClient talks to a running stagehand host over its loopback HTTP API.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://" + defaultListenAddr + "/api/v1"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// IsReachable checks whether a host is running and answering.
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/status")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *APIClient) do(method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error      string `json:"error"`
			Suggestion string `json:"suggestion"`
		}
		if derr := json.NewDecoder(resp.Body).Decode(&e); derr == nil && e.Error != "" {
			if e.Suggestion != "" {
				return fmt.Errorf("%s (%s)", e.Error, e.Suggestion)
			}
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// GetStatus fetches the full status snapshot as generic JSON.
func (c *APIClient) GetStatus() (map[string]any, error) {
	var out map[string]any
	err := c.do(http.MethodGet, "/status", nil, &out)
	return out, err
}

func (c *APIClient) UpdateSettings(patch map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.do(http.MethodPatch, "/settings", patch, &out)
	return out, err
}

func (c *APIClient) StartAPI() (map[string]any, error) {
	var out map[string]any
	err := c.do(http.MethodPost, "/api/start", nil, &out)
	return out, err
}

func (c *APIClient) StopAPI(force bool) (map[string]any, error) {
	path := "/api/stop"
	if force {
		path += "?force=true"
	}
	var out map[string]any
	err := c.do(http.MethodPost, path, nil, &out)
	return out, err
}

func (c *APIClient) RestartAPI() (map[string]any, error) {
	var out map[string]any
	err := c.do(http.MethodPost, "/api/restart", nil, &out)
	return out, err
}

func (c *APIClient) RunChecks() (map[string]any, error) {
	var out map[string]any
	err := c.do(http.MethodPost, "/checks", nil, &out)
	return out, err
}

func (c *APIClient) GetLogs(tail int) ([]string, error) {
	var out []string
	err := c.do(http.MethodGet, fmt.Sprintf("/logs?tail=%d", tail), nil, &out)
	return out, err
}

func (c *APIClient) ClearLogs() error {
	return c.do(http.MethodPost, "/logs/clear", nil, nil)
}

func (c *APIClient) PickRepoRoot(path string) (map[string]any, error) {
	var out map[string]any
	err := c.do(http.MethodPost, "/repo-root", map[string]string{"path": path}, &out)
	return out, err
}
