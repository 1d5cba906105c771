// Package github files issues against the repository where a grown-up
// reviews the child's extension requests.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client creates issues via the GitHub REST API
type Client struct {
	token      string
	baseURL    string
	owner      string
	repo       string
	httpClient *http.Client
}

// Config for the GitHub client
type Config struct {
	Token   string
	BaseURL string
	Owner   string
	Repo    string
	Timeout time.Duration
}

// NewClient creates a new GitHub issue client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// IsConfigured checks that a token and target repository are set.
// An unconfigured client is normal: requests are then logged locally
// without filing issues.
func (c *Client) IsConfigured() bool {
	return c.token != "" && c.owner != "" && c.repo != ""
}

// Issue is the created issue's identity
type Issue struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

type issueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

// CreateIssue files a new issue
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (*Issue, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("github client not configured")
	}

	payload, err := json.Marshal(issueRequest{Title: title, Body: body, Labels: labels})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal issue: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues", c.baseURL, c.owner, c.repo)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("github API error %d: %s", resp.StatusCode, string(respBody))
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &issue, nil
}
