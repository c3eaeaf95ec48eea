// Package github is a minimal client for the slices of the GitHub REST API
// the pull-request source needs: listing pull requests, listing their files,
// fetching author profiles, and downloading raw content.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.github.com"
	perPage        = 100
)

// User is a submission author.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PullRequest is the subset of PR metadata grading cares about.
type PullRequest struct {
	ID        int64     `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      User      `json:"user"`
}

// PullRequestFile is one file touched by a pull request.
type PullRequestFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	RawURL   string `json:"raw_url"`
}

// Client talks to the GitHub REST API with optional token auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root. Tests use this to
// target an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithToken authenticates requests with a personal access token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a client against api.github.com.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListPullRequests returns every pull request of repo ("owner/name") in the
// given state ("open", "closed", "all"), walking pagination to the end.
func (c *Client) ListPullRequests(ctx context.Context, repo, state string) ([]PullRequest, error) {
	if state == "" {
		state = "all"
	}
	var out []PullRequest
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/pulls?state=%s&per_page=%d&page=%d",
			c.baseURL, repo, state, perPage, page)
		var batch []PullRequest
		if err := c.getJSON(ctx, url, &batch); err != nil {
			return nil, fmt.Errorf("github: list pulls for %s: %w", repo, err)
		}
		out = append(out, batch...)
		if len(batch) < perPage {
			return out, nil
		}
	}
}

// ListFiles returns the files touched by a pull request.
func (c *Client) ListFiles(ctx context.Context, repo string, number int) ([]PullRequestFile, error) {
	var out []PullRequestFile
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/pulls/%d/files?per_page=%d&page=%d",
			c.baseURL, repo, number, perPage, page)
		var batch []PullRequestFile
		if err := c.getJSON(ctx, url, &batch); err != nil {
			return nil, fmt.Errorf("github: list files for %s#%d: %w", repo, number, err)
		}
		out = append(out, batch...)
		if len(batch) < perPage {
			return out, nil
		}
	}
}

// GetUser fetches an author's profile. The pulls listing only carries the
// login; name and email live on the user resource.
func (c *Client) GetUser(ctx context.Context, login string) (User, error) {
	var user User
	url := fmt.Sprintf("%s/users/%s", c.baseURL, login)
	if err := c.getJSON(ctx, url, &user); err != nil {
		return User{}, fmt.Errorf("github: get user %s: %w", login, err)
	}
	return user, nil
}

// Download fetches raw file content from an absolute URL, typically a
// raw_url from ListFiles or a raw.githubusercontent.com path.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.get(ctx, rawURL, "")
	if err != nil {
		return nil, fmt.Errorf("github: download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("github: download %s: %w", rawURL, err)
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dest any) error {
	resp, err := c.get(ctx, url, "application/vnd.github+json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
