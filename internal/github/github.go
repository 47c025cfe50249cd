// Package github wraps the GitHub REST API calls the server makes:
// star/fork enrichment, the user star endpoints, and raw README
// fetches.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const userAgent = "npmtok"

// StatusError carries a non-success upstream status so handlers can
// map it onto their own response codes.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client calls the GitHub REST API and the raw content host. Token is
// the optional server credential used for enrichment calls; star
// actions use the per-user token passed in explicitly. Outbound calls
// are paced by the limiter to stay under upstream rate limits.
type Client struct {
	APIBase string
	RawBase string
	Token   string
	HTTP    *http.Client
	Limiter *rate.Limiter
	Logger  *zap.Logger
}

// NewClient creates a GitHub client. A nil limiter disables pacing.
func NewClient(apiBase, rawBase, token string, client *http.Client, limiter *rate.Limiter, logger *zap.Logger) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		APIBase: apiBase,
		RawBase: rawBase,
		Token:   token,
		HTTP:    client,
		Limiter: limiter,
		Logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, url, token string) (*http.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method == http.MethodPut {
		req.Header.Set("Content-Length", "0")
	}

	return c.HTTP.Do(req)
}

// RepoStats returns the star and fork counts for a repository. Any
// failure degrades to zeros so one bad enrichment call never drops a
// package from a result set.
func (c *Client) RepoStats(ctx context.Context, owner, name string) (stars, forks int) {
	url := fmt.Sprintf("%s/repos/%s/%s", c.APIBase, owner, name)
	resp, err := c.do(ctx, http.MethodGet, url, c.Token)
	if err != nil {
		c.Logger.Debug("repo stats fetch failed",
			zap.String("repo", owner+"/"+name),
			zap.Error(err),
		)
		return 0, 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Logger.Debug("repo stats non-success",
			zap.String("repo", owner+"/"+name),
			zap.Int("status", resp.StatusCode),
		)
		return 0, 0
	}

	var body struct {
		StargazersCount int `json:"stargazers_count"`
		ForksCount      int `json:"forks_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0
	}
	return body.StargazersCount, body.ForksCount
}

// IsStarred reports whether the user behind token has starred the
// repository. GitHub answers 204 for starred and 404 for not starred;
// anything else becomes a StatusError.
func (c *Client) IsStarred(ctx context.Context, token, owner, repo string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, c.starURL(owner, repo), token)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, c.statusError(resp, owner, repo, "checking star")
	}
}

// Star stars the repository on behalf of the user behind token.
func (c *Client) Star(ctx context.Context, token, owner, repo string) error {
	resp, err := c.do(ctx, http.MethodPut, c.starURL(owner, repo), token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return c.statusError(resp, owner, repo, "starring")
}

// Unstar removes the user's star from the repository.
func (c *Client) Unstar(ctx context.Context, token, owner, repo string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.starURL(owner, repo), token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return c.statusError(resp, owner, repo, "unstarring")
}

// Readme fetches the raw README markdown, trying the master branch
// first and then main.
func (c *Client) Readme(ctx context.Context, owner, repo string) (string, error) {
	for _, branch := range []string{"master", "main"} {
		url := fmt.Sprintf("%s/%s/%s/%s/README.md", c.RawBase, owner, repo, branch)
		resp, err := c.do(ctx, http.MethodGet, url, "")
		if err != nil {
			return "", err
		}

		if resp.StatusCode == http.StatusOK {
			content, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return "", fmt.Errorf("reading README body: %w", err)
			}
			return string(content), nil
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return "", fmt.Errorf("failed to fetch README from both master and main branches")
}

func (c *Client) starURL(owner, repo string) string {
	return fmt.Sprintf("%s/user/starred/%s/%s", c.APIBase, owner, repo)
}

func (c *Client) statusError(resp *http.Response, owner, repo, action string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	c.Logger.Error("github API error",
		zap.String("action", action),
		zap.String("repo", owner+"/"+repo),
		zap.Int("status", resp.StatusCode),
		zap.String("body", strings.TrimSpace(string(body))),
	)
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
