// Package github is the pull-request collaborator boundary: create a PR,
// list open PRs with their changed files. Kept behind an interface so the
// pipeline is testable without the network.
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

// PullRequest is the subset of PR state the pipeline cares about.
type PullRequest struct {
	Number       int
	Title        string
	URL          string
	Head         string
	Base         string
	ChangedFiles []string
}

// Client is the collaborator contract.
type Client interface {
	CreatePullRequest(ctx context.Context, title, body, head, base string) (string, error)
	ListOpenPullRequests(ctx context.Context) ([]PullRequest, error)
}

// RESTClient talks to the GitHub REST API with token auth.
type RESTClient struct {
	baseURL string
	repo    string // owner/name
	token   string
	http    *http.Client
}

func NewRESTClient(baseURL, repo, token string) *RESTClient {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &RESTClient{
		baseURL: baseURL,
		repo:    repo,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("github %s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *RESTClient) CreatePullRequest(ctx context.Context, title, body, head, base string) (string, error) {
	req := map[string]string{"title": title, "body": body, "head": head, "base": base}
	var created struct {
		HTMLURL string `json:"html_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/repos/"+c.repo+"/pulls", req, &created); err != nil {
		return "", err
	}
	return created.HTMLURL, nil
}

func (c *RESTClient) ListOpenPullRequests(ctx context.Context) ([]PullRequest, error) {
	var raw []struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
		Head    struct {
			Ref string `json:"ref"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	}
	if err := c.do(ctx, http.MethodGet, "/repos/"+c.repo+"/pulls?state=open&per_page=100", nil, &raw); err != nil {
		return nil, err
	}

	prs := make([]PullRequest, 0, len(raw))
	for _, pr := range raw {
		var files []struct {
			Filename string `json:"filename"`
		}
		path := fmt.Sprintf("/repos/%s/pulls/%d/files?per_page=100", c.repo, pr.Number)
		if err := c.do(ctx, http.MethodGet, path, nil, &files); err != nil {
			return nil, err
		}
		changed := make([]string, 0, len(files))
		for _, f := range files {
			changed = append(changed, f.Filename)
		}
		prs = append(prs, PullRequest{
			Number:       pr.Number,
			Title:        pr.Title,
			URL:          pr.HTMLURL,
			Head:         pr.Head.Ref,
			Base:         pr.Base.Ref,
			ChangedFiles: changed,
		})
	}
	return prs, nil
}
