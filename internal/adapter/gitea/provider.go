// Package gitea implements vcsprovider.Provider against the Gitea/Forgejo
// REST API. Workflows mirror their progress into one tracking issue per
// subject.
package gitea

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Provider mirrors workflow progress into Gitea issues. The subject-to-issue
// mapping lives in memory; a restart simply opens a fresh tracking issue on
// the next workflow.
type Provider struct {
	baseURL    string
	token      string
	owner      string
	repo       string
	httpClient *http.Client

	mu     sync.Mutex
	issues map[string]int // subjectID -> issue number
}

// NewProvider creates a Gitea provider. repoRef is "owner/repo".
func NewProvider(baseURL, token, repoRef string) (*Provider, error) {
	owner, repo, err := parseRepoRef(repoRef)
	if err != nil {
		return nil, err
	}
	return &Provider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		owner:      owner,
		repo:       repo,
		httpClient: http.DefaultClient,
		issues:     make(map[string]int),
	}, nil
}

// giteaIssue mirrors the JSON response from the Gitea issues API.
type giteaIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
}

// CreateIssue opens a tracking issue for the subject and returns its number.
func (p *Provider) CreateIssue(ctx context.Context, subjectID, title, body string) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"title": title,
		"body":  body,
	})

	url := fmt.Sprintf("%s/api/v1/repos/%s/%s/issues", p.baseURL, p.owner, p.repo)
	respBody, err := p.doRequest(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("gitea create issue: %w", err)
	}

	var created giteaIssue
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("gitea parse response: %w", err)
	}

	p.mu.Lock()
	p.issues[subjectID] = created.Number
	p.mu.Unlock()

	return strconv.Itoa(created.Number), nil
}

// Comment appends a comment to the subject's tracking issue.
func (p *Provider) Comment(ctx context.Context, subjectID, body string) error {
	number, err := p.issueFor(subjectID)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{"body": body})
	url := fmt.Sprintf("%s/api/v1/repos/%s/%s/issues/%d/comments", p.baseURL, p.owner, p.repo, number)
	if _, err := p.doRequest(ctx, http.MethodPost, url, strings.NewReader(string(payload))); err != nil {
		return fmt.Errorf("gitea comment: %w", err)
	}
	return nil
}

// Label applies a label to the subject's tracking issue. Labels are sent by
// name, which Gitea resolves server-side (1.19+).
func (p *Provider) Label(ctx context.Context, subjectID, label string) error {
	number, err := p.issueFor(subjectID)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string][]string{"labels": {label}})
	url := fmt.Sprintf("%s/api/v1/repos/%s/%s/issues/%d/labels", p.baseURL, p.owner, p.repo, number)
	if _, err := p.doRequest(ctx, http.MethodPost, url, strings.NewReader(string(payload))); err != nil {
		return fmt.Errorf("gitea label: %w", err)
	}
	return nil
}

func (p *Provider) issueFor(subjectID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	number, ok := p.issues[subjectID]
	if !ok {
		return 0, fmt.Errorf("no tracking issue for subject %q", subjectID)
	}
	return number, nil
}

func (p *Provider) doRequest(ctx context.Context, method, reqURL string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if p.token != "" {
		req.Header.Set("Authorization", "token "+p.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gitea API %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func parseRepoRef(ref string) (owner, repo string, err error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo ref %q: expected owner/repo", ref)
	}
	return parts[0], parts[1], nil
}
