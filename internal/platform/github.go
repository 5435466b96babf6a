package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

const githubAPIBase = "https://api.github.com"

// GitHubClient implements Client over the GitHub REST API.
type GitHubClient struct {
	token        string
	reverseProxy string
	httpClient   *http.Client

	// the go-github client and the reverse-proxy base are built lazily on
	// first use and then reused.
	buildOnce sync.Once
	client    *github.Client
	buildErr  error
}

// NewGitHub creates a GitHub client. Outbound calls route through the
// forward proxy when set; reverseProxy, when set, replaces api.github.com
// as the API origin.
func NewGitHub(token, proxy, reverseProxy string) (*GitHubClient, error) {
	hc, err := newHTTPClient(proxy)
	if err != nil {
		return nil, err
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, ts)
		hc.Timeout = requestTimeout
	}
	return &GitHubClient{
		token:        token,
		reverseProxy: strings.TrimSpace(reverseProxy),
		httpClient:   hc,
	}, nil
}

// githubBaseURL resolves the API base. A reverse proxy that already points
// at api.github.com is used as-is; any other base gets the origin appended
// so generic CORS-style proxies work unchanged.
func githubBaseURL(reverseProxy string) string {
	rp := strings.TrimRight(strings.TrimSpace(reverseProxy), "/")
	if rp == "" {
		return githubAPIBase
	}
	if strings.Contains(rp, "api.github.com") {
		return rp
	}
	return rp + "/" + githubAPIBase
}

func (c *GitHubClient) api() (*github.Client, error) {
	c.buildOnce.Do(func() {
		gh := github.NewClient(c.httpClient)
		base := githubBaseURL(c.reverseProxy)
		u, err := url.Parse(base + "/")
		if err != nil {
			c.buildErr = fmt.Errorf("invalid github base url %q: %w", base, err)
			return
		}
		gh.BaseURL = u
		c.client = gh
	})
	return c.client, c.buildErr
}

// mapGitHubError translates go-github failures into the error taxonomy.
func mapGitHubError(err error) error {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return fmt.Errorf("github: %w", ErrRateLimited)
	}
	var arle *github.AbuseRateLimitError
	if errors.As(err, &arle) {
		return fmt.Errorf("github: %w", ErrRateLimited)
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("github: %s: %w", ghErr.Message, ErrNotFound)
		case http.StatusUnauthorized:
			return fmt.Errorf("github: %s: %w", ghErr.Message, ErrUnauthorized)
		case http.StatusForbidden, http.StatusTooManyRequests:
			return fmt.Errorf("github: %s: %w", ghErr.Message, ErrRateLimited)
		case http.StatusUnprocessableEntity:
			path := ""
			if ghErr.Response.Request != nil && ghErr.Response.Request.URL != nil {
				path = ghErr.Response.Request.URL.Path
			}
			return &httpStatusError{platform: GitHub, status: http.StatusUnprocessableEntity, path: path}
		}
	}
	return err
}

// GetRepoInfo retrieves repository metadata, including the default branch.
func (c *GitHubClient) GetRepoInfo(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	gh, err := c.api()
	if err != nil {
		return nil, err
	}
	r, _, err := gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, mapGitHubError(err)
	}
	return &RepoInfo{
		Owner:         owner,
		Name:          repo,
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
	}, nil
}

// GetCommitInfo returns the newest commit on branch, or the default ref
// when branch is empty. A missing/empty branch yields (nil, nil).
func (c *GitHubClient) GetCommitInfo(ctx context.Context, owner, repo, branch string) (*CommitInfo, error) {
	gh, err := c.api()
	if err != nil {
		return nil, err
	}
	opts := &github.CommitsListOptions{
		SHA:         branch,
		ListOptions: github.ListOptions{PerPage: 1},
	}
	commits, _, err := gh.Repositories.ListCommits(ctx, owner, repo, opts)
	if err != nil {
		err = mapGitHubError(err)
		if IsMissingBranch(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(commits) == 0 {
		return nil, nil
	}

	rc := commits[0]
	info := &CommitInfo{
		SHA:     rc.GetSHA(),
		Message: rc.GetCommit().GetMessage(),
		URL:     rc.GetHTMLURL(),
		Date:    rc.GetCommit().GetCommitter().GetDate().Time,
		Author:  UserInfo{Name: rc.GetCommit().GetAuthor().GetName()},
		Committer: UserInfo{
			Name: rc.GetCommit().GetCommitter().GetName(),
		},
	}
	if info.Date.IsZero() {
		info.Date = rc.GetCommit().GetAuthor().GetDate().Time
	}
	// The list endpoint omits stats; leave them zeroed.
	if s := rc.GetStats(); s != nil {
		info.Stats = CommitStats{
			Additions: s.GetAdditions(),
			Deletions: s.GetDeletions(),
			Total:     s.GetTotal(),
		}
	}
	if u := rc.GetAuthor(); u.GetAvatarURL() != "" {
		info.Author.AvatarURL = embedAvatar(ctx, c.httpClient, u.GetAvatarURL())
	}
	if u := rc.GetCommitter(); u.GetAvatarURL() != "" {
		info.Committer.AvatarURL = embedAvatar(ctx, c.httpClient, u.GetAvatarURL())
	}
	return info, nil
}

// GetIssueInfo retrieves one issue with normalized state and embedded
// reporter avatar.
func (c *GitHubClient) GetIssueInfo(ctx context.Context, owner, repo, issueID string) (*IssueInfo, error) {
	gh, err := c.api()
	if err != nil {
		return nil, err
	}
	number, err := strconv.Atoi(issueID)
	if err != nil {
		return nil, fmt.Errorf("github issue id %q: %w", issueID, ErrNotFound)
	}
	issue, _, err := gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, mapGitHubError(err)
	}
	info := c.normalizeIssue(ctx, issue, true)
	return &info, nil
}

// GetIssueList returns the requested page of issues, excluding pull
// requests (GitHub's issue endpoints conflate the two).
func (c *GitHubClient) GetIssueList(ctx context.Context, owner, repo string, opts ListOptions) ([]IssueInfo, error) {
	gh, err := c.api()
	if err != nil {
		return nil, err
	}
	issues, _, err := gh.Issues.ListByRepo(ctx, owner, repo, &github.IssueListByRepoOptions{
		ListOptions: github.ListOptions{PerPage: opts.PerPage, Page: opts.Page},
	})
	if err != nil {
		return nil, mapGitHubError(err)
	}
	out := make([]IssueInfo, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		out = append(out, c.normalizeIssue(ctx, issue, false))
	}
	return out, nil
}

func (c *GitHubClient) normalizeIssue(ctx context.Context, issue *github.Issue, embedAvatars bool) IssueInfo {
	avatar := issue.GetUser().GetAvatarURL()
	if embedAvatars {
		avatar = embedAvatar(ctx, c.httpClient, avatar)
	}
	name := issue.GetUser().GetLogin()
	if name == "" {
		name = issue.GetUser().GetName()
	}
	return IssueInfo{
		Number:    strconv.Itoa(issue.GetNumber()),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		State:     normalizeState(issue.GetState()),
		URL:       issue.GetHTMLURL(),
		CreatedAt: issue.GetCreatedAt().Time,
		User:      UserInfo{Name: name, AvatarURL: avatar},
	}
}
