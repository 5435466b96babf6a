package platform

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// giteeClient implements Client over the Gitee-style v5 REST API. GitCode
// exposes the same API surface, so both platforms share this
// implementation with their own base URL and auth wiring.
type giteeClient struct {
	rest *restClient
}

// NewGitee creates a client for gitee.com. Gitee authenticates with an
// access_token query parameter.
func NewGitee(token, proxy string) (Client, error) {
	rest, err := newRESTClient(Gitee, "https://gitee.com/api/v5", proxy)
	if err != nil {
		return nil, err
	}
	if token != "" {
		rest.query.Set("access_token", token)
	}
	return &giteeClient{rest: rest}, nil
}

// NewGitCode creates a client for gitcode.com, which serves a Gitee v5
// compatible API but takes the token as a bearer header.
func NewGitCode(token, proxy string) (Client, error) {
	rest, err := newRESTClient(GitCode, "https://api.gitcode.com/api/v5", proxy)
	if err != nil {
		return nil, err
	}
	if token != "" {
		rest.header.Set("Authorization", "Bearer "+token)
	}
	return &giteeClient{rest: rest}, nil
}

func (c *giteeClient) GetRepoInfo(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	var w wireRepo
	path := fmt.Sprintf("/repos/%s/%s", owner, repo)
	if err := c.rest.getJSON(ctx, path, nil, &w); err != nil {
		return nil, err
	}
	return w.toRepoInfo(owner, repo), nil
}

func (c *giteeClient) GetCommitInfo(ctx context.Context, owner, repo, branch string) (*CommitInfo, error) {
	query := map[string]string{"per_page": "1"}
	if branch != "" {
		query["sha"] = branch
	}
	path := fmt.Sprintf("/repos/%s/%s/commits", owner, repo)
	return latestCommit(ctx, c.rest, path, query)
}

func (c *giteeClient) GetIssueInfo(ctx context.Context, owner, repo, issueID string) (*IssueInfo, error) {
	var w wireIssue
	path := fmt.Sprintf("/repos/%s/%s/issues/%s", owner, repo, url.PathEscape(issueID))
	if err := c.rest.getJSON(ctx, path, nil, &w); err != nil {
		return nil, err
	}
	// Gitee addresses issues by their string ident, not a number field.
	info := w.toIssueInfo(ctx, c.rest.httpClient, true)
	if info.Number == "" {
		info.Number = issueID
	}
	return &info, nil
}

func (c *giteeClient) GetIssueList(ctx context.Context, owner, repo string, opts ListOptions) ([]IssueInfo, error) {
	query := url.Values{}
	if opts.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	var list []wireIssue
	path := fmt.Sprintf("/repos/%s/%s/issues", owner, repo)
	if err := c.rest.getJSON(ctx, path, query, &list); err != nil {
		return nil, err
	}
	out := make([]IssueInfo, 0, len(list))
	for i := range list {
		if list[i].isPullRequest() {
			continue
		}
		out = append(out, list[i].toIssueInfo(ctx, c.rest.httpClient, false))
	}
	return out, nil
}
