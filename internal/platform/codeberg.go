package platform

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

const codebergAPIBase = "https://codeberg.org/api/v1"

// codebergClient implements Client over the Gitea/Forgejo API served by
// codeberg.org. A base URL override points it at self-hosted instances.
type codebergClient struct {
	rest *restClient
}

// NewCodeberg creates a client for codeberg.org, or for the instance at
// baseURL when it is non-empty.
func NewCodeberg(token, proxy, baseURL string) (Client, error) {
	base := baseURL
	if base == "" {
		base = codebergAPIBase
	}
	rest, err := newRESTClient(Codeberg, base, proxy)
	if err != nil {
		return nil, err
	}
	if token != "" {
		rest.header.Set("Authorization", "token "+token)
	}
	return &codebergClient{rest: rest}, nil
}

func (c *codebergClient) GetRepoInfo(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	var w wireRepo
	path := fmt.Sprintf("/repos/%s/%s", owner, repo)
	if err := c.rest.getJSON(ctx, path, nil, &w); err != nil {
		return nil, err
	}
	return w.toRepoInfo(owner, repo), nil
}

func (c *codebergClient) GetCommitInfo(ctx context.Context, owner, repo, branch string) (*CommitInfo, error) {
	// Gitea paginates commit lists with limit, not per_page.
	query := map[string]string{"limit": "1"}
	if branch != "" {
		query["sha"] = branch
	}
	path := fmt.Sprintf("/repos/%s/%s/commits", owner, repo)
	return latestCommit(ctx, c.rest, path, query)
}

func (c *codebergClient) GetIssueInfo(ctx context.Context, owner, repo, issueID string) (*IssueInfo, error) {
	var w wireIssue
	path := fmt.Sprintf("/repos/%s/%s/issues/%s", owner, repo, url.PathEscape(issueID))
	if err := c.rest.getJSON(ctx, path, nil, &w); err != nil {
		return nil, err
	}
	info := w.toIssueInfo(ctx, c.rest.httpClient, true)
	return &info, nil
}

func (c *codebergClient) GetIssueList(ctx context.Context, owner, repo string, opts ListOptions) ([]IssueInfo, error) {
	query := url.Values{}
	if opts.PerPage > 0 {
		query.Set("limit", strconv.Itoa(opts.PerPage))
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	// Gitea serves pull requests from the same endpoint unless filtered.
	query.Set("type", "issues")
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
