package platform

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// cnbClient implements Client over the cnb.cool API, which mirrors the
// GitHub REST shapes with bearer-token auth.
type cnbClient struct {
	rest *restClient
}

// NewCnb creates a client for cnb.cool.
func NewCnb(token, proxy string) (Client, error) {
	rest, err := newRESTClient(Cnb, "https://api.cnb.cool", proxy)
	if err != nil {
		return nil, err
	}
	if token != "" {
		rest.header.Set("Authorization", "Bearer "+token)
	}
	return &cnbClient{rest: rest}, nil
}

func (c *cnbClient) GetRepoInfo(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	var w wireRepo
	path := fmt.Sprintf("/repos/%s/%s", owner, repo)
	if err := c.rest.getJSON(ctx, path, nil, &w); err != nil {
		return nil, err
	}
	return w.toRepoInfo(owner, repo), nil
}

func (c *cnbClient) GetCommitInfo(ctx context.Context, owner, repo, branch string) (*CommitInfo, error) {
	query := map[string]string{"per_page": "1"}
	if branch != "" {
		query["sha"] = branch
	}
	path := fmt.Sprintf("/repos/%s/%s/commits", owner, repo)
	return latestCommit(ctx, c.rest, path, query)
}

func (c *cnbClient) GetIssueInfo(ctx context.Context, owner, repo, issueID string) (*IssueInfo, error) {
	var w wireIssue
	path := fmt.Sprintf("/repos/%s/%s/issues/%s", owner, repo, url.PathEscape(issueID))
	if err := c.rest.getJSON(ctx, path, nil, &w); err != nil {
		return nil, err
	}
	info := w.toIssueInfo(ctx, c.rest.httpClient, true)
	return &info, nil
}

func (c *cnbClient) GetIssueList(ctx context.Context, owner, repo string, opts ListOptions) ([]IssueInfo, error) {
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
