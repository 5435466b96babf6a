package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Wire shapes shared by the GitHub-compatible REST APIs (Gitee, GitCode,
// Cnb and the Gitea API behind Codeberg all reuse GitHub's field names).

type wireUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// displayName prefers login over name, matching how reporters are shown.
func (u *wireUser) displayName() string {
	if u == nil {
		return ""
	}
	if u.Login != "" {
		return u.Login
	}
	return u.Name
}

type wireRepo struct {
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

func (w *wireRepo) toRepoInfo(owner, repo string) *RepoInfo {
	return &RepoInfo{
		Owner:         owner,
		Name:          repo,
		FullName:      w.FullName,
		Description:   w.Description,
		DefaultBranch: w.DefaultBranch,
		Private:       w.Private,
	}
}

type wireCommitIdentity struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

type wireCommitDetail struct {
	Message   string             `json:"message"`
	Author    wireCommitIdentity `json:"author"`
	Committer wireCommitIdentity `json:"committer"`
}

type wireStats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Total     int `json:"total"`
}

type wireCommit struct {
	SHA       string           `json:"sha"`
	HTMLURL   string           `json:"html_url"`
	Commit    wireCommitDetail `json:"commit"`
	Author    *wireUser        `json:"author"`
	Committer *wireUser        `json:"committer"`
	Stats     *wireStats       `json:"stats"`
}

// toCommitInfo normalizes a wire commit: stats default to zero when the
// upstream omits them, and author/committer avatars are embedded as data
// URLs via hc.
func (w *wireCommit) toCommitInfo(ctx context.Context, hc *http.Client) *CommitInfo {
	info := &CommitInfo{
		SHA:     w.SHA,
		Message: w.Commit.Message,
		URL:     w.HTMLURL,
		Date:    w.Commit.Committer.Date,
		Author:  UserInfo{Name: w.Commit.Author.Name},
		Committer: UserInfo{
			Name: w.Commit.Committer.Name,
		},
	}
	if info.Date.IsZero() {
		info.Date = w.Commit.Author.Date
	}
	if w.Stats != nil {
		info.Stats = CommitStats(*w.Stats)
	}
	if w.Author != nil && w.Author.AvatarURL != "" {
		info.Author.AvatarURL = embedAvatar(ctx, hc, w.Author.AvatarURL)
	}
	if w.Committer != nil && w.Committer.AvatarURL != "" {
		info.Committer.AvatarURL = embedAvatar(ctx, hc, w.Committer.AvatarURL)
	}
	return info
}

// issueNumber tolerates both numeric (GitHub, Gitea) and string (Gitee)
// issue identifiers.
type issueNumber string

func (n *issueNumber) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = issueNumber(s)
		return nil
	}
	var v json.Number
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = issueNumber(v.String())
	return nil
}

type wireIssue struct {
	Number    issueNumber `json:"number"`
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	State     string      `json:"state"`
	HTMLURL   string      `json:"html_url"`
	CreatedAt time.Time   `json:"created_at"`
	User      *wireUser   `json:"user"`
	// Present when an issue-shaped endpoint leaks pull requests.
	PullRequest json.RawMessage `json:"pull_request"`
}

func (w *wireIssue) isPullRequest() bool {
	return len(w.PullRequest) > 0 && string(w.PullRequest) != "null"
}

// toIssueInfo normalizes a wire issue. The reporter avatar is embedded only
// when embedAvatars is set; list endpoints keep the raw URL to avoid one
// fetch per row.
func (w *wireIssue) toIssueInfo(ctx context.Context, hc *http.Client, embedAvatars bool) IssueInfo {
	avatar := ""
	if w.User != nil {
		avatar = w.User.AvatarURL
		if embedAvatars {
			avatar = embedAvatar(ctx, hc, avatar)
		}
	}
	return IssueInfo{
		Number:    string(w.Number),
		Title:     w.Title,
		Body:      w.Body,
		State:     normalizeState(w.State),
		URL:       w.HTMLURL,
		CreatedAt: w.CreatedAt,
		User: UserInfo{
			Name:      w.User.displayName(),
			AvatarURL: avatar,
		},
	}
}

// latestCommit fetches the newest commit on branch via a GitHub-shaped
// commits list endpoint. A 404/422 means an empty or missing branch and
// yields (nil, nil).
func latestCommit(ctx context.Context, rest *restClient, path string, query map[string]string) (*CommitInfo, error) {
	q := make(map[string][]string, len(query))
	for k, v := range query {
		q[k] = []string{v}
	}
	var list []wireCommit
	if err := rest.getJSON(ctx, path, q, &list); err != nil {
		if IsMissingBranch(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch commits: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0].toCommitInfo(ctx, rest.httpClient), nil
}
