// Package platform provides uniform clients over Git hosting APIs.
//
// Each supported platform implements the Client interface; upstream JSON is
// normalized into the canonical shapes below so the rest of the system never
// sees per-platform field spellings.
package platform

import (
	"context"
	"fmt"
	"time"
)

// Platform identifies a Git hosting platform.
type Platform string

const (
	GitHub   Platform = "github"
	Gitee    Platform = "gitee"
	GitCode  Platform = "gitcode"
	Cnb      Platform = "cnb"
	Codeberg Platform = "codeberg"
)

// All returns every supported platform.
func All() []Platform {
	return []Platform{GitHub, Gitee, GitCode, Cnb, Codeberg}
}

// Parse maps a user-supplied platform name to a Platform.
func Parse(s string) (Platform, error) {
	switch Platform(s) {
	case GitHub, Gitee, GitCode, Cnb, Codeberg:
		return Platform(s), nil
	case "":
		return GitHub, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// ListOptions controls pagination for list endpoints.
type ListOptions struct {
	PerPage int
	Page    int
}

// Client is the uniform contract over one hosting platform.
//
// GetCommitInfo returns (nil, nil) when the platform reports an empty or
// missing branch; that is a recoverable "no data yet" condition, not an
// error.
type Client interface {
	GetRepoInfo(ctx context.Context, owner, repo string) (*RepoInfo, error)
	GetCommitInfo(ctx context.Context, owner, repo, branch string) (*CommitInfo, error)
	GetIssueInfo(ctx context.Context, owner, repo, issueID string) (*IssueInfo, error)
	GetIssueList(ctx context.Context, owner, repo string, opts ListOptions) ([]IssueInfo, error)
}

// RepoInfo contains basic repository information.
type RepoInfo struct {
	Owner         string
	Name          string
	FullName      string
	Description   string
	DefaultBranch string
	Private       bool
}

// UserInfo is a commit author/committer or issue reporter. AvatarURL is a
// base64 data URL when avatar embedding succeeded, otherwise the upstream
// URL.
type UserInfo struct {
	Name      string
	AvatarURL string
}

// CommitStats are change statistics, zero-valued when the upstream omits
// them.
type CommitStats struct {
	Additions int
	Deletions int
	Total     int
}

// CommitInfo is the most recent commit on a branch.
type CommitInfo struct {
	SHA       string
	Message   string
	Author    UserInfo
	Committer UserInfo
	Date      time.Time
	Stats     CommitStats
	URL       string
}

// IssueState is the fixed state vocabulary issues are normalized to.
type IssueState string

const (
	StateOpened IssueState = "Opened"
	StateClosed IssueState = "Closed"
)

// normalizeState maps the upstream state spelling to the fixed vocabulary.
// Unknown spellings pass through unchanged.
func normalizeState(s string) IssueState {
	switch s {
	case "open", "opened":
		return StateOpened
	case "closed":
		return StateClosed
	}
	return IssueState(s)
}

// IssueInfo is a normalized issue. Number is a string because some
// platforms use non-numeric issue identifiers. An empty Body means the
// issue has no body.
type IssueInfo struct {
	Number    string
	Title     string
	Body      string
	State     IssueState
	User      UserInfo
	CreatedAt time.Time
	URL       string
}
