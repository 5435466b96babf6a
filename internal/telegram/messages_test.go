package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gitwatch/internal/notify"
)

func TestRenderCommitMessage(t *testing.T) {
	mb := NewMessageBuilder()
	artifact, err := mb.Render(notify.TemplateCommit, notify.CommitPayload{
		Platform:  "github",
		Owner:     "octocat",
		Repo:      "hello-world",
		Branch:    "main",
		SHA:       "0123456789abcdef",
		Title:     "fix: bug",
		Body:      "longer explanation",
		Author:    "alice",
		Date:      "2024-05-01 10:00:00",
		Additions: 10,
		Deletions: 2,
		Total:     12,
	})
	require.NoError(t, err)

	assert.Contains(t, artifact.Text, "octocat/hello-world")
	assert.Contains(t, artifact.Text, "`main`")
	assert.Contains(t, artifact.Text, "0123456", "SHA shortened to seven chars")
	assert.NotContains(t, artifact.Text, "0123456789abcdef")
	assert.Contains(t, artifact.Text, "fix: bug")
	assert.Contains(t, artifact.Text, "longer explanation")
	assert.Contains(t, artifact.Text, "+10/-2")
	assert.Contains(t, artifact.Text, "alice")
}

func TestRenderIssueMessage(t *testing.T) {
	mb := NewMessageBuilder()

	fresh, err := mb.Render(notify.TemplateIssue, notify.IssuePayload{
		Owner: "octocat", Repo: "hello-world",
		Title: "it breaks", State: "Opened", FirstSeen: true,
	})
	require.NoError(t, err)
	assert.Contains(t, fresh.Text, "新议题")
	assert.Contains(t, fresh.Text, "Opened")

	closed, err := mb.Render(notify.TemplateIssue, notify.IssuePayload{
		Owner: "octocat", Repo: "hello-world",
		Title: "it breaks", State: "Closed",
	})
	require.NoError(t, err)
	assert.Contains(t, closed.Text, "议题变更")
	assert.Contains(t, closed.Text, "✅")
}

func TestRenderRejectsMismatchedPayload(t *testing.T) {
	mb := NewMessageBuilder()
	_, err := mb.Render(notify.TemplateCommit, notify.IssuePayload{})
	assert.Error(t, err)
	_, err = mb.Render("nonsense/template", notify.CommitPayload{})
	assert.Error(t, err)
}

func TestEscapeMarkdown(t *testing.T) {
	escaped, err := NewMessageBuilder().RenderMarkdown("fix _this_ *and* [that]`now`")
	require.NoError(t, err)
	assert.Equal(t, "fix \\_this\\_ \\*and\\* \\[that\\]\\`now\\`", escaped)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	long := truncate("aaaaaaaaaaaaaaa", 10)
	assert.Len(t, long, 10)
	assert.Equal(t, "aaaaaaa...", long)
}

func TestShortSHA(t *testing.T) {
	assert.Equal(t, "0123456", shortSHA("0123456789"))
	assert.Equal(t, "abc", shortSHA("abc"))
}
