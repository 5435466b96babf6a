package telegram

import (
	"fmt"
	"strings"

	"github.com/user/gitwatch/internal/notify"
)

// MessageBuilder renders change payloads into Telegram markdown messages.
// It implements notify.Renderer.
type MessageBuilder struct{}

// NewMessageBuilder creates a new message builder.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{}
}

// Render builds the message for one template/payload pair.
func (m *MessageBuilder) Render(template string, data any) (notify.Artifact, error) {
	switch template {
	case notify.TemplateCommit:
		payload, ok := data.(notify.CommitPayload)
		if !ok {
			return notify.Artifact{}, fmt.Errorf("template %s: unexpected payload %T", template, data)
		}
		return notify.Artifact{Text: m.buildCommitMessage(payload)}, nil
	case notify.TemplateIssue:
		payload, ok := data.(notify.IssuePayload)
		if !ok {
			return notify.Artifact{}, fmt.Errorf("template %s: unexpected payload %T", template, data)
		}
		return notify.Artifact{Text: m.buildIssueMessage(payload)}, nil
	}
	return notify.Artifact{}, fmt.Errorf("unknown template %q", template)
}

// RenderMarkdown escapes raw text for Telegram markdown.
func (m *MessageBuilder) RenderMarkdown(text string) (string, error) {
	return escapeMarkdown(text), nil
}

func (m *MessageBuilder) buildCommitMessage(p notify.CommitPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔨 *%s/%s* 新提交\n\n", p.Owner, p.Repo)
	fmt.Fprintf(&b, "🌿 分支: `%s`\n", p.Branch)
	if p.SHA != "" {
		fmt.Fprintf(&b, "🆔 `%s`\n", shortSHA(p.SHA))
	}
	fmt.Fprintf(&b, "📌 %s\n", p.Title)
	if p.Body != "" {
		fmt.Fprintf(&b, "\n%s\n", p.Body)
	}
	if p.Author != "" {
		fmt.Fprintf(&b, "\n👤 %s", p.Author)
	}
	if p.Total > 0 || p.Additions > 0 || p.Deletions > 0 {
		fmt.Fprintf(&b, "\n📊 +%d/-%d", p.Additions, p.Deletions)
	}
	if p.Date != "" {
		fmt.Fprintf(&b, "\n🕒 %s", p.Date)
	}
	fmt.Fprintf(&b, "\n🏷 %s", p.Platform)
	return b.String()
}

func (m *MessageBuilder) buildIssueMessage(p notify.IssuePayload) string {
	emoji := "📝"
	if p.State == "Closed" {
		emoji = "✅"
	}
	header := "议题变更"
	if p.FirstSeen {
		header = "新议题"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s/%s* %s\n\n", emoji, p.Owner, p.Repo, header)
	fmt.Fprintf(&b, "📌 %s\n", p.Title)
	if p.Body != "" {
		fmt.Fprintf(&b, "\n%s\n", truncate(p.Body, 300))
	}
	fmt.Fprintf(&b, "\n🚦 状态: %s", p.State)
	if p.Reporter != "" {
		fmt.Fprintf(&b, "\n👤 %s", p.Reporter)
	}
	if p.Date != "" {
		fmt.Fprintf(&b, "\n🕒 %s", p.Date)
	}
	fmt.Fprintf(&b, "\n🏷 %s", p.Platform)
	return b.String()
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// escapeMarkdown escapes special Markdown characters to prevent parsing
// errors.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
