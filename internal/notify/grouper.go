// Package notify batches change records by destination, renders them into
// presentation artifacts and hands them to the delivery collaborator.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/gitwatch/internal/watch"
	"github.com/user/gitwatch/pkg/logger"
)

// aggregateThreshold is the artifact count above which one destination's
// batch is merged into a single aggregated message.
const aggregateThreshold = 3

// Template names handed to the rendering collaborator.
const (
	TemplateCommit = "commit/index"
	TemplateIssue  = "issue/index"
)

// Artifact is one rendered presentation unit ready for delivery.
type Artifact struct {
	Text string
}

// Renderer is the rendering collaborator consumed by the grouper.
type Renderer interface {
	Render(template string, data any) (Artifact, error)
	RenderMarkdown(text string) (string, error)
}

// AggregateMeta describes an aggregated dispatch.
type AggregateMeta struct {
	Source  string
	Summary string
}

// Sender is the delivery collaborator consumed by the grouper.
type Sender interface {
	SendMessage(ctx context.Context, botID, groupID string, artifacts []Artifact) error
	SendAggregated(ctx context.Context, botID, groupID string, artifacts []Artifact, meta AggregateMeta) error
}

// CommitPayload is the render payload for commit changes.
type CommitPayload struct {
	Platform  string
	Owner     string
	Repo      string
	Branch    string
	SHA       string
	Title     string
	Body      string
	Author    string
	AvatarURL string
	Date      string
	Additions int
	Deletions int
	Total     int
}

// IssuePayload is the render payload for issue changes.
type IssuePayload struct {
	Platform  string
	Owner     string
	Repo      string
	Title     string
	Body      string
	Reporter  string
	AvatarURL string
	State     string
	Date      string
	FirstSeen bool
}

// Grouper converts grouped change records into artifacts and dispatches
// them per destination.
type Grouper struct {
	renderer Renderer
	sender   Sender
}

// NewGrouper creates a grouper over the given collaborators.
func NewGrouper(renderer Renderer, sender Sender) *Grouper {
	return &Grouper{renderer: renderer, sender: sender}
}

// Dispatch renders and delivers every change in cs. Renders within one
// destination run concurrently; a single render failure drops only that
// artifact. Destinations with zero surviving artifacts are skipped.
func (g *Grouper) Dispatch(ctx context.Context, cs *watch.ChangeSet) {
	if cs == nil || cs.Empty() {
		return
	}
	for _, dest := range cs.Destinations() {
		artifacts := g.renderDestination(ctx, cs, dest)
		if len(artifacts) == 0 {
			continue
		}
		if err := g.send(ctx, dest, artifacts); err != nil {
			logger.Error().Err(err).
				Str("bot", dest.BotID).
				Str("group", dest.GroupID).
				Msg("Failed to dispatch notifications")
		}
	}
}

// renderDestination renders all of one destination's changes concurrently,
// keeping emission order in the result and dropping failed renders.
func (g *Grouper) renderDestination(ctx context.Context, cs *watch.ChangeSet, dest watch.Destination) []Artifact {
	pushes := cs.Pushes[dest]
	issues := cs.Issues[dest]

	results := make([]*Artifact, len(pushes)+len(issues))
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)

	for i := range pushes {
		i := i
		eg.Go(func() error {
			artifact, err := g.renderPush(egCtx, string(cs.Platform), pushes[i])
			if err != nil {
				logger.Warn().Err(err).
					Str("repo", pushes[i].Repo.Owner+"/"+pushes[i].Repo.Name).
					Str("branch", pushes[i].Branch).
					Msg("Render failed, dropping artifact")
				return nil
			}
			mu.Lock()
			results[i] = &artifact
			mu.Unlock()
			return nil
		})
	}
	for i := range issues {
		i := i
		eg.Go(func() error {
			artifact, err := g.renderIssue(egCtx, string(cs.Platform), issues[i])
			if err != nil {
				logger.Warn().Err(err).
					Str("repo", issues[i].Repo.Owner+"/"+issues[i].Repo.Name).
					Str("issue", issues[i].Issue.Number).
					Msg("Render failed, dropping artifact")
				return nil
			}
			mu.Lock()
			results[len(pushes)+i] = &artifact
			mu.Unlock()
			return nil
		})
	}
	eg.Wait()

	artifacts := make([]Artifact, 0, len(results))
	for _, a := range results {
		if a != nil {
			artifacts = append(artifacts, *a)
		}
	}
	return artifacts
}

func (g *Grouper) renderPush(_ context.Context, platformName string, change watch.PushChange) (Artifact, error) {
	title, body := splitCommitMessage(change.Commit.Message)
	renderedTitle, err := g.renderer.RenderMarkdown(title)
	if err != nil {
		return Artifact{}, fmt.Errorf("render commit title: %w", err)
	}
	renderedBody, err := g.renderer.RenderMarkdown(body)
	if err != nil {
		return Artifact{}, fmt.Errorf("render commit body: %w", err)
	}
	return g.renderer.Render(TemplateCommit, CommitPayload{
		Platform:  platformName,
		Owner:     change.Repo.Owner,
		Repo:      change.Repo.Name,
		Branch:    change.Branch,
		SHA:       change.Commit.SHA,
		Title:     renderedTitle,
		Body:      renderedBody,
		Author:    change.Commit.Author.Name,
		AvatarURL: change.Commit.Author.AvatarURL,
		Date:      formatDate(change.Commit.Date),
		Additions: change.Commit.Stats.Additions,
		Deletions: change.Commit.Stats.Deletions,
		Total:     change.Commit.Stats.Total,
	})
}

func (g *Grouper) renderIssue(_ context.Context, platformName string, change watch.IssueChange) (Artifact, error) {
	renderedTitle, err := g.renderer.RenderMarkdown(change.Issue.Title)
	if err != nil {
		return Artifact{}, fmt.Errorf("render issue title: %w", err)
	}
	renderedBody := ""
	if change.Issue.Body != "" {
		renderedBody, err = g.renderer.RenderMarkdown(change.Issue.Body)
		if err != nil {
			return Artifact{}, fmt.Errorf("render issue body: %w", err)
		}
	}
	return g.renderer.Render(TemplateIssue, IssuePayload{
		Platform:  platformName,
		Owner:     change.Repo.Owner,
		Repo:      change.Repo.Name,
		Title:     renderedTitle,
		Body:      renderedBody,
		Reporter:  change.Issue.User.Name,
		AvatarURL: change.Issue.User.AvatarURL,
		State:     string(change.Issue.State),
		Date:      formatDate(change.Issue.CreatedAt),
		FirstSeen: change.FirstSeen,
	})
}

func (g *Grouper) send(ctx context.Context, dest watch.Destination, artifacts []Artifact) error {
	if len(artifacts) > aggregateThreshold {
		meta := AggregateMeta{
			Source:  "Repository update digest",
			Summary: fmt.Sprintf("%d repository updates", len(artifacts)),
		}
		return g.sender.SendAggregated(ctx, dest.BotID, dest.GroupID, artifacts, meta)
	}
	return g.sender.SendMessage(ctx, dest.BotID, dest.GroupID, artifacts)
}

// splitCommitMessage separates a commit message into its first line and
// the remainder.
func splitCommitMessage(message string) (title, body string) {
	parts := strings.SplitN(message, "\n", 2)
	title = parts[0]
	if len(parts) > 1 {
		body = strings.TrimLeft(parts[1], "\n")
	}
	return title, body
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
