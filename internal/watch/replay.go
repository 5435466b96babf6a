package watch

import (
	"context"
	"fmt"

	"github.com/user/gitwatch/internal/platform"
	"github.com/user/gitwatch/internal/storage"
	"github.com/user/gitwatch/pkg/logger"
)

// Replay builds a ChangeSet from the currently stored state of one
// destination on one platform: every push watch's live HEAD and every
// tracked issue, regardless of whether anything changed. It performs no
// state writes, so it never suppresses a later scheduled delta. This backs
// the on-demand "push now" command.
func (e *Engine) Replay(ctx context.Context, p platform.Platform, dest Destination) (*ChangeSet, error) {
	client, ok := e.clients[p]
	if !ok {
		return nil, fmt.Errorf("no client configured for platform %s", p)
	}

	cs := newChangeSet(p)
	repos, err := e.store.ListReposByDestination(dest.BotID, dest.GroupID)
	if err != nil {
		return cs, fmt.Errorf("list repos: %w", err)
	}

	for i := range repos {
		repo := repos[i]
		ev, err := e.store.GetEvent(repo.ID, string(p))
		if err != nil {
			return cs, fmt.Errorf("load event: %w", err)
		}
		if ev == nil {
			continue
		}

		if ev.HasKind(storage.KindPush) {
			if err := e.replayPushes(ctx, client, cs, dest, repo, ev.ID); err != nil {
				return cs, err
			}
		}
		if ev.HasKind(storage.KindIssue) {
			if err := e.replayIssues(ctx, client, cs, dest, repo, ev.ID); err != nil {
				return cs, err
			}
		}
	}
	return cs, nil
}

func (e *Engine) replayPushes(ctx context.Context, client platform.Client, cs *ChangeSet, dest Destination, repo storage.Repo, eventID int64) error {
	watches, err := e.store.ListWatches(eventID)
	if err != nil {
		return fmt.Errorf("list watches: %w", err)
	}
	for _, watch := range watches {
		commit, err := client.GetCommitInfo(ctx, repo.Owner, repo.Name, watch.Branch)
		if err != nil {
			if abortsPass(err) {
				return err
			}
			logger.Warn().Err(err).
				Str("repo", repo.Owner+"/"+repo.Name).
				Str("branch", watch.Branch).
				Msg("Replay: failed to fetch commit")
			continue
		}
		if commit == nil {
			continue
		}
		cs.addPush(dest, PushChange{
			Repo:   repo,
			Branch: watch.Branch,
			OldSHA: watch.CommitSHA.String,
			Commit: *commit,
		})
	}
	return nil
}

func (e *Engine) replayIssues(ctx context.Context, client platform.Client, cs *ChangeSet, dest Destination, repo storage.Repo, eventID int64) error {
	snaps, err := e.store.ListSnapshots(eventID)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	for _, snap := range snaps {
		issue, err := client.GetIssueInfo(ctx, repo.Owner, repo.Name, snap.IssueID)
		if err != nil {
			if abortsPass(err) {
				return err
			}
			logger.Warn().Err(err).
				Str("repo", repo.Owner+"/"+repo.Name).
				Str("issue", snap.IssueID).
				Msg("Replay: failed to fetch issue")
			continue
		}
		cs.addIssue(dest, IssueChange{Repo: repo, Issue: *issue})
	}
	return nil
}
