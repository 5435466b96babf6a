// Package watch implements the change-detection engine: polling passes
// that diff upstream state against the subscription store and emit change
// records grouped by destination.
package watch

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/gitwatch/internal/platform"
	"github.com/user/gitwatch/internal/storage"
	"github.com/user/gitwatch/pkg/logger"
)

// issuePageSize bounds how many issues one pass inspects per subscription.
const issuePageSize = 100

// Destination is the (bot, chat group) pair notifications are grouped and
// dispatched to.
type Destination struct {
	BotID   string
	GroupID string
}

// PushChange records one observed branch HEAD change.
type PushChange struct {
	Repo    storage.Repo
	Branch  string
	OldSHA  string
	Commit  platform.CommitInfo
}

// IssueChange records one observed issue change. FirstSeen marks issues
// never recorded before for the subscription.
type IssueChange struct {
	Repo      storage.Repo
	Issue     platform.IssueInfo
	FirstSeen bool
}

// ChangeSet is the outcome of one pass, grouped by destination.
type ChangeSet struct {
	Platform platform.Platform
	Pushes   map[Destination][]PushChange
	Issues   map[Destination][]IssueChange
}

func newChangeSet(p platform.Platform) *ChangeSet {
	return &ChangeSet{
		Platform: p,
		Pushes:   make(map[Destination][]PushChange),
		Issues:   make(map[Destination][]IssueChange),
	}
}

// Empty reports whether the set holds no changes.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Pushes) == 0 && len(cs.Issues) == 0
}

// Destinations returns every destination with at least one change.
func (cs *ChangeSet) Destinations() []Destination {
	seen := make(map[Destination]struct{})
	var dests []Destination
	for d := range cs.Pushes {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			dests = append(dests, d)
		}
	}
	for d := range cs.Issues {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			dests = append(dests, d)
		}
	}
	return dests
}

func (cs *ChangeSet) addPush(d Destination, c PushChange) {
	cs.Pushes[d] = append(cs.Pushes[d], c)
}

func (cs *ChangeSet) addIssue(d Destination, c IssueChange) {
	cs.Issues[d] = append(cs.Issues[d], c)
}

// Engine runs polling passes against the subscription store using one
// client per configured platform.
type Engine struct {
	store   *storage.Store
	clients map[platform.Platform]platform.Client
}

// NewEngine creates an engine. clients holds an entry per platform with a
// configured token.
func NewEngine(store *storage.Store, clients map[platform.Platform]platform.Client) *Engine {
	return &Engine{store: store, clients: clients}
}

// Client returns the client for a platform, if one is configured.
func (e *Engine) Client(p platform.Platform) (platform.Client, bool) {
	c, ok := e.clients[p]
	return c, ok
}

// Store exposes the subscription store for collaborators that share it.
func (e *Engine) Store() *storage.Store {
	return e.store
}

// abortsPass reports whether err must stop the whole pass for the
// platform (auth/rate-limit trouble hits every remaining call too).
func abortsPass(err error) bool {
	return errors.Is(err, platform.ErrRateLimited) || errors.Is(err, platform.ErrUnauthorized)
}

// RunPushPass polls every push subscription on p once. Transient per-watch
// failures are logged and skipped; rate-limit and auth failures abort the
// pass. The returned ChangeSet holds everything detected before an abort,
// with each change's state update already persisted from the same fetch
// that produced it.
func (e *Engine) RunPushPass(ctx context.Context, p platform.Platform) (*ChangeSet, error) {
	client, ok := e.clients[p]
	if !ok {
		return nil, fmt.Errorf("no client configured for platform %s", p)
	}

	cs := newChangeSet(p)
	events, err := e.store.ListEvents(string(p), storage.KindPush)
	if err != nil {
		return cs, fmt.Errorf("list push subscriptions: %w", err)
	}

	for _, ev := range events {
		repo, err := e.store.GetRepoByID(ev.RepoID)
		if err != nil {
			return cs, fmt.Errorf("load repo %d: %w", ev.RepoID, err)
		}
		if repo == nil {
			continue
		}
		dest := Destination{BotID: repo.BotID, GroupID: repo.GroupID}

		watches, err := e.store.ListWatches(ev.ID)
		if err != nil {
			return cs, fmt.Errorf("list watches: %w", err)
		}
		if len(watches) == 0 {
			// Lazy bootstrap: a subscription created without an explicit
			// branch discovers the default branch on first poll.
			watches, err = e.bootstrapWatch(ctx, client, repo, ev.ID)
			if err != nil {
				if abortsPass(err) {
					return cs, err
				}
				logger.Warn().Err(err).
					Str("platform", string(p)).
					Str("repo", repo.Owner+"/"+repo.Name).
					Msg("Failed to bootstrap default branch watch")
				continue
			}
		}

		for _, watch := range watches {
			commit, err := client.GetCommitInfo(ctx, repo.Owner, repo.Name, watch.Branch)
			if err != nil {
				if abortsPass(err) {
					return cs, err
				}
				logger.Warn().Err(err).
					Str("platform", string(p)).
					Str("repo", repo.Owner+"/"+repo.Name).
					Str("branch", watch.Branch).
					Msg("Failed to fetch commit, retrying next cycle")
				continue
			}
			if commit == nil || (watch.CommitSHA.Valid && commit.SHA == watch.CommitSHA.String) {
				logger.Debug().
					Str("platform", string(p)).
					Str("repo", repo.Owner+"/"+repo.Name).
					Str("branch", watch.Branch).
					Msg("No commit change")
				continue
			}

			// Persist before recording the change so a dispatched
			// notification always has its state update on disk. The update
			// uses the same fetch result that produced the change; there is
			// no re-fetch between decision and persistence.
			if err := e.store.UpdateCommitSHA(ev.ID, watch.Branch, commit.SHA); err != nil {
				return cs, fmt.Errorf("persist commit sha: %w", err)
			}
			cs.addPush(dest, PushChange{
				Repo:   *repo,
				Branch: watch.Branch,
				OldSHA: watch.CommitSHA.String,
				Commit: *commit,
			})
			logger.Debug().
				Str("platform", string(p)).
				Str("repo", repo.Owner+"/"+repo.Name).
				Str("branch", watch.Branch).
				Str("sha", commit.SHA).
				Msg("Commit change detected")
		}
	}
	return cs, nil
}

// bootstrapWatch creates the default-branch watch for a subscription that
// has none and returns the reloaded watch list.
func (e *Engine) bootstrapWatch(ctx context.Context, client platform.Client, repo *storage.Repo, eventID int64) ([]storage.PushWatch, error) {
	info, err := client.GetRepoInfo(ctx, repo.Owner, repo.Name)
	if err != nil {
		return nil, fmt.Errorf("fetch repo info: %w", err)
	}
	if info.DefaultBranch == "" {
		return nil, fmt.Errorf("repo %s/%s has no default branch", repo.Owner, repo.Name)
	}
	if err := e.store.AddWatch(eventID, info.DefaultBranch); err != nil {
		return nil, err
	}
	return e.store.ListWatches(eventID)
}

// RunIssuePass polls every issue subscription on p once, comparing the
// first page of upstream issues against stored snapshots by fingerprint.
func (e *Engine) RunIssuePass(ctx context.Context, p platform.Platform) (*ChangeSet, error) {
	client, ok := e.clients[p]
	if !ok {
		return nil, fmt.Errorf("no client configured for platform %s", p)
	}

	cs := newChangeSet(p)
	events, err := e.store.ListEvents(string(p), storage.KindIssue)
	if err != nil {
		return cs, fmt.Errorf("list issue subscriptions: %w", err)
	}

	for _, ev := range events {
		repo, err := e.store.GetRepoByID(ev.RepoID)
		if err != nil {
			return cs, fmt.Errorf("load repo %d: %w", ev.RepoID, err)
		}
		if repo == nil {
			continue
		}
		dest := Destination{BotID: repo.BotID, GroupID: repo.GroupID}

		issues, err := client.GetIssueList(ctx, repo.Owner, repo.Name, platform.ListOptions{PerPage: issuePageSize, Page: 1})
		if err != nil {
			if abortsPass(err) {
				return cs, err
			}
			logger.Warn().Err(err).
				Str("platform", string(p)).
				Str("repo", repo.Owner+"/"+repo.Name).
				Msg("Failed to fetch issue list, retrying next cycle")
			continue
		}

		for _, issue := range issues {
			change, err := e.diffIssue(ev.ID, issue)
			if err != nil {
				return cs, err
			}
			if change == nil {
				continue
			}
			cs.addIssue(dest, IssueChange{Repo: *repo, Issue: issue, FirstSeen: *change})
			logger.Debug().
				Str("platform", string(p)).
				Str("repo", repo.Owner+"/"+repo.Name).
				Str("issue", issue.Number).
				Bool("first_seen", *change).
				Msg("Issue change detected")
		}
	}
	return cs, nil
}

// diffIssue compares one fetched issue against its stored snapshot and
// persists the new values when they differ. It returns nil for no change,
// otherwise a pointer to the first-seen flag.
func (e *Engine) diffIssue(eventID int64, issue platform.IssueInfo) (*bool, error) {
	titleHash := Fingerprint(issue.Title)
	bodyHash := FingerprintPtr(issue.Body)

	snap, err := e.store.GetSnapshot(eventID, issue.Number)
	if err != nil {
		return nil, fmt.Errorf("load issue snapshot: %w", err)
	}
	if snap == nil {
		if err := e.store.AddSnapshot(eventID, issue.Number, titleHash, bodyHash, string(issue.State)); err != nil {
			return nil, fmt.Errorf("persist issue snapshot: %w", err)
		}
		firstSeen := true
		return &firstSeen, nil
	}

	storedBody := ""
	if snap.BodyHash.Valid {
		storedBody = snap.BodyHash.String
	}
	currentBody := ""
	if bodyHash != nil {
		currentBody = *bodyHash
	}
	if snap.State == string(issue.State) && snap.TitleHash == titleHash && storedBody == currentBody {
		return nil, nil
	}

	if err := e.store.UpdateSnapshot(eventID, issue.Number, titleHash, bodyHash, string(issue.State)); err != nil {
		return nil, fmt.Errorf("persist issue snapshot: %w", err)
	}
	firstSeen := false
	return &firstSeen, nil
}
