package watch

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/gitwatch/internal/platform"
	"github.com/user/gitwatch/internal/storage"
	"github.com/user/gitwatch/pkg/logger"
)

// Manager implements the subscription operations the command front-end
// consumes. Failures are returned as plain messages suitable for user
// display.
type Manager struct {
	store   *storage.Store
	clients map[platform.Platform]platform.Client
}

// NewManager creates a subscription manager.
func NewManager(store *storage.Store, clients map[platform.Platform]platform.Client) *Manager {
	return &Manager{store: store, clients: clients}
}

// SubscribeRequest describes one add-subscription command.
type SubscribeRequest struct {
	Platform platform.Platform
	Owner    string
	Repo     string
	// Branch is optional; empty defers branch discovery to the repo's
	// default branch.
	Branch string
	// Kinds defaults to {push} when empty.
	Kinds []storage.EventKind
	Dest  Destination
}

// SubscribeResult reports what Subscribe actually did.
type SubscribeResult struct {
	Branch          string
	Kinds           []storage.EventKind
	AlreadyWatching bool
}

func (m *Manager) client(p platform.Platform) (platform.Client, error) {
	c, ok := m.clients[p]
	if !ok {
		return nil, fmt.Errorf("no %s token configured, set one first", p)
	}
	return c, nil
}

// Subscribe creates or extends a subscription: the repo row and event row
// are created on first use, requested kinds are merged into the existing
// set, a push watch is created for the explicit or default branch, and
// issue subscriptions are seeded with the current issue page so the first
// scheduled pass only reports real changes.
func (m *Manager) Subscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error) {
	client, err := m.client(req.Platform)
	if err != nil {
		return nil, err
	}

	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = []storage.EventKind{storage.KindPush}
	}

	repo, err := m.store.GetRepo(req.Dest.BotID, req.Dest.GroupID, req.Owner, req.Repo)
	if err != nil {
		return nil, fmt.Errorf("look up repo: %w", err)
	}
	if repo == nil {
		repo, err = m.store.AddRepo(req.Dest.BotID, req.Dest.GroupID, req.Owner, req.Repo)
		if err != nil {
			return nil, fmt.Errorf("create repo: %w", err)
		}
	}

	ev, err := m.store.GetEvent(repo.ID, string(req.Platform))
	if err != nil {
		return nil, fmt.Errorf("look up subscription: %w", err)
	}
	if ev == nil {
		ev, err = m.store.AddEvent(repo.ID, string(req.Platform), kinds)
		if err != nil {
			return nil, fmt.Errorf("create subscription: %w", err)
		}
	} else {
		existing, err := ev.KindSet()
		if err != nil {
			return nil, err
		}
		if err := m.store.UpdateEventKinds(ev.ID, append(existing, kinds...)); err != nil {
			return nil, fmt.Errorf("update subscription: %w", err)
		}
	}

	result := &SubscribeResult{Kinds: kinds}
	if hasKind(kinds, storage.KindPush) {
		branch := req.Branch
		if branch == "" {
			info, err := client.GetRepoInfo(ctx, req.Owner, req.Repo)
			if err != nil {
				if errors.Is(err, platform.ErrNotFound) {
					return nil, fmt.Errorf("repository %s/%s not found on %s", req.Owner, req.Repo, req.Platform)
				}
				return nil, fmt.Errorf("fetch repo info: %w", err)
			}
			branch = info.DefaultBranch
		}
		result.Branch = branch

		existing, err := m.store.GetWatch(ev.ID, branch)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			result.AlreadyWatching = true
		} else if err := m.store.AddWatch(ev.ID, branch); err != nil {
			return nil, fmt.Errorf("create push watch: %w", err)
		}
	}

	if hasKind(kinds, storage.KindIssue) {
		if err := m.seedIssueSnapshots(ctx, client, ev.ID, req.Owner, req.Repo); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// seedIssueSnapshots records the current issue page without emitting
// changes, so a fresh issue subscription does not replay history.
func (m *Manager) seedIssueSnapshots(ctx context.Context, client platform.Client, eventID int64, owner, repo string) error {
	snaps, err := m.store.ListSnapshots(eventID)
	if err != nil {
		return err
	}
	if len(snaps) > 0 {
		return nil
	}
	issues, err := client.GetIssueList(ctx, owner, repo, platform.ListOptions{PerPage: issuePageSize, Page: 1})
	if err != nil {
		return fmt.Errorf("fetch issues for %s/%s: %w", owner, repo, err)
	}
	for _, issue := range issues {
		err := m.store.AddSnapshot(eventID, issue.Number, Fingerprint(issue.Title), FingerprintPtr(issue.Body), string(issue.State))
		if err != nil {
			return err
		}
	}
	logger.Debug().Str("repo", owner+"/"+repo).Int("count", len(issues)).Msg("Seeded issue snapshots")
	return nil
}

// UnsubscribeRequest describes one remove-subscription command.
type UnsubscribeRequest struct {
	Platform platform.Platform
	Owner    string
	Repo     string
	// Branch limits push removal to one watch; empty removes all watches.
	Branch string
	Kinds  []storage.EventKind
	Dest   Destination
}

// Unsubscribe removes event kinds from a subscription. Removing the last
// kind deletes the subscription and its children; a repo row with no
// remaining subscriptions is deleted too.
func (m *Manager) Unsubscribe(req UnsubscribeRequest) error {
	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = []storage.EventKind{storage.KindPush}
	}

	repo, err := m.store.GetRepo(req.Dest.BotID, req.Dest.GroupID, req.Owner, req.Repo)
	if err != nil {
		return fmt.Errorf("look up repo: %w", err)
	}
	if repo == nil {
		return fmt.Errorf("repository %s/%s is not subscribed", req.Owner, req.Repo)
	}
	ev, err := m.store.GetEvent(repo.ID, string(req.Platform))
	if err != nil {
		return fmt.Errorf("look up subscription: %w", err)
	}
	if ev == nil {
		return fmt.Errorf("no %s subscription for %s/%s", req.Platform, req.Owner, req.Repo)
	}

	if hasKind(kinds, storage.KindPush) {
		if req.Branch != "" {
			watch, err := m.store.GetWatch(ev.ID, req.Branch)
			if err != nil {
				return err
			}
			if watch == nil {
				return fmt.Errorf("branch %s of %s/%s is not watched", req.Branch, req.Owner, req.Repo)
			}
			if err := m.store.RemoveWatch(ev.ID, req.Branch); err != nil {
				return err
			}
		} else if err := m.store.RemoveWatches(ev.ID); err != nil {
			return err
		}
	}
	if hasKind(kinds, storage.KindIssue) {
		if err := m.store.RemoveSnapshots(ev.ID); err != nil {
			return err
		}
	}

	// With an explicit branch the push kind stays active while other
	// watches remain.
	removePush := hasKind(kinds, storage.KindPush)
	if removePush && req.Branch != "" {
		left, err := m.store.ListWatches(ev.ID)
		if err != nil {
			return err
		}
		removePush = len(left) == 0
	}

	existing, err := ev.KindSet()
	if err != nil {
		return err
	}
	var remaining []storage.EventKind
	for _, k := range existing {
		if k == storage.KindPush && removePush {
			continue
		}
		if k == storage.KindIssue && hasKind(kinds, storage.KindIssue) {
			continue
		}
		remaining = append(remaining, k)
	}
	if err := m.store.UpdateEventKinds(ev.ID, remaining); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	others, err := m.store.ListEventsByRepo(repo.ID)
	if err != nil {
		return err
	}
	if len(others) == 0 {
		if err := m.store.RemoveRepo(repo.ID); err != nil {
			return fmt.Errorf("remove repo: %w", err)
		}
	}
	return nil
}

// SubscriptionInfo summarizes one subscription for listing.
type SubscriptionInfo struct {
	Platform platform.Platform
	Owner    string
	Repo     string
	Kinds    []storage.EventKind
	Branches []string
}

// ListSubscriptions returns every subscription of one destination.
func (m *Manager) ListSubscriptions(dest Destination) ([]SubscriptionInfo, error) {
	repos, err := m.store.ListReposByDestination(dest.BotID, dest.GroupID)
	if err != nil {
		return nil, err
	}
	var infos []SubscriptionInfo
	for _, repo := range repos {
		events, err := m.store.ListEventsByRepo(repo.ID)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			kinds, err := ev.KindSet()
			if err != nil {
				return nil, err
			}
			info := SubscriptionInfo{
				Platform: platform.Platform(ev.Platform),
				Owner:    repo.Owner,
				Repo:     repo.Name,
				Kinds:    kinds,
			}
			watches, err := m.store.ListWatches(ev.ID)
			if err != nil {
				return nil, err
			}
			for _, w := range watches {
				info.Branches = append(info.Branches, w.Branch)
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func hasKind(kinds []storage.EventKind, kind storage.EventKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
