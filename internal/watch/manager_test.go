package watch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gitwatch/internal/platform"
	"github.com/user/gitwatch/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.Store, *fakeClient) {
	t.Helper()
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := storage.NewStore(db)
	fake := newFakeClient()
	manager := NewManager(store, map[platform.Platform]platform.Client{platform.GitHub: fake})
	return manager, store, fake
}

func TestSubscribePushDiscoversDefaultBranch(t *testing.T) {
	manager, store, fake := newTestManager(t)
	fake.repos["octocat/hello-world"] = &platform.RepoInfo{DefaultBranch: "main"}

	result, err := manager.Subscribe(context.Background(), SubscribeRequest{
		Platform: platform.GitHub,
		Owner:    "octocat",
		Repo:     "hello-world",
		Kinds:    []storage.EventKind{storage.KindPush},
		Dest:     Destination{BotID: "bot1", GroupID: "group1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "main", result.Branch)
	assert.False(t, result.AlreadyWatching)

	repo, err := store.GetRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	require.NotNil(t, repo)
	ev, err := store.GetEvent(repo.ID, string(platform.GitHub))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.True(t, ev.HasKind(storage.KindPush))

	w, err := store.GetWatch(ev.ID, "main")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.False(t, w.CommitSHA.Valid)
}

func TestSubscribeTwiceReportsExistingWatch(t *testing.T) {
	manager, _, _ := newTestManager(t)
	req := SubscribeRequest{
		Platform: platform.GitHub,
		Owner:    "octocat",
		Repo:     "hello-world",
		Branch:   "develop",
		Kinds:    []storage.EventKind{storage.KindPush},
		Dest:     Destination{BotID: "bot1", GroupID: "group1"},
	}

	first, err := manager.Subscribe(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.AlreadyWatching)

	second, err := manager.Subscribe(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.AlreadyWatching)
	assert.Equal(t, "develop", second.Branch)
}

func TestSubscribeUnknownRepoFails(t *testing.T) {
	manager, _, _ := newTestManager(t)
	_, err := manager.Subscribe(context.Background(), SubscribeRequest{
		Platform: platform.GitHub,
		Owner:    "nobody",
		Repo:     "nothing",
		Kinds:    []storage.EventKind{storage.KindPush},
		Dest:     Destination{BotID: "bot1", GroupID: "group1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSubscribeWithoutTokenFails(t *testing.T) {
	manager, _, _ := newTestManager(t)
	_, err := manager.Subscribe(context.Background(), SubscribeRequest{
		Platform: platform.Gitee,
		Owner:    "octocat",
		Repo:     "hello-world",
		Dest:     Destination{BotID: "bot1", GroupID: "group1"},
	})
	assert.Error(t, err)
}

func TestSubscribeIssueSeedsSnapshots(t *testing.T) {
	manager, store, fake := newTestManager(t)
	fake.issues["octocat/hello-world"] = []platform.IssueInfo{
		{Number: "1", Title: "a", State: platform.StateOpened},
		{Number: "2", Title: "b", Body: "details", State: platform.StateClosed},
	}

	_, err := manager.Subscribe(context.Background(), SubscribeRequest{
		Platform: platform.GitHub,
		Owner:    "octocat",
		Repo:     "hello-world",
		Kinds:    []storage.EventKind{storage.KindIssue},
		Dest:     Destination{BotID: "bot1", GroupID: "group1"},
	})
	require.NoError(t, err)

	repo, err := store.GetRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	ev, err := store.GetEvent(repo.ID, string(platform.GitHub))
	require.NoError(t, err)

	snaps, err := store.ListSnapshots(ev.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	// Seeding means the first pass only reports real changes.
	engine := NewEngine(store, map[platform.Platform]platform.Client{platform.GitHub: fake})
	cs, err := engine.RunIssuePass(context.Background(), platform.GitHub)
	require.NoError(t, err)
	assert.True(t, cs.Empty())
}

func TestSubscribeMergesKinds(t *testing.T) {
	manager, store, fake := newTestManager(t)
	fake.repos["octocat/hello-world"] = &platform.RepoInfo{DefaultBranch: "main"}
	dest := Destination{BotID: "bot1", GroupID: "group1"}

	_, err := manager.Subscribe(context.Background(), SubscribeRequest{
		Platform: platform.GitHub, Owner: "octocat", Repo: "hello-world",
		Kinds: []storage.EventKind{storage.KindPush}, Dest: dest,
	})
	require.NoError(t, err)
	_, err = manager.Subscribe(context.Background(), SubscribeRequest{
		Platform: platform.GitHub, Owner: "octocat", Repo: "hello-world",
		Kinds: []storage.EventKind{storage.KindIssue}, Dest: dest,
	})
	require.NoError(t, err)

	repo, err := store.GetRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	ev, err := store.GetEvent(repo.ID, string(platform.GitHub))
	require.NoError(t, err)
	assert.True(t, ev.HasKind(storage.KindPush))
	assert.True(t, ev.HasKind(storage.KindIssue))
}

func TestUnsubscribeBranchKeepsOthers(t *testing.T) {
	manager, store, _ := newTestManager(t)
	dest := Destination{BotID: "bot1", GroupID: "group1"}
	ctx := context.Background()

	for _, branch := range []string{"main", "develop"} {
		_, err := manager.Subscribe(ctx, SubscribeRequest{
			Platform: platform.GitHub, Owner: "octocat", Repo: "hello-world",
			Branch: branch, Kinds: []storage.EventKind{storage.KindPush}, Dest: dest,
		})
		require.NoError(t, err)
	}

	require.NoError(t, manager.Unsubscribe(UnsubscribeRequest{
		Platform: platform.GitHub, Owner: "octocat", Repo: "hello-world",
		Branch: "develop", Kinds: []storage.EventKind{storage.KindPush}, Dest: dest,
	}))

	repo, err := store.GetRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	require.NotNil(t, repo, "repo stays while a watch remains")
	ev, err := store.GetEvent(repo.ID, string(platform.GitHub))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.True(t, ev.HasKind(storage.KindPush), "push kind stays while a watch remains")

	watches, err := store.ListWatches(ev.ID)
	require.NoError(t, err)
	require.Len(t, watches, 1)
	assert.Equal(t, "main", watches[0].Branch)
}

func TestUnsubscribeLastKindRemovesRepo(t *testing.T) {
	manager, store, _ := newTestManager(t)
	dest := Destination{BotID: "bot1", GroupID: "group1"}
	ctx := context.Background()

	_, err := manager.Subscribe(ctx, SubscribeRequest{
		Platform: platform.GitHub, Owner: "octocat", Repo: "hello-world",
		Branch: "main", Kinds: []storage.EventKind{storage.KindPush}, Dest: dest,
	})
	require.NoError(t, err)

	require.NoError(t, manager.Unsubscribe(UnsubscribeRequest{
		Platform: platform.GitHub, Owner: "octocat", Repo: "hello-world",
		Kinds: []storage.EventKind{storage.KindPush}, Dest: dest,
	}))

	repo, err := store.GetRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	assert.Nil(t, repo, "repo row removed with its last subscription")
}

func TestUnsubscribeUnknownRepo(t *testing.T) {
	manager, _, _ := newTestManager(t)
	err := manager.Unsubscribe(UnsubscribeRequest{
		Platform: platform.GitHub, Owner: "octocat", Repo: "nothing",
		Dest: Destination{BotID: "bot1", GroupID: "group1"},
	})
	assert.Error(t, err)
}

func TestListSubscriptions(t *testing.T) {
	manager, _, fake := newTestManager(t)
	dest := Destination{BotID: "bot1", GroupID: "group1"}
	ctx := context.Background()
	fake.issues["octocat/hello-world"] = nil

	_, err := manager.Subscribe(ctx, SubscribeRequest{
		Platform: platform.GitHub, Owner: "octocat", Repo: "hello-world",
		Branch: "main", Kinds: []storage.EventKind{storage.KindPush, storage.KindIssue}, Dest: dest,
	})
	require.NoError(t, err)

	subs, err := manager.ListSubscriptions(dest)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, platform.GitHub, subs[0].Platform)
	assert.Equal(t, "octocat", subs[0].Owner)
	assert.ElementsMatch(t, []storage.EventKind{storage.KindPush, storage.KindIssue}, subs[0].Kinds)
	assert.Equal(t, []string{"main"}, subs[0].Branches)

	other, err := manager.ListSubscriptions(Destination{BotID: "bot1", GroupID: "elsewhere"})
	require.NoError(t, err)
	assert.Empty(t, other)
}
