package schedule

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gitwatch/internal/notify"
	"github.com/user/gitwatch/internal/platform"
	"github.com/user/gitwatch/internal/storage"
	"github.com/user/gitwatch/internal/watch"
)

// staticClient serves a fixed commit for every branch.
type staticClient struct {
	commit *platform.CommitInfo
}

func (c *staticClient) GetRepoInfo(context.Context, string, string) (*platform.RepoInfo, error) {
	return &platform.RepoInfo{DefaultBranch: "main"}, nil
}

func (c *staticClient) GetCommitInfo(context.Context, string, string, string) (*platform.CommitInfo, error) {
	return c.commit, nil
}

func (c *staticClient) GetIssueInfo(context.Context, string, string, string) (*platform.IssueInfo, error) {
	return nil, platform.ErrNotFound
}

func (c *staticClient) GetIssueList(context.Context, string, string, platform.ListOptions) ([]platform.IssueInfo, error) {
	return nil, nil
}

type passthroughRenderer struct{}

func (passthroughRenderer) Render(_ string, data any) (notify.Artifact, error) {
	return notify.Artifact{Text: "rendered"}, nil
}

func (passthroughRenderer) RenderMarkdown(text string) (string, error) { return text, nil }

type recordingSender struct {
	sent int
}

func (s *recordingSender) SendMessage(_ context.Context, _, _ string, artifacts []notify.Artifact) error {
	s.sent += len(artifacts)
	return nil
}

func (s *recordingSender) SendAggregated(_ context.Context, _, _ string, artifacts []notify.Artifact, _ notify.AggregateMeta) error {
	s.sent += len(artifacts)
	return nil
}

func newTestScheduler(t *testing.T, clients map[platform.Platform]platform.Client) (*Scheduler, *storage.Store, *recordingSender) {
	t.Helper()
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := storage.NewStore(db)

	sender := &recordingSender{}
	engine := watch.NewEngine(store, clients)
	grouper := notify.NewGrouper(passthroughRenderer{}, sender)
	return New(engine, grouper), store, sender
}

func TestRegisterRejectsBadCron(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil)
	err := s.Register(platform.GitHub, "not a cron line", true)
	assert.Error(t, err)
}

func TestRegisterSkipsTokenlessPlatform(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil)
	require.NoError(t, s.Register(platform.GitHub, "0 */5 * * * *", false))
	assert.Empty(t, s.registered)
}

func TestRegisterAcceptsSixFieldCron(t *testing.T) {
	s, _, _ := newTestScheduler(t, map[platform.Platform]platform.Client{
		platform.GitHub: &staticClient{},
	})
	require.NoError(t, s.Register(platform.GitHub, "30 */10 * * * *", true))
	assert.Contains(t, s.registered, platform.GitHub)
}

func TestTriggerPassRequiresClient(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil)
	err := s.TriggerPass(context.Background(), platform.Gitee, storage.KindPush)
	assert.Error(t, err)
}

func TestTriggerPassDispatchesChanges(t *testing.T) {
	client := &staticClient{commit: &platform.CommitInfo{SHA: "c1", Message: "m"}}
	s, store, sender := newTestScheduler(t, map[platform.Platform]platform.Client{
		platform.GitHub: client,
	})

	repo, err := store.AddRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	ev, err := store.AddEvent(repo.ID, string(platform.GitHub), []storage.EventKind{storage.KindPush})
	require.NoError(t, err)
	require.NoError(t, store.AddWatch(ev.ID, "main"))

	require.NoError(t, s.TriggerPass(context.Background(), platform.GitHub, storage.KindPush))
	assert.Equal(t, 1, sender.sent)

	// Same HEAD again: nothing new to deliver.
	require.NoError(t, s.TriggerPass(context.Background(), platform.GitHub, storage.KindPush))
	assert.Equal(t, 1, sender.sent)
}

func TestPushNowDeliversStoredState(t *testing.T) {
	client := &staticClient{commit: &platform.CommitInfo{SHA: "c1", Message: "m"}}
	s, store, sender := newTestScheduler(t, map[platform.Platform]platform.Client{
		platform.GitHub: client,
	})
	require.NoError(t, s.Register(platform.GitHub, "0 */5 * * * *", true))

	repo, err := store.AddRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	ev, err := store.AddEvent(repo.ID, string(platform.GitHub), []storage.EventKind{storage.KindPush})
	require.NoError(t, err)
	require.NoError(t, store.AddWatch(ev.ID, "main"))
	require.NoError(t, store.UpdateCommitSHA(ev.ID, "main", "c1"))

	dest := watch.Destination{BotID: "bot1", GroupID: "group1"}
	require.NoError(t, s.PushNow(context.Background(), dest))
	assert.Equal(t, 1, sender.sent, "replay delivers current state even without a delta")

	// And it can be repeated: replay writes no state.
	require.NoError(t, s.PushNow(context.Background(), dest))
	assert.Equal(t, 2, sender.sent)
}
