package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestRepoLifecycle(t *testing.T) {
	s := newTestStore(t)

	repo, err := s.GetRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	assert.Nil(t, repo, "missing repo should be (nil, nil)")

	repo, err = s.AddRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Equal(t, "octocat", repo.Owner)
	assert.Equal(t, "hello-world", repo.Name)

	found, err := s.GetRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, repo.ID, found.ID)

	// Same repo for another destination is a distinct row.
	other, err := s.AddRepo("bot1", "group2", "octocat", "hello-world")
	require.NoError(t, err)
	assert.NotEqual(t, repo.ID, other.ID)

	repos, err := s.ListReposByDestination("bot1", "group1")
	require.NoError(t, err)
	assert.Len(t, repos, 1)

	require.NoError(t, s.RemoveRepo(repo.ID))
	found, err = s.GetRepoByID(repo.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestMarshalKindsStableOrder(t *testing.T) {
	a, err := MarshalKinds([]EventKind{KindPush, KindIssue})
	require.NoError(t, err)
	b, err := MarshalKinds([]EventKind{KindIssue, KindPush, KindIssue})
	require.NoError(t, err)

	assert.Equal(t, a, b, "same set must serialize identically regardless of order")
	assert.Equal(t, `["issue","push"]`, a)
}

func TestEventKinds(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.AddRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)

	_, err = s.AddEvent(repo.ID, "github", nil)
	assert.Error(t, err, "empty kind set must be rejected")

	ev, err := s.AddEvent(repo.ID, "github", []EventKind{KindPush})
	require.NoError(t, err)
	assert.True(t, ev.HasKind(KindPush))
	assert.False(t, ev.HasKind(KindIssue))

	require.NoError(t, s.UpdateEventKinds(ev.ID, []EventKind{KindPush, KindIssue}))
	ev, err = s.GetEventByID(ev.ID)
	require.NoError(t, err)
	assert.True(t, ev.HasKind(KindIssue))

	kinds, err := ev.KindSet()
	require.NoError(t, err)
	assert.Equal(t, []EventKind{KindIssue, KindPush}, kinds)
}

func TestUpdateEventKindsEmptyDeletesRow(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.AddRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	ev, err := s.AddEvent(repo.ID, "github", []EventKind{KindPush})
	require.NoError(t, err)
	require.NoError(t, s.AddWatch(ev.ID, "main"))

	require.NoError(t, s.UpdateEventKinds(ev.ID, nil))

	gone, err := s.GetEventByID(ev.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	watches, err := s.ListWatches(ev.ID)
	require.NoError(t, err)
	assert.Empty(t, watches, "watches cascade with the event row")
}

func TestCascadeDeletes(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.AddRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	ev, err := s.AddEvent(repo.ID, "gitee", []EventKind{KindPush, KindIssue})
	require.NoError(t, err)
	require.NoError(t, s.AddWatch(ev.ID, "main"))
	require.NoError(t, s.AddSnapshot(ev.ID, "I4XXXX", "hash", nil, "Opened"))

	require.NoError(t, s.RemoveRepo(repo.ID))

	events, err := s.ListEventsByRepo(repo.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
	watches, err := s.ListWatches(ev.ID)
	require.NoError(t, err)
	assert.Empty(t, watches)
	snaps, err := s.ListSnapshots(ev.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestListEventsFiltersByKind(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.AddRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	repo2, err := s.AddRepo("bot1", "group1", "octocat", "spoon-knife")
	require.NoError(t, err)

	_, err = s.AddEvent(repo.ID, "github", []EventKind{KindPush})
	require.NoError(t, err)
	_, err = s.AddEvent(repo2.ID, "github", []EventKind{KindIssue})
	require.NoError(t, err)

	pushes, err := s.ListEvents("github", KindPush)
	require.NoError(t, err)
	require.Len(t, pushes, 1)
	assert.Equal(t, repo.ID, pushes[0].RepoID)

	issues, err := s.ListEvents("github", KindIssue)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, repo2.ID, issues[0].RepoID)

	none, err := s.ListEvents("gitee", KindPush)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPushWatchSHA(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.AddRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	ev, err := s.AddEvent(repo.ID, "github", []EventKind{KindPush})
	require.NoError(t, err)

	require.NoError(t, s.AddWatch(ev.ID, "main"))
	w, err := s.GetWatch(ev.ID, "main")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.False(t, w.CommitSHA.Valid, "new watch has no observed commit")

	require.NoError(t, s.UpdateCommitSHA(ev.ID, "main", "abc123"))
	w, err = s.GetWatch(ev.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, "abc123", w.CommitSHA.String)

	err = s.UpdateCommitSHA(ev.ID, "does-not-exist", "abc123")
	assert.Error(t, err, "updating a missing watch must fail loudly")
}

func TestIssueSnapshots(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.AddRepo("bot1", "group1", "octocat", "hello-world")
	require.NoError(t, err)
	ev, err := s.AddEvent(repo.ID, "gitee", []EventKind{KindIssue})
	require.NoError(t, err)

	require.NoError(t, s.AddSnapshot(ev.ID, "I4ABCD", "title-hash", nil, "Opened"))
	snap, err := s.GetSnapshot(ev.ID, "I4ABCD")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.False(t, snap.BodyHash.Valid, "bodyless issue stores a null body hash")
	assert.Equal(t, "Opened", snap.State)

	body := "body-hash"
	require.NoError(t, s.UpdateSnapshot(ev.ID, "I4ABCD", "new-title-hash", &body, "Closed"))
	snap, err = s.GetSnapshot(ev.ID, "I4ABCD")
	require.NoError(t, err)
	assert.Equal(t, "new-title-hash", snap.TitleHash)
	assert.Equal(t, "body-hash", snap.BodyHash.String)
	assert.Equal(t, "Closed", snap.State)

	err = s.UpdateSnapshot(ev.ID, "I9ZZZZ", "h", nil, "Opened")
	assert.Error(t, err)

	require.NoError(t, s.RemoveSnapshots(ev.ID))
	snap, err = s.GetSnapshot(ev.ID, "I4ABCD")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("push")
	require.NoError(t, err)
	assert.Equal(t, KindPush, k)

	_, err = ParseKind("wiki")
	assert.Error(t, err)
}
