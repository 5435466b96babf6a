package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Store handles subscription-related database operations. Lookup methods
// return (nil, nil) when no row matches.
type Store struct {
	db *Database
}

// NewStore creates a new subscription store.
func NewStore(db *Database) *Store {
	return &Store{db: db}
}

// --- repo ---

// GetRepo returns the watched repository for one destination, if any.
func (s *Store) GetRepo(botID, groupID, owner, name string) (*Repo, error) {
	var repo Repo
	query := `SELECT * FROM repo WHERE bot_id = ? AND group_id = ? AND owner = ? AND repo = ?`
	err := s.db.Get(&repo, query, botID, groupID, owner, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetRepoByID returns a repository row by primary key.
func (s *Store) GetRepoByID(id int64) (*Repo, error) {
	var repo Repo
	err := s.db.Get(&repo, `SELECT * FROM repo WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// AddRepo creates a repository row and returns it.
func (s *Store) AddRepo(botID, groupID, owner, name string) (*Repo, error) {
	query := `INSERT INTO repo (owner, repo, bot_id, group_id) VALUES (?, ?, ?, ?)`
	res, err := s.db.Exec(query, owner, name, botID, groupID)
	if err != nil {
		return nil, fmt.Errorf("insert repo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetRepoByID(id)
}

// RemoveRepo deletes a repository row; events, watches and snapshots
// cascade.
func (s *Store) RemoveRepo(id int64) error {
	_, err := s.db.Exec(`DELETE FROM repo WHERE id = ?`, id)
	return err
}

// ListReposByDestination returns every repository watched for one
// destination.
func (s *Store) ListReposByDestination(botID, groupID string) ([]Repo, error) {
	var repos []Repo
	query := `SELECT * FROM repo WHERE bot_id = ? AND group_id = ? ORDER BY created_at`
	err := s.db.Select(&repos, query, botID, groupID)
	return repos, err
}

// --- event ---

// GetEvent returns the subscription for a repository on one platform.
func (s *Store) GetEvent(repoID int64, platform string) (*Event, error) {
	var ev Event
	query := `SELECT * FROM event WHERE repo_id = ? AND platform = ?`
	err := s.db.Get(&ev, query, repoID, platform)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetEventByID returns an event row by primary key.
func (s *Store) GetEventByID(id int64) (*Event, error) {
	var ev Event
	err := s.db.Get(&ev, `SELECT * FROM event WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// AddEvent creates a subscription with the given kind set.
func (s *Store) AddEvent(repoID int64, platform string, kinds []EventKind) (*Event, error) {
	if len(kinds) == 0 {
		return nil, errors.New("event kind set must not be empty")
	}
	serialized, err := MarshalKinds(kinds)
	if err != nil {
		return nil, err
	}
	res, err := s.db.Exec(`INSERT INTO event (repo_id, platform, event_kinds) VALUES (?, ?, ?)`,
		repoID, platform, serialized)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetEventByID(id)
}

// UpdateEventKinds replaces the event's kind set. An empty set deletes the
// event row (and its watches and snapshots via cascade): a subscription's
// kind set is never empty while the row exists.
func (s *Store) UpdateEventKinds(eventID int64, kinds []EventKind) error {
	if len(kinds) == 0 {
		_, err := s.db.Exec(`DELETE FROM event WHERE id = ?`, eventID)
		return err
	}
	serialized, err := MarshalKinds(kinds)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE event SET event_kinds = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		serialized, eventID)
	return err
}

// ListEvents returns every subscription on a platform with kind active.
func (s *Store) ListEvents(platform string, kind EventKind) ([]Event, error) {
	var events []Event
	err := s.db.Select(&events, `SELECT * FROM event WHERE platform = ?`, platform)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, ev := range events {
		if ev.HasKind(kind) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// ListEventsByRepo returns every subscription for one repository row.
func (s *Store) ListEventsByRepo(repoID int64) ([]Event, error) {
	var events []Event
	err := s.db.Select(&events, `SELECT * FROM event WHERE repo_id = ?`, repoID)
	return events, err
}

// --- push watch ---

// ListWatches returns the push watches of a subscription.
func (s *Store) ListWatches(eventID int64) ([]PushWatch, error) {
	var watches []PushWatch
	err := s.db.Select(&watches, `SELECT * FROM push WHERE event_id = ? ORDER BY branch`, eventID)
	return watches, err
}

// GetWatch returns the push watch for one branch, if any.
func (s *Store) GetWatch(eventID int64, branch string) (*PushWatch, error) {
	var watch PushWatch
	err := s.db.Get(&watch, `SELECT * FROM push WHERE event_id = ? AND branch = ?`, eventID, branch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &watch, nil
}

// AddWatch creates a push watch with no observed commit yet.
func (s *Store) AddWatch(eventID int64, branch string) error {
	_, err := s.db.Exec(`INSERT INTO push (event_id, branch) VALUES (?, ?)`, eventID, branch)
	if err != nil {
		return fmt.Errorf("insert push watch: %w", err)
	}
	return nil
}

// UpdateCommitSHA records the latest observed commit for one branch in a
// single row update.
func (s *Store) UpdateCommitSHA(eventID int64, branch, sha string) error {
	res, err := s.db.Exec(`UPDATE push SET commit_sha = ?, updated_at = CURRENT_TIMESTAMP WHERE event_id = ? AND branch = ?`,
		sha, eventID, branch)
	if err != nil {
		return fmt.Errorf("update commit sha: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("push watch event=%d branch=%q not found", eventID, branch)
	}
	return nil
}

// RemoveWatch deletes the push watch for one branch.
func (s *Store) RemoveWatch(eventID int64, branch string) error {
	_, err := s.db.Exec(`DELETE FROM push WHERE event_id = ? AND branch = ?`, eventID, branch)
	return err
}

// RemoveWatches deletes every push watch of a subscription.
func (s *Store) RemoveWatches(eventID int64) error {
	_, err := s.db.Exec(`DELETE FROM push WHERE event_id = ?`, eventID)
	return err
}

// --- issue snapshot ---

// GetSnapshot returns the snapshot for one issue, if any.
func (s *Store) GetSnapshot(eventID int64, issueID string) (*IssueSnapshot, error) {
	var snap IssueSnapshot
	err := s.db.Get(&snap, `SELECT * FROM issue WHERE event_id = ? AND issue_id = ?`, eventID, issueID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSnapshots returns every issue snapshot of a subscription.
func (s *Store) ListSnapshots(eventID int64) ([]IssueSnapshot, error) {
	var snaps []IssueSnapshot
	err := s.db.Select(&snaps, `SELECT * FROM issue WHERE event_id = ? ORDER BY issue_id`, eventID)
	return snaps, err
}

// AddSnapshot records a newly observed issue. bodyHash is nil for bodyless
// issues.
func (s *Store) AddSnapshot(eventID int64, issueID, titleHash string, bodyHash *string, state string) error {
	_, err := s.db.Exec(`INSERT INTO issue (event_id, issue_id, title_hash, body_hash, state) VALUES (?, ?, ?, ?, ?)`,
		eventID, issueID, titleHash, bodyHash, state)
	if err != nil {
		return fmt.Errorf("insert issue snapshot: %w", err)
	}
	return nil
}

// UpdateSnapshot rewrites all three tracked fields of a snapshot in a
// single row update.
func (s *Store) UpdateSnapshot(eventID int64, issueID, titleHash string, bodyHash *string, state string) error {
	res, err := s.db.Exec(`UPDATE issue SET title_hash = ?, body_hash = ?, state = ?, updated_at = CURRENT_TIMESTAMP WHERE event_id = ? AND issue_id = ?`,
		titleHash, bodyHash, state, eventID, issueID)
	if err != nil {
		return fmt.Errorf("update issue snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("issue snapshot event=%d issue=%q not found", eventID, issueID)
	}
	return nil
}

// RemoveSnapshots deletes every issue snapshot of a subscription.
func (s *Store) RemoveSnapshots(eventID int64) error {
	_, err := s.db.Exec(`DELETE FROM issue WHERE event_id = ?`, eventID)
	return err
}
