// Package storage provides database operations and data models.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// EventKind is one subscribable event category.
type EventKind string

const (
	KindPush  EventKind = "push"
	KindIssue EventKind = "issue"
)

// ParseKind validates a user-supplied event kind.
func ParseKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case KindPush, KindIssue:
		return EventKind(s), nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// MarshalKinds serializes an event-kind set. Kinds are deduplicated and
// sorted so the same set always serializes identically.
func MarshalKinds(kinds []EventKind) (string, error) {
	seen := make(map[EventKind]struct{}, len(kinds))
	uniq := make([]string, 0, len(kinds))
	for _, k := range kinds {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, string(k))
	}
	sort.Strings(uniq)
	data, err := json.Marshal(uniq)
	if err != nil {
		return "", fmt.Errorf("marshal event kinds: %w", err)
	}
	return string(data), nil
}

// Repo is one watched repository bound to a bot/destination pair.
type Repo struct {
	ID        int64     `db:"id"`
	Owner     string    `db:"owner"`
	Name      string    `db:"repo"`
	BotID     string    `db:"bot_id"`
	GroupID   string    `db:"group_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Event is a repository's subscription on one platform with its set of
// active event kinds (serialized JSON array, sorted).
type Event struct {
	ID        int64     `db:"id"`
	RepoID    int64     `db:"repo_id"`
	Platform  string    `db:"platform"`
	Kinds     string    `db:"event_kinds"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// KindSet deserializes the event-kind set.
func (e *Event) KindSet() ([]EventKind, error) {
	var raw []string
	if err := json.Unmarshal([]byte(e.Kinds), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event kinds: %w", err)
	}
	kinds := make([]EventKind, len(raw))
	for i, k := range raw {
		kinds[i] = EventKind(k)
	}
	return kinds, nil
}

// HasKind reports whether the event subscribes to kind.
func (e *Event) HasKind(kind EventKind) bool {
	kinds, err := e.KindSet()
	if err != nil {
		return false
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// PushWatch is the persisted last-known commit for one subscribed branch.
// CommitSHA is null until the first successful poll.
type PushWatch struct {
	ID        int64          `db:"id"`
	EventID   int64          `db:"event_id"`
	Branch    string         `db:"branch"`
	CommitSHA sql.NullString `db:"commit_sha"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// IssueSnapshot is the persisted fingerprinted state of one tracked issue.
// TitleHash and BodyHash are content fingerprints, never raw text; BodyHash
// is null for bodyless issues.
type IssueSnapshot struct {
	ID        int64          `db:"id"`
	EventID   int64          `db:"event_id"`
	IssueID   string         `db:"issue_id"`
	TitleHash string         `db:"title_hash"`
	BodyHash  sql.NullString `db:"body_hash"`
	State     string         `db:"state"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}
