package watch

import (
	"sync"

	"github.com/user/gitwatch/internal/platform"
	"github.com/user/gitwatch/internal/storage"
)

// PassKey identifies one (platform, kind) polling pass.
type PassKey struct {
	Platform platform.Platform
	Kind     storage.EventKind
}

// PassLocks serializes passes per (platform, kind): an overlapping trigger
// (slow scheduled pass plus an on-demand run) waits instead of
// double-fetching and double-notifying.
type PassLocks struct {
	mu    sync.Mutex
	locks map[PassKey]*sync.Mutex
}

// NewPassLocks creates an empty lock table.
func NewPassLocks() *PassLocks {
	return &PassLocks{locks: make(map[PassKey]*sync.Mutex)}
}

// Lock acquires the exclusivity token for key and returns its release
// function.
func (l *PassLocks) Lock(key PassKey) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
