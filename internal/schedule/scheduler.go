// Package schedule drives the change-detection engine: cron-style triggers
// per (platform, kind) plus the synchronous on-demand replay.
package schedule

import (
	"context"
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"

	"github.com/user/gitwatch/internal/notify"
	"github.com/user/gitwatch/internal/platform"
	"github.com/user/gitwatch/internal/storage"
	"github.com/user/gitwatch/internal/watch"
	"github.com/user/gitwatch/pkg/logger"
)

// Scheduler owns the cron runner and the per-pass exclusivity locks.
type Scheduler struct {
	cron    *cron.Cron
	engine  *watch.Engine
	grouper *notify.Grouper
	locks   *watch.PassLocks

	// registered tracks the platforms with an active schedule, i.e. those
	// with a configured token.
	registered map[platform.Platform]struct{}
}

// New creates a scheduler. Cron expressions use six fields (with seconds),
// matching the configuration format.
func New(engine *watch.Engine, grouper *notify.Grouper) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		engine:     engine,
		grouper:    grouper,
		locks:      watch.NewPassLocks(),
		registered: make(map[platform.Platform]struct{}),
	}
}

// Register schedules the push and issue passes for one platform. A
// platform without a token is skipped with a warning and never makes a
// network call.
func (s *Scheduler) Register(p platform.Platform, cronExpr string, hasToken bool) error {
	if !hasToken {
		logger.Warn().Str("platform", string(p)).Msg("No token configured, skipping schedule")
		return nil
	}
	for _, kind := range []storage.EventKind{storage.KindPush, storage.KindIssue} {
		kind := kind
		_, err := s.cron.AddFunc(cronExpr, func() {
			s.runPass(p, kind)
		})
		if err != nil {
			return fmt.Errorf("schedule %s/%s (%q): %w", p, kind, cronExpr, err)
		}
	}
	s.registered[p] = struct{}{}
	logger.Info().Str("platform", string(p)).Str("cron", cronExpr).Msg("Scheduled polling passes")
	return nil
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info().Int("platforms", len(s.registered)).Msg("Scheduler started")
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info().Msg("Scheduler stopped")
}

// runPass executes one scheduled pass under its exclusivity lock and
// dispatches whatever it detected, including the partial results of an
// aborted pass.
func (s *Scheduler) runPass(p platform.Platform, kind storage.EventKind) {
	unlock := s.locks.Lock(watch.PassKey{Platform: p, Kind: kind})
	defer unlock()

	ctx := context.Background()
	var (
		cs  *watch.ChangeSet
		err error
	)
	switch kind {
	case storage.KindPush:
		cs, err = s.engine.RunPushPass(ctx, p)
	case storage.KindIssue:
		cs, err = s.engine.RunIssuePass(ctx, p)
	default:
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("platform", string(p)).Str("kind", string(kind)).Msg("Pass failed")
	}
	s.grouper.Dispatch(ctx, cs)
}

// TriggerPass runs one pass immediately, serialized against the scheduled
// trigger for the same (platform, kind).
func (s *Scheduler) TriggerPass(ctx context.Context, p platform.Platform, kind storage.EventKind) error {
	if _, ok := s.engine.Client(p); !ok {
		return fmt.Errorf("no %s token configured", p)
	}
	unlock := s.locks.Lock(watch.PassKey{Platform: p, Kind: kind})
	defer unlock()

	var (
		cs  *watch.ChangeSet
		err error
	)
	switch kind {
	case storage.KindPush:
		cs, err = s.engine.RunPushPass(ctx, p)
	case storage.KindIssue:
		cs, err = s.engine.RunIssuePass(ctx, p)
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}
	s.grouper.Dispatch(ctx, cs)
	return err
}

// PushNow synchronously replays the currently stored state for one
// destination across every platform with a configured token. Unlike the
// scheduled passes it dispatches current state, not deltas.
func (s *Scheduler) PushNow(ctx context.Context, dest watch.Destination) error {
	platforms := make([]platform.Platform, 0, len(s.registered))
	for p := range s.registered {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	var firstErr error
	for _, p := range platforms {
		// Serialize with the scheduled passes touching the same platform.
		unlockPush := s.locks.Lock(watch.PassKey{Platform: p, Kind: storage.KindPush})
		unlockIssue := s.locks.Lock(watch.PassKey{Platform: p, Kind: storage.KindIssue})
		cs, err := s.engine.Replay(ctx, p, dest)
		unlockIssue()
		unlockPush()
		if err != nil {
			logger.Error().Err(err).Str("platform", string(p)).Msg("Replay failed")
			if firstErr == nil {
				firstErr = err
			}
		}
		s.grouper.Dispatch(ctx, cs)
	}
	return firstErr
}
