// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package sched implements the scheduler: one background goroutine that
// computes the repo with the soonest next_sync across all configured
// repos, sleeps until it is due (capped at 10s so queue_sync requests
// are noticed promptly), and runs its sync, per spec §4.9. It also
// tracks SyncStatus and answers the status queries the control API
// needs.
package sched

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/zextras/mirrord/internal/mirror/config"
	"github.com/zextras/mirrord/internal/mirror/lock"
	"github.com/zextras/mirrord/internal/mirror/model"
)

// maxPoll bounds how long the scheduler sleeps between ticks, so an
// operator-requested queue_sync is never delayed by more than this.
const maxPoll = 10 * time.Second

// Syncer runs one repository's sync; satisfied by sync.Engine.Sync.
type Syncer interface {
	Sync(ctx context.Context, repo config.Repository) error
}

// TimeProvider abstracts time.Now so tests can control the clock, the
// way RealTimeProvider/MockTimeProvider do in the original scheduler.
type TimeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time { return time.Now() }

// Status is the process-wide SyncStatus for one repo, per spec §3.
type Status struct {
	Current    model.RepoStatus
	NextSync   time.Time
	LastSync   time.Time
	LastResult string
	HasResult  bool
}

// Scheduler owns the sync-status map and the background sync loop.
type Scheduler struct {
	general config.General
	locks   *lock.Manager
	syncer  Syncer
	clock   TimeProvider

	mu     sync.Mutex
	status map[string]*Status
	repos  map[string]config.Repository
}

// New creates a Scheduler over the given repos, with a SyncStatus
// entry for each created up front (next_sync = startup + max_sync_delay,
// last_sync = epoch-0, current = waiting), per spec §3's SyncStatus
// lifecycle note.
func New(general config.General, locks *lock.Manager, syncer Syncer, repos []config.Repository) *Scheduler {
	return newWithClock(general, locks, syncer, repos, realTimeProvider{})
}

func newWithClock(general config.General, locks *lock.Manager, syncer Syncer, repos []config.Repository, clock TimeProvider) *Scheduler {
	s := &Scheduler{
		general: general,
		locks:   locks,
		syncer:  syncer,
		clock:   clock,
		status:  make(map[string]*Status, len(repos)),
		repos:   make(map[string]config.Repository, len(repos)),
	}
	now := clock.Now()
	for _, r := range repos {
		s.repos[r.Name] = r
		s.status[r.Name] = &Status{
			Current:  model.RepoWaiting,
			NextSync: now.Add(general.MaxSyncDelayDuration()),
			LastSync: time.Unix(0, 0).UTC(),
		}
	}
	return s
}

// Run blocks the calling goroutine, ticking the scheduler loop until ctx
// is cancelled. Callers typically invoke this via `go scheduler.Run(ctx)`.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		name, next, ok := s.nextRepoToSync()
		if !ok {
			sleep(ctx, maxPoll)
			continue
		}

		now := s.clock.Now()
		if delta := next.Sub(now); delta > 0 {
			sleep(ctx, min(delta, maxPoll))
			continue
		}

		repo := s.repos[name]
		err := s.syncer.Sync(ctx, repo)
		if err != nil {
			log.Printf("sched: failed to synchronize %s: %v", name, err)
			s.syncCompleted(name, err.Error())
		} else {
			log.Printf("sched: %s fully synchronized", name)
			s.syncCompleted(name, "successful")
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// nextRepoToSync returns the name and next_sync time of the repo with
// the soonest next_sync, or (_, _, false) if no repo is configured.
func (s *Scheduler) nextRepoToSync() (string, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var name string
	var next time.Time
	found := false
	for n, st := range s.status {
		if !found || st.NextSync.Before(next) {
			name, next, found = n, st.NextSync, true
		}
	}
	return name, next, found
}

// syncCompleted records the outcome of a just-finished sync: last_sync
// advances to now, next_sync moves to now+max_sync_delay, and
// last_result is set.
func (s *Scheduler) syncCompleted(name, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[name]
	if !ok {
		return
	}
	now := s.clock.Now()
	st.LastSync = now
	st.NextSync = now.Add(s.general.MaxSyncDelayDuration())
	st.LastResult = result
	st.HasResult = true
}

// QueueSync brings name's next_sync forward to no later than
// now+min_sync_delay-(now-last_sync), the rate-limited "sync now"
// request described by spec §4.9. It is a no-op for an unknown repo.
func (s *Scheduler) QueueSync(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[name]
	if !ok {
		return
	}
	now := s.clock.Now()
	candidate := now.Add(s.general.MinSyncDelayDuration()).Add(-now.Sub(st.LastSync))
	if candidate.Before(st.NextSync) {
		st.NextSync = candidate
	}
}

// GetStatus returns a copy of name's current status, with Current freshly
// computed from the lock manager (so a caller never observes a stale
// "waiting" while a sync is actually in flight), or false if name is
// unknown.
func (s *Scheduler) GetStatus(name string) (Status, bool) {
	s.mu.Lock()
	st, ok := s.status[name]
	if !ok {
		s.mu.Unlock()
		return Status{}, false
	}
	copyOf := *st
	s.mu.Unlock()

	if s.locks.IsSyncing(name) {
		copyOf.Current = model.RepoSyncing
	} else {
		copyOf.Current = model.RepoWaiting
	}
	return copyOf, true
}

// Repo looks up the configuration for name, or false if unknown.
func (s *Scheduler) Repo(name string) (config.Repository, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[name]
	return r, ok
}

// CheckWritable reports whether path exists and is a writable
// directory, grounding the `GET /health` endpoint's semantics.
func CheckWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return model.New(model.InvalidData, "expected directory, found file instead: "+path)
	}
	if info.Mode().Perm()&0o200 == 0 {
		return model.New(model.InvalidData, "expected write access, found read-only: "+path)
	}
	return nil
}
