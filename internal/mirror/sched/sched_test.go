// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zextras/mirrord/internal/mirror/config"
	"github.com/zextras/mirrord/internal/mirror/lock"
)

// fakeClock is a manually-advanced TimeProvider for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSyncer records Sync calls and returns a canned result.
type fakeSyncer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSyncer) Sync(ctx context.Context, repo config.Repository) error {
	f.mu.Lock()
	f.calls = append(f.calls, repo.Name)
	f.mu.Unlock()
	return f.err
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testGeneral() config.General {
	return config.General{MinSyncDelay: 10, MaxSyncDelay: 30}
}

func TestInitialStatusIsWaitingWithMaxDelayNextSync(t *testing.T) {
	start := time.Unix(1000, 0).UTC()
	clock := newFakeClock(start)
	general := testGeneral()
	s := newWithClock(general, lock.NewManager(), &fakeSyncer{}, []config.Repository{{Name: "repoA"}}, clock)

	status, ok := s.GetStatus("repoA")
	if !ok {
		t.Fatal("expected repoA status to exist")
	}
	if status.Current != 0 {
		t.Errorf("expected waiting, got %v", status.Current)
	}
	wantNext := start.Add(general.MaxSyncDelayDuration())
	if !status.NextSync.Equal(wantNext) {
		t.Errorf("NextSync = %v, want %v", status.NextSync, wantNext)
	}
	if !status.LastSync.Equal(time.Unix(0, 0).UTC()) {
		t.Errorf("LastSync = %v, want epoch", status.LastSync)
	}
}

func TestQueueSyncSetsRateLimitedFloor(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	clock := newFakeClock(start)
	general := testGeneral()
	s := newWithClock(general, lock.NewManager(), &fakeSyncer{}, []config.Repository{{Name: "repoA"}}, clock)

	s.QueueSync("repoA")
	status, _ := s.GetStatus("repoA")
	wantNext := start.Add(general.MinSyncDelayDuration())
	if !status.NextSync.Equal(wantNext) {
		t.Errorf("NextSync after queue_sync = %v, want %v", status.NextSync, wantNext)
	}

	clock.Advance(60 * time.Second)
	s.syncCompleted("repoA", "successful")
	status, _ = s.GetStatus("repoA")
	wantNext = clock.Now().Add(general.MaxSyncDelayDuration())
	if !status.NextSync.Equal(wantNext) {
		t.Errorf("NextSync after sync_completed = %v, want %v", status.NextSync, wantNext)
	}

	s.QueueSync("repoA")
	status, _ = s.GetStatus("repoA")
	wantNext = clock.Now().Add(general.MinSyncDelayDuration())
	if !status.NextSync.Equal(wantNext) {
		t.Errorf("NextSync after second queue_sync = %v, want %v", status.NextSync, wantNext)
	}
}

func TestNextRepoToSyncPicksSoonest(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	clock := newFakeClock(start)
	s := newWithClock(testGeneral(), lock.NewManager(), &fakeSyncer{}, []config.Repository{{Name: "repoA"}, {Name: "repoB"}}, clock)

	s.QueueSync("repoB")
	name, _, ok := s.nextRepoToSync()
	if !ok || name != "repoB" {
		t.Fatalf("nextRepoToSync = %q, %v, want repoB", name, ok)
	}
}

func TestRunSyncsDueRepoAndReschedules(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	clock := newFakeClock(start)
	general := config.General{MinSyncDelay: 10, MaxSyncDelay: 30}
	syncer := &fakeSyncer{}
	s := newWithClock(general, lock.NewManager(), syncer, []config.Repository{{Name: "repoA"}}, clock)
	// Force repoA's next_sync into the past so Run syncs it immediately
	// rather than waiting out a real scheduling interval.
	s.mu.Lock()
	s.status["repoA"].NextSync = clock.Now().Add(-time.Second)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for syncer.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if syncer.callCount() == 0 {
		t.Fatal("expected Run to have synced repoA at least once")
	}
	status, _ := s.GetStatus("repoA")
	if status.LastResult != "successful" {
		t.Errorf("LastResult = %q, want successful", status.LastResult)
	}
	if want := clock.Now().Add(general.MaxSyncDelayDuration()); !status.NextSync.Equal(want) {
		t.Errorf("NextSync = %v, want %v", status.NextSync, want)
	}
}

func TestGetStatusReflectsLockManager(t *testing.T) {
	locks := lock.NewManager()
	s := newWithClock(testGeneral(), locks, &fakeSyncer{}, []config.Repository{{Name: "repoA"}}, newFakeClock(time.Unix(0, 0)))

	holder, ok := locks.TryAcquireSync("repoA")
	if !ok {
		t.Fatal("expected to acquire sync lock")
	}
	status, _ := s.GetStatus("repoA")
	if status.Current != 1 {
		t.Errorf("expected syncing status while lock held, got %v", status.Current)
	}
	holder.Release()
	status, _ = s.GetStatus("repoA")
	if status.Current != 0 {
		t.Errorf("expected waiting status after release, got %v", status.Current)
	}
}
