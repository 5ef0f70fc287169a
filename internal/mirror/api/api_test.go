// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zextras/mirrord/internal/mirror/config"
	"github.com/zextras/mirrord/internal/mirror/lock"
	"github.com/zextras/mirrord/internal/mirror/sched"
)

func testGeneral(t *testing.T) config.General {
	return config.General{
		DataPath:     t.TempDir(),
		TmpPath:      t.TempDir(),
		MinSyncDelay: 10,
		MaxSyncDelay: 30,
	}
}

// nopSyncer never actually runs: these tests exercise the HTTP layer and
// the scheduler's status bookkeeping, not the sync engine itself.
type nopSyncer struct{}

func (nopSyncer) Sync(ctx context.Context, repo config.Repository) error { return nil }

func TestHealthOKWhenPathsWritable(t *testing.T) {
	general := testGeneral(t)
	scheduler := sched.New(general, lock.NewManager(), nopSyncer{}, nil)
	mux := NewMux(general, scheduler)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealthUnavailableWhenDataPathMissing(t *testing.T) {
	general := testGeneral(t)
	general.DataPath = general.DataPath + "/does-not-exist"
	scheduler := sched.New(general, lock.NewManager(), nopSyncer{}, nil)
	mux := NewMux(general, scheduler)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestGetRepositoryUnknownReturns404(t *testing.T) {
	general := testGeneral(t)
	scheduler := sched.New(general, lock.NewManager(), nopSyncer{}, nil)
	mux := NewMux(general, scheduler)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/repository/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetRepositoryReturnsStatus(t *testing.T) {
	general := testGeneral(t)
	repos := []config.Repository{{Name: "focal", Source: config.Source{Kind: "debian"}}}
	scheduler := sched.New(general, lock.NewManager(), nopSyncer{}, repos)
	mux := NewMux(general, scheduler)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/repository/focal", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Name != "focal" {
		t.Errorf("Name = %q, want focal", got.Name)
	}
	if got.Status != "waiting" {
		t.Errorf("Status = %q, want waiting", got.Status)
	}
	if got.LastResult != nil {
		t.Errorf("LastResult = %v, want nil (never synced)", got.LastResult)
	}
	if got.NextSync <= time.Now().UnixMilli() {
		t.Errorf("NextSync = %d, want in the future", got.NextSync)
	}
}

func TestPostSyncUnknownReturns404(t *testing.T) {
	general := testGeneral(t)
	scheduler := sched.New(general, lock.NewManager(), nopSyncer{}, nil)
	mux := NewMux(general, scheduler)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/repository/missing/sync", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPostSyncBringsForwardNextSync(t *testing.T) {
	general := testGeneral(t)
	repos := []config.Repository{{Name: "focal", Source: config.Source{Kind: "debian"}}}
	scheduler := sched.New(general, lock.NewManager(), nopSyncer{}, repos)
	mux := NewMux(general, scheduler)

	before, _ := scheduler.GetStatus("focal")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/repository/focal/sync", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	after, _ := scheduler.GetStatus("focal")
	if !after.NextSync.Before(before.NextSync) {
		t.Errorf("NextSync after queueing = %v, want before %v", after.NextSync, before.NextSync)
	}
}
