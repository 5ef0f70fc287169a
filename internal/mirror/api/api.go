// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the control HTTP surface: health, per-repository
// status, and operator-triggered sync, per spec §6.2. The status-code
// mapping is borrowed from the teacher's RPC framework, trimmed down to
// this package's three fixed JSON endpoints — no form-encoded RPC layer
// is needed here, only plain JSON bodies.
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zextras/mirrord/internal/mirror/config"
	"github.com/zextras/mirrord/internal/mirror/sched"
	"github.com/zextras/mirrord/internal/mirror/sync"
)

// grpcToHTTP maps abstract error codes to the HTTP status this API
// reports them as, the same table the teacher's RPC framework uses.
var grpcToHTTP = map[codes.Code]int{
	codes.OK:                 http.StatusOK,
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.NotFound:           http.StatusNotFound,
	codes.FailedPrecondition: http.StatusConflict,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.Internal:           http.StatusInternalServerError,
}

// Status is the JSON schema returned by GET/POST /repository/{repo}.
type Status struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	NextSync   int64   `json:"next_sync"`
	LastSync   int64   `json:"last_sync"`
	LastResult *string `json:"last_result"`
	Size       uint64  `json:"size"`
}

// NewMux builds the control API's http.ServeMux, bound to scheduler for
// status/queueing and general for the health check's path validation.
func NewMux(general config.General, scheduler *sched.Scheduler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth(general))
	mux.HandleFunc("GET /repository/{repo}", handleGetRepository(general, scheduler))
	mux.HandleFunc("POST /repository/{repo}/sync", handlePostSync(general, scheduler))
	return mux
}

// handleHealth reports 200 iff both data_path and tmp_path are
// existing, writable directories; 503 otherwise.
func handleHealth(general config.General) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sched.CheckWritable(general.DataPath); err != nil {
			log.Printf("api: health check failed for data_path: %v", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if err := sched.CheckWritable(general.TmpPath); err != nil {
			log.Printf("api: health check failed for tmp_path: %v", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func handleGetRepository(general config.General, scheduler *sched.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, repositoryStatus(general, scheduler, r.PathValue("repo")))
	}
}

func handlePostSync(general config.General, scheduler *sched.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("repo")
		if _, ok := scheduler.Repo(name); !ok {
			writeError(w, codes.NotFound, "unknown repository: "+name)
			return
		}
		scheduler.QueueSync(name)
		writeStatus(w, repositoryStatus(general, scheduler, name))
	}
}

// repositoryStatus resolves name's Status, or a codes.NotFound error if
// it is not a configured repository.
func repositoryStatus(general config.General, scheduler *sched.Scheduler, name string) (*Status, error) {
	repo, ok := scheduler.Repo(name)
	if !ok {
		return nil, status.Error(codes.NotFound, "unknown repository: "+name)
	}
	st, _ := scheduler.GetStatus(name)

	var lastResult *string
	if st.HasResult {
		lastResult = &st.LastResult
	}

	saved, err := sync.LoadSaved(general, repo)
	if err != nil {
		log.Printf("api: loading saved snapshot for %s: %v", name, err)
	}

	return &Status{
		Name:       repo.Name,
		Status:     st.Current.String(),
		NextSync:   st.NextSync.UnixMilli(),
		LastSync:   st.LastSync.UnixMilli(),
		LastResult: lastResult,
		Size:       saved.TotalSize(),
	}, nil
}

func writeStatus(w http.ResponseWriter, s *Status, err error) {
	if err != nil {
		code := status.Convert(err).Code()
		writeError(w, code, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		log.Printf("api: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code codes.Code, msg string) {
	httpStatus, ok := grpcToHTTP[code]
	if !ok {
		httpStatus = http.StatusInternalServerError
	}
	http.Error(w, msg, httpStatus)
}
