// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDirectFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	d := NewDirect(time.Second, "mirrord/test", "", "")
	body, err := d.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer body.Close()
	got, _ := io.ReadAll(body)
	if string(got) != "hello" {
		t.Errorf("body = %q, want %q", got, "hello")
	}
}

func TestDirectFetch404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewDirect(time.Second, "", "", "")
	_, err := d.Fetch(context.Background(), srv.URL)
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if fe.Code != http.StatusNotFound {
		t.Errorf("Code = %d, want 404", fe.Code)
	}
}

func TestDirectFetchBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := NewDirect(time.Second, "", "alice", "secret")
	body, err := d.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	body.Close()
}

type flakyFetcher struct {
	failures int
	calls    int
	err      error
}

func (f *flakyFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return nil, f.err
		}
		return nil, &Error{Code: 500, Err: errors.New("boom")}
	}
	return io.NopCloser(nil), nil
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	inner := &flakyFetcher{failures: 2}
	r := &Retry{Fetcher: inner, MaxRetries: 3, SleepBetween: time.Millisecond}
	_, err := r.Fetch(context.Background(), "https://url")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	inner := &flakyFetcher{failures: 5}
	r := &Retry{Fetcher: inner, MaxRetries: 3, SleepBetween: time.Millisecond}
	_, err := r.Fetch(context.Background(), "https://url")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryDoesNotRetry404(t *testing.T) {
	inner := &flakyFetcher{failures: 5, err: &Error{Code: http.StatusNotFound, Err: errors.New("nope")}}
	r := &Retry{Fetcher: inner, MaxRetries: 3, SleepBetween: time.Millisecond}
	_, err := r.Fetch(context.Background(), "https://url")
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 404)", inner.calls)
	}
}
