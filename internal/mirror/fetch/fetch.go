// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package fetch provides the upstream retrieval contract for the mirror
// pipeline: a Fetcher capability obtained by composing a direct HTTP
// fetcher with retry behavior, mirroring the chain built by
// fetcher.rs's create_chain in the original implementation.
package fetch

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/zextras/mirrord/internal/mirror/httpx"
	"github.com/zextras/mirrord/internal/mirror/model"
)

// Error is a fetch failure carrying the HTTP-ish status code the original
// FetchError{code, error} struct captured. Non-HTTP transport failures
// (DNS errors, connection refused, timeouts) are reported as 503, per the
// Rust original's `err.status().unwrap_or(StatusCode::SERVICE_UNAVAILABLE)`.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	return errors.Wrapf(e.Err, "fetch failed with status %d", e.Code).Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Kind classifies a fetch Error per the model.Kind taxonomy: 404 is
// not-found, everything else is transport.
func (e *Error) Kind() model.Kind {
	if e.Code == http.StatusNotFound {
		return model.NotFound
	}
	return model.Transport
}

// Fetcher retrieves the byte stream at url. Implementations compose as a
// chain (retry over direct), matching the Design Notes' "cyclic/owned
// references in the fetcher chain" guidance: callers hold the top of the
// chain and may share it across multiple parsers within a single sync.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// Direct is an HTTP(S) GET fetcher with a configured timeout and an
// optional Basic-auth-decorated client. Statuses >= 400 become an *Error
// with that status code; transport-level failures become *Error{503}.
type Direct struct {
	Client  httpx.BasicClient
	Timeout time.Duration
}

// NewDirect builds a Direct fetcher. If username/password are both
// non-empty, requests carry a Basic Authorization header.
func NewDirect(timeout time.Duration, userAgent, username, password string) *Direct {
	var c httpx.BasicClient = http.DefaultClient
	if username != "" && password != "" {
		c = &httpx.WithBasicAuth{BasicClient: c, Username: username, Password: password}
	}
	if userAgent != "" {
		c = &httpx.WithUserAgent{BasicClient: c, UserAgent: userAgent}
	}
	return &Direct{Client: c, Timeout: timeout}
}

// Fetch issues the GET request and returns the response body on success.
func (d *Direct) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, &Error{Code: http.StatusServiceUnavailable, Err: err}
	}
	log.Printf("fetch: requesting %s", url)
	resp, err := d.Client.Do(req)
	if err != nil {
		cancel()
		return nil, &Error{Code: http.StatusServiceUnavailable, Err: errors.Wrap(err, "request failed")}
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		cancel()
		return nil, &Error{Code: resp.StatusCode, Err: errors.Errorf("request failed: %s", resp.Status)}
	}
	return &cancelReader{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelReader releases the request's context when the body is closed.
type cancelReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReader) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// Retry wraps another Fetcher, attempting up to MaxRetries times with
// SleepBetween between attempts. A 404 is terminal (no retry); any other
// error is retried. Returns the last error if every attempt fails.
type Retry struct {
	Fetcher      Fetcher
	MaxRetries   int
	SleepBetween time.Duration
}

// Fetch retries the wrapped fetcher per the terminal-on-404 rule.
func (r *Retry) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	var lastErr error
	attempts := r.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for n := 0; n < attempts; n++ {
		if n > 0 {
			log.Printf("fetch: retrying %s in %s", url, r.SleepBetween)
			select {
			case <-time.After(r.SleepBetween):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		body, err := r.Fetcher.Fetch(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		var fe *Error
		if errors.As(err, &fe) && fe.Code == http.StatusNotFound {
			return nil, err
		}
	}
	return nil, lastErr
}

// NewChain builds the standard Retry-over-Direct chain, mirroring
// fetcher.rs's create_chain.
func NewChain(timeout time.Duration, maxRetries int, sleep time.Duration, userAgent, username, password string) Fetcher {
	return &Retry{
		Fetcher:      NewDirect(timeout, userAgent, username, password),
		MaxRetries:   maxRetries,
		SleepBetween: sleep,
	}
}
