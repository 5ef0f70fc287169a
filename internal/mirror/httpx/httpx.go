// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package httpx provides a minimal http.Client abstraction and a set of
// decorators that compose over it, mirroring the chain-of-responsibility
// shape used for HTTP egress throughout the mirror pipeline's fetch layer.
package httpx

import "net/http"

// BasicClient is a simpler http.Client that only requires a Do method,
// letting decorators wrap anything that can send a request.
type BasicClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ BasicClient = http.DefaultClient

// WithUserAgent decorates a BasicClient, setting a fixed User-Agent header
// on every outgoing request.
type WithUserAgent struct {
	BasicClient
	UserAgent string
}

var _ BasicClient = &WithUserAgent{}

// Do sets the User-Agent header and delegates to the wrapped client.
func (c *WithUserAgent) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.UserAgent)
	return c.BasicClient.Do(req)
}

// WithBasicAuth decorates a BasicClient, attaching HTTP Basic
// authentication credentials to every outgoing request.
type WithBasicAuth struct {
	BasicClient
	Username string
	Password string
}

var _ BasicClient = &WithBasicAuth{}

// Do sets the Authorization header and delegates to the wrapped client.
func (c *WithBasicAuth) Do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(c.Username, c.Password)
	return c.BasicClient.Do(req)
}
