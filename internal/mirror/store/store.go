// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package store implements the metadata store abstraction: the on-disk
// cache of raw repository metadata, keyed by base32(server-relative
// path), in its two variants (saved: read-only over the last successful
// snapshot; live: fetch-through into a temp workspace during a sync), plus
// the atomic directory swap that promotes a live snapshot to saved.
package store

import (
	"context"
	"encoding/base32"
	"io"
	"os"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"

	"github.com/zextras/mirrord/internal/mirror/fetch"
	"github.com/zextras/mirrord/internal/mirror/model"
)

// encodePath maps a server-relative path to its content-addressed cache
// file name, matching the Rust original's BASE32_NOPAD.encode.
func encodePath(path string) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(path))
}

// MetadataStore is the abstract contract both Saved and Live satisfy:
// fetch a path into the local cache (or open it if already cached), and
// read a path that is expected to already be cached.
type MetadataStore interface {
	// Fetch returns the local cache file's path, an open reader over it,
	// and its size in bytes.
	Fetch(ctx context.Context, path string) (localPath string, r io.ReadCloser, size uint64, err error)
	// Read opens a path already present in the cache, or returns
	// (nil, model-NotFound) if absent.
	Read(path string) (io.ReadCloser, error)
}

// Saved is a read-only metadata store over a directory of
// base32(path)-named files representing the last successful snapshot.
type Saved struct {
	FS  billy.Filesystem
	Dir string
}

// NewSaved opens a Saved store rooted at dir on the local filesystem.
func NewSaved(dir string) *Saved {
	return &Saved{FS: osfs.New(dir), Dir: dir}
}

var _ MetadataStore = &Saved{}

// Fetch opens the cached file for path; a missing file is an error (the
// saved store never fetches from upstream).
func (s *Saved) Fetch(ctx context.Context, path string) (string, io.ReadCloser, uint64, error) {
	name := encodePath(path)
	f, err := s.FS.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, 0, model.Wrap(model.NotFound, err, "saved metadata missing for "+path)
		}
		return "", nil, 0, model.Wrap(model.Other, err, "opening saved metadata for "+path)
	}
	info, err := s.FS.Stat(name)
	if err != nil {
		f.Close()
		return "", nil, 0, model.Wrap(model.Other, err, "stat saved metadata for "+path)
	}
	return filepath.Join(s.Dir, name), f, uint64(info.Size()), nil
}

// Read is equivalent to Fetch but discards the local path and size.
func (s *Saved) Read(path string) (io.ReadCloser, error) {
	_, r, _, err := s.Fetch(context.Background(), path)
	return r, err
}

// Live is a write-through metadata store: Fetch downloads path from
// baseURL via Fetcher, writing it to dir/base32(path), and returns a
// reader over the freshly written file.
type Live struct {
	FS       billy.Filesystem
	Dir      string
	BaseURL  string
	Fetcher  fetch.Fetcher
}

// NewLive creates a Live store rooted at dir, fetching from baseURL
// through fetcher.
func NewLive(dir, baseURL string, fetcher fetch.Fetcher) *Live {
	return &Live{FS: osfs.New(dir), Dir: dir, BaseURL: baseURL, Fetcher: fetcher}
}

var _ MetadataStore = &Live{}

// Fetch downloads baseURL+"/"+path through the underlying Fetcher into
// dir/base32(path). A 404 upstream surfaces as model.NotFound so the
// engine can treat some indexes (InRelease, Release.gpg) as optional.
func (l *Live) Fetch(ctx context.Context, path string) (string, io.ReadCloser, uint64, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", nil, 0, model.Wrap(model.Other, err, "creating live metadata dir")
	}
	body, err := l.Fetcher.Fetch(ctx, l.BaseURL+"/"+path)
	if err != nil {
		var fe *fetch.Error
		if errors.As(err, &fe) && fe.Kind() == model.NotFound {
			return "", nil, 0, model.Wrap(model.NotFound, err, "fetching "+path)
		}
		return "", nil, 0, model.Wrap(model.Transport, err, "fetching "+path)
	}
	defer body.Close()

	name := encodePath(path)
	localPath := filepath.Join(l.Dir, name)
	out, err := l.FS.Create(name)
	if err != nil {
		return "", nil, 0, model.Wrap(model.Other, err, "creating live metadata file for "+path)
	}
	size, err := io.Copy(out, body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", nil, 0, model.Wrap(model.Other, err, "writing live metadata for "+path)
	}
	f, err := l.FS.Open(name)
	if err != nil {
		return "", nil, 0, model.Wrap(model.Other, err, "reopening live metadata for "+path)
	}
	return localPath, f, uint64(size), nil
}

// Read opens an already-cached path without fetching (only Fetch talks
// to upstream); a path not yet cached yields a model.NotFound error.
func (l *Live) Read(path string) (io.ReadCloser, error) {
	name := encodePath(path)
	f, err := l.FS.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.Wrap(model.NotFound, err, "live metadata missing for "+path)
		}
		return nil, model.Wrap(model.Other, err, "opening live metadata for "+path)
	}
	return f, nil
}

// Replace atomically promotes the live directory to target: rename
// target -> target_tmp (if target exists), rename live -> target, then
// remove target_tmp. If either rename fails, the previous snapshot is
// left at (or renamed back to) target.
func Replace(liveDir, targetDir string) error {
	tmpDir := targetDir + "_tmp"
	_, statErr := os.Stat(targetDir)
	existed := statErr == nil
	if existed {
		if err := os.Rename(targetDir, tmpDir); err != nil {
			return model.Wrap(model.Other, err, "staging previous snapshot aside")
		}
	}
	if err := os.Rename(liveDir, targetDir); err != nil {
		if existed {
			if restoreErr := os.Rename(tmpDir, targetDir); restoreErr != nil {
				return model.Wrap(model.Other, restoreErr, "restoring previous snapshot after failed promotion")
			}
		}
		return model.Wrap(model.Other, err, "promoting live snapshot")
	}
	if existed {
		if err := os.RemoveAll(tmpDir); err != nil {
			return model.Wrap(model.Other, err, "removing staged previous snapshot")
		}
	}
	return nil
}
