// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package dest implements the Destination contract: the write side of a
// sync (upload, delete, CDN invalidation) against either a GCS bucket
// (with optional CDN invalidation) or a local filesystem, mirroring the
// S3Destination/FileAdapter split in the original implementation and the
// GCSStore/FilesystemAssetStore pattern from the teacher's asset store.
package dest

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// Destination is the write side of a sync: objects are uploaded under a
// server-relative path, invalidated in batches after upload, and deleted
// once no longer referenced.
type Destination interface {
	Upload(ctx context.Context, path string, payload io.Reader) error
	Delete(ctx context.Context, path string) error
	Invalidate(ctx context.Context, paths []string) error
	Name() string
}

// objectPath joins destPath and path the way both implementations must:
// trailing/leading slashes are stripped per spec §6.3, and an empty
// destPath degenerates to the bare path.
func objectPath(destPath, path string) string {
	path = strings.TrimPrefix(path, "/")
	if destPath == "" {
		return path
	}
	return strings.TrimSuffix(destPath, "/") + "/" + path
}

// GCS is an object-store Destination backed by Google Cloud Storage, with
// optional CDN invalidation. When CDNInvalidate is nil, Invalidate is a
// no-op, matching the Rust original's "skip cloudfront invalidation when
// no client is configured" branch.
type GCS struct {
	Client        *gcs.Client
	Bucket        string
	DestPath      string
	CDNInvalidate func(ctx context.Context, callerReference string, objectPaths []string) error
}

var _ Destination = &GCS{}

// NewGCS constructs a GCS destination. opts are passed through to the
// underlying storage client, matching GCSStore.New's construction idiom.
func NewGCS(ctx context.Context, bucket, destPath string, opts ...option.ClientOption) (*GCS, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS client")
	}
	return &GCS{Client: client, Bucket: bucket, DestPath: strings.TrimSuffix(destPath, "/")}, nil
}

// Upload streams payload to the destination object key.
func (g *GCS) Upload(ctx context.Context, path string, payload io.Reader) error {
	key := objectPath(g.DestPath, path)
	log.Printf("dest: uploading gs://%s/%s", g.Bucket, key)
	w := g.Client.Bucket(g.Bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, payload); err != nil {
		w.Close()
		return errors.Wrapf(err, "uploading %s", key)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "finalizing upload of %s", key)
	}
	return nil
}

// Delete removes the object at path. A missing object is tolerated
// (idempotent delete, per spec §7).
func (g *GCS) Delete(ctx context.Context, path string) error {
	key := objectPath(g.DestPath, path)
	log.Printf("dest: deleting gs://%s/%s", g.Bucket, key)
	err := g.Client.Bucket(g.Bucket).Object(key).Delete(ctx)
	if err != nil && err != gcs.ErrObjectNotExist {
		return errors.Wrapf(err, "deleting %s", key)
	}
	return nil
}

// Invalidate invalidates the CDN cache for each path (formatted
// "/"+object_key) using a caller-reference unique to this batch. A
// no-op if no CDN invalidation callback is configured, or if paths is
// empty.
func (g *GCS) Invalidate(ctx context.Context, paths []string) error {
	if g.CDNInvalidate == nil || len(paths) == 0 {
		for _, p := range paths {
			log.Printf("dest: skipping cdn invalidation for %s (no cdn configured)", p)
		}
		return nil
	}
	objectPaths := make([]string, len(paths))
	for i, p := range paths {
		log.Printf("dest: invalidating %s", p)
		objectPaths[i] = "/" + objectPath(g.DestPath, p)
	}
	callerRef := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := g.CDNInvalidate(ctx, callerRef, objectPaths); err != nil {
		return errors.Wrap(err, "cdn invalidation failed")
	}
	return nil
}

// Name is a human-readable identifier for logging.
func (g *GCS) Name() string {
	return "gs://" + g.Bucket
}

// Filesystem is a local-filesystem Destination, writing under
// destPath/path with parent directories created as needed. Invalidate is
// always a no-op (no CDN in front of a local filesystem).
type Filesystem struct {
	FS       billy.Filesystem
	DestPath string
}

var _ Destination = &Filesystem{}

// NewFilesystem roots a Filesystem destination at root on the local
// filesystem.
func NewFilesystem(root string) *Filesystem {
	return &Filesystem{FS: osfs.New(root), DestPath: root}
}

// Upload writes payload under path, creating parent directories.
func (f *Filesystem) Upload(ctx context.Context, path string, payload io.Reader) error {
	path = strings.TrimPrefix(path, "/")
	if err := f.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating parent directories for %s", path)
	}
	w, err := f.FS.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if _, err := io.Copy(w, payload); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return w.Close()
}

// Delete removes path. A missing file is tolerated (idempotent delete).
func (f *Filesystem) Delete(ctx context.Context, path string) error {
	path = strings.TrimPrefix(path, "/")
	err := f.FS.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "deleting %s", path)
	}
	return nil
}

// Invalidate is a no-op for a local filesystem destination.
func (f *Filesystem) Invalidate(ctx context.Context, paths []string) error {
	return nil
}

// Name is a human-readable identifier for logging.
func (f *Filesystem) Name() string {
	return f.DestPath
}
