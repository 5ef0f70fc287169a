// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

package sync

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zextras/mirrord/internal/mirror/dest"
	"github.com/zextras/mirrord/internal/mirror/diff"
	"github.com/zextras/mirrord/internal/mirror/fetch"
	"github.com/zextras/mirrord/internal/mirror/model"
)

// copyConcurrency bounds how many copy operations run at once within a
// single copyPackages/copyIndexes call. Operations within one list have
// no ordering requirement between each other, only the packages-before-
// indexes invariant across the two calls, so they run concurrently up
// to this limit.
const copyConcurrency = 8

// copyPackages applies a package copy plan: every operation has no
// LocalFile and must be streamed from source_endpoint through fetcher
// into a scratch file under tmpPath.
func copyPackages(ctx context.Context, tmpPath, sourceEndpoint string, fetcher fetch.Fetcher, destination dest.Destination, ops []diff.Copy) ([]string, error) {
	return copyOperations(ctx, tmpPath, sourceEndpoint, fetcher, destination, ops, true)
}

// copyIndexes applies an index copy plan: every operation has LocalFile
// set, sourced from the live metadata store already on disk, and has
// already been size-checked at fetch time.
func copyIndexes(ctx context.Context, destination dest.Destination, ops []diff.Copy) ([]string, error) {
	return copyOperations(ctx, "", "", nil, destination, ops, false)
}

// copyOperations applies every Copy operation: obtain the payload (open
// the local file, or stream an upstream fetch into a scratch file under
// tmpPath), verify its hash (and, for packages, its declared size),
// rewind, then upload it to destination. Paths marked IsReplace are
// returned for CDN invalidation. Operations run concurrently, bounded by
// copyConcurrency, since nothing within one list depends on another;
// matches copy/copy_internal in the original sync engine, generalized
// from its sequential loop to a bounded worker group.
func copyOperations(ctx context.Context, tmpPath, sourceEndpoint string, fetcher fetch.Fetcher, destination dest.Destination, ops []diff.Copy, checkSize bool) ([]string, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	if tmpPath != "" {
		if err := os.MkdirAll(tmpPath, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating tmp_path")
		}
	}

	var mu sync.Mutex
	var invalidationPaths []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(copyConcurrency)
	for _, op := range ops {
		op := op
		g.Go(func() error {
			if err := copyOne(gctx, tmpPath, sourceEndpoint, fetcher, destination, op, checkSize); err != nil {
				return errors.Wrapf(err, "cannot copy file '%s'", op.Path)
			}
			if op.IsReplace {
				mu.Lock()
				invalidationPaths = append(invalidationPaths, op.Path)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return invalidationPaths, nil
}

func copyOne(ctx context.Context, tmpPath, sourceEndpoint string, fetcher fetch.Fetcher, destination dest.Destination, op diff.Copy, checkSize bool) error {
	f, size, scratch, err := openCopyPayload(ctx, tmpPath, sourceEndpoint, fetcher, op)
	if err != nil {
		return err
	}
	defer f.Close()
	if scratch {
		defer os.Remove(f.Name())
	}

	ok, err := op.Hash.Verify(f)
	if err != nil {
		return errors.Wrap(err, "hashing payload")
	}
	if !ok {
		return model.New(model.InvalidData, "failed hash validation for '"+op.Path+"'")
	}

	if checkSize && uint64(size) != op.Size {
		return model.New(model.InvalidData, errors.Errorf(
			"invalid file size for '%s', expected %d found %d", op.Path, op.Size, size).Error())
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewinding payload")
	}
	return destination.Upload(ctx, op.Path, f)
}

// openCopyPayload returns a seekable reader over op's complete payload,
// its byte length, and whether the reader is a scratch file the caller
// must remove after use: the local file if op.LocalFile is set (never
// removed — it belongs to the live metadata store), or the upstream
// fetch streamed into a scratch file under tmpPath otherwise.
func openCopyPayload(ctx context.Context, tmpPath, sourceEndpoint string, fetcher fetch.Fetcher, op diff.Copy) (f *os.File, size int64, scratch bool, err error) {
	if op.LocalFile != "" {
		f, err := os.Open(op.LocalFile)
		if err != nil {
			return nil, 0, false, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, false, err
		}
		return f, info.Size(), false, nil
	}

	r, err := fetcher.Fetch(ctx, sourceEndpoint+"/"+op.Path)
	if err != nil {
		return nil, 0, false, err
	}
	defer r.Close()

	tmp, err := os.CreateTemp(tmpPath, "mirrord-copy-")
	if err != nil {
		return nil, 0, false, err
	}
	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, false, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, false, err
	}
	return tmp, n, true, nil
}
