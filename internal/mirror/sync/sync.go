// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package sync implements the single-repository sync engine: acquire
// the sync lock, fetch and parse the upstream metadata into a temp
// snapshot, verify its signature, diff it against the saved snapshot,
// apply the copy/invalidate/delete plan in the client-consistent order,
// and atomically swap the saved snapshot, per spec §4.7 and the data
// flow diagram in §2.
package sync

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/zextras/mirrord/internal/mirror/config"
	"github.com/zextras/mirrord/internal/mirror/debian"
	"github.com/zextras/mirrord/internal/mirror/dest"
	"github.com/zextras/mirrord/internal/mirror/diff"
	"github.com/zextras/mirrord/internal/mirror/fetch"
	"github.com/zextras/mirrord/internal/mirror/integrity"
	"github.com/zextras/mirrord/internal/mirror/lock"
	"github.com/zextras/mirrord/internal/mirror/model"
	"github.com/zextras/mirrord/internal/mirror/redhat"
	"github.com/zextras/mirrord/internal/mirror/store"
)

const userAgent = "mirrord"

// DestinationFactory builds the Destination for a repository's
// configuration. The default, newDestination, dispatches on which of
// destination.s3/destination.local is set; tests substitute a fake.
type DestinationFactory func(ctx context.Context, repo config.Repository) (dest.Destination, error)

// Engine runs syncs of the repositories passed to Sync, serialized per
// repo by locks.
type Engine struct {
	General    config.General
	Locks      *lock.Manager
	NewDest    DestinationFactory
}

// NewEngine builds an Engine using the default GCS/filesystem
// destination factory.
func NewEngine(general config.General, locks *lock.Manager) *Engine {
	return &Engine{General: general, Locks: locks, NewDest: newDestination}
}

// Sync runs one synchronization of repo. It returns model.WouldBlock if
// a sync for repo.Name is already in progress.
func (e *Engine) Sync(ctx context.Context, repo config.Repository) error {
	holder, ok := e.Locks.TryAcquireSync(repo.Name)
	if !ok {
		return model.New(model.WouldBlock, "sync already in progress for "+repo.Name)
	}
	defer holder.Release()
	return e.syncInternal(ctx, repo)
}

func (e *Engine) syncInternal(ctx context.Context, repo config.Repository) error {
	destination, err := e.NewDest(ctx, repo)
	if err != nil {
		return errors.Wrapf(err, "building destination for %s", repo.Name)
	}

	username, password := resolveCredentials(repo.Source)
	fetcher := fetch.NewChain(e.General.TimeoutDuration(), e.General.MaxRetries, e.General.RetrySleepDuration(), userAgent, username, password)

	liveDir := filepath.Join(e.General.DataPath, "tmp_"+repo.Name)
	savedDir := filepath.Join(e.General.DataPath, repo.Name)
	live := store.NewLive(liveDir, repo.Source.Endpoint, fetcher)
	defer os.RemoveAll(liveDir)

	newRepo, err := fetchNewRepository(ctx, live, repo)
	if err != nil {
		return err
	}

	if err := verifySignatures(repo.Source, newRepo); err != nil {
		return err
	}

	release := e.Locks.AcquireRead(repo.Name)
	currentRepo, err := loadSaved(savedDir, repo)
	release()
	if err != nil {
		return errors.Wrapf(err, "loading current snapshot for %s", repo.Name)
	}

	plan := diff.Diff(newRepo, currentRepo)
	if plan.Empty() {
		return nil
	}

	var invalidationPaths []string

	packageInvalidations, err := copyPackages(ctx, e.General.TmpPath, repo.Source.Endpoint, fetcher, destination, plan.PackagesCopy)
	if err != nil {
		return errors.Wrapf(err, "failed to copy %s to %s", repo.Source.Endpoint, destination.Name())
	}
	invalidationPaths = append(invalidationPaths, packageInvalidations...)

	indexInvalidations, err := copyIndexes(ctx, destination, plan.IndexesCopy)
	if err != nil {
		return errors.Wrapf(err, "failed to copy %s to %s", repo.Source.Endpoint, destination.Name())
	}
	invalidationPaths = append(invalidationPaths, indexInvalidations...)

	if err := destination.Invalidate(ctx, invalidationPaths); err != nil {
		return err
	}

	for _, op := range plan.PackagesDelete {
		if err := destination.Delete(ctx, op.Path); err != nil {
			return err
		}
	}
	for _, op := range plan.IndexesDelete {
		if err := destination.Delete(ctx, op.Path); err != nil {
			return err
		}
	}

	release = e.Locks.AcquireWrite(repo.Name)
	defer release()
	return store.Replace(liveDir, savedDir)
}

// fetchNewRepository fetches and parses the upstream repository into the
// live metadata store, dispatching on the configured source kind.
func fetchNewRepository(ctx context.Context, live *store.Live, repo config.Repository) (model.Repository, error) {
	switch repo.Source.Kind {
	case "debian":
		return debian.FetchRepository(ctx, live, repo.Name, repo.Versions, false)
	case "redhat":
		return redhat.FetchRepository(ctx, live, repo.Name)
	default:
		return model.Repository{}, errors.Errorf("unknown repo kind %q", repo.Source.Kind)
	}
}

// loadSaved loads the last successful snapshot for repo using a
// read-only store over savedDir, dispatching on source kind the same
// way fetchNewRepository does. A missing saved directory yields an
// empty Repository rather than an error, so a newly configured repo
// syncs from scratch.
func loadSaved(savedDir string, repo config.Repository) (model.Repository, error) {
	if _, err := os.Stat(savedDir); os.IsNotExist(err) {
		return model.Empty(repo.Name), nil
	}
	saved := store.NewSaved(savedDir)
	switch repo.Source.Kind {
	case "debian":
		return debian.FetchRepository(context.Background(), saved, repo.Name, repo.Versions, true)
	case "redhat":
		return redhat.FetchRepository(context.Background(), saved, repo.Name)
	default:
		return model.Repository{}, errors.Errorf("unknown repo kind %q", repo.Source.Kind)
	}
}

// LoadSaved returns the last successful snapshot for repo, or an empty
// Repository if it has never synced. Used by the control API to report
// a repo's saved size without running a sync.
func LoadSaved(general config.General, repo config.Repository) (model.Repository, error) {
	savedDir := filepath.Join(general.DataPath, repo.Name)
	return loadSaved(savedDir, repo)
}

// verifySignatures checks every collection's indexes against the
// configured public key, if any. Without a configured key, signature
// validation is skipped entirely (matching the upstream's behavior of
// logging and proceeding).
func verifySignatures(source config.Source, repo model.Repository) error {
	if strings.TrimSpace(source.PublicPGPKey) == "" {
		return nil
	}
	kr, err := integrity.ParseKeyRing([]byte(source.PublicPGPKey))
	if err != nil {
		return errors.Wrap(err, "parsing configured public pgp key")
	}
	for _, c := range repo.Collections {
		for _, idx := range c.Indexes {
			f, err := os.Open(idx.LocalPath)
			if err != nil {
				return errors.Wrapf(err, "opening stored index %s", idx.Path)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return errors.Wrapf(err, "reading stored index %s", idx.Path)
			}
			if idx.Signature.Kind == model.SignaturePGPEmbedded {
				if _, err := integrity.VerifyEmbedded(kr, data); err != nil {
					return model.Wrap(model.InvalidData, err, "cannot validate signature of '"+idx.Path+"'")
				}
				continue
			}
			if err := integrity.Verify(kr, idx.Signature, data); err != nil {
				return model.Wrap(model.InvalidData, err, "cannot validate signature of '"+idx.Path+"'")
			}
		}
	}
	return nil
}

// resolveCredentials returns the basic-auth credentials for source,
// preferring an explicit username/password over reading a "user:pass"
// line from authorization_file.
func resolveCredentials(source config.Source) (string, string) {
	if source.Username != "" || source.Password != "" {
		return source.Username, source.Password
	}
	if source.AuthorizationFile == "" {
		return "", ""
	}
	data, err := os.ReadFile(source.AuthorizationFile)
	if err != nil {
		return "", ""
	}
	user, pass, ok := strings.Cut(strings.TrimSpace(string(data)), ":")
	if !ok {
		return "", ""
	}
	return user, pass
}

// newDestination builds the Destination for repo.Destination: a GCS
// bucket if destination.s3 is set, otherwise a local filesystem rooted
// at destination.local. Config validation guarantees exactly one is
// set.
func newDestination(ctx context.Context, repo config.Repository) (dest.Destination, error) {
	if repo.Destination.S3 != "" {
		return dest.NewGCS(ctx, repo.Destination.S3, "")
	}
	return dest.NewFilesystem(repo.Destination.Local), nil
}
