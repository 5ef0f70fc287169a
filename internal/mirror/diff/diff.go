// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package diff computes the ordered copy/delete plan between a freshly
// fetched Repository and the currently saved one, the way sync.rs's
// repo_diff does: new collections are matched against current ones by
// Target, packages and indexes are each compared by key, and every
// resulting list is deduplicated preserving first occurrence.
package diff

import (
	"github.com/zextras/mirrord/internal/mirror/model"
)

// Copy describes one object that must be uploaded to the destination.
// LocalFile is set for indexes (already cached on disk by the live
// metadata store) and empty for packages (streamed from upstream through
// the Fetcher during execution).
type Copy struct {
	Path      string
	Hash      model.Hash
	Size      uint64
	IsReplace bool
	LocalFile string
}

// Delete describes one object that must be removed from the destination
// because it is no longer referenced by the new snapshot.
type Delete struct {
	Path string
}

// Plan is the four ordered lists execution applies in sequence: packages
// before indexes, per spec §4.6's ordering invariant.
type Plan struct {
	PackagesCopy  []Copy
	PackagesDelete []Delete
	IndexesCopy   []Copy
	IndexesDelete []Delete
}

// Empty reports whether applying this plan would be a no-op (spec §4.7:
// "if packages_copy and indexes_copy are both empty, the operation is a
// no-op").
func (p Plan) Empty() bool {
	return len(p.PackagesCopy) == 0 && len(p.IndexesCopy) == 0
}

// Diff compares newRepo (just fetched) against currentRepo (loaded from
// the saved snapshot, possibly model.Empty) and produces the four-list
// plan described by spec §4.6.
func Diff(newRepo, currentRepo model.Repository) Plan {
	var plan Plan

	for _, collection := range newRepo.Collections {
		current := findCollection(currentRepo, collection.Target)

		newPackages := indexPackagesByPath(collection.Packages)
		currentPackages := indexPackagesByPath(current.Packages)

		for _, path := range orderedKeys(collection.Packages, func(p model.Package) string { return p.Key() }) {
			newPkg := newPackages[path]
			if curPkg, ok := currentPackages[path]; ok {
				if curPkg != newPkg {
					plan.PackagesCopy = append(plan.PackagesCopy, Copy{
						Path: newPkg.Path, Hash: newPkg.Hash, Size: newPkg.Size, IsReplace: true,
					})
				}
			} else {
				plan.PackagesCopy = append(plan.PackagesCopy, Copy{
					Path: newPkg.Path, Hash: newPkg.Hash, Size: newPkg.Size, IsReplace: false,
				})
			}
		}
		for _, path := range orderedKeys(current.Packages, func(p model.Package) string { return p.Key() }) {
			if _, ok := newPackages[path]; !ok {
				plan.PackagesDelete = append(plan.PackagesDelete, Delete{Path: currentPackages[path].Path})
			}
		}

		newIndexes := indexFilesByPath(collection.Indexes)
		currentIndexes := indexFilesByPath(current.Indexes)

		for _, idx := range collection.Indexes {
			curIdx, ok := currentIndexes[idx.Path]
			if ok && idx.SameContent(curIdx) {
				continue
			}
			plan.IndexesCopy = append(plan.IndexesCopy, Copy{
				Path: idx.Path, Hash: idx.Hash, Size: idx.Size, IsReplace: ok, LocalFile: idx.LocalPath,
			})
		}
		for _, idx := range current.Indexes {
			if _, ok := newIndexes[idx.Path]; !ok {
				plan.IndexesDelete = append(plan.IndexesDelete, Delete{Path: idx.Path})
			}
		}
	}

	plan.PackagesCopy = dedupCopy(plan.PackagesCopy)
	plan.PackagesDelete = dedupDelete(plan.PackagesDelete)
	plan.IndexesCopy = dedupCopy(plan.IndexesCopy)
	plan.IndexesDelete = dedupDelete(plan.IndexesDelete)
	return plan
}

func findCollection(repo model.Repository, target model.Target) model.Collection {
	for _, c := range repo.Collections {
		if targetEqual(c.Target, target) {
			return c
		}
	}
	return model.Collection{Target: target}
}

func targetEqual(a, b model.Target) bool {
	if a.ReleaseName != b.ReleaseName || len(a.Architectures) != len(b.Architectures) {
		return false
	}
	for i := range a.Architectures {
		if a.Architectures[i] != b.Architectures[i] {
			return false
		}
	}
	return true
}

func indexPackagesByPath(packages []model.Package) map[string]model.Package {
	m := make(map[string]model.Package, len(packages))
	for _, p := range packages {
		m[p.Key()] = p
	}
	return m
}

func indexFilesByPath(indexes []model.IndexFile) map[string]model.IndexFile {
	m := make(map[string]model.IndexFile, len(indexes))
	for _, f := range indexes {
		m[f.Path] = f
	}
	return m
}

// orderedKeys returns the key for each item in slice order, used so
// iteration order (and thus plan order) is deterministic and matches
// first-occurrence in the new/current collection rather than map order.
func orderedKeys[T any](items []T, key func(T) string) []string {
	seen := make(map[string]bool, len(items))
	var keys []string
	for _, item := range items {
		k := key(item)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func dedupCopy(list []Copy) []Copy {
	seen := make(map[Copy]bool, len(list))
	var out []Copy
	for _, c := range list {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func dedupDelete(list []Delete) []Delete {
	seen := make(map[Delete]bool, len(list))
	var out []Delete
	for _, d := range list {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
