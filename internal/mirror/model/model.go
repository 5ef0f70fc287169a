// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package model holds the value types shared across the mirror pipeline:
// hashes, signatures, packages, index files, targets, collections and
// repositories, plus the small error-kind taxonomy used to classify
// failures across fetch, parse, and sync boundaries.
package model

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// HashKind tags which digest algorithm, if any, a Hash carries.
type HashKind int

const (
	HashNone HashKind = iota
	HashSHA1
	HashSHA256
)

// Hash is a tagged digest: either absent, or a hex-encoded SHA-1/SHA-256 sum.
// Equality is by kind plus case-insensitive hex comparison.
type Hash struct {
	Kind HashKind
	Hex  string
}

// Equal reports whether two hashes carry the same kind and value.
func (h Hash) Equal(o Hash) bool {
	if h.Kind != o.Kind {
		return false
	}
	if h.Kind == HashNone {
		return true
	}
	return strings.EqualFold(h.Hex, o.Hex)
}

func (h Hash) String() string {
	switch h.Kind {
	case HashSHA1:
		return "sha1:" + h.Hex
	case HashSHA256:
		return "sha256:" + h.Hex
	default:
		return "none"
	}
}

// newDigest returns the hash.Hash for this Hash's kind, or nil for HashNone.
func (h Hash) newDigest() hash.Hash {
	switch h.Kind {
	case HashSHA1:
		return sha1.New()
	case HashSHA256:
		return sha256.New()
	default:
		return nil
	}
}

// Verify streams r in 4KiB chunks through the declared digest and compares
// the result against the stored hex value. A HashNone always verifies.
func (h Hash) Verify(r io.Reader) (bool, error) {
	d := h.newDigest()
	if d == nil {
		return true, nil
	}
	buf := make([]byte, 4096)
	if _, err := io.CopyBuffer(d, r, buf); err != nil {
		return false, errors.Wrap(err, "reading stream for hash verification")
	}
	return strings.EqualFold(hex.EncodeToString(d.Sum(nil)), h.Hex), nil
}

// SignatureKind tags which form, if any, a Signature takes.
type SignatureKind int

const (
	SignatureNone SignatureKind = iota
	SignaturePGPEmbedded
	SignaturePGPExternal
)

// Signature is a tagged variant over the three ways a payload may be signed:
// unsigned, cleartext-signed in-band (pgp-embedded), or covered by a
// separate detached ASCII-armored signature (pgp-external).
type Signature struct {
	Kind SignatureKind
	// Detached holds the raw bytes of the ASCII-armored detached signature
	// for SignaturePGPExternal. Unused for the other kinds.
	Detached []byte
}

// Package is one mirrored artifact: a .deb or .rpm file, keyed by its
// relative object path. Two Packages are "same version" iff name, version
// and architecture all match.
type Package struct {
	Name         string
	Version      string
	Architecture string
	Path         string
	Hash         Hash
	Size         uint64
}

// SameVersion reports whether p and o name the same name/version/arch triple.
func (p Package) SameVersion(o Package) bool {
	return p.Name == o.Name && p.Version == o.Version && p.Architecture == o.Architecture
}

// Key is the diff-comparison key for a Package: its destination path.
func (p Package) Key() string { return p.Path }

// IndexFile is a piece of repository metadata (Release, Packages,
// repomd.xml, primary.xml, ...): a local cache file paired with its
// server-relative path, declared size, hash and signature.
type IndexFile struct {
	// LocalPath is the file's location in the (live or saved) metadata
	// store cache; empty if only the remote path is known.
	LocalPath string
	// Path is the path relative to the repository root, e.g.
	// "dists/focal/Release" or "repodata/repomd.xml".
	Path      string
	Size      uint64
	Hash      Hash
	Signature Signature
}

// SameContent reports whether two IndexFiles describe the same object:
// path, size and hash all equal. Signatures are not compared.
func (f IndexFile) SameContent(o IndexFile) bool {
	return f.Path == o.Path && f.Size == o.Size && f.Hash.Equal(o.Hash)
}

// Target identifies one logical sub-repository within a Repository: a
// Debian codename with its architectures, or (for Red Hat, which has no
// codename concept) an anonymous target whose architectures are derived
// from the packages observed.
type Target struct {
	ReleaseName  string
	Architectures []string
}

// Collection holds all metadata and package references for one Target.
// Invariant: every Package referenced by an index is present in Packages;
// every IndexFile referenced by the top-level anchor (Release/repomd.xml)
// is present in Indexes; the anchor itself is always Indexes[0].
type Collection struct {
	Target   Target
	Indexes  []IndexFile
	Packages []Package
}

// RepoStatus is a repo's live sync state, reported by the control API
// alongside its SyncStatus.
type RepoStatus int

const (
	RepoWaiting RepoStatus = iota
	RepoSyncing
)

func (s RepoStatus) String() string {
	if s == RepoSyncing {
		return "syncing"
	}
	return "waiting"
}

// Repository is an immutable snapshot of one configured repo, produced
// either by fetching from upstream into a live metadata store or by
// loading the saved metadata store from disk.
type Repository struct {
	Name        string
	Collections []Collection
}

// Empty returns a Repository with the given name and no collections, used
// as the "current" side of a diff when no saved snapshot exists yet.
func Empty(name string) Repository {
	return Repository{Name: name}
}

// TotalSize sums package sizes across all collections, the spec's
// definition of a saved snapshot's reported size.
func (r Repository) TotalSize() uint64 {
	var total uint64
	for _, c := range r.Collections {
		for _, p := range c.Packages {
			total += p.Size
		}
	}
	return total
}
