// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package debian parses and fetches Debian/APT repository metadata:
// dists/<codename>/Release (and its optional InRelease/Release.gpg
// siblings) plus the Packages indexes it references.
package debian

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/zextras/mirrord/internal/mirror/model"
	"github.com/zextras/mirrord/internal/mirror/store"
)

// release is the parsed form of a dists/<codename>/Release file: the
// stanza fields the sync engine needs plus the SHA256 block's IndexFiles.
type release struct {
	Codename      string
	Components    []string
	Architectures []string
	Indexes       []model.IndexFile
}

var sha256LineRE = regexp.MustCompile(`^ *([a-z0-9]+) *([0-9]+) *(.*)$`)

// ParseRelease parses a dists/<codename>/Release document. Recognized
// stanza keys are Codename, Components, Architectures and SHA256; a
// SHA256 key introduces a block of "hex size relative-path" lines (one
// per following indented line) until the next non-indented line. MD5Sum
// and SHA1 blocks are ignored. basePath prefixes each resulting index's
// Path (typically "dists/<codename>").
func ParseRelease(r io.Reader, basePath string) (release, error) {
	var rel release
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	parsingSHA256 := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, " ") {
			if !parsingSHA256 {
				continue
			}
			m := sha256LineRE.FindStringSubmatch(line)
			if m == nil {
				return release{}, model.New(model.InvalidData, "cannot parse release file, invalid line: "+line)
			}
			size, err := strconv.ParseUint(m[2], 10, 64)
			if err != nil {
				return release{}, model.New(model.InvalidData, "cannot parse release file, invalid number in line: "+line)
			}
			rel.Indexes = append(rel.Indexes, model.IndexFile{
				Path: basePath + "/" + m[3],
				Size: size,
				Hash: model.Hash{Kind: model.HashSHA256, Hex: m[1]},
			})
			continue
		}
		parsingSHA256 = false

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return release{}, model.New(model.InvalidData, "cannot parse release file, invalid line: "+line)
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Codename":
			rel.Codename = value
		case "Components":
			rel.Components = strings.Split(value, " ")
		case "Architectures":
			rel.Architectures = strings.Split(value, " ")
		case "SHA256":
			parsingSHA256 = true
		}
	}
	if err := scanner.Err(); err != nil {
		return release{}, errors.Wrap(err, "scanning release file")
	}
	return rel, nil
}

// ParsePackages parses a Packages index: RFC-822-ish paragraphs separated
// by blank lines, with continuation lines (leading space) appended to the
// previous value. Recognized keys map Package->Name, Version->Version,
// Architecture->Architecture, Filename->Path, SHA256->Hash, Size->Size.
func ParsePackages(r io.Reader) ([]model.Package, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var packages []model.Package
	var key, value string
	current := model.Package{}

	flush := func() error {
		if key == "" {
			return nil
		}
		switch key {
		case "Package":
			current.Name = value
		case "Version":
			current.Version = value
		case "Architecture":
			current.Architecture = value
		case "Filename":
			current.Path = value
		case "SHA256":
			current.Hash = model.Hash{Kind: model.HashSHA256, Hex: value}
		case "Size":
			clean := strings.TrimSpace(value)
			size, err := strconv.ParseUint(clean, 10, 64)
			if err != nil {
				return model.New(model.InvalidData, "invalid number "+clean)
			}
			current.Size = size
		}
		key, value = "", ""
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			if current.Name != "" {
				packages = append(packages, current)
				current = model.Package{}
			}
			continue
		}
		if strings.HasPrefix(line, " ") {
			value += line[1:]
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok || len(v) == 0 {
			return nil, model.New(model.InvalidData, "invalid line "+line)
		}
		key = k
		if len(v) > 0 && v[0] == ' ' {
			v = v[1:]
		}
		value = v
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning packages file")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if current.Name != "" {
		packages = append(packages, current)
	}
	return packages, nil
}

// optionalIndexKind describes how an optional sibling index
// (InRelease/Release.gpg) should be folded into the collection.
type optionalIndexKind int

const (
	optionalEmbeddedSignature optionalIndexKind = iota
	optionalDetachedSignatureSource
)

// addOptionalIndex fetches path through state; a NotFound is swallowed
// (the index is genuinely optional). On success it appends an IndexFile
// to *indexes (for InRelease) or returns the reader body (for
// Release.gpg, whose content becomes the detached signature on Release).
func addOptionalIndex(ctx context.Context, s store.MetadataStore, path string, indexes *[]model.IndexFile, kind optionalIndexKind) ([]byte, error) {
	localPath, r, size, err := s.Fetch(ctx, path)
	if err != nil {
		if model.KindOf(err) == model.NotFound {
			return nil, nil
		}
		return nil, err
	}
	defer r.Close()
	switch kind {
	case optionalEmbeddedSignature:
		*indexes = append(*indexes, model.IndexFile{
			LocalPath: localPath,
			Path:      path,
			Size:      size,
			Hash:      model.Hash{Kind: model.HashNone},
			Signature: model.Signature{Kind: model.SignaturePGPEmbedded},
		})
		return nil, nil
	default:
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading detached signature")
		}
		return body, nil
	}
}

// FetchRepository builds a Repository for the given codenames from
// endpoint through s, the way fetch_repository/load_repository do in the
// original implementation: s may be a live (write-through) or saved
// (read-only) metadata store, selected by the caller. If allowEmpty is
// set, a codename whose Release 404s is skipped rather than failing the
// whole fetch (useful when bootstrapping a newly configured codename).
func FetchRepository(ctx context.Context, s store.MetadataStore, repoName string, codenames []string, allowEmpty bool) (model.Repository, error) {
	repo := model.Repository{Name: repoName}

	for _, codename := range codenames {
		versionPath := "dists/" + codename
		releasePath := versionPath + "/Release"

		localPath, r, size, err := s.Fetch(ctx, releasePath)
		if err != nil {
			if allowEmpty && model.KindOf(err) == model.NotFound {
				continue
			}
			return model.Repository{}, errors.Wrapf(err, "cannot fetch repo state for %s", codename)
		}
		rel, err := ParseRelease(r, versionPath)
		r.Close()
		if err != nil {
			return model.Repository{}, errors.Wrapf(err, "cannot fetch repo state for %s", codename)
		}

		var indexes []model.IndexFile
		if _, err := addOptionalIndex(ctx, s, versionPath+"/InRelease", &indexes, optionalEmbeddedSignature); err != nil {
			return model.Repository{}, err
		}
		detached, err := addOptionalIndex(ctx, s, versionPath+"/Release.gpg", &indexes, optionalDetachedSignatureSource)
		if err != nil {
			return model.Repository{}, err
		}

		anchor := model.IndexFile{
			LocalPath: localPath,
			Path:      releasePath,
			Size:      size,
			Hash:      model.Hash{Kind: model.HashNone},
		}
		if detached != nil {
			anchor.Signature = model.Signature{Kind: model.SignaturePGPExternal, Detached: detached}
		} else {
			anchor.Signature = model.Signature{Kind: model.SignatureNone}
		}
		indexes = append([]model.IndexFile{anchor}, indexes...)

		var packages []model.Package
		for i := range rel.Indexes {
			idx := &rel.Indexes[i]
			localPath, r, size, err := s.Fetch(ctx, idx.Path)
			if err != nil {
				return model.Repository{}, errors.Wrapf(err, "cannot fetch repo state for %s", codename)
			}
			idx.LocalPath = localPath
			if idx.Size != size {
				r.Close()
				return model.Repository{}, model.New(model.InvalidData, errors.Errorf(
					"wrong file size for '%s', expected: %d found %d", idx.Path, idx.Size, size).Error())
			}
			if strings.HasSuffix(idx.Path, "Packages") {
				pkgs, err := ParsePackages(r)
				r.Close()
				if err != nil {
					return model.Repository{}, errors.Wrapf(err, "cannot fetch repo state for %s", codename)
				}
				packages = append(packages, pkgs...)
			} else {
				r.Close()
			}
		}
		indexes = append(indexes, rel.Indexes...)

		repo.Collections = append(repo.Collections, model.Collection{
			Target: model.Target{
				ReleaseName:   codename,
				Architectures: rel.Architectures,
			},
			Indexes:  indexes,
			Packages: packages,
		})
	}
	return repo, nil
}
