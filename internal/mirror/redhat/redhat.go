// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package redhat parses and fetches Red Hat/YUM-style repository
// metadata: repodata/repomd.xml (the index of metadata files) and the
// primary.xml(.gz) it references, which lists the mirrored packages.
package redhat

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/zextras/mirrord/internal/mirror/model"
	"github.com/zextras/mirrord/internal/mirror/store"
)

// repomdEntry is one <data type="..."> child of repomd.xml.
type repomdEntry struct {
	Type     string
	Location string
	Hash     model.Hash
	Size     uint64
}

// ParseRepomd walks repomd.xml and returns one repomdEntry per <data>
// element, capturing its type attribute, location@href, checksum text
// (assumed sha1, matching the upstream convention) and numeric size.
func ParseRepomd(r io.Reader) ([]repomdEntry, error) {
	dec := xml.NewDecoder(r)
	var entries []repomdEntry
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, model.New(model.InvalidData, "invalid xml: "+err.Error())
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "data" {
			continue
		}
		entry, err := parseRepomdData(dec, attrOr(start, "type", "unknown"))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func attrOr(start xml.StartElement, local, fallback string) string {
	for _, a := range start.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return fallback
}

func findAttr(start xml.StartElement, local string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func parseRepomdData(dec *xml.Decoder, typ string) (repomdEntry, error) {
	entry := repomdEntry{Type: typ}
	lastTag := "data"
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return repomdEntry{}, model.New(model.InvalidData, "invalid xml: "+err.Error())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			lastTag = t.Name.Local
			if t.Name.Local == "location" {
				href, ok := findAttr(t, "href")
				if !ok {
					return repomdEntry{}, model.New(model.InvalidData, "missing href from location")
				}
				entry.Location = href
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch lastTag {
			case "checksum":
				entry.Hash = model.Hash{Kind: model.HashSHA1, Hex: text}
			case "size":
				size, err := strconv.ParseUint(text, 10, 64)
				if err != nil {
					return repomdEntry{}, model.New(model.InvalidData, "invalid size: "+err.Error())
				}
				entry.Size = size
			}
		case xml.EndElement:
			if t.Name.Local == "data" {
				return entry, nil
			}
		}
	}
	return entry, nil
}

// ParsePrimary walks a primary.xml document and returns one Package per
// <package> element.
func ParsePrimary(r io.Reader) ([]model.Package, error) {
	dec := xml.NewDecoder(r)
	var packages []model.Package
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, model.New(model.InvalidData, "invalid xml: "+err.Error())
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "package" {
			continue
		}
		pkg, err := parsePackage(dec)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, nil
}

func parsePackage(dec *xml.Decoder) (model.Package, error) {
	var pkg model.Package
	lastTag := "package"
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.Package{}, model.New(model.InvalidData, "invalid xml: "+err.Error())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			lastTag = t.Name.Local
			switch t.Name.Local {
			case "location":
				href, ok := findAttr(t, "href")
				if !ok {
					return model.Package{}, model.New(model.InvalidData, "missing href from location")
				}
				pkg.Path = href
			case "size":
				size, ok := findAttr(t, "package")
				if !ok {
					return model.Package{}, model.New(model.InvalidData, "invalid size tag")
				}
				parsed, err := strconv.ParseUint(size, 10, 64)
				if err != nil {
					return model.Package{}, model.New(model.InvalidData, "invalid size: "+err.Error())
				}
				pkg.Size = parsed
			case "version":
				epoch, okE := findAttr(t, "epoch")
				ver, okV := findAttr(t, "ver")
				rel, okR := findAttr(t, "rel")
				if !okE || !okV || !okR {
					return model.Package{}, model.New(model.InvalidData, "invalid version tag")
				}
				pkg.Version = ver + "-" + rel + "-" + epoch
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch lastTag {
			case "name":
				pkg.Name = text
			case "arch":
				pkg.Architecture = text
			case "checksum":
				pkg.Hash = model.Hash{Kind: model.HashSHA1, Hex: text}
			}
		case xml.EndElement:
			if t.Name.Local == "package" {
				return pkg, nil
			}
		}
	}
	return pkg, nil
}

// FetchRepository builds the single Collection a Red Hat repository
// produces: fetch repodata/repomd.xml, probe its optional detached
// ".asc" signature, then fetch every entry it lists, transparently
// gunzipping and parsing packages out of the "primary" entry.
// Architectures of the resulting Target are the set observed across
// packages, in first-seen order.
func FetchRepository(ctx context.Context, s store.MetadataStore, repoName string) (model.Repository, error) {
	const repomdPath = "repodata/repomd.xml"

	localPath, r, size, err := s.Fetch(ctx, repomdPath)
	if err != nil {
		return model.Repository{}, errors.Wrap(err, "cannot fetch repomd.xml")
	}
	entries, err := ParseRepomd(r)
	r.Close()
	if err != nil {
		return model.Repository{}, errors.Wrap(err, "cannot parse repomd.xml")
	}

	collection := model.Collection{}

	var detached []byte
	ascLocalPath, ascR, ascSize, ascErr := s.Fetch(ctx, repomdPath+".asc")
	if ascErr == nil {
		detached, err = io.ReadAll(ascR)
		ascR.Close()
		if err != nil {
			return model.Repository{}, errors.Wrap(err, "reading repomd.xml.asc")
		}
		_ = ascLocalPath
		_ = ascSize
	} else if model.KindOf(ascErr) != model.NotFound {
		return model.Repository{}, ascErr
	}

	anchor := model.IndexFile{LocalPath: localPath, Path: repomdPath, Size: size}
	if detached != nil {
		anchor.Signature = model.Signature{Kind: model.SignaturePGPExternal, Detached: detached}
	}
	collection.Indexes = append(collection.Indexes, anchor)

	for _, entry := range entries {
		localPath, r, size, err := s.Fetch(ctx, entry.Location)
		if err != nil {
			return model.Repository{}, errors.Wrapf(err, "cannot fetch %s", entry.Location)
		}

		if entry.Type == "primary" {
			var body io.Reader = r
			if strings.HasSuffix(entry.Location, ".gz") {
				gz, err := gzip.NewReader(r)
				if err != nil {
					r.Close()
					return model.Repository{}, errors.Wrap(err, "cannot gunzip primary.xml")
				}
				defer gz.Close()
				body = gz
			}
			packages, err := ParsePrimary(body)
			r.Close()
			if err != nil {
				return model.Repository{}, errors.Wrap(err, "cannot parse primary.xml")
			}
			collection.Packages = append(collection.Packages, packages...)
		} else {
			r.Close()
		}

		collection.Indexes = append(collection.Indexes, model.IndexFile{
			LocalPath: localPath,
			Path:      entry.Location,
			Size:      size,
			Hash:      entry.Hash,
		})
	}

	seen := map[string]bool{}
	for _, p := range collection.Packages {
		if !seen[p.Architecture] {
			seen[p.Architecture] = true
			collection.Target.Architectures = append(collection.Target.Architectures, p.Architecture)
		}
	}

	return model.Repository{Name: repoName, Collections: []model.Collection{collection}}, nil
}
