// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHashVerify(t *testing.T) {
	tests := []struct {
		name string
		h    Hash
		data string
		want bool
	}{
		{"none always verifies", Hash{Kind: HashNone}, "anything", true},
		{"sha256 match", Hash{Kind: HashSHA256, Hex: "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb"}, "a", true},
		{"sha256 mismatch", Hash{Kind: HashSHA256, Hex: "deadbeef"}, "a", false},
		{"sha1 case insensitive", Hash{Kind: HashSHA1, Hex: "86F7E437FAA5A7FCE15D1DDCB9EAEAEA377667B8"}, "a", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.h.Verify(strings.NewReader(tc.data))
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got != tc.want {
				t.Errorf("Verify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHashEqual(t *testing.T) {
	a := Hash{Kind: HashSHA256, Hex: "ABCD"}
	b := Hash{Kind: HashSHA256, Hex: "abcd"}
	if !a.Equal(b) {
		t.Errorf("expected case-insensitive hash equality")
	}
	c := Hash{Kind: HashSHA1, Hex: "abcd"}
	if a.Equal(c) {
		t.Errorf("expected kind mismatch to break equality")
	}
}

func TestPackageSameVersion(t *testing.T) {
	p1 := Package{Name: "foo", Version: "1.0", Architecture: "amd64", Path: "pool/f/foo_1.0_amd64.deb"}
	p2 := Package{Name: "foo", Version: "1.0", Architecture: "amd64", Path: "pool/f/foo_1.0_amd64.deb.new"}
	if !p1.SameVersion(p2) {
		t.Errorf("expected same-version packages to match regardless of path")
	}
	p3 := Package{Name: "foo", Version: "2.0", Architecture: "amd64"}
	if p1.SameVersion(p3) {
		t.Errorf("expected version mismatch to break SameVersion")
	}
}

func TestIndexFileSameContent(t *testing.T) {
	a := IndexFile{Path: "dists/focal/Release", Size: 10, Hash: Hash{Kind: HashSHA256, Hex: "aa"}}
	b := a
	b.LocalPath = "/tmp/whatever"
	if !a.SameContent(b) {
		t.Errorf("expected SameContent to ignore LocalPath")
	}
	b.Size = 11
	if a.SameContent(b) {
		t.Errorf("expected size mismatch to break SameContent")
	}
}

func TestRepositoryTotalSize(t *testing.T) {
	r := Repository{
		Name: "test",
		Collections: []Collection{
			{Packages: []Package{{Size: 10}, {Size: 20}}},
			{Packages: []Package{{Size: 5}}},
		},
	}
	if got, want := r.TotalSize(), uint64(35); got != want {
		t.Errorf("TotalSize() = %d, want %d", got, want)
	}
}

func TestKindWrapAndUnwrap(t *testing.T) {
	base := New(NotFound, "missing Release")
	wrapped := Wrap(Transport, base, "fetching release")
	if KindOf(wrapped) != Transport {
		t.Errorf("KindOf(wrapped) = %v, want Transport", KindOf(wrapped))
	}
	if !Is(wrapped, Transport) {
		t.Errorf("expected Is(wrapped, Transport) to hold")
	}
	if diff := cmp.Diff("transport: fetching release: not-found: missing Release", wrapped.Error()); diff != "" {
		t.Errorf("Error() mismatch (-want +got):\n%s", diff)
	}
}

func TestKindOfDefaultsToOther(t *testing.T) {
	if KindOf(nil) != Other {
		t.Errorf("expected nil error to classify as Other")
	}
}
