// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

package integrity

import (
	"bytes"
	"crypto"
	"strings"
	"testing"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/clearsign"
	"golang.org/x/crypto/openpgp/packet"

	"github.com/zextras/mirrord/internal/mirror/model"
)

func TestVerifyHashNoneAlwaysPasses(t *testing.T) {
	ok, err := VerifyHash(model.Hash{Kind: model.HashNone}, strings.NewReader("anything"))
	if err != nil || !ok {
		t.Fatalf("VerifyHash(none) = %v, %v", ok, err)
	}
}

func TestVerifyHashSHA256(t *testing.T) {
	h := model.Hash{Kind: model.HashSHA256, Hex: "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb"}
	ok, err := VerifyHash(h, strings.NewReader("a"))
	if err != nil {
		t.Fatalf("VerifyHash: %v", err)
	}
	if !ok {
		t.Errorf("expected hash to verify")
	}
}

func generateTestEntity(t *testing.T) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity("mirrord test", "", "test@example.com", &packet.Config{})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	for _, id := range entity.Identities {
		if err := id.SelfSignature.SignUserId(id.UserId.Id, entity.PrimaryKey, entity.PrivateKey, nil); err != nil {
			t.Fatalf("SignUserId: %v", err)
		}
	}
	return entity
}

func armoredPublicKey(t *testing.T, entity *openpgp.Entity) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestVerifyDetachedSignatureRoundTrip(t *testing.T) {
	entity := generateTestEntity(t)
	kr, err := ParseKeyRing(armoredPublicKey(t, entity))
	if err != nil {
		t.Fatalf("ParseKeyRing: %v", err)
	}

	data := []byte("dists/focal/Release contents")
	var sigBuf bytes.Buffer
	w, err := armor.Encode(&sigBuf, openpgp.SignatureType, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := openpgp.DetachSign(w, entity, bytes.NewReader(data), &packet.Config{DefaultHash: crypto.SHA256}); err != nil {
		t.Fatalf("DetachSign: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if err := VerifyDetached(kr, data, sigBuf.Bytes()); err != nil {
		t.Errorf("VerifyDetached: %v", err)
	}
	if err := VerifyDetached(kr, []byte("tampered"), sigBuf.Bytes()); err == nil {
		t.Errorf("expected VerifyDetached to fail for tampered data")
	}
}

func TestVerifyEmbeddedClearsignRoundTrip(t *testing.T) {
	entity := generateTestEntity(t)
	kr, err := ParseKeyRing(armoredPublicKey(t, entity))
	if err != nil {
		t.Fatalf("ParseKeyRing: %v", err)
	}

	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, entity.PrivateKey, &packet.Config{DefaultHash: crypto.SHA256})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("Codename: focal\nComponents: main\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	body, err := VerifyEmbedded(kr, buf.Bytes())
	if err != nil {
		t.Fatalf("VerifyEmbedded: %v", err)
	}
	if !strings.Contains(string(body), "Codename: focal") {
		t.Errorf("body = %q, expected signed content", body)
	}
}

func TestVerifyNilKeyRingSkipsCheck(t *testing.T) {
	sig := model.Signature{Kind: model.SignaturePGPExternal, Detached: []byte("not even a real signature")}
	if err := Verify(nil, sig, []byte("data")); err != nil {
		t.Errorf("expected nil KeyRing to skip verification, got %v", err)
	}
}

func TestVerifyNoneSignature(t *testing.T) {
	if err := Verify(nil, model.Signature{Kind: model.SignatureNone}, []byte("data")); err != nil {
		t.Errorf("Verify(none) = %v, want nil", err)
	}
}
