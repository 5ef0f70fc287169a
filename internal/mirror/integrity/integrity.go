// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package integrity verifies the two trust mechanisms the mirror relies
// on before publishing anything to a destination: content hashes declared
// by upstream metadata, and PGP signatures over Release/repomd.xml in
// either cleartext-embedded or detached form.
package integrity

import (
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/clearsign"

	"github.com/zextras/mirrord/internal/mirror/model"
)

// KeyRing wraps the single signed public key the mirror trusts for a
// repository. config.Validate parses the configured key at load time, so
// a malformed key fails config loading; the sync engine parses it again
// for each sync. A nil *KeyRing means no key is configured, matching
// spec.md's "public_pgp_key optional".
type KeyRing struct {
	entities openpgp.EntityList
}

// ParseKeyRing parses an ASCII-armored public key block. Key
// self-verification failure (a malformed or unparsable key) is treated
// as a configuration error, per spec §4.5.
func ParseKeyRing(armored []byte) (*KeyRing, error) {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armored))
	if err != nil {
		return nil, errors.Wrap(err, "parsing configured PGP public key")
	}
	return &KeyRing{entities: entities}, nil
}

// VerifyHash streams r through h's declared digest and reports whether it
// matches. A HashNone Hash always verifies (no-op).
func VerifyHash(h model.Hash, r io.Reader) (bool, error) {
	ok, err := h.Verify(r)
	if err != nil {
		return false, errors.Wrap(err, "verifying hash")
	}
	return ok, nil
}

// VerifyDetached verifies an ASCII-armored detached signature over data
// using the configured key ring. A nil KeyRing verifies trivially (no key
// configured means signature checking was not requested).
func VerifyDetached(kr *KeyRing, data []byte, signature []byte) error {
	if kr == nil {
		return nil
	}
	_, err := openpgp.CheckArmoredDetachedSignature(kr.entities, bytes.NewReader(data), bytes.NewReader(signature), nil)
	if err != nil {
		return model.Wrap(model.InvalidData, err, "detached PGP signature verification failed")
	}
	return nil
}

// VerifyEmbedded splits a cleartext-signed document (such as InRelease)
// the way clearsign documents are laid out: the body follows the first
// blank line and the trailing "-----BEGIN PGP SIGNATURE-----" block is a
// detached-style signature over that body. It returns the signed body so
// callers can still parse it as a Release document, alongside any
// verification error.
func VerifyEmbedded(kr *KeyRing, document []byte) (body []byte, err error) {
	block, _ := clearsign.Decode(document)
	if block != nil {
		if kr != nil {
			if _, err := openpgp.CheckDetachedSignature(kr.entities, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil); err != nil {
				return nil, model.Wrap(model.InvalidData, err, "embedded PGP signature verification failed")
			}
		}
		return block.Bytes, nil
	}
	// Fall back to the original's manual split on blank line + signature
	// marker, for documents that aren't valid OpenPGP cleartext framing
	// but still carry the trailing signature block in-line.
	const marker = "\n-----BEGIN PGP SIGNATURE-----"
	idx := strings.Index(string(document), marker)
	if idx < 0 {
		return document, nil
	}
	bodyAndHeader := document[:idx]
	sigText := document[idx+1:]
	blankIdx := bytes.Index(bodyAndHeader, []byte("\n\n"))
	if blankIdx < 0 {
		return bodyAndHeader, nil
	}
	body = bodyAndHeader[blankIdx+2:]
	if kr != nil {
		block, err := armor.Decode(bytes.NewReader(sigText))
		if err != nil {
			return nil, model.Wrap(model.InvalidData, err, "decoding embedded PGP signature")
		}
		if _, err := openpgp.CheckDetachedSignature(kr.entities, bytes.NewReader(body), block.Body, nil); err != nil {
			return nil, model.Wrap(model.InvalidData, err, "embedded PGP signature verification failed")
		}
	}
	return body, nil
}

// Verify dispatches on sig.Kind: None is a no-op, PGPExternal verifies
// data against sig.Detached, PGPEmbedded treats data itself as the
// cleartext document to split and verify.
func Verify(kr *KeyRing, sig model.Signature, data []byte) error {
	switch sig.Kind {
	case model.SignatureNone:
		return nil
	case model.SignaturePGPExternal:
		return VerifyDetached(kr, data, sig.Detached)
	case model.SignaturePGPEmbedded:
		_, err := VerifyEmbedded(kr, data)
		return err
	default:
		return model.New(model.Other, "unknown signature kind")
	}
}
