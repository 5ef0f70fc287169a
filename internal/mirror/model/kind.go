// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

package model

import "github.com/pkg/errors"

// Kind classifies a failure the way spec section 7 requires, independent
// of the underlying Go error chain, so callers can branch on "was this a
// 404" or "was this a lock contention" without string matching.
type Kind int

const (
	Other Kind = iota
	NotFound
	InvalidData
	WouldBlock
	Transport
	Permission
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case InvalidData:
		return "invalid-data"
	case WouldBlock:
		return "would-block"
	case Transport:
		return "transport"
	case Permission:
		return "permission"
	default:
		return "other"
	}
}

// kindError pairs a Kind with a wrapped cause, implementing error and
// unwrap so errors.Is/errors.As and pkg/errors.Cause both see through it.
type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.String()
	}
	return e.kind.String() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() error { return e.cause }

// Wrap annotates err with a Kind, preserving it in the error chain.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: errors.Wrap(err, msg)}
}

// New creates a new Kind-tagged error with no underlying cause.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, cause: errors.New(msg)}
}

// KindOf walks err's chain looking for a Kind annotation, returning Other
// if none is found.
func KindOf(err error) Kind {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return Other
}

// Is reports whether err's chain carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
