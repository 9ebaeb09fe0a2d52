// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"fmt"
	"strings"
)

// ErrorKind identifies a kind of error. It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrMalformedFragment indicates a fragment was constructed with the
	// wrong number or shape of arguments, e.g. thresh(k,...) with k larger
	// than the number of subexpressions.
	ErrMalformedFragment = ErrorKind("ErrMalformedFragment")

	// ErrParse indicates a miniscript text could not be parsed.
	ErrParse = ErrorKind("ErrParse")

	// ErrTypeCheck indicates a composition rule of the type system was
	// violated.
	ErrTypeCheck = ErrorKind("ErrTypeCheck")

	// ErrTimelockMix indicates a height based and a time based timelock
	// are required together by the same combinator.
	ErrTimelockMix = ErrorKind("ErrTimelockMix")

	// ErrTopLevel indicates a well typed fragment which is not usable as
	// a complete script, e.g. because it is not of type B or exceeds a
	// resource limit of its script context.
	ErrTopLevel = ErrorKind("ErrTopLevel")

	// ErrInsane indicates a fragment which is usable as a script but is
	// unsafe to use: it is malleable, it does not require a signature or
	// it repeats keys.
	ErrInsane = ErrorKind("ErrInsane")

	// ErrKey indicates a key handle could not be parsed or is not
	// concrete.
	ErrKey = ErrorKind("ErrKey")

	// ErrNotSatisfiable indicates no satisfaction could be constructed
	// from the available secrets.
	ErrNotSatisfiable = ErrorKind("ErrNotSatisfiable")

	// ErrNotDissatisfiable indicates the fragment has no canonical
	// dissatisfaction.
	ErrNotDissatisfiable = ErrorKind("ErrNotDissatisfiable")

	// ErrMalleableSatisfaction indicates the only satisfaction that could
	// be constructed can be altered by a third party.
	ErrMalleableSatisfaction = ErrorKind("ErrMalleableSatisfaction")

	// ErrUnknownExtension indicates a name which is neither a fragment nor
	// a registered extension.
	ErrUnknownExtension = ErrorKind("ErrUnknownExtension")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error related to miniscript fragments. It has full
// support for errors.Is and errors.As, so the caller can ascertain the
// specific reason for the error by checking the underlying error.
type Error struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// fragmentError creates an Error given a set of arguments.
func fragmentError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// fragmentErrorf creates an Error with a formatted description.
func fragmentErrorf(kind ErrorKind, format string, args ...interface{}) Error {
	return Error{Err: kind, Description: fmt.Sprintf(format, args...)}
}

// TimelockMixError is returned by the type system when a single combinator
// requires both a block height and a block time lock of the same family.
type TimelockMixError struct {
	// Fragment is the canonical text of the offending combinator.
	Fragment string

	// Family is either "after" (absolute, CLTV) or "older" (relative,
	// CSV).
	Family string
}

// Error satisfies the error interface.
func (e *TimelockMixError) Error() string {
	return fmt.Sprintf("%s mixes height based and time based %s "+
		"timelocks", e.Fragment, e.Family)
}

// Unwrap returns ErrTimelockMix so errors.Is works on the kind.
func (e *TimelockMixError) Unwrap() error {
	return ErrTimelockMix
}

// RequirementKind identifies what a missing requirement of a satisfaction
// is.
type RequirementKind uint8

const (
	// RequireSignature is a signature for a key.
	RequireSignature RequirementKind = iota

	// RequirePreimage is a hash preimage.
	RequirePreimage

	// RequireOlder is a relative timelock which is not yet met.
	RequireOlder

	// RequireAfter is an absolute timelock which is not yet met.
	RequireAfter

	// RequireExtension is an Elements introspection condition which does
	// not hold for the spending transaction.
	RequireExtension
)

// Requirement describes one secret or chain condition which was queried
// from the secret source during satisfaction and was unavailable.
type Requirement struct {
	Kind RequirementKind

	// Key is set for RequireSignature.
	Key Key

	// Hash and HashKind are set for RequirePreimage.
	HashKind HashKind
	Hash     []byte

	// Lock is set for RequireOlder and RequireAfter.
	Lock uint32

	// Extension is set for RequireExtension.
	Extension string
}

// String returns a short human-readable description of the requirement.
func (r Requirement) String() string {
	switch r.Kind {
	case RequireSignature:
		return fmt.Sprintf("signature for %s", r.Key)
	case RequirePreimage:
		return fmt.Sprintf("%s preimage of %x", r.HashKind, r.Hash)
	case RequireOlder:
		return fmt.Sprintf("older(%d) not yet reached", r.Lock)
	case RequireAfter:
		return fmt.Sprintf("after(%d) not yet reached", r.Lock)
	case RequireExtension:
		return fmt.Sprintf("%s does not hold", r.Extension)
	default:
		return "unknown requirement"
	}
}

// NotSatisfiableError is returned by Satisfy when no satisfaction exists for
// the available secrets. Missing lists every requirement that was queried
// and unavailable, in tree order.
type NotSatisfiableError struct {
	Fragment string
	Missing  []Requirement
}

// Error satisfies the error interface.
func (e *NotSatisfiableError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("no satisfaction for %s", e.Fragment)
	}
	missing := make([]string, 0, len(e.Missing))
	for _, r := range e.Missing {
		missing = append(missing, r.String())
	}
	return fmt.Sprintf("no satisfaction for %s, missing: %s", e.Fragment,
		strings.Join(missing, "; "))
}

// Unwrap returns ErrNotSatisfiable so errors.Is works on the kind.
func (e *NotSatisfiableError) Unwrap() error {
	return ErrNotSatisfiable
}

// HasTimelock returns true if one of the missing requirements is a timelock
// that is not yet met.
func (e *NotSatisfiableError) HasTimelock() bool {
	for _, r := range e.Missing {
		if r.Kind == RequireOlder || r.Kind == RequireAfter {
			return true
		}
	}
	return false
}
