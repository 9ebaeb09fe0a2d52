// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"fmt"
)

// ErrorKind identifies a kind of error. It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrChecksum indicates a malformed checksum suffix or a character
	// outside of the descriptor character set.
	ErrChecksum = ErrorKind("ErrChecksum")

	// ErrChecksumMismatch indicates a well formed checksum which does not
	// match the descriptor text.
	ErrChecksumMismatch = ErrorKind("ErrChecksumMismatch")

	// ErrParse indicates a descriptor text with an unknown template or a
	// malformed structure.
	ErrParse = ErrorKind("ErrParse")

	// ErrKey indicates an invalid key expression.
	ErrKey = ErrorKind("ErrKey")

	// ErrDerivation indicates a descriptor or key that cannot be derived
	// at the requested index.
	ErrDerivation = ErrorKind("ErrDerivation")

	// ErrNoScript indicates a script was requested that the descriptor
	// template does not have, such as the witness script of a pkh
	// descriptor.
	ErrNoScript = ErrorKind("ErrNoScript")

	// ErrNotSatisfiable indicates a descriptor that can never be
	// satisfied, so it has no satisfaction weight.
	ErrNotSatisfiable = ErrorKind("ErrNotSatisfiable")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error related to a descriptor. It has full support
// for errors.Is and errors.As, so the caller can ascertain the specific
// reason for the error by checking the underlying error.
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

// descriptorError creates an Error given a set of arguments.
func descriptorError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// descriptorErrorf creates an Error given a format string.
func descriptorErrorf(kind ErrorKind, format string,
	args ...interface{}) Error {

	return Error{Err: kind, Description: fmt.Sprintf(format, args...)}
}
