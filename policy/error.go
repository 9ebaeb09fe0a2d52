// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

import (
	"fmt"
)

// ErrorKind identifies a kind of error. It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrParse indicates a policy text could not be parsed.
	ErrParse = ErrorKind("ErrParse")

	// ErrMalformedPolicy indicates a policy node was constructed with the
	// wrong number or shape of arguments.
	ErrMalformedPolicy = ErrorKind("ErrMalformedPolicy")

	// ErrInfeasible indicates no well typed, non-malleable miniscript
	// exists for a policy.
	ErrInfeasible = ErrorKind("ErrInfeasible")

	// ErrTooComplex indicates a policy exceeds the configured depth or
	// leaf limits of the compiler.
	ErrTooComplex = ErrorKind("ErrTooComplex")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error related to a policy. It has full support for
// errors.Is and errors.As, so the caller can ascertain the specific reason
// for the error by checking the underlying error.
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

// policyErrorf creates an Error given a set of arguments.
func policyErrorf(kind ErrorKind, format string, args ...interface{}) Error {
	return Error{Err: kind, Description: fmt.Sprintf(format, args...)}
}

// CompileError is returned when a policy cannot be compiled. Policy is the
// text of the offending sub-policy and Cause, if set, the error of the last
// miniscript candidate that was rejected for it.
type CompileError struct {
	Kind   ErrorKind
	Policy string
	Cause  error
}

// Error satisfies the error interface and prints human-readable errors.
func (e *CompileError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Policy)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Policy, e.Cause)
}

// Unwrap returns both the kind and the cause, so errors.Is matches
// ErrInfeasible as well as miniscript errors such as ErrTimelockMix.
func (e *CompileError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
