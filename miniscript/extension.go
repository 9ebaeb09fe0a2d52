// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"strings"
	"sync"

	"github.com/btcsuite/btcd/txscript"
)

// Extension is a terminal fragment kind that is not part of miniscript
// itself, such as the Elements transaction introspection checks. An
// extension declares its own terminal type; the generic composition rules
// then treat it like any other terminal.
//
// Extensions must not consume witness elements, i.e. their type must have
// the z property.
type Extension interface {
	// Name is the fragment identifier, e.g. "num_in_eq".
	Name() string

	// Args returns the textual arguments in canonical form.
	Args() []string

	// Type returns the terminal type.
	Type() Type

	// ScriptLen returns the length of the encoded script.
	ScriptLen() int

	// OpCount returns the number of non-push opcodes.
	OpCount() int

	// Encode appends the script to b. verify is true if the final
	// OP_EQUAL should be emitted as OP_EQUALVERIFY, which only happens
	// for extensions with the x property below a v: wrapper.
	Encode(b *txscript.ScriptBuilder, verify bool) error

	// Satisfied evaluates the condition against the spending
	// transaction.
	Satisfied(env TxEnv) (bool, error)
}

// ExtensionParser creates an extension from the textual arguments of
// `name(args...)`.
type ExtensionParser func(args []string) (Extension, error)

var (
	extensionsMtx sync.RWMutex
	extensions    = make(map[string]ExtensionParser)
)

// reservedNames are the identifiers of all fragments and sugar which
// extensions cannot take over.
var reservedNames = map[string]struct{}{
	"0": {}, "1": {}, "pk": {}, "pkh": {}, "pk_k": {}, "pk_h": {},
	"sha256": {}, "hash256": {}, "ripemd160": {}, "hash160": {},
	"older": {}, "after": {}, "andor": {}, "and_v": {}, "and_b": {},
	"and_n": {}, "or_b": {}, "or_c": {}, "or_d": {}, "or_i": {},
	"thresh": {}, "multi": {},
}

// RegisterExtension adds a new terminal kind that can be parsed as
// `name(args...)` by miniscript and policy parsers.
func RegisterExtension(name string, parser ExtensionParser) error {
	if _, ok := reservedNames[name]; ok || name == "" ||
		strings.ContainsAny(name, ":(),") {

		return fragmentErrorf(ErrUnknownExtension, "invalid extension "+
			"name %q", name)
	}

	extensionsMtx.Lock()
	defer extensionsMtx.Unlock()

	if _, ok := extensions[name]; ok {
		return fragmentErrorf(ErrUnknownExtension, "extension %q "+
			"already registered", name)
	}
	extensions[name] = parser
	log.Debugf("Registered extension %s", name)
	return nil
}

// LookupExtension returns the parser of a registered extension.
func LookupExtension(name string) (ExtensionParser, bool) {
	extensionsMtx.RLock()
	defer extensionsMtx.RUnlock()

	parser, ok := extensions[name]
	return parser, ok
}

// ParseExtension creates the extension terminal `name(args...)`.
func ParseExtension(name string, args []string) (*Fragment, error) {
	parser, ok := LookupExtension(name)
	if !ok {
		return nil, fragmentErrorf(ErrUnknownExtension, "unknown "+
			"fragment %q", name)
	}
	ext, err := parser(args)
	if err != nil {
		return nil, err
	}
	return NewExt(ext)
}

func extString(ext Extension) string {
	return ext.Name() + "(" + strings.Join(ext.Args(), ",") + ")"
}
