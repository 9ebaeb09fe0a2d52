// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/btcsuite/elementsminiscript/expression"
)

// allWrappers are the wrapper letters which may appear before a colon,
// including the sugar wrappers t, l and u.
const allWrappers = "asctdvjnlu"

// Parse parses a miniscript expression with hex encoded keys or placeholder
// names. The result is type checked: a fragment is only returned if it is
// well typed.
//
// The following transformations are applied in order:
//  1. the text is split into a generic expression tree,
//  2. every identifier is checked to have the correct number of arguments,
//  3. syntactic sugar (pk, pkh, and_n) is replaced by its definition,
//  4. wrappers (the letters before a colon) are applied right to left, e.g.
//     dv:older(144) is d(v(older(144))), with t, l and u desugared,
//  5. the constructors compute the types, script lengths and op counts
//     bottom-up.
func Parse(miniscript string) (*Fragment, error) {
	return ParseWithKeys(miniscript, ParseKey)
}

// ParseWithKeys parses a miniscript expression using parseKey for all key
// arguments.
func ParseWithKeys(miniscript string, parseKey KeyParser) (*Fragment,
	error) {

	tree, err := expression.Parse(miniscript)
	if err != nil {
		return nil, fragmentErrorf(ErrParse, "%s: %v", miniscript, err)
	}
	f, err := FromTree(tree, parseKey)
	if err != nil {
		return nil, err
	}
	if _, err := f.Type(); err != nil {
		return nil, err
	}
	return f, nil
}

// FromTree converts a generic expression tree into a fragment. The result
// is not required to be well typed.
func FromTree(tree *expression.Tree, parseKey KeyParser) (*Fragment,
	error) {

	var wrappers, identifier string
	name := tree.Name
	if w, id, ok := strings.Cut(name, ":"); ok {
		wrappers, identifier = w, id
		if wrappers == "" {
			return nil, fragmentErrorf(ErrParse, "no wrappers "+
				"found before colon before identifier: %s",
				identifier)
		}
		if identifier == "" {
			return nil, fragmentErrorf(ErrParse, "no identifier "+
				"found after colon after wrappers: %s",
				wrappers)
		}
		if strings.Contains(identifier, ":") {
			return nil, fragmentErrorf(ErrParse, "invalid number "+
				"of colons in %s", name)
		}
	} else {
		identifier = name
	}

	node, err := fromIdentifier(identifier, tree.Args, parseKey)
	if err != nil {
		return nil, err
	}

	for i := len(wrappers) - 1; i >= 0; i-- {
		if !strings.ContainsRune(allWrappers, rune(wrappers[i])) {
			return nil, fragmentErrorf(ErrParse, "unknown "+
				"wrapper: %c", wrappers[i])
		}
		node, err = applyWrapper(wrappers[i], node)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// expectArgs checks that a fragment has a specific number of arguments.
func expectArgs(identifier string, args []*expression.Tree, num int) error {
	if len(args) != num {
		return fragmentErrorf(ErrMalformedFragment, "%s expects %d "+
			"arguments, got %d", identifier, num, len(args))
	}
	return nil
}

// terminalArg returns the text of an argument which must not contain
// subexpressions, such as a key, a hash or a number.
func terminalArg(identifier string, arg *expression.Tree) (string, error) {
	if !arg.IsLeaf() || strings.Contains(arg.Name, ":") {
		return "", fragmentErrorf(ErrMalformedFragment, "argument of "+
			"%s must not contain subexpressions", identifier)
	}
	return arg.Name, nil
}

// ParseNumber parses an unsigned decimal number of at most 32 bits.
func ParseNumber(s string) (uint32, error) {
	// Leading zeros and signs are not canonical.
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, fragmentErrorf(ErrParse, "invalid number %q", s)
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fragmentErrorf(ErrParse, "invalid number %q", s)
	}
	return uint32(n), nil
}

func fromIdentifier(identifier string, args []*expression.Tree,
	parseKey KeyParser) (*Fragment, error) {

	subs := func(args []*expression.Tree) ([]*Fragment, error) {
		result := make([]*Fragment, len(args))
		for i, arg := range args {
			sub, err := FromTree(arg, parseKey)
			if err != nil {
				return nil, err
			}
			result[i] = sub
		}
		return result, nil
	}
	key := func() (Key, error) {
		if err := expectArgs(identifier, args, 1); err != nil {
			return nil, err
		}
		s, err := terminalArg(identifier, args[0])
		if err != nil {
			return nil, err
		}
		return parseKey(s)
	}

	switch identifier {
	case "0", "1":
		if err := expectArgs(identifier, args, 0); err != nil {
			return nil, err
		}
		if identifier == "0" {
			return False(), nil
		}
		return True(), nil

	case "pk_k", "pk_h", "pk", "pkh":
		k, err := key()
		if err != nil {
			return nil, err
		}
		switch identifier {
		case "pk_k":
			return NewPkK(k)
		case "pk_h":
			return NewPkH(k)
		case "pk":
			return NewPk(k)
		default:
			return NewPkh(k)
		}

	case "sha256", "hash256", "ripemd160", "hash160":
		if err := expectArgs(identifier, args, 1); err != nil {
			return nil, err
		}
		s, err := terminalArg(identifier, args[0])
		if err != nil {
			return nil, err
		}
		digest, err := hex.DecodeString(s)
		if err != nil {
			return nil, fragmentErrorf(ErrParse, "%s: invalid hex "+
				"digest %q", identifier, s)
		}
		kind := map[string]HashKind{
			"sha256":    HashSha256,
			"hash256":   HashHash256,
			"ripemd160": HashRipemd160,
			"hash160":   HashHash160,
		}[identifier]
		return NewHash(kind, digest)

	case "older", "after":
		if err := expectArgs(identifier, args, 1); err != nil {
			return nil, err
		}
		s, err := terminalArg(identifier, args[0])
		if err != nil {
			return nil, err
		}
		n, err := ParseNumber(s)
		if err != nil {
			return nil, err
		}
		if identifier == "older" {
			return NewOlder(n)
		}
		return NewAfter(n)

	case "andor", "and_n":
		want := 3
		if identifier == "and_n" {
			want = 2
		}
		if err := expectArgs(identifier, args, want); err != nil {
			return nil, err
		}
		s, err := subs(args)
		if err != nil {
			return nil, err
		}
		if identifier == "and_n" {
			return NewAndN(s[0], s[1])
		}
		return NewAndOr(s[0], s[1], s[2])

	case "and_v", "and_b", "or_b", "or_c", "or_d", "or_i":
		if err := expectArgs(identifier, args, 2); err != nil {
			return nil, err
		}
		s, err := subs(args)
		if err != nil {
			return nil, err
		}
		kind := map[string]Kind{
			"and_v": KindAndV,
			"and_b": KindAndB,
			"or_b":  KindOrB,
			"or_c":  KindOrC,
			"or_d":  KindOrD,
			"or_i":  KindOrI,
		}[identifier]
		return NewBinary(kind, s[0], s[1])

	case "thresh", "multi":
		if len(args) < 2 {
			return nil, fragmentErrorf(ErrMalformedFragment, "%s "+
				"must have at least two arguments", identifier)
		}
		ks, err := terminalArg(identifier, args[0])
		if err != nil {
			return nil, err
		}
		k, err := ParseNumber(ks)
		if err != nil {
			return nil, err
		}
		if identifier == "thresh" {
			s, err := subs(args[1:])
			if err != nil {
				return nil, err
			}
			return NewThresh(int(k), s)
		}
		keys := make([]Key, 0, len(args)-1)
		for _, arg := range args[1:] {
			s, err := terminalArg(identifier, arg)
			if err != nil {
				return nil, err
			}
			key, err := parseKey(s)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		return NewMulti(int(k), keys)
	}

	extArgs := make([]string, len(args))
	for i, arg := range args {
		s, err := terminalArg(identifier, arg)
		if err != nil {
			return nil, err
		}
		extArgs[i] = s
	}
	return ParseExtension(identifier, extArgs)
}
