// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package expression parses the `name(arg1,arg2,...)` notation shared by
// miniscript fragments, spending policies and output descriptors into a
// generic tree.
//
// The parser does not know anything about the meaning of the names. A bare
// word such as a key, a hash or a number is represented as a Tree without
// arguments.
package expression

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnbalanced is returned when the parentheses of an expression do
	// not match up.
	ErrUnbalanced = errors.New("unbalanced parentheses")

	// ErrInvalidSequence is returned for token sequences which cannot
	// occur in a well-formed expression, e.g. "((" or ",)".
	ErrInvalidSequence = errors.New("invalid token sequence")

	// ErrEmpty is returned when parsing an empty string.
	ErrEmpty = errors.New("empty expression")
)

// Tree is a parsed expression.
type Tree struct {
	// Name is the function name, or the complete token for leaves.
	Name string

	// Args are the arguments of a function call in order.
	Args []*Tree
}

// IsLeaf returns true if the tree has no arguments.
func (t *Tree) IsLeaf() bool {
	return len(t.Args) == 0
}

// String renders the tree back into the `name(arg,...)` notation.
func (t *Tree) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Tree) write(b *strings.Builder) {
	b.WriteString(t.Name)
	if len(t.Args) == 0 {
		return
	}
	b.WriteByte('(')
	for i, arg := range t.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		arg.write(b)
	}
	b.WriteByte(')')
}

// Depth returns the maximum nesting depth of the tree. A leaf has depth 1.
func (t *Tree) Depth() int {
	depth := 0
	for _, arg := range t.Args {
		if d := arg.Depth(); d > depth {
			depth = d
		}
	}
	return depth + 1
}

type stack struct {
	elements []*Tree
}

func (s *stack) push(element *Tree) {
	s.elements = append(s.elements, element)
}

func (s *stack) pop() *Tree {
	if len(s.elements) == 0 {
		return nil
	}
	top := s.elements[len(s.elements)-1]
	s.elements = s.elements[:len(s.elements)-1]
	return top
}

func (s *stack) top() *Tree {
	if len(s.elements) == 0 {
		return nil
	}
	return s.elements[len(s.elements)-1]
}

func (s *stack) size() int {
	return len(s.elements)
}

func isSeparator(c rune) bool {
	return c == '(' || c == ')' || c == ','
}

// splitString splits s on the separators, keeping each separator as its own
// element. Empty elements are dropped.
func splitString(s string, isSeparator func(c rune) bool) []string {
	substrings := make([]string, 0)

	i := 0
	for i < len(s) {
		j := strings.IndexFunc(s[i:], isSeparator)
		if j == -1 {
			substrings = append(substrings, s[i:])
			return substrings
		}
		j += i

		if j > i {
			substrings = append(substrings, s[i:j])
		}

		substrings = append(substrings, s[j:j+1])
		i = j + 1
	}
	return substrings
}

// Parse parses an expression into a tree.
func Parse(s string) (*Tree, error) {
	if s == "" {
		return nil, ErrEmpty
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return nil, fmt.Errorf("%w: whitespace in expression",
			ErrInvalidSequence)
	}

	tokens := splitString(s, isSeparator)
	first, last := tokens[0], tokens[len(tokens)-1]
	if first == "(" || first == ")" || first == "," ||
		last == "(" || last == "," {

		return nil, fmt.Errorf("%w: invalid first or last character",
			ErrInvalidSequence)
	}

	var st stack
	for i, token := range tokens {
		switch token {
		case "(":
			// "((", ")(" and ",(" never appear in a valid
			// expression.
			if i > 0 && (tokens[i-1] == "(" || tokens[i-1] == ")" ||
				tokens[i-1] == ",") {

				return nil, fmt.Errorf("%w: %s%s",
					ErrInvalidSequence, tokens[i-1], token)
			}

		case ",", ")":
			// End of an argument: attach it to its parent. If
			// there is no parent, the expression is unbalanced,
			// e.g. `f(X))`.
			if i > 0 && (tokens[i-1] == "(" || tokens[i-1] == ",") {
				return nil, fmt.Errorf("%w: %s%s",
					ErrInvalidSequence, tokens[i-1], token)
			}

			arg := st.pop()
			parent := st.top()
			if arg == nil || parent == nil {
				return nil, ErrUnbalanced
			}
			parent.Args = append(parent.Args, arg)

		default:
			if i > 0 && tokens[i-1] == ")" {
				return nil, fmt.Errorf("%w: %s%s",
					ErrInvalidSequence, tokens[i-1], token)
			}
			st.push(&Tree{Name: token})
		}
	}

	if st.size() != 1 {
		return nil, ErrUnbalanced
	}
	if err := checkBalance(tokens); err != nil {
		return nil, err
	}

	return st.top(), nil
}

// checkBalance verifies that every ")" closes a matching "(" and that every
// "," appears inside parentheses. The stack based construction above accepts
// inputs such as "a,b)" which have a consistent argument count but no
// opening parenthesis.
func checkBalance(tokens []string) error {
	depth := 0
	for _, token := range tokens {
		switch token {
		case "(":
			depth++
		case ")":
			depth--
			if depth < 0 {
				return ErrUnbalanced
			}
		case ",":
			if depth == 0 {
				return ErrUnbalanced
			}
		}
	}
	if depth != 0 {
		return ErrUnbalanced
	}
	return nil
}
