// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"fmt"
	"io"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

var hashOps = map[Kind]byte{
	KindSha256:    txscript.OP_SHA256,
	KindHash256:   txscript.OP_HASH256,
	KindRipemd160: txscript.OP_RIPEMD160,
	KindHash160:   txscript.OP_HASH160,
}

// Script creates the witness script of the fragment. All keys must be
// concrete.
func (f *Fragment) Script() ([]byte, error) {
	b := txscript.NewScriptBuilder()
	if err := buildScript(f, b, false); err != nil {
		return nil, err
	}
	return b.Script()
}

// verifyOp returns the VERIFY version of op if the node can be collapsed
// and a v: wrapper is the direct ancestor.
func verifyOp(node *Fragment, collapseVerify bool, op, verify byte) byte {
	if node.typ.props.canCollapseVerify && collapseVerify {
		return verify
	}
	return op
}

// buildScript builds the script from the tree. collapseVerify is true if the
// `v` wrapper (VERIFY wrapper) is the parent of the node. If so, the two
// opcodes `OP_CHECKSIG OP_VERIFY` are collapsed into `OP_CHECKSIGVERIFY`
// (same for OP_EQUAL and OP_CHECKMULTISIG).
func buildScript(node *Fragment, b *txscript.ScriptBuilder,
	collapseVerify bool) error {

	// Only the last opcode of a node can be collapsed, so every child
	// except the last one of and_v and s: is built without collapsing.
	build := func(sub *Fragment, collapse bool) error {
		return buildScript(sub, b, collapse)
	}

	switch node.kind {
	case KindFalse:
		b.AddOp(txscript.OP_FALSE)

	case KindTrue:
		b.AddOp(txscript.OP_TRUE)

	case KindPkK:
		key, err := node.keys[0].PubKeyBytes()
		if err != nil {
			return err
		}
		b.AddData(key)

	case KindPkH:
		key, err := node.keys[0].PubKeyBytes()
		if err != nil {
			return err
		}
		b.AddOp(txscript.OP_DUP)
		b.AddOp(txscript.OP_HASH160)
		b.AddData(btcutil.Hash160(key))
		b.AddOp(txscript.OP_EQUALVERIFY)

	case KindOlder:
		b.AddInt64(int64(node.k))
		b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)

	case KindAfter:
		b.AddInt64(int64(node.k))
		b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)

	case KindSha256, KindHash256, KindRipemd160, KindHash160:
		b.AddOp(txscript.OP_SIZE)
		b.AddInt64(preimageLen)
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddOp(hashOps[node.kind])
		b.AddData(node.hash)
		b.AddOp(verifyOp(node, collapseVerify, txscript.OP_EQUAL,
			txscript.OP_EQUALVERIFY))

	case KindExt:
		return node.ext.Encode(b, node.typ.props.canCollapseVerify &&
			collapseVerify)

	case KindAndOr:
		if err := build(node.subs[0], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_NOTIF)
		if err := build(node.subs[2], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ELSE)
		if err := build(node.subs[1], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case KindAndV:
		if err := build(node.subs[0], false); err != nil {
			return err
		}
		return build(node.subs[1], collapseVerify)

	case KindAndB, KindOrB:
		if err := build(node.subs[0], false); err != nil {
			return err
		}
		if err := build(node.subs[1], false); err != nil {
			return err
		}
		if node.kind == KindAndB {
			b.AddOp(txscript.OP_BOOLAND)
		} else {
			b.AddOp(txscript.OP_BOOLOR)
		}

	case KindOrC:
		if err := build(node.subs[0], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_NOTIF)
		if err := build(node.subs[1], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case KindOrD:
		if err := build(node.subs[0], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_IFDUP)
		b.AddOp(txscript.OP_NOTIF)
		if err := build(node.subs[1], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case KindOrI:
		b.AddOp(txscript.OP_IF)
		if err := build(node.subs[0], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ELSE)
		if err := build(node.subs[1], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case KindThresh:
		for i, sub := range node.subs {
			if err := build(sub, false); err != nil {
				return err
			}
			if i > 0 {
				b.AddOp(txscript.OP_ADD)
			}
		}
		b.AddInt64(int64(node.k))
		b.AddOp(verifyOp(node, collapseVerify, txscript.OP_EQUAL,
			txscript.OP_EQUALVERIFY))

	case KindMulti:
		b.AddInt64(int64(node.k))
		for _, key := range node.keys {
			pubKey, err := key.PubKeyBytes()
			if err != nil {
				return err
			}
			b.AddData(pubKey)
		}
		b.AddInt64(int64(len(node.keys)))
		b.AddOp(verifyOp(node, collapseVerify,
			txscript.OP_CHECKMULTISIG, txscript.OP_CHECKMULTISIGVERIFY))

	case KindWrapA:
		b.AddOp(txscript.OP_TOALTSTACK)
		if err := build(node.subs[0], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_FROMALTSTACK)

	case KindWrapS:
		b.AddOp(txscript.OP_SWAP)
		return build(node.subs[0], collapseVerify)

	case KindWrapC:
		if err := build(node.subs[0], false); err != nil {
			return err
		}
		b.AddOp(verifyOp(node, collapseVerify, txscript.OP_CHECKSIG,
			txscript.OP_CHECKSIGVERIFY))

	case KindWrapD:
		b.AddOp(txscript.OP_DUP)
		b.AddOp(txscript.OP_IF)
		if err := build(node.subs[0], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case KindWrapV:
		if err := build(node.subs[0], true); err != nil {
			return err
		}
		if !node.subs[0].typ.props.canCollapseVerify {
			b.AddOp(txscript.OP_VERIFY)
		}

	case KindWrapJ:
		b.AddOp(txscript.OP_SIZE)
		b.AddOp(txscript.OP_0NOTEQUAL)
		b.AddOp(txscript.OP_IF)
		if err := build(node.subs[0], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case KindWrapN:
		if err := build(node.subs[0], false); err != nil {
			return err
		}
		b.AddOp(txscript.OP_0NOTEQUAL)

	default:
		return fragmentErrorf(ErrMalformedFragment, "unknown fragment "+
			"kind %d", node.kind)
	}

	return nil
}

// ScriptString returns a human-readable version of the script for
// debugging purposes. Keys are printed by name, so it also works for
// placeholder keys.
func (f *Fragment) ScriptString() string {
	return scriptStr(f, false)
}

func scriptStr(node *Fragment, collapseVerify bool) string {
	opVerify := func(op, verify string) string {
		if node.typ.props.canCollapseVerify && collapseVerify {
			return verify
		}
		return op
	}
	sub := func(i int, collapse bool) string {
		return scriptStr(node.subs[i], collapse)
	}

	switch node.kind {
	case KindFalse, KindTrue:
		return node.kind.String()

	case KindPkK:
		return fmt.Sprintf("<%s>", node.keys[0])

	case KindPkH:
		return fmt.Sprintf("DUP HASH160 <HASH160(%s)> EQUALVERIFY",
			node.keys[0])

	case KindOlder:
		return fmt.Sprintf("<%d> CHECKSEQUENCEVERIFY", node.k)

	case KindAfter:
		return fmt.Sprintf("<%d> CHECKLOCKTIMEVERIFY", node.k)

	case KindSha256, KindHash256, KindRipemd160, KindHash160:
		return fmt.Sprintf("SIZE <32> EQUALVERIFY %s <%x> %s",
			strings.ToUpper(node.kind.String()), node.hash,
			opVerify("EQUAL", "EQUALVERIFY"))

	case KindExt:
		b := txscript.NewScriptBuilder()
		collapse := node.typ.props.canCollapseVerify && collapseVerify
		if err := node.ext.Encode(b, collapse); err != nil {
			return fmt.Sprintf("<%s: %v>", extString(node.ext), err)
		}
		script, err := b.Script()
		if err != nil {
			return fmt.Sprintf("<%s: %v>", extString(node.ext), err)
		}
		return disasmElements(script)

	case KindAndOr:
		return fmt.Sprintf("%s NOTIF %s ELSE %s ENDIF", sub(0, false),
			sub(2, false), sub(1, false))

	case KindAndV:
		return fmt.Sprintf("%s %s", sub(0, false),
			sub(1, collapseVerify))

	case KindAndB:
		return fmt.Sprintf("%s %s BOOLAND", sub(0, false),
			sub(1, false))

	case KindOrB:
		return fmt.Sprintf("%s %s BOOLOR", sub(0, false), sub(1, false))

	case KindOrC:
		return fmt.Sprintf("%s NOTIF %s ENDIF", sub(0, false),
			sub(1, false))

	case KindOrD:
		return fmt.Sprintf("%s IFDUP NOTIF %s ENDIF", sub(0, false),
			sub(1, false))

	case KindOrI:
		return fmt.Sprintf("IF %s ELSE %s ENDIF", sub(0, false),
			sub(1, false))

	case KindThresh:
		var s []string
		for i := range node.subs {
			s = append(s, sub(i, false))
			if i > 0 {
				s = append(s, "ADD")
			}
		}
		s = append(s, fmt.Sprint(node.k), opVerify("EQUAL",
			"EQUALVERIFY"))
		return strings.Join(s, " ")

	case KindMulti:
		s := []string{fmt.Sprint(node.k)}
		for _, key := range node.keys {
			s = append(s, fmt.Sprintf("<%s>", key))
		}
		s = append(s, fmt.Sprint(len(node.keys)),
			opVerify("CHECKMULTISIG", "CHECKMULTISIGVERIFY"))
		return strings.Join(s, " ")

	case KindWrapA:
		return fmt.Sprintf("TOALTSTACK %s FROMALTSTACK", sub(0, false))

	case KindWrapS:
		return fmt.Sprintf("SWAP %s", sub(0, collapseVerify))

	case KindWrapC:
		return fmt.Sprintf("%s %s", sub(0, false),
			opVerify("CHECKSIG", "CHECKSIGVERIFY"))

	case KindWrapD:
		return fmt.Sprintf("DUP IF %s ENDIF", sub(0, false))

	case KindWrapV:
		s := sub(0, true)
		if !node.subs[0].typ.props.canCollapseVerify {
			s += " VERIFY"
		}
		return s

	case KindWrapJ:
		return fmt.Sprintf("SIZE 0NOTEQUAL IF %s ENDIF", sub(0, false))

	case KindWrapN:
		return fmt.Sprintf("%s 0NOTEQUAL", sub(0, false))

	default:
		return "<unknown>"
	}
}

// label returns the text of a node in DrawTree: the complete fragment for
// terminals, the identifier for everything else.
func (f *Fragment) label() string {
	switch {
	case len(f.subs) == 0:
		return f.String()
	case f.kind == KindWrapC && len(f.subs[0].subs) == 0:
		return f.String()
	case f.kind == KindThresh:
		return fmt.Sprintf("thresh(%d)", f.k)
	}
	return f.kind.String()
}

func (f *Fragment) drawTree(w io.Writer, indent string) {
	label := f.label()
	_, _ = fmt.Fprint(w, label)
	if f.typErr == nil {
		typ := f.typ.String()
		if f.typ.props.canCollapseVerify {
			typ += "x"
		}
		_, _ = fmt.Fprintf(w, " [%s]", typ)
	} else {
		_, _ = fmt.Fprint(w, " [invalid]")
	}
	_, _ = fmt.Fprintln(w)
	if f.kind == KindWrapC && len(f.subs[0].subs) == 0 {
		return
	}
	for i, sub := range f.subs {
		mark := ""
		delim := ""
		if i == len(f.subs)-1 {
			mark = "└──"
		} else {
			mark = "├──"
			delim = "|"
		}
		_, _ = fmt.Fprintf(w, "%s%s", indent, mark)
		padLen := len([]rune(mark)) - len(delim)
		padding := strings.Repeat(" ", padLen)
		sub.drawTree(w, indent+delim+padding)
	}
}

// DrawTree renders the typed tree for debugging.
func (f *Fragment) DrawTree() string {
	var b strings.Builder
	f.drawTree(&b, "")
	return b.String()
}
