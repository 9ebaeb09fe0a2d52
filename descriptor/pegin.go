// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/elementsminiscript/expression"
	"github.com/btcsuite/elementsminiscript/miniscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	// peginKeyLen is the length of a peg-in key: a role prefix and a hex
	// encoded compressed public key.
	peginKeyLen = 1 + 2*compressedPubKeyLen

	// functionaryPrefix marks federation keys which are tweaked with the
	// claim script.
	functionaryPrefix = 'f'

	// nonFunctionaryPrefix marks keys which are used untweaked.
	nonFunctionaryPrefix = 'u'
)

// PeginKey is a key of the federation script of a legacy peg-in.
type PeginKey struct {
	pubKey      *btcec.PublicKey
	functionary bool
}

// Ensure PeginKey satisfies the miniscript key interface.
var _ miniscript.Key = (*PeginKey)(nil)

// NewPeginKey creates a peg-in key.
func NewPeginKey(pubKey *btcec.PublicKey, functionary bool) *PeginKey {
	return &PeginKey{pubKey: pubKey, functionary: functionary}
}

// ParsePeginKey parses a key of the form `f<hex>` or `u<hex>`.
func ParsePeginKey(s string) (*PeginKey, error) {
	if len(s) != peginKeyLen || (s[0] != functionaryPrefix &&
		s[0] != nonFunctionaryPrefix) {

		return nil, descriptorErrorf(ErrKey, "invalid legacy peg-in "+
			"key %q", s)
	}
	raw, err := hex.DecodeString(s[1:])
	if err != nil {
		return nil, descriptorErrorf(ErrKey, "invalid hex key %q: %v",
			s, err)
	}
	pubKey, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, descriptorErrorf(ErrKey, "invalid public key %q: "+
			"%v", s, err)
	}
	return NewPeginKey(pubKey, s[0] == functionaryPrefix), nil
}

func parsePeginMiniscriptKey(s string) (miniscript.Key, error) {
	key, err := ParsePeginKey(s)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// String returns the key with its role prefix.
func (k *PeginKey) String() string {
	prefix := string(nonFunctionaryPrefix)
	if k.functionary {
		prefix = string(functionaryPrefix)
	}
	return prefix + hex.EncodeToString(k.pubKey.SerializeCompressed())
}

// PubKeyBytes returns the untweaked compressed public key.
func (k *PeginKey) PubKeyBytes() ([]byte, error) {
	return k.pubKey.SerializeCompressed(), nil
}

// PublicKey returns the untweaked public key.
func (k *PeginKey) PublicKey() *btcec.PublicKey {
	return k.pubKey
}

// IsFunctionary returns true for keys marked with `f`.
func (k *PeginKey) IsFunctionary() bool {
	return k.functionary
}

// TweakKey adds HMAC-SHA256(key, contract)*G to the key, the pay-to-contract
// construction used by the federation to commit to a claim script.
func TweakKey(pubKey *btcec.PublicKey, contract []byte) (*btcec.PublicKey,
	error) {

	mac := hmac.New(sha256.New, pubKey.SerializeCompressed())
	mac.Write(contract)

	var tweak secp256k1.ModNScalar
	if overflow := tweak.SetByteSlice(mac.Sum(nil)); overflow {
		return nil, descriptorError(ErrKey, "tweak exceeds the group "+
			"order")
	}

	var point, tweakPoint, result secp256k1.JacobianPoint
	pubKey.AsJacobian(&point)
	secp256k1.ScalarBaseMultNonConst(&tweak, &tweakPoint)
	secp256k1.AddNonConst(&point, &tweakPoint, &result)
	if (result.X.IsZero() && result.Y.IsZero()) || result.Z.IsZero() {
		return nil, descriptorError(ErrKey, "tweaked key is the point "+
			"at infinity")
	}
	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y), nil
}

// LegacyPegin is a Bitcoin peg-in descriptor of the form
// `legacy_pegin(or_d(multi(k,F...),and_v(v:older(n),multi(m,E...))),desc)`.
// Coins are locked to the federation keys tweaked with the script of the
// Elements descriptor desc, or after the timelock to the emergency keys.
type LegacyPegin struct {
	fedKeys  []*PeginKey
	fedK     int
	emerKeys []*PeginKey
	emerK    int
	timelock uint32
	ms       *miniscript.Fragment
	desc     *Descriptor
}

func keyHandles(keys []*PeginKey) []miniscript.Key {
	handles := make([]miniscript.Key, len(keys))
	for i, key := range keys {
		handles[i] = key
	}
	return handles
}

// NewLegacyPegin creates a legacy peg-in descriptor. The thresholds must
// differ, since the witness script selects the branch by stack depth.
func NewLegacyPegin(fedKeys []*PeginKey, fedK int, emerKeys []*PeginKey,
	emerK int, timelock uint32, desc *Descriptor) (*LegacyPegin, error) {

	if fedK == emerK {
		return nil, descriptorErrorf(ErrParse, "federation and "+
			"emergency thresholds are both %d", fedK)
	}
	fed, err := miniscript.NewMulti(fedK, keyHandles(fedKeys))
	if err != nil {
		return nil, err
	}
	emer, err := miniscript.NewMulti(emerK, keyHandles(emerKeys))
	if err != nil {
		return nil, err
	}
	older, err := miniscript.NewOlder(timelock)
	if err != nil {
		return nil, err
	}
	csv, err := miniscript.NewWrapper(miniscript.KindWrapV, older)
	if err != nil {
		return nil, err
	}
	emergency, err := miniscript.NewBinary(miniscript.KindAndV, csv, emer)
	if err != nil {
		return nil, err
	}
	ms, err := miniscript.NewBinary(miniscript.KindOrD, fed, emergency)
	if err != nil {
		return nil, err
	}
	if err := miniscript.TopLevelCheck(ms,
		miniscript.ContextSegwitV0); err != nil {

		return nil, err
	}

	return &LegacyPegin{
		fedKeys:  fedKeys,
		fedK:     fedK,
		emerKeys: emerKeys,
		emerK:    emerK,
		timelock: timelock,
		ms:       ms,
		desc:     desc,
	}, nil
}

// peginKeys converts the keys of a multi fragment.
func peginKeys(f *miniscript.Fragment) []*PeginKey {
	keys := f.Keys()
	result := make([]*PeginKey, len(keys))
	for i, key := range keys {
		result[i] = key.(*PeginKey)
	}
	return result
}

// ParseLegacyPegin parses a legacy peg-in descriptor.
func ParseLegacyPegin(s string) (*LegacyPegin, error) {
	text, err := VerifyChecksum(s)
	if err != nil {
		return nil, err
	}
	tree, err := expression.Parse(text)
	if err != nil {
		return nil, descriptorErrorf(ErrParse, "%s: %v", text, err)
	}
	if tree.Name != "legacy_pegin" || len(tree.Args) != 2 {
		return nil, descriptorErrorf(ErrParse, "expected "+
			"legacy_pegin(ms,desc), got %s(%d args)", tree.Name,
			len(tree.Args))
	}

	ms, err := miniscript.FromTree(tree.Args[0], parsePeginMiniscriptKey)
	if err != nil {
		return nil, err
	}
	desc, err := FromTree(tree.Args[1])
	if err != nil {
		return nil, err
	}

	// The federation script has a fixed shape.
	invalid := descriptorErrorf(ErrParse, "%s is not a legacy peg-in "+
		"federation script", ms)
	if ms.Kind() != miniscript.KindOrD {
		return nil, invalid
	}
	fed, emergency := ms.Subs()[0], ms.Subs()[1]
	if fed.Kind() != miniscript.KindMulti ||
		emergency.Kind() != miniscript.KindAndV {

		return nil, invalid
	}
	csv, emer := emergency.Subs()[0], emergency.Subs()[1]
	if csv.Kind() != miniscript.KindWrapV ||
		csv.Subs()[0].Kind() != miniscript.KindOlder ||
		emer.Kind() != miniscript.KindMulti {

		return nil, invalid
	}

	return NewLegacyPegin(peginKeys(fed), int(fed.K()), peginKeys(emer),
		int(emer.K()), csv.Subs()[0].K(), desc)
}

// body returns the descriptor text without checksum.
func (p *LegacyPegin) body() string {
	return "legacy_pegin(" + p.ms.String() + "," + p.desc.body() + ")"
}

// String returns the descriptor text followed by its checksum.
func (p *LegacyPegin) String() string {
	s, err := AddChecksum(p.body())
	if err != nil {
		return p.body()
	}
	return s
}

// Descriptor returns the Elements descriptor which claims the peg-in.
func (p *LegacyPegin) Descriptor() *Descriptor {
	return p.desc
}

// Miniscript returns the untweaked federation script.
func (p *LegacyPegin) Miniscript() *miniscript.Fragment {
	return p.ms
}

// Timelock returns the relative timelock of the emergency branch.
func (p *LegacyPegin) Timelock() uint32 {
	return p.timelock
}

// contract returns the SHA256 of the claim script the federation keys are
// tweaked with.
func (p *LegacyPegin) contract() ([]byte, error) {
	claimScript, err := p.desc.ExplicitScript()
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(claimScript)
	return digest[:], nil
}

// FederationKeys returns the federation keys tweaked with the claim
// script.
func (p *LegacyPegin) FederationKeys() ([]*btcec.PublicKey, error) {
	contract, err := p.contract()
	if err != nil {
		return nil, err
	}
	keys := make([]*btcec.PublicKey, len(p.fedKeys))
	for i, key := range p.fedKeys {
		tweaked, err := TweakKey(key.pubKey, contract)
		if err != nil {
			return nil, err
		}
		keys[i] = tweaked
	}
	return keys, nil
}

// WitnessScript returns the Bitcoin witness script. Both branches share the
// final OP_CHECKMULTISIG and the branch is selected by the stack depth:
//
//	DEPTH <k+1> EQUAL IF <k> <tweaked keys> <n>
//	ELSE <timelock> CSV DROP <m> <emergency keys> <e> ENDIF CHECKMULTISIG
func (p *LegacyPegin) WitnessScript() ([]byte, error) {
	fedKeys, err := p.FederationKeys()
	if err != nil {
		return nil, err
	}

	b := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DEPTH).
		AddInt64(int64(p.fedK + 1)).
		AddOp(txscript.OP_EQUAL).
		AddOp(txscript.OP_IF).
		AddInt64(int64(p.fedK))
	for _, key := range fedKeys {
		b.AddData(key.SerializeCompressed())
	}
	b.AddInt64(int64(len(fedKeys))).
		AddOp(txscript.OP_ELSE).
		AddInt64(int64(p.timelock)).
		AddOp(txscript.OP_CHECKSEQUENCEVERIFY).
		AddOp(txscript.OP_DROP).
		AddInt64(int64(p.emerK))
	for _, key := range p.emerKeys {
		b.AddData(key.pubKey.SerializeCompressed())
	}
	return b.AddInt64(int64(len(p.emerKeys))).
		AddOp(txscript.OP_ENDIF).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
}

// redeemScript returns the P2WSH program nested in P2SH.
func (p *LegacyPegin) redeemScript() ([]byte, error) {
	witnessScript, err := p.WitnessScript()
	if err != nil {
		return nil, err
	}
	return payToWitnessScriptHash(witnessScript)
}

// ScriptPubKey returns the P2SH-P2WSH Bitcoin output script.
func (p *LegacyPegin) ScriptPubKey() ([]byte, error) {
	redeemScript, err := p.redeemScript()
	if err != nil {
		return nil, err
	}
	return payToScriptHash(redeemScript)
}

// Address returns the P2SH-P2WSH Bitcoin address to send the peg-in to.
func (p *LegacyPegin) Address(params *chaincfg.Params) (btcutil.Address,
	error) {

	redeemScript, err := p.redeemScript()
	if err != nil {
		return nil, err
	}
	return btcutil.NewAddressScriptHash(redeemScript, params)
}

// Satisfy returns the witness and scriptSig spending the peg-in output.
// The federation branch is used whenever enough federation signatures are
// available.
func (p *LegacyPegin) Satisfy(src miniscript.SecretSource) (wire.TxWitness,
	[]byte, error) {

	witnessScript, err := p.WitnessScript()
	if err != nil {
		return nil, nil, err
	}
	redeemScript, err := payToWitnessScriptHash(witnessScript)
	if err != nil {
		return nil, nil, err
	}
	sigScript, err := pushAll(nil, redeemScript)
	if err != nil {
		return nil, nil, err
	}
	fedKeys, err := p.FederationKeys()
	if err != nil {
		return nil, nil, err
	}

	var missing []miniscript.Requirement
	collect := func(keys []miniscript.Key, k int) wire.TxWitness {
		// The dummy element consumed by OP_CHECKMULTISIG.
		witness := wire.TxWitness{nil}
		for _, key := range keys {
			sig, ok := src.Sign(key)
			if !ok {
				missing = append(missing, miniscript.Requirement{
					Kind: miniscript.RequireSignature,
					Key:  key,
				})
				continue
			}
			witness = append(witness, sig)
			if len(witness) == k+1 {
				return append(witness, witnessScript)
			}
		}
		return nil
	}

	fedHandles := make([]miniscript.Key, len(fedKeys))
	for i, key := range fedKeys {
		fedHandles[i] = miniscript.NewPubKey(key)
	}
	if witness := collect(fedHandles, p.fedK); witness != nil {
		return witness, sigScript, nil
	}

	ok, err := src.CheckOlder(p.timelock)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		missing = append(missing, miniscript.Requirement{
			Kind: miniscript.RequireOlder,
			Lock: p.timelock,
		})
	} else {
		witness := collect(keyHandles(p.emerKeys), p.emerK)
		if witness != nil {
			log.Debugf("Satisfying %s with the emergency keys",
				p.body())
			return witness, sigScript, nil
		}
	}

	return nil, nil, &miniscript.NotSatisfiableError{
		Fragment: p.body(),
		Missing:  missing,
	}
}

// MaxSatisfactionWeight returns an upper bound of the weight of the
// scriptSig and witness of any satisfaction.
func (p *LegacyPegin) MaxSatisfactionWeight() (int, error) {
	witnessScript, err := p.WitnessScript()
	if err != nil {
		return 0, err
	}

	// Each branch pushes a dummy element and its signatures.
	sigs := p.fedK
	if p.emerK > sigs {
		sigs = p.emerK
	}
	elems := 1 + sigs + 1
	size := 1 + sigs*maxSigScriptSize + varIntLen(len(witnessScript)) +
		len(witnessScript)

	return scriptSigWeight(pushDataLen(p2wshScriptLen)) + varIntLen(elems) +
		size, nil
}
