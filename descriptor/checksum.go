// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"strings"
)

const (
	// inputCharset lists the characters a descriptor may contain. The
	// position of a character selects its group and its symbol in the
	// checksum computation.
	inputCharset = "0123456789()[],'/*abcdefgh@:$%{}" +
		"IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~" +
		"ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "

	// checksumCharset is the bech32 character set used to encode the
	// checksum.
	checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

	// ChecksumLen is the number of characters of a descriptor checksum.
	ChecksumLen = 8
)

// polyMod updates the checksum state c with the 5 bit value val.
func polyMod(c uint64, val int) uint64 {
	c0 := c >> 35
	c = ((c & 0x7ffffffff) << 5) ^ uint64(val)
	if c0&1 != 0 {
		c ^= 0xf5dee51989
	}
	if c0&2 != 0 {
		c ^= 0xa9fdca3312
	}
	if c0&4 != 0 {
		c ^= 0x1bab10e32d
	}
	if c0&8 != 0 {
		c ^= 0x3706b1677a
	}
	if c0&16 != 0 {
		c ^= 0x644d626ffd
	}
	return c
}

// Checksum computes the 8 character checksum of a descriptor text without
// its '#' suffix.
func Checksum(desc string) (string, error) {
	c := uint64(1)
	cls, clsCount := 0, 0
	for i := 0; i < len(desc); i++ {
		pos := strings.IndexByte(inputCharset, desc[i])
		if pos == -1 {
			return "", descriptorErrorf(ErrChecksum, "invalid "+
				"character %q in descriptor", desc[i])
		}

		// Emit a symbol for the position inside the group, for every
		// character.
		c = polyMod(c, pos&31)

		// Accumulate the group numbers and emit them in triples.
		cls = cls*3 + pos>>5
		clsCount++
		if clsCount == 3 {
			c = polyMod(c, cls)
			cls, clsCount = 0, 0
		}
	}
	if clsCount > 0 {
		c = polyMod(c, cls)
	}
	for i := 0; i < ChecksumLen; i++ {
		c = polyMod(c, 0)
	}
	c ^= 1

	var b strings.Builder
	b.Grow(ChecksumLen)
	for i := 0; i < ChecksumLen; i++ {
		b.WriteByte(checksumCharset[(c>>(5*(7-i)))&31])
	}
	return b.String(), nil
}

// AddChecksum returns the descriptor text followed by '#' and its checksum.
func AddChecksum(desc string) (string, error) {
	checksum, err := Checksum(desc)
	if err != nil {
		return "", err
	}
	return desc + "#" + checksum, nil
}

// VerifyChecksum splits an optional checksum from the descriptor text and
// verifies it. The text without the checksum is returned. Text without a
// '#' is accepted as long as all of its characters are valid.
func VerifyChecksum(s string) (string, error) {
	desc, checksum, found := strings.Cut(s, "#")
	if _, err := Checksum(desc); err != nil {
		return "", err
	}
	if !found {
		return desc, nil
	}

	if len(checksum) != ChecksumLen {
		return "", descriptorErrorf(ErrChecksum, "checksum %q has "+
			"length %d, expected %d", checksum, len(checksum),
			ChecksumLen)
	}
	for i := 0; i < len(checksum); i++ {
		if strings.IndexByte(checksumCharset, checksum[i]) == -1 {
			return "", descriptorErrorf(ErrChecksum, "invalid "+
				"character %q in checksum", checksum[i])
		}
	}

	expected, _ := Checksum(desc)
	if checksum != expected {
		return "", descriptorErrorf(ErrChecksumMismatch, "checksum "+
			"%s does not match, expected %s", checksum, expected)
	}
	return desc, nil
}
