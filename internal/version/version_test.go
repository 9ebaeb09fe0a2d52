// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestString tests the semantic version string and the normalization of
// the overridable parts.
func TestString(t *testing.T) {
	preRelease, buildMetadata := PreRelease, BuildMetadata
	defer func() {
		PreRelease, BuildMetadata = preRelease, buildMetadata
	}()

	require.Equal(t, "0.1.0-pre+dev", String())

	PreRelease, BuildMetadata = "beta.1", "abc+def"
	require.Equal(t, "0.1.0-beta1+abcdef", String())

	PreRelease, BuildMetadata = "", ""
	require.Equal(t, "0.1.0", String())
}
