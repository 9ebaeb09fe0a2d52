// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package log

import (
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

// TestParseAndSetDebugLevels tests the debug level syntax.
func TestParseAndSetDebugLevels(t *testing.T) {
	require.Equal(t, []string{"DESC", "ELMS", "MSCR", "PLCY"},
		SupportedSubsystems())

	require.NoError(t, ParseAndSetDebugLevels("debug"))
	require.Equal(t, btclog.LevelDebug, plcyLog.Level())

	require.NoError(t, ParseAndSetDebugLevels("PLCY=trace,DESC=warn"))
	require.Equal(t, btclog.LevelTrace, plcyLog.Level())
	require.Equal(t, btclog.LevelWarn, descLog.Level())
	require.Equal(t, btclog.LevelDebug, mscrLog.Level())

	for _, invalid := range []string{
		"verbose",
		"PLCY",
		"PLCY=trace,",
		"NOPE=debug",
		"PLCY=loud",
	} {
		require.Error(t, ParseAndSetDebugLevels(invalid), invalid)
	}
}
