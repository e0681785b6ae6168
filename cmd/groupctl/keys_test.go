package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	a := fingerprint("cGstYWxpY2U=")
	require.Len(t, a, 16)
	require.Equal(t, a, fingerprint("cGstYWxpY2U="))
	require.NotEqual(t, a, fingerprint("cGstYm9i"))
	require.Equal(t, "invalid", fingerprint("%%%"))
}
