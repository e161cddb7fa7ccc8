package commands

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/registry"
)

func TestParseAccessType(t *testing.T) {
	cases := map[string]registry.AccessType{
		"":      registry.AccessBoth,
		"both":  registry.AccessBoth,
		"read":  registry.AccessRead,
		"write": registry.AccessWrite,
	}
	for in, want := range cases {
		got, err := parseAccessType(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseAccessTypeRejectsUnknown(t *testing.T) {
	_, err := parseAccessType("readwrite")
	require.Error(t, err)
}
