package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatic(t *testing.T) {
	directory, err := ParseStatic(" u1=Alice , u2 = Bob,,u3=")
	require.NoError(t, err)

	for id, want := range map[string]string{"u1": "Alice", "u2": "Bob", "u3": "", "u4": ""} {
		got, err := directory.ResolveUserName(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}

func TestParseStatic_Invalid(t *testing.T) {
	for _, entries := range []string{"alice", "=Alice", "u1=Alice,bob"} {
		_, err := ParseStatic(entries)
		assert.Error(t, err, entries)
	}
}

func TestNewStatic_CopiesInput(t *testing.T) {
	names := map[string]string{"u1": "Alice"}
	directory := NewStatic(names)

	names["u1"] = "Mallory"

	got, err := directory.ResolveUserName(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got)
}
