package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidScopeName(t *testing.T) {
	for _, v := range []string{
		"*",
		"admin",
		"credentials:read",
		"orders:write.v2",
		"a_b-c.d:scope2",
		"a" + strings.Repeat("x", 62) + "b",
	} {
		require.True(t, ValidScopeName(v), v)
	}

	for _, v := range []string{
		"",
		":lead",
		"trail:",
		"bad space",
		"UPPER",
		"semicolon;hack",
		"**",
		strings.Repeat("a", 65),
	} {
		require.False(t, ValidScopeName(v), v)
	}
}

func TestNormalizeScopes(t *testing.T) {
	out, err := NormalizeScopes([]string{" credentials:read ", "admin", "", "credentials:read"})
	require.NoError(t, err)
	require.Equal(t, []string{"admin", "credentials:read"}, out)

	out, err = NormalizeScopes(nil)
	require.NoError(t, err)
	require.Empty(t, out)

	_, err = NormalizeScopes([]string{"admin", "Bad Scope"})
	require.ErrorContains(t, err, "Bad Scope")
}
