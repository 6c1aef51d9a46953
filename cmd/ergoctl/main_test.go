package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	out, err := execute(t, "token", "--user", "linh", "--scopes", "activities:read,wallet:write", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := auth.Parse(strings.TrimSpace(out), auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	require.NoError(t, err)
	require.Equal(t, "linh", claims.Subject)
	require.True(t, claims.HasScope(auth.ScopeWalletWrite))
	require.False(t, claims.HasScope(auth.ScopeActivitiesWrite))
}

func TestTokenCommandRequiresUser(t *testing.T) {
	tokenFlags.user = ""
	tokenCmd.Flags().Lookup("user").Changed = false
	_, err := execute(t, "token")
	require.ErrorContains(t, err, `required flag(s) "user" not set`)
}

func TestSeedCommandValidatesFlags(t *testing.T) {
	_, err := execute(t, "seed", "--user", "linh")
	require.Error(t, err)

	_, err = execute(t, "seed", "--house", "A", "--house-id", "b")
	require.Error(t, err)
}
