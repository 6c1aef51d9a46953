package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{CompletedAt: time.Date(2026, time.March, 11, 9, 30, 0, 123456000, time.UTC), ID: "act-1"}

	token := EncodeCursor(in)
	require.NotContains(t, token, "=")

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, in.CompletedAt.Equal(out.CompletedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	empty, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, empty)

	for _, token := range []string{"%%%", EncodeCursor(&domain.Cursor{}), "bm8tc2VwYXJhdG9y"} {
		_, err := DecodeCursor(token)
		require.ErrorIsf(t, err, ErrInvalidCursor, "token %q", token)
	}
}
